package models

import "time"

// Friendship statuses. A friendship is stored as one directed edge from the
// requester to the target; an accepted edge is treated as symmetric by the
// queries.
const (
	FriendStatusPending  = "pending"
	FriendStatusAccepted = "accepted"
)

// FriendEntry is one line of a friend list response.
type FriendEntry struct {
	Username string
	Online   bool
}

// Group member roles. The owner role belongs to the creator only.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Join request statuses.
const (
	JoinStatusPending  = "pending"
	JoinStatusApproved = "approved"
	JoinStatusRejected = "rejected"
)

type JoinRequest struct {
	ID        int64
	GroupID   int64
	UserID    int64
	Username  string
	Status    string
	CreatedAt time.Time
}

// Message is a stored direct or group message. GroupID is zero for direct
// messages, ReceiverID is zero for group messages.
type Message struct {
	ID         int64
	SenderID   int64
	Sender     string
	ReceiverID int64
	GroupID    int64
	Content    string
	Delivered  bool
	CreatedAt  time.Time
}

// Notification types queued for offline users.
const (
	NotifyGroupInvite   = "group_invite"
	NotifyGroupKick     = "group_kick"
	NotifyJoinApproved  = "join_approved"
	NotifyJoinRejected  = "join_rejected"
	NotifyJoinRequested = "join_requested"
)

// Notification is an event queued for a user who was offline when it
// happened. It is replayed once on the next login and then deleted.
type Notification struct {
	ID        int64
	UserID    int64
	Type      string
	GroupID   int64
	Sender    string
	Message   string
	CreatedAt time.Time
}
