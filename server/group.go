package server

import (
	"errors"
	"fmt"
	"strings"

	"chatd/db"
	"chatd/metrics"
	"chatd/models"
	"chatd/protocol"
)

const (
	minGroupNameLength = 3
	maxGroupNameLength = 50
)

// resolveGroup maps a group name to its id, answering the appropriate
// status itself on failure.
func (s *Server) resolveGroup(sess *Session, name string) (int64, bool) {
	if name == "" {
		s.respond(sess, protocol.StatusUndefinedError, "Group name required")
		return 0, false
	}
	id, err := s.db.GroupIDByName(name)
	if errors.Is(err, db.ErrNoRows) {
		s.respondSimple(sess, protocol.StatusGroupNotFound)
		return 0, false
	}
	if err != nil {
		s.log.Error().Err(err).Msg("group lookup failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return 0, false
	}
	return id, true
}

// requireMember answers when the session's user is not in the group.
func (s *Server) requireMember(sess *Session, groupID int64) bool {
	member, err := s.db.IsGroupMember(groupID, sess.UserID)
	if err != nil {
		s.log.Error().Err(err).Msg("membership check failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return false
	}
	if !member {
		s.respondSimple(sess, protocol.StatusNotInGroup)
		return false
	}
	return true
}

// requireOwner answers when the session's user does not own the group.
func (s *Server) requireOwner(sess *Session, groupID int64) bool {
	ownerID, err := s.db.GroupOwnerID(groupID)
	if err != nil {
		s.log.Error().Err(err).Msg("owner lookup failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return false
	}
	if ownerID != sess.UserID {
		s.respondSimple(sess, protocol.StatusNotGroupOwner)
		return false
	}
	return true
}

// notifyUser delivers a group event to a user: a live push when they are
// online, a queued notification otherwise.
func (s *Server) notifyUser(userID int64, n models.Notification) {
	code, body := renderNotification(n)
	if s.pushToUser(userID, code, body) {
		return
	}
	n.UserID = userID
	if err := s.db.SaveNotification(n); err != nil {
		s.log.Error().Err(err).Int64("user", userID).Msg("queue notification failed")
	}
}

func (s *Server) handleGroupCreate(sess *Session, cmd *protocol.Command) {
	name := cmd.GroupName
	if len(name) < minGroupNameLength || len(name) > maxGroupNameLength {
		s.respond(sess, protocol.StatusUndefinedError, "Invalid group name")
		return
	}
	if _, err := s.db.CreateGroup(name, sess.UserID); err != nil {
		if errors.Is(err, db.ErrGroupExists) {
			s.respondSimple(sess, protocol.StatusGroupExists)
			return
		}
		s.log.Error().Err(err).Msg("create group failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	s.log.Info().Str("group", name).Str("owner", sess.Username).Msg("group created")
	s.respond(sess, protocol.StatusGroupCreateOk, "Group "+name+" created")
}

func (s *Server) handleGroupInvite(sess *Session, cmd *protocol.Command) {
	groupID, ok := s.resolveGroup(sess, cmd.GroupName)
	if !ok {
		return
	}
	if !s.requireMember(sess, groupID) {
		return
	}
	targetID, ok := s.resolveTarget(sess, cmd.Target)
	if !ok {
		return
	}
	member, err := s.db.IsGroupMember(groupID, targetID)
	if err != nil {
		s.log.Error().Err(err).Msg("membership check failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	if member {
		s.respondSimple(sess, protocol.StatusAlreadyInGroup)
		return
	}
	if err := s.db.AddGroupMember(groupID, targetID); err != nil {
		s.log.Error().Err(err).Msg("add member failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	s.notifyUser(targetID, models.Notification{
		Type:    models.NotifyGroupInvite,
		GroupID: groupID,
		Sender:  sess.Username,
		Message: cmd.GroupName,
	})
	s.respond(sess, protocol.StatusGroupInviteOk, cmd.Target+" added to group "+cmd.GroupName)
}

func (s *Server) handleGroupJoin(sess *Session, cmd *protocol.Command) {
	groupID, ok := s.resolveGroup(sess, cmd.GroupName)
	if !ok {
		return
	}
	member, err := s.db.IsGroupMember(groupID, sess.UserID)
	if err != nil {
		s.log.Error().Err(err).Msg("membership check failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	if member {
		s.respondSimple(sess, protocol.StatusAlreadyInGroup)
		return
	}
	if err := s.db.CreateJoinRequest(groupID, sess.UserID); err != nil {
		if errors.Is(err, db.ErrRequestPending) {
			s.respondSimple(sess, protocol.StatusRequestPending)
			return
		}
		s.log.Error().Err(err).Msg("create join request failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}

	ownerID, err := s.db.GroupOwnerID(groupID)
	if err != nil {
		// The request itself is already recorded; only the owner's
		// heads-up is lost.
		s.log.Error().Err(err).Msg("owner lookup failed")
	} else {
		s.notifyUser(ownerID, models.Notification{
			Type:    models.NotifyJoinRequested,
			GroupID: groupID,
			Sender:  sess.Username,
			Message: cmd.GroupName,
		})
	}
	s.respond(sess, protocol.StatusGroupJoinOk, "Join request sent to group "+cmd.GroupName)
}

func (s *Server) handleGroupApprove(sess *Session, cmd *protocol.Command) {
	groupID, ok := s.resolveGroup(sess, cmd.GroupName)
	if !ok {
		return
	}
	if !s.requireOwner(sess, groupID) {
		return
	}
	targetID, ok := s.resolveTarget(sess, cmd.Target)
	if !ok {
		return
	}
	if err := s.db.ApproveJoinRequest(groupID, targetID); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			s.respondSimple(sess, protocol.StatusNoPendingRequest)
			return
		}
		s.log.Error().Err(err).Msg("approve join request failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	s.notifyUser(targetID, models.Notification{
		Type:    models.NotifyJoinApproved,
		GroupID: groupID,
		Sender:  sess.Username,
		Message: cmd.GroupName,
	})
	s.respond(sess, protocol.StatusMsgOk, "Join request from "+cmd.Target+" approved")
}

func (s *Server) handleGroupReject(sess *Session, cmd *protocol.Command) {
	groupID, ok := s.resolveGroup(sess, cmd.GroupName)
	if !ok {
		return
	}
	if !s.requireOwner(sess, groupID) {
		return
	}
	targetID, ok := s.resolveTarget(sess, cmd.Target)
	if !ok {
		return
	}
	if err := s.db.SetJoinRequestStatus(groupID, targetID, models.JoinStatusRejected); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			s.respondSimple(sess, protocol.StatusNoPendingRequest)
			return
		}
		s.log.Error().Err(err).Msg("reject join request failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	s.notifyUser(targetID, models.Notification{
		Type:    models.NotifyJoinRejected,
		GroupID: groupID,
		Sender:  sess.Username,
		Message: cmd.GroupName,
	})
	s.respond(sess, protocol.StatusMsgOk, "Join request from "+cmd.Target+" rejected")
}

func (s *Server) handleListJoinRequests(sess *Session, cmd *protocol.Command) {
	groupID, ok := s.resolveGroup(sess, cmd.GroupName)
	if !ok {
		return
	}
	if !s.requireOwner(sess, groupID) {
		return
	}
	reqs, err := s.db.ListJoinRequests(groupID)
	if err != nil {
		s.log.Error().Err(err).Msg("list join requests failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	if len(reqs) == 0 {
		s.respond(sess, protocol.StatusMsgOk, "No pending join requests")
		return
	}
	names := make([]string, 0, len(reqs))
	for _, r := range reqs {
		names = append(names, r.Username)
	}
	s.respond(sess, protocol.StatusMsgOk, strings.Join(names, ","))
}

func (s *Server) handleGroupLeave(sess *Session, cmd *protocol.Command) {
	groupID, ok := s.resolveGroup(sess, cmd.GroupName)
	if !ok {
		return
	}
	if !s.requireMember(sess, groupID) {
		return
	}
	ownerID, err := s.db.GroupOwnerID(groupID)
	if err != nil {
		s.log.Error().Err(err).Msg("owner lookup failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	// The owner cannot walk away from their own group.
	if ownerID == sess.UserID {
		s.respondSimple(sess, protocol.StatusNotGroupOwner)
		return
	}
	if err := s.db.RemoveGroupMember(groupID, sess.UserID); err != nil {
		s.log.Error().Err(err).Msg("remove member failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	s.respond(sess, protocol.StatusGroupLeaveOk, "Left group "+cmd.GroupName)
}

func (s *Server) handleGroupKick(sess *Session, cmd *protocol.Command) {
	groupID, ok := s.resolveGroup(sess, cmd.GroupName)
	if !ok {
		return
	}
	if cmd.Target == "" {
		s.respond(sess, protocol.StatusUndefinedError, "Target username required")
		return
	}
	targetID, err := s.db.UserIDByName(cmd.Target)
	if errors.Is(err, db.ErrNoRows) {
		s.respondSimple(sess, protocol.StatusUserNotFound)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("user lookup failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	ownerID, err := s.db.GroupOwnerID(groupID)
	if err != nil {
		s.log.Error().Err(err).Msg("owner lookup failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	// The owner is untouchable no matter who asks.
	if targetID == ownerID {
		s.respondSimple(sess, protocol.StatusCannotKickOwner)
		return
	}
	if ownerID != sess.UserID {
		s.respondSimple(sess, protocol.StatusNotGroupOwner)
		return
	}
	if err := s.db.RemoveGroupMember(groupID, targetID); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			s.respondSimple(sess, protocol.StatusNotInGroup)
			return
		}
		s.log.Error().Err(err).Msg("kick member failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	s.notifyUser(targetID, models.Notification{
		Type:    models.NotifyGroupKick,
		GroupID: groupID,
		Sender:  sess.Username,
		Message: cmd.GroupName,
	})
	s.respond(sess, protocol.StatusGroupKickOk, cmd.Target+" kicked from group "+cmd.GroupName)
}

func (s *Server) handleGroupMsg(sess *Session, cmd *protocol.Command) {
	if cmd.Message == "" {
		s.respond(sess, protocol.StatusUndefinedError, "Message text required")
		return
	}
	groupID, ok := s.resolveGroup(sess, cmd.GroupName)
	if !ok {
		return
	}
	if !s.requireMember(sess, groupID) {
		return
	}

	msgID, err := s.db.SaveGroupMessage(sess.UserID, groupID, cmd.Message)
	if err != nil {
		s.log.Error().Err(err).Msg("save group message failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	memberIDs, err := s.db.GroupMemberIDs(groupID)
	if err != nil {
		s.log.Error().Err(err).Msg("list members failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}

	line := fmt.Sprintf("GROUP_MSG %s %s: %s", cmd.GroupName, sess.Username, cmd.Message)
	for _, memberID := range memberIDs {
		if memberID == sess.UserID {
			continue
		}
		// An offline member catches up through GROUP_OFFLINE_MSG; only
		// live pushes count as read.
		if s.pushToUser(memberID, protocol.StatusGroupMsgOk, line) {
			metrics.GroupFanoutTotal.Inc()
			if err := s.db.MarkMessageRead(msgID, memberID); err != nil {
				s.log.Error().Err(err).Msg("mark read failed")
			}
		}
	}
	s.respond(sess, protocol.StatusGroupMsgOk, "Message sent to group "+cmd.GroupName)
}

func (s *Server) handleGroupOfflineMsg(sess *Session, cmd *protocol.Command) {
	groupID, ok := s.resolveGroup(sess, cmd.GroupName)
	if !ok {
		return
	}
	if !s.requireMember(sess, groupID) {
		return
	}
	msgs, err := s.db.UnreadGroupMessages(groupID, sess.UserID)
	if err != nil {
		s.log.Error().Err(err).Msg("list unread group messages failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	for _, m := range msgs {
		s.respond(sess, protocol.StatusGroupMsgOk,
			fmt.Sprintf("GROUP_MSG %s %s: %s", cmd.GroupName, m.Sender, m.Content))
		if err := s.db.MarkMessageRead(m.ID, sess.UserID); err != nil {
			s.log.Error().Err(err).Msg("mark read failed")
		}
	}
	s.respond(sess, protocol.StatusOfflineMsgOk, fmt.Sprintf("%d offline message(s)", len(msgs)))
}
