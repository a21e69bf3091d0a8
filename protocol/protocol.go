package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	// Delimiter terminates every request and response.
	Delimiter = "\r\n"

	// MaxMessageLength bounds a message body, including the terminator byte
	// budget inherited from the wire format.
	MaxMessageLength  = 4096
	MaxUsernameLength = 50
	MaxPasswordLength = 100

	// BufferCapacity bounds the per-connection receive accumulator.
	BufferCapacity = MaxMessageLength * 2
)

var ErrBufferOverflow = errors.New("protocol: receive buffer overflow")

// Buffer accumulates raw bytes from a connection and yields complete
// delimiter-terminated frames. One Read may carry zero, one or many frames;
// any trailing partial frame stays buffered for the next Append.
type Buffer struct {
	data []byte
}

// Append adds raw bytes to the buffer. It fails with ErrBufferOverflow when
// the data would exceed BufferCapacity, so a peer that never sends the
// delimiter cannot grow the buffer without bound.
func (b *Buffer) Append(p []byte) error {
	if len(b.data)+len(p) >= BufferCapacity {
		return ErrBufferOverflow
	}
	b.data = append(b.data, p...)
	return nil
}

// Extract removes and returns the first complete frame, without its
// delimiter. It reports false when no complete frame is buffered.
func (b *Buffer) Extract() (string, bool) {
	i := bytes.Index(b.data, []byte(Delimiter))
	if i < 0 {
		return "", false
	}
	frame := string(b.data[:i])
	b.data = append(b.data[:0], b.data[i+len(Delimiter):]...)
	return frame, true
}

// Len returns the number of buffered bytes awaiting a delimiter.
func (b *Buffer) Len() int {
	return len(b.data)
}

// CommandKind identifies one decoded client request.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdRegister
	CmdLogin
	CmdLogout
	CmdFriendReq
	CmdFriendAccept
	CmdFriendDecline
	CmdFriendRemove
	CmdFriendList
	CmdFriendPending
	CmdMsg
	CmdGetOfflineMsg
	CmdGroupCreate
	CmdGroupInvite
	CmdGroupJoin
	CmdGroupLeave
	CmdGroupKick
	CmdGroupMsg
	CmdGroupApprove
	CmdGroupReject
	CmdListJoinRequests
	CmdGroupOfflineMsg
)

var kindNames = map[string]CommandKind{
	"REGISTER":           CmdRegister,
	"LOGIN":              CmdLogin,
	"LOGOUT":             CmdLogout,
	"FRIEND_REQ":         CmdFriendReq,
	"FRIEND_ACCEPT":      CmdFriendAccept,
	"FRIEND_DECLINE":     CmdFriendDecline,
	"FRIEND_REMOVE":      CmdFriendRemove,
	"FRIEND_LIST":        CmdFriendList,
	"FRIEND_PENDING":     CmdFriendPending,
	"MSG":                CmdMsg,
	"GET_OFFLINE_MSG":    CmdGetOfflineMsg,
	"GROUP_CREATE":       CmdGroupCreate,
	"GROUP_INVITE":       CmdGroupInvite,
	"GROUP_JOIN":         CmdGroupJoin,
	"GROUP_LEAVE":        CmdGroupLeave,
	"GROUP_KICK":         CmdGroupKick,
	"GROUP_MSG":          CmdGroupMsg,
	"GROUP_APPROVE":      CmdGroupApprove,
	"GROUP_REJECT":       CmdGroupReject,
	"LIST_JOIN_REQUESTS": CmdListJoinRequests,
	"GROUP_OFFLINE_MSG":  CmdGroupOfflineMsg,
	// Older clients use the long form of the group catch-up command.
	"GROUP_SEND_OFFLINE_MSG": CmdGroupOfflineMsg,
}

func (k CommandKind) String() string {
	switch k {
	case CmdRegister:
		return "REGISTER"
	case CmdLogin:
		return "LOGIN"
	case CmdLogout:
		return "LOGOUT"
	case CmdFriendReq:
		return "FRIEND_REQ"
	case CmdFriendAccept:
		return "FRIEND_ACCEPT"
	case CmdFriendDecline:
		return "FRIEND_DECLINE"
	case CmdFriendRemove:
		return "FRIEND_REMOVE"
	case CmdFriendList:
		return "FRIEND_LIST"
	case CmdFriendPending:
		return "FRIEND_PENDING"
	case CmdMsg:
		return "MSG"
	case CmdGetOfflineMsg:
		return "GET_OFFLINE_MSG"
	case CmdGroupCreate:
		return "GROUP_CREATE"
	case CmdGroupInvite:
		return "GROUP_INVITE"
	case CmdGroupJoin:
		return "GROUP_JOIN"
	case CmdGroupLeave:
		return "GROUP_LEAVE"
	case CmdGroupKick:
		return "GROUP_KICK"
	case CmdGroupMsg:
		return "GROUP_MSG"
	case CmdGroupApprove:
		return "GROUP_APPROVE"
	case CmdGroupReject:
		return "GROUP_REJECT"
	case CmdListJoinRequests:
		return "LIST_JOIN_REQUESTS"
	case CmdGroupOfflineMsg:
		return "GROUP_OFFLINE_MSG"
	}
	return "UNKNOWN"
}

// Command is one decoded client request. Which fields are populated depends
// on the kind; unused fields stay empty.
type Command struct {
	Kind      CommandKind
	Username  string
	Password  string
	Target    string
	GroupName string
	Message   string
}

// FieldError reports an oversized field detected at parse time, before any
// handler runs. Code is the status code to answer with.
type FieldError struct {
	Code   int
	Reason string
}

func (e *FieldError) Error() string {
	return e.Reason
}

// Parse decodes one extracted frame into a Command. Unknown leading keywords
// yield CmdUnknown. Oversized username/password/message fields are reported
// as *FieldError; the frame is never silently truncated.
func Parse(raw string) (*Command, error) {
	keyword, rest := nextToken(raw)
	cmd := &Command{Kind: kindNames[keyword]}

	switch cmd.Kind {
	case CmdRegister, CmdLogin:
		cmd.Username, rest = nextToken(rest)
		cmd.Password, _ = nextToken(rest)
		if len(cmd.Username) > MaxUsernameLength {
			return nil, &FieldError{StatusInvalidUsername, "username too long"}
		}
		if len(cmd.Password) > MaxPasswordLength {
			return nil, &FieldError{StatusInvalidPassword, "password too long"}
		}

	case CmdFriendReq, CmdFriendAccept, CmdFriendDecline, CmdFriendRemove, CmdGetOfflineMsg:
		cmd.Target, _ = nextToken(rest)
		if len(cmd.Target) > MaxUsernameLength {
			return nil, &FieldError{StatusInvalidUsername, "username too long"}
		}

	case CmdMsg:
		cmd.Target, rest = nextToken(rest)
		cmd.Message = strings.TrimLeft(rest, " ")
		if len(cmd.Target) > MaxUsernameLength {
			return nil, &FieldError{StatusInvalidUsername, "username too long"}
		}
		if len(cmd.Message) > MaxMessageLength-1 {
			return nil, &FieldError{StatusMessageTooLong, "message too long"}
		}

	case CmdGroupCreate, CmdGroupJoin, CmdGroupLeave, CmdListJoinRequests, CmdGroupOfflineMsg:
		cmd.GroupName, _ = nextToken(rest)

	case CmdGroupInvite, CmdGroupKick, CmdGroupApprove, CmdGroupReject:
		cmd.GroupName, rest = nextToken(rest)
		cmd.Target, _ = nextToken(rest)
		if len(cmd.Target) > MaxUsernameLength {
			return nil, &FieldError{StatusInvalidUsername, "username too long"}
		}

	case CmdGroupMsg:
		cmd.GroupName, rest = nextToken(rest)
		cmd.Message = strings.TrimLeft(rest, " ")
		if len(cmd.Message) > MaxMessageLength-1 {
			return nil, &FieldError{StatusMessageTooLong, "message too long"}
		}
	}

	return cmd, nil
}

// nextToken returns the first space-separated token of s and the remainder.
// Leading separators are skipped, so repeated spaces do not yield empty
// tokens.
func nextToken(s string) (string, string) {
	s = strings.TrimLeft(s, " ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// Render formats a response line: "<code> <body>\r\n".
func Render(code int, body string) []byte {
	if body != "" {
		return []byte(fmt.Sprintf("%d %s%s", code, body, Delimiter))
	}
	return RenderSimple(code)
}

// RenderSimple formats a bare status response: "<code> \r\n".
func RenderSimple(code int) []byte {
	return []byte(fmt.Sprintf("%d %s", code, Delimiter))
}
