package protocol

// Numeric status codes sent on the wire. The values are fixed by the
// protocol and must not be renumbered.
const (
	StatusWelcome = 100

	// Success (1xx)
	StatusRegisterOk      = 101
	StatusLoginOk         = 102
	StatusLogoutOk        = 103
	StatusFriendReqOk     = 104
	StatusFriendAcceptOk  = 105
	StatusFriendDeclineOk = 106
	StatusFriendRemoveOk  = 107
	StatusFriendListOk    = 108
	StatusMsgOk           = 109
	StatusGroupCreateOk   = 110
	StatusGroupInviteOk   = 111
	StatusGroupJoinOk     = 112
	StatusGroupLeaveOk    = 113
	StatusGroupKickOk     = 114
	StatusGroupMsgOk      = 115
	StatusOfflineMsgOk    = 116
	StatusFriendPendingOk = 117

	// Client errors (2xx)
	StatusUsernameExists = 201
	StatusWrongPassword  = 202

	// StatusNewMessage marks an incoming message push. It shares the 201
	// value with StatusUsernameExists; clients tell them apart by the
	// command they last sent.
	StatusNewMessage = 201

	// Auth/session errors (3xx)
	StatusInvalidUsername = 301
	StatusInvalidPassword = 302
	StatusUserNotFound    = 303
	StatusAlreadyLoggedIn = 304
	StatusNotLoggedIn     = 305
	StatusAlreadyFriend   = 306

	// Database/server errors (4xx)
	StatusDatabaseError    = 400
	StatusRequestPending   = 401
	StatusNoPendingRequest = 402
	StatusNotFriend        = 403
	StatusUserOffline      = 413
	StatusMessageTooLong   = 414
	StatusGroupExists      = 415
	StatusInvalidGroupID   = 416
	StatusNotGroupOwner    = 417
	StatusAlreadyInGroup   = 418
	StatusGroupNotFound    = 419
	StatusInviteRequired   = 420
	StatusNotInGroup       = 421
	StatusCannotKickOwner  = 422

	// System errors (5xx)
	StatusUndefinedError = 500
)
