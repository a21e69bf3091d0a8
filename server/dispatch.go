package server

import (
	"chatd/metrics"
	"chatd/protocol"
)

// dispatch routes one parsed command to its handler. REGISTER and LOGIN are
// the only commands an anonymous session may run; everything else answers
// with the not-logged-in status before touching any handler.
func (s *Server) dispatch(sess *Session, cmd *protocol.Command) {
	metrics.CommandsTotal.WithLabelValues(cmd.Kind.String()).Inc()

	switch cmd.Kind {
	case protocol.CmdRegister:
		s.handleRegister(sess, cmd)
		return
	case protocol.CmdLogin:
		s.handleLogin(sess, cmd)
		return
	case protocol.CmdUnknown:
		s.respond(sess, protocol.StatusUndefinedError, "Unknown command")
		return
	}

	if !sess.Authenticated {
		s.respondSimple(sess, protocol.StatusNotLoggedIn)
		return
	}

	switch cmd.Kind {
	case protocol.CmdLogout:
		s.handleLogout(sess)
	case protocol.CmdFriendReq:
		s.handleFriendReq(sess, cmd)
	case protocol.CmdFriendAccept:
		s.handleFriendAccept(sess, cmd)
	case protocol.CmdFriendDecline:
		s.handleFriendDecline(sess, cmd)
	case protocol.CmdFriendRemove:
		s.handleFriendRemove(sess, cmd)
	case protocol.CmdFriendList:
		s.handleFriendList(sess)
	case protocol.CmdFriendPending:
		s.handleFriendPending(sess)
	case protocol.CmdMsg:
		s.handleMsg(sess, cmd)
	case protocol.CmdGetOfflineMsg:
		s.handleGetOfflineMsg(sess, cmd)
	case protocol.CmdGroupCreate:
		s.handleGroupCreate(sess, cmd)
	case protocol.CmdGroupInvite:
		s.handleGroupInvite(sess, cmd)
	case protocol.CmdGroupJoin:
		s.handleGroupJoin(sess, cmd)
	case protocol.CmdGroupLeave:
		s.handleGroupLeave(sess, cmd)
	case protocol.CmdGroupKick:
		s.handleGroupKick(sess, cmd)
	case protocol.CmdGroupMsg:
		s.handleGroupMsg(sess, cmd)
	case protocol.CmdGroupApprove:
		s.handleGroupApprove(sess, cmd)
	case protocol.CmdGroupReject:
		s.handleGroupReject(sess, cmd)
	case protocol.CmdListJoinRequests:
		s.handleListJoinRequests(sess, cmd)
	case protocol.CmdGroupOfflineMsg:
		s.handleGroupOfflineMsg(sess, cmd)
	}
}
