package server

import (
	"errors"
	"fmt"

	"chatd/db"
	"chatd/metrics"
	"chatd/models"
	"chatd/protocol"
)

func validUsername(name string) bool {
	if name == "" || len(name) > protocol.MaxUsernameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return false
		}
	}
	return true
}

func (s *Server) handleRegister(sess *Session, cmd *protocol.Command) {
	if sess.Authenticated {
		s.respondSimple(sess, protocol.StatusAlreadyLoggedIn)
		return
	}
	if cmd.Username == "" || cmd.Password == "" {
		s.respond(sess, protocol.StatusUndefinedError, "Username and password required")
		return
	}
	if !validUsername(cmd.Username) {
		s.respondSimple(sess, protocol.StatusInvalidUsername)
		return
	}
	if len(cmd.Password) > protocol.MaxPasswordLength {
		s.respondSimple(sess, protocol.StatusInvalidPassword)
		return
	}

	if _, err := s.db.CreateUser(cmd.Username, cmd.Password); err != nil {
		if errors.Is(err, db.ErrUsernameTaken) {
			s.respondSimple(sess, protocol.StatusUsernameExists)
			return
		}
		s.log.Error().Err(err).Msg("register failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	s.log.Info().Str("user", cmd.Username).Msg("registered")
	s.respond(sess, protocol.StatusRegisterOk, "Registration successful for "+cmd.Username)
}

func (s *Server) handleLogin(sess *Session, cmd *protocol.Command) {
	if sess.Authenticated {
		s.respondSimple(sess, protocol.StatusAlreadyLoggedIn)
		return
	}
	if cmd.Username == "" || cmd.Password == "" {
		s.respond(sess, protocol.StatusUndefinedError, "Username and password required")
		return
	}

	userID, err := s.db.AuthenticateUser(cmd.Username, cmd.Password)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNoRows):
			s.respondSimple(sess, protocol.StatusUserNotFound)
		case errors.Is(err, db.ErrWrongPassword):
			s.respondSimple(sess, protocol.StatusWrongPassword)
		default:
			s.log.Error().Err(err).Msg("login failed")
			s.respondSimple(sess, protocol.StatusDatabaseError)
		}
		return
	}

	s.mu.Lock()
	if _, online := s.users[userID]; online {
		s.mu.Unlock()
		s.respondSimple(sess, protocol.StatusAlreadyLoggedIn)
		return
	}
	sess.Authenticated = true
	sess.UserID = userID
	sess.Username = cmd.Username
	s.users[userID] = sess
	s.mu.Unlock()
	metrics.SessionsAuthenticated.Inc()

	if err := s.db.SetUserOnline(userID, true); err != nil {
		s.log.Error().Err(err).Int64("user", userID).Msg("mark online failed")
	}

	// Everything that happened while the user was away goes out before
	// the login acknowledgement.
	s.replayNotifications(sess)
	s.deliverPending(sess, 0)

	s.log.Info().Str("user", cmd.Username).Msg("logged in")
	s.respond(sess, protocol.StatusLoginOk, "Welcome "+cmd.Username)
}

func (s *Server) handleLogout(sess *Session) {
	s.mu.Lock()
	delete(s.users, sess.UserID)
	sess.Authenticated = false
	userID := sess.UserID
	username := sess.Username
	sess.UserID = 0
	sess.Username = ""
	s.mu.Unlock()
	metrics.SessionsAuthenticated.Dec()

	if err := s.db.SetUserOnline(userID, false); err != nil {
		s.log.Error().Err(err).Int64("user", userID).Msg("mark offline failed")
	}
	s.log.Info().Str("user", username).Msg("logged out")
	s.respond(sess, protocol.StatusLogoutOk, "Logout successful")
}

// replayNotifications pushes queued events to a freshly logged-in session
// and deletes each one after it has been written.
func (s *Server) replayNotifications(sess *Session) {
	items, err := s.db.PendingNotifications(sess.UserID)
	if err != nil {
		s.log.Error().Err(err).Int64("user", sess.UserID).Msg("load notifications failed")
		return
	}
	for _, n := range items {
		code, body := renderNotification(n)
		s.respond(sess, code, body)
		if err := s.db.DeleteNotification(n.ID); err != nil {
			s.log.Error().Err(err).Int64("notification", n.ID).Msg("delete notification failed")
		}
	}
}

// renderNotification maps a queued event to the wire line its live push
// would have used.
func renderNotification(n models.Notification) (int, string) {
	switch n.Type {
	case models.NotifyGroupInvite:
		return protocol.StatusGroupInviteOk,
			fmt.Sprintf("You were added to group %s by %s", n.Message, n.Sender)
	case models.NotifyGroupKick:
		return protocol.StatusGroupKickOk,
			fmt.Sprintf("You were kicked from group %s by %s", n.Message, n.Sender)
	case models.NotifyJoinApproved:
		return protocol.StatusGroupJoinOk,
			fmt.Sprintf("Your request to join group %s was approved", n.Message)
	case models.NotifyJoinRejected:
		return protocol.StatusGroupJoinOk,
			fmt.Sprintf("Your request to join group %s was rejected", n.Message)
	case models.NotifyJoinRequested:
		return protocol.StatusGroupJoinOk,
			fmt.Sprintf("%s requested to join group %s", n.Sender, n.Message)
	}
	return protocol.StatusUndefinedError, n.Message
}
