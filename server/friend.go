package server

import (
	"errors"
	"strings"

	"chatd/db"
	"chatd/models"
	"chatd/protocol"
)

// resolveTarget maps a target username to its id, answering the appropriate
// status itself on failure. Second return is false when a response was
// already sent.
func (s *Server) resolveTarget(sess *Session, target string) (int64, bool) {
	if target == "" {
		s.respond(sess, protocol.StatusUndefinedError, "Target username required")
		return 0, false
	}
	id, err := s.db.UserIDByName(target)
	if errors.Is(err, db.ErrNoRows) {
		s.respondSimple(sess, protocol.StatusUserNotFound)
		return 0, false
	}
	if err != nil {
		s.log.Error().Err(err).Msg("user lookup failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return 0, false
	}
	if id == sess.UserID {
		s.respond(sess, protocol.StatusUndefinedError, "Cannot target yourself")
		return 0, false
	}
	return id, true
}

func (s *Server) handleFriendReq(sess *Session, cmd *protocol.Command) {
	targetID, ok := s.resolveTarget(sess, cmd.Target)
	if !ok {
		return
	}

	status, err := s.db.FriendshipStatus(sess.UserID, targetID)
	switch {
	case err == nil && status == models.FriendStatusAccepted:
		s.respondSimple(sess, protocol.StatusAlreadyFriend)
		return
	case err == nil && status == models.FriendStatusPending:
		s.respondSimple(sess, protocol.StatusRequestPending)
		return
	case err != nil && !errors.Is(err, db.ErrNoRows):
		s.log.Error().Err(err).Msg("friendship lookup failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}

	if err := s.db.CreateFriendRequest(sess.UserID, targetID); err != nil {
		// A reverse-direction request can slip in between the status
		// check and the insert; the pair index reports it here.
		if errors.Is(err, db.ErrRequestPending) {
			s.respondSimple(sess, protocol.StatusRequestPending)
			return
		}
		s.log.Error().Err(err).Msg("create friend request failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	s.pushToUser(targetID, protocol.StatusFriendReqOk, "Friend request from "+sess.Username)
	s.respond(sess, protocol.StatusFriendReqOk, "Friend request sent to "+cmd.Target)
}

func (s *Server) handleFriendAccept(sess *Session, cmd *protocol.Command) {
	fromID, ok := s.resolveTarget(sess, cmd.Target)
	if !ok {
		return
	}

	if err := s.db.AcceptFriendRequest(fromID, sess.UserID); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			s.respondSimple(sess, protocol.StatusNoPendingRequest)
			return
		}
		s.log.Error().Err(err).Msg("accept friend request failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	s.pushToUser(fromID, protocol.StatusFriendAcceptOk, sess.Username+" accepted your friend request")
	s.respond(sess, protocol.StatusFriendAcceptOk, "Friend request from "+cmd.Target+" accepted")
}

func (s *Server) handleFriendDecline(sess *Session, cmd *protocol.Command) {
	fromID, ok := s.resolveTarget(sess, cmd.Target)
	if !ok {
		return
	}

	if err := s.db.DeleteFriendRequest(fromID, sess.UserID); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			s.respondSimple(sess, protocol.StatusNoPendingRequest)
			return
		}
		s.log.Error().Err(err).Msg("decline friend request failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	s.respond(sess, protocol.StatusFriendDeclineOk, "Friend request from "+cmd.Target+" declined")
}

func (s *Server) handleFriendRemove(sess *Session, cmd *protocol.Command) {
	targetID, ok := s.resolveTarget(sess, cmd.Target)
	if !ok {
		return
	}

	if err := s.db.RemoveFriendship(sess.UserID, targetID); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			s.respondSimple(sess, protocol.StatusNotFriend)
			return
		}
		s.log.Error().Err(err).Msg("remove friendship failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	s.respond(sess, protocol.StatusFriendRemoveOk, cmd.Target+" removed from friends")
}

func (s *Server) handleFriendList(sess *Session) {
	friends, err := s.db.ListFriends(sess.UserID)
	if err != nil {
		s.log.Error().Err(err).Msg("list friends failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	if len(friends) == 0 {
		s.respond(sess, protocol.StatusFriendListOk, "You don't have any friends yet")
		return
	}
	parts := make([]string, 0, len(friends))
	for _, f := range friends {
		state := "off"
		if f.Online {
			state = "on"
		}
		parts = append(parts, f.Username+":"+state)
	}
	s.respond(sess, protocol.StatusFriendListOk, strings.Join(parts, ","))
}

func (s *Server) handleFriendPending(sess *Session) {
	names, err := s.db.ListPendingRequests(sess.UserID)
	if err != nil {
		s.log.Error().Err(err).Msg("list pending requests failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	if len(names) == 0 {
		s.respond(sess, protocol.StatusFriendPendingOk, "No pending friend requests")
		return
	}
	s.respond(sess, protocol.StatusFriendPendingOk, strings.Join(names, ","))
}
