package server

import (
	"errors"
	"fmt"

	"chatd/db"
	"chatd/metrics"
	"chatd/models"
	"chatd/protocol"
)

func (s *Server) handleMsg(sess *Session, cmd *protocol.Command) {
	if cmd.Message == "" {
		s.respond(sess, protocol.StatusUndefinedError, "Message text required")
		return
	}
	targetID, ok := s.resolveTarget(sess, cmd.Target)
	if !ok {
		return
	}

	status, err := s.db.FriendshipStatus(sess.UserID, targetID)
	if errors.Is(err, db.ErrNoRows) || (err == nil && status != models.FriendStatusAccepted) {
		s.respondSimple(sess, protocol.StatusNotFriend)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("friendship lookup failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}

	msgID, err := s.db.SaveDirectMessage(sess.UserID, targetID, cmd.Message, false)
	if err != nil {
		s.log.Error().Err(err).Msg("save message failed")
		s.respondSimple(sess, protocol.StatusDatabaseError)
		return
	}
	// Delivered is flipped only after the push went out; a recipient who
	// vanishes mid-flight keeps the message in the offline queue.
	if s.pushToUser(targetID, protocol.StatusNewMessage,
		fmt.Sprintf("NEW_MESSAGE from %s: %s", sess.Username, cmd.Message)) {
		if err := s.db.MarkMessagesDelivered([]int64{msgID}); err != nil {
			s.log.Error().Err(err).Msg("mark delivered failed")
		}
		metrics.MessagesDeliveredTotal.WithLabelValues("realtime").Inc()
	}
	// The sender gets the same acknowledgement whether the recipient was
	// online or not; an undelivered copy waits for the next login.
	s.respond(sess, protocol.StatusMsgOk, "Message sent to "+cmd.Target)
}

// deliverPending pushes stored direct messages to a session and marks them
// delivered. A nonzero senderID restricts the batch to one sender. It
// returns the number of messages pushed.
func (s *Server) deliverPending(sess *Session, senderID int64) int {
	msgs, err := s.db.UndeliveredMessages(sess.UserID, senderID)
	if err != nil {
		s.log.Error().Err(err).Int64("user", sess.UserID).Msg("load pending messages failed")
		return 0
	}
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		s.respond(sess, protocol.StatusNewMessage,
			fmt.Sprintf("NEW_MESSAGE from %s: %s", m.Sender, m.Content))
		ids = append(ids, m.ID)
	}
	if len(ids) > 0 {
		if err := s.db.MarkMessagesDelivered(ids); err != nil {
			s.log.Error().Err(err).Msg("mark delivered failed")
		}
		metrics.MessagesDeliveredTotal.WithLabelValues("offline").Add(float64(len(ids)))
	}
	return len(msgs)
}

func (s *Server) handleGetOfflineMsg(sess *Session, cmd *protocol.Command) {
	var senderID int64
	if cmd.Target != "" {
		id, err := s.db.UserIDByName(cmd.Target)
		if errors.Is(err, db.ErrNoRows) {
			s.respondSimple(sess, protocol.StatusUserNotFound)
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("user lookup failed")
			s.respondSimple(sess, protocol.StatusDatabaseError)
			return
		}
		senderID = id
	}
	n := s.deliverPending(sess, senderID)
	s.respond(sess, protocol.StatusOfflineMsgOk, fmt.Sprintf("%d offline message(s)", n))
}
