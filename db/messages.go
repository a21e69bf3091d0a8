package db

import (
	"fmt"

	"chatd/models"
)

// SaveDirectMessage stores a direct message. Delivered marks whether the
// recipient got it live or it waits for the next login.
func (d *DB) SaveDirectMessage(senderID, receiverID int64, content string, delivered bool) (int64, error) {
	flag := 0
	if delivered {
		flag = 1
	}
	res, err := d.conn.Exec(
		`INSERT INTO messages (sender_id, receiver_id, content, is_delivered)
		 VALUES (?, ?, ?, ?)`,
		senderID, receiverID, content, flag)
	if err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}
	return res.LastInsertId()
}

// UndeliveredMessages returns the stored direct messages waiting for a
// receiver, oldest first. A nonzero senderID restricts to one sender.
func (d *DB) UndeliveredMessages(receiverID, senderID int64) ([]models.Message, error) {
	query := `SELECT m.id, m.sender_id, u.username, m.content, m.created_at
	          FROM messages m JOIN users u ON u.id = m.sender_id
	          WHERE m.receiver_id = ? AND m.is_delivered = 0`
	args := []any{receiverID}
	if senderID != 0 {
		query += ` AND m.sender_id = ?`
		args = append(args, senderID)
	}
	query += ` ORDER BY m.created_at, m.id`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list undelivered: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		m.ReceiverID = receiverID
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkMessagesDelivered flags the given messages as handed to the receiver.
func (d *DB) MarkMessagesDelivered(ids []int64) error {
	for _, id := range ids {
		if _, err := d.conn.Exec(
			`UPDATE messages SET is_delivered = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
	}
	return nil
}

// SaveGroupMessage stores a group message for later catch-up reads.
func (d *DB) SaveGroupMessage(senderID, groupID int64, content string) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO messages (sender_id, group_id, content, is_delivered)
		 VALUES (?, ?, ?, 1)`,
		senderID, groupID, content)
	if err != nil {
		return 0, fmt.Errorf("save group message: %w", err)
	}
	return res.LastInsertId()
}

// MarkMessageRead records that a user has seen a group message. Repeated
// marks are ignored.
func (d *DB) MarkMessageRead(messageID, userID int64) error {
	_, err := d.conn.Exec(
		`INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`,
		messageID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// UnreadGroupMessages returns group messages the user has not read yet,
// excluding their own, oldest first.
func (d *DB) UnreadGroupMessages(groupID, userID int64) ([]models.Message, error) {
	rows, err := d.conn.Query(
		`SELECT m.id, m.sender_id, u.username, m.content, m.created_at
		 FROM messages m JOIN users u ON u.id = m.sender_id
		 WHERE m.group_id = ? AND m.sender_id != ?
		   AND NOT EXISTS (
		     SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?
		   )
		 ORDER BY m.created_at, m.id`,
		groupID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list unread group messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		m.GroupID = groupID
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
