package db

import (
	"fmt"

	"chatd/models"
)

// SaveNotification queues an event for a user who is offline.
func (d *DB) SaveNotification(n models.Notification) error {
	_, err := d.conn.Exec(
		`INSERT INTO offline_notifications (user_id, notification_type, group_id, sender_username, message)
		 VALUES (?, ?, ?, ?, ?)`,
		n.UserID, n.Type, n.GroupID, n.Sender, n.Message)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

// PendingNotifications returns a user's queued notifications, oldest first.
func (d *DB) PendingNotifications(userID int64) ([]models.Notification, error) {
	rows, err := d.conn.Query(
		`SELECT id, user_id, notification_type, COALESCE(group_id, 0),
		        COALESCE(sender_username, ''), COALESCE(message, ''), created_at
		 FROM offline_notifications WHERE user_id = ?
		 ORDER BY created_at, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var items []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.GroupID, &n.Sender, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// DeleteNotification removes a replayed notification.
func (d *DB) DeleteNotification(id int64) error {
	if _, err := d.conn.Exec(
		`DELETE FROM offline_notifications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}
