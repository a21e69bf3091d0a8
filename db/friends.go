package db

import (
	"database/sql"
	"errors"
	"fmt"

	"chatd/models"
)

// FriendshipStatus returns the status of the edge between two users in
// either direction, or ErrNoRows when no edge exists.
func (d *DB) FriendshipStatus(a, b int64) (string, error) {
	var status string
	err := d.conn.QueryRow(
		`SELECT status FROM friends
		 WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
		a, b, b, a).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRows
	}
	if err != nil {
		return "", fmt.Errorf("friendship status: %w", err)
	}
	return status, nil
}

// CreateFriendRequest records a pending request from one user to another.
// The unique pair index makes the insert the authority on uniqueness: when
// an edge already exists in either direction, even one racing in from a
// concurrent reverse request, the insert loses with ErrRequestPending.
func (d *DB) CreateFriendRequest(from, to int64) error {
	res, err := d.conn.Exec(
		`INSERT OR IGNORE INTO friends (user_id, friend_id, status) VALUES (?, ?, 'pending')`,
		from, to)
	if err != nil {
		return fmt.Errorf("create friend request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRequestPending
	}
	return nil
}

// AcceptFriendRequest flips the pending edge from one user to another into
// an accepted friendship. ErrNoRows when no such pending request exists.
func (d *DB) AcceptFriendRequest(from, to int64) error {
	res, err := d.conn.Exec(
		`UPDATE friends SET status = 'accepted'
		 WHERE user_id = ? AND friend_id = ? AND status = 'pending'`,
		from, to)
	if err != nil {
		return fmt.Errorf("accept friend request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

// DeleteFriendRequest removes a pending request from one user to another.
// ErrNoRows when no such pending request exists.
func (d *DB) DeleteFriendRequest(from, to int64) error {
	res, err := d.conn.Exec(
		`DELETE FROM friends
		 WHERE user_id = ? AND friend_id = ? AND status = 'pending'`,
		from, to)
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

// RemoveFriendship deletes an accepted edge between two users, whichever
// direction it was stored in. ErrNoRows when they are not friends.
func (d *DB) RemoveFriendship(a, b int64) error {
	res, err := d.conn.Exec(
		`DELETE FROM friends
		 WHERE ((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))
		   AND status = 'accepted'`,
		a, b, b, a)
	if err != nil {
		return fmt.Errorf("remove friendship: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

// ListFriends returns the accepted friends of a user with their presence.
func (d *DB) ListFriends(userID int64) ([]models.FriendEntry, error) {
	rows, err := d.conn.Query(
		`SELECT u.username, u.is_online FROM friends f
		 JOIN users u ON u.id = CASE WHEN f.user_id = ? THEN f.friend_id ELSE f.user_id END
		 WHERE (f.user_id = ? OR f.friend_id = ?) AND f.status = 'accepted'
		 ORDER BY u.username`,
		userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var friends []models.FriendEntry
	for rows.Next() {
		var entry models.FriendEntry
		if err := rows.Scan(&entry.Username, &entry.Online); err != nil {
			return nil, err
		}
		friends = append(friends, entry)
	}
	return friends, rows.Err()
}

// ListPendingRequests returns usernames with a pending request addressed to
// the given user.
func (d *DB) ListPendingRequests(userID int64) ([]string, error) {
	rows, err := d.conn.Query(
		`SELECT u.username FROM friends f
		 JOIN users u ON u.id = f.user_id
		 WHERE f.friend_id = ? AND f.status = 'pending'
		 ORDER BY f.created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
