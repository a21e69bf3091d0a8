package db

import (
	"database/sql"
	"errors"
	"fmt"

	"chatd/models"
)

// CreateGroup creates a group and enrolls the creator as owner in one
// transaction. ErrGroupExists when the name is taken.
func (d *DB) CreateGroup(name string, creatorID int64) (int64, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("create group: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT OR IGNORE INTO groups (group_name, creator_id) VALUES (?, ?)`,
		name, creatorID)
	if err != nil {
		return 0, fmt.Errorf("create group: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrGroupExists
	}
	groupID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(
		`INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)`,
		groupID, creatorID, models.RoleOwner); err != nil {
		return 0, fmt.Errorf("enroll owner: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return groupID, nil
}

// GroupIDByName resolves a group name. ErrNoRows when it does not exist.
func (d *DB) GroupIDByName(name string) (int64, error) {
	var id int64
	err := d.conn.QueryRow(`SELECT id FROM groups WHERE group_name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoRows
	}
	if err != nil {
		return 0, fmt.Errorf("lookup group: %w", err)
	}
	return id, nil
}

// GroupOwnerID returns the creator of a group.
func (d *DB) GroupOwnerID(groupID int64) (int64, error) {
	var id int64
	err := d.conn.QueryRow(`SELECT creator_id FROM groups WHERE id = ?`, groupID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoRows
	}
	if err != nil {
		return 0, fmt.Errorf("lookup group owner: %w", err)
	}
	return id, nil
}

// IsGroupMember reports whether the user belongs to the group.
func (d *DB) IsGroupMember(groupID, userID int64) (bool, error) {
	var one int
	err := d.conn.QueryRow(
		`SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

// AddGroupMember enrolls a user as a plain member.
func (d *DB) AddGroupMember(groupID, userID int64) error {
	_, err := d.conn.Exec(
		`INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)`,
		groupID, userID, models.RoleMember)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveGroupMember drops a membership. ErrNoRows when the user was not a
// member.
func (d *DB) RemoveGroupMember(groupID, userID int64) error {
	res, err := d.conn.Exec(
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
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

// GroupMemberIDs returns the user ids of all members of a group.
func (d *DB) GroupMemberIDs(groupID int64) ([]int64, error) {
	rows, err := d.conn.Query(
		`SELECT user_id FROM group_members WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateJoinRequest records a pending join request in one transaction. A
// stale processed row for the same user is replaced; a still pending one
// yields ErrRequestPending.
func (d *DB) CreateJoinRequest(groupID, userID int64) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("create join request: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(
		`SELECT status FROM group_join_requests WHERE group_id = ? AND user_id = ?`,
		groupID, userID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("check join request: %w", err)
	case status == models.JoinStatusPending:
		return ErrRequestPending
	default:
		if _, err := tx.Exec(
			`DELETE FROM group_join_requests WHERE group_id = ? AND user_id = ?`,
			groupID, userID); err != nil {
			return fmt.Errorf("clear stale join request: %w", err)
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO group_join_requests (group_id, user_id) VALUES (?, ?)`,
		groupID, userID); err != nil {
		return fmt.Errorf("create join request: %w", err)
	}
	return tx.Commit()
}

// ApproveJoinRequest consumes a pending join request and enrolls the user
// in one transaction. ErrNoRows when no pending request exists.
func (d *DB) ApproveJoinRequest(groupID, userID int64) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("approve join request: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE group_join_requests SET status = 'approved'
		 WHERE group_id = ? AND user_id = ? AND status = 'pending'`,
		groupID, userID)
	if err != nil {
		return fmt.Errorf("approve join request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoRows
	}
	if _, err := tx.Exec(
		`INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)`,
		groupID, userID, models.RoleMember); err != nil {
		return fmt.Errorf("enroll member: %w", err)
	}
	return tx.Commit()
}

// SetJoinRequestStatus resolves a pending join request. ErrNoRows when no
// pending request exists for that user.
func (d *DB) SetJoinRequestStatus(groupID, userID int64, status string) error {
	res, err := d.conn.Exec(
		`UPDATE group_join_requests SET status = ?
		 WHERE group_id = ? AND user_id = ? AND status = 'pending'`,
		status, groupID, userID)
	if err != nil {
		return fmt.Errorf("resolve join request: %w", err)
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

// ListJoinRequests returns pending join requests for a group, oldest first.
func (d *DB) ListJoinRequests(groupID int64) ([]models.JoinRequest, error) {
	rows, err := d.conn.Query(
		`SELECT r.id, r.group_id, r.user_id, u.username, r.status, r.created_at
		 FROM group_join_requests r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.group_id = ? AND r.status = 'pending'
		 ORDER BY r.created_at`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("list join requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.JoinRequest
	for rows.Next() {
		var r models.JoinRequest
		if err := rows.Scan(&r.ID, &r.GroupID, &r.UserID, &r.Username, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}
