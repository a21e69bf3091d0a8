package db

import (
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CreateUser registers a new account, hashing the password with bcrypt.
// ErrUsernameTaken is returned when the name is already in use.
func (d *DB) CreateUser(username, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	res, err := d.conn.Exec(
		`INSERT OR IGNORE INTO users (username, password_hash) VALUES (?, ?)`,
		username, string(hash))
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrUsernameTaken
	}
	return res.LastInsertId()
}

// AuthenticateUser checks the credentials and returns the user id.
// ErrNoRows means no such user, ErrWrongPassword a bad password.
func (d *DB) AuthenticateUser(username, password string) (int64, error) {
	var id int64
	var hash string
	err := d.conn.QueryRow(
		`SELECT id, password_hash FROM users WHERE username = ?`,
		username).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoRows
	}
	if err != nil {
		return 0, fmt.Errorf("authenticate user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return 0, ErrWrongPassword
	}
	return id, nil
}

// UserIDByName resolves a username. ErrNoRows when the user does not exist.
func (d *DB) UserIDByName(username string) (int64, error) {
	var id int64
	err := d.conn.QueryRow(`SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoRows
	}
	if err != nil {
		return 0, fmt.Errorf("lookup user: %w", err)
	}
	return id, nil
}

// UsernameByID resolves a user id back to its name.
func (d *DB) UsernameByID(id int64) (string, error) {
	var name string
	err := d.conn.QueryRow(`SELECT username FROM users WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRows
	}
	if err != nil {
		return "", fmt.Errorf("lookup username: %w", err)
	}
	return name, nil
}

// SetUserOnline flips the presence flag shown in friend lists.
func (d *DB) SetUserOnline(id int64, online bool) error {
	flag := 0
	if online {
		flag = 1
	}
	_, err := d.conn.Exec(`UPDATE users SET is_online = ? WHERE id = ?`, flag, id)
	if err != nil {
		return fmt.Errorf("set online flag: %w", err)
	}
	return nil
}
