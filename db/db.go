package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Sentinel errors the handlers translate into wire status codes.
var (
	ErrNoRows         = errors.New("db: no rows")
	ErrUsernameTaken  = errors.New("db: username already taken")
	ErrWrongPassword  = errors.New("db: wrong password")
	ErrGroupExists    = errors.New("db: group already exists")
	ErrRequestPending = errors.New("db: request already pending")
)

// DB wraps the SQLite handle and owns all SQL in the process.
type DB struct {
	conn *sql.DB
}

// New opens (creating if needed) the database at path and applies the schema.
func New(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite does not tolerate concurrent writers on one connection pool
	// the way server databases do.
	conn.SetMaxOpenConns(1)

	d := &DB{conn: conn}
	if err := d.applySchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) applySchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			is_online INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS friends (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			friend_id INTEGER NOT NULL REFERENCES users(id),
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, friend_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS friends_pair_idx
			ON friends(MIN(user_id, friend_id), MAX(user_id, friend_id))`,
		`CREATE TABLE IF NOT EXISTS groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_name TEXT UNIQUE NOT NULL,
			creator_id INTEGER NOT NULL REFERENCES users(id),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id INTEGER NOT NULL REFERENCES groups(id),
			user_id INTEGER NOT NULL REFERENCES users(id),
			role TEXT NOT NULL DEFAULT 'member',
			joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(group_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS group_join_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id INTEGER NOT NULL REFERENCES groups(id),
			user_id INTEGER NOT NULL REFERENCES users(id),
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS join_request_user_idx
			ON group_join_requests(group_id, user_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender_id INTEGER NOT NULL REFERENCES users(id),
			receiver_id INTEGER REFERENCES users(id),
			group_id INTEGER REFERENCES groups(id),
			content TEXT NOT NULL,
			is_delivered INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS message_reads (
			message_id INTEGER NOT NULL REFERENCES messages(id),
			user_id INTEGER NOT NULL REFERENCES users(id),
			UNIQUE(message_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS offline_notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			notification_type TEXT NOT NULL,
			group_id INTEGER,
			sender_username TEXT,
			message TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	// Everyone is offline after a restart.
	if _, err := d.conn.Exec(`UPDATE users SET is_online = 0`); err != nil {
		return fmt.Errorf("reset online flags: %w", err)
	}
	return nil
}
