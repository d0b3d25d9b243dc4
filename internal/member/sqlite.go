package member

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSource reads session membership from the relational store the admin
// service manages. The relay only ever reads it; writes happen through the
// admin APIs, except for AddMember which seeding tools use.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the membership database.
func OpenSQLite(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open membership db %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chat_session_member (
		session_id INTEGER NOT NULL,
		user_id    INTEGER NOT NULL,
		PRIMARY KEY (session_id, user_id)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init membership schema: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

// SessionMembers lists the users belonging to sessionID.
func (s *SQLiteSource) SessionMembers(ctx context.Context, sessionID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM chat_session_member WHERE session_id = ? ORDER BY user_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query members of session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member of session %d: %w", sessionID, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members of session %d: %w", sessionID, err)
	}
	return ids, nil
}

// AddMember inserts a membership row, ignoring duplicates.
func (s *SQLiteSource) AddMember(ctx context.Context, sessionID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chat_session_member (session_id, user_id) VALUES (?, ?)`,
		sessionID, userID)
	if err != nil {
		return fmt.Errorf("add user %d to session %d: %w", userID, sessionID, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
