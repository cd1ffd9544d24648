package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/session"
)

// SQLite persists sessions as JSON records in a sessions table, one row per
// user. Writes go through a single upsert statement so readers never observe
// a half-written record.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an already-opened database handle. The caller is expected
// to have run the schema migration (db.InitSchema).
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Load(ctx context.Context, userID int64) (session.Session, bool, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM sessions WHERE user_id = ?`, userID,
	).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, fmt.Errorf("%w: load user %d: %v", ErrIO, userID, err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(record), &sess); err != nil {
		return session.Session{}, false, fmt.Errorf("%w: user %d: %v", ErrCorrupt, userID, err)
	}
	return sess, true, nil
}

func (s *SQLite) Save(ctx context.Context, userID int64, sess session.Session) error {
	record, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session for user %d: %w", userID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, record, updated_at) VALUES (?, ?, unixepoch())
		ON CONFLICT(user_id) DO UPDATE SET record = excluded.record, updated_at = unixepoch()
	`, userID, string(record))
	if err != nil {
		return fmt.Errorf("%w: save user %d: %v", ErrIO, userID, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("%w: delete user %d: %v", ErrIO, userID, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
