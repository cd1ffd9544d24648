// Package storage provides pluggable persistence for per-user sessions.
// Two implementations conform to Backend: a process-memory map and a
// SQLite-backed store that survives restarts.
package storage

import (
	"context"
	"errors"

	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/session"
)

var (
	// ErrIO wraps failures of the underlying store (disk, database handle).
	ErrIO = errors.New("storage: i/o failure")
	// ErrCorrupt reports a stored record that no longer deserializes into a
	// session.
	ErrCorrupt = errors.New("storage: corrupt record")
)

// Backend persists one session record per user. Implementations must be safe
// for concurrent use; Save must be atomic so a concurrent Load never observes
// a partially written record.
type Backend interface {
	// Load returns the stored session and true, or a zero session and false
	// when no record exists for the user.
	Load(ctx context.Context, userID int64) (session.Session, bool, error)
	// Save replaces the user's record with the given session.
	Save(ctx context.Context, userID int64, s session.Session) error
	// Delete removes the user's record. Deleting an absent record succeeds.
	Delete(ctx context.Context, userID int64) error
	// Close releases underlying resources.
	Close() error
}
