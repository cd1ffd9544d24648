// Package store owns the canonical copy of every user session. All reads and
// mutations go through it; updates for the same user are serialized so a
// load-mutate-persist cycle is never interleaved with another one.
package store

import (
	"context"
	"sync"

	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/session"
	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/storage"
)

// Store wraps a storage backend with per-user locking.
type Store struct {
	backend  storage.Backend
	defaults session.Settings

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New returns a store over the given backend. defaults seeds the settings of
// sessions that do not exist yet, including sessions recreated after Reset.
func New(backend storage.Backend, defaults session.Settings) *Store {
	return &Store{
		backend:  backend,
		defaults: defaults,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *Store) newSession() session.Session {
	return session.Session{Settings: s.defaults}
}

// userLock returns the mutex serializing operations for one user, creating it
// on first use. Locks are never evicted; the map grows with the user count,
// which for a chat bot stays small.
func (s *Store) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Update loads the user's session (default-constructing one if absent),
// applies fn to it, and persists the result. If fn returns an error or the
// persist fails, the stored session is left untouched and the error is
// returned. fn must not retain the *Session past its return.
func (s *Store) Update(ctx context.Context, userID int64, fn func(*session.Session) error) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	sess, found, err := s.backend.Load(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		sess = s.newSession()
	}

	if err := fn(&sess); err != nil {
		return err
	}
	return s.backend.Save(ctx, userID, sess)
}

// Get returns a snapshot of the user's session, or a default session when
// none is stored yet. The snapshot is the caller's to keep; mutating it has
// no effect on the stored state.
func (s *Store) Get(ctx context.Context, userID int64) (session.Session, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	sess, found, err := s.backend.Load(ctx, userID)
	if err != nil {
		return session.Session{}, err
	}
	if !found {
		return s.newSession(), nil
	}
	return sess, nil
}

// Reset removes the user's stored session entirely. The next access
// default-constructs a fresh one, which is how /clear restores empty history
// and default settings in one step.
func (s *Store) Reset(ctx context.Context, userID int64) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return s.backend.Delete(ctx, userID)
}
