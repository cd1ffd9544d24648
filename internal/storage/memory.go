package storage

import (
	"context"
	"sync"

	"github.com/Graf2112/Open-AI-API-Telegram-Bot/internal/session"
)

// Memory keeps sessions in a process-wide map. All records are lost when the
// process exits. Operations never fail.
type Memory struct {
	mu       sync.RWMutex
	sessions map[int64]session.Session
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[int64]session.Session)}
}

func (m *Memory) Load(_ context.Context, userID int64) (session.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return session.Session{}, false, nil
	}
	// Clone both ways so callers never alias the stored history slice.
	return s.Clone(), true, nil
}

func (m *Memory) Save(_ context.Context, userID int64, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = s.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *Memory) Close() error { return nil }
