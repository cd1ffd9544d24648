package session

import (
	"errors"
	"fmt"
)

// DefaultTemperature is the sampling temperature used until a user overrides it.
const DefaultTemperature = 0.7

// ErrTemperatureOutOfRange rejects temperature values outside [0.0, 1.0].
var ErrTemperatureOutOfRange = errors.New("temperature out of range [0.0, 1.0]")

// Role identifies the author of a stored conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation history. Turns are never edited
// after being appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Settings holds the per-user generation parameters.
type Settings struct {
	SystemFingerprint string  `json:"system_fingerprint,omitempty"`
	Temperature       float32 `json:"temperature"`
}

// DefaultSettings returns the settings a fresh session starts with.
func DefaultSettings() Settings {
	return Settings{Temperature: DefaultTemperature}
}

// SetTemperature updates the sampling temperature, rejecting values outside
// [0.0, 1.0] without mutating anything. The inverted comparison also rejects
// NaN, which compares false against both bounds.
func (s *Settings) SetTemperature(v float32) error {
	if !(v >= 0.0 && v <= 1.0) {
		return fmt.Errorf("%w: %v", ErrTemperatureOutOfRange, v)
	}
	s.Temperature = v
	return nil
}

// Session is the per-user conversation state: ordered history plus generation
// settings. Whether a generation is currently in flight for the user is
// tracked by the generation coordinator, not persisted here, because a
// restarted process can never resume an in-progress call.
type Session struct {
	History  []Turn   `json:"history"`
	Settings Settings `json:"settings"`
}

// New returns an empty session with default settings.
func New() Session {
	return Session{Settings: DefaultSettings()}
}

// Append adds turns to the end of the history, preserving arrival order.
func (s *Session) Append(turns ...Turn) {
	s.History = append(s.History, turns...)
}

// Clone returns a deep copy so callers can hand out snapshots without
// aliasing the canonical history slice.
func (s Session) Clone() Session {
	out := s
	if s.History != nil {
		out.History = make([]Turn, len(s.History))
		copy(out.History, s.History)
	}
	return out
}
