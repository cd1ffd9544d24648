package model

import "fmt"

// ErrorKind classifies provider failures so callers can report them without
// inspecting provider-specific error types.
type ErrorKind int

const (
	// KindNetwork covers transport failures: DNS, refused connections,
	// broken streams.
	KindNetwork ErrorKind = iota
	// KindBadStatus covers non-success HTTP responses from the endpoint.
	KindBadStatus
	// KindMalformed covers responses that arrived but could not be decoded
	// into a completion.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindBadStatus:
		return "bad_status"
	case KindMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure. Status is set for KindBadStatus.
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindBadStatus {
		return fmt.Sprintf("model: %s %d: %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("model: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
