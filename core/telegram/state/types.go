package state

import (
	"context"
	"time"
)

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Session stores conversation state and collected fields for a user.
type Session struct {
	State     State             `json:"state"`
	Data      map[string]string `json:"data,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSession returns an idle session with no data.
func NewSession() *Session {
	return &Session{State: StateIdle, Data: make(map[string]string)}
}

// InProgress reports whether the session is inside a conversation.
func (s *Session) InProgress() bool {
	return s != nil && s.State != "" && s.State != StateIdle
}

// Clone returns a deep copy so callers never share the Data map.
func (s *Session) Clone() *Session {
	if s == nil {
		return NewSession()
	}
	out := &Session{State: s.State, UpdatedAt: s.UpdatedAt, Data: make(map[string]string, len(s.Data))}
	for k, v := range s.Data {
		out.Data[k] = v
	}
	if out.State == "" {
		out.State = StateIdle
	}
	return out
}

// Manager orchestrates user sessions. Get never returns nil: users without a
// stored session receive a fresh idle one.
type Manager interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, userID int64, s *Session) error
	Clear(ctx context.Context, userID int64) error

	// GetState returns the current step, or StateIdle if none exists.
	GetState(ctx context.Context, userID int64) (State, error)

	// Sweep drops sessions untouched for longer than maxIdle and reports how many.
	Sweep(ctx context.Context, maxIdle time.Duration) (int, error)
}
