package state

import (
	"context"
	"sync"
	"time"
)

// memoryManager keeps sessions in a map keyed by user id.
type memoryManager struct {
	mu    sync.RWMutex
	byID  map[int64]*Session
	clock func() time.Time
}

// NewMemoryManager constructs an in-memory Manager. Sessions are lost on
// restart and are not shared between processes.
func NewMemoryManager() Manager {
	return newMemoryManager(time.Now)
}

func newMemoryManager(clock func() time.Time) *memoryManager {
	return &memoryManager{byID: map[int64]*Session{}, clock: clock}
}

func (m *memoryManager) lookup(userID int64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[userID]
	return s, ok
}

// Get returns a copy of the stored session, or a fresh idle one.
func (m *memoryManager) Get(_ context.Context, userID int64) (*Session, error) {
	if s, ok := m.lookup(userID); ok {
		return s.Clone(), nil
	}
	return NewSession(), nil
}

// Save replaces the stored session and refreshes its idle timer.
func (m *memoryManager) Save(_ context.Context, userID int64, s *Session) error {
	stored := s.Clone()
	stored.UpdatedAt = m.clock()

	m.mu.Lock()
	m.byID[userID] = stored
	m.mu.Unlock()
	return nil
}

func (m *memoryManager) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.byID, userID)
	m.mu.Unlock()
	return nil
}

// GetState reads the state without copying the session.
func (m *memoryManager) GetState(_ context.Context, userID int64) (State, error) {
	if s, ok := m.lookup(userID); ok && s.State != "" {
		return s.State, nil
	}
	return StateIdle, nil
}

func (m *memoryManager) Sweep(_ context.Context, maxIdle time.Duration) (int, error) {
	if maxIdle <= 0 {
		return 0, nil
	}
	cutoff := m.clock().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.byID {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.byID, id)
			evicted++
		}
	}
	return evicted, nil
}
