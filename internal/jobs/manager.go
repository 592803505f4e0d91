package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"imagemeta/internal/domain"
)

// ErrAlreadyRunning is returned when starting a second active session.
var ErrAlreadyRunning = errors.New("batch session already running")

// ErrNoActiveSession is returned when pause, resume, or stop is requested while idle.
var ErrNoActiveSession = errors.New("no active batch session")

// Manager tracks the single allowed batch session and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Session
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Session{
			State: domain.SessionStateIdle,
		},
	}
}

// Start creates a new session and moves it to running state.
func (m *Manager) Start(sessionID string, items []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.State != domain.SessionStateIdle {
		return ErrAlreadyRunning
	}

	m.current = domain.Session{
		ID:        sessionID,
		State:     domain.SessionStateRunning,
		Items:     append([]string(nil), items...),
		StartedAt: time.Now().UTC(),
		Total:     len(items),
	}
	return nil
}

// Transition validates and applies state transitions for the current session.
func (m *Manager) Transition(state domain.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && state != domain.SessionStateIdle {
		return fmt.Errorf("cannot transition without an active session")
	}
	if state == m.current.State {
		return nil
	}
	if !isValidTransition(m.current.State, state) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.State, state)
	}

	m.current.State = state
	return nil
}

// SetProcessed records how many items the worker has finished.
func (m *Manager) SetProcessed(processed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Processed = processed
}

// Current returns a snapshot of the current session.
func (m *Manager) Current() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.current
	out.Items = append([]string(nil), m.current.Items...)
	return out
}

// State returns the current lifecycle state.
func (m *Manager) State() domain.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.State
}

// Reset returns a finished or stopped session to idle. Active sessions are left alone.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.current.State {
	case domain.SessionStateIdle:
		return nil
	case domain.SessionStateFinished, domain.SessionStateStopped:
		m.current = domain.Session{State: domain.SessionStateIdle}
		return nil
	default:
		return ErrAlreadyRunning
	}
}

// IsActive reports whether a session is running or paused.
func (m *Manager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isActive(m.current.State)
}

func isActive(state domain.SessionState) bool {
	return state == domain.SessionStateRunning || state == domain.SessionStatePaused
}

// isValidTransition enforces the allowed session state machine edges.
func isValidTransition(from, to domain.SessionState) bool {
	switch from {
	case domain.SessionStateIdle:
		return to == domain.SessionStateRunning
	case domain.SessionStateRunning:
		return to == domain.SessionStatePaused || to == domain.SessionStateStopped || to == domain.SessionStateFinished
	case domain.SessionStatePaused:
		return to == domain.SessionStateRunning || to == domain.SessionStateStopped
	case domain.SessionStateFinished, domain.SessionStateStopped:
		return to == domain.SessionStateIdle
	default:
		return false
	}
}
