package jobs

import (
	"errors"
	"testing"

	"imagemeta/internal/domain"
)

// TestManagerLifecycle verifies normal progression to finished state and reset.
func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	if m.IsActive() {
		t.Fatal("new manager should be idle")
	}

	if err := m.Start("session-1", []string{"a", "b"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.IsActive() {
		t.Fatal("expected active after start")
	}
	if got := m.Current(); got.Total != 2 || got.StartedAt.IsZero() {
		t.Fatalf("session = %+v", got)
	}

	for _, state := range []domain.SessionState{
		domain.SessionStatePaused,
		domain.SessionStateRunning,
		domain.SessionStateFinished,
	} {
		if err := m.Transition(state); err != nil {
			t.Fatalf("transition to %s: %v", state, err)
		}
	}
	if m.State() != domain.SessionStateFinished {
		t.Fatalf("state = %s, want finished", m.State())
	}

	if err := m.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if m.State() != domain.SessionStateIdle {
		t.Fatalf("state = %s, want idle", m.State())
	}
}

// TestManagerRejectsSecondStart checks the single-session guard.
func TestManagerRejectsSecondStart(t *testing.T) {
	m := NewManager()
	if err := m.Start("session-1", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start("session-2", nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start error = %v, want %v", err, ErrAlreadyRunning)
	}
	if err := m.Reset(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("reset while running error = %v, want %v", err, ErrAlreadyRunning)
	}
	if err := m.Transition(domain.SessionStateStopped); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := m.Start("session-3", nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("start from stopped error = %v, want %v", err, ErrAlreadyRunning)
	}
}

// TestManagerRejectsInvalidTransition checks state machine constraints.
func TestManagerRejectsInvalidTransition(t *testing.T) {
	m := NewManager()
	if err := m.Transition(domain.SessionStateRunning); err == nil {
		t.Fatal("expected error transitioning without a session")
	}
	if err := m.Start("session-1", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Transition(domain.SessionStatePaused); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := m.Transition(domain.SessionStateFinished); err == nil {
		t.Fatal("expected invalid transition error for paused -> finished")
	}
}
