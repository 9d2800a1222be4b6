package model

import (
	"errors"
	"testing"
	"time"
)

func TestRunState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    RunState
		terminal bool
	}{
		{RunStatePending, false},
		{RunStateRunning, false},
		{RunStateCompleted, true},
		{RunStateFailed, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("RunState(%q).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestRunState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  RunState
		to    RunState
		valid bool
	}{
		{RunStatePending, RunStateRunning, true},
		{RunStatePending, RunStateFailed, true},
		{RunStateRunning, RunStateCompleted, true},
		{RunStateRunning, RunStateFailed, true},

		{RunStatePending, RunStateCompleted, false},
		{RunStateCompleted, RunStateRunning, false},
		{RunStateFailed, RunStatePending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("%s → %s = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestRun_Transition(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &Run{ID: "run-1", State: RunStatePending}

	if err := r.Transition(RunStateRunning, now); err != nil {
		t.Fatalf("Transition(RUNNING): %v", err)
	}
	if r.CompletedAt != nil {
		t.Error("CompletedAt set on non-terminal state")
	}
	if err := r.Transition(RunStateCompleted, now); err != nil {
		t.Fatalf("Transition(COMPLETED): %v", err)
	}
	if r.CompletedAt == nil || !r.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", r.CompletedAt, now)
	}

	err := r.Transition(RunStateRunning, now)
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	want := "invalid run state transition: COMPLETED → RUNNING (run run-1)"
	if ite.Error() != want {
		t.Errorf("Error() = %q, want %q", ite.Error(), want)
	}
}
