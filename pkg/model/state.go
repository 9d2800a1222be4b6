package model

import (
	"fmt"
	"time"
)

// RunState represents the lifecycle state of an engine dispatch.
type RunState string

const (
	RunStatePending   RunState = "PENDING"
	RunStateRunning   RunState = "RUNNING"
	RunStateCompleted RunState = "COMPLETED"
	RunStateFailed    RunState = "FAILED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal returns true if the run is in a final state.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed:
		return true
	}
	return false
}

// ValidRunTransitions defines the allowed state transitions for Runs.
var ValidRunTransitions = map[RunState][]RunState{
	RunStatePending: {RunStateRunning, RunStateFailed},
	RunStateRunning: {RunStateCompleted, RunStateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s RunState) CanTransitionTo(next RunState) bool {
	for _, allowed := range ValidRunTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	ID   string
	From RunState
	To   RunState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid run state transition: %s → %s (run %s)", e.From, e.To, e.ID)
}

// Run is one recorded dispatch of the execution engine for a case.
type Run struct {
	ID          string     `json:"id"`
	CaseID      string     `json:"case_id"`
	ConfigPath  string     `json:"config_path"`
	Snakefile   string     `json:"snakefile"`
	Command     []string   `json:"command"`
	RunMode     RunMode    `json:"run_mode"`
	DryRun      bool       `json:"dry_run"`
	State       RunState   `json:"state"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	LogDir      string     `json:"log_dir"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Transition moves the run to next, stamping CompletedAt on terminal states.
func (r *Run) Transition(next RunState, now time.Time) error {
	if !r.State.CanTransitionTo(next) {
		return &InvalidTransitionError{ID: r.ID, From: r.State, To: next}
	}
	r.State = next
	if next.IsTerminal() {
		r.CompletedAt = &now
	}
	return nil
}
