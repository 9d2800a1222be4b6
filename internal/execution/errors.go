package execution

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNoImage       = errors.New("container execution requested but no image specified")
	ErrImageNotFound = errors.New("container image does not exist")
	ErrNonZeroExit   = errors.New("command exited with non-zero status")
	ErrEmptyCommand  = errors.New("empty command")
)

// ExecutionError wraps errors with execution phase context.
type ExecutionError struct {
	Phase    string // "prepare", "execute", "collect"
	Err      error
	ExitCode int
}

func (e *ExecutionError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("%s: %v (exit code %d)", e.Phase, e.Err, e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
