package execution

import (
	"context"
	"io"
)

// Runtime abstracts the execution environment (local process, Singularity).
type Runtime interface {
	// Run executes a command and returns the result.
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)
}

// RunSpec describes what to execute.
type RunSpec struct {
	Command []string          // Command and arguments
	WorkDir string            // Working directory
	Env     map[string]string // Environment variables
	Stdin   string            // Path to stdin file (optional)
	Stdout  string            // Path to capture stdout, relative to WorkDir (optional)
	Stderr  string            // Path to capture stderr, relative to WorkDir (optional)
	Image   string            // Singularity image (for SingularityRuntime)
	Binds   []string          // Host paths bound at the same path inside the container
	Output  io.Writer         // Receives stdout and stderr as they are produced (optional)
}

// RunResult holds the result of a command execution.
type RunResult struct {
	ExitCode int
	Stdout   string // Captured stdout content (if not redirected to file)
	Stderr   string // Captured stderr content (if not redirected to file)
}
