// Package execution dispatches workflow engine invocations to a local or
// containerised runtime.
package execution

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Engine runs workflow engine invocations on a Runtime.
type Engine struct {
	logger  *slog.Logger
	runtime Runtime
	image   string
	binds   []string
}

// Config holds engine configuration.
type Config struct {
	Logger  *slog.Logger
	Runtime Runtime
	Image   string   // container image for containerised runtimes
	Binds   []string // host paths bound into the container
}

// NewEngine creates a new execution engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runtime := cfg.Runtime
	if runtime == nil {
		runtime = &LocalRuntime{}
	}

	return &Engine{
		logger:  logger.With("component", "execution"),
		runtime: runtime,
		image:   cfg.Image,
		binds:   cfg.Binds,
	}
}

// Invocation is one engine command to run.
type Invocation struct {
	Command []string
	WorkDir string
	Env     map[string]string
	Output  io.Writer // live stdout/stderr (optional)
}

// Dispatch runs an invocation. A non-zero exit returns the result together
// with an ExecutionError wrapping ErrNonZeroExit.
func (e *Engine) Dispatch(ctx context.Context, inv Invocation) (*RunResult, error) {
	if len(inv.Command) == 0 {
		return nil, &ExecutionError{Phase: "prepare", Err: ErrEmptyCommand}
	}
	e.logger.Info("dispatching", "command", inv.Command[0], "workDir", inv.WorkDir)
	e.logger.Debug("command line", "args", inv.Command)

	start := time.Now()
	result, err := e.runtime.Run(ctx, RunSpec{
		Command: inv.Command,
		WorkDir: inv.WorkDir,
		Env:     inv.Env,
		Image:   e.image,
		Binds:   e.binds,
		Output:  inv.Output,
	})
	if err != nil {
		return nil, &ExecutionError{Phase: "execute", Err: err}
	}

	e.logger.Info("finished", "exitCode", result.ExitCode, "duration", time.Since(start).Round(time.Millisecond))
	if result.ExitCode != 0 {
		return result, &ExecutionError{Phase: "execute", Err: ErrNonZeroExit, ExitCode: result.ExitCode}
	}
	return result, nil
}
