package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// LocalRuntime executes commands as local processes.
type LocalRuntime struct{}

// Run executes a command locally.
func (r *LocalRuntime) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	if len(spec.Command) == 0 {
		return nil, ErrEmptyCommand
	}

	// Create working directory.
	if err := os.MkdirAll(spec.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkDir

	// Set environment.
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return runCommand(cmd, spec)
}

// runCommand wires stdin and output capture of spec into cmd, runs it and
// extracts the exit code. A non-zero exit is reported in the result, not as
// an error.
func runCommand(cmd *exec.Cmd, spec RunSpec) (*RunResult, error) {
	// Handle stdin.
	if spec.Stdin != "" {
		stdinPath := spec.Stdin
		if !filepath.IsAbs(stdinPath) {
			stdinPath = filepath.Join(spec.WorkDir, stdinPath)
		}
		stdin, err := os.Open(stdinPath)
		if err != nil {
			return nil, fmt.Errorf("open stdin: %w", err)
		}
		defer stdin.Close()
		cmd.Stdin = stdin
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout, closeOut, err := captureTarget(spec.WorkDir, spec.Stdout, &stdoutBuf)
	if err != nil {
		return nil, fmt.Errorf("create stdout file: %w", err)
	}
	defer closeOut()
	stderr, closeErr, err := captureTarget(spec.WorkDir, spec.Stderr, &stderrBuf)
	if err != nil {
		return nil, fmt.Errorf("create stderr file: %w", err)
	}
	defer closeErr()

	if spec.Output != nil {
		stdout = io.MultiWriter(stdout, spec.Output)
		stderr = io.MultiWriter(stderr, spec.Output)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Run the command.
	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run command: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &RunResult{
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
	}, nil
}

// captureTarget returns the file at workDir/name when name is set, otherwise
// buf.
func captureTarget(workDir, name string, buf *bytes.Buffer) (io.Writer, func(), error) {
	if name == "" {
		return buf, func() {}, nil
	}
	f, err := os.Create(filepath.Join(workDir, name))
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
