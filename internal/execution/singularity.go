package execution

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// SingularityRuntime executes commands in Singularity containers.
type SingularityRuntime struct {
	// SingularityCommand is the path to the singularity binary (default: "singularity").
	SingularityCommand string
}

// Run executes a command in a Singularity container.
func (r *SingularityRuntime) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	args, err := r.Args(spec)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(spec.Image); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, spec.Image)
	}
	if err := os.MkdirAll(spec.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Env = os.Environ()
	return runCommand(cmd, spec)
}

// Args returns the full singularity exec command line for spec.
func (r *SingularityRuntime) Args(spec RunSpec) ([]string, error) {
	if len(spec.Command) == 0 {
		return nil, ErrEmptyCommand
	}
	if spec.Image == "" {
		return nil, ErrNoImage
	}

	bin := r.SingularityCommand
	if bin == "" {
		bin = "singularity"
	}

	args := []string{bin, "exec"}
	for _, p := range spec.Binds {
		args = append(args, "--bind", resolveSymlinks(p))
	}
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--env", k+"="+spec.Env[k])
	}
	args = append(args, spec.Image)
	return append(args, spec.Command...), nil
}

func resolveSymlinks(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return absPath
	}
	return resolved
}
