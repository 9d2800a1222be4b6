// Package filelock serializes writers of case files across processes and
// writes files atomically.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockSuffix is appended to a target path to name its lock file.
const LockSuffix = ".lock"

// FileLock is an exclusive advisory lock backed by a lock file.
type FileLock struct {
	flock *flock.Flock
	path  string
}

// New returns an unlocked FileLock at path.
func New(path string) *FileLock {
	return &FileLock{flock: flock.New(path), path: path}
}

// Lock blocks until the exclusive lock is held.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	return nil
}

// TryLock acquires the lock without blocking. It returns false when another
// process holds it.
func (l *FileLock) TryLock() (bool, error) {
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("try lock %s: %w", l.path, err)
	}
	return ok, nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

// AtomicWrite writes data to a temp file next to path and renames it into
// place, so readers see either the old or the new content.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	committed = true
	return nil
}

// LockAndWrite holds path+LockSuffix while atomically writing path.
func LockAndWrite(path string, data []byte) error {
	lock := New(path + LockSuffix)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()
	return AtomicWrite(path, data)
}
