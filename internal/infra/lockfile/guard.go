package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileGuard is an advisory single-host run lock: a zero-byte marker file
// whose presence means a run is in progress. It is not a distributed lock;
// the external scheduler is expected to keep invocations well apart.
type FileGuard struct {
	path string
}

func NewFileGuard(path string) *FileGuard {
	return &FileGuard{path: path}
}

// Acquire creates the lock marker, returning false when it already exists.
// O_EXCL makes the existence check and the create a single atomic
// operation, so two near-simultaneous starts cannot both acquire.
func (g *FileGuard) Acquire() (bool, error) {
	if dir := filepath.Dir(g.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(g.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock file %s: %w", g.path, err)
	}
	file.Close()
	return true, nil
}

// Release removes the marker. Releasing an already-released lock is not an
// error: a stale marker blocking every future run is the failure mode this
// must avoid, so release errs on the side of succeeding.
func (g *FileGuard) Release() error {
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file %s: %w", g.path, err)
	}
	return nil
}

// Path returns the marker location.
func (g *FileGuard) Path() string {
	return g.path
}
