//go:build !unix

package daemon

import (
	"errors"
	"fmt"
	"os"
)

type lockFile struct {
	path string
	f    *os.File
}

// acquireLock creates path exclusively. A stale file left by a crashed
// daemon has to be removed by hand.
func acquireLock(path string) (*lockFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, path)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return &lockFile{path: path, f: f}, nil
}

func (l *lockFile) release() error {
	_ = l.f.Close()
	return os.Remove(l.path)
}
