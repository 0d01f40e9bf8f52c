package local

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeOp is the kind of on-disk change observed on the database files.
type ChangeOp int

const (
	// OpWrite indicates the database or its WAL was written.
	OpWrite ChangeOp = iota
	// OpReplace indicates a database file was created, removed or renamed.
	OpReplace
)

// String returns a human-readable representation of the operation.
func (op ChangeOp) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Watcher invalidates live queries when another process writes the
// database. It watches the database directory with fsnotify and debounces
// bursts of WAL writes into a single invalidation.
type Watcher struct {
	db       *DB
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger

	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a Watcher for db. It must be started with Start.
func NewWatcher(db *DB, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		db:       db,
		watcher:  fw,
		debounce: debounce,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the database directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(w.db.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch database directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and blocks until the event loop has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			op, ok := w.convertEvent(event)
			if !ok {
				continue
			}
			w.logger.Debug("database changed on disk",
				zap.String("file", filepath.Base(event.Name)),
				zap.Stringer("op", op))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.db.Invalidate()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("database watcher error", zap.Error(err))
		}
	}
}

// convertEvent keeps events on the database file and its WAL.
func (w *Watcher) convertEvent(event fsnotify.Event) (ChangeOp, bool) {
	base := filepath.Base(w.db.Path())
	name := filepath.Base(event.Name)
	if name != base && !strings.HasPrefix(name, base+"-") {
		return 0, false
	}
	if strings.HasSuffix(name, "-shm") {
		return 0, false
	}

	switch {
	case event.Has(fsnotify.Write):
		return OpWrite, true
	case event.Has(fsnotify.Create), event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return OpReplace, true
	default:
		return 0, false
	}
}
