package sync

import (
	"errors"

	"github.com/pos-system/possync/internal/store/remote"
)

// Errors returned by the sync layer.
//
// Remote failures never surface through these; they are logged where they
// happen. Check with errors.Is():
//
//	if errors.Is(err, sync.ErrRetryLater) {
//	    // schedule another sweep with backoff
//	}
var (
	// ErrRetryLater is returned by a sweep that left at least one record
	// unsynced. The caller should run the sweep again later.
	ErrRetryLater = errors.New("sync incomplete, retry later")

	// ErrQueueFull is returned when a worker lane has no room for another
	// task. The task is dropped.
	ErrQueueFull = errors.New("worker queue full")

	// ErrWorkerClosed is returned when submitting to a closed worker.
	ErrWorkerClosed = errors.New("worker closed")

	// ErrAlreadyListening is returned by StartRealtimeSync when the
	// repository already holds a subscription.
	ErrAlreadyListening = errors.New("realtime sync already started")

	// ErrNotFound is returned when a local record does not exist.
	ErrNotFound = errors.New("record not found")
)

// IsRetryable returns true if the error is likely to succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrRetryLater), errors.Is(err, ErrQueueFull):
		return true
	}
	return remote.IsRetryable(err)
}
