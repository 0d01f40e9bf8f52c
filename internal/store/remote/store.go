// Package remote is the networked document store shared by every POS device.
//
// Each record kind lives in its own collection (category, item, sales) and
// each document id is the record id. Store is the narrow surface the sync
// layer depends on; Client implements it against the document server in
// internal/docserver, and remotetest.Fake implements it in memory for tests.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/pos-system/possync/internal/schema"
)

// Store is a document collection per record kind with a live change feed.
type Store interface {
	// NewID returns a fresh document id for kind. It never touches the
	// network, so ids can be assigned while offline.
	NewID(kind schema.Kind) string

	// Set creates or overwrites the document id in kind.
	Set(ctx context.Context, kind schema.Kind, id string, doc schema.Document) error

	// Delete removes the document id from kind. Deleting a missing
	// document is not an error.
	Delete(ctx context.Context, kind schema.Kind, id string) error

	// FetchAll returns every document in kind keyed by id.
	FetchAll(ctx context.Context, kind schema.Kind) (map[string]schema.Document, error)

	// Listen subscribes to changes in kind. The first batch delivered is a
	// snapshot of the whole collection. fn is called from a single goroutine
	// per subscription and must not block.
	Listen(ctx context.Context, kind schema.Kind, fn func(Batch)) (Subscription, error)
}

// Subscription is a live change feed. Close stops delivery.
type Subscription interface {
	Close() error
}

// Change is an added or modified document.
type Change struct {
	ID     string          `json:"id"`
	Fields schema.Document `json:"fields"`
}

// Batch is one delivery of the change feed.
type Batch struct {
	// Snapshot is set when the batch carries the full collection.
	Snapshot bool
	Upserts  []Change
	Removed  []string
}

// Empty reports whether the batch carries no changes.
func (b Batch) Empty() bool {
	return len(b.Upserts) == 0 && len(b.Removed) == 0
}

// Errors returned by remote operations.
var (
	// ErrUnavailable is returned when the remote cannot be reached.
	ErrUnavailable = errors.New("remote unavailable")

	// ErrInvalidCollection is returned for an unknown collection name.
	ErrInvalidCollection = errors.New("invalid collection")
)

// StatusError is returned when the remote rejects a request.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote %s: status %d: %s", e.Op, e.Status, e.Body)
}

// IsRetryable reports whether err is likely to succeed on retry:
// transport failures and server-side errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == 429
	}
	return false
}
