// Package remotetest provides an in-memory remote.Store for tests.
package remotetest

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/remote"
)

// Fake is an in-memory remote.Store with failure injection.
//
// Writes made through the Store interface are echoed to listeners, the way a
// real change feed reports the device's own writes. RemoteSet and
// RemoteDelete simulate writes made by another device.
type Fake struct {
	mu        sync.Mutex
	docs      map[schema.Kind]map[string]schema.Document
	listeners map[schema.Kind]map[*listener]struct{}
	offline   bool
	failNext  int
	seq       int

	sets    map[schema.Kind]int
	deletes map[schema.Kind]int
	listens map[schema.Kind]int
}

var _ remote.Store = (*Fake)(nil)

// New creates an empty, online Fake.
func New() *Fake {
	return &Fake{
		docs:      make(map[schema.Kind]map[string]schema.Document),
		listeners: make(map[schema.Kind]map[*listener]struct{}),
		sets:      make(map[schema.Kind]int),
		deletes:   make(map[schema.Kind]int),
		listens:   make(map[schema.Kind]int),
	}
}

// SetOffline makes every Set, Delete and FetchAll fail with
// remote.ErrUnavailable until called again with false.
func (f *Fake) SetOffline(offline bool) {
	f.mu.Lock()
	f.offline = offline
	f.mu.Unlock()
}

// FailNext makes the next n Set, Delete or FetchAll calls fail.
func (f *Fake) FailNext(n int) {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
}

// NewID implements remote.Store.
func (f *Fake) NewID(kind schema.Kind) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("%s-%04d", kind, f.seq)
}

// Set implements remote.Store.
func (f *Fake) Set(ctx context.Context, kind schema.Kind, id string, doc schema.Document) error {
	f.mu.Lock()
	f.sets[kind]++
	if err := f.failLocked(ctx, "set"); err != nil {
		f.mu.Unlock()
		return err
	}
	f.putLocked(kind, id, doc)
	ls := f.listenersLocked(kind)
	f.mu.Unlock()

	deliver(ls, remote.Batch{Upserts: []remote.Change{{ID: id, Fields: maps.Clone(doc)}}})
	return nil
}

// Delete implements remote.Store.
func (f *Fake) Delete(ctx context.Context, kind schema.Kind, id string) error {
	f.mu.Lock()
	f.deletes[kind]++
	if err := f.failLocked(ctx, "delete"); err != nil {
		f.mu.Unlock()
		return err
	}
	_, existed := f.docs[kind][id]
	delete(f.docs[kind], id)
	ls := f.listenersLocked(kind)
	f.mu.Unlock()

	if existed {
		deliver(ls, remote.Batch{Removed: []string{id}})
	}
	return nil
}

// FetchAll implements remote.Store.
func (f *Fake) FetchAll(ctx context.Context, kind schema.Kind) (map[string]schema.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failLocked(ctx, "fetch"); err != nil {
		return nil, err
	}
	out := make(map[string]schema.Document, len(f.docs[kind]))
	for id, doc := range f.docs[kind] {
		out[id] = maps.Clone(doc)
	}
	return out, nil
}

// Listen implements remote.Store. The snapshot is delivered before Listen
// returns.
func (f *Fake) Listen(ctx context.Context, kind schema.Kind, fn func(remote.Batch)) (remote.Subscription, error) {
	l := &listener{fake: f, kind: kind, fn: fn, done: make(chan struct{})}

	f.mu.Lock()
	f.listens[kind]++
	if f.listeners[kind] == nil {
		f.listeners[kind] = make(map[*listener]struct{})
	}
	f.listeners[kind][l] = struct{}{}
	snapshot := remote.Batch{Snapshot: true, Upserts: f.changesLocked(kind)}
	f.mu.Unlock()

	l.deliver(snapshot)

	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-l.done:
		}
	}()
	return l, nil
}

// Seed stores a document without notifying listeners.
func (f *Fake) Seed(kind schema.Kind, id string, doc schema.Document) {
	f.mu.Lock()
	f.putLocked(kind, id, doc)
	f.mu.Unlock()
}

// RemoteSet simulates another device writing a document.
func (f *Fake) RemoteSet(kind schema.Kind, id string, doc schema.Document) {
	f.mu.Lock()
	f.putLocked(kind, id, doc)
	ls := f.listenersLocked(kind)
	f.mu.Unlock()
	deliver(ls, remote.Batch{Upserts: []remote.Change{{ID: id, Fields: maps.Clone(doc)}}})
}

// RemoteDelete simulates another device deleting a document.
func (f *Fake) RemoteDelete(kind schema.Kind, id string) {
	f.mu.Lock()
	delete(f.docs[kind], id)
	ls := f.listenersLocked(kind)
	f.mu.Unlock()
	deliver(ls, remote.Batch{Removed: []string{id}})
}

// Emit delivers an arbitrary batch to the listeners of kind without
// touching stored documents.
func (f *Fake) Emit(kind schema.Kind, b remote.Batch) {
	f.mu.Lock()
	ls := f.listenersLocked(kind)
	f.mu.Unlock()
	deliver(ls, b)
}

// Doc returns a stored document.
func (f *Fake) Doc(kind schema.Kind, id string) (schema.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[kind][id]
	return maps.Clone(doc), ok
}

// IDs returns the sorted ids stored in kind.
func (f *Fake) IDs(kind schema.Kind) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.docs[kind]))
	for id := range f.docs[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetCount returns the number of Set calls on kind, failed ones included.
func (f *Fake) SetCount(kind schema.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets[kind]
}

// DeleteCount returns the number of Delete calls on kind.
func (f *Fake) DeleteCount(kind schema.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes[kind]
}

// ListenCount returns the number of Listen calls on kind.
func (f *Fake) ListenCount(kind schema.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listens[kind]
}

// ActiveListeners returns the number of open subscriptions on kind.
func (f *Fake) ActiveListeners(kind schema.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[kind])
}

func (f *Fake) failLocked(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.offline {
		return fmt.Errorf("%w: %s: offline", remote.ErrUnavailable, op)
	}
	if f.failNext > 0 {
		f.failNext--
		return fmt.Errorf("%w: %s: injected failure", remote.ErrUnavailable, op)
	}
	return nil
}

func (f *Fake) putLocked(kind schema.Kind, id string, doc schema.Document) {
	if f.docs[kind] == nil {
		f.docs[kind] = make(map[string]schema.Document)
	}
	f.docs[kind][id] = maps.Clone(doc)
}

func (f *Fake) changesLocked(kind schema.Kind) []remote.Change {
	ids := make([]string, 0, len(f.docs[kind]))
	for id := range f.docs[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	changes := make([]remote.Change, 0, len(ids))
	for _, id := range ids {
		changes = append(changes, remote.Change{ID: id, Fields: maps.Clone(f.docs[kind][id])})
	}
	return changes
}

func (f *Fake) listenersLocked(kind schema.Kind) []*listener {
	ls := make([]*listener, 0, len(f.listeners[kind]))
	for l := range f.listeners[kind] {
		ls = append(ls, l)
	}
	return ls
}

func deliver(ls []*listener, b remote.Batch) {
	for _, l := range ls {
		l.deliver(b)
	}
}

type listener struct {
	fake *Fake
	kind schema.Kind
	fn   func(remote.Batch)

	mu     sync.Mutex // serializes fn
	closed bool
	once   sync.Once
	done   chan struct{}
}

func (l *listener) deliver(b remote.Batch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.fn(b)
}

// Close implements remote.Subscription.
func (l *listener) Close() error {
	l.once.Do(func() {
		l.fake.mu.Lock()
		delete(l.fake.listeners[l.kind], l)
		l.fake.mu.Unlock()

		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.done)
	})
	return nil
}
