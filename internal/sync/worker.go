package sync

import (
	"context"
	"fmt"
	"hash/fnv"
	gosync "sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Worker runs detached tasks on a fixed set of lanes.
//
// Tasks submitted with the same key always land on the same lane and run in
// submission order, so a push and a later delete of one record reach the
// remote in that order. Tasks with different keys run concurrently. Each lane
// has a bounded queue; Submit never blocks and reports ErrQueueFull instead.
type Worker struct {
	name   string
	lanes  []chan task
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	mu       gosync.Mutex
	closed   bool
	inflight int
	idle     chan struct{} // closed whenever inflight is zero

	dropped atomic.Int64
	panics  atomic.Int64
}

type task struct {
	key  string
	name string
	fn   func(ctx context.Context)
}

// NewWorker starts a worker with the given number of lanes, each holding up
// to depth queued tasks. Values below 1 are raised to 1.
func NewWorker(name string, lanes, depth int, logger *zap.Logger) *Worker {
	if lanes < 1 {
		lanes = 1
	}
	if depth < 1 {
		depth = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	w := &Worker{
		name:   name,
		lanes:  make([]chan task, lanes),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		idle:   idle,
	}
	for i := range w.lanes {
		w.lanes[i] = make(chan task, depth)
		w.wg.Add(1)
		go w.run(w.lanes[i])
	}
	return w
}

// Submit queues fn on the lane for key. fn receives a context that is
// cancelled only when Close gives up waiting.
func (w *Worker) Submit(key, name string, fn func(ctx context.Context)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWorkerClosed
	}

	lane := w.lanes[w.lane(key)]
	select {
	case lane <- task{key: key, name: name, fn: fn}:
	default:
		w.dropped.Add(1)
		return fmt.Errorf("%s: %w", w.name, ErrQueueFull)
	}

	if w.inflight == 0 {
		w.idle = make(chan struct{})
	}
	w.inflight++
	return nil
}

// Wait blocks until every submitted task has finished or ctx is done.
func (w *Worker) Wait(ctx context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and drains the queues. If ctx ends first the
// running tasks are cancelled and Close returns ctx.Err() once they exit.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, lane := range w.lanes {
		close(lane)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return ctx.Err()
	}
}

// Pending returns the number of queued and running tasks.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight
}

// Dropped returns the number of tasks rejected with ErrQueueFull.
func (w *Worker) Dropped() int64 {
	return w.dropped.Load()
}

func (w *Worker) lane(key string) int {
	if len(w.lanes) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(w.lanes)))
}

func (w *Worker) run(lane chan task) {
	defer w.wg.Done()
	for t := range lane {
		w.exec(t)
	}
}

func (w *Worker) exec(t task) {
	defer func() {
		if r := recover(); r != nil {
			w.panics.Add(1)
			w.logger.Error("task panicked",
				zap.String("worker", w.name),
				zap.String("task", t.name),
				zap.String("key", t.key),
				zap.Any("panic", r))
		}
		w.done()
	}()
	t.fn(w.ctx)
}

func (w *Worker) done() {
	w.mu.Lock()
	w.inflight--
	if w.inflight == 0 {
		close(w.idle)
	}
	w.mu.Unlock()
}
