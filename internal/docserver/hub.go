package docserver

import (
	"sync"

	"github.com/pos-system/possync/internal/store/remote"
)

// hub fans document changes out to change-feed subscribers.
type hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*subscriber]struct{})}
}

func (h *hub) subscribe(collection string) *subscriber {
	s := &subscriber{
		pending: make(map[string]remote.FeedChange),
		signal:  make(chan struct{}, 1),
	}
	h.mu.Lock()
	if h.subs[collection] == nil {
		h.subs[collection] = make(map[*subscriber]struct{})
	}
	h.subs[collection][s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *hub) unsubscribe(collection string, s *subscriber) {
	h.mu.Lock()
	delete(h.subs[collection], s)
	h.mu.Unlock()
}

func (h *hub) publish(collection string, ch remote.FeedChange) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[collection] {
		s.push(ch)
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}

// subscriber buffers changes for one feed connection. While a frame is being
// written, further changes to the same id collapse to the latest one.
type subscriber struct {
	mu      sync.Mutex
	pending map[string]remote.FeedChange
	order   []string
	signal  chan struct{}
}

func (s *subscriber) push(ch remote.FeedChange) {
	s.mu.Lock()
	if _, ok := s.pending[ch.ID]; !ok {
		s.order = append(s.order, ch.ID)
	}
	s.pending[ch.ID] = ch
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) drain() []remote.FeedChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return nil
	}
	changes := make([]remote.FeedChange, 0, len(s.order))
	for _, id := range s.order {
		changes = append(changes, s.pending[id])
	}
	s.pending = make(map[string]remote.FeedChange)
	s.order = nil
	return changes
}
