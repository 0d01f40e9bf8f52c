package local

import "sync"

// Table names a local table that live queries can depend on.
type Table string

const (
	TableCategories Table = "categories"
	TableItems      Table = "items"
	TableSales      Table = "sales"
)

// AllTables lists every table.
var AllTables = []Table{TableCategories, TableItems, TableSales}

// notifier fans table invalidations out to live queries. Each subscriber has
// a one-slot channel, so a burst of writes collapses into a single wakeup.
type notifier struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

type subscription struct {
	tables map[Table]bool
	ch     chan struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[*subscription]struct{})}
}

func (n *notifier) subscribe(tables ...Table) *subscription {
	s := &subscription{tables: make(map[Table]bool, len(tables)), ch: make(chan struct{}, 1)}
	for _, t := range tables {
		s.tables[t] = true
	}
	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()
	return s
}

func (n *notifier) unsubscribe(s *subscription) {
	n.mu.Lock()
	delete(n.subs, s)
	n.mu.Unlock()
}

func (n *notifier) publish(tables ...Table) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for s := range n.subs {
		for _, t := range tables {
			if !s.tables[t] {
				continue
			}
			select {
			case s.ch <- struct{}{}:
			default:
			}
			break
		}
	}
}

// Invalidate marks tables as changed, making dependent live queries re-run.
// Writes through DB invalidate automatically; this is for changes made
// outside this process.
func (db *DB) Invalidate(tables ...Table) {
	if len(tables) == 0 {
		tables = AllTables
	}
	db.notify.publish(tables...)
}
