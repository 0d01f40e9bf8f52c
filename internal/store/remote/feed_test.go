package remote

import (
	"reflect"
	"testing"
)

func TestListenerApply_ResnapshotReportsRemovals(t *testing.T) {
	l := &listener{known: map[string]struct{}{}}

	b := l.apply(FeedMessage{Type: FeedSnapshot, Changes: []FeedChange{
		{Type: ChangeAdded, ID: "a"},
		{Type: ChangeAdded, ID: "b"},
		{Type: ChangeAdded, ID: "c"},
	}})
	if !b.Snapshot || len(b.Upserts) != 3 || len(b.Removed) != 0 {
		t.Fatalf("unexpected first snapshot batch: %+v", b)
	}

	b = l.apply(FeedMessage{Type: FeedChanges, Changes: []FeedChange{
		{Type: ChangeRemoved, ID: "c"},
		{Type: ChangeAdded, ID: "d"},
	}})
	if !reflect.DeepEqual(b.Removed, []string{"c"}) || len(b.Upserts) != 1 || b.Upserts[0].ID != "d" {
		t.Fatalf("unexpected change batch: %+v", b)
	}

	// After a reconnect the server only knows a and e: b and d were
	// deleted while the feed was down.
	b = l.apply(FeedMessage{Type: FeedSnapshot, Changes: []FeedChange{
		{Type: ChangeAdded, ID: "a"},
		{Type: ChangeAdded, ID: "e"},
	}})
	if !reflect.DeepEqual(b.Removed, []string{"b", "d"}) {
		t.Errorf("expected removals [b d], got %v", b.Removed)
	}
	if len(b.Upserts) != 2 {
		t.Errorf("expected 2 upserts, got %d", len(b.Upserts))
	}
}

func TestBatchEmpty(t *testing.T) {
	if !(Batch{}).Empty() {
		t.Error("zero batch should be empty")
	}
	if (Batch{Removed: []string{"x"}}).Empty() {
		t.Error("batch with removals should not be empty")
	}
}
