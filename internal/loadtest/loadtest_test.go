package loadtest

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/local"
	"github.com/pos-system/possync/internal/store/remote/remotetest"
	possync "github.com/pos-system/possync/internal/sync"
)

func setup(t *testing.T) (*possync.Repositories, *remotetest.Fake) {
	t.Helper()
	db, err := local.Open(filepath.Join(t.TempDir(), "load.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := remotetest.New()
	repos := possync.NewRepositories(db, fake, possync.Options{})
	t.Cleanup(func() { _ = repos.Close(context.Background()) })
	return repos, fake
}

func TestRun_AllSalesStoredAndPushed(t *testing.T) {
	repos, fake := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := Run(ctx, repos, Config{Terminals: 4, SalesPerTerminal: 10, Readers: 2, CatalogSize: 5, Seed: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Sales != 40 {
		t.Errorf("Expected 40 sales, got %d", report.Sales)
	}
	if report.Writes.Total != 40 || report.Writes.Errors != 0 {
		t.Errorf("Expected 40 clean checkouts, got %d (%d errors)", report.Writes.Total, report.Writes.Errors)
	}
	if report.UnsyncedAfterRun != 0 {
		t.Errorf("Expected every push to succeed, %d unsynced", report.UnsyncedAfterRun)
	}
	if report.Sweep != nil {
		t.Errorf("Sweep should not run when nothing is unsynced")
	}
	if got := len(fake.IDs(schema.KindSale)); got != 40 {
		t.Errorf("Expected 40 sales on the remote, got %d", got)
	}
	if got := len(fake.IDs(schema.KindItem)); got != 5 {
		t.Errorf("Expected 5 catalog items on the remote, got %d", got)
	}
	if report.Writes.Min > report.Writes.P50 || report.Writes.P50 > report.Writes.Max {
		t.Errorf("Latency stats out of order: %+v", report.Writes)
	}
}

func TestRun_OfflineSalesAreSwept(t *testing.T) {
	repos, fake := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fake.SetOffline(true)
	report, err := Run(ctx, repos, Config{Terminals: 3, SalesPerTerminal: 5, CatalogSize: 3, Sweep: false})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.UnsyncedAfterRun != 15 || report.UnsyncedAtEnd != 15 {
		t.Fatalf("Expected 15 unsynced sales while offline, got %d/%d", report.UnsyncedAfterRun, report.UnsyncedAtEnd)
	}

	fake.SetOffline(false)
	report, err = Run(ctx, repos, Config{Terminals: 1, SalesPerTerminal: 1, CatalogSize: 1, Sweep: true})
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if report.UnsyncedAfterRun != 15 {
		t.Errorf("Expected the 15 earlier sales still unsynced before the sweep, got %d", report.UnsyncedAfterRun)
	}
	if report.Sweep == nil || report.Sweep.Pushed != 15 {
		t.Fatalf("Expected the sweep to push 15 sales, got %+v", report.Sweep)
	}
	if report.UnsyncedAtEnd != 0 {
		t.Errorf("Expected nothing unsynced after the sweep, got %d", report.UnsyncedAtEnd)
	}
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	s := computeLatencyStats(durations)
	if s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("Unexpected min/max: %v/%v", s.Min, s.Max)
	}
	if s.P50 != 51*time.Millisecond {
		t.Errorf("Expected P50 51ms, got %v", s.P50)
	}
	if s.P95 != 96*time.Millisecond {
		t.Errorf("Expected P95 96ms, got %v", s.P95)
	}
	if s.Total != 100 {
		t.Errorf("Expected 100 samples, got %d", s.Total)
	}
	if durations[0] != 100*time.Millisecond {
		t.Error("Input slice must not be reordered")
	}

	if empty := computeLatencyStats(nil); empty.Total != 0 {
		t.Errorf("Expected zero stats for no samples, got %+v", empty)
	}
}

func TestReportPrint(t *testing.T) {
	var buf bytes.Buffer
	r := &Report{Sales: 3, UnsyncedAfterRun: 1, Sweep: &possync.SweepResult{Attempted: 1, Pushed: 1}}
	r.Print(&buf)
	for _, want := range []string{"Checkouts:", "Sales stored:        3", "1 pushed, 0 failed", "Unsynced at end:     0"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("Report output missing %q:\n%s", want, buf.String())
		}
	}
}
