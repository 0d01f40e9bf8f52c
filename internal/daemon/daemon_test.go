package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/pos-system/possync/internal/dashboard"
	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/local"
	"github.com/pos-system/possync/internal/store/remote/remotetest"
	possync "github.com/pos-system/possync/internal/sync"
)

func setupDaemon(t *testing.T, config *Config) (*Daemon, *possync.Repositories, *remotetest.Fake) {
	t.Helper()

	db, err := local.Open(filepath.Join(t.TempDir(), "pos.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := remotetest.New()
	repos := possync.NewRepositories(db, fake, possync.Options{PushTimeout: time.Second})
	t.Cleanup(func() { _ = repos.Close(context.Background()) })

	d, err := New(db, repos, nil, config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d, repos, fake
}

func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- d.Start(context.Background()) }()
	t.Cleanup(func() {
		d.Stop()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("daemon did not stop")
		}
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNew(t *testing.T) {
	db, err := local.Open(filepath.Join(t.TempDir(), "pos.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repos := possync.NewRepositories(db, remotetest.New(), possync.Options{})
	defer repos.Close(context.Background())

	tests := []struct {
		name    string
		db      *local.DB
		repos   *possync.Repositories
		wantErr bool
	}{
		{"valid", db, repos, false},
		{"nil db", nil, repos, true},
		{"nil repos", db, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.db, tt.repos, nil, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && d.Scheduler() == nil {
				t.Error("daemon has no scheduler")
			}
		})
	}
}

func TestDaemon_InitialSyncAndSweep(t *testing.T) {
	d, repos, fake := setupDaemon(t, &Config{
		Sweep:         SchedulerConfig{Interval: 20 * time.Millisecond, MaxBackoff: 50 * time.Millisecond},
		WatchDebounce: 10 * time.Millisecond,
		DashboardPort: 0,
		Logger:        zap.NewNop(),
	})
	fake.Seed(schema.KindCategory, "c1", schema.Document{"categoryName": "Drinks", "createdAt": int64(1000)})
	fake.SetOffline(true)

	startDaemon(t, d)
	ctx := context.Background()

	sale, err := repos.Sales.Add(ctx, schema.Sale{TotalAmount: decimal.NewFromInt(5)})
	if err != nil {
		t.Fatalf("Add sale: %v", err)
	}
	if err := repos.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := repos.Sales.Get(ctx, sale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsSynced {
		t.Fatal("sale should not be synced while offline")
	}

	fake.SetOffline(false)
	d.Scheduler().TriggerNow()

	eventually(t, "sweep to push the sale", func() bool {
		s, err := repos.Sales.Get(ctx, sale.ID)
		return err == nil && s.IsSynced
	})
	if _, ok := fake.Doc(schema.KindSale, sale.ID); !ok {
		t.Error("sale missing from remote")
	}

	eventually(t, "sweep result on the dashboard", func() bool {
		msg, ok := d.server.Latest(dashboard.MessageTypeSweepComplete)
		return ok && len(msg.Data) > 0
	})
	if _, ok := d.server.Latest(dashboard.MessageTypeSyncComplete); !ok {
		t.Error("initial sync result was not published")
	}
}

func TestDaemon_PullsRemoteOnStart(t *testing.T) {
	d, repos, fake := setupDaemon(t, &Config{
		Sweep:         SchedulerConfig{Interval: time.Hour},
		WatchDebounce: -1,
		DashboardPort: -1,
		Logger:        zap.NewNop(),
	})
	fake.Seed(schema.KindCategory, "c1", schema.Document{"categoryName": "Drinks", "createdAt": int64(1000)})

	startDaemon(t, d)
	ctx := context.Background()

	eventually(t, "category to be pulled", func() bool {
		c, err := repos.Categories.Get(ctx, "c1")
		return err == nil && c.Name == "Drinks"
	})

	// Realtime sync is running once the initial pull is visible.
	eventually(t, "realtime subscription", func() bool {
		return repos.Categories.Stats().Listening
	})
	fake.RemoteSet(schema.KindCategory, "c2", schema.Document{"categoryName": "Snacks"})
	eventually(t, "realtime change", func() bool {
		_, err := repos.Categories.Get(ctx, "c2")
		return err == nil
	})
}

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.db.daemon.lock")

	first, err := acquireLock(path)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := acquireLock(path); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := first.release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	again, err := acquireLock(path)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	_ = again.release()
}

// overflowRepo is a Repository whose only live behavior is Overflow and
// SyncAll.
type overflowRepo struct {
	possync.Repository
	overflow chan struct{}
	syncs    atomic.Int32
}

func (r *overflowRepo) Kind() schema.Kind         { return schema.KindItem }
func (r *overflowRepo) Overflow() <-chan struct{} { return r.overflow }

func (r *overflowRepo) SyncAll(context.Context) (possync.SyncResult, error) {
	r.syncs.Add(1)
	return possync.SyncResult{Kind: schema.KindItem}, nil
}

func TestResyncOnOverflow(t *testing.T) {
	d := &Daemon{logger: zaptest.NewLogger(t)}
	repo := &overflowRepo{overflow: make(chan struct{}, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.resyncOnOverflow(ctx, repo) }()

	repo.overflow <- struct{}{}
	eventually(t, "resync", func() bool { return repo.syncs.Load() == 1 })

	cancel()
	if err := <-done; err != nil {
		t.Errorf("resyncOnOverflow returned %v", err)
	}
}
