// Package daemon runs the long-lived sync agent of a POS terminal.
//
// The daemon owns the background half of offline-first sync: it pulls the
// remote collections at startup, keeps realtime subscriptions open, and
// periodically pushes sales that were recorded while the terminal was
// offline.
//
// # Architecture
//
// The daemon consists of several components:
//
//   - Scheduler: runs the unsynced-sales sweep on an interval, gated on a
//     connectivity probe, with exponential backoff after failures
//   - Daemon: orchestrates startup, the scheduler, overflow resyncs, the
//     database file watcher and the dashboard
//   - lock file: keeps a second daemon off the same database
//
// # Startup
//
//	db, _ := local.Open("pos.db")
//	client := remote.NewClient(remote.DefaultClientConfig(), logger)
//	repos := possync.NewRepositories(db, client, possync.Options{Logger: logger})
//
//	d, err := daemon.New(db, repos, client, daemon.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = d.Start(ctx) // blocks until ctx is cancelled
//
// Start performs, in order:
//  1. Take <db>.daemon.lock (ErrAlreadyRunning if held)
//  2. Full sync of categories, items and sales
//  3. Realtime subscription for every kind
//  4. File watcher, dashboard, scheduler and overflow loops
//
// A failed initial sync only stops startup for local errors. An unreachable
// remote leaves the local data as it is and the daemon keeps running.
//
// # Sweep Scheduling
//
// The scheduler sweeps once at startup and then every Interval. Before each
// sweep the Prober is called; when it fails the sweep is skipped and the
// scheduler is marked offline. A sweep that leaves sales unsynced doubles
// the delay for every consecutive failure, up to MaxBackoff:
//
//	failures  delay (Interval = 1m)
//	0         1m
//	1         2m
//	2         4m
//	6+        1h (MaxBackoff)
//
// TriggerNow starts a sweep without waiting, e.g. when connectivity returns.
// Sweeps never overlap; a second caller of RunOnce gets ErrSweepInProgress.
//
// # Overflow
//
// When a repository's ingestion queue is full, the change is dropped and the
// repository signals on Overflow(). The daemon answers with a full sync of
// that kind, which restores any change that was lost.
package daemon
