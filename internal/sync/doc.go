// Package sync keeps the local POS database and the shared remote document
// store converging.
//
// # Overview
//
// Every record kind (category, item, sale) has a repository that owns both
// directions of replication:
//
//	UI action ──► Repository ──► LocalStore (synchronous, returned to caller)
//	                   │
//	                   └──► push Worker ──► RemoteStore (detached, best effort)
//
//	RemoteStore feed ──► pipeline ──► ingest Worker ──► LocalStore
//
// Reads are always served from LocalStore, either as one-off queries or as
// live streams that re-emit whenever the underlying tables change.
//
// # Usage
//
//	db, err := local.Open(".possync/pos.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	store := remote.NewClient(remote.DefaultClientConfig(), logger)
//	repos := sync.NewRepositories(db, store, sync.Options{Logger: logger})
//	defer repos.Close(context.Background())
//
//	// Pull the remote state, then follow it.
//	if _, err := repos.SyncAll(ctx); err != nil {
//	    return err
//	}
//	if err := repos.StartRealtimeSync(ctx); err != nil {
//	    return err
//	}
//
//	cat, err := repos.Categories.Add(ctx, "Drinks")
//
// # Ids
//
// Categories and items take ids in the remote store's format at creation
// time (RemoteAssigned); sales use random UUIDs (LocallyGenerated). Either
// way the id is known before the first write, so local and remote copies
// share it.
//
// # Error Handling
//
// Local failures are returned to the caller. Remote failures are logged and
// never returned: the local write is what the caller depends on. Remote
// documents without a name are skipped. A sale whose push fails stays
// unsynced, and PushUnsynced returns ErrRetryLater until every sale has
// reached the remote.
//
// Remote deletes are attempted once. There is no queue of pending deletes,
// so a delete made while offline leaves the remote document in place and a
// later SyncAll of categories or items brings it back.
//
// # Concurrency
//
// Repositories are safe for concurrent use. The ingest pipeline and local
// writes may race on the same id; the last write wins, except for a sale's
// IsSynced flag which never goes back to false. Detached work for one id runs
// in order on one worker lane; work for different ids runs concurrently.
package sync
