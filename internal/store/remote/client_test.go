package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pos-system/possync/internal/docserver"
	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/remote"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := docserver.New(docserver.Config{DBPath: filepath.Join(t.TempDir(), "remote.db")})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Stop()
	})
	return ts
}

func newClient(t *testing.T, baseURL string) *remote.Client {
	t.Helper()
	c := remote.NewClient(remote.ClientConfig{
		BaseURL:      baseURL,
		Timeout:      2 * time.Second,
		ReconnectMin: 20 * time.Millisecond,
		ReconnectMax: 100 * time.Millisecond,
	}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// batches collects feed deliveries for assertions.
type batches struct {
	mu  sync.Mutex
	all []remote.Batch
	ch  chan struct{}
}

func newBatches() *batches {
	return &batches{ch: make(chan struct{}, 100)}
}

func (b *batches) add(batch remote.Batch) {
	b.mu.Lock()
	b.all = append(b.all, batch)
	b.mu.Unlock()
	b.ch <- struct{}{}
}

func (b *batches) next(t *testing.T) remote.Batch {
	t.Helper()
	select {
	case <-b.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.all[len(b.all)-1]
}

func TestClient_SetFetchDelete(t *testing.T) {
	ts := newServer(t)
	c := newClient(t, ts.URL)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	item := schema.Item{ID: "i1", Name: "Water", CategoryID: "c1", CreatedAt: 1000}
	require.NoError(t, c.Set(ctx, schema.KindItem, item.ID, item.Document()))

	docs, err := c.FetchAll(ctx, schema.KindItem)
	require.NoError(t, err)
	require.Contains(t, docs, "i1")

	got, err := schema.DecodeItem("i1", docs["i1"], time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Water", got.Name)
	assert.Equal(t, int64(1000), got.CreatedAt)

	require.NoError(t, c.Delete(ctx, schema.KindItem, "i1"))
	docs, err = c.FetchAll(ctx, schema.KindItem)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()

	c := newClient(t, "http://127.0.0.1:1")
	err := c.Set(ctx, schema.KindSale, "s1", schema.Document{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrUnavailable))
	assert.True(t, remote.IsRetryable(err))

	err = c.Set(ctx, schema.Kind("bogus"), "x", nil)
	assert.True(t, errors.Is(err, remote.ErrInvalidCollection))
	assert.False(t, remote.IsRetryable(err))

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	c = newClient(t, failing.URL)
	err = c.Delete(ctx, schema.KindItem, "i1")
	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.True(t, remote.IsRetryable(err))
}

func TestClient_Listen(t *testing.T) {
	ts := newServer(t)
	c := newClient(t, ts.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Set(ctx, schema.KindCategory, "c1", schema.Document{"categoryName": "Drinks"}))

	got := newBatches()
	sub, err := c.Listen(ctx, schema.KindCategory, got.add)
	require.NoError(t, err)
	defer sub.Close()

	snap := got.next(t)
	assert.True(t, snap.Snapshot)
	require.Len(t, snap.Upserts, 1)
	assert.Equal(t, "c1", snap.Upserts[0].ID)
	assert.Empty(t, snap.Removed)

	require.NoError(t, c.Set(ctx, schema.KindCategory, "c2", schema.Document{"categoryName": "Snacks"}))
	b := got.next(t)
	require.Len(t, b.Upserts, 1)
	assert.Equal(t, "c2", b.Upserts[0].ID)
	assert.Equal(t, "Snacks", b.Upserts[0].Fields["categoryName"])

	require.NoError(t, c.Delete(ctx, schema.KindCategory, "c1"))
	b = got.next(t)
	assert.Equal(t, []string{"c1"}, b.Removed)
}

func TestClient_NewID(t *testing.T) {
	c := remote.NewClient(remote.DefaultClientConfig(), nil)
	defer c.Close()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := c.NewID(schema.KindCategory)
		assert.Len(t, id, 20)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
