package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/local"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{Port: 0})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ MessageType) Message {
	t.Helper()
	for {
		msg := readMessage(t, ctx, conn)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestNewClientReceivesLatestState(t *testing.T) {
	server := startServer(t)

	server.Publish(MessageTypeCategories, []schema.Category{{ID: "c1", Name: "Drinks"}})
	server.Publish(MessageTypeCategories, []schema.Category{{ID: "c1", Name: "Drinks"}, {ID: "c2", Name: "Snacks"}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeCategories {
		t.Fatalf("Expected categories replay, got %s", msg.Type)
	}
	var cs []schema.Category
	if err := json.Unmarshal(msg.Data, &cs); err != nil {
		t.Fatal(err)
	}
	if len(cs) != 2 {
		t.Errorf("Expected the latest list of 2 categories, got %d", len(cs))
	}
}

func TestMessageBroadcast(t *testing.T) {
	server := startServer(t)

	// Seed one message so each connection has something to replay.
	server.Publish(MessageTypeSyncStatus, SyncStatusData{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn1 := dial(t, ctx, server)
	conn2 := dial(t, ctx, server)
	readUntil(t, ctx, conn1, MessageTypeSyncStatus)
	readUntil(t, ctx, conn2, MessageTypeSyncStatus)

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.ClientCount() != 2 {
		t.Fatalf("Expected 2 clients, got %d", server.ClientCount())
	}

	handler := NewHandler(server, nil, nil, nil)
	handler.OnSweepComplete(SweepCompleteData{Online: true, Attempted: 3, Pushed: 3})

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		msg := readUntil(t, ctx, conn, MessageTypeSweepComplete)
		var data SweepCompleteData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatal(err)
		}
		if data.Pushed != 3 || !data.Online {
			t.Errorf("Unexpected sweep data: %+v", data)
		}
	}
}

func TestHandlerStreamsTables(t *testing.T) {
	db, err := local.Open(filepath.Join(t.TempDir(), "pos.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	server := startServer(t)
	handler := NewHandler(server, db, nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- handler.Run(runCtx, time.Hour) }()
	t.Cleanup(func() {
		stop()
		<-done
	})

	conn := dial(t, ctx, server)

	if err := db.UpsertCategoryContext(ctx, &schema.Category{ID: "c1", Name: "Drinks", CreatedAt: 1}); err != nil {
		t.Fatal(err)
	}

	for {
		msg := readUntil(t, ctx, conn, MessageTypeCategories)
		var cs []schema.Category
		if err := json.Unmarshal(msg.Data, &cs); err != nil {
			t.Fatal(err)
		}
		if len(cs) == 1 && cs[0].Name == "Drinks" {
			break
		}
	}

	var status Message
	deadline := time.Now().Add(2 * time.Second)
	for {
		msg, ok := server.Latest(MessageTypeSyncStatus)
		if ok {
			status = msg
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected a status message after a table change")
		}
		time.Sleep(10 * time.Millisecond)
	}
	var data SyncStatusData
	if err := json.Unmarshal(status.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Counts.Categories > 1 {
		t.Errorf("Unexpected counts: %+v", data.Counts)
	}
}

func TestSummarizeSales(t *testing.T) {
	sales := make([]schema.Sale, 0, RecentSalesLimit+5)
	for i := 0; i < RecentSalesLimit+5; i++ {
		sales = append(sales, schema.Sale{
			ID:          "s",
			TotalAmount: decimal.RequireFromString("1.25"),
			IsSynced:    i%2 == 0,
		})
	}

	data := summarizeSales(sales)
	if data.Count != RecentSalesLimit+5 {
		t.Errorf("Expected count %d, got %d", RecentSalesLimit+5, data.Count)
	}
	if data.Revenue != "68.75" {
		t.Errorf("Expected revenue 68.75, got %s", data.Revenue)
	}
	if data.Unsynced != 27 {
		t.Errorf("Expected 27 unsynced, got %d", data.Unsynced)
	}
	if len(data.Recent) != RecentSalesLimit {
		t.Errorf("Expected %d recent sales, got %d", RecentSalesLimit, len(data.Recent))
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("Failed to get health: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	server := startServer(t)
	server.Publish(MessageTypeSales, SalesData{Count: 2, Revenue: "3.00"})
	server.Publish(MessageTypeSyncStatus, SyncStatusData{})

	resp, err := http.Get("http://" + server.GetAddr() + "/snapshot")
	if err != nil {
		t.Fatalf("Failed to get snapshot: %v", err)
	}
	defer resp.Body.Close()

	var msgs []Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Type != MessageTypeSyncStatus || msgs[1].Type != MessageTypeSales {
		t.Errorf("Unexpected snapshot order: %s, %s", msgs[0].Type, msgs[1].Type)
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	server := NewServer(&Config{Port: 0})
	c := &client{send: make(chan []byte, 1)}
	server.clients[c] = struct{}{}

	server.Publish(MessageTypeSyncStatus, SyncStatusData{})
	server.Publish(MessageTypeSyncStatus, SyncStatusData{})

	if server.ClientCount() != 0 {
		t.Fatalf("Expected the full client to be dropped, %d left", server.ClientCount())
	}
	if _, ok := <-c.send; !ok {
		t.Fatal("Expected the first frame to stay queued")
	}
	if _, ok := <-c.send; ok {
		t.Fatal("Expected the queue to be closed")
	}
}
