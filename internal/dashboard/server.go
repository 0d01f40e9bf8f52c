// Package dashboard serves a read-only WebSocket view of the local POS
// database and of sync activity.
//
// Clients connect to /ws and receive the latest message of every type, then
// each new message as it is published. /snapshot returns the same latest
// messages as one JSON document for clients that only poll.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// MessageType names the payload carried by a Message.
type MessageType string

const (
	MessageTypeCategories    MessageType = "categories"
	MessageTypeItems         MessageType = "items"
	MessageTypeSales         MessageType = "sales"
	MessageTypeSyncStatus    MessageType = "sync_status"
	MessageTypeSyncComplete  MessageType = "sync_complete"
	MessageTypeSweepComplete MessageType = "sweep_complete"
)

// replayOrder is the order in which a new client receives the latest state.
// Status comes first so a client can render counts before the tables arrive.
var replayOrder = []MessageType{
	MessageTypeSyncStatus,
	MessageTypeCategories,
	MessageTypeItems,
	MessageTypeSales,
	MessageTypeSyncComplete,
	MessageTypeSweepComplete,
}

// Message is one frame sent to dashboard clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	clientQueue  = 64
	writeTimeout = 5 * time.Second
)

// client is one connected browser. Frames are queued on send and written by
// the connection's own goroutine.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server fans published messages out to WebSocket clients.
type Server struct {
	addr     string
	listener net.Listener
	http     *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
	latest  map[MessageType][]byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// Config holds server configuration.
type Config struct {
	// Port to listen on. 0 picks a free port.
	Port   int
	Logger *zap.Logger
}

// DefaultConfig returns the daemon's default dashboard settings.
func DefaultConfig() *Config {
	return &Config{Port: 8090, Logger: zap.NewNop()}
}

// NewServer creates a server. It does not listen until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    fmt.Sprintf(":%d", config.Port),
		clients: make(map[*client]struct{}),
		latest:  make(map[MessageType][]byte),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.Named("dashboard"),
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /health", s.handleHealth)
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("dashboard listening", zap.String("addr", ln.Addr().String()))
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dashboard server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop closes every client connection and shuts the listener down.
func (s *Server) Stop() error {
	s.cancel()

	var err error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if serr := s.http.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("dashboard shutdown: %w", serr)
		}
	}
	s.wg.Wait()
	s.logger.Info("dashboard stopped")
	return err
}

// Broadcast records msg as the latest of its type and queues it for every
// client. A client whose queue is full is disconnected.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal message", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[msg.Type] = frame
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
			s.logger.Warn("dashboard client too slow, disconnecting")
			s.dropLocked(c)
		}
	}
}

// Publish marshals data and broadcasts it as a message of type typ.
func (s *Server) Publish(typ MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal payload", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	s.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: raw})
}

// Latest returns the last message broadcast with type typ.
func (s *Server) Latest(typ MessageType) (Message, bool) {
	s.mu.Lock()
	frame, ok := s.latest[typ]
	s.mu.Unlock()
	if !ok {
		return Message{}, false
	}
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, false
	}
	return msg, true
}

// register adds a client whose queue already holds the latest state. Both
// happen under one lock so no broadcast is missed or replayed twice.
func (s *Server) register(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, clientQueue+len(replayOrder))}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, typ := range replayOrder {
		if frame, ok := s.latest[typ]; ok {
			c.send <- frame
		}
	}
	s.clients[c] = struct{}{}
	return c
}

func (s *Server) dropLocked(c *client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	s.dropLocked(c)
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Debug("client disconnected", zap.Int("clients", n))
}

// handleWebSocket owns one connection for its lifetime: it writes queued
// frames until the client leaves, the queue is closed, or the server stops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()

	c := s.register(conn)
	s.logger.Debug("client connected", zap.Int("clients", s.ClientCount()))
	defer s.unregister(c)

	// The dashboard is read-only; CloseRead ends ctx when the peer goes away.
	ctx := conn.CloseRead(s.ctx)
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "dashboard shutting down")
			return
		case frame, ok := <-c.send:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "client too slow")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				s.logger.Debug("failed to send to client", zap.Error(err))
				_ = conn.CloseNow()
				return
			}
		}
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]json.RawMessage, 0, len(s.latest))
	for _, typ := range replayOrder {
		if frame, ok := s.latest[typ]; ok {
			out = append(out, frame)
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// GetAddr returns the listening address, or the configured one before Start.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
