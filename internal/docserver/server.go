// Package docserver is the remote document store shared by POS devices.
//
// It serves one document collection per record kind over HTTP and streams
// changes to listeners over a websocket:
//
//	PUT    /v1/collections/:collection/docs/:id
//	DELETE /v1/collections/:collection/docs/:id
//	GET    /v1/collections/:collection/docs
//	GET    /v1/collections/:collection/listen
//	GET    /health
//
// A listener first receives a snapshot of the whole collection, then one
// frame per burst of changes. Documents are persisted in SQLite.
package docserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/remote"
)

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: ":8080").
	Addr string

	// DBPath is the SQLite file holding documents.
	DBPath string

	// Logger for server activity (default: no-op).
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:   ":8080",
		DBPath: "possync-remote.db",
	}
}

// Server serves the document API.
type Server struct {
	addr     string
	store    *Store
	hub      *hub
	engine   *gin.Engine
	listener net.Listener
	server   *http.Server
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the document database and builds the HTTP routes. Call Start to
// listen, or mount Handler in a test server.
func New(cfg Config) (*Server, error) {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.DBPath == "" {
		cfg.DBPath = def.DBPath
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:   cfg.Addr,
		store:  store,
		hub:    newHub(),
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	e := gin.New()
	e.Use(gin.Recovery(), requestLogger(s.logger))

	e.GET("/health", s.handleHealth)

	v1 := e.Group("/v1/collections/:collection", validCollection)
	v1.GET("/docs", s.handleList)
	v1.PUT("/docs/:id", s.handleSet)
	v1.DELETE("/docs/:id", s.handleDelete)
	v1.GET("/listen", s.handleListen)

	return e
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins listening in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("document server listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("document server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down and closes the database.
func (s *Server) Stop() error {
	s.cancel()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}
	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to close document store: %w", err)
	}
	s.logger.Info("document server stopped")
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func validCollection(c *gin.Context) {
	if !schema.Kind(c.Param("collection")).Valid() {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"listeners": s.hub.count(),
	})
}

func (s *Server) handleList(c *gin.Context) {
	docs, err := s.store.List(c.Request.Context(), c.Param("collection"))
	if err != nil {
		s.logger.Error("failed to list documents", zap.String("collection", c.Param("collection")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, remote.ListResponse{Documents: docs})
}

func (s *Server) handleSet(c *gin.Context) {
	collection, id := c.Param("collection"), c.Param("id")

	var req remote.SetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("failed to bind document", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	created, updateTime, err := s.store.Put(c.Request.Context(), collection, id, req.Fields)
	if err != nil {
		s.logger.Error("failed to write document",
			zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	changeType := remote.ChangeModified
	if created {
		changeType = remote.ChangeAdded
	}
	s.hub.publish(collection, remote.FeedChange{Type: changeType, ID: id, Fields: req.Fields})

	c.JSON(http.StatusOK, remote.DocumentJSON{ID: id, Fields: req.Fields, UpdateTime: updateTime})
}

func (s *Server) handleDelete(c *gin.Context) {
	collection, id := c.Param("collection"), c.Param("id")

	existed, err := s.store.Remove(c.Request.Context(), collection, id)
	if err != nil {
		s.logger.Error("failed to delete document",
			zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if existed {
		s.hub.publish(collection, remote.FeedChange{Type: remote.ChangeRemoved, ID: id})
	}
	c.Status(http.StatusNoContent)
}

// handleListen streams a snapshot and then change frames. The subscriber is
// registered before the snapshot is read so no change can fall between them.
func (s *Server) handleListen(c *gin.Context) {
	collection := c.Param("collection")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := s.hub.subscribe(collection)
	defer s.hub.unsubscribe(collection, sub)

	// Client frames are ignored; CloseRead cancels ctx when the peer goes away.
	ctx := conn.CloseRead(s.ctx)
	log := s.logger.With(zap.String("collection", collection))
	log.Debug("listener connected", zap.Int("listeners", s.hub.count()))

	docs, err := s.store.List(ctx, collection)
	if err != nil {
		log.Error("failed to load snapshot", zap.Error(err))
		conn.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}
	snapshot := remote.FeedMessage{Type: remote.FeedSnapshot, Collection: collection, Changes: make([]remote.FeedChange, 0, len(docs))}
	for _, d := range docs {
		snapshot.Changes = append(snapshot.Changes, remote.FeedChange{Type: remote.ChangeAdded, ID: d.ID, Fields: d.Fields})
	}
	if err := s.send(ctx, conn, snapshot); err != nil {
		log.Debug("failed to send snapshot", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "")
			return
		case <-sub.signal:
			changes := sub.drain()
			if len(changes) == 0 {
				continue
			}
			msg := remote.FeedMessage{Type: remote.FeedChanges, Collection: collection, Changes: changes}
			if err := s.send(ctx, conn, msg); err != nil {
				log.Debug("listener disconnected", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, msg remote.FeedMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
