package remote

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/pos-system/possync/internal/schema"
)

// maxFeedMessage bounds a single feed frame; snapshots carry whole collections.
const maxFeedMessage = 32 << 20

// ClientConfig holds document server client settings.
type ClientConfig struct {
	// BaseURL is the document server root, e.g. http://localhost:8080.
	BaseURL string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// ReconnectMin and ReconnectMax bound the change feed reconnect backoff.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// DefaultClientConfig returns a configuration with sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:      "http://localhost:8080",
		Timeout:      10 * time.Second,
		ReconnectMin: 500 * time.Millisecond,
		ReconnectMax: 30 * time.Second,
	}
}

// Client talks to the document server over HTTP and a websocket change feed.
type Client struct {
	cfg    ClientConfig
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a Client. A nil logger discards output.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	def := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = def.ReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = max(def.ReconnectMax, cfg.ReconnectMin)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// Close releases the HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// NewID implements Store.NewID.
func (c *Client) NewID(schema.Kind) string {
	return NewDocumentID()
}

// Ping checks that the document server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return &StatusError{Op: "ping", Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// Set implements Store.Set.
func (c *Client) Set(ctx context.Context, kind schema.Kind, id string, doc schema.Document) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, kind)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"collection": string(kind), "id": id}).
		SetHeader("Content-Type", "application/json").
		SetBody(SetRequest{Fields: doc}).
		Put("/v1/collections/{collection}/docs/{id}")
	if err != nil {
		return fmt.Errorf("%w: set %s/%s: %v", ErrUnavailable, kind, id, err)
	}
	if resp.IsError() {
		return &StatusError{Op: "set " + string(kind) + "/" + id, Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// Delete implements Store.Delete.
func (c *Client) Delete(ctx context.Context, kind schema.Kind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, kind)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"collection": string(kind), "id": id}).
		Delete("/v1/collections/{collection}/docs/{id}")
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", ErrUnavailable, kind, id, err)
	}
	if resp.IsError() {
		return &StatusError{Op: "delete " + string(kind) + "/" + id, Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// FetchAll implements Store.FetchAll.
func (c *Client) FetchAll(ctx context.Context, kind schema.Kind) (map[string]schema.Document, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, kind)
	}
	var out ListResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("collection", string(kind)).
		SetResult(&out).
		Get("/v1/collections/{collection}/docs")
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrUnavailable, kind, err)
	}
	if resp.IsError() {
		return nil, &StatusError{Op: "fetch " + string(kind), Status: resp.StatusCode(), Body: resp.String()}
	}

	docs := make(map[string]schema.Document, len(out.Documents))
	for _, d := range out.Documents {
		if d.Fields == nil {
			d.Fields = schema.Document{}
		}
		docs[d.ID] = d.Fields
	}
	return docs, nil
}

// Listen implements Store.Listen.
//
// The feed reconnects with exponential backoff. Every reconnect starts with
// a fresh snapshot; ids seen before the disconnect but missing from the new
// snapshot are reported as removed, so deletions made while offline still
// reach fn. Close must not be called from inside fn.
func (c *Client) Listen(ctx context.Context, kind schema.Kind, fn func(Batch)) (Subscription, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, kind)
	}
	feedURL, err := c.feedURL(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &listener{
		url:    feedURL,
		kind:   kind,
		fn:     fn,
		cfg:    c.cfg,
		logger: c.logger.With(zap.String("collection", string(kind))),
		cancel: cancel,
		done:   make(chan struct{}),
		known:  make(map[string]struct{}),
	}
	go l.run(ctx)
	return l, nil
}

func (c *Client) feedURL(kind schema.Kind) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", c.cfg.BaseURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/collections/" + url.PathEscape(string(kind)) + "/listen"
	return u.String(), nil
}

type listener struct {
	url    string
	kind   schema.Kind
	fn     func(Batch)
	cfg    ClientConfig
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	// known is only touched by the run goroutine.
	known map[string]struct{}
}

// Close stops the feed and waits for the delivery goroutine to exit.
func (l *listener) Close() error {
	l.cancel()
	<-l.done
	return nil
}

func (l *listener) run(ctx context.Context) {
	defer close(l.done)

	backoff := l.cfg.ReconnectMin
	for {
		synced, err := l.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if synced {
			backoff = l.cfg.ReconnectMin
		}
		l.logger.Warn("change feed disconnected",
			zap.Duration("retry_in", backoff),
			zap.Error(err))

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff = min(backoff*2, l.cfg.ReconnectMax)
	}
}

// session runs one websocket connection until it fails. synced reports
// whether a snapshot was received.
func (l *listener) session(ctx context.Context) (synced bool, err error) {
	conn, _, err := websocket.Dial(ctx, l.url, nil)
	if err != nil {
		return false, fmt.Errorf("%w: dial feed: %v", ErrUnavailable, err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFeedMessage)

	l.logger.Debug("change feed connected")
	for {
		var msg FeedMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return synced, err
		}
		if msg.Type == FeedSnapshot {
			synced = true
		}
		batch := l.apply(msg)
		if batch.Snapshot || !batch.Empty() {
			l.fn(batch)
		}
	}
}

// apply folds a feed message into the known id set and converts it to a Batch.
func (l *listener) apply(msg FeedMessage) Batch {
	if msg.Type == FeedSnapshot {
		b := Batch{Snapshot: true}
		seen := make(map[string]struct{}, len(msg.Changes))
		for _, ch := range msg.Changes {
			if ch.Type == ChangeRemoved {
				continue
			}
			seen[ch.ID] = struct{}{}
			b.Upserts = append(b.Upserts, Change{ID: ch.ID, Fields: ch.Fields})
		}
		for id := range l.known {
			if _, ok := seen[id]; !ok {
				b.Removed = append(b.Removed, id)
			}
		}
		sort.Strings(b.Removed)
		l.known = seen
		return b
	}

	var b Batch
	for _, ch := range msg.Changes {
		switch ch.Type {
		case ChangeRemoved:
			delete(l.known, ch.ID)
			b.Removed = append(b.Removed, ch.ID)
		default:
			l.known[ch.ID] = struct{}{}
			b.Upserts = append(b.Upserts, Change{ID: ch.ID, Fields: ch.Fields})
		}
	}
	return b
}
