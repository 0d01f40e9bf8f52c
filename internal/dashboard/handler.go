package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/schema"
	"github.com/pos-system/possync/internal/store/local"
	possync "github.com/pos-system/possync/internal/sync"
)

// RecentSalesLimit caps the sales carried in one sales message.
const RecentSalesLimit = 50

// SalesData summarizes the sales table
type SalesData struct {
	Count    int           `json:"count"`
	Revenue  string        `json:"revenue"`
	Unsynced int           `json:"unsynced"`
	Recent   []schema.Sale `json:"recent"`
}

// SyncStatusData contains table counts and per-kind ingestion counters
type SyncStatusData struct {
	Counts local.Counts                        `json:"counts"`
	Ingest map[schema.Kind]possync.IngestStats `json:"ingest"`
}

// SyncCompleteData contains full sync results
type SyncCompleteData struct {
	Results  []possync.SyncResult `json:"results"`
	Duration time.Duration        `json:"duration"`
}

// SweepCompleteData contains the outcome of one retry sweep
type SweepCompleteData struct {
	Online    bool          `json:"online"`
	Attempted int           `json:"attempted"`
	Pushed    int           `json:"pushed"`
	Failed    int           `json:"failed"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	NextRun   time.Time     `json:"next_run"`
}

// Handler feeds the dashboard from the local database's live streams and
// from daemon events.
type Handler struct {
	server *Server
	db     *local.DB
	repos  []possync.Repository
	logger *zap.Logger
}

// NewHandler creates a handler connected to a dashboard server.
func NewHandler(server *Server, db *local.DB, repos []possync.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		server: server,
		db:     db,
		repos:  repos,
		logger: logger.Named("dashboard"),
	}
}

// Run broadcasts every change of the category, item and sales tables, plus
// a status message after each change and every statusInterval. It returns
// when ctx is done.
func (h *Handler) Run(ctx context.Context, statusInterval time.Duration) error {
	categories := h.db.LiveCategories(ctx)
	items := h.db.LiveItems(ctx)
	sales := h.db.LiveSales(ctx)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cs, ok := <-categories:
			if !ok {
				return nil
			}
			h.server.Publish(MessageTypeCategories, cs)

		case its, ok := <-items:
			if !ok {
				return nil
			}
			h.server.Publish(MessageTypeItems, its)

		case ss, ok := <-sales:
			if !ok {
				return nil
			}
			h.server.Publish(MessageTypeSales, summarizeSales(ss))

		case <-ticker.C:
		}
		h.PublishStatus(ctx)
	}
}

// PublishStatus broadcasts current counts and ingestion counters.
func (h *Handler) PublishStatus(ctx context.Context) {
	counts, err := h.db.CountsContext(ctx)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("failed to count rows", zap.Error(err))
		}
		return
	}
	data := SyncStatusData{Counts: counts, Ingest: make(map[schema.Kind]possync.IngestStats, len(h.repos))}
	for _, r := range h.repos {
		data.Ingest[r.Kind()] = r.Stats()
	}
	h.server.Publish(MessageTypeSyncStatus, data)
}

// OnSyncComplete handles full sync completion events
func (h *Handler) OnSyncComplete(results []possync.SyncResult, duration time.Duration) {
	h.server.Publish(MessageTypeSyncComplete, SyncCompleteData{Results: results, Duration: duration})
}

// OnSweepComplete handles retry sweep completion events
func (h *Handler) OnSweepComplete(data SweepCompleteData) {
	h.server.Publish(MessageTypeSweepComplete, data)
}

func summarizeSales(ss []schema.Sale) SalesData {
	data := SalesData{Count: len(ss)}
	revenue := decimal.Zero
	for _, s := range ss {
		revenue = revenue.Add(s.TotalAmount)
		if !s.IsSynced {
			data.Unsynced++
		}
	}
	data.Revenue = revenue.StringFixed(2)

	recent := ss
	if len(recent) > RecentSalesLimit {
		recent = recent[:RecentSalesLimit]
	}
	data.Recent = recent
	return data
}
