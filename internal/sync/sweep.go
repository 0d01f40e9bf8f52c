package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/schema"
)

// SweepResult summarizes one PushUnsynced run.
type SweepResult struct {
	Attempted int           `json:"attempted" yaml:"attempted"`
	Pushed    int           `json:"pushed" yaml:"pushed"`
	Failed    int           `json:"failed" yaml:"failed"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// PushUnsynced pushes every unsynced sale and marks each one synced once the
// remote accepts it.
//
// All sales are attempted even after a failure. If any sale is left
// unsynced the error wraps ErrRetryLater and the caller should schedule
// another run. Running the sweep twice is harmless: the remote write is
// keyed by sale id.
func (r *SaleRepository) PushUnsynced(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var res SweepResult

	sales, err := r.local.ListUnsyncedSalesContext(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: failed to load unsynced sales: %w", ErrRetryLater, err)
	}

	for _, s := range sales {
		if ctx.Err() != nil {
			break
		}
		res.Attempted++
		if err := r.pushNow(ctx, s); err != nil {
			res.Failed++
			r.logger.Warn("sweep push failed", zap.String("id", s.ID), zap.Error(err))
			continue
		}
		res.Pushed++
	}
	res.Duration = time.Since(start)

	r.logger.Info("sweep complete",
		zap.Int("pending", len(sales)),
		zap.Int("pushed", res.Pushed),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration))

	if left := len(sales) - res.Pushed; left > 0 {
		return res, fmt.Errorf("%w: %d of %d sales still unsynced", ErrRetryLater, left, len(sales))
	}
	return res, nil
}

func (r *SaleRepository) pushNow(ctx context.Context, s schema.Sale) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.PushTimeout)
	defer cancel()

	if err := r.remote.Set(ctx, schema.KindSale, s.ID, s.Document()); err != nil {
		return err
	}
	return r.local.MarkSaleSyncedContext(ctx, s.ID)
}
