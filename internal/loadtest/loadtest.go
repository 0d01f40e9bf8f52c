// Package loadtest drives the sync repositories the way a busy store does:
// many terminals checking out at once while others read the sales list.
//
// It checks that every checkout lands in the local database, reports write
// and read latency, and measures how many sales the detached pushes left
// for the retry sweep.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pos-system/possync/internal/checkout"
	"github.com/pos-system/possync/internal/schema"
	possync "github.com/pos-system/possync/internal/sync"
)

// Config sizes a run.
type Config struct {
	Terminals        int  // concurrent checkout writers
	SalesPerTerminal int  // checkouts per writer
	Readers          int  // concurrent sales list readers
	CatalogSize      int  // items created before the run
	Sweep            bool // run PushUnsynced once the writers finish
	Seed             uint64
	Logger           *zap.Logger
}

// DefaultConfig returns a small run suitable for a laptop.
func DefaultConfig() Config {
	return Config{
		Terminals:        10,
		SalesPerTerminal: 20,
		Readers:          2,
		CatalogSize:      25,
		Sweep:            true,
		Seed:             42,
	}
}

// LatencyStats captures performance metrics from a run.
type LatencyStats struct {
	Min    time.Duration `json:"min" yaml:"min"`
	Max    time.Duration `json:"max" yaml:"max"`
	Mean   time.Duration `json:"mean" yaml:"mean"`
	P50    time.Duration `json:"p50" yaml:"p50"`
	P95    time.Duration `json:"p95" yaml:"p95"`
	P99    time.Duration `json:"p99" yaml:"p99"`
	Total  int           `json:"total" yaml:"total"`
	Errors int           `json:"errors" yaml:"errors"`
}

// Report is the outcome of a run.
type Report struct {
	Writes LatencyStats `json:"writes" yaml:"writes"`
	Reads  LatencyStats `json:"reads" yaml:"reads"`

	Sales            int                  `json:"sales" yaml:"sales"`
	UnsyncedAfterRun int                  `json:"unsyncedAfterRun" yaml:"unsyncedAfterRun"`
	Sweep            *possync.SweepResult `json:"sweep,omitempty" yaml:"sweep,omitempty"`
	UnsyncedAtEnd    int                  `json:"unsyncedAtEnd" yaml:"unsyncedAtEnd"`
	Elapsed          time.Duration        `json:"elapsed" yaml:"elapsed"`
}

// ErrLostSales is returned when fewer sales are stored locally than were
// checked out.
var ErrLostSales = errors.New("sales missing from the local database")

// Run creates a catalog, then starts the terminals and readers and waits
// for them and for every detached push to finish.
func Run(ctx context.Context, repos *possync.Repositories, cfg Config) (*Report, error) {
	def := DefaultConfig()
	if cfg.Terminals <= 0 {
		cfg.Terminals = def.Terminals
	}
	if cfg.SalesPerTerminal <= 0 {
		cfg.SalesPerTerminal = def.SalesPerTerminal
	}
	if cfg.CatalogSize <= 0 {
		cfg.CatalogSize = def.CatalogSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.Named("loadtest")

	before, err := repos.Sales.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count existing sales: %w", err)
	}

	items, err := createCatalog(ctx, repos, cfg.CatalogSize)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	svc := checkout.NewService(repos.Sales, zap.NewNop())

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		writes     []time.Duration
		writeErrs  int
		reads      []time.Duration
		readErrs   int
		writersEnd = make(chan struct{})
	)

	for i := 0; i < cfg.Terminals; i++ {
		wg.Add(1)
		go func(terminal int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(terminal)))
			durations := make([]time.Duration, 0, cfg.SalesPerTerminal)
			errs := 0
			for j := 0; j < cfg.SalesPerTerminal && ctx.Err() == nil; j++ {
				cart := randomCart(rng, items)
				t0 := time.Now()
				if _, err := svc.Checkout(ctx, cart); err != nil {
					errs++
					logger.Warn("checkout failed", zap.Int("terminal", terminal), zap.Error(err))
					continue
				}
				durations = append(durations, time.Since(t0))
			}
			mu.Lock()
			writes = append(writes, durations...)
			writeErrs += errs
			mu.Unlock()
		}(i)
	}

	var rwg sync.WaitGroup
	for i := 0; i < cfg.Readers; i++ {
		rwg.Add(1)
		go func() {
			defer rwg.Done()
			var durations []time.Duration
			errs := 0
		loop:
			for {
				select {
				case <-writersEnd:
					break loop
				case <-ctx.Done():
					break loop
				default:
				}
				t0 := time.Now()
				if _, err := repos.Sales.ListBetween(ctx, 0, time.Now().UnixMilli()); err != nil {
					errs++
				} else {
					durations = append(durations, time.Since(t0))
				}
				time.Sleep(time.Millisecond)
			}
			mu.Lock()
			reads = append(reads, durations...)
			readErrs += errs
			mu.Unlock()
		}()
	}

	wg.Wait()
	close(writersEnd)
	rwg.Wait()

	if err := repos.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed waiting for pushes: %w", err)
	}

	report := &Report{
		Writes: computeLatencyStats(writes),
		Reads:  computeLatencyStats(reads),
	}
	report.Writes.Errors = writeErrs
	report.Reads.Errors = readErrs

	after, err := repos.Sales.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count sales: %w", err)
	}
	report.Sales = len(after) - len(before)
	if want := len(writes); report.Sales != want {
		return report, fmt.Errorf("%w: checked out %d, stored %d", ErrLostSales, want, report.Sales)
	}

	unsynced, err := repos.Sales.GetUnsynced(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count unsynced sales: %w", err)
	}
	report.UnsyncedAfterRun = len(unsynced)
	report.UnsyncedAtEnd = len(unsynced)

	if cfg.Sweep && len(unsynced) > 0 {
		res, err := repos.Sales.PushUnsynced(ctx)
		report.Sweep = &res
		if err != nil && !errors.Is(err, possync.ErrRetryLater) {
			return report, err
		}
		left, err := repos.Sales.GetUnsynced(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count unsynced sales: %w", err)
		}
		report.UnsyncedAtEnd = len(left)
	}

	report.Elapsed = time.Since(start)
	logger.Info("load test complete",
		zap.Int("sales", report.Sales),
		zap.Duration("write_p95", report.Writes.P95),
		zap.Int("unsynced_after_run", report.UnsyncedAfterRun),
		zap.Int("unsynced_at_end", report.UnsyncedAtEnd),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

func createCatalog(ctx context.Context, repos *possync.Repositories, n int) ([]schema.Item, error) {
	cat, err := repos.Categories.Add(ctx, fmt.Sprintf("Load test %s", time.Now().Format("15:04:05")))
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	types := []string{"coffee", "tea", "water", "snack"}
	items := make([]schema.Item, 0, n)
	for i := 0; i < n; i++ {
		it, err := repos.Items.Add(ctx, possync.NewItem{
			Name:       fmt.Sprintf("Item %03d", i),
			Price:      decimal.New(int64(150+i*25), -2),
			CategoryID: cat.ID,
			ItemType:   types[i%len(types)],
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create item %d: %w", i, err)
		}
		items = append(items, it)
	}
	return items, nil
}

// randomCart fills a cart with 1-4 lines. One cart in five gets a discount.
func randomCart(rng *rand.Rand, items []schema.Item) *checkout.Cart {
	cart := checkout.NewCart()
	lines := 1 + rng.IntN(4)
	for i := 0; i < lines; i++ {
		cart.Add(items[rng.IntN(len(items))], 1+rng.IntN(3))
	}
	if rng.IntN(5) == 0 {
		_ = cart.ApplyDiscount(checkout.Discount{Type: checkout.DiscountPercentage, Value: decimal.NewFromInt(10)})
	}
	payments := []string{"Cash", "Card", "QRIS"}
	cart.SetPaymentType(payments[rng.IntN(len(payments))])
	return cart
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(sorted)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Total: len(sorted),
	}
}

// Print writes the report in plain text.
func (r *Report) Print(w io.Writer) {
	printStats := func(name string, s LatencyStats) {
		fmt.Fprintf(w, "%s:\n", name)
		fmt.Fprintf(w, "  Total:  %d (%d errors)\n", s.Total, s.Errors)
		fmt.Fprintf(w, "  Min:    %v\n", s.Min)
		fmt.Fprintf(w, "  P50:    %v\n", s.P50)
		fmt.Fprintf(w, "  Mean:   %v\n", s.Mean)
		fmt.Fprintf(w, "  P95:    %v\n", s.P95)
		fmt.Fprintf(w, "  P99:    %v\n", s.P99)
		fmt.Fprintf(w, "  Max:    %v\n", s.Max)
	}
	printStats("Checkouts", r.Writes)
	printStats("Sales reads", r.Reads)
	fmt.Fprintf(w, "Sales stored:        %d\n", r.Sales)
	fmt.Fprintf(w, "Unsynced after run:  %d\n", r.UnsyncedAfterRun)
	if r.Sweep != nil {
		fmt.Fprintf(w, "Sweep:               %d pushed, %d failed\n", r.Sweep.Pushed, r.Sweep.Failed)
	}
	fmt.Fprintf(w, "Unsynced at end:     %d\n", r.UnsyncedAtEnd)
	fmt.Fprintf(w, "Elapsed:             %v\n", r.Elapsed.Round(time.Millisecond))
}
