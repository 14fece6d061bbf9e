package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"

	"tradesim/internal/domain"
	"tradesim/internal/gather"
	"tradesim/internal/metrics"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*DailyBarGatherer)(nil)
var _ gather.Gatherer = (*NewsSentimentGatherer)(nil)
var _ gather.Gatherer = (*FundamentalsImporter)(nil)

const (
	defaultBatchSize  = 100
	defaultMaxWorkers = 4
	fetchAttempts     = 3
	fetchBackoff      = time.Second
)

// Options configures the Alpaca gatherers.
type Options struct {
	Symbols    []string
	Start      time.Time
	End        EndDateFunc
	BatchSize  int // symbols per bars request
	MaxWorkers int
	Feed       marketdata.Feed
	// NewsLimit caps the articles fetched per symbol and pass.
	NewsLimit int
	// StateDir holds the resume files; empty disables resume.
	StateDir string
	Limiter  *rate.Limiter
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = defaultMaxWorkers
	}
	if o.End == nil {
		o.End = FixedEnd(util.Day(time.Now().UTC().AddDate(0, 0, -1)))
	}
	if o.Limiter == nil {
		o.Limiter = util.NewRateLimiter(0)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// ---------------------------------------------------------------------------
// DailyBarGatherer
// ---------------------------------------------------------------------------

// DailyBarGatherer fetches daily OHLCV bars for the configured symbols from
// the Alpaca market-data API and merges them into the bar store. It is
// resumable and idempotent within an end date.
type DailyBarGatherer struct {
	client MarketData
	store  store.BarStore
	opts   Options
	log    *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer writing to s.
func NewDailyBarGatherer(client MarketData, s store.BarStore, opts Options) *DailyBarGatherer {
	opts = opts.withDefaults()
	return &DailyBarGatherer{
		client: client,
		store:  s,
		opts:   opts,
		log:    opts.Logger.With("gatherer", "us-bars"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-bars" }

// Run fetches bars from Options.Start through the end date for every
// symbol not yet done, in batches spread over the worker pool.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	endDate, err := g.opts.End(ctx)
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}
	endDate = util.Day(endDate)
	endDateStr := endDate.Format("2006-01-02")
	if endDate.Before(g.opts.Start) {
		g.log.Info("nothing to fetch", "start", g.opts.Start.Format("2006-01-02"), "endDate", endDateStr)
		return nil
	}

	tracker, err := openTracker(g.opts.StateDir, "bars", endDateStr)
	if err != nil {
		return err
	}
	if tracker != nil {
		defer tracker.Close()
		if tracker.IsCompleted(endDateStr) {
			g.log.Info("already completed", "endDate", endDateStr)
			return nil
		}
	}

	remaining := pending(g.opts.Symbols, tracker)
	batches := gather.Batches(remaining, g.opts.BatchSize)
	g.log.Info("starting us-bars",
		"endDate", endDateStr,
		"symbols", len(g.opts.Symbols),
		"remaining", len(remaining),
		"batches", len(batches),
	)

	var written atomic.Int64
	runStart := time.Now()
	failed := runBatches(ctx, batches, g.opts.MaxWorkers, func(i int, batch []string) error {
		if err := g.opts.Limiter.Wait(ctx); err != nil {
			return err
		}
		var bars []domain.Bar
		err := util.Retry(ctx, fetchAttempts, fetchBackoff, func() error {
			var ferr error
			bars, ferr = g.fetchMultiBars(batch, g.opts.Start, endDate)
			return ferr
		})
		if err != nil {
			return fmt.Errorf("fetching batch %d/%d: %w", i+1, len(batches), err)
		}
		if len(bars) > 0 {
			if err := g.store.WriteBars(ctx, bars); err != nil {
				return fmt.Errorf("writing bars: %w", err)
			}
		}
		if tracker != nil {
			if err := tracker.MarkDone(batch); err != nil {
				g.log.Error("marking done failed", "err", err)
			}
		}
		written.Add(int64(len(bars)))
		metrics.RecordIngest("bars", len(bars))
		g.log.Info("batch done",
			"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
			"bars", len(bars),
			"elapsed", time.Since(runStart).Round(time.Second),
		)
		return nil
	}, g.log)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d batches failed", failed, len(batches))
	}
	if tracker != nil {
		if err := tracker.MarkCompleted(endDateStr); err != nil {
			return fmt.Errorf("marking completed: %w", err)
		}
	}

	g.log.Info("complete", "bars", written.Load(), "elapsed", time.Since(runStart).Round(time.Second))
	return nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *DailyBarGatherer) fetchMultiBars(symbols []string, start, end time.Time) ([]domain.Bar, error) {
	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end.AddDate(0, 0, 1),
		Feed:      g.opts.Feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			day := util.Day(ab.Timestamp)
			if day.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  day,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}

// ---------------------------------------------------------------------------
// Shared plumbing
// ---------------------------------------------------------------------------

// openTracker opens the resume tracker in dir, or returns nil when dir is
// empty. A tracker left over from an older end date is reset.
func openTracker(dir, name, endDate string) (*progressTracker, error) {
	if dir == "" {
		return nil, nil
	}
	tracker, err := newProgressTracker(dir, name)
	if err != nil {
		return nil, fmt.Errorf("creating progress tracker: %w", err)
	}
	if last := tracker.LastCompleted(); last != "" && last != endDate {
		if err := tracker.Reset(); err != nil {
			tracker.Close()
			return nil, fmt.Errorf("resetting tracker: %w", err)
		}
	}
	return tracker, nil
}

// pending returns the symbols the tracker has not marked done.
func pending(symbols []string, tracker *progressTracker) []string {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || (tracker != nil && tracker.IsDone(sym)) {
			continue
		}
		out = append(out, sym)
	}
	return out
}

// runBatches feeds batch indexes to workers goroutines and returns how many
// batches failed. Failures are logged and do not stop the other workers.
func runBatches(ctx context.Context, batches [][]string, workers int, fn func(i int, batch []string) error, log *slog.Logger) int {
	if len(batches) == 0 {
		return 0
	}
	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	for w := 0; w < min(workers, len(batches)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range batchCh {
				if ctx.Err() != nil {
					return
				}
				if err := fn(i, batches[i]); err != nil {
					if ctx.Err() != nil {
						return
					}
					failed.Add(1)
					log.Error("batch failed", "batch", i+1, "err", err)
				}
			}
		}()
	}
	wg.Wait()
	return int(failed.Load())
}
