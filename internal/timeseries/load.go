package timeseries

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tradesim/internal/domain"
	"tradesim/internal/store"
)

// fundamentalLookback is how far before the first day fundamentals are read,
// so the first day resolves to the snapshot then in effect.
const fundamentalLookback = 400 * 24 * time.Hour

// Sources groups the stores a Dataset is loaded from. Sentiment and
// Fundamentals are optional.
type Sources struct {
	Bars         store.BarStore
	Sentiment    store.SentimentStore
	Fundamentals store.FundamentalStore
}

// LoadRequest names what to load. Bars are read from WarmupDays calendar
// days before Start so indicators are warm on the first day.
type LoadRequest struct {
	Symbols     []string
	Market      string
	Start, End  time.Time
	WarmupDays  int
	Concurrency int
}

// Load reads every symbol's series in parallel and builds a Dataset. Any
// store error aborts the load.
func Load(ctx context.Context, src Sources, req LoadRequest) (*Dataset, error) {
	if src.Bars == nil {
		return nil, fmt.Errorf("loading dataset: no bar store")
	}
	barStart := req.Start.AddDate(0, 0, -req.WarmupDays)

	var (
		mu        sync.Mutex
		bars      []domain.Bar
		sentiment []domain.SentimentScore
		funds     []domain.FundamentalSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	if req.Concurrency > 0 {
		g.SetLimit(req.Concurrency)
	}
	for _, sym := range req.Symbols {
		sym := strings.ToUpper(sym)
		g.Go(func() error {
			b, err := src.Bars.ReadBars(gctx, sym, req.Market, barStart, req.End)
			if err != nil {
				return fmt.Errorf("bars %s: %w", sym, err)
			}

			var s []domain.SentimentScore
			if src.Sentiment != nil {
				s, err = src.Sentiment.ReadSentiment(gctx, sym, req.Market, barStart, req.End)
				if err != nil {
					return fmt.Errorf("sentiment %s: %w", sym, err)
				}
			}

			var f []domain.FundamentalSnapshot
			if src.Fundamentals != nil {
				f, err = src.Fundamentals.ReadFundamentals(gctx, sym, req.Market, req.Start.Add(-fundamentalLookback), req.End)
				if err != nil {
					return fmt.Errorf("fundamentals %s: %w", sym, err)
				}
			}

			mu.Lock()
			bars = append(bars, b...)
			sentiment = append(sentiment, s...)
			funds = append(funds, f...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}

	return NewDataset(bars, sentiment, funds), nil
}
