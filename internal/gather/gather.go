// Package gather defines the ingest jobs that fill the simulation stores
// with bars, news sentiment and fundamentals.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one ingest pass and returns when it is done or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the range contains no instant.
func (r DateRange) Empty() bool { return r.End.Before(r.Start) }

// Batches splits symbols into consecutive chunks of at most size. Blank
// entries are dropped and symbols are upper-cased.
func Batches(symbols []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	clean := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			clean = append(clean, s)
		}
	}
	var out [][]string
	for i := 0; i < len(clean); i += size {
		out = append(out, clean[i:min(i+size, len(clean))])
	}
	return out
}

// RunAll runs each gatherer in order. A failing gatherer is logged and the
// remaining ones still run; the first error is returned. Cancellation stops
// the sequence.
func RunAll(ctx context.Context, log *slog.Logger, gs ...Gatherer) error {
	var first error
	for _, g := range gs {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if err := g.Run(ctx); err != nil {
			log.Error("gatherer failed", "gatherer", g.Name(), "error", err)
			if first == nil {
				first = fmt.Errorf("%s: %w", g.Name(), err)
			}
			continue
		}
		log.Info("gatherer done", "gatherer", g.Name(), "elapsed", time.Since(start).Round(time.Millisecond))
	}
	return first
}
