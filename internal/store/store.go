// Package store defines storage interfaces for the simulation inputs and
// run results, with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"tradesim/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// SentimentStore persists and retrieves daily sentiment scores.
type SentimentStore interface {
	WriteSentiment(ctx context.Context, market string, scores []domain.SentimentScore) error

	// ReadSentiment returns scores within [start, end]. A symbol without
	// sentiment data yields an empty slice and no error.
	ReadSentiment(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.SentimentScore, error)
}

// FundamentalStore persists and retrieves fundamental snapshots.
type FundamentalStore interface {
	WriteFundamentals(ctx context.Context, market string, snaps []domain.FundamentalSnapshot) error

	// ReadFundamentals returns snapshots effective within [start, end]. A
	// symbol without fundamentals yields an empty slice and no error.
	ReadFundamentals(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.FundamentalSnapshot, error)
}

// RunRecord is the persisted form of a finished simulation run. Config and
// Result hold JSON documents.
type RunRecord struct {
	ID         string
	Strategy   string
	State      string
	Error      string
	Config     []byte
	Result     []byte
	CreatedAt  time.Time
	FinishedAt time.Time
}

// RunStore persists simulation runs.
type RunStore interface {
	// SaveRun inserts or replaces a run by ID.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// GetRun returns the run with the given ID or ErrNotFound.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
