package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradesim/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ SentimentStore = (*ParquetStore)(nil)
var _ FundamentalStore = (*ParquetStore)(nil)

// ParquetStore implements the input stores using Parquet files on disk. It
// is safe for concurrent readers; writers are expected to be a single ingest
// process.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// SentimentRecord is the Parquet schema for daily sentiment scores.
type SentimentRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"`
	Score      float64 `parquet:"score"`
	Confidence float64 `parquet:"confidence"`
	Articles   int32   `parquet:"articles"`
}

// FundamentalRecord is the Parquet schema for fundamental snapshots.
type FundamentalRecord struct {
	Symbol         string  `parquet:"symbol"`
	Timestamp      int64   `parquet:"timestamp,timestamp(millisecond)"`
	PERatio        float64 `parquet:"pe_ratio"`
	PBRatio        float64 `parquet:"pb_ratio"`
	ROE            float64 `parquet:"roe"`
	EarningsGrowth float64 `parquet:"earnings_growth"`
	RevenueGrowth  float64 `parquet:"revenue_growth"`
	DebtToEquity   float64 `parquet:"debt_to_equity"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars under the "us" market. Use WriteBarsForMarket for
// other markets.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	return s.WriteBarsForMarket(bars, string(domain.MarketUS))
}

// WriteBarsForMarket writes bar data to Parquet files organized by symbol
// and year, merging with existing files:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBarsForMarket(bars []domain.Bar, market string) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		k := key{symbol: sym, year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     sym,
			Timestamp:  b.Timestamp.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil {
			return fmt.Errorf("reading bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeRecords(existing, records, func(r BarRecord) int64 { return r.Timestamp })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time
// range, ordered by timestamp.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := readParquetFile[BarRecord](s.barPath(symbol, market, year))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if inRange(ts, start, end) {
				bars = append(bars, domain.Bar{
					Symbol:     r.Symbol,
					Timestamp:  ts,
					Open:       r.Open,
					High:       r.High,
					Low:        r.Low,
					Close:      r.Close,
					Volume:     r.Volume,
					TradeCount: r.TradeCount,
					VWAP:       r.VWAP,
				})
			}
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// SentimentStore implementation
// ---------------------------------------------------------------------------

// WriteSentiment merges scores into one file per symbol, keyed by day.
func (s *ParquetStore) WriteSentiment(_ context.Context, market string, scores []domain.SentimentScore) error {
	groups := make(map[string][]SentimentRecord)
	for _, sc := range scores {
		sym := strings.ToUpper(sc.Symbol)
		groups[sym] = append(groups[sym], SentimentRecord{
			Symbol:     sym,
			Timestamp:  sc.Timestamp.UnixMilli(),
			Score:      sc.Score,
			Confidence: sc.Confidence,
			Articles:   int32(sc.Articles),
		})
	}

	for sym, records := range groups {
		path := s.seriesPath(sym, market, "sentiment")
		existing, err := readParquetFile[SentimentRecord](path)
		if err != nil {
			return fmt.Errorf("reading sentiment for %s: %w", sym, err)
		}
		merged := mergeRecords(existing, records, func(r SentimentRecord) int64 { return r.Timestamp })
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing sentiment for %s: %w", sym, err)
		}
	}
	return nil
}

// ReadSentiment returns the symbol's scores within [start, end].
func (s *ParquetStore) ReadSentiment(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.SentimentScore, error) {
	records, err := readParquetFile[SentimentRecord](s.seriesPath(symbol, market, "sentiment"))
	if err != nil {
		return nil, fmt.Errorf("reading sentiment for %s: %w", symbol, err)
	}

	out := make([]domain.SentimentScore, 0, len(records))
	for _, r := range records {
		ts := time.UnixMilli(r.Timestamp).UTC()
		if !inRange(ts, start, end) {
			continue
		}
		out = append(out, domain.SentimentScore{
			Symbol:     r.Symbol,
			Timestamp:  ts,
			Score:      r.Score,
			Confidence: r.Confidence,
			Articles:   int(r.Articles),
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// FundamentalStore implementation
// ---------------------------------------------------------------------------

// WriteFundamentals merges snapshots into one file per symbol, keyed by
// effective date.
func (s *ParquetStore) WriteFundamentals(_ context.Context, market string, snaps []domain.FundamentalSnapshot) error {
	groups := make(map[string][]FundamentalRecord)
	for _, f := range snaps {
		sym := strings.ToUpper(f.Symbol)
		groups[sym] = append(groups[sym], FundamentalRecord{
			Symbol:         sym,
			Timestamp:      f.Timestamp.UnixMilli(),
			PERatio:        f.PERatio,
			PBRatio:        f.PBRatio,
			ROE:            f.ROE,
			EarningsGrowth: f.EarningsGrowth,
			RevenueGrowth:  f.RevenueGrowth,
			DebtToEquity:   f.DebtToEquity,
		})
	}

	for sym, records := range groups {
		path := s.seriesPath(sym, market, "fundamentals")
		existing, err := readParquetFile[FundamentalRecord](path)
		if err != nil {
			return fmt.Errorf("reading fundamentals for %s: %w", sym, err)
		}
		merged := mergeRecords(existing, records, func(r FundamentalRecord) int64 { return r.Timestamp })
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing fundamentals for %s: %w", sym, err)
		}
	}
	return nil
}

// ReadFundamentals returns the symbol's snapshots within [start, end].
func (s *ParquetStore) ReadFundamentals(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.FundamentalSnapshot, error) {
	records, err := readParquetFile[FundamentalRecord](s.seriesPath(symbol, market, "fundamentals"))
	if err != nil {
		return nil, fmt.Errorf("reading fundamentals for %s: %w", symbol, err)
	}

	out := make([]domain.FundamentalSnapshot, 0, len(records))
	for _, r := range records {
		ts := time.UnixMilli(r.Timestamp).UTC()
		if !inRange(ts, start, end) {
			continue
		}
		out = append(out, domain.FundamentalSnapshot{
			Symbol:         r.Symbol,
			Timestamp:      ts,
			PERatio:        r.PERatio,
			PBRatio:        r.PBRatio,
			ROE:            r.ROE,
			EarningsGrowth: r.EarningsGrowth,
			RevenueGrowth:  r.RevenueGrowth,
			DebtToEquity:   r.DebtToEquity,
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// seriesPath returns the per-symbol file for a sparse series.
// Layout: <dataDir>/<market>/<kind>/<SYMBOL>.parquet
func (s *ParquetStore) seriesPath(symbol, market, kind string) string {
	return filepath.Join(s.DataDir, market, kind, strings.ToUpper(symbol)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readParquetFile returns the rows of path, or nil when the file does not
// exist.
func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeRecords deduplicates records by key, preferring incoming records over
// existing ones, and returns them sorted by key.
func mergeRecords[T any](existing, incoming []T, key func(T) int64) []T {
	seen := make(map[int64]T, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key(r)] = r
	}
	for _, r := range incoming {
		seen[key(r)] = r
	}

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return key(merged[i]) < key(merged[j])
	})
	return merged
}

func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}
