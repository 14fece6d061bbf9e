package us

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/metrics"
	"tradesim/internal/store"
)

// Fundamentals CSV columns. symbol and date are required; a missing ratio
// column reads as zero.
var fundamentalColumns = []string{
	"symbol", "date", "pe_ratio", "pb_ratio", "roe",
	"earnings_growth", "revenue_growth", "debt_to_equity",
}

// FundamentalsImporter loads fundamental snapshots from a CSV file into the
// fundamentals store.
type FundamentalsImporter struct {
	path   string
	store  store.FundamentalStore
	market string
	log    *slog.Logger
}

// NewFundamentalsImporter creates an importer for the CSV at path.
func NewFundamentalsImporter(path string, s store.FundamentalStore, market string, log *slog.Logger) *FundamentalsImporter {
	if log == nil {
		log = slog.Default()
	}
	return &FundamentalsImporter{
		path:   path,
		store:  s,
		market: market,
		log:    log.With("gatherer", "fundamentals"),
	}
}

// Name returns the gatherer identifier.
func (f *FundamentalsImporter) Name() string { return "fundamentals" }

// Run reads the whole file and writes it in one batch. Re-importing the
// same file is harmless since the store replaces snapshots by day.
func (f *FundamentalsImporter) Run(ctx context.Context) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("opening CSV %s: %w", f.path, err)
	}
	defer file.Close()

	snaps, err := ParseFundamentalsCSV(file)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", f.path, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(snaps) == 0 {
		f.log.Info("no snapshots in file", "path", f.path)
		return nil
	}
	if err := f.store.WriteFundamentals(ctx, f.market, snaps); err != nil {
		return fmt.Errorf("writing fundamentals: %w", err)
	}
	metrics.RecordIngest("fundamentals", len(snaps))
	f.log.Info("imported", "path", f.path, "snapshots", len(snaps))
	return nil
}

// ParseFundamentalsCSV reads snapshots from r. The header row names the
// columns, in any order and case. Dates are YYYY-MM-DD.
func ParseFundamentalsCSV(r io.Reader) ([]domain.FundamentalSnapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range fundamentalColumns[:2] {
		if _, ok := idx[req]; !ok {
			return nil, fmt.Errorf("missing required column %q", req)
		}
	}

	var out []domain.FundamentalSnapshot
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := idx[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		sym := strings.ToUpper(field("symbol"))
		if sym == "" {
			continue
		}
		ts, err := time.Parse("2006-01-02", field("date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: date: %w", line, err)
		}
		snap := domain.FundamentalSnapshot{Symbol: sym, Timestamp: ts}
		targets := []*float64{
			&snap.PERatio, &snap.PBRatio, &snap.ROE,
			&snap.EarningsGrowth, &snap.RevenueGrowth, &snap.DebtToEquity,
		}
		for i, col := range fundamentalColumns[2:] {
			v := field(col)
			if v == "" {
				continue
			}
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, col, err)
			}
			*targets[i] = n
		}
		out = append(out, snap)
	}
	return out, nil
}
