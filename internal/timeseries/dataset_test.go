package timeseries

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleDataset() *Dataset {
	bars := []domain.Bar{
		{Symbol: "aapl", Timestamp: day(1, 3).Add(16 * time.Hour), Close: 102},
		{Symbol: "AAPL", Timestamp: day(1, 2), Close: 101},
		{Symbol: "AAPL", Timestamp: day(1, 4), Close: 103},
		{Symbol: "MSFT", Timestamp: day(1, 5), Close: 400},
		{Symbol: "MSFT", Timestamp: day(1, 6), Close: 401}, // Saturday
	}
	sentiment := []domain.SentimentScore{
		{Symbol: "AAPL", Timestamp: day(1, 2), Score: 0.5},
		{Symbol: "AAPL", Timestamp: day(1, 4), Score: -0.5},
	}
	funds := []domain.FundamentalSnapshot{
		{Symbol: "AAPL", Timestamp: day(1, 1), PERatio: 25},
		{Symbol: "AAPL", Timestamp: day(1, 3), PERatio: 30},
	}
	return NewDataset(bars, sentiment, funds)
}

func TestDatasetBar(t *testing.T) {
	d := sampleDataset()

	b, ok := d.Bar("AAPL", day(1, 3))
	if !ok || b.Close != 102 {
		t.Fatalf("Bar(AAPL, Jan 3) = %+v, %v; want close 102", b, ok)
	}
	if !b.Timestamp.Equal(day(1, 3)) {
		t.Errorf("Bar timestamp = %v, want normalised to midnight", b.Timestamp)
	}
	if _, ok := d.Bar("AAPL", day(1, 5)); ok {
		t.Error("Bar(AAPL, Jan 5) found a bar that does not exist")
	}

	last, ok := d.LastBar("AAPL", day(1, 8))
	if !ok || last.Close != 103 {
		t.Errorf("LastBar(AAPL, Jan 8) = %+v, %v; want close 103", last, ok)
	}
	if _, ok := d.LastBar("AAPL", day(1, 1)); ok {
		t.Error("LastBar before first bar should report false")
	}
}

func TestDatasetFundamentalAsOf(t *testing.T) {
	d := sampleDataset()

	tests := []struct {
		asOf   time.Time
		wantPE float64
		wantOK bool
	}{
		{time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), 0, false},
		{day(1, 1), 25, true},
		{day(1, 2), 25, true},
		{day(1, 3), 30, true},
		{day(3, 1), 30, true},
	}
	for _, tt := range tests {
		f, ok := d.Fundamental("AAPL", tt.asOf)
		if ok != tt.wantOK || f.PERatio != tt.wantPE {
			t.Errorf("Fundamental(%s) = %v, %v; want %v, %v", tt.asOf.Format("2006-01-02"), f.PERatio, ok, tt.wantPE, tt.wantOK)
		}
	}
}

func TestDatasetWindowNoLookAhead(t *testing.T) {
	d := sampleDataset()

	w := d.Window("aapl", day(1, 3).Add(10*time.Hour))
	if w.Symbol != "AAPL" {
		t.Errorf("Window.Symbol = %q, want AAPL", w.Symbol)
	}
	if len(w.Bars) != 2 {
		t.Fatalf("Window has %d bars, want 2", len(w.Bars))
	}
	for _, b := range w.Bars {
		if b.Timestamp.After(w.AsOf) {
			t.Errorf("Window contains bar from %v after asOf %v", b.Timestamp, w.AsOf)
		}
	}
	if len(w.Sentiment) != 1 || w.Sentiment[0].Score != 0.5 {
		t.Errorf("Window.Sentiment = %+v, want the Jan 2 score only", w.Sentiment)
	}
	if w.Fundamental == nil || w.Fundamental.PERatio != 30 {
		t.Errorf("Window.Fundamental = %+v, want PE 30", w.Fundamental)
	}
	if closes := w.Closes(); len(closes) != 2 || closes[1] != 102 {
		t.Errorf("Closes() = %v, want [101 102]", closes)
	}
	if last, ok := w.Last(); !ok || last.Close != 102 {
		t.Errorf("Last() = %+v, %v; want close 102", last, ok)
	}

	// Appending to the window must not corrupt the dataset.
	_ = append(w.Bars, domain.Bar{Close: -1})
	if b, _ := d.Bar("AAPL", day(1, 4)); b.Close != 103 {
		t.Errorf("dataset bar mutated through window append: %+v", b)
	}

	empty := d.Window("NOPE", day(1, 3))
	if len(empty.Bars) != 0 || empty.Fundamental != nil {
		t.Errorf("Window for unknown symbol = %+v, want empty", empty)
	}
}

func TestDatasetDays(t *testing.T) {
	d := sampleDataset()
	cal := util.NewTradingCalendar(domain.MarketUS)

	days := d.Days([]string{"AAPL", "MSFT"}, day(1, 3), day(1, 31), cal)
	want := []time.Time{day(1, 3), day(1, 4), day(1, 5)}
	if len(days) != len(want) {
		t.Fatalf("Days = %v, want %v", days, want)
	}
	for i := range want {
		if !days[i].Equal(want[i]) {
			t.Errorf("Days[%d] = %v, want %v", i, days[i], want[i])
		}
	}

	if got := d.Symbols(); len(got) != 2 || got[0] != "AAPL" {
		t.Errorf("Symbols() = %v, want [AAPL MSFT]", got)
	}
}

func TestNewDatasetDuplicateDayLaterWins(t *testing.T) {
	d := NewDataset([]domain.Bar{
		{Symbol: "X", Timestamp: day(2, 1), Close: 1},
		{Symbol: "X", Timestamp: day(2, 1).Add(time.Hour), Close: 2},
	}, nil, nil)
	b, ok := d.Bar("X", day(2, 1))
	if !ok || b.Close != 2 {
		t.Errorf("Bar = %+v, %v; want the later duplicate", b, ok)
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

type fakeBars struct {
	bars map[string][]domain.Bar
	err  error
	from time.Time
}

func (f *fakeBars) WriteBars(context.Context, []domain.Bar) error { return nil }
func (f *fakeBars) ListSymbols(context.Context, string) ([]string, error) {
	return nil, nil
}
func (f *fakeBars) ReadBars(_ context.Context, symbol, _ string, start, _ time.Time) ([]domain.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.from = start
	return f.bars[symbol], nil
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	ps := store.NewParquetStore(dir)
	ctx := context.Background()

	if err := ps.WriteBars(ctx, []domain.Bar{
		{Symbol: "AAPL", Timestamp: day(1, 2), Close: 100},
		{Symbol: "AAPL", Timestamp: day(2, 1), Close: 110},
		{Symbol: "MSFT", Timestamp: day(2, 1), Close: 400},
	}); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	if err := ps.WriteFundamentals(ctx, "us", []domain.FundamentalSnapshot{
		{Symbol: "AAPL", Timestamp: time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC), PERatio: 22},
	}); err != nil {
		t.Fatalf("WriteFundamentals: %v", err)
	}

	d, err := Load(ctx, Sources{Bars: ps, Sentiment: ps, Fundamentals: ps}, LoadRequest{
		Symbols:    []string{"AAPL", "msft"},
		Market:     "us",
		Start:      day(2, 1),
		End:        day(2, 29),
		WarmupDays: 31,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, ok := d.Bar("AAPL", day(1, 2)); !ok {
		t.Error("warm-up bar from Jan 2 was not loaded")
	}
	if _, ok := d.Bar("MSFT", day(2, 1)); !ok {
		t.Error("MSFT bar was not loaded")
	}
	if f, ok := d.Fundamental("AAPL", day(2, 1)); !ok || f.PERatio != 22 {
		t.Errorf("Fundamental(AAPL) = %+v, %v; want the October snapshot", f, ok)
	}
}

func TestLoadPropagatesStoreError(t *testing.T) {
	boom := errors.New("disk gone")
	_, err := Load(context.Background(), Sources{Bars: &fakeBars{err: boom}}, LoadRequest{
		Symbols: []string{"AAPL"},
		Start:   day(2, 1),
		End:     day(2, 2),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Load error = %v, want wrapping %v", err, boom)
	}
}

func TestLoadWarmupStart(t *testing.T) {
	fb := &fakeBars{bars: map[string][]domain.Bar{}}
	if _, err := Load(context.Background(), Sources{Bars: fb}, LoadRequest{
		Symbols:    []string{"AAPL"},
		Start:      day(3, 1),
		End:        day(3, 5),
		WarmupDays: 10,
	}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := day(2, 20); !fb.from.Equal(want) {
		t.Errorf("bars read from %v, want %v", fb.from, want)
	}
}

func TestLoadRequiresBarStore(t *testing.T) {
	if _, err := Load(context.Background(), Sources{}, LoadRequest{}); err == nil {
		t.Fatal("Load without a bar store returned nil error")
	}
}
