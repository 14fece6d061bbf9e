// Package timeseries holds the read-only, pre-materialized inputs of a
// simulation run and answers as-of queries over them.
package timeseries

import (
	"sort"
	"strings"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/util"
)

// Dataset is an immutable per-symbol index of bars, sentiment scores and
// fundamental snapshots, each ordered by day. It is safe for concurrent
// readers once built.
type Dataset struct {
	bars         map[string][]domain.Bar
	sentiment    map[string][]domain.SentimentScore
	fundamentals map[string][]domain.FundamentalSnapshot
}

// NewDataset builds a Dataset. Inputs may be in any order; timestamps are
// truncated to their UTC calendar day and later duplicates of a day win.
func NewDataset(bars []domain.Bar, sentiment []domain.SentimentScore, fundamentals []domain.FundamentalSnapshot) *Dataset {
	d := &Dataset{
		bars:         make(map[string][]domain.Bar),
		sentiment:    make(map[string][]domain.SentimentScore),
		fundamentals: make(map[string][]domain.FundamentalSnapshot),
	}
	for _, b := range bars {
		b.Symbol = strings.ToUpper(b.Symbol)
		b.Timestamp = util.Day(b.Timestamp)
		d.bars[b.Symbol] = append(d.bars[b.Symbol], b)
	}
	for _, s := range sentiment {
		s.Symbol = strings.ToUpper(s.Symbol)
		s.Timestamp = util.Day(s.Timestamp)
		d.sentiment[s.Symbol] = append(d.sentiment[s.Symbol], s)
	}
	for _, f := range fundamentals {
		f.Symbol = strings.ToUpper(f.Symbol)
		f.Timestamp = util.Day(f.Timestamp)
		d.fundamentals[f.Symbol] = append(d.fundamentals[f.Symbol], f)
	}

	for sym, s := range d.bars {
		d.bars[sym] = sortDedupe(s, func(b domain.Bar) time.Time { return b.Timestamp })
	}
	for sym, s := range d.sentiment {
		d.sentiment[sym] = sortDedupe(s, func(v domain.SentimentScore) time.Time { return v.Timestamp })
	}
	for sym, s := range d.fundamentals {
		d.fundamentals[sym] = sortDedupe(s, func(v domain.FundamentalSnapshot) time.Time { return v.Timestamp })
	}
	return d
}

// Symbols returns the symbols that have bars, sorted.
func (d *Dataset) Symbols() []string {
	out := make([]string, 0, len(d.bars))
	for sym := range d.bars {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Days returns the union of bar days for symbols within [start, end],
// ascending, keeping only sessions of cal.
func (d *Dataset) Days(symbols []string, start, end time.Time, cal *util.TradingCalendar) []time.Time {
	start, end = util.Day(start), util.Day(end)
	seen := make(map[time.Time]struct{})
	for _, sym := range symbols {
		bars := d.bars[strings.ToUpper(sym)]
		i := sort.Search(len(bars), func(i int) bool { return !bars[i].Timestamp.Before(start) })
		for ; i < len(bars) && !bars[i].Timestamp.After(end); i++ {
			seen[bars[i].Timestamp] = struct{}{}
		}
	}
	days := make([]time.Time, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	if cal != nil {
		days = cal.Filter(days)
	}
	return days
}

// Bar returns the symbol's bar for exactly day.
func (d *Dataset) Bar(symbol string, day time.Time) (domain.Bar, bool) {
	bars := d.bars[strings.ToUpper(symbol)]
	day = util.Day(day)
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Timestamp.Before(day) })
	if i < len(bars) && bars[i].Timestamp.Equal(day) {
		return bars[i], true
	}
	return domain.Bar{}, false
}

// LastBar returns the most recent bar on or before day.
func (d *Dataset) LastBar(symbol string, day time.Time) (domain.Bar, bool) {
	bars := d.bars[strings.ToUpper(symbol)]
	n := upperBound(len(bars), util.Day(day), func(i int) time.Time { return bars[i].Timestamp })
	if n == 0 {
		return domain.Bar{}, false
	}
	return bars[n-1], true
}

// Fundamental returns the most recent snapshot effective on or before day.
func (d *Dataset) Fundamental(symbol string, day time.Time) (domain.FundamentalSnapshot, bool) {
	snaps := d.fundamentals[strings.ToUpper(symbol)]
	n := upperBound(len(snaps), util.Day(day), func(i int) time.Time { return snaps[i].Timestamp })
	if n == 0 {
		return domain.FundamentalSnapshot{}, false
	}
	return snaps[n-1], true
}

// Window returns the symbol's history visible at the close of asOf. The
// returned slices alias the dataset and must not be modified.
func (d *Dataset) Window(symbol string, asOf time.Time) Window {
	sym := strings.ToUpper(symbol)
	asOf = util.Day(asOf)

	bars := d.bars[sym]
	nb := upperBound(len(bars), asOf, func(i int) time.Time { return bars[i].Timestamp })
	scores := d.sentiment[sym]
	ns := upperBound(len(scores), asOf, func(i int) time.Time { return scores[i].Timestamp })

	w := Window{
		Symbol:    sym,
		AsOf:      asOf,
		Bars:      bars[:nb:nb],
		Sentiment: scores[:ns:ns],
	}
	if f, ok := d.Fundamental(sym, asOf); ok {
		w.Fundamental = &f
	}
	return w
}

// upperBound returns the number of leading elements whose day is on or
// before day.
func upperBound(n int, day time.Time, at func(int) time.Time) int {
	return sort.Search(n, func(i int) bool { return at(i).After(day) })
}

func sortDedupe[T any](s []T, ts func(T) time.Time) []T {
	sort.SliceStable(s, func(i, j int) bool { return ts(s[i]).Before(ts(s[j])) })
	out := s[:0]
	for _, v := range s {
		if n := len(out); n > 0 && ts(out[n-1]).Equal(ts(v)) {
			out[n-1] = v
			continue
		}
		out = append(out, v)
	}
	return out
}

// ---------------------------------------------------------------------------
// Window
// ---------------------------------------------------------------------------

// Window is one symbol's history up to and including AsOf. It never contains
// data from after AsOf.
type Window struct {
	Symbol      string
	AsOf        time.Time
	Bars        []domain.Bar
	Sentiment   []domain.SentimentScore
	Fundamental *domain.FundamentalSnapshot
}

// Closes returns the closing prices, oldest first.
func (w Window) Closes() []float64 {
	out := make([]float64, len(w.Bars))
	for i, b := range w.Bars {
		out[i] = b.Close
	}
	return out
}

// Last returns the most recent bar.
func (w Window) Last() (domain.Bar, bool) {
	if len(w.Bars) == 0 {
		return domain.Bar{}, false
	}
	return w.Bars[len(w.Bars)-1], true
}
