package util

import (
	"time"

	"tradesim/internal/domain"
)

// TradingCalendar decides which calendar dates are sessions for a market.
// Weekends are never sessions; holidays are supplied by the caller.
type TradingCalendar struct {
	market   domain.Market
	holidays map[string]struct{}
}

// NewTradingCalendar creates a TradingCalendar for the given market with an
// optional list of YYYY-MM-DD holidays.
func NewTradingCalendar(market domain.Market, holidays ...string) *TradingCalendar {
	tc := &TradingCalendar{
		market:   market,
		holidays: make(map[string]struct{}, len(holidays)),
	}
	for _, h := range holidays {
		tc.holidays[h] = struct{}{}
	}
	return tc
}

// Market returns the market this calendar describes.
func (tc *TradingCalendar) Market() domain.Market { return tc.market }

// IsTradingDay reports whether t's calendar date is a session.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := tc.holidays[t.Format("2006-01-02")]
	return !holiday
}

// TradingDays returns every session in [start, end] at UTC midnight.
func (tc *TradingCalendar) TradingDays(start, end time.Time) []time.Time {
	var days []time.Time
	for d := Day(start); !d.After(Day(end)); d = d.AddDate(0, 0, 1) {
		if tc.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// Filter keeps the days that are sessions, preserving order.
func (tc *TradingCalendar) Filter(days []time.Time) []time.Time {
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		if tc.IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// PrevTradingDay returns the latest session strictly before t.
func (tc *TradingCalendar) PrevTradingDay(t time.Time) time.Time {
	d := Day(t).AddDate(0, 0, -1)
	for !tc.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
