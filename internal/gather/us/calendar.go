package us

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// EndDateFunc resolves the last day an ingest pass should cover.
type EndDateFunc func(ctx context.Context) (time.Time, error)

// FixedEnd returns an EndDateFunc that always yields t.
func FixedEnd(t time.Time) EndDateFunc {
	return func(context.Context) (time.Time, error) { return t, nil }
}

// CalendarEnd returns an EndDateFunc backed by the Alpaca trading calendar.
func CalendarEnd(apiKey, apiSecret, baseURL string) EndDateFunc {
	return func(ctx context.Context) (time.Time, error) {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		return LatestFinishedTradingDay(apiKey, apiSecret, baseURL)
	}
}

// LatestFinishedTradingDay returns the most recent trading day whose market
// session has ended (after 20:05 ET so that extended-hours data has
// settled). It uses the Alpaca trading calendar API.
func LatestFinishedTradingDay(apiKey, apiSecret, baseURL string) (time.Time, error) {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})

	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}

	now := time.Now().In(et)
	calendar, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	return latestFinished(calendar, now)
}

// latestFinished picks the last calendar day that is finished at now. now
// must be in ET.
func latestFinished(calendar []alpaca.CalendarDay, now time.Time) (time.Time, error) {
	if len(calendar) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	today := now.Format("2006-01-02")
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, now.Location())

	for i := len(calendar) - 1; i >= 0; i-- {
		day := calendar[i]
		if day.Date == today {
			if now.After(cutoff) {
				t, _ := time.Parse("2006-01-02", day.Date)
				return t, nil
			}
			continue
		}
		dayDate, err := time.Parse("2006-01-02", day.Date)
		if err != nil {
			continue
		}
		if dayDate.Format("2006-01-02") < today {
			return dayDate, nil
		}
	}

	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
