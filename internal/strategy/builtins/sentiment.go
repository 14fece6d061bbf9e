package builtins

import (
	"fmt"
	"math"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/strategy"
	"tradesim/internal/timeseries"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SentimentStrategy)(nil)

// SentimentStrategy trades the confidence-weighted, optionally time-decayed
// average of recent sentiment scores.
type SentimentStrategy struct {
	p config.SentimentParams
}

// NewSentiment creates a sentiment strategy.
func NewSentiment(p config.SentimentParams) *SentimentStrategy {
	return &SentimentStrategy{p: p}
}

// ID returns "sentiment".
func (s *SentimentStrategy) ID() strategy.ID { return strategy.Sentiment }

// Generate aggregates the scores in (asOf-LookbackDays, asOf].
func (s *SentimentStrategy) Generate(symbol string, asOf time.Time, w timeseries.Window) domain.Signal {
	src := string(strategy.Sentiment)
	cutoff := asOf.AddDate(0, 0, -s.p.LookbackDays)

	var weighted, total float64
	articles := 0
	for i := len(w.Sentiment) - 1; i >= 0; i-- {
		sc := w.Sentiment[i]
		if !sc.Timestamp.After(cutoff) {
			break
		}
		weight := sc.Confidence
		if weight <= 0 {
			weight = 1
		}
		if s.p.HalfLifeDays > 0 {
			age := asOf.Sub(sc.Timestamp).Hours() / 24
			weight *= math.Pow(0.5, age/s.p.HalfLifeDays)
		}
		weighted += weight * sc.Score
		total += weight
		articles += max(1, sc.Articles)
	}

	if articles == 0 || articles < s.p.MinArticles || total == 0 {
		return domain.Hold(symbol, asOf, src, fmt.Sprintf("%d articles", articles))
	}

	agg := weighted / total
	strength := math.Min(1, math.Abs(agg))
	reason := fmt.Sprintf("score %.3f over %d articles", agg, articles)

	switch {
	case agg > s.p.Threshold:
		return signal(symbol, asOf, src, domain.ActionBuy, strength, reason)
	case agg < -s.p.Threshold:
		return signal(symbol, asOf, src, domain.ActionSell, strength, reason)
	}
	return domain.Hold(symbol, asOf, src, reason)
}
