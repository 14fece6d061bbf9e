package builtins

import (
	"fmt"
	"math"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/indicators"
	"tradesim/internal/strategy"
	"tradesim/internal/timeseries"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MomentumStrategy)(nil)

// MomentumStrategy buys when the short moving average is above the long one
// and RSI confirms upward momentum without being overbought, and sells on
// the mirror condition.
type MomentumStrategy struct {
	p config.MomentumParams
}

// NewMomentum creates a momentum strategy.
func NewMomentum(p config.MomentumParams) *MomentumStrategy {
	return &MomentumStrategy{p: p}
}

// ID returns "momentum".
func (s *MomentumStrategy) ID() strategy.ID { return strategy.Momentum }

// Generate evaluates the trend and oscillator on the closes in w.
func (s *MomentumStrategy) Generate(symbol string, asOf time.Time, w timeseries.Window) domain.Signal {
	src := string(strategy.Momentum)
	closes := w.Closes()

	short, ok1 := indicators.LastSMA(closes, s.p.ShortWindow)
	long, ok2 := indicators.LastSMA(closes, s.p.LongWindow)
	rsi, ok3 := indicators.RSI(closes, s.p.RSIPeriod)
	if !ok1 || !ok2 || !ok3 || long <= 0 {
		return domain.Hold(symbol, asOf, src, "insufficient history")
	}

	gap := short/long - 1
	trendScore := 1.0
	if s.p.TrendScale > 0 {
		trendScore = math.Min(1, math.Abs(gap)/s.p.TrendScale)
	}
	strength := indicators.Clamp01(0.5*trendScore + 0.5*math.Abs(rsi-50)/50)
	reason := fmt.Sprintf("sma%d/sma%d gap %.4f rsi %.1f", s.p.ShortWindow, s.p.LongWindow, gap, rsi)

	switch {
	case short > long && rsi > 50 && rsi < s.p.Overbought:
		return signal(symbol, asOf, src, domain.ActionBuy, strength, reason)
	case short < long && rsi < 50 && rsi > s.p.Oversold:
		return signal(symbol, asOf, src, domain.ActionSell, strength, reason)
	}
	return domain.Hold(symbol, asOf, src, reason)
}

func signal(symbol string, asOf time.Time, src string, a domain.Action, strength float64, reason string) domain.Signal {
	return domain.Signal{
		Symbol:    symbol,
		Timestamp: asOf,
		Action:    a,
		Strength:  strength,
		Source:    src,
		Reason:    reason,
	}
}
