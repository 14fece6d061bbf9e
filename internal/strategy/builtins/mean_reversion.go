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
var _ strategy.Strategy = (*MeanReversionStrategy)(nil)

// MeanReversionStrategy buys closes below the lower volatility band and sells
// closes above the upper band.
type MeanReversionStrategy struct {
	p config.MeanReversionParams
}

// NewMeanReversion creates a mean-reversion strategy.
func NewMeanReversion(p config.MeanReversionParams) *MeanReversionStrategy {
	return &MeanReversionStrategy{p: p}
}

// ID returns "mean_reversion".
func (s *MeanReversionStrategy) ID() strategy.ID { return strategy.MeanReversion }

// Generate compares the last close with mean ± BandWidth·stdev of the last
// Window closes.
func (s *MeanReversionStrategy) Generate(symbol string, asOf time.Time, w timeseries.Window) domain.Signal {
	src := string(strategy.MeanReversion)
	closes := w.Closes()
	if s.p.Window < 2 || len(closes) < s.p.Window {
		return domain.Hold(symbol, asOf, src, "insufficient history")
	}

	tail := closes[len(closes)-s.p.Window:]
	mean := indicators.Mean(tail)
	sd := indicators.StdDev(tail)
	if sd == 0 {
		return domain.Hold(symbol, asOf, src, "zero volatility")
	}

	last := tail[len(tail)-1]
	z := (last - mean) / sd
	strength := 1.0
	if s.p.BandWidth > 0 {
		strength = indicators.Clamp01(math.Abs(z) / (2 * s.p.BandWidth))
	}
	reason := fmt.Sprintf("z %.2f band %.2f", z, s.p.BandWidth)

	switch {
	case last < mean-s.p.BandWidth*sd:
		return signal(symbol, asOf, src, domain.ActionBuy, strength, reason)
	case last > mean+s.p.BandWidth*sd:
		return signal(symbol, asOf, src, domain.ActionSell, strength, reason)
	}
	return domain.Hold(symbol, asOf, src, reason)
}
