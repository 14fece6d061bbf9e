package builtins

import (
	"fmt"
	"math"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/strategy"
	"tradesim/internal/timeseries"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MultiFactor)(nil)

// Factor is one weighted input of a MultiFactor strategy.
type Factor struct {
	Strategy strategy.Strategy
	Weight   float64
}

// MultiFactor combines the signed strengths of its factors into a weighted
// score and acts on the sign of the score outside a deadband.
type MultiFactor struct {
	factors  []Factor
	deadband float64
}

// NewMultiFactor creates a multi-factor strategy.
func NewMultiFactor(factors []Factor, deadband float64) *MultiFactor {
	return &MultiFactor{factors: factors, deadband: deadband}
}

// ID returns "multifactor".
func (m *MultiFactor) ID() strategy.ID { return strategy.MultiFactor }

// Generate evaluates every factor on the same window.
func (m *MultiFactor) Generate(symbol string, asOf time.Time, w timeseries.Window) domain.Signal {
	src := string(strategy.MultiFactor)

	var score, total float64
	for _, f := range m.factors {
		sig := f.Strategy.Generate(symbol, asOf, w)
		score += f.Weight * direction(sig.Action) * sig.Strength
		total += math.Abs(f.Weight)
	}
	if total == 0 {
		return domain.Hold(symbol, asOf, src, "no factors")
	}
	score /= total
	reason := fmt.Sprintf("score %.3f deadband %.3f", score, m.deadband)

	switch {
	case score > m.deadband:
		return signal(symbol, asOf, src, domain.ActionBuy, math.Min(1, score), reason)
	case score < -m.deadband:
		return signal(symbol, asOf, src, domain.ActionSell, math.Min(1, -score), reason)
	}
	return domain.Hold(symbol, asOf, src, reason)
}

func direction(a domain.Action) float64 {
	switch a {
	case domain.ActionBuy:
		return 1
	case domain.ActionSell:
		return -1
	}
	return 0
}
