package builtins

import (
	"fmt"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/strategy"
	"tradesim/internal/timeseries"
)

// Compile-time interface check.
var _ strategy.Strategy = (*FundamentalStrategy)(nil)

// FundamentalStrategy counts undervaluation and overvaluation criteria on
// the snapshot in effect and trades when enough of one side are met.
type FundamentalStrategy struct {
	p config.FundamentalParams
}

// NewFundamental creates a fundamental strategy.
func NewFundamental(p config.FundamentalParams) *FundamentalStrategy {
	return &FundamentalStrategy{p: p}
}

// ID returns "fundamental".
func (s *FundamentalStrategy) ID() strategy.ID { return strategy.Fundamental }

// Generate scores w.Fundamental.
func (s *FundamentalStrategy) Generate(symbol string, asOf time.Time, w timeseries.Window) domain.Signal {
	src := string(strategy.Fundamental)
	f := w.Fundamental
	if f == nil {
		return domain.Hold(symbol, asOf, src, "no fundamentals")
	}

	buys := count(
		f.PERatio > 0 && f.PERatio < s.p.PEMax,
		f.PBRatio > 0 && f.PBRatio < s.p.PBMax,
		f.ROE > s.p.ROEMin,
		f.EarningsGrowth > s.p.GrowthMin,
	)
	sells := count(
		f.PERatio > s.p.PEHigh || f.PERatio <= 0,
		f.PBRatio > s.p.PBHigh,
		f.ROE < 0,
		f.EarningsGrowth < 0,
	)
	reason := fmt.Sprintf("pe %.1f pb %.1f roe %.2f growth %.2f (%d buy, %d sell)",
		f.PERatio, f.PBRatio, f.ROE, f.EarningsGrowth, buys, sells)

	switch {
	case buys >= s.p.MinCriteria && buys > sells:
		return signal(symbol, asOf, src, domain.ActionBuy, float64(buys)/4, reason)
	case sells >= s.p.MinCriteria && sells > buys:
		return signal(symbol, asOf, src, domain.ActionSell, float64(sells)/4, reason)
	}
	return domain.Hold(symbol, asOf, src, reason)
}

func count(conds ...bool) int {
	n := 0
	for _, c := range conds {
		if c {
			n++
		}
	}
	return n
}
