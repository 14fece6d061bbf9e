package builtins

import (
	"fmt"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/strategy"
	"tradesim/internal/timeseries"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Ensemble)(nil)

// Ensemble takes the plurality action of its members. Any tie for the top
// vote count resolves to Hold.
type Ensemble struct {
	members []strategy.Strategy
}

// NewEnsemble creates an ensemble over members.
func NewEnsemble(members []strategy.Strategy) *Ensemble {
	return &Ensemble{members: members}
}

// ID returns "ensemble".
func (e *Ensemble) ID() strategy.ID { return strategy.Ensemble }

// Generate polls every member on the same window.
func (e *Ensemble) Generate(symbol string, asOf time.Time, w timeseries.Window) domain.Signal {
	src := string(strategy.Ensemble)
	if len(e.members) == 0 {
		return domain.Hold(symbol, asOf, src, "no members")
	}

	votes := make(map[domain.Action]int, 3)
	strength := make(map[domain.Action]float64, 3)
	for _, m := range e.members {
		sig := m.Generate(symbol, asOf, w)
		votes[sig.Action]++
		strength[sig.Action] += sig.Strength
	}

	winner, tie := domain.ActionHold, false
	best := -1
	for _, a := range []domain.Action{domain.ActionBuy, domain.ActionSell, domain.ActionHold} {
		switch n := votes[a]; {
		case n > best:
			winner, best, tie = a, n, false
		case n == best:
			tie = true
		}
	}
	reason := fmt.Sprintf("buy %d sell %d hold %d", votes[domain.ActionBuy], votes[domain.ActionSell], votes[domain.ActionHold])

	if tie || winner == domain.ActionHold {
		return domain.Hold(symbol, asOf, src, reason)
	}
	return signal(symbol, asOf, src, winner, strength[winner]/float64(best), reason)
}
