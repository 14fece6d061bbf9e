// Package strategy defines the Strategy interface for signal generators and
// provides a Registry for managing the built-in implementations.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/timeseries"
)

// ID identifies a strategy. The set is closed: only the constants below are
// valid.
type ID string

const (
	Momentum      ID = "momentum"
	MeanReversion ID = "mean_reversion"
	Sentiment     ID = "sentiment"
	Fundamental   ID = "fundamental"
	MultiFactor   ID = "multifactor"
	Ensemble      ID = "ensemble"
)

var known = map[ID]string{
	Momentum:      "Moving-average trend confirmed by RSI",
	MeanReversion: "Fades closes outside a rolling volatility band",
	Sentiment:     "Trades the windowed news sentiment score",
	Fundamental:   "Screens valuation ratios against fixed thresholds",
	MultiFactor:   "Weighted sum of the base strategies with a deadband",
	Ensemble:      "Majority vote of the member strategies, ties hold",
}

// ParseID validates s as a strategy identifier.
func ParseID(s string) (ID, error) {
	id := ID(s)
	if _, ok := known[id]; !ok {
		return "", fmt.Errorf("unknown strategy %q", s)
	}
	return id, nil
}

// Base returns the non-composite strategies in a fixed order.
func Base() []ID {
	return []ID{Momentum, MeanReversion, Sentiment, Fundamental}
}

// All returns every strategy, base strategies first.
func All() []ID {
	return append(Base(), MultiFactor, Ensemble)
}

// IsBase reports whether id is a non-composite strategy.
func (id ID) IsBase() bool {
	return id == Momentum || id == MeanReversion || id == Sentiment || id == Fundamental
}

// Description returns a one-line summary of the strategy.
func (id ID) Description() string { return known[id] }

// Strategy is the interface that all signal generators implement.
type Strategy interface {
	// ID returns the strategy identifier.
	ID() ID

	// Generate returns the signal for symbol at the close of asOf. It must
	// only read w, which holds no data after asOf, and must return a Hold
	// with zero strength when history is insufficient.
	Generate(symbol string, asOf time.Time, w timeseries.Window) domain.Signal
}

// Registry holds a collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[ID]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[ID]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its ID().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.ID()] = s
}

// Get retrieves a strategy by ID. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(id ID) (Strategy, bool) {
	s, ok := r.strategies[id]
	return s, ok
}

// List returns a sorted slice of all registered strategy IDs.
func (r *Registry) List() []ID {
	ids := make([]ID, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
