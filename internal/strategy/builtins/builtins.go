// Package builtins provides the signal generators that ship with tradesim.
package builtins

import (
	"fmt"

	"tradesim/internal/config"
	"tradesim/internal/strategy"
)

// New constructs the strategy named by id with the given parameters.
func New(id strategy.ID, p config.StrategyParams) (strategy.Strategy, error) {
	switch id {
	case strategy.Momentum:
		return NewMomentum(p.Momentum), nil
	case strategy.MeanReversion:
		return NewMeanReversion(p.MeanReversion), nil
	case strategy.Sentiment:
		return NewSentiment(p.Sentiment), nil
	case strategy.Fundamental:
		return NewFundamental(p.Fundamental), nil
	case strategy.MultiFactor:
		return newMultiFactor(p)
	case strategy.Ensemble:
		return newEnsemble(p)
	}
	return nil, fmt.Errorf("unknown strategy %q", id)
}

// NewRegistry returns a registry holding every built-in strategy configured
// with p.
func NewRegistry(p config.StrategyParams) (*strategy.Registry, error) {
	r := strategy.NewRegistry()
	for _, id := range append(strategy.Base(), strategy.MultiFactor, strategy.Ensemble) {
		s, err := New(id, p)
		if err != nil {
			return nil, err
		}
		r.Register(s)
	}
	return r, nil
}

func newMultiFactor(p config.StrategyParams) (*MultiFactor, error) {
	weights := p.MultiFactor.Weights
	if len(weights) == 0 {
		weights = config.DefaultStrategyParams().MultiFactor.Weights
	}
	var factors []Factor
	for _, id := range strategy.Base() {
		w, ok := weights[string(id)]
		if !ok || w == 0 {
			continue
		}
		s, err := New(id, p)
		if err != nil {
			return nil, err
		}
		factors = append(factors, Factor{Strategy: s, Weight: w})
	}
	for name := range weights {
		id, err := strategy.ParseID(name)
		if err != nil {
			return nil, fmt.Errorf("multifactor weight: %w", err)
		}
		if !id.IsBase() {
			return nil, fmt.Errorf("multifactor weight: %q is not a base strategy", name)
		}
	}
	if len(factors) == 0 {
		return nil, fmt.Errorf("multifactor: no factor has a non-zero weight")
	}
	return NewMultiFactor(factors, p.MultiFactor.Deadband), nil
}

func newEnsemble(p config.StrategyParams) (*Ensemble, error) {
	names := p.Ensemble.Members
	if len(names) == 0 {
		names = config.DefaultStrategyParams().Ensemble.Members
	}
	members := make([]strategy.Strategy, 0, len(names))
	for _, name := range names {
		id, err := strategy.ParseID(name)
		if err != nil {
			return nil, fmt.Errorf("ensemble member: %w", err)
		}
		if !id.IsBase() {
			return nil, fmt.Errorf("ensemble member: %q is not a base strategy", name)
		}
		s, err := New(id, p)
		if err != nil {
			return nil, err
		}
		members = append(members, s)
	}
	return NewEnsemble(members), nil
}
