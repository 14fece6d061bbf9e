package api

import (
	"maps"
	"slices"

	"tradesim/internal/config"
)

// SimulationResponse acknowledges a submitted run.
type SimulationResponse struct {
	RunID string `json:"run_id"`
	State string `json:"state"`
}

// CompareRequest names the runs to compare.
type CompareRequest struct {
	RunIDs []string `json:"run_ids"`
}

// StrategyInfo describes one entry of the strategy catalogue.
type StrategyInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Composite   bool   `json:"composite"`
	Defaults    any    `json:"default_params"`
}

// decodeSimulation overlays a request body on defaults. decode fills the
// value it is given from the body, so fields the request leaves out keep
// their defaults. Multi-factor weights and ensemble members are replaced as
// a whole rather than merged.
func decodeSimulation(defaults config.Simulation, decode func(any) error) (config.Simulation, error) {
	cfg := defaults
	cfg.Symbols = nil
	cfg.Params.MultiFactor.Weights = nil
	cfg.Params.Ensemble.Members = nil
	if err := decode(&cfg); err != nil {
		return config.Simulation{}, err
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = slices.Clone(defaults.Symbols)
	}
	if len(cfg.Params.MultiFactor.Weights) == 0 {
		cfg.Params.MultiFactor.Weights = maps.Clone(defaults.Params.MultiFactor.Weights)
	}
	if len(cfg.Params.Ensemble.Members) == 0 {
		cfg.Params.Ensemble.Members = slices.Clone(defaults.Params.Ensemble.Members)
	}
	return cfg, nil
}
