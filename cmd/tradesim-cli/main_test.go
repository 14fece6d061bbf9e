package main

import (
	"math"
	"strings"
	"testing"

	"tradesim/internal/config"
	"tradesim/internal/engine"
	"tradesim/internal/performance"
)

func TestApplyRunFlags(t *testing.T) {
	sim := config.DefaultSimulation()
	sim.Symbols = []string{"SPY"}
	applyRunFlags(&sim, runFlags{strategy: "momentum", symbols: " aapl, ,msft", capital: 5000, fill: config.FillClose})

	if sim.Strategy != "momentum" || sim.InitialCapital != 5000 || sim.FillPolicy != config.FillClose {
		t.Errorf("sim = %+v, want flags applied", sim)
	}
	if len(sim.Symbols) != 2 || sim.Symbols[0] != "AAPL" || sim.Symbols[1] != "MSFT" {
		t.Errorf("symbols = %v, want [AAPL MSFT]", sim.Symbols)
	}

	before := sim
	applyRunFlags(&sim, runFlags{})
	if sim.Strategy != before.Strategy || len(sim.Symbols) != 2 {
		t.Error("empty flags changed the config")
	}
}

func TestRenderRun(t *testing.T) {
	run := &engine.Run{
		ID:       "r-1",
		Strategy: "momentum",
		State:    engine.StateCompleted,
		Result: &engine.Result{
			StartDate: "2024-01-08",
			EndDate:   "2024-01-12",
			Report: performance.Report{
				InitialCapital: 10000,
				FinalCapital:   10276.9,
				ProfitFactor:   performance.Ratio(math.Inf(1)),
			},
			Rejections: map[string]int{"insufficient_cash": 3},
		},
	}
	out := renderRun(run)
	for _, want := range []string{"r-1", "10276.90", "inf", "insufficient_cash"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	failed := &engine.Run{ID: "r-2", State: engine.StateFailed, Error: &engine.RunError{Code: engine.CodeInvalidConfig, Message: "bad"}}
	if out := renderRun(failed); !strings.Contains(out, "invalid_config: bad") {
		t.Errorf("failed report = %q, want the error", out)
	}
}
