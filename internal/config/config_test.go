package config

import (
	"os"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "tradesim-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "ALPACA_API_KEY", "ALPACA_API_SECRET",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "LOG_LEVEL",
		"TRADESIM_HTTP_PORT", "TRADESIM_MAX_RUNS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `
storage:
  data_dir: "/tmp/tradesim/data"
  sqlite_path: "/tmp/tradesim/tradesim.db"
server:
  host: "127.0.0.1"
  port: 8088
  grpc_port: 9099
logging:
  level: "debug"
  format: "text"
engine:
  max_concurrent_runs: 2
simulation:
  symbols: ["AAPL", "MSFT"]
  start_date: "2024-01-02"
  end_date: "2024-06-28"
  initial_capital: 50000
  strategy: "momentum"
  fill_policy: "close"
  risk:
    max_position_size: 0.2
    max_positions: 3
  params:
    momentum:
      short_window: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/tradesim/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/tradesim/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/tradesim/tradesim.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/tradesim/tradesim.db")
	}

	// -- Server --
	if cfg.Server.Port != 8088 || cfg.Server.GRPCPort != 9099 {
		t.Errorf("Server ports = %d/%d, want 8088/9099", cfg.Server.Port, cfg.Server.GRPCPort)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}

	// -- Engine --
	if cfg.Engine.MaxConcurrentRuns != 2 {
		t.Errorf("Engine.MaxConcurrentRuns = %d, want 2", cfg.Engine.MaxConcurrentRuns)
	}
	if cfg.Engine.RetainRuns != 200 {
		t.Errorf("Engine.RetainRuns = %d, want default 200", cfg.Engine.RetainRuns)
	}

	// -- Simulation --
	sim := cfg.Simulation
	if len(sim.Symbols) != 2 || sim.Symbols[1] != "MSFT" {
		t.Errorf("Simulation.Symbols = %v, want [AAPL MSFT]", sim.Symbols)
	}
	if sim.InitialCapital != 50000 {
		t.Errorf("Simulation.InitialCapital = %v, want 50000", sim.InitialCapital)
	}
	if sim.FillPolicy != FillClose {
		t.Errorf("Simulation.FillPolicy = %q, want %q", sim.FillPolicy, FillClose)
	}
	if sim.Risk.MaxPositionSize != 0.2 || sim.Risk.MaxPositions != 3 {
		t.Errorf("Simulation.Risk = %+v, want overridden size/positions", sim.Risk)
	}
	// Fields absent from YAML keep their defaults.
	if sim.Risk.StopLossPct != 0.05 {
		t.Errorf("Simulation.Risk.StopLossPct = %v, want default 0.05", sim.Risk.StopLossPct)
	}
	if sim.CommissionRate != 0.001 {
		t.Errorf("Simulation.CommissionRate = %v, want default 0.001", sim.CommissionRate)
	}
	if sim.Params.Momentum.ShortWindow != 3 || sim.Params.Momentum.LongWindow != 20 {
		t.Errorf("Momentum params = %+v, want short 3 long 20", sim.Params.Momentum)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("TRADESIM_MAX_RUNS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Engine.MaxConcurrentRuns != 7 {
		t.Errorf("Engine.MaxConcurrentRuns = %d, want 7 (env override)", cfg.Engine.MaxConcurrentRuns)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/tradesim.yaml"); err == nil {
		t.Fatal("Load() of a missing file returned nil error")
	}
}

func TestSimulationProblems(t *testing.T) {
	valid := DefaultSimulation()
	valid.Symbols = []string{"AAPL"}
	valid.StartDate = "2024-01-02"
	valid.EndDate = "2024-02-01"

	if p := valid.Problems(); len(p) != 0 {
		t.Fatalf("Problems() on valid config = %v, want none", p)
	}

	tests := []struct {
		name   string
		mutate func(*Simulation)
		want   string
	}{
		{"no symbols", func(s *Simulation) { s.Symbols = nil }, "symbols"},
		{"reversed dates", func(s *Simulation) { s.StartDate, s.EndDate = s.EndDate, s.StartDate }, "start_date must be before"},
		{"equal dates", func(s *Simulation) { s.EndDate = s.StartDate }, "start_date must be before"},
		{"bad date", func(s *Simulation) { s.StartDate = "01/02/2024" }, "start_date"},
		{"zero capital", func(s *Simulation) { s.InitialCapital = 0 }, "initial_capital"},
		{"negative commission", func(s *Simulation) { s.CommissionRate = -0.01 }, "commission_rate"},
		{"fill policy", func(s *Simulation) { s.FillPolicy = "vwap" }, "fill_policy"},
		{"position size", func(s *Simulation) { s.Risk.MaxPositionSize = 1.5 }, "max_position_size"},
		{"max positions", func(s *Simulation) { s.Risk.MaxPositions = 0 }, "max_positions"},
		{"lot size", func(s *Simulation) { s.Risk.LotSize = 0 }, "lot_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			s.Symbols = append([]string(nil), valid.Symbols...)
			tt.mutate(&s)
			problems := s.Problems()
			if len(problems) == 0 {
				t.Fatalf("Problems() = none, want one mentioning %q", tt.want)
			}
			if !strings.Contains(strings.Join(problems, "; "), tt.want) {
				t.Errorf("Problems() = %v, want one mentioning %q", problems, tt.want)
			}
		})
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("TRADESIM_CONFIG", "")
	if got := PathFromEnv(); got != "config/tradesim.yaml" {
		t.Errorf("PathFromEnv() = %q, want default", got)
	}
	t.Setenv("TRADESIM_CONFIG", "/etc/tradesim.yaml")
	if got := PathFromEnv(); got != "/etc/tradesim.yaml" {
		t.Errorf("PathFromEnv() = %q, want %q", got, "/etc/tradesim.yaml")
	}
}
