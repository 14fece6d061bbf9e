package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tradesim service and tools.
type Config struct {
	Storage    Storage      `yaml:"storage"`
	Server     Server       `yaml:"server"`
	Alpaca     Alpaca       `yaml:"alpaca"`
	Logging    Logging      `yaml:"logging"`
	Gather     GatherConfig `yaml:"gather"`
	Engine     EngineConfig `yaml:"engine"`
	Simulation Simulation   `yaml:"simulation"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	GRPCPort    int      `yaml:"grpc_port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Alpaca holds credentials and endpoints for the Alpaca data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls the ingest jobs.
type GatherConfig struct {
	Market          string   `yaml:"market"`
	Symbols         []string `yaml:"symbols"`
	SymbolsCSV      string   `yaml:"symbols_csv"`
	StartDate       string   `yaml:"start_date"`
	BatchSize       int      `yaml:"batch_size"`
	MaxWorkers      int      `yaml:"max_workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	NewsLimit       int      `yaml:"news_limit"`
	FundamentalsCSV string   `yaml:"fundamentals_csv"`
}

// EngineConfig bounds how the run manager schedules simulations.
type EngineConfig struct {
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
	// RetainRuns caps the number of finished runs kept in memory; older runs
	// are still served from the run store.
	RetainRuns int `yaml:"retain_runs"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns a Config populated with the values used when a section is
// missing from the YAML file.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/tradesim.db",
		},
		Server: Server{
			Host:     "0.0.0.0",
			Port:     8080,
			GRPCPort: 9090,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Gather: GatherConfig{
			Market:          "us",
			StartDate:       "2020-01-01",
			BatchSize:       100,
			MaxWorkers:      4,
			RateLimitPerMin: 200,
			NewsLimit:       50,
		},
		Engine: EngineConfig{
			MaxConcurrentRuns: 4,
			RetainRuns:        200,
		},
		Simulation: DefaultSimulation(),
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the
// defaults, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("TRADESIM_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("TRADESIM_MAX_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxConcurrentRuns = n
		}
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// PathFromEnv returns the config path named by TRADESIM_CONFIG, or the
// default location.
func PathFromEnv() string {
	if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
		return p
	}
	return "config/tradesim.yaml"
}
