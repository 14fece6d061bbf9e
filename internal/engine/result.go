package engine

import (
	"time"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/performance"
)

// State is the lifecycle position of a simulation.
type State string

const (
	StateIdle       State = "idle"
	StateConfigured State = "configured"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// DiagnosticDataUnavailable is the kind of diagnostic recorded when a symbol
// has no data to decide or mark on.
const DiagnosticDataUnavailable = "data_unavailable"

// Diagnostic is a non-fatal problem observed during a run.
type Diagnostic struct {
	Date    string `json:"date"`
	Symbol  string `json:"symbol"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is the output of a completed run. Every field is always present in
// its JSON form.
type Result struct {
	RunID      string `json:"run_id"`
	Strategy   string `json:"strategy"`
	FillPolicy string `json:"fill_policy"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`

	performance.Report

	EquityCurve []domain.EquityPoint `json:"equity_curve"`
	Trades      []domain.Trade       `json:"trades"`
	Rejections  map[string]int       `json:"rejections"`
	Diagnostics []Diagnostic         `json:"diagnostics"`
}

func newResult(runID string, cfg config.Simulation, rep performance.Report, curve []domain.EquityPoint,
	trades []domain.Trade, rejections map[string]int, diags []Diagnostic) *Result {
	if curve == nil {
		curve = []domain.EquityPoint{}
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	if rejections == nil {
		rejections = map[string]int{}
	}
	if diags == nil {
		diags = []Diagnostic{}
	}
	return &Result{
		RunID:       runID,
		Strategy:    cfg.Strategy,
		FillPolicy:  cfg.FillPolicy,
		StartDate:   cfg.StartDate,
		EndDate:     cfg.EndDate,
		Report:      rep,
		EquityCurve: curve,
		Trades:      trades,
		Rejections:  rejections,
		Diagnostics: diags,
	}
}

// Run is a simulation tracked by the Manager.
type Run struct {
	ID         string            `json:"run_id"`
	Strategy   string            `json:"strategy"`
	State      State             `json:"state"`
	Error      *RunError         `json:"error,omitempty"`
	Config     config.Simulation `json:"config"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Result     *Result           `json:"result,omitempty"`
}

// Summary is the listing form of a Run.
type Summary struct {
	ID         string     `json:"run_id"`
	Strategy   string     `json:"strategy"`
	State      State      `json:"state"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Comparison is one row of a side-by-side comparison of completed runs.
type Comparison struct {
	ID             string  `json:"run_id"`
	Strategy       string  `json:"strategy"`
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalReturnPct float64 `json:"total_return_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	WinRate        float64 `json:"win_rate"`
	TotalTrades    int     `json:"total_trades"`
}

func (r *Run) summary() Summary {
	s := Summary{
		ID:         r.ID,
		Strategy:   r.Strategy,
		State:      r.State,
		CreatedAt:  r.CreatedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Error != nil {
		s.Error = r.Error.Message
	}
	return s
}
