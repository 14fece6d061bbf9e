package config

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for run boundaries.
const DateLayout = "2006-01-02"

// Fill policies.
const (
	FillNextOpen = "next_open"
	FillClose    = "close"
)

// Simulation is the configuration of one backtest run. It is copied by value
// into the run and never changed afterwards.
type Simulation struct {
	Symbols        []string       `yaml:"symbols" json:"symbols"`
	Market         string         `yaml:"market" json:"market"`
	StartDate      string         `yaml:"start_date" json:"start_date"`
	EndDate        string         `yaml:"end_date" json:"end_date"`
	InitialCapital float64        `yaml:"initial_capital" json:"initial_capital"`
	Strategy       string         `yaml:"strategy" json:"strategy"`
	CommissionRate float64        `yaml:"commission_rate" json:"commission_rate"`
	FillPolicy     string         `yaml:"fill_policy" json:"fill_policy"`
	CloseAtEnd     bool           `yaml:"close_at_end" json:"close_at_end"`
	WarmupDays     int            `yaml:"warmup_days" json:"warmup_days"`
	PeriodsPerYear int            `yaml:"periods_per_year" json:"periods_per_year"`
	Risk           Risk           `yaml:"risk" json:"risk"`
	Params         StrategyParams `yaml:"params" json:"params"`
}

// Risk holds the risk manager limits. Fractions are of equity.
type Risk struct {
	MaxPositionSize float64 `yaml:"max_position_size" json:"max_position_size"`
	MaxDailyLoss    float64 `yaml:"max_daily_loss" json:"max_daily_loss"`
	MaxPositions    int     `yaml:"max_positions" json:"max_positions"`
	StopLossPct     float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct   float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
	LotSize         int64   `yaml:"lot_size" json:"lot_size"`
}

// StrategyParams groups the tunable thresholds of every built-in strategy.
type StrategyParams struct {
	Momentum      MomentumParams      `yaml:"momentum" json:"momentum"`
	MeanReversion MeanReversionParams `yaml:"mean_reversion" json:"mean_reversion"`
	Sentiment     SentimentParams     `yaml:"sentiment" json:"sentiment"`
	Fundamental   FundamentalParams   `yaml:"fundamental" json:"fundamental"`
	MultiFactor   MultiFactorParams   `yaml:"multifactor" json:"multifactor"`
	Ensemble      EnsembleParams      `yaml:"ensemble" json:"ensemble"`
}

// MomentumParams configures the moving-average/RSI momentum strategy.
type MomentumParams struct {
	ShortWindow int     `yaml:"short_window" json:"short_window"`
	LongWindow  int     `yaml:"long_window" json:"long_window"`
	RSIPeriod   int     `yaml:"rsi_period" json:"rsi_period"`
	Overbought  float64 `yaml:"overbought" json:"overbought"`
	Oversold    float64 `yaml:"oversold" json:"oversold"`
	// TrendScale is the moving-average gap that maps to full trend strength.
	TrendScale float64 `yaml:"trend_scale" json:"trend_scale"`
}

// MeanReversionParams configures the volatility band strategy.
type MeanReversionParams struct {
	Window    int     `yaml:"window" json:"window"`
	BandWidth float64 `yaml:"band_width" json:"band_width"`
}

// SentimentParams configures the news sentiment strategy. HalfLifeDays of 0
// selects a simple windowed average.
type SentimentParams struct {
	LookbackDays int     `yaml:"lookback_days" json:"lookback_days"`
	HalfLifeDays float64 `yaml:"half_life_days" json:"half_life_days"`
	Threshold    float64 `yaml:"threshold" json:"threshold"`
	MinArticles  int     `yaml:"min_articles" json:"min_articles"`
}

// FundamentalParams configures the valuation screen.
type FundamentalParams struct {
	PEMax       float64 `yaml:"pe_max" json:"pe_max"`
	PEHigh      float64 `yaml:"pe_high" json:"pe_high"`
	PBMax       float64 `yaml:"pb_max" json:"pb_max"`
	PBHigh      float64 `yaml:"pb_high" json:"pb_high"`
	ROEMin      float64 `yaml:"roe_min" json:"roe_min"`
	GrowthMin   float64 `yaml:"growth_min" json:"growth_min"`
	MinCriteria int     `yaml:"min_criteria" json:"min_criteria"`
}

// MultiFactorParams weights the base strategies by id.
type MultiFactorParams struct {
	Weights  map[string]float64 `yaml:"weights" json:"weights"`
	Deadband float64            `yaml:"deadband" json:"deadband"`
}

// EnsembleParams lists the voting strategies by id.
type EnsembleParams struct {
	Members []string `yaml:"members" json:"members"`
}

// DefaultSimulation returns the run defaults.
func DefaultSimulation() Simulation {
	return Simulation{
		Market:         "us",
		InitialCapital: 100000,
		Strategy:       "multifactor",
		CommissionRate: 0.001,
		FillPolicy:     FillNextOpen,
		CloseAtEnd:     true,
		WarmupDays:     60,
		PeriodsPerYear: 252,
		Risk: Risk{
			MaxPositionSize: 0.10,
			MaxDailyLoss:    0.05,
			MaxPositions:    10,
			StopLossPct:     0.05,
			TakeProfitPct:   0.15,
			LotSize:         1,
		},
		Params: DefaultStrategyParams(),
	}
}

// DefaultStrategyParams returns the built-in strategy thresholds.
func DefaultStrategyParams() StrategyParams {
	return StrategyParams{
		Momentum: MomentumParams{
			ShortWindow: 5,
			LongWindow:  20,
			RSIPeriod:   14,
			Overbought:  70,
			Oversold:    30,
			TrendScale:  0.05,
		},
		MeanReversion: MeanReversionParams{
			Window:    20,
			BandWidth: 2.0,
		},
		Sentiment: SentimentParams{
			LookbackDays: 7,
			Threshold:    0.3,
			MinArticles:  2,
		},
		Fundamental: FundamentalParams{
			PEMax:       20,
			PEHigh:      35,
			PBMax:       3,
			PBHigh:      5,
			ROEMin:      0.15,
			GrowthMin:   0.05,
			MinCriteria: 2,
		},
		MultiFactor: MultiFactorParams{
			Weights: map[string]float64{
				"momentum":       0.25,
				"mean_reversion": 0.25,
				"sentiment":      0.25,
				"fundamental":    0.25,
			},
			Deadband: 0.15,
		},
		Ensemble: EnsembleParams{
			Members: []string{"momentum", "mean_reversion", "sentiment", "fundamental"},
		},
	}
}

// Range parses the run boundaries.
func (s Simulation) Range() (start, end time.Time, err error) {
	start, err = time.Parse(DateLayout, s.StartDate)
	if err != nil {
		return start, end, fmt.Errorf("start_date %q: %w", s.StartDate, err)
	}
	end, err = time.Parse(DateLayout, s.EndDate)
	if err != nil {
		return start, end, fmt.Errorf("end_date %q: %w", s.EndDate, err)
	}
	return start, end, nil
}

// Problems returns every field-level problem with the configuration. Strategy
// identifiers are checked by the engine, which owns the catalogue.
func (s Simulation) Problems() []string {
	var out []string
	if len(s.Symbols) == 0 {
		out = append(out, "symbols must not be empty")
	}
	for _, sym := range s.Symbols {
		if strings.TrimSpace(sym) == "" {
			out = append(out, "symbols must not contain blanks")
			break
		}
	}
	start, end, err := s.Range()
	if err != nil {
		out = append(out, err.Error())
	} else if !start.Before(end) {
		out = append(out, "start_date must be before end_date")
	}
	if !(s.InitialCapital > 0) {
		out = append(out, "initial_capital must be positive")
	}
	if s.CommissionRate < 0 {
		out = append(out, "commission_rate must not be negative")
	}
	if s.FillPolicy != FillNextOpen && s.FillPolicy != FillClose {
		out = append(out, fmt.Sprintf("fill_policy %q is not one of %s, %s", s.FillPolicy, FillNextOpen, FillClose))
	}
	if s.WarmupDays < 0 {
		out = append(out, "warmup_days must not be negative")
	}
	if s.PeriodsPerYear <= 0 {
		out = append(out, "periods_per_year must be positive")
	}
	out = append(out, s.Risk.problems()...)
	return out
}

func (r Risk) problems() []string {
	var out []string
	if r.MaxPositionSize <= 0 || r.MaxPositionSize > 1 {
		out = append(out, "risk.max_position_size must be in (0, 1]")
	}
	if r.MaxDailyLoss <= 0 || r.MaxDailyLoss > 1 {
		out = append(out, "risk.max_daily_loss must be in (0, 1]")
	}
	if r.MaxPositions <= 0 {
		out = append(out, "risk.max_positions must be positive")
	}
	if r.StopLossPct < 0 || r.StopLossPct >= 1 {
		out = append(out, "risk.stop_loss_pct must be in [0, 1)")
	}
	if r.TakeProfitPct < 0 {
		out = append(out, "risk.take_profit_pct must not be negative")
	}
	if r.LotSize <= 0 {
		out = append(out, "risk.lot_size must be positive")
	}
	return out
}
