// Package performance computes run statistics from a trade log and an
// equity curve, and exports both as CSV.
package performance

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"tradesim/internal/domain"
)

// Ratio is a float that may be +Inf. Infinity is encoded in JSON as the
// string "inf", which encoding/json cannot do for a bare float64.
type Ratio float64

// MarshalJSON implements json.Marshaler.
func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-inf"`), nil
	case math.IsNaN(f):
		return []byte(`0`), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ratio) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		switch s {
		case "inf", "+inf":
			*r = Ratio(math.Inf(1))
		case "-inf":
			*r = Ratio(math.Inf(-1))
		default:
			return fmt.Errorf("invalid ratio %q", s)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// Report is the summary of one completed run.
type Report struct {
	InitialCapital   float64   `json:"initial_capital"`
	FinalCapital     float64   `json:"final_capital"`
	TotalReturn      float64   `json:"total_return"`
	TotalReturnPct   float64   `json:"total_return_pct"`
	SharpeRatio      float64   `json:"sharpe_ratio"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	MaxDrawdownPct   float64   `json:"max_drawdown_pct"`
	WinRate          float64   `json:"win_rate"`
	TotalTrades      int       `json:"total_trades"`
	ClosedTrades     int       `json:"closed_trades"`
	ProfitableTrades int       `json:"profitable_trades"`
	AvgTradePnL      float64   `json:"avg_trade_pnl"`
	BestTrade        float64   `json:"best_trade"`
	WorstTrade       float64   `json:"worst_trade"`
	ProfitFactor     Ratio     `json:"profit_factor"`
	TotalCommission  float64   `json:"total_commission"`
	Exposure         float64   `json:"exposure"`
	DailyReturns     []float64 `json:"daily_returns"`
}

// Analyze computes the report. The equity series is initialCapital followed
// by the curve's equities; periodsPerYear annualises the Sharpe ratio.
func Analyze(trades []domain.Trade, curve []domain.EquityPoint, initialCapital float64, periodsPerYear int) Report {
	values := make([]float64, 0, len(curve)+1)
	values = append(values, initialCapital)
	for _, pt := range curve {
		values = append(values, pt.Equity)
	}
	final := values[len(values)-1]

	r := Report{
		InitialCapital: initialCapital,
		FinalCapital:   final,
		TotalReturn:    final - initialCapital,
		TotalTrades:    len(trades),
		DailyReturns:   Returns(values),
		ProfitFactor:   Ratio(math.Inf(1)),
	}
	if initialCapital > 0 {
		r.TotalReturnPct = (final/initialCapital - 1) * 100
	}
	r.SharpeRatio = Sharpe(r.DailyReturns, periodsPerYear)
	r.MaxDrawdown, r.MaxDrawdownPct = MaxDrawdown(values)

	var wins, losses, sum float64
	for _, t := range trades {
		r.TotalCommission += t.Commission
		if !t.Closing() {
			continue
		}
		if r.ClosedTrades == 0 || t.PnL > r.BestTrade {
			r.BestTrade = t.PnL
		}
		if r.ClosedTrades == 0 || t.PnL < r.WorstTrade {
			r.WorstTrade = t.PnL
		}
		r.ClosedTrades++
		sum += t.PnL
		switch {
		case t.PnL > 0:
			r.ProfitableTrades++
			wins += t.PnL
		case t.PnL < 0:
			losses -= t.PnL
		}
	}
	if r.ClosedTrades > 0 {
		r.WinRate = float64(r.ProfitableTrades) / float64(r.ClosedTrades) * 100
		r.AvgTradePnL = sum / float64(r.ClosedTrades)
	}
	if losses > 0 {
		r.ProfitFactor = Ratio(wins / losses)
	}

	if len(curve) > 0 {
		exposed := 0
		for _, pt := range curve {
			if pt.OpenPositions > 0 {
				exposed++
			}
		}
		r.Exposure = float64(exposed) / float64(len(curve))
	}
	return r
}

// Returns returns the simple period returns of values. Periods starting
// from a non-positive value yield 0.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			out[i-1] = values[i]/values[i-1] - 1
		}
	}
	return out
}

// Sharpe returns mean/stdev of returns scaled by sqrt(periodsPerYear), with
// a zero risk-free rate and population stdev. Fewer than two returns or a
// zero stdev gives 0.
func Sharpe(returns []float64, periodsPerYear int) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(len(returns)))
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return mean / sd * math.Sqrt(float64(periodsPerYear))
}

// MaxDrawdown scans values once with a running peak and returns the largest
// decline in absolute terms and as a percentage of that peak.
func MaxDrawdown(values []float64) (abs, pct float64) {
	if len(values) == 0 {
		return 0, 0
	}
	peak := values[0]
	for _, v := range values {
		if v > peak {
			peak = v
		}
		dd := peak - v
		if dd > abs {
			abs = dd
		}
		if peak > 0 {
			if p := dd / peak * 100; p > pct {
				pct = p
			}
		}
	}
	return abs, pct
}
