package engine

import (
	"math"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/domain"
)

// Rejection is the reason a signal did not become an order. The empty
// value means the signal was admitted.
type Rejection string

const (
	Admitted               Rejection = ""
	RejectNoSignal         Rejection = "no_signal"
	RejectPositionOpen     Rejection = "position_open"
	RejectDailyLoss        Rejection = "daily_loss_limit"
	RejectMaxPositions     Rejection = "max_positions"
	RejectZeroQuantity     Rejection = "zero_quantity"
	RejectInsufficientCash Rejection = "insufficient_cash"
)

// Snapshot is the account state the risk manager decides against.
type Snapshot struct {
	Cash             float64
	Equity           float64
	StartOfDayEquity float64
	OpenPositions    int
	// Held is the open position in the signal's symbol, if any.
	Held *domain.Position
}

// RiskManager turns signals into sized orders under fixed limits. It keeps
// the daily loss breaker state, so each run needs its own instance.
type RiskManager struct {
	limits     config.Risk
	commission float64
	day        time.Time
	halted     bool
}

// NewRiskManager creates a RiskManager. commissionRate is included when
// sizing so that a full-size buy stays within its cash budget.
func NewRiskManager(limits config.Risk, commissionRate float64) *RiskManager {
	if limits.LotSize <= 0 {
		limits.LotSize = 1
	}
	return &RiskManager{limits: limits, commission: commissionRate}
}

// BeginDay resets the daily loss breaker when day differs from the current
// trading day.
func (rm *RiskManager) BeginDay(day time.Time) {
	if !day.Equal(rm.day) {
		rm.day = day
		rm.halted = false
	}
}

// Halted reports whether the daily loss breaker has tripped today.
func (rm *RiskManager) Halted() bool { return rm.halted }

// Evaluate decides on sig at reference price. Sells of held positions are
// always admitted for the full quantity.
func (rm *RiskManager) Evaluate(sig domain.Signal, snap Snapshot, price float64) (domain.Order, Rejection) {
	switch sig.Action {
	case domain.ActionSell:
		if snap.Held == nil {
			return domain.Order{}, RejectNoSignal
		}
		return domain.Order{
			Symbol:   sig.Symbol,
			Side:     domain.SideSell,
			Qty:      snap.Held.Qty,
			Price:    price,
			Strength: sig.Strength,
			Reason:   domain.ReasonSignal,
		}, Admitted
	case domain.ActionBuy:
	default:
		return domain.Order{}, RejectNoSignal
	}

	if snap.Held != nil {
		return domain.Order{}, RejectPositionOpen
	}

	sod := snap.StartOfDayEquity
	if rm.halted || (sod > 0 && sod-snap.Equity > rm.limits.MaxDailyLoss*sod) {
		rm.halted = true
		return domain.Order{}, RejectDailyLoss
	}

	if snap.OpenPositions >= rm.limits.MaxPositions {
		return domain.Order{}, RejectMaxPositions
	}

	qty := rm.Size(snap.Equity, sig.Strength, price)
	if qty <= 0 {
		return domain.Order{}, RejectZeroQuantity
	}

	if float64(qty)*price*(1+rm.commission) > snap.Cash {
		return domain.Order{}, RejectInsufficientCash
	}

	stop, take := rm.ExitLevels(price)
	return domain.Order{
		Symbol:     sig.Symbol,
		Side:       domain.SideBuy,
		Qty:        qty,
		Price:      price,
		Strength:   sig.Strength,
		Reason:     domain.ReasonSignal,
		StopLoss:   stop,
		TakeProfit: take,
	}, Admitted
}

// Size returns the whole-lot quantity for a buy at price scaled by
// strength.
func (rm *RiskManager) Size(equity, strength, price float64) int64 {
	if !(price > 0) || !(equity > 0) || !(strength > 0) {
		return 0
	}
	budget := rm.limits.MaxPositionSize * equity * math.Min(1, strength)
	units := math.Floor(budget / (price * (1 + rm.commission)))
	lots := math.Floor(units / float64(rm.limits.LotSize))
	return int64(lots) * rm.limits.LotSize
}

// ExitLevels returns the stop-loss and take-profit prices for an entry at
// price. A disabled level is 0.
func (rm *RiskManager) ExitLevels(price float64) (stop, take float64) {
	if rm.limits.StopLossPct > 0 {
		stop = price * (1 - rm.limits.StopLossPct)
	}
	if rm.limits.TakeProfitPct > 0 {
		take = price * (1 + rm.limits.TakeProfitPct)
	}
	return stop, take
}

// CheckExit reports whether price triggers pos's stop-loss or take-profit.
func (rm *RiskManager) CheckExit(pos domain.Position, price float64) (domain.ExitReason, bool) {
	switch {
	case pos.StopLoss > 0 && price <= pos.StopLoss:
		return domain.ReasonStopLoss, true
	case pos.TakeProfit > 0 && price >= pos.TakeProfit:
		return domain.ReasonTakeProfit, true
	}
	return "", false
}
