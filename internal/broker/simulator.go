package broker

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
	"tradesim/internal/portfolio"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker fills every order immediately and completely at its
// reference price and charges a proportional commission on the notional.
type SimulatorBroker struct {
	rate decimal.Decimal
}

// NewSimulatorBroker creates a SimulatorBroker charging commissionRate.
func NewSimulatorBroker(commissionRate float64) *SimulatorBroker {
	return &SimulatorBroker{rate: decimal.NewFromFloat(commissionRate)}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// Commission returns the commission charged on qty units at price.
func (b *SimulatorBroker) Commission(qty int64, price float64) float64 {
	return notional(qty, price).Mul(b.rate).InexactFloat64()
}

// Execute applies order to pf.
func (b *SimulatorBroker) Execute(order domain.Order, pf *portfolio.Portfolio, ts time.Time) (domain.Trade, error) {
	if order.Qty <= 0 || !(order.Price > 0) {
		return domain.Trade{}, fmt.Errorf("execute %s %s: invalid quantity %d at %v", order.Side, order.Symbol, order.Qty, order.Price)
	}
	switch order.Side {
	case domain.SideBuy:
		return b.buy(order, pf, ts)
	case domain.SideSell:
		return b.sell(order, pf, ts)
	}
	return domain.Trade{}, fmt.Errorf("execute %s: unknown side %q", order.Symbol, order.Side)
}

func (b *SimulatorBroker) buy(order domain.Order, pf *portfolio.Portfolio, ts time.Time) (domain.Trade, error) {
	gross := notional(order.Qty, order.Price)
	commission := gross.Mul(b.rate)
	cost := gross.Add(commission)
	if cost.GreaterThan(pf.CashDecimal()) {
		return domain.Trade{}, fmt.Errorf("buy %d %s costs %s, cash %s: %w",
			order.Qty, order.Symbol, cost.StringFixed(2), pf.CashDecimal().StringFixed(2), ErrInsufficientCash)
	}

	pos := domain.Position{
		Symbol:          order.Symbol,
		Qty:             order.Qty,
		AvgEntryPrice:   order.Price,
		EntryDate:       ts,
		StopLoss:        order.StopLoss,
		TakeProfit:      order.TakeProfit,
		EntryCommission: commission.InexactFloat64(),
		LastPrice:       order.Price,
	}
	if err := pf.Open(pos, cost); err != nil {
		return domain.Trade{}, err
	}

	return pf.Record(domain.Trade{
		Timestamp:  ts,
		Symbol:     pos.Symbol,
		Side:       domain.SideBuy,
		Qty:        order.Qty,
		Price:      order.Price,
		Commission: commission.InexactFloat64(),
		Reason:     order.Reason,
	}), nil
}

// sell always closes the whole position; there are no partial exits.
func (b *SimulatorBroker) sell(order domain.Order, pf *portfolio.Portfolio, ts time.Time) (domain.Trade, error) {
	held, ok := pf.Position(order.Symbol)
	if !ok {
		return domain.Trade{}, fmt.Errorf("sell %s: %w", order.Symbol, portfolio.ErrNoPosition)
	}
	if order.Qty != held.Qty {
		return domain.Trade{}, fmt.Errorf("sell %s: quantity %d does not match held %d", order.Symbol, order.Qty, held.Qty)
	}

	gross := notional(held.Qty, order.Price)
	commission := gross.Mul(b.rate)
	if _, err := pf.Close(order.Symbol, gross.Sub(commission)); err != nil {
		return domain.Trade{}, err
	}

	grossPnL := gross.Sub(notional(held.Qty, held.AvgEntryPrice))
	netPnL := grossPnL.Sub(decimal.NewFromFloat(held.EntryCommission)).Sub(commission)

	return pf.Record(domain.Trade{
		Timestamp:  ts,
		Symbol:     held.Symbol,
		Side:       domain.SideSell,
		Qty:        held.Qty,
		Price:      order.Price,
		Commission: commission.InexactFloat64(),
		PnL:        netPnL.InexactFloat64(),
		GrossPnL:   grossPnL.InexactFloat64(),
		Reason:     order.Reason,
	}), nil
}

func notional(qty int64, price float64) decimal.Decimal {
	return decimal.NewFromInt(qty).Mul(decimal.NewFromFloat(price))
}
