package broker

import (
	"errors"
	"math"
	"testing"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/portfolio"
)

var ts = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSimulatorBrokerName(t *testing.T) {
	b := NewSimulatorBroker(0)
	if got := b.Name(); got != "simulator" {
		t.Errorf("SimulatorBroker.Name() = %q, want %q", got, "simulator")
	}
}

func TestSimulatorBrokerRoundTrip(t *testing.T) {
	b := NewSimulatorBroker(0.001)
	pf := portfolio.New(10000)

	buy, err := b.Execute(domain.Order{
		Symbol: "AAPL", Side: domain.SideBuy, Qty: 10, Price: 100,
		Reason: domain.ReasonSignal, StopLoss: 95, TakeProfit: 115,
	}, pf, ts)
	if err != nil {
		t.Fatalf("Execute(buy): %v", err)
	}
	if !approx(buy.Commission, 1) || buy.PnL != 0 || buy.Seq != 1 {
		t.Errorf("buy trade = %+v, want commission 1, zero pnl, seq 1", buy)
	}
	if !approx(pf.Cash(), 8999) {
		t.Errorf("Cash() after buy = %v, want 8999", pf.Cash())
	}
	pos, ok := pf.Position("AAPL")
	if !ok || pos.StopLoss != 95 || pos.TakeProfit != 115 || !approx(pos.EntryCommission, 1) {
		t.Fatalf("position = %+v, want exits and entry commission recorded", pos)
	}

	sell, err := b.Execute(domain.Order{
		Symbol: "AAPL", Side: domain.SideSell, Qty: 10, Price: 110, Reason: domain.ReasonTakeProfit,
	}, pf, ts.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("Execute(sell): %v", err)
	}
	if !approx(sell.GrossPnL, 100) {
		t.Errorf("GrossPnL = %v, want 100", sell.GrossPnL)
	}
	if !approx(sell.PnL, 100-1-1.1) {
		t.Errorf("PnL = %v, want 97.9", sell.PnL)
	}
	if sell.Reason != domain.ReasonTakeProfit || sell.Seq != 2 {
		t.Errorf("sell trade = %+v", sell)
	}
	if !approx(pf.Cash(), 10000+sell.PnL) {
		t.Errorf("Cash() = %v, want initial plus net pnl %v", pf.Cash(), 10000+sell.PnL)
	}
	if pf.OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0", pf.OpenCount())
	}
}

func TestSimulatorBrokerInsufficientCash(t *testing.T) {
	b := NewSimulatorBroker(0.01)
	pf := portfolio.New(1000)

	// 10 * 100 = 1000 plus 10 commission.
	_, err := b.Execute(domain.Order{Symbol: "X", Side: domain.SideBuy, Qty: 10, Price: 100}, pf, ts)
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("Execute error = %v, want ErrInsufficientCash", err)
	}
	if pf.Cash() != 1000 || pf.OpenCount() != 0 || len(pf.Trades()) != 0 {
		t.Error("rejected buy changed the portfolio")
	}
}

func TestSimulatorBrokerInvariantViolations(t *testing.T) {
	b := NewSimulatorBroker(0)
	pf := portfolio.New(1000)

	if _, err := b.Execute(domain.Order{Symbol: "X", Side: domain.SideSell, Qty: 1, Price: 10}, pf, ts); !errors.Is(err, portfolio.ErrNoPosition) {
		t.Errorf("sell without position error = %v, want ErrNoPosition", err)
	}

	order := domain.Order{Symbol: "X", Side: domain.SideBuy, Qty: 1, Price: 10}
	if _, err := b.Execute(order, pf, ts); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if _, err := b.Execute(order, pf, ts); !errors.Is(err, portfolio.ErrPositionExists) {
		t.Errorf("second buy error = %v, want ErrPositionExists", err)
	}

	if _, err := b.Execute(domain.Order{Symbol: "X", Side: domain.SideSell, Qty: 3, Price: 10}, pf, ts); err == nil {
		t.Error("partial sell was accepted")
	}
	if _, err := b.Execute(domain.Order{Symbol: "X", Side: domain.SideBuy, Qty: 0, Price: 10}, pf, ts); err == nil {
		t.Error("zero quantity was accepted")
	}
}

func TestCommission(t *testing.T) {
	if got := NewSimulatorBroker(0.001).Commission(100, 50); !approx(got, 5) {
		t.Errorf("Commission(100, 50) = %v, want 5", got)
	}
}
