// Package portfolio holds the cash ledger, open positions, trade log and
// equity curve of a single simulation run. A Portfolio is owned by exactly
// one run and is not safe for concurrent use.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

var (
	// ErrPositionExists is returned when opening a second position for a
	// symbol.
	ErrPositionExists = errors.New("position already open")

	// ErrNoPosition is returned when closing a symbol that is not held.
	ErrNoPosition = errors.New("no open position")
)

// Portfolio is the account state of one run.
type Portfolio struct {
	initial   decimal.Decimal
	cash      decimal.Decimal
	positions map[string]*domain.Position
	trades    []domain.Trade
	curve     []domain.EquityPoint
}

// New creates a portfolio holding initialCapital in cash.
func New(initialCapital float64) *Portfolio {
	c := decimal.NewFromFloat(initialCapital)
	return &Portfolio{
		initial:   c,
		cash:      c,
		positions: make(map[string]*domain.Position),
	}
}

// InitialCapital returns the starting cash.
func (p *Portfolio) InitialCapital() float64 { return p.initial.InexactFloat64() }

// Cash returns the cash balance.
func (p *Portfolio) Cash() float64 { return p.cash.InexactFloat64() }

// CashDecimal returns the exact cash balance.
func (p *Portfolio) CashDecimal() decimal.Decimal { return p.cash }

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// Position returns a copy of the open position for symbol.
func (p *Portfolio) Position(symbol string) (domain.Position, bool) {
	pos, ok := p.positions[strings.ToUpper(symbol)]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// Holds reports whether symbol has an open position.
func (p *Portfolio) Holds(symbol string) bool {
	_, ok := p.positions[strings.ToUpper(symbol)]
	return ok
}

// OpenCount returns the number of open positions.
func (p *Portfolio) OpenCount() int { return len(p.positions) }

// Symbols returns the held symbols in sorted order.
func (p *Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Positions returns copies of the open positions sorted by symbol.
func (p *Portfolio) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(p.positions))
	for _, sym := range p.Symbols() {
		out = append(out, *p.positions[sym])
	}
	return out
}

// Open debits cost from cash and records pos. It fails with
// ErrPositionExists when the symbol is already held.
func (p *Portfolio) Open(pos domain.Position, cost decimal.Decimal) error {
	sym := strings.ToUpper(pos.Symbol)
	if _, ok := p.positions[sym]; ok {
		return fmt.Errorf("open %s: %w", sym, ErrPositionExists)
	}
	if pos.Qty <= 0 {
		return fmt.Errorf("open %s: quantity %d must be positive", sym, pos.Qty)
	}
	pos.Symbol = sym
	if pos.LastPrice == 0 {
		pos.LastPrice = pos.AvgEntryPrice
	}
	p.cash = p.cash.Sub(cost)
	p.positions[sym] = &pos
	return nil
}

// Close removes the position for symbol, credits proceeds to cash and
// returns the removed position.
func (p *Portfolio) Close(symbol string, proceeds decimal.Decimal) (domain.Position, error) {
	sym := strings.ToUpper(symbol)
	pos, ok := p.positions[sym]
	if !ok {
		return domain.Position{}, fmt.Errorf("close %s: %w", sym, ErrNoPosition)
	}
	delete(p.positions, sym)
	p.cash = p.cash.Add(proceeds)
	return *pos, nil
}

// Mark sets the last price of symbol's position. Unknown symbols are
// ignored.
func (p *Portfolio) Mark(symbol string, price float64) {
	if pos, ok := p.positions[strings.ToUpper(symbol)]; ok && price > 0 {
		pos.LastPrice = price
	}
}

// PositionsValue returns the open positions at their last marks.
func (p *Portfolio) PositionsValue() float64 {
	total := decimal.Zero
	for _, pos := range p.positions {
		total = total.Add(decimal.NewFromInt(pos.Qty).Mul(decimal.NewFromFloat(pos.LastPrice)))
	}
	return total.InexactFloat64()
}

// Equity returns cash plus the marked value of open positions.
func (p *Portfolio) Equity() float64 {
	return p.cash.InexactFloat64() + p.PositionsValue()
}

// ---------------------------------------------------------------------------
// Trade log and equity curve
// ---------------------------------------------------------------------------

// Record appends t to the trade log, assigning its sequence number.
func (p *Portfolio) Record(t domain.Trade) domain.Trade {
	t.Seq = len(p.trades) + 1
	p.trades = append(p.trades, t)
	return t
}

// Trades returns a copy of the trade log.
func (p *Portfolio) Trades() []domain.Trade {
	return append([]domain.Trade(nil), p.trades...)
}

// Snapshot values the portfolio at date without recording it.
func (p *Portfolio) Snapshot(date time.Time) domain.EquityPoint {
	pv := p.PositionsValue()
	cash := p.cash.InexactFloat64()
	return domain.EquityPoint{
		Date:           date,
		Equity:         cash + pv,
		Cash:           cash,
		PositionsValue: pv,
		OpenPositions:  len(p.positions),
	}
}

// MarkEquity appends the snapshot for date to the equity curve. A second
// call for the same date replaces the last point.
func (p *Portfolio) MarkEquity(date time.Time) domain.EquityPoint {
	pt := p.Snapshot(date)
	if n := len(p.curve); n > 0 && p.curve[n-1].Date.Equal(date) {
		p.curve[n-1] = pt
		return pt
	}
	p.curve = append(p.curve, pt)
	return pt
}

// LastEquity returns the most recent equity point, or the initial capital
// when the curve is empty.
func (p *Portfolio) LastEquity() float64 {
	if n := len(p.curve); n > 0 {
		return p.curve[n-1].Equity
	}
	return p.initial.InexactFloat64()
}

// Curve returns a copy of the equity curve.
func (p *Portfolio) Curve() []domain.EquityPoint {
	return append([]domain.EquityPoint(nil), p.curve...)
}
