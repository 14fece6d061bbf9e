// Package broker defines the Broker interface and the simulated execution
// used by backtest runs.
package broker

import (
	"errors"
	"time"

	"tradesim/internal/domain"
	"tradesim/internal/portfolio"
)

// ErrInsufficientCash is returned when a buy costs more than the portfolio's
// cash at execution time.
var ErrInsufficientCash = errors.New("insufficient cash")

// Broker turns admitted orders into fills against a portfolio.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// Execute fills order in full at order.Price, updates pf and returns
	// the recorded trade.
	Execute(order domain.Order, pf *portfolio.Portfolio, ts time.Time) (domain.Trade, error)
}
