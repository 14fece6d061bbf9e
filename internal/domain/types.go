// Package domain holds the value types shared by the simulation engine, the
// stores and the API layer.
package domain

import "time"

// Market identifies the exchange group a symbol's data is stored under.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Action is the directional output of a strategy.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Side is the direction of an executed trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ExitReason records why an order was generated.
type ExitReason string

const (
	ReasonSignal     ExitReason = "signal"
	ReasonStopLoss   ExitReason = "stop_loss"
	ReasonTakeProfit ExitReason = "take_profit"
	ReasonEndOfRun   ExitReason = "end_of_run"
)

// ---------------------------------------------------------------------------
// Inputs
// ---------------------------------------------------------------------------

// Bar is one daily OHLCV record. Timestamp is the trading day at UTC
// midnight.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count"`
	VWAP       float64   `json:"vwap"`
}

// SentimentScore is an aggregated news polarity for one symbol on one day.
// Score is in [-1, 1]; Confidence in [0, 1] weights the score when several
// days are combined.
type SentimentScore struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Articles   int       `json:"articles"`
}

// FundamentalSnapshot holds the valuation ratios effective from Timestamp
// until the next snapshot for the same symbol.
type FundamentalSnapshot struct {
	Symbol         string    `json:"symbol"`
	Timestamp      time.Time `json:"timestamp"`
	PERatio        float64   `json:"pe_ratio"`
	PBRatio        float64   `json:"pb_ratio"`
	ROE            float64   `json:"roe"`
	EarningsGrowth float64   `json:"earnings_growth"`
	RevenueGrowth  float64   `json:"revenue_growth"`
	DebtToEquity   float64   `json:"debt_to_equity"`
}

// ---------------------------------------------------------------------------
// Engine values
// ---------------------------------------------------------------------------

// Signal is a strategy's view of one symbol on one day.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Strength  float64   `json:"strength"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason,omitempty"`
}

// Hold returns a zero-strength hold signal.
func Hold(symbol string, asOf time.Time, source, reason string) Signal {
	return Signal{
		Symbol:    symbol,
		Timestamp: asOf,
		Action:    ActionHold,
		Source:    source,
		Reason:    reason,
	}
}

// Order is a sized instruction admitted by the risk manager. Price is the
// reference price the order will fill at. StopLoss and TakeProfit are the
// exit levels given to the position a buy opens; zero disables a level.
type Order struct {
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	Qty        int64      `json:"qty"`
	Price      float64    `json:"price"`
	Strength   float64    `json:"strength"`
	Reason     ExitReason `json:"reason"`
	StopLoss   float64    `json:"stop_loss,omitempty"`
	TakeProfit float64    `json:"take_profit,omitempty"`
}

// Position is an open long holding. There is at most one per symbol.
type Position struct {
	Symbol          string    `json:"symbol"`
	Qty             int64     `json:"qty"`
	AvgEntryPrice   float64   `json:"avg_entry_price"`
	EntryDate       time.Time `json:"entry_date"`
	StopLoss        float64   `json:"stop_loss"`
	TakeProfit      float64   `json:"take_profit"`
	EntryCommission float64   `json:"entry_commission"`
	LastPrice       float64   `json:"last_price"`
}

// MarketValue returns the position valued at its last mark.
func (p Position) MarketValue() float64 {
	return float64(p.Qty) * p.LastPrice
}

// Trade is one executed fill. PnL and GrossPnL are set on closing trades
// only; PnL is net of both the entry and exit commission.
type Trade struct {
	Seq        int        `json:"seq"`
	Timestamp  time.Time  `json:"timestamp"`
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	Qty        int64      `json:"quantity"`
	Price      float64    `json:"price"`
	Commission float64    `json:"commission"`
	PnL        float64    `json:"pnl"`
	GrossPnL   float64    `json:"gross_pnl"`
	Reason     ExitReason `json:"reason"`
}

// Closing reports whether the trade closed a position.
func (t Trade) Closing() bool { return t.Side == SideSell }

// EquityPoint is the portfolio marked to market at a day's close.
type EquityPoint struct {
	Date           time.Time `json:"date"`
	Equity         float64   `json:"equity"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	OpenPositions  int       `json:"open_positions"`
}
