package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	trade := Trade{}
	if trade.PnL != 0 || trade.GrossPnL != 0 || trade.Commission != 0 {
		t.Error("expected zero PnL/GrossPnL/Commission for zero-value Trade")
	}

	// Verify enum constants are defined correctly.
	if ActionBuy != "buy" || ActionSell != "sell" || ActionHold != "hold" {
		t.Error("Action constants have unexpected values")
	}
	if SideBuy != "buy" || SideSell != "sell" {
		t.Error("Side constants have unexpected values")
	}
	if MarketUS != "us" || MarketCN != "cn" {
		t.Error("Market constants have unexpected values")
	}
}

func TestHold(t *testing.T) {
	asOf := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	s := Hold("AAPL", asOf, "momentum", "warm-up")

	if s.Action != ActionHold {
		t.Errorf("Action = %q, want %q", s.Action, ActionHold)
	}
	if s.Strength != 0 {
		t.Errorf("Strength = %v, want 0", s.Strength)
	}
	if !s.Timestamp.Equal(asOf) || s.Symbol != "AAPL" || s.Source != "momentum" {
		t.Errorf("Hold populated unexpected fields: %+v", s)
	}
}

func TestPositionMarketValue(t *testing.T) {
	pos := Position{Symbol: "MSFT", Qty: 12, AvgEntryPrice: 400, LastPrice: 410.5}
	if got, want := pos.MarketValue(), 12*410.5; got != want {
		t.Errorf("MarketValue() = %v, want %v", got, want)
	}
}

func TestTradeClosing(t *testing.T) {
	if (Trade{Side: SideBuy}).Closing() {
		t.Error("buy trade reported as closing")
	}
	if !(Trade{Side: SideSell}).Closing() {
		t.Error("sell trade not reported as closing")
	}
}
