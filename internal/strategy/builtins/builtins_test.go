package builtins

import (
	"math"
	"testing"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/strategy"
	"tradesim/internal/timeseries"
)

var asOf = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

// closesWindow builds a window whose last bar falls on asOf.
func closesWindow(closes ...float64) timeseries.Window {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: asOf.AddDate(0, 0, i-len(closes)+1),
			Open:      c,
			Close:     c,
		}
	}
	return timeseries.Window{Symbol: "TEST", AsOf: asOf, Bars: bars}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// fixed always returns the same signal.
type fixed struct {
	action   domain.Action
	strength float64
}

func (f fixed) ID() strategy.ID { return strategy.Momentum }
func (f fixed) Generate(symbol string, asOf time.Time, _ timeseries.Window) domain.Signal {
	return signal(symbol, asOf, "fixed", f.action, f.strength, "fixed")
}

func TestMomentum(t *testing.T) {
	s := NewMomentum(config.MomentumParams{
		ShortWindow: 2,
		LongWindow:  4,
		RSIPeriod:   3,
		Overbought:  90,
		Oversold:    10,
		TrendScale:  0.05,
	})

	tests := []struct {
		name   string
		closes []float64
		want   domain.Action
	}{
		{"uptrend with dip", []float64{10, 11, 12, 11.5, 13}, domain.ActionBuy},
		{"downtrend with bounce", []float64{13, 12, 11, 11.5, 10}, domain.ActionSell},
		{"flat", []float64{10, 10, 10, 10, 10}, domain.ActionHold},
		{"straight up is overbought", []float64{10, 11, 12, 13, 14}, domain.ActionHold},
		{"insufficient history", []float64{10, 11, 12}, domain.ActionHold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := s.Generate("TEST", asOf, closesWindow(tt.closes...))
			if sig.Action != tt.want {
				t.Fatalf("Action = %s, want %s (%s)", sig.Action, tt.want, sig.Reason)
			}
			if sig.Source != "momentum" || !sig.Timestamp.Equal(asOf) {
				t.Errorf("Source/Timestamp = %q/%v", sig.Source, sig.Timestamp)
			}
			if sig.Strength < 0 || sig.Strength > 1 {
				t.Errorf("Strength = %v, want within [0, 1]", sig.Strength)
			}
			if tt.want == domain.ActionHold && sig.Strength != 0 {
				t.Errorf("Hold strength = %v, want 0", sig.Strength)
			}
		})
	}
}

func TestMeanReversion(t *testing.T) {
	s := NewMeanReversion(config.MeanReversionParams{Window: 5, BandWidth: 1})

	// mean 9, population stdev 2
	buy := s.Generate("TEST", asOf, closesWindow(10, 10, 10, 10, 5))
	if buy.Action != domain.ActionBuy {
		t.Fatalf("Action = %s, want buy (%s)", buy.Action, buy.Reason)
	}
	if !approx(buy.Strength, 1) {
		t.Errorf("Strength = %v, want 1 for z = -2", buy.Strength)
	}

	sell := s.Generate("TEST", asOf, closesWindow(10, 10, 10, 10, 15))
	if sell.Action != domain.ActionSell {
		t.Errorf("Action = %s, want sell", sell.Action)
	}

	flat := s.Generate("TEST", asOf, closesWindow(7, 7, 7, 7, 7))
	if flat.Action != domain.ActionHold || flat.Reason != "zero volatility" {
		t.Errorf("flat window = %s %q, want hold on zero volatility", flat.Action, flat.Reason)
	}

	short := s.Generate("TEST", asOf, closesWindow(1, 2))
	if short.Action != domain.ActionHold || short.Strength != 0 {
		t.Errorf("short window = %+v, want zero-strength hold", short)
	}
}

func TestSentiment(t *testing.T) {
	s := NewSentiment(config.SentimentParams{LookbackDays: 7, Threshold: 0.3, MinArticles: 2})
	window := func(scores ...domain.SentimentScore) timeseries.Window {
		return timeseries.Window{Symbol: "TEST", AsOf: asOf, Sentiment: scores}
	}

	buy := s.Generate("TEST", asOf, window(
		domain.SentimentScore{Timestamp: asOf.AddDate(0, 0, -10), Score: -1, Articles: 5},
		domain.SentimentScore{Timestamp: asOf.AddDate(0, 0, -1), Score: 0.6, Confidence: 0.8, Articles: 2},
	))
	if buy.Action != domain.ActionBuy || !approx(buy.Strength, 0.6) {
		t.Errorf("Generate = %s %.3f, want buy 0.6 ignoring the stale score", buy.Action, buy.Strength)
	}

	sell := s.Generate("TEST", asOf, window(
		domain.SentimentScore{Timestamp: asOf.AddDate(0, 0, -2), Score: -0.8, Confidence: 1, Articles: 1},
		domain.SentimentScore{Timestamp: asOf, Score: -0.4, Confidence: 1, Articles: 1},
	))
	if sell.Action != domain.ActionSell || !approx(sell.Strength, 0.6) {
		t.Errorf("Generate = %s %.3f, want sell 0.6", sell.Action, sell.Strength)
	}

	thin := s.Generate("TEST", asOf, window(
		domain.SentimentScore{Timestamp: asOf, Score: 0.9, Articles: 1},
	))
	if thin.Action != domain.ActionHold {
		t.Errorf("single article = %s, want hold", thin.Action)
	}

	if none := s.Generate("TEST", asOf, window()); none.Action != domain.ActionHold {
		t.Errorf("no scores = %s, want hold", none.Action)
	}
}

func TestSentimentHalfLife(t *testing.T) {
	s := NewSentiment(config.SentimentParams{LookbackDays: 30, HalfLifeDays: 1, Threshold: 0.1, MinArticles: 1})
	w := timeseries.Window{Symbol: "TEST", AsOf: asOf, Sentiment: []domain.SentimentScore{
		{Timestamp: asOf.AddDate(0, 0, -10), Score: 1, Confidence: 1, Articles: 1},
		{Timestamp: asOf, Score: -0.5, Confidence: 1, Articles: 1},
	}}
	// The ten-day-old positive score is decayed to ~0.001 of the fresh one.
	if sig := s.Generate("TEST", asOf, w); sig.Action != domain.ActionSell {
		t.Errorf("Generate = %s (%s), want sell from the recent score", sig.Action, sig.Reason)
	}
}

func TestFundamental(t *testing.T) {
	s := NewFundamental(config.DefaultStrategyParams().Fundamental)
	gen := func(f *domain.FundamentalSnapshot) domain.Signal {
		return s.Generate("TEST", asOf, timeseries.Window{Symbol: "TEST", AsOf: asOf, Fundamental: f})
	}

	cheap := gen(&domain.FundamentalSnapshot{PERatio: 15, PBRatio: 2, ROE: 0.2, EarningsGrowth: 0.1})
	if cheap.Action != domain.ActionBuy || cheap.Strength != 1 {
		t.Errorf("cheap = %s %.2f, want buy 1.0", cheap.Action, cheap.Strength)
	}

	rich := gen(&domain.FundamentalSnapshot{PERatio: 50, PBRatio: 6, ROE: 0.3, EarningsGrowth: 0.02})
	if rich.Action != domain.ActionSell || rich.Strength != 0.5 {
		t.Errorf("rich = %s %.2f, want sell 0.5", rich.Action, rich.Strength)
	}

	mixed := gen(&domain.FundamentalSnapshot{PERatio: 15, PBRatio: 6, ROE: 0.1, EarningsGrowth: 0.02})
	if mixed.Action != domain.ActionHold {
		t.Errorf("mixed = %s, want hold", mixed.Action)
	}

	if missing := gen(nil); missing.Action != domain.ActionHold || missing.Strength != 0 {
		t.Errorf("no snapshot = %+v, want zero-strength hold", missing)
	}
}

func TestEnsembleVote(t *testing.T) {
	tests := []struct {
		name     string
		members  []strategy.Strategy
		want     domain.Action
		strength float64
	}{
		{
			"three-way tie holds",
			[]strategy.Strategy{fixed{domain.ActionBuy, 1}, fixed{domain.ActionSell, 1}, fixed{domain.ActionHold, 0}},
			domain.ActionHold, 0,
		},
		{
			"majority buy",
			[]strategy.Strategy{fixed{domain.ActionBuy, 0.8}, fixed{domain.ActionBuy, 0.4}, fixed{domain.ActionSell, 1}},
			domain.ActionBuy, 0.6,
		},
		{
			"buy tied with hold",
			[]strategy.Strategy{fixed{domain.ActionBuy, 1}, fixed{domain.ActionBuy, 1}, fixed{domain.ActionHold, 0}, fixed{domain.ActionHold, 0}},
			domain.ActionHold, 0,
		},
		{
			"plurality sell",
			[]strategy.Strategy{fixed{domain.ActionSell, 0.5}, fixed{domain.ActionSell, 0.5}, fixed{domain.ActionBuy, 1}, fixed{domain.ActionHold, 0}},
			domain.ActionSell, 0.5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := NewEnsemble(tt.members).Generate("TEST", asOf, timeseries.Window{})
			if sig.Action != tt.want || !approx(sig.Strength, tt.strength) {
				t.Errorf("Generate = %s %.3f, want %s %.3f", sig.Action, sig.Strength, tt.want, tt.strength)
			}
			if sig.Source != "ensemble" {
				t.Errorf("Source = %q, want ensemble", sig.Source)
			}
		})
	}
}

func TestMultiFactorScore(t *testing.T) {
	m := NewMultiFactor([]Factor{
		{Strategy: fixed{domain.ActionBuy, 1}, Weight: 1},
		{Strategy: fixed{domain.ActionHold, 0}, Weight: 1},
	}, 0.15)
	sig := m.Generate("TEST", asOf, timeseries.Window{})
	if sig.Action != domain.ActionBuy || !approx(sig.Strength, 0.5) {
		t.Errorf("Generate = %s %.3f, want buy 0.5", sig.Action, sig.Strength)
	}

	inBand := NewMultiFactor([]Factor{
		{Strategy: fixed{domain.ActionBuy, 0.2}, Weight: 1},
		{Strategy: fixed{domain.ActionSell, 0.1}, Weight: 1},
	}, 0.15)
	if sig := inBand.Generate("TEST", asOf, timeseries.Window{}); sig.Action != domain.ActionHold {
		t.Errorf("score inside deadband = %s, want hold", sig.Action)
	}

	sell := NewMultiFactor([]Factor{
		{Strategy: fixed{domain.ActionSell, 0.9}, Weight: 3},
		{Strategy: fixed{domain.ActionBuy, 0.3}, Weight: 1},
	}, 0.15)
	if sig := sell.Generate("TEST", asOf, timeseries.Window{}); sig.Action != domain.ActionSell || !approx(sig.Strength, 0.6) {
		t.Errorf("Generate = %s %.3f, want sell 0.6", sig.Action, sig.Strength)
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(config.DefaultStrategyParams())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if got := len(r.List()); got != 6 {
		t.Fatalf("registry holds %d strategies, want 6", got)
	}
	for _, id := range r.List() {
		s, _ := r.Get(id)
		if s.ID() != id {
			t.Errorf("registry entry %q reports ID %q", id, s.ID())
		}
	}
}

func TestNewRejectsBadComposites(t *testing.T) {
	p := config.DefaultStrategyParams()
	p.MultiFactor.Weights = map[string]float64{"momentum": 1, "ensemble": 1}
	if _, err := New(strategy.MultiFactor, p); err == nil {
		t.Error("multifactor accepted a composite weight")
	}

	p = config.DefaultStrategyParams()
	p.MultiFactor.Weights = map[string]float64{"momentum": 0}
	if _, err := New(strategy.MultiFactor, p); err == nil {
		t.Error("multifactor accepted all-zero weights")
	}

	p = config.DefaultStrategyParams()
	p.Ensemble.Members = []string{"momentum", "bogus"}
	if _, err := New(strategy.Ensemble, p); err == nil {
		t.Error("ensemble accepted an unknown member")
	}
}

// Every strategy must produce the same signal whether or not data after asOf
// exists in the dataset.
func TestNoLookAhead(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var all, past []domain.Bar
	var scores, pastScores []domain.SentimentScore
	for i := 0; i < 90; i++ {
		d := start.AddDate(0, 0, i)
		c := 100 + 10*math.Sin(float64(i)/5) + float64(i%7)
		b := domain.Bar{Symbol: "TEST", Timestamp: d, Open: c, High: c + 1, Low: c - 1, Close: c}
		sc := domain.SentimentScore{Symbol: "TEST", Timestamp: d, Score: math.Cos(float64(i) / 3), Confidence: 1, Articles: 1}
		all = append(all, b)
		scores = append(scores, sc)
		if i <= 60 {
			past = append(past, b)
			pastScores = append(pastScores, sc)
		}
	}
	cut := start.AddDate(0, 0, 60)

	full := timeseries.NewDataset(all, scores, nil)
	trunc := timeseries.NewDataset(past, pastScores, nil)

	r, err := NewRegistry(config.DefaultStrategyParams())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	for _, id := range r.List() {
		s, _ := r.Get(id)
		a := s.Generate("TEST", cut, full.Window("TEST", cut))
		b := s.Generate("TEST", cut, trunc.Window("TEST", cut))
		if a != b {
			t.Errorf("%s: signal with future data %+v differs from %+v", id, a, b)
		}
	}
}
