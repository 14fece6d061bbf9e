// Package engine runs backtests: the daily simulation loop, the risk
// manager that admits orders, and the manager that executes runs
// concurrently and keeps their results.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"tradesim/internal/broker"
	"tradesim/internal/config"
	"tradesim/internal/domain"
	"tradesim/internal/metrics"
	"tradesim/internal/performance"
	"tradesim/internal/portfolio"
	"tradesim/internal/strategy"
	"tradesim/internal/strategy/builtins"
	"tradesim/internal/timeseries"
	"tradesim/internal/util"
)

// Simulation replays one configuration over a dataset. It moves through
// idle, configured, running and then completed or failed. A Simulation is
// used by a single goroutine and runs at most once.
type Simulation struct {
	id     string
	data   *timeseries.Dataset
	logger *slog.Logger
	cal    *util.TradingCalendar

	cfg      config.Simulation
	state    State
	strategy strategy.Strategy
	err      error
	result   *Result

	symbols     []string
	pf          *portfolio.Portfolio
	broker      broker.Broker
	risk        *RiskManager
	rejections  map[string]int
	diagnostics []Diagnostic
	unavailable map[diagnosticKey]bool
}

type diagnosticKey struct{ symbol, message string }

// Option customises a Simulation.
type Option func(*Simulation)

// WithID sets the run id used in logs and the result.
func WithID(id string) Option {
	return func(s *Simulation) { s.id = id }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// WithCalendar overrides the trading calendar derived from the market.
func WithCalendar(c *util.TradingCalendar) Option {
	return func(s *Simulation) { s.cal = c }
}

// WithBroker replaces the simulated broker built from the commission rate.
func WithBroker(b broker.Broker) Option {
	return func(s *Simulation) { s.broker = b }
}

// WithStrategy replaces the strategy named in the configuration.
func WithStrategy(st strategy.Strategy) Option {
	return func(s *Simulation) { s.strategy = st }
}

// NewSimulation creates an idle simulation over data.
func NewSimulation(data *timeseries.Dataset, opts ...Option) *Simulation {
	s := &Simulation{
		data:   data,
		state:  StateIdle,
		logger: util.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Simulation) State() State { return s.state }

// Err returns the failure of a failed run.
func (s *Simulation) Err() error { return s.err }

// Result returns the result of a completed run.
func (s *Simulation) Result() *Result { return s.result }

// Configure stores a copy of cfg. It is allowed before the run starts.
func (s *Simulation) Configure(cfg config.Simulation) error {
	if s.state != StateIdle && s.state != StateConfigured {
		return fmt.Errorf("configure: simulation is %s", s.state)
	}
	cfg.Symbols = append([]string(nil), cfg.Symbols...)
	s.cfg = cfg
	s.state = StateConfigured
	return nil
}

// Validate checks cfg and resolves its strategy.
func Validate(cfg config.Simulation) (strategy.Strategy, error) {
	problems := cfg.Problems()
	var st strategy.Strategy
	if id, err := strategy.ParseID(cfg.Strategy); err != nil {
		problems = append(problems, err.Error())
	} else if st, err = builtins.New(id, cfg.Params); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return nil, &InvalidConfigError{Problems: problems}
	}
	return st, nil
}

// Run executes the simulation. It returns the result on completion; any
// error leaves the simulation failed.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	if s.state != StateConfigured {
		return nil, fmt.Errorf("run: simulation is %s", s.state)
	}

	if s.strategy == nil {
		st, err := Validate(s.cfg)
		if err != nil {
			return nil, s.fail(err)
		}
		s.strategy = st
	} else if problems := s.cfg.Problems(); len(problems) > 0 {
		return nil, s.fail(&InvalidConfigError{Problems: problems})
	}

	start, end, _ := s.cfg.Range()
	if s.cal == nil {
		s.cal = util.NewTradingCalendar(domain.Market(s.cfg.Market))
	}
	if s.data == nil {
		s.data = timeseries.NewDataset(nil, nil, nil)
	}

	s.state = StateRunning
	s.symbols = normaliseSymbols(s.cfg.Symbols)
	s.pf = portfolio.New(s.cfg.InitialCapital)
	if s.broker == nil {
		s.broker = broker.NewSimulatorBroker(s.cfg.CommissionRate)
	}
	s.risk = NewRiskManager(s.cfg.Risk, s.cfg.CommissionRate)
	s.rejections = make(map[string]int)
	s.unavailable = make(map[diagnosticKey]bool)

	days := s.data.Days(s.symbols, start, end, s.cal)
	s.logger.Info("simulation started",
		"run_id", s.id,
		"strategy", s.strategy.ID(),
		"symbols", len(s.symbols),
		"days", len(days),
		"fill_policy", s.cfg.FillPolicy,
	)
	if len(days) == 0 {
		s.diagnose(start, "", "no trading days with data in range")
	}

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, s.fail(fmt.Errorf("%w: %v", ErrAborted, err))
		}
		if err := s.step(day); err != nil {
			return nil, s.fail(err)
		}
	}

	if s.cfg.CloseAtEnd && len(days) > 0 {
		if err := s.closeAll(days[len(days)-1]); err != nil {
			return nil, s.fail(err)
		}
	}

	trades := s.pf.Trades()
	curve := s.pf.Curve()
	rep := performance.Analyze(trades, curve, s.cfg.InitialCapital, s.cfg.PeriodsPerYear)
	s.result = newResult(s.id, s.cfg, rep, curve, trades, s.rejections, s.diagnostics)
	if s.result.Strategy == "" {
		s.result.Strategy = string(s.strategy.ID())
	}
	s.state = StateCompleted

	s.logger.Info("simulation completed",
		"run_id", s.id,
		"final_capital", rep.FinalCapital,
		"total_return_pct", rep.TotalReturnPct,
		"trades", rep.TotalTrades,
	)
	return s.result, nil
}

func (s *Simulation) fail(err error) error {
	s.state = StateFailed
	s.err = err
	s.logger.Error("simulation failed", "run_id", s.id, "error", err)
	return err
}

// ---------------------------------------------------------------------------
// Daily loop
// ---------------------------------------------------------------------------

// step processes one trading day: exits, then entries, then the mark at the
// close.
func (s *Simulation) step(day time.Time) error {
	sod := s.pf.LastEquity()
	s.risk.BeginDay(day)

	// A bar without a positive close is treated as missing.
	bars := make(map[string]domain.Bar, len(s.symbols))
	unusable := make(map[string]bool)
	for _, sym := range s.symbols {
		b, ok := s.data.Bar(sym, day)
		if !ok {
			continue
		}
		if !(b.Close > 0) {
			s.diagnose(day, sym, "bar has no positive close")
			unusable[sym] = true
			continue
		}
		bars[sym] = b
	}
	for sym, b := range bars {
		s.pf.Mark(sym, s.referencePrice(b))
	}

	signals := make(map[string]domain.Signal, len(s.symbols))
	signalFor := func(sym string) domain.Signal {
		if sig, ok := signals[sym]; ok {
			return sig
		}
		sig := s.generate(sym, day)
		signals[sym] = sig
		return sig
	}

	closed := make(map[string]bool)
	for _, sym := range s.pf.Symbols() {
		b, ok := bars[sym]
		if !ok {
			if !unusable[sym] {
				s.diagnose(day, sym, "no bar for held symbol")
			}
			continue
		}
		price := s.referencePrice(b)
		pos, _ := s.pf.Position(sym)

		if reason, hit := s.risk.CheckExit(pos, price); hit {
			if err := s.execute(domain.Order{Symbol: sym, Side: domain.SideSell, Qty: pos.Qty, Price: price, Reason: reason}, day); err != nil {
				return err
			}
			closed[sym] = true
			continue
		}

		sig := signalFor(sym)
		if sig.Action != domain.ActionSell {
			continue
		}
		order, rej := s.risk.Evaluate(sig, s.snapshot(sod, &pos), price)
		if rej != Admitted {
			s.reject(sym, rej)
			continue
		}
		if err := s.execute(order, day); err != nil {
			return err
		}
		closed[sym] = true
	}

	for _, sym := range s.symbols {
		if closed[sym] {
			continue
		}
		b, ok := bars[sym]
		if !ok {
			if !unusable[sym] {
				s.diagnose(day, sym, "no bar")
			}
			continue
		}
		sig := signalFor(sym)
		var held *domain.Position
		if pos, ok := s.pf.Position(sym); ok {
			held = &pos
		}
		order, rej := s.risk.Evaluate(sig, s.snapshot(sod, held), s.referencePrice(b))
		if rej != Admitted {
			s.reject(sym, rej)
			continue
		}
		if err := s.execute(order, day); err != nil {
			return err
		}
	}

	for sym, b := range bars {
		s.pf.Mark(sym, b.Close)
	}
	s.pf.MarkEquity(day)
	return nil
}

// generate asks the strategy for sym's signal on day. Under next_open the
// decision sees data up to the previous trading day only.
func (s *Simulation) generate(sym string, day time.Time) domain.Signal {
	asOf := day
	if s.cfg.FillPolicy != config.FillClose {
		asOf = s.cal.PrevTradingDay(day)
	}
	w := s.data.Window(sym, asOf)
	if len(w.Bars) == 0 {
		s.diagnose(day, sym, "no history before decision date")
	}
	return s.strategy.Generate(sym, asOf, w)
}

func (s *Simulation) referencePrice(b domain.Bar) float64 {
	if s.cfg.FillPolicy == config.FillClose || !(b.Open > 0) {
		return b.Close
	}
	return b.Open
}

func (s *Simulation) snapshot(sod float64, held *domain.Position) Snapshot {
	return Snapshot{
		Cash:             s.pf.Cash(),
		Equity:           s.pf.Equity(),
		StartOfDayEquity: sod,
		OpenPositions:    s.pf.OpenCount(),
		Held:             held,
	}
}

// execute fills order. A cash shortfall at execution is a rejection; any
// other broker error is fatal.
func (s *Simulation) execute(order domain.Order, day time.Time) error {
	t, err := s.broker.Execute(order, s.pf, day)
	if errors.Is(err, broker.ErrInsufficientCash) {
		s.reject(order.Symbol, RejectInsufficientCash)
		return nil
	}
	if err != nil {
		return &ExecutionError{Symbol: order.Symbol, Err: err}
	}
	metrics.RecordTrade(string(t.Side), string(t.Reason))
	s.logger.Debug("fill",
		"run_id", s.id,
		"date", day.Format(config.DateLayout),
		"symbol", t.Symbol,
		"side", t.Side,
		"qty", t.Qty,
		"price", t.Price,
		"reason", t.Reason,
	)
	return nil
}

// closeAll sells every open position at its last close on the final day
// and re-marks that day's equity point.
func (s *Simulation) closeAll(last time.Time) error {
	for _, pos := range s.pf.Positions() {
		price := pos.LastPrice
		if b, ok := s.data.LastBar(pos.Symbol, last); ok && b.Close > 0 {
			price = b.Close
		}
		order := domain.Order{Symbol: pos.Symbol, Side: domain.SideSell, Qty: pos.Qty, Price: price, Reason: domain.ReasonEndOfRun}
		if err := s.execute(order, last); err != nil {
			return err
		}
	}
	s.pf.MarkEquity(last)
	return nil
}

func (s *Simulation) reject(sym string, r Rejection) {
	s.rejections[string(r)]++
	metrics.RecordRejection(string(r))
	if r != RejectNoSignal {
		s.logger.Debug("signal rejected", "run_id", s.id, "symbol", sym, "reason", r)
	}
}

// diagnose records a data gap once per symbol and message.
func (s *Simulation) diagnose(day time.Time, sym, msg string) {
	key := diagnosticKey{sym, msg}
	if s.unavailable[key] {
		return
	}
	s.unavailable[key] = true
	s.logger.Debug("data unavailable", "run_id", s.id, "date", day.Format(config.DateLayout), "symbol", sym, "message", msg)
	s.diagnostics = append(s.diagnostics, Diagnostic{
		Date:    day.Format(config.DateLayout),
		Symbol:  sym,
		Kind:    DiagnosticDataUnavailable,
		Message: msg,
	})
}

func normaliseSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
