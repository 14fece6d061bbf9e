package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"tradesim/internal/config"
	"tradesim/internal/metrics"
	"tradesim/internal/store"
	"tradesim/internal/timeseries"
	"tradesim/internal/util"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// MaxConcurrent bounds the number of runs executing at once.
	MaxConcurrent int
	// Retain is the number of finished runs kept in memory. Older runs are
	// still served from the RunStore.
	Retain int
	Logger *slog.Logger
}

// Manager executes simulation runs asynchronously and keeps their state.
// It is safe for concurrent use.
type Manager struct {
	src    timeseries.Sources
	runs   store.RunStore
	sem    *semaphore.Weighted
	retain int
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	byID  map[string]*Run
	order []string
}

// NewManager creates a Manager reading data from src. runs may be nil, in
// which case results live in memory only.
func NewManager(src timeseries.Sources, runs store.RunStore, opts ManagerOptions) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Retain <= 0 {
		opts.Retain = 200
	}
	if opts.Logger == nil {
		opts.Logger = util.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		src:    src,
		runs:   runs,
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		retain: opts.Retain,
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		byID:   make(map[string]*Run),
	}
}

// Run registers a run for cfg and starts it in the background. The run id
// is returned even when validation fails; in that case the run is already
// failed and the error is an *InvalidConfigError.
func (m *Manager) Run(ctx context.Context, cfg config.Simulation) (string, error) {
	cfg.Symbols = append([]string(nil), cfg.Symbols...)
	run := &Run{
		ID:        uuid.NewString(),
		Strategy:  cfg.Strategy,
		State:     StateConfigured,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := Validate(cfg); err != nil {
		m.add(run)
		m.finish(ctx, run.ID, nil, err)
		return run.ID, err
	}

	m.add(run)
	m.wg.Add(1)
	go m.execute(run.ID, cfg)
	return run.ID, nil
}

func (m *Manager) execute(id string, cfg config.Simulation) {
	defer m.wg.Done()
	ctx := m.ctx

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(context.Background(), id, nil, fmt.Errorf("%w: %v", ErrAborted, err))
		return
	}
	defer m.sem.Release(1)

	m.setState(id, StateRunning)
	metrics.RunStarted()
	began := time.Now()

	res, err := m.simulate(ctx, id, cfg)

	state := StateCompleted
	if err != nil {
		state = StateFailed
	}
	metrics.RunFinished(cfg.Strategy, string(state), time.Since(began))
	m.finish(context.Background(), id, res, err)
}

func (m *Manager) simulate(ctx context.Context, id string, cfg config.Simulation) (*Result, error) {
	start, end, err := cfg.Range()
	if err != nil {
		return nil, &InvalidConfigError{Problems: []string{err.Error()}}
	}

	loadStart := time.Now()
	data, err := timeseries.Load(ctx, m.src, timeseries.LoadRequest{
		Symbols:    cfg.Symbols,
		Market:     cfg.Market,
		Start:      start,
		End:        end,
		WarmupDays: cfg.WarmupDays,
	})
	metrics.ObserveDataLoad(time.Since(loadStart))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		return nil, &loadError{err: err}
	}

	sim := NewSimulation(data, WithID(id), WithLogger(m.logger))
	if err := sim.Configure(cfg); err != nil {
		return nil, err
	}
	return sim.Run(ctx)
}

// ---------------------------------------------------------------------------
// Bookkeeping
// ---------------------------------------------------------------------------

func (m *Manager) add(run *Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[run.ID] = run
	m.order = append(m.order, run.ID)
}

func (m *Manager) setState(id string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.byID[id]; ok {
		r.State = s
	}
}

// finish moves the run to its terminal state, persists it and evicts the
// oldest finished runs beyond the retention limit.
func (m *Manager) finish(ctx context.Context, id string, res *Result, runErr error) {
	now := time.Now().UTC()

	m.mu.Lock()
	run, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	run.FinishedAt = &now
	if runErr != nil {
		run.State = StateFailed
		run.Error = newRunError(runErr)
	} else {
		run.State = StateCompleted
		run.Result = res
	}
	snapshot := *run
	m.evictLocked()
	m.mu.Unlock()

	if runErr != nil {
		m.logger.Warn("run failed", "run_id", id, "error", runErr)
	} else {
		m.logger.Info("run completed", "run_id", id, "strategy", snapshot.Strategy)
	}
	if err := m.persist(ctx, &snapshot); err != nil {
		m.logger.Error("persisting run", "run_id", id, "error", err)
	}
}

func (m *Manager) evictLocked() {
	excess := len(m.order) - m.retain
	if excess <= 0 {
		return
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if excess > 0 && m.byID[id].State.Terminal() {
			delete(m.byID, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

func (m *Manager) persist(ctx context.Context, run *Run) error {
	if m.runs == nil {
		return nil
	}
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}
	rec := &store.RunRecord{
		ID:        run.ID,
		Strategy:  run.Strategy,
		State:     string(run.State),
		Config:    cfg,
		Result:    doc,
		CreatedAt: run.CreatedAt,
	}
	if run.Error != nil {
		rec.Error = run.Error.Message
	}
	if run.FinishedAt != nil {
		rec.FinishedAt = *run.FinishedAt
	}
	return m.runs.SaveRun(ctx, rec)
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Result returns a copy of the run with the given id, or ErrNotFound.
func (m *Manager) Result(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	run, ok := m.byID[id]
	var cp Run
	if ok {
		cp = *run
	}
	m.mu.RUnlock()
	if ok {
		return &cp, nil
	}

	if m.runs == nil {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	rec, err := m.runs.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	var stored Run
	if err := json.Unmarshal(rec.Result, &stored); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return &stored, nil
}

// List returns summaries of known runs, newest first.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.byID))
	seen := make(map[string]bool, len(m.byID))
	for _, r := range m.byID {
		out = append(out, r.summary())
		seen[r.ID] = true
	}
	m.mu.RUnlock()

	if m.runs != nil {
		recs, err := m.runs.ListRuns(ctx, m.retain)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		for _, rec := range recs {
			if seen[rec.ID] {
				continue
			}
			s := Summary{
				ID:        rec.ID,
				Strategy:  rec.Strategy,
				State:     State(rec.State),
				Error:     rec.Error,
				CreatedAt: rec.CreatedAt,
			}
			if !rec.FinishedAt.IsZero() {
				f := rec.FinishedAt
				s.FinishedAt = &f
			}
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Compare returns one row per id, in the order given. Every run must have
// completed.
func (m *Manager) Compare(ctx context.Context, ids []string) ([]Comparison, error) {
	out := make([]Comparison, 0, len(ids))
	for _, id := range ids {
		run, err := m.Result(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.State != StateCompleted || run.Result == nil {
			return nil, fmt.Errorf("run %s is %s: %w", id, run.State, ErrNotReady)
		}
		r := run.Result
		out = append(out, Comparison{
			ID:             run.ID,
			Strategy:       run.Strategy,
			InitialCapital: r.InitialCapital,
			FinalCapital:   r.FinalCapital,
			TotalReturnPct: r.TotalReturnPct,
			SharpeRatio:    r.SharpeRatio,
			MaxDrawdownPct: r.MaxDrawdownPct,
			WinRate:        r.WinRate,
			TotalTrades:    r.TotalTrades,
		})
	}
	return out, nil
}

// Wait blocks until every started run has finished.
func (m *Manager) Wait() { m.wg.Wait() }

// Close aborts runs still executing and waits for them.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
