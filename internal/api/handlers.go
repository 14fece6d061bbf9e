package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradesim/internal/config"
	"tradesim/internal/engine"
	"tradesim/internal/performance"
	"tradesim/internal/store"
	"tradesim/internal/strategy"
)

// Handler serves the simulation endpoints.
type Handler struct {
	manager  *engine.Manager
	bars     store.BarStore
	defaults config.Simulation
	log      *slog.Logger
}

// NewHandler creates a Handler. Requests are overlaid on defaults; bars may
// be nil, in which case the symbol listing is empty.
func NewHandler(m *engine.Manager, bars store.BarStore, defaults config.Simulation, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{manager: m, bars: bars, defaults: defaults, log: log}
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListStrategies handles GET /api/v1/strategies.
func (h *Handler) ListStrategies(c *gin.Context) {
	p := h.defaults.Params
	out := make([]StrategyInfo, 0, len(strategy.All()))
	for _, id := range strategy.All() {
		out = append(out, StrategyInfo{
			ID:          string(id),
			Description: id.Description(),
			Composite:   !id.IsBase(),
			Defaults:    strategyDefaults(id, p),
		})
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

func strategyDefaults(id strategy.ID, p config.StrategyParams) any {
	switch id {
	case strategy.Momentum:
		return p.Momentum
	case strategy.MeanReversion:
		return p.MeanReversion
	case strategy.Sentiment:
		return p.Sentiment
	case strategy.Fundamental:
		return p.Fundamental
	case strategy.MultiFactor:
		return p.MultiFactor
	case strategy.Ensemble:
		return p.Ensemble
	}
	return nil
}

// ListSymbols handles GET /api/v1/symbols?market=.
func (h *Handler) ListSymbols(c *gin.Context) {
	market := c.DefaultQuery("market", h.defaults.Market)
	symbols := []string{}
	if h.bars != nil {
		got, err := h.bars.ListSymbols(c.Request.Context(), market)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, CodeInternal, err.Error(), nil)
			return
		}
		if got != nil {
			symbols = got
		}
	}
	c.JSON(http.StatusOK, gin.H{"market": market, "symbols": symbols})
}

// CreateSimulation handles POST /api/v1/simulations. The run executes in
// the background; the response carries its id.
func (h *Handler) CreateSimulation(c *gin.Context) {
	cfg, err := decodeSimulation(h.defaults, c.ShouldBindJSON)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		return
	}

	id, err := h.manager.Run(c.Request.Context(), cfg)
	var invalid *engine.InvalidConfigError
	if errors.As(err, &invalid) {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error(),
			map[string]any{"run_id": id, "problems": invalid.Problems})
		return
	}
	if err != nil {
		writeEngineError(c, err)
		return
	}

	state := string(engine.StateConfigured)
	if run, err := h.manager.Result(c.Request.Context(), id); err == nil {
		state = string(run.State)
	}
	h.log.Info("simulation submitted", "run_id", id, "strategy", cfg.Strategy, "symbols", len(cfg.Symbols))
	c.JSON(http.StatusAccepted, SimulationResponse{RunID: id, State: state})
}

// ListSimulations handles GET /api/v1/simulations.
func (h *Handler) ListSimulations(c *gin.Context) {
	runs, err := h.manager.List(c.Request.Context())
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetSimulation handles GET /api/v1/simulations/:id.
func (h *Handler) GetSimulation(c *gin.Context) {
	run, err := h.manager.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ExportSimulation handles GET /api/v1/simulations/:id/export?kind=.
func (h *Handler) ExportSimulation(c *gin.Context) {
	kind := c.DefaultQuery("kind", "trades")
	if kind != "trades" && kind != "equity" {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest,
			fmt.Sprintf("kind %q is not one of trades, equity", kind), nil)
		return
	}

	id := c.Param("id")
	run, err := h.manager.Result(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	if run.State != engine.StateCompleted || run.Result == nil {
		writeEngineError(c, fmt.Errorf("run %s is %s: %w", id, run.State, engine.ErrNotReady))
		return
	}

	var buf bytes.Buffer
	if kind == "trades" {
		err = performance.WriteTradesCSV(&buf, run.Result.Trades)
	} else {
		err = performance.WriteEquityCSV(&buf, run.Result.EquityCurve)
	}
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.csv"`, id, kind))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// CompareSimulations handles POST /api/v1/simulations/compare.
func (h *Handler) CompareSimulations(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		return
	}
	if len(req.RunIDs) == 0 {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "run_ids must not be empty", nil)
		return
	}
	rows, err := h.manager.Compare(c.Request.Context(), req.RunIDs)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comparison": rows})
}
