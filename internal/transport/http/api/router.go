package apihttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"exitpilot/internal/backtest"
	"exitpilot/internal/backtest/archive"
	"exitpilot/internal/logger"
	"exitpilot/internal/market"
	"exitpilot/internal/monitor"
	"exitpilot/internal/risk"
	"exitpilot/internal/signal"
	"exitpilot/internal/strategy/exit"
	"exitpilot/internal/strategy/trailing"
	"exitpilot/internal/trade"
)

// RunStore 为回测归档的读写接口，由 archive.Store 实现。
type RunStore interface {
	Save(ctx context.Context, cfg backtest.Config, res backtest.Result, candles int) (archive.Summary, error)
	List(ctx context.Context, symbol string, limit int) ([]archive.Summary, error)
	Get(ctx context.Context, id string) (archive.Run, error)
}

const maxListLimit = 200

func (s *Server) registerRoutes(api *gin.RouterGroup) {
	api.POST("/risk/size", s.handleRiskSize)
	api.POST("/exit/plan", s.handleExitPlan)
	api.POST("/trades/evaluate", s.handleEvaluate)
	api.GET("/backtest/strategies", s.handleStrategies)
	api.POST("/backtest/runs", s.handleRunCreate)
	api.GET("/backtest/runs", s.handleRunList)
	api.GET("/backtest/runs/:id", s.handleRunDetail)
}

type sizeRequest struct {
	Market          string       `json:"market"`
	Balance         float64      `json:"balance" binding:"required,gt=0"`
	Price           float64      `json:"price" binding:"required,gt=0"`
	Leverage        *float64     `json:"leverage"`
	StopLossPercent float64      `json:"stop_loss_pct"`
	Risk            *risk.Config `json:"risk"`
}

func (s *Server) handleRiskSize(c *gin.Context) {
	var req sizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cfg := s.Policy().Risk
	if req.Risk != nil {
		if err := req.Risk.Validate(); err != nil {
			badRequest(c, err)
			return
		}
		cfg = *req.Risk
	}
	var (
		res risk.SizingResult
		err error
	)
	switch strings.ToLower(strings.TrimSpace(req.Market)) {
	case "", "spot":
		res = risk.SpotPositionSize(req.Balance, req.Price, cfg, req.StopLossPercent)
	case "futures":
		// 未传 leverage 时按 1 倍；显式传 0 或负数交给 risk 拒绝。
		lev := 1.0
		if req.Leverage != nil {
			lev = *req.Leverage
		}
		res, err = risk.FuturesPositionSize(req.Balance, req.Price, lev, cfg, req.StopLossPercent)
	default:
		badRequest(c, fmt.Errorf("unknown market %q", req.Market))
		return
	}
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type planRequest struct {
	TPPct              float64  `json:"tp_pct" binding:"required,gt=0"`
	Volatility         *float64 `json:"volatility"`
	PreviousVolatility *float64 `json:"previous_volatility"`
}

type planResponse struct {
	Plan     trade.ExitStrategy       `json:"plan"`
	Summary  string                   `json:"summary"`
	Trailing trade.TrailingStopConfig `json:"trailing"`
}

func (s *Server) handleExitPlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	trail := s.Policy().Trailing
	var plan trade.ExitStrategy
	if req.Volatility != nil {
		plan = exit.CalculateExitStrategyWithVolatility(req.TPPct, *req.Volatility)
		trail = trailing.ReconfigureTrailingStop(trail, *req.Volatility, req.PreviousVolatility)
	} else {
		plan = exit.CalculateExitStrategy(req.TPPct)
	}
	c.JSON(http.StatusOK, planResponse{Plan: plan, Summary: exit.Describe(&plan), Trailing: trail})
}

type evaluateResponse struct {
	monitor.Evaluation
	Next trade.State `json:"next_state"`
}

func (s *Server) handleEvaluate(c *gin.Context) {
	var st trade.State
	if err := c.ShouldBindJSON(&st); err != nil {
		badRequest(c, err)
		return
	}
	st.Side = trade.ParseSide(string(st.Side))
	if err := validateState(st); err != nil {
		badRequest(c, err)
		return
	}
	eval := s.monitorMetrics.Evaluate(st)
	c.JSON(http.StatusOK, evaluateResponse{Evaluation: eval, Next: monitor.Apply(st, eval.Actions)})
}

func validateState(st trade.State) error {
	switch {
	case !st.Side.Valid():
		return fmt.Errorf("side must be BUY or SELL")
	case st.EntryPrice <= 0:
		return fmt.Errorf("entry_price must be > 0")
	case st.Quantity <= 0:
		return fmt.Errorf("quantity must be > 0")
	case st.CurrentPrice <= 0:
		return fmt.Errorf("current_price must be > 0")
	case st.ExitedQuantity < 0 || st.ExitedQuantity > st.Quantity:
		return fmt.Errorf("exited_quantity must be within [0,quantity]")
	}
	return nil
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": signal.Names()})
}

type runRequest struct {
	Strategy       string          `json:"strategy" binding:"required"`
	Params         map[string]any  `json:"params"`
	Symbol         string          `json:"symbol"`
	InitialCapital float64         `json:"initial_capital"`
	Leverage       float64         `json:"leverage"`
	Candles        []market.Candle `json:"candles" binding:"required,min=2"`
}

type runResponse struct {
	Summary *archive.Summary `json:"summary,omitempty"`
	Result  backtest.Result  `json:"result"`
}

func (s *Server) handleRunCreate(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	strat, err := signal.New(req.Strategy, req.Params)
	if err != nil {
		badRequest(c, err)
		return
	}
	candles := market.Candles(req.Candles).Normalize()
	if err := candles.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	cfg := s.Policy().Simulation
	if sym := strings.TrimSpace(req.Symbol); sym != "" {
		cfg.Symbol = sym
	}
	if req.InitialCapital > 0 {
		cfg.InitialCapital = req.InitialCapital
	}
	if req.Leverage != 0 {
		cfg.Leverage = req.Leverage
	}
	res, err := backtest.Run(strat, candles, cfg)
	if err != nil {
		badRequest(c, err)
		return
	}
	s.backtestMetrics.Observe(res)

	resp := runResponse{Result: res}
	if s.runs != nil {
		sum, err := s.runs.Save(c.Request.Context(), cfg, res, len(candles))
		if err != nil {
			logger.Warnf("archive backtest run failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp.Summary = &sum
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleRunList(c *gin.Context) {
	if s.runs == nil {
		archiveDisabled(c)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	items, err := s.runs.List(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": items})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	if s.runs == nil {
		archiveDisabled(c)
		return
	}
	run, err := s.runs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, archive.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func archiveDisabled(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backtest archive is not enabled"})
}
