package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/services"
)

// RiskService is the application API served over HTTP
type RiskService interface {
	CalculateVaR(ctx context.Context, req services.VaRRequest) (domain.VaRResult, error)
	CalculatePortfolioVaR(ctx context.Context, req services.PortfolioVaRRequest) (domain.PortfolioVaRResult, error)
	StressTest(ctx context.Context, req services.StressRequest) (domain.StressResult, error)
	Backtest(ctx context.Context, req services.BacktestRequest) (domain.BacktestResult, error)
	OptimizePortfolio(ctx context.Context, req services.OptimizeRequest) (domain.OptimizationResult, error)
	EfficientFrontier(ctx context.Context, req services.FrontierRequest) (domain.Frontier, error)
	RiskMetrics(ctx context.Context, req services.MetricsRequest) (domain.RiskMetrics, error)
}

// RiskHandler handles risk and portfolio HTTP requests
type RiskHandler struct {
	service      RiskService
	riskFreeRate float64
	timeout      time.Duration
}

// NewRiskHandler creates a handler. riskFreeRate fills constraints that omit
// it; a positive timeout bounds each calculation.
func NewRiskHandler(service RiskService, riskFreeRate float64, timeout time.Duration) *RiskHandler {
	return &RiskHandler{service: service, riskFreeRate: riskFreeRate, timeout: timeout}
}

// VaRRequest represents a request to calculate VaR for one symbol
type VaRRequest struct {
	Target           string           `json:"target" binding:"required"`
	Method           string           `json:"method" binding:"required"`
	Distribution     string           `json:"distribution,omitempty"`
	Params           json.RawMessage  `json:"params,omitempty"`
	ConfidenceLevels []float64        `json:"confidence_levels,omitempty"`
	LookbackDays     int              `json:"lookback_days,omitempty"`
	SimulationCount  int              `json:"simulation_count,omitempty"`
	TimeHorizonDays  int              `json:"time_horizon_days,omitempty"`
	Seed             *uint64          `json:"seed,omitempty"`
	Antithetic       bool             `json:"antithetic,omitempty"`
	ControlVariate   bool             `json:"control_variate,omitempty"`
	QuasiRandom      bool             `json:"quasi_random,omitempty"`
	Bootstrap        bool             `json:"bootstrap,omitempty"`
	PortfolioValue   *decimal.Decimal `json:"portfolio_value,omitempty"`
}

// PortfolioVaRRequest represents a request to calculate portfolio VaR
type PortfolioVaRRequest struct {
	Symbols          []string         `json:"symbols" binding:"required,min=1"`
	Weights          []float64        `json:"weights" binding:"required,min=1"`
	Method           string           `json:"method" binding:"required"`
	Distribution     string           `json:"distribution,omitempty"`
	Params           json.RawMessage  `json:"params,omitempty"`
	ConfidenceLevels []float64        `json:"confidence_levels,omitempty"`
	LookbackDays     int              `json:"lookback_days,omitempty"`
	SimulationCount  int              `json:"simulation_count,omitempty"`
	TimeHorizonDays  int              `json:"time_horizon_days,omitempty"`
	Seed             *uint64          `json:"seed,omitempty"`
	Antithetic       bool             `json:"antithetic,omitempty"`
	ControlVariate   bool             `json:"control_variate,omitempty"`
	QuasiRandom      bool             `json:"quasi_random,omitempty"`
	PortfolioValue   *decimal.Decimal `json:"portfolio_value,omitempty"`
}

// StressRequest represents a stress test request
type StressRequest struct {
	Target           string          `json:"target,omitempty"`
	Symbols          []string        `json:"symbols,omitempty"`
	Weights          []float64       `json:"weights,omitempty"`
	ScenarioName     string          `json:"scenario_name,omitempty"`
	ScenarioType     string          `json:"scenario_type" binding:"required"`
	StressFactor     float64         `json:"stress_factor" binding:"required"`
	Method           string          `json:"method" binding:"required"`
	Distribution     string          `json:"distribution,omitempty"`
	Params           json.RawMessage `json:"params,omitempty"`
	ConfidenceLevels []float64       `json:"confidence_levels,omitempty"`
	LookbackDays     int             `json:"lookback_days,omitempty"`
	SimulationCount  int             `json:"simulation_count,omitempty"`
	TimeHorizonDays  int             `json:"time_horizon_days,omitempty"`
	Seed             *uint64         `json:"seed,omitempty"`
}

// BacktestRequest represents a rolling VaR backtest request
type BacktestRequest struct {
	Target             string  `json:"target" binding:"required"`
	Method             string  `json:"method" binding:"required"`
	Distribution       string  `json:"distribution,omitempty"`
	ConfidenceLevel    float64 `json:"confidence_level,omitempty"`
	BacktestPeriodDays int     `json:"backtest_period_days,omitempty"`
	LookbackDays       int     `json:"lookback_days,omitempty"`
	SimulationCount    int     `json:"simulation_count,omitempty"`
	Seed               *uint64 `json:"seed,omitempty"`
	Significance       float64 `json:"significance,omitempty"`
}

// ConstraintsRequest holds optional weight bounds and objective parameters.
// Omitted fields keep their defaults.
type ConstraintsRequest struct {
	MinWeight    *float64 `json:"min_weight,omitempty"`
	MaxWeight    *float64 `json:"max_weight,omitempty"`
	RiskFreeRate *float64 `json:"risk_free_rate,omitempty"`
	RiskAversion *float64 `json:"risk_aversion,omitempty"`
}

// OptimizeRequest represents a portfolio optimization request
type OptimizeRequest struct {
	Symbols      []string            `json:"symbols" binding:"required,min=1"`
	Method       string              `json:"method" binding:"required"`
	Constraints  *ConstraintsRequest `json:"constraints,omitempty"`
	LookbackDays int                 `json:"lookback_days,omitempty"`
	Views        *domain.Views       `json:"views,omitempty"`
}

// FrontierRequest represents an efficient frontier request
type FrontierRequest struct {
	Symbols      []string            `json:"symbols" binding:"required,min=1"`
	NumPoints    int                 `json:"num_points,omitempty"`
	Constraints  *ConstraintsRequest `json:"constraints,omitempty"`
	LookbackDays int                 `json:"lookback_days,omitempty"`
}

// MetricsRequest represents a risk metrics request
type MetricsRequest struct {
	Symbols      []string  `json:"symbols" binding:"required,min=1"`
	Weights      []float64 `json:"weights,omitempty"`
	Benchmark    string    `json:"benchmark,omitempty"`
	LookbackDays int       `json:"lookback_days,omitempty"`
}

func (h *RiskHandler) constraints(req *ConstraintsRequest) *domain.Constraints {
	if req == nil {
		return nil
	}
	c := domain.DefaultConstraints()
	c.RiskFreeRate = h.riskFreeRate
	if req.MinWeight != nil {
		c.MinWeight = *req.MinWeight
	}
	if req.MaxWeight != nil {
		c.MaxWeight = *req.MaxWeight
	}
	if req.RiskFreeRate != nil {
		c.RiskFreeRate = *req.RiskFreeRate
	}
	if req.RiskAversion != nil {
		c.RiskAversion = *req.RiskAversion
	}
	return &c
}

func (h *RiskHandler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.timeout)
	}
	return context.WithCancel(c.Request.Context())
}

// CalculateVaR calculates VaR and CVaR for one symbol
// @Summary Calculate VaR
// @Tags Risk
// @Accept json
// @Produce json
// @Param request body VaRRequest true "VaR request"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /v1/risk/var [post]
func (h *RiskHandler) CalculateVaR(c *gin.Context) {
	var req VaRRequest
	if !bindRequest(c, &req) {
		return
	}
	params, err := decodeParams(req.Distribution, req.Params)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	result, err := h.service.CalculateVaR(ctx, services.VaRRequest{
		Target:           req.Target,
		Method:           domain.Method(req.Method),
		Distribution:     domain.DistributionKind(req.Distribution),
		Params:           params,
		ConfidenceLevels: req.ConfidenceLevels,
		LookbackDays:     req.LookbackDays,
		SimulationCount:  req.SimulationCount,
		TimeHorizonDays:  req.TimeHorizonDays,
		Seed:             req.Seed,
		Antithetic:       req.Antithetic,
		ControlVariate:   req.ControlVariate,
		QuasiRandom:      req.QuasiRandom,
		Bootstrap:        req.Bootstrap,
		PortfolioValue:   req.PortfolioValue,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// CalculatePortfolioVaR calculates portfolio VaR with per-asset contributions
// @Summary Calculate portfolio VaR
// @Tags Risk
// @Accept json
// @Produce json
// @Param request body PortfolioVaRRequest true "Portfolio VaR request"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /v1/risk/portfolio-var [post]
func (h *RiskHandler) CalculatePortfolioVaR(c *gin.Context) {
	var req PortfolioVaRRequest
	if !bindRequest(c, &req) {
		return
	}
	params, err := decodeParams(req.Distribution, req.Params)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	result, err := h.service.CalculatePortfolioVaR(ctx, services.PortfolioVaRRequest{
		Symbols:          req.Symbols,
		Weights:          req.Weights,
		Method:           domain.Method(req.Method),
		Distribution:     domain.DistributionKind(req.Distribution),
		Params:           params,
		ConfidenceLevels: req.ConfidenceLevels,
		LookbackDays:     req.LookbackDays,
		SimulationCount:  req.SimulationCount,
		TimeHorizonDays:  req.TimeHorizonDays,
		Seed:             req.Seed,
		Antithetic:       req.Antithetic,
		ControlVariate:   req.ControlVariate,
		QuasiRandom:      req.QuasiRandom,
		PortfolioValue:   req.PortfolioValue,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// StressTest runs a stress scenario against a symbol or portfolio
// @Summary Stress test
// @Tags Risk
// @Accept json
// @Produce json
// @Param request body StressRequest true "Stress request"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /v1/risk/stress [post]
func (h *RiskHandler) StressTest(c *gin.Context) {
	var req StressRequest
	if !bindRequest(c, &req) {
		return
	}
	params, err := decodeParams(req.Distribution, req.Params)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	result, err := h.service.StressTest(ctx, services.StressRequest{
		Target:           req.Target,
		Symbols:          req.Symbols,
		Weights:          req.Weights,
		ScenarioName:     req.ScenarioName,
		ScenarioType:     domain.ScenarioType(req.ScenarioType),
		StressFactor:     req.StressFactor,
		Method:           domain.Method(req.Method),
		Distribution:     domain.DistributionKind(req.Distribution),
		Params:           params,
		ConfidenceLevels: req.ConfidenceLevels,
		LookbackDays:     req.LookbackDays,
		SimulationCount:  req.SimulationCount,
		TimeHorizonDays:  req.TimeHorizonDays,
		Seed:             req.Seed,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// Backtest backtests a rolling VaR forecast
// @Summary Backtest VaR
// @Tags Risk
// @Accept json
// @Produce json
// @Param request body BacktestRequest true "Backtest request"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /v1/risk/backtest [post]
func (h *RiskHandler) Backtest(c *gin.Context) {
	var req BacktestRequest
	if !bindRequest(c, &req) {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	result, err := h.service.Backtest(ctx, services.BacktestRequest{
		Target:             req.Target,
		Method:             domain.Method(req.Method),
		Distribution:       domain.DistributionKind(req.Distribution),
		ConfidenceLevel:    req.ConfidenceLevel,
		BacktestPeriodDays: req.BacktestPeriodDays,
		LookbackDays:       req.LookbackDays,
		SimulationCount:    req.SimulationCount,
		Seed:               req.Seed,
		Significance:       req.Significance,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// RiskMetrics computes performance and tail statistics
// @Summary Risk metrics
// @Tags Risk
// @Accept json
// @Produce json
// @Param request body MetricsRequest true "Metrics request"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /v1/risk/metrics [post]
func (h *RiskHandler) RiskMetrics(c *gin.Context) {
	var req MetricsRequest
	if !bindRequest(c, &req) {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	result, err := h.service.RiskMetrics(ctx, services.MetricsRequest{
		Symbols:      req.Symbols,
		Weights:      req.Weights,
		Benchmark:    req.Benchmark,
		LookbackDays: req.LookbackDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// OptimizePortfolio builds an optimized allocation
// @Summary Optimize portfolio
// @Tags Portfolio
// @Accept json
// @Produce json
// @Param request body OptimizeRequest true "Optimization request"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /v1/portfolio/optimize [post]
func (h *RiskHandler) OptimizePortfolio(c *gin.Context) {
	var req OptimizeRequest
	if !bindRequest(c, &req) {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	result, err := h.service.OptimizePortfolio(ctx, services.OptimizeRequest{
		Symbols:      req.Symbols,
		Method:       domain.OptimizationMethod(req.Method),
		Constraints:  h.constraints(req.Constraints),
		LookbackDays: req.LookbackDays,
		Views:        req.Views,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// EfficientFrontier traces the efficient frontier
// @Summary Efficient frontier
// @Tags Portfolio
// @Accept json
// @Produce json
// @Param request body FrontierRequest true "Frontier request"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /v1/portfolio/frontier [post]
func (h *RiskHandler) EfficientFrontier(c *gin.Context) {
	var req FrontierRequest
	if !bindRequest(c, &req) {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	result, err := h.service.EfficientFrontier(ctx, services.FrontierRequest{
		Symbols:      req.Symbols,
		NumPoints:    req.NumPoints,
		Constraints:  h.constraints(req.Constraints),
		LookbackDays: req.LookbackDays,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}
