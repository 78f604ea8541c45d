package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/victoralfred/riskengine/internal/config"
	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/ports"
	"github.com/victoralfred/riskengine/internal/core/services/portfolio"
	"github.com/victoralfred/riskengine/internal/core/services/risk"
	"github.com/victoralfred/riskengine/internal/core/services/stats"
	"github.com/victoralfred/riskengine/internal/logging"
	"github.com/victoralfred/riskengine/internal/metrics"
)

// historyFetchWorkers bounds concurrent history lookups per request
const historyFetchWorkers = 8

// RiskService validates API requests, loads history and runs the risk and
// portfolio engines.
type RiskService struct {
	history   ports.HistoryProvider
	calc      *risk.Calculator
	stress    *risk.StressEngine
	optimizer *portfolio.Optimizer
	frontier  *portfolio.FrontierBuilder
	cfg       config.RiskConfig
	metrics   *metrics.Registry
	logger    *zap.Logger
}

// NewRiskService wires the engines from cfg. reg may be nil.
func NewRiskService(history ports.HistoryProvider, cfg config.RiskConfig, reg *metrics.Registry, logger *zap.Logger) *RiskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	mc := risk.NewMonteCarloEngine(
		risk.WithWorkers(cfg.MonteCarloWorkers),
		risk.WithBatchSize(cfg.BatchSize),
		risk.WithLogger(logger),
	)
	calc := risk.NewCalculator(logger, mc)
	opt := portfolio.NewOptimizer(portfolio.DefaultConfig(), logger)
	return &RiskService{
		history:   history,
		calc:      calc,
		stress:    risk.NewStressEngine(calc, logger),
		optimizer: opt,
		frontier:  portfolio.NewFrontierBuilder(opt, cfg.FrontierWorkers, logger),
		cfg:       cfg,
		metrics:   reg,
		logger:    logger,
	}
}

// CalculateVaR estimates VaR and CVaR of one symbol
func (s *RiskService) CalculateVaR(ctx context.Context, req VaRRequest) (domain.VaRResult, error) {
	start := time.Now()
	result, err := s.calculateVaR(ctx, req)
	s.observe(ctx, "calculate_var", string(req.Method), start, err)
	return result, err
}

func (s *RiskService) calculateVaR(ctx context.Context, req VaRRequest) (domain.VaRResult, error) {
	p, err := s.resolve(req.Method, req.ConfidenceLevels, req.LookbackDays, req.SimulationCount, req.TimeHorizonDays)
	if err != nil {
		return domain.VaRResult{}, err
	}
	if err := domain.ValidateSymbols([]string{req.Target}); err != nil {
		return domain.VaRResult{}, err
	}
	kind, params, err := distributionFor(req.Distribution, req.Params)
	if err != nil {
		return domain.VaRResult{}, err
	}
	if err := validatePortfolioValue(req.PortfolioValue); err != nil {
		return domain.VaRResult{}, err
	}

	series, err := s.fetch(ctx, []string{req.Target}, p.lookback)
	if err != nil {
		return domain.VaRResult{}, err
	}

	calcReq := p.request(req.Method, kind, params, req.Seed)
	calcReq.Returns = series[0].Values()
	calcReq.Antithetic = req.Antithetic
	calcReq.ControlVariate = req.ControlVariate
	calcReq.QuasiRandom = req.QuasiRandom
	if req.Bootstrap {
		calcReq.BootstrapSamples = s.cfg.BootstrapSamples
	}

	result, err := s.calc.Calculate(ctx, calcReq)
	if err != nil {
		return domain.VaRResult{}, err
	}
	if req.Method == domain.MethodMonteCarlo {
		s.metrics.AddSimulatedPaths(p.paths)
	}
	if req.PortfolioValue != nil {
		result = result.WithAmounts(*req.PortfolioValue)
	}
	return result, nil
}

// CalculatePortfolioVaR estimates VaR of a weighted basket with per-asset
// contributions
func (s *RiskService) CalculatePortfolioVaR(ctx context.Context, req PortfolioVaRRequest) (domain.PortfolioVaRResult, error) {
	start := time.Now()
	result, err := s.calculatePortfolioVaR(ctx, req)
	s.observe(ctx, "calculate_portfolio_var", string(req.Method), start, err)
	return result, err
}

func (s *RiskService) calculatePortfolioVaR(ctx context.Context, req PortfolioVaRRequest) (domain.PortfolioVaRResult, error) {
	p, err := s.resolve(req.Method, req.ConfidenceLevels, req.LookbackDays, req.SimulationCount, req.TimeHorizonDays)
	if err != nil {
		return domain.PortfolioVaRResult{}, err
	}
	if err := domain.ValidateWeights(req.Symbols, req.Weights); err != nil {
		return domain.PortfolioVaRResult{}, err
	}
	kind, params, err := distributionFor(req.Distribution, req.Params)
	if err != nil {
		return domain.PortfolioVaRResult{}, err
	}
	if err := validatePortfolioValue(req.PortfolioValue); err != nil {
		return domain.PortfolioVaRResult{}, err
	}

	series, err := s.fetch(ctx, req.Symbols, p.lookback)
	if err != nil {
		return domain.PortfolioVaRResult{}, err
	}

	calcReq := p.request(req.Method, kind, params, req.Seed)
	calcReq.Antithetic = req.Antithetic
	calcReq.ControlVariate = req.ControlVariate
	calcReq.QuasiRandom = req.QuasiRandom

	result, err := s.calc.CalculatePortfolio(ctx, risk.PortfolioRequest{
		Request: calcReq,
		Symbols: req.Symbols,
		Weights: req.Weights,
		Columns: columns(series),
	})
	if err != nil {
		return domain.PortfolioVaRResult{}, err
	}
	if req.Method == domain.MethodMonteCarlo {
		s.metrics.AddSimulatedPaths(p.paths)
	}
	if req.PortfolioValue != nil {
		result.VaRResult = result.VaRResult.WithAmounts(*req.PortfolioValue)
	}
	return result, nil
}

// StressTest compares a baseline calculation with the same calculation under
// a stress scenario
func (s *RiskService) StressTest(ctx context.Context, req StressRequest) (domain.StressResult, error) {
	start := time.Now()
	result, err := s.stressTest(ctx, req)
	s.observe(ctx, "stress_test", string(req.Method), start, err)
	return result, err
}

func (s *RiskService) stressTest(ctx context.Context, req StressRequest) (domain.StressResult, error) {
	const op = "stress_test"
	p, err := s.resolve(req.Method, req.ConfidenceLevels, req.LookbackDays, req.SimulationCount, req.TimeHorizonDays)
	if err != nil {
		return domain.StressResult{}, err
	}
	scenarioType, err := domain.ParseScenarioType(string(req.ScenarioType))
	if err != nil {
		return domain.StressResult{}, err
	}
	scenario := domain.StressScenario{Name: req.ScenarioName, Type: scenarioType, Factor: req.StressFactor}
	if scenario.Name == "" {
		scenario.Name = string(scenarioType)
	}
	if err := risk.ValidateScenario(scenario); err != nil {
		return domain.StressResult{}, err
	}
	kind, params, err := distributionFor(req.Distribution, req.Params)
	if err != nil {
		return domain.StressResult{}, err
	}
	calcReq := p.request(req.Method, kind, params, req.Seed)

	if len(req.Symbols) == 0 {
		if err := domain.ValidateSymbols([]string{req.Target}); err != nil {
			return domain.StressResult{}, err
		}
		series, err := s.fetch(ctx, []string{req.Target}, p.lookback)
		if err != nil {
			return domain.StressResult{}, err
		}
		calcReq.Returns = series[0].Values()
		return s.stress.Run(ctx, calcReq, scenario)
	}

	if req.Target != "" {
		return domain.StressResult{}, domain.NewValidationError(op, "target and symbols are mutually exclusive")
	}
	if err := domain.ValidateWeights(req.Symbols, req.Weights); err != nil {
		return domain.StressResult{}, err
	}
	series, err := s.fetch(ctx, req.Symbols, p.lookback)
	if err != nil {
		return domain.StressResult{}, err
	}
	return s.stress.RunPortfolio(ctx, risk.PortfolioRequest{
		Request: calcReq,
		Symbols: req.Symbols,
		Weights: req.Weights,
		Columns: columns(series),
	}, scenario)
}

// Backtest forecasts one-day VaR for each day of the backtest period from the
// preceding estimation window and tests the violations for coverage
func (s *RiskService) Backtest(ctx context.Context, req BacktestRequest) (domain.BacktestResult, error) {
	start := time.Now()
	result, err := s.backtest(ctx, req)
	s.observe(ctx, "backtest", string(req.Method), start, err)
	return result, err
}

func (s *RiskService) backtest(ctx context.Context, req BacktestRequest) (domain.BacktestResult, error) {
	const op = "backtest"
	confidence := req.ConfidenceLevel
	if confidence == 0 {
		confidence = DefaultBacktestConfidence
	}
	p, err := s.resolve(req.Method, []float64{confidence}, req.LookbackDays, req.SimulationCount, DefaultHorizonDays)
	if err != nil {
		return domain.BacktestResult{}, err
	}
	period := req.BacktestPeriodDays
	if period == 0 {
		period = DefaultBacktestPeriodDays
	}
	if period < domain.MinLookbackDays || period > domain.MaxLookbackDays {
		return domain.BacktestResult{}, domain.NewValidationError(op, "backtest period out of range").
			WithDetail("backtest_period_days", period).
			WithConstraint("min", domain.MinLookbackDays).
			WithConstraint("max", domain.MaxLookbackDays)
	}
	if err := domain.ValidateSymbols([]string{req.Target}); err != nil {
		return domain.BacktestResult{}, err
	}
	kind, _, err := distributionFor(req.Distribution, nil)
	if err != nil {
		return domain.BacktestResult{}, err
	}

	window := p.lookback
	series, err := s.fetch(ctx, []string{req.Target}, window+period)
	if err != nil {
		return domain.BacktestResult{}, err
	}
	values := series[0].Values()
	if len(values) < window+period {
		return domain.BacktestResult{}, domain.NewInsufficientDataError(op, window+period, len(values))
	}
	values = values[len(values)-window-period:]

	realized := make([]float64, period)
	forecasts := make([]float64, period)
	for t := range period {
		if err := ctx.Err(); err != nil {
			return domain.BacktestResult{}, domain.NewCancelledError(op, err)
		}
		var seed *uint64
		if req.Seed != nil {
			stepSeed := *req.Seed + uint64(t)
			seed = &stepSeed
		}
		stepReq := p.request(req.Method, kind, nil, seed)
		stepReq.Returns = values[t : t+window]

		forecast, err := s.calc.Calculate(ctx, stepReq)
		if err != nil {
			return domain.BacktestResult{}, err
		}
		forecasts[t] = forecast.Levels[0].VaR
		realized[t] = values[t+window]
	}
	if req.Method == domain.MethodMonteCarlo {
		s.metrics.AddSimulatedPaths(p.paths * period)
	}

	result, err := risk.Backtest(realized, forecasts, confidence, req.Significance)
	if err != nil {
		return domain.BacktestResult{}, err
	}
	s.metrics.AddViolations(result.Violations)
	return result, nil
}

// RiskMetrics derives performance and tail statistics for a symbol or a
// weighted basket
func (s *RiskService) RiskMetrics(ctx context.Context, req MetricsRequest) (domain.RiskMetrics, error) {
	start := time.Now()
	result, err := s.riskMetrics(ctx, req)
	s.observe(ctx, "risk_metrics", "historical", start, err)
	return result, err
}

func (s *RiskService) riskMetrics(ctx context.Context, req MetricsRequest) (domain.RiskMetrics, error) {
	weights := req.Weights
	if len(weights) == 0 && len(req.Symbols) == 1 {
		weights = []float64{1}
	}
	if err := domain.ValidateWeights(req.Symbols, weights); err != nil {
		return domain.RiskMetrics{}, err
	}
	lookback, err := s.lookback(req.LookbackDays)
	if err != nil {
		return domain.RiskMetrics{}, err
	}

	symbols := req.Symbols
	if req.Benchmark != "" {
		symbols = append(append([]string(nil), req.Symbols...), req.Benchmark)
	}
	series, err := s.fetch(ctx, symbols, lookback)
	if err != nil {
		return domain.RiskMetrics{}, err
	}
	cols := columns(series)

	returns, err := risk.PortfolioReturns(cols[:len(req.Symbols)], weights)
	if err != nil {
		return domain.RiskMetrics{}, err
	}
	opts := risk.MetricsOptions{RiskFreeRate: s.cfg.RiskFreeRate, Annualization: s.cfg.AnnualizationFactor}
	if req.Benchmark != "" {
		opts.Benchmark = cols[len(req.Symbols)]
	}
	return risk.RiskMetrics(returns, opts)
}

// resolved holds request values after defaults are applied
type resolved struct {
	levels   []float64
	lookback int
	paths    int
	horizon  int
}

func (p resolved) request(method domain.Method, kind domain.DistributionKind, dist domain.Distribution, seed *uint64) risk.Request {
	return risk.Request{
		Method:           method,
		DistributionKind: kind,
		Distribution:     dist,
		ConfidenceLevels: p.levels,
		HorizonDays:      p.horizon,
		Paths:            p.paths,
		Seed:             seed,
	}
}

func (s *RiskService) resolve(method domain.Method, levels []float64, lookback, paths, horizon int) (resolved, error) {
	if _, err := domain.ParseMethod(string(method)); err != nil {
		return resolved{}, err
	}
	p := resolved{levels: levels, paths: paths, horizon: horizon}
	if len(p.levels) == 0 {
		p.levels = append([]float64(nil), DefaultConfidenceLevels...)
	}
	if p.horizon == 0 {
		p.horizon = DefaultHorizonDays
	}
	if p.paths == 0 && method == domain.MethodMonteCarlo {
		p.paths = s.cfg.DefaultSimulations
	}

	var err error
	if p.lookback, err = s.lookback(lookback); err != nil {
		return resolved{}, err
	}
	if err := domain.ValidateConfidenceLevels(p.levels); err != nil {
		return resolved{}, err
	}
	if err := domain.ValidateHorizon(p.horizon); err != nil {
		return resolved{}, err
	}
	if p.paths != 0 && (p.paths < domain.MinSimulationPaths || p.paths > domain.MaxSimulationPaths) {
		return resolved{}, domain.NewValidationError("validate_request", "simulation count out of range").
			WithDetail("simulation_count", p.paths).
			WithConstraint("min", domain.MinSimulationPaths).
			WithConstraint("max", domain.MaxSimulationPaths)
	}
	return p, nil
}

func (s *RiskService) lookback(days int) (int, error) {
	if days == 0 {
		days = s.cfg.DefaultLookbackDays
	}
	if err := domain.ValidateLookback(days); err != nil {
		return 0, err
	}
	return days, nil
}

// distributionFor reconciles a requested kind with explicit parameters
func distributionFor(kind domain.DistributionKind, dist domain.Distribution) (domain.DistributionKind, domain.Distribution, error) {
	if kind != "" {
		if _, err := domain.ParseDistributionKind(string(kind)); err != nil {
			return "", nil, err
		}
	}
	if dist == nil {
		return kind, nil, nil
	}
	if kind != "" && kind != dist.Kind() {
		return "", nil, domain.NewValidationError("validate_request", "distribution parameters do not match the distribution").
			WithDetail("distribution", string(kind)).
			WithDetail("params", string(dist.Kind()))
	}
	if err := dist.Validate(); err != nil {
		return "", nil, err
	}
	return dist.Kind(), dist, nil
}

func validatePortfolioValue(v *decimal.Decimal) error {
	if v != nil && v.IsNegative() {
		return domain.NewValidationError("validate_request", "portfolio value must not be negative")
	}
	return nil
}

// fetch loads history for every symbol concurrently and aligns the series on
// their common dates
func (s *RiskService) fetch(ctx context.Context, symbols []string, lookback int) ([]domain.ReturnSeries, error) {
	series := make([]domain.ReturnSeries, len(symbols))
	p := pool.New().
		WithMaxGoroutines(historyFetchWorkers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i, symbol := range symbols {
		p.Go(func(ctx context.Context) error {
			rs, err := s.history.History(ctx, symbol, lookback)
			if err != nil {
				return err
			}
			if err := rs.Validate(); err != nil {
				return err
			}
			series[i] = rs
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewCancelledError("fetch_history", err)
		}
		return nil, err
	}
	if len(series) > 1 {
		series = stats.Align(series)
	}
	return series, nil
}

func columns(series []domain.ReturnSeries) [][]float64 {
	out := make([][]float64, len(series))
	for i, s := range series {
		out[i] = s.Values()
	}
	return out
}

func (s *RiskService) observe(ctx context.Context, operation, method string, start time.Time, err error) {
	d := time.Since(start)
	s.metrics.ObserveCalculation(operation, method, d, err)

	logger := logging.FromContext(ctx, s.logger)
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("method", method),
		zap.Duration("duration", d),
	}
	if err != nil {
		logger.Info("calculation rejected", append(fields,
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))...)
		return
	}
	logger.Info("calculation completed", fields...)
}
