package services

import (
	"context"
	"time"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/services/portfolio"
	"github.com/victoralfred/riskengine/internal/core/services/risk"
	"github.com/victoralfred/riskengine/internal/core/services/stats"
)

// OptimizePortfolio builds an allocation from annualized sample moments
func (s *RiskService) OptimizePortfolio(ctx context.Context, req OptimizeRequest) (domain.OptimizationResult, error) {
	start := time.Now()
	result, err := s.optimizePortfolio(ctx, req)
	s.observe(ctx, "optimize_portfolio", string(req.Method), start, err)
	return result, err
}

func (s *RiskService) optimizePortfolio(ctx context.Context, req OptimizeRequest) (domain.OptimizationResult, error) {
	method, err := domain.ParseOptimizationMethod(string(req.Method))
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	in, err := s.optimizerInput(ctx, req.Symbols, req.Constraints, req.LookbackDays)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	in.Views = req.Views

	result, err := s.optimizer.Optimize(ctx, method, in)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	result.Symbols = req.Symbols
	return result, nil
}

// EfficientFrontier traces efficient portfolios from annualized sample moments
func (s *RiskService) EfficientFrontier(ctx context.Context, req FrontierRequest) (domain.Frontier, error) {
	start := time.Now()
	result, err := s.efficientFrontier(ctx, req)
	s.observe(ctx, "efficient_frontier", "mean_variance", start, err)
	return result, err
}

func (s *RiskService) efficientFrontier(ctx context.Context, req FrontierRequest) (domain.Frontier, error) {
	numPoints := req.NumPoints
	if numPoints == 0 {
		numPoints = portfolio.DefaultFrontierPoints
	}
	if numPoints < portfolio.MinFrontierPoints || numPoints > portfolio.MaxFrontierPoints {
		return domain.Frontier{}, domain.NewValidationError("efficient_frontier", "number of frontier points out of range").
			WithDetail("num_points", numPoints).
			WithConstraint("min", portfolio.MinFrontierPoints).
			WithConstraint("max", portfolio.MaxFrontierPoints)
	}
	in, err := s.optimizerInput(ctx, req.Symbols, req.Constraints, req.LookbackDays)
	if err != nil {
		return domain.Frontier{}, err
	}
	return s.frontier.Build(ctx, in, numPoints)
}

// optimizerInput validates the symbol list and estimates annualized expected
// returns and covariance from aligned history
func (s *RiskService) optimizerInput(ctx context.Context, symbols []string, c *domain.Constraints, lookbackDays int) (portfolio.Input, error) {
	if err := domain.ValidateSymbols(symbols); err != nil {
		return portfolio.Input{}, err
	}
	lookback, err := s.lookback(lookbackDays)
	if err != nil {
		return portfolio.Input{}, err
	}
	constraints := domain.DefaultConstraints()
	constraints.RiskFreeRate = s.cfg.RiskFreeRate
	if c != nil {
		constraints = *c
	}

	series, err := s.fetch(ctx, symbols, lookback)
	if err != nil {
		return portfolio.Input{}, err
	}
	cols := columns(series)
	if len(cols[0]) < 2 {
		return portfolio.Input{}, domain.NewInsufficientDataError("optimizer_input", 2, len(cols[0]))
	}
	cov, err := stats.CovarianceFromColumns(cols)
	if err != nil {
		return portfolio.Input{}, err
	}
	ann := s.cfg.AnnualizationFactor
	if ann == 0 {
		ann = risk.TradingDaysPerYear
	}
	cov.ScaleSym(ann, cov)
	mu := stats.Means(cols)
	for i := range mu {
		mu[i] *= ann
	}

	return portfolio.Input{
		Symbols:         symbols,
		ExpectedReturns: mu,
		Covariance:      cov,
		Constraints:     constraints,
	}, nil
}
