package risk

import (
	"context"

	"go.uber.org/zap"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// Request is a single-series VaR calculation. Returns feed the historical
// method and parameter fitting; Distribution is fitted from Returns when nil.
type Request struct {
	Method           domain.Method
	DistributionKind domain.DistributionKind
	Distribution     domain.Distribution
	Returns          []float64
	ConfidenceLevels []float64
	HorizonDays      int
	Paths            int
	Seed             *uint64
	Antithetic       bool
	ControlVariate   bool
	QuasiRandom      bool
	BootstrapSamples int
}

// Calculator dispatches a Request to the engine for its method
type Calculator struct {
	historical *HistoricalEngine
	parametric *ParametricEngine
	monteCarlo *MonteCarloEngine
	logger     *zap.Logger
}

// NewCalculator wires the three engines
func NewCalculator(logger *zap.Logger, mc *MonteCarloEngine) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mc == nil {
		mc = NewMonteCarloEngine(WithLogger(logger))
	}
	return &Calculator{
		historical: NewHistoricalEngine(logger),
		parametric: NewParametricEngine(logger),
		monteCarlo: mc,
		logger:     logger,
	}
}

// MonteCarlo returns the simulation engine
func (c *Calculator) MonteCarlo() *MonteCarloEngine { return c.monteCarlo }

// Calculate runs the request's method
func (c *Calculator) Calculate(ctx context.Context, req Request) (domain.VaRResult, error) {
	switch req.Method {
	case domain.MethodHistorical:
		if req.Distribution != nil {
			return domain.VaRResult{}, domain.NewValidationError("calculate_var", "distribution parameters do not apply to the historical method").
				WithDetail("distribution", string(req.Distribution.Kind()))
		}
		seed := uint64(0)
		if req.Seed != nil {
			seed = *req.Seed
		}
		return c.historical.Calculate(ctx, req.Returns, req.ConfidenceLevels, HistoricalOptions{
			HorizonDays:      req.HorizonDays,
			BootstrapSamples: req.BootstrapSamples,
			Seed:             seed,
		})

	case domain.MethodParametric:
		dist, err := c.distribution(req)
		if err != nil {
			return domain.VaRResult{}, err
		}
		result, err := c.parametric.Calculate(dist, req.ConfidenceLevels, req.HorizonDays)
		if err != nil {
			return domain.VaRResult{}, err
		}
		result.Observations = len(req.Returns)
		return result, nil

	case domain.MethodMonteCarlo:
		dist, err := c.distribution(req)
		if err != nil {
			return domain.VaRResult{}, err
		}
		horizon := req.HorizonDays
		if horizon == 0 {
			horizon = 1
		}
		return c.monteCarlo.Calculate(ctx, domain.SimulationConfig{
			Method:           domain.MethodMonteCarlo,
			Distribution:     dist,
			Paths:            req.Paths,
			HorizonDays:      horizon,
			ConfidenceLevels: req.ConfidenceLevels,
			Seed:             req.Seed,
			Antithetic:       req.Antithetic,
			ControlVariate:   req.ControlVariate,
			QuasiRandom:      req.QuasiRandom,
		})
	}
	return domain.VaRResult{}, domain.NewValidationError("calculate_var", "unknown method").
		WithDetail("method", string(req.Method))
}

func (c *Calculator) distribution(req Request) (domain.Distribution, error) {
	if req.Distribution != nil {
		return req.Distribution, nil
	}
	kind := req.DistributionKind
	if kind == "" {
		kind = domain.DistNormal
	}
	return FitDistribution(kind, req.Returns)
}
