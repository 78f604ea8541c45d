package domain

import (
	"fmt"
	"math"
)

// Request bounds shared by the API boundary and the core entry points
const (
	MinLookbackDays    = 30
	MaxLookbackDays    = 1000
	MinSimulationPaths = 1000
	MaxSimulationPaths = 100000
	MaxPortfolioAssets = 50
	MaxHorizonDays     = 1000
	WeightSumTolerance = 0.01
)

// SimulationConfig describes one Monte Carlo run
type SimulationConfig struct {
	Method           Method
	Distribution     Distribution
	Paths            int
	HorizonDays      int
	ConfidenceLevels []float64
	Seed             *uint64
	Antithetic       bool
	ControlVariate   bool
	QuasiRandom      bool
}

// Validate checks path count, horizon, confidence levels and the distribution
func (c SimulationConfig) Validate() error {
	const op = "validate_simulation"
	if c.Method != MethodMonteCarlo {
		return NewValidationError(op, fmt.Sprintf("simulation requires method %q", MethodMonteCarlo)).
			WithDetail("method", string(c.Method))
	}
	if c.Distribution == nil {
		return NewValidationError(op, "simulation requires a distribution")
	}
	if c.Paths < MinSimulationPaths || c.Paths > MaxSimulationPaths {
		return NewValidationError(op, "path count out of range").
			WithDetail("paths", c.Paths).
			WithConstraint("min", MinSimulationPaths).
			WithConstraint("max", MaxSimulationPaths)
	}
	if err := ValidateHorizon(c.HorizonDays); err != nil {
		return err
	}
	if err := ValidateConfidenceLevels(c.ConfidenceLevels); err != nil {
		return err
	}
	return c.Distribution.Validate()
}

// ValidateConfidenceLevels requires at least one level, each strictly inside (0,1)
func ValidateConfidenceLevels(levels []float64) error {
	if len(levels) == 0 {
		return NewValidationError("validate_confidence", "at least one confidence level is required")
	}
	for _, c := range levels {
		if err := ValidateConfidence(c); err != nil {
			return err
		}
	}
	return nil
}

// ValidateConfidence requires c in (0,1)
func ValidateConfidence(c float64) error {
	if math.IsNaN(c) || c <= 0 || c >= 1 {
		return NewValidationError("validate_confidence", "confidence level must lie in (0, 1)").
			WithDetail("confidence", c)
	}
	return nil
}

// ValidateHorizon requires a horizon of at least one day
func ValidateHorizon(days int) error {
	if days < 1 || days > MaxHorizonDays {
		return NewValidationError("validate_horizon", "time horizon out of range").
			WithDetail("horizon_days", days).
			WithConstraint("min", 1).
			WithConstraint("max", MaxHorizonDays)
	}
	return nil
}

// ValidateLookback requires lookbackDays in [30, 1000]
func ValidateLookback(days int) error {
	if days < MinLookbackDays || days > MaxLookbackDays {
		return NewValidationError("validate_lookback", "lookback days out of range").
			WithDetail("lookback_days", days).
			WithConstraint("min", MinLookbackDays).
			WithConstraint("max", MaxLookbackDays)
	}
	return nil
}

// ValidateWeights checks the portfolio symbol/weight contract
func ValidateWeights(symbols []string, weights []float64) error {
	const op = "validate_weights"
	if len(symbols) < 1 || len(symbols) > MaxPortfolioAssets {
		return NewValidationError(op, "portfolio must hold between 1 and 50 symbols").
			WithDetail("symbols", len(symbols))
	}
	if len(symbols) != len(weights) {
		return NewValidationError(op, "symbols and weights must have equal length").
			WithDetail("symbols", len(symbols)).WithDetail("weights", len(weights))
	}
	seen := make(map[string]struct{}, len(symbols))
	sum := 0.0
	for i, s := range symbols {
		if s == "" {
			return NewValidationError(op, "symbol must not be empty").WithDetail("index", i)
		}
		if _, dup := seen[s]; dup {
			return NewValidationError(op, "duplicate symbol").WithDetail("symbol", s)
		}
		seen[s] = struct{}{}
		if !finite(weights[i]) {
			return NewValidationError(op, "weights must be finite").WithDetail("index", i)
		}
		sum += weights[i]
	}
	if math.Abs(sum-1) > WeightSumTolerance {
		return NewValidationError(op, "weights must sum to 1").
			WithDetail("sum", sum).
			WithConstraint("tolerance", WeightSumTolerance)
	}
	return nil
}

// ValidateSymbols checks the symbol list of an optimization request
func ValidateSymbols(symbols []string) error {
	weights := make([]float64, len(symbols))
	if len(symbols) > 0 {
		weights[0] = 1
	}
	return ValidateWeights(symbols, weights)
}
