// Package risk implements the VaR/CVaR engines, stress testing, backtesting
// and derived risk metrics.
package risk

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/services/stats"
)

// loss negates a return, mapping -0 to 0
func loss(r float64) float64 {
	if r == 0 {
		return 0
	}
	return -r
}

// TailEstimate returns VaR and CVaR at confidence c from ascending returns.
// The tail is every return at or below the nearest-rank quantile, ties included.
func TailEstimate(sorted []float64, confidence float64) (varLoss, cvarLoss float64) {
	idx := stats.NearestRankIndex(len(sorted), confidence)
	q := sorted[idx]
	end := idx + 1
	for end < len(sorted) && sorted[end] <= q {
		end++
	}
	return loss(q), loss(floats.Sum(sorted[:end]) / float64(end))
}

// HistoricalVaR computes one-period historical VaR and CVaR
func HistoricalVaR(returns []float64, confidence float64) (varLoss, cvarLoss float64, err error) {
	if len(returns) == 0 {
		return 0, 0, domain.NewInsufficientDataError("historical_var", 1, 0)
	}
	if err := domain.ValidateConfidence(confidence); err != nil {
		return 0, 0, err
	}
	if err := stats.CheckFinite("historical_var", returns); err != nil {
		return 0, 0, err
	}
	varLoss, cvarLoss = TailEstimate(stats.SortedCopy(returns), confidence)
	return varLoss, cvarLoss, nil
}

// HistoricalOptions tunes a historical calculation
type HistoricalOptions struct {
	HorizonDays      int
	BootstrapSamples int
	Seed             uint64
}

// HistoricalEngine estimates VaR/CVaR from empirical return quantiles
type HistoricalEngine struct {
	logger *zap.Logger
}

// NewHistoricalEngine creates a historical engine
func NewHistoricalEngine(logger *zap.Logger) *HistoricalEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoricalEngine{logger: logger}
}

// Calculate estimates every confidence level, scaled by sqrt(horizon), with
// optional bootstrap bounds.
func (e *HistoricalEngine) Calculate(ctx context.Context, returns []float64, levels []float64, opts HistoricalOptions) (domain.VaRResult, error) {
	const op = "historical_var"
	start := time.Now()
	if len(returns) == 0 {
		return domain.VaRResult{}, domain.NewInsufficientDataError(op, 1, 0)
	}
	if opts.HorizonDays == 0 {
		opts.HorizonDays = 1
	}
	if err := domain.ValidateHorizon(opts.HorizonDays); err != nil {
		return domain.VaRResult{}, err
	}
	if err := domain.ValidateConfidenceLevels(levels); err != nil {
		return domain.VaRResult{}, err
	}
	if err := stats.CheckFinite(op, returns); err != nil {
		return domain.VaRResult{}, err
	}

	sorted := stats.SortedCopy(returns)
	scale := math.Sqrt(float64(opts.HorizonDays))
	result := domain.VaRResult{
		ID:           uuid.New(),
		Method:       domain.MethodHistorical,
		HorizonDays:  opts.HorizonDays,
		Observations: len(returns),
		Levels:       make([]domain.LevelEstimate, len(levels)),
	}
	for i, c := range levels {
		v, cv := TailEstimate(sorted, c)
		result.Levels[i] = domain.LevelEstimate{Confidence: c, VaR: v * scale, CVaR: cv * scale}
	}

	if opts.BootstrapSamples > 0 {
		bounds, err := BootstrapBounds(ctx, returns, levels, opts.BootstrapSamples, opts.Seed)
		if err != nil {
			return domain.VaRResult{}, err
		}
		for i := range result.Levels {
			b := bounds[i]
			b.VaRLower *= scale
			b.VaRUpper *= scale
			b.CVaRLower *= scale
			b.CVaRUpper *= scale
			result.Levels[i].Bounds = &b
		}
		seed := opts.Seed
		result.Seed = &seed
	}

	e.logger.Debug("historical VaR calculated",
		zap.Int("observations", len(returns)),
		zap.Int("levels", len(levels)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}
