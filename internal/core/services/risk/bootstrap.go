package risk

import (
	"context"
	"slices"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/services/sampling"
	"github.com/victoralfred/riskengine/internal/core/services/stats"
)

const (
	bootstrapLower  = 0.05
	bootstrapUpper  = 0.95
	bootstrapStream = 0xb0075
)

// BootstrapBounds resamples returns with replacement and reports the 5th and
// 95th percentiles of VaR and CVaR for each confidence level.
func BootstrapBounds(ctx context.Context, returns []float64, levels []float64, samples int, seed uint64) ([]domain.BootstrapBounds, error) {
	const op = "bootstrap_bounds"
	if len(returns) == 0 {
		return nil, domain.NewInsufficientDataError(op, 1, 0)
	}
	if samples < 1 {
		return nil, domain.NewValidationError(op, "bootstrap sample count must be positive").WithDetail("samples", samples)
	}

	g := sampling.NewGenerator(seed, bootstrapStream)
	n := len(returns)
	resample := make([]float64, n)
	vars := make([][]float64, len(levels))
	cvars := make([][]float64, len(levels))
	for i := range levels {
		vars[i] = make([]float64, samples)
		cvars[i] = make([]float64, samples)
	}

	for s := 0; s < samples; s++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewCancelledError(op, err)
		}
		for j := range resample {
			resample[j] = returns[g.IntN(n)]
		}
		slices.Sort(resample)
		for i, c := range levels {
			vars[i][s], cvars[i][s] = TailEstimate(resample, c)
		}
	}

	out := make([]domain.BootstrapBounds, len(levels))
	for i := range levels {
		slices.Sort(vars[i])
		slices.Sort(cvars[i])
		out[i] = domain.BootstrapBounds{
			VaRLower:  stats.Percentile(vars[i], bootstrapLower),
			VaRUpper:  stats.Percentile(vars[i], bootstrapUpper),
			CVaRLower: stats.Percentile(cvars[i], bootstrapLower),
			CVaRUpper: stats.Percentile(cvars[i], bootstrapUpper),
			Samples:   samples,
		}
	}
	return out, nil
}
