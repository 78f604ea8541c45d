package risk

import (
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// NormalVaR returns closed-form one-period Normal VaR and CVaR scaled by sqrt(horizon)
func NormalVaR(mean, vol, confidence float64, horizon int) (varLoss, cvarLoss float64) {
	alpha := 1 - confidence
	z := distuv.UnitNormal.Quantile(alpha)
	scale := math.Sqrt(float64(horizon))
	varLoss = loss(mean+z*vol) * scale
	cvarLoss = loss(mean-vol*distuv.UnitNormal.Prob(z)/alpha) * scale
	return varLoss, cvarLoss
}

// StudentTVaR returns closed-form location-scale Student-t VaR and CVaR
func StudentTVaR(d domain.StudentT, confidence float64, horizon int) (varLoss, cvarLoss float64) {
	alpha := 1 - confidence
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: d.DoF}
	q := t.Quantile(alpha)
	scale := math.Sqrt(float64(horizon))
	// E[T | T <= q] = -((nu + q^2) / (nu - 1)) * f(q) / alpha
	tail := (d.DoF + q*q) / (d.DoF - 1) * t.Prob(q) / alpha
	varLoss = loss(d.Loc+d.Scale*q) * scale
	cvarLoss = loss(d.Loc-d.Scale*tail) * scale
	return varLoss, cvarLoss
}

// MixtureVaR finds the mixture quantile by bisection and integrates the tail
// in closed form.
func MixtureVaR(m domain.Mixture, confidence float64, horizon int) (varLoss, cvarLoss float64) {
	alpha := 1 - confidence
	lo, hi := math.Inf(1), math.Inf(-1)
	for k := range m.Weights {
		lo = math.Min(lo, m.Means[k]-40*m.Vols[k]-1e-9)
		hi = math.Max(hi, m.Means[k]+40*m.Vols[k]+1e-9)
	}
	cdf := func(x float64) float64 {
		total := 0.0
		for k, w := range m.Weights {
			total += w * componentCDF(x, m.Means[k], m.Vols[k])
		}
		return total
	}
	for i := 0; i < 200; i++ {
		mid := 0.5 * (lo + hi)
		if cdf(mid) < alpha {
			lo = mid
		} else {
			hi = mid
		}
	}
	q := hi

	// E[X; X < q] plus the share of any atom at q needed to fill mass alpha
	partial, mass := 0.0, 0.0
	for k, w := range m.Weights {
		mu, s := m.Means[k], m.Vols[k]
		if s == 0 {
			if mu < q {
				partial += w * mu
				mass += w
			}
			continue
		}
		d := (q - mu) / s
		partial += w * (mu*distuv.UnitNormal.CDF(d) - s*distuv.UnitNormal.Prob(d))
		mass += w * distuv.UnitNormal.CDF(d)
	}
	partial += q * (alpha - mass)
	scale := math.Sqrt(float64(horizon))
	return loss(q) * scale, loss(partial/alpha) * scale
}

func componentCDF(x, mu, s float64) float64 {
	if s == 0 {
		if x >= mu {
			return 1
		}
		return 0
	}
	return distuv.UnitNormal.CDF((x - mu) / s)
}

// ParametricEngine evaluates closed-form VaR/CVaR for analytic distributions
type ParametricEngine struct {
	logger *zap.Logger
}

// NewParametricEngine creates a parametric engine
func NewParametricEngine(logger *zap.Logger) *ParametricEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParametricEngine{logger: logger}
}

// Calculate evaluates every confidence level under dist
func (e *ParametricEngine) Calculate(dist domain.Distribution, levels []float64, horizon int) (domain.VaRResult, error) {
	const op = "parametric_var"
	if dist == nil {
		return domain.VaRResult{}, domain.NewValidationError(op, "distribution is required")
	}
	if horizon == 0 {
		horizon = 1
	}
	if err := domain.ValidateHorizon(horizon); err != nil {
		return domain.VaRResult{}, err
	}
	if err := domain.ValidateConfidenceLevels(levels); err != nil {
		return domain.VaRResult{}, err
	}
	if err := dist.Validate(); err != nil {
		return domain.VaRResult{}, err
	}

	var estimate func(c float64) (float64, float64)
	switch d := dist.(type) {
	case domain.Normal:
		estimate = func(c float64) (float64, float64) { return NormalVaR(d.Mean, d.Vol, c, horizon) }
	case domain.StudentT:
		estimate = func(c float64) (float64, float64) { return StudentTVaR(d, c, horizon) }
	case domain.Mixture:
		estimate = func(c float64) (float64, float64) { return MixtureVaR(d, c, horizon) }
	case domain.SkewedT, domain.GARCH, domain.Copula:
		return domain.VaRResult{}, domain.NewUnsupportedDistributionError(op, domain.MethodParametric, dist.Kind())
	default:
		return domain.VaRResult{}, domain.NewValidationError(op, "unknown distribution variant")
	}

	result := domain.VaRResult{
		ID:           uuid.New(),
		Method:       domain.MethodParametric,
		Distribution: dist.Kind(),
		HorizonDays:  horizon,
		Levels:       make([]domain.LevelEstimate, len(levels)),
	}
	for i, c := range levels {
		v, cv := estimate(c)
		result.Levels[i] = domain.LevelEstimate{Confidence: c, VaR: v, CVaR: cv}
	}
	e.logger.Debug("parametric VaR calculated", zap.String("distribution", string(dist.Kind())))
	return result, nil
}
