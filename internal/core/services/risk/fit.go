package risk

import (
	"math"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/services/stats"
)

// FitDistribution estimates parameters of the requested kind from returns by
// the method of moments.
func FitDistribution(kind domain.DistributionKind, returns []float64) (domain.Distribution, error) {
	const op = "fit_distribution"
	mean, vol, err := stats.MeanVol(returns)
	if err != nil {
		return nil, err
	}

	switch kind {
	case domain.DistNormal:
		return domain.Normal{Mean: mean, Vol: vol}, nil

	case domain.DistStudentT:
		dof := fitDoF(returns)
		return domain.StudentT{DoF: dof, Loc: mean, Scale: tScale(vol, dof)}, nil

	case domain.DistSkewedT:
		dof := fitDoF(returns)
		skew := math.Exp(0.5 * stats.Skewness(returns))
		skew = math.Min(math.Max(skew, 0.5), 2)
		return domain.SkewedT{DoF: dof, Skew: skew, Loc: mean, Scale: tScale(vol, dof)}, nil

	case domain.DistGARCH:
		variance := vol * vol
		if variance == 0 {
			return nil, domain.NewNumericalError(op, "GARCH requires non-zero variance").
				WithDiagnostic("variance", variance)
		}
		return domain.GARCH{Omega: 0.1 * variance, Alpha: 0.1, Beta: 0.8, Mean: mean, InitialVariance: variance}, nil

	case domain.DistMixture:
		return domain.Mixture{
			Weights: []float64{0.7, 0.3},
			Means:   []float64{mean, 0.5 * mean},
			Vols:    []float64{vol, 1.5 * vol},
		}, nil

	case domain.DistCopula:
		return domain.Copula{
			Family:      domain.CopulaGaussian,
			Correlation: [][]float64{{1}},
			Marginals:   []domain.Normal{{Mean: mean, Vol: vol}},
		}, nil
	}
	return nil, domain.NewValidationError(op, "unknown distribution kind").WithDetail("distribution", string(kind))
}

// fitDoF maps excess kurtosis k to ν = 6/k + 4, the Student-t moment match
func fitDoF(returns []float64) float64 {
	k := stats.ExcessKurtosis(returns)
	if k <= 0 || math.IsNaN(k) {
		return 10
	}
	return math.Min(math.Max(6/k+4, 3), 30)
}

// tScale returns the scale whose t variance equals vol²
func tScale(vol, dof float64) float64 {
	s := vol * math.Sqrt((dof-2)/dof)
	if s == 0 {
		return math.SmallestNonzeroFloat64
	}
	return s
}
