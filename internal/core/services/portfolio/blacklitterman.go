package portfolio

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// Black-Litterman defaults
const (
	DefaultTau   = 0.05
	DefaultDelta = 2.5
)

// ImpliedReturns reverse-optimizes equilibrium returns π = δΣw
func ImpliedReturns(cov mat.Symmetric, marketWeights []float64, delta float64) []float64 {
	var pi mat.VecDense
	pi.MulVec(cov, mat.NewVecDense(len(marketWeights), marketWeights))
	pi.ScaleVec(delta, &pi)
	return pi.RawVector().Data
}

// Posterior blends equilibrium returns with views:
// [(τΣ)⁻¹ + PᵀΩ⁻¹P]⁻¹ [(τΣ)⁻¹π + PᵀΩ⁻¹Q]
func Posterior(cov mat.Symmetric, pi []float64, views domain.Views, tau float64) ([]float64, error) {
	const op = "black_litterman_posterior"
	n := len(pi)
	k := len(views.P)
	if k == 0 {
		return append([]float64(nil), pi...), nil
	}

	p := mat.NewDense(k, n, nil)
	for r, row := range views.P {
		p.SetRow(r, row)
	}
	q := mat.NewVecDense(k, append([]float64(nil), views.Q...))

	var tauCov mat.SymDense
	tauCov.ScaleSym(tau, cov)

	omega := mat.NewDense(k, k, nil)
	if views.Omega != nil {
		for r, row := range views.Omega {
			omega.SetRow(r, row)
		}
	} else {
		var pc, pcp mat.Dense
		pc.Mul(p, &tauCov)
		pcp.Mul(&pc, p.T())
		for r := 0; r < k; r++ {
			omega.Set(r, r, pcp.At(r, r))
		}
	}

	var omegaInv mat.Dense
	if err := omegaInv.Inverse(omega); err != nil {
		return nil, domain.NewNumericalError(op, "view uncertainty matrix is singular").WithCause(err)
	}
	var tauCovInv mat.Dense
	if err := tauCovInv.Inverse(&tauCov); err != nil {
		return nil, domain.NewNumericalError(op, "scaled covariance is singular").WithCause(err)
	}

	// precision = (τΣ)⁻¹ + PᵀΩ⁻¹P
	var ptOmega, precision mat.Dense
	ptOmega.Mul(p.T(), &omegaInv)
	precision.Mul(&ptOmega, p)
	precision.Add(&precision, &tauCovInv)

	// rhs = (τΣ)⁻¹π + PᵀΩ⁻¹Q
	var rhs, viewTerm mat.VecDense
	rhs.MulVec(&tauCovInv, mat.NewVecDense(n, append([]float64(nil), pi...)))
	viewTerm.MulVec(&ptOmega, q)
	rhs.AddVec(&rhs, &viewTerm)

	var post mat.VecDense
	if err := post.SolveVec(&precision, &rhs); err != nil {
		return nil, domain.NewNumericalError(op, "posterior precision is singular").WithCause(err)
	}
	return post.RawVector().Data, nil
}

func validateViews(v domain.Views, n int) error {
	const op = "validate_views"
	if len(v.P) != len(v.Q) {
		return domain.NewValidationError(op, "view matrix rows must match view returns").
			WithDetail("p_rows", len(v.P)).WithDetail("q", len(v.Q))
	}
	for r, row := range v.P {
		if len(row) != n {
			return domain.NewValidationError(op, "view row length must equal the asset count").
				WithDetail("row", r).WithDetail("assets", n)
		}
		if !finite(v.Q[r]) {
			return domain.NewValidationError(op, "view returns must be finite").WithDetail("row", r)
		}
		for _, x := range row {
			if !finite(x) {
				return domain.NewValidationError(op, "view matrix must be finite").WithDetail("row", r)
			}
		}
	}
	if v.Omega != nil {
		if len(v.Omega) != len(v.P) {
			return domain.NewValidationError(op, "omega must be k×k").WithDetail("k", len(v.P))
		}
		for r, row := range v.Omega {
			if len(row) != len(v.P) {
				return domain.NewValidationError(op, "omega must be k×k").WithDetail("row", r)
			}
		}
	}
	if v.Tau < 0 || v.Delta < 0 || !finite(v.Tau) || !finite(v.Delta) {
		return domain.NewValidationError(op, "tau and delta must be non-negative").
			WithDetail("tau", v.Tau).WithDetail("delta", v.Delta)
	}
	if v.MarketWeights != nil {
		if len(v.MarketWeights) != n {
			return domain.NewValidationError(op, "market weights must have one entry per asset").
				WithDetail("market_weights", len(v.MarketWeights))
		}
		if math.Abs(floats.Sum(v.MarketWeights)-1) > domain.WeightSumTolerance {
			return domain.NewValidationError(op, "market weights must sum to 1").
				WithDetail("sum", floats.Sum(v.MarketWeights))
		}
	}
	return nil
}

// blackLitterman derives posterior returns and allocates with mean-variance at λ = δ
func (o *Optimizer) blackLitterman(ctx context.Context, in Input) (domain.OptimizationResult, error) {
	n := len(in.ExpectedReturns)
	views := domain.Views{}
	if in.Views != nil {
		views = *in.Views
	}
	if err := validateViews(views, n); err != nil {
		return domain.OptimizationResult{}, err
	}
	tau, delta := views.Tau, views.Delta
	if tau == 0 {
		tau = DefaultTau
	}
	if delta == 0 {
		delta = DefaultDelta
	}
	market := views.MarketWeights
	if market == nil {
		market = make([]float64, n)
		for i := range market {
			market[i] = 1 / float64(n)
		}
	}

	pi := ImpliedReturns(in.Covariance, market, delta)
	posterior, err := Posterior(in.Covariance, pi, views, tau)
	if err != nil {
		return domain.OptimizationResult{}, err
	}

	res, err := o.meanVariance(ctx, in, posterior, delta)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	res.PosteriorReturns = posterior
	res.Metadata = map[string]float64{"tau": tau, "delta": delta, "views": float64(len(views.P))}
	return res, nil
}
