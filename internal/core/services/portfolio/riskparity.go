package portfolio

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// riskParity equalizes risk contributions by cyclical coordinate descent on
// ½yᵀΣy − Σ b_i ln y_i with b_i = 1/n, then normalizes y to the budget.
func (o *Optimizer) riskParity(ctx context.Context, in Input) (domain.OptimizationResult, error) {
	const op = "risk_parity"
	cov := in.Covariance
	n := len(in.ExpectedReturns)
	budget := 1 / float64(n)

	y := make([]float64, n)
	for i := range y {
		y[i] = 1 / math.Sqrt(cov.At(i, i)) / float64(n)
	}

	converged := false
	iter := 0
	for iter = 1; iter <= o.config.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return domain.OptimizationResult{}, domain.NewCancelledError(op, err)
		}
		maxChange := 0.0
		for i := 0; i < n; i++ {
			a := 0.0
			for j := 0; j < n; j++ {
				if j != i {
					a += cov.At(i, j) * y[j]
				}
			}
			sii := cov.At(i, i)
			next := (-a + math.Sqrt(a*a+4*sii*budget)) / (2 * sii)
			maxChange = math.Max(maxChange, math.Abs(next-y[i])/math.Max(y[i], math.SmallestNonzeroFloat64))
			y[i] = next
		}
		if maxChange < o.config.Tolerance {
			converged = true
			break
		}
	}
	if !converged {
		return domain.OptimizationResult{}, domain.NewNumericalError(op, "risk parity iteration did not converge").
			WithDiagnostic("iterations", float64(o.config.MaxIterations))
	}

	w := make([]float64, n)
	floats.ScaleTo(w, 1/floats.Sum(y), y)

	projected := false
	c := in.Constraints
	for _, v := range w {
		if v < c.MinWeight-1e-12 || v > c.MaxWeight+1e-12 {
			projected = true
			break
		}
	}
	if projected {
		w = projectBox(w, c.MinWeight, c.MaxWeight)
	}

	res := Evaluate(w, in.ExpectedReturns, cov, c.RiskFreeRate)
	res.Iterations = iter
	res.Converged = true
	if projected {
		res.Metadata = map[string]float64{"projected": 1}
	}
	return res, nil
}
