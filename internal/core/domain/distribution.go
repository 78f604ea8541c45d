package domain

import (
	"fmt"
	"math"
)

// Distribution is the closed set of return-distribution models. Only the
// variants declared in this package satisfy it.
type Distribution interface {
	Kind() DistributionKind
	Validate() error
	isDistribution()
}

// Normal is a Gaussian distribution of per-period returns
type Normal struct {
	Mean float64 `json:"mean"`
	Vol  float64 `json:"vol"`
}

// StudentT is a location-scale Student-t distribution
type StudentT struct {
	DoF   float64 `json:"dof"`
	Loc   float64 `json:"loc"`
	Scale float64 `json:"scale"`
}

// SkewedT is a Fernández–Steel skewed Student-t. Skew of 1 is symmetric,
// above 1 fattens the right side, below 1 the left.
type SkewedT struct {
	DoF   float64 `json:"dof"`
	Skew  float64 `json:"skew"`
	Loc   float64 `json:"loc"`
	Scale float64 `json:"scale"`
}

// GARCH is a GARCH(1,1) volatility model with Normal innovations.
// InitialVariance of 0 starts the recursion at the unconditional variance.
type GARCH struct {
	Omega           float64 `json:"omega"`
	Alpha           float64 `json:"alpha"`
	Beta            float64 `json:"beta"`
	Mean            float64 `json:"mean"`
	InitialVariance float64 `json:"initial_variance,omitempty"`
}

// Copula couples Normal marginals through a dependence family.
// Theta applies to Clayton only; 0 derives it from the correlation matrix.
type Copula struct {
	Family      CopulaFamily `json:"family"`
	Correlation [][]float64  `json:"correlation"`
	Theta       float64      `json:"theta,omitempty"`
	Marginals   []Normal     `json:"marginals"`
}

// Mixture is a finite mixture of Normals
type Mixture struct {
	Weights []float64 `json:"weights"`
	Means   []float64 `json:"means"`
	Vols    []float64 `json:"vols"`
}

func (Normal) isDistribution()   {}
func (StudentT) isDistribution() {}
func (SkewedT) isDistribution()  {}
func (GARCH) isDistribution()    {}
func (Copula) isDistribution()   {}
func (Mixture) isDistribution()  {}

func (Normal) Kind() DistributionKind   { return DistNormal }
func (StudentT) Kind() DistributionKind { return DistStudentT }
func (SkewedT) Kind() DistributionKind  { return DistSkewedT }
func (GARCH) Kind() DistributionKind    { return DistGARCH }
func (Copula) Kind() DistributionKind   { return DistCopula }
func (Mixture) Kind() DistributionKind  { return DistMixture }

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate checks the Normal parameters
func (d Normal) Validate() error {
	if !finite(d.Mean, d.Vol) || d.Vol < 0 {
		return NewValidationError("validate_normal", "normal requires finite mean and non-negative vol").
			WithDetail("mean", d.Mean).WithDetail("vol", d.Vol)
	}
	return nil
}

// Validate checks the Student-t parameters
func (d StudentT) Validate() error {
	if !finite(d.DoF, d.Loc, d.Scale) || d.DoF <= 2 || d.Scale <= 0 {
		return NewValidationError("validate_student_t", "student-t requires dof > 2 and scale > 0").
			WithDetail("dof", d.DoF).WithDetail("scale", d.Scale)
	}
	return nil
}

// Validate checks the skewed-t parameters
func (d SkewedT) Validate() error {
	if !finite(d.DoF, d.Skew, d.Loc, d.Scale) || d.DoF <= 2 || d.Skew <= 0 || d.Scale <= 0 {
		return NewValidationError("validate_skewed_t", "skewed-t requires dof > 2, skew > 0 and scale > 0").
			WithDetail("dof", d.DoF).WithDetail("skew", d.Skew).WithDetail("scale", d.Scale)
	}
	return nil
}

// Validate checks GARCH stationarity. Degenerate parameters are a numerical
// failure, not a validation one, because they come from fitted models.
func (d GARCH) Validate() error {
	if !finite(d.Omega, d.Alpha, d.Beta, d.Mean, d.InitialVariance) {
		return NewValidationError("validate_garch", "garch parameters must be finite")
	}
	if d.Omega <= 0 || d.Alpha < 0 || d.Beta < 0 || d.Alpha+d.Beta >= 1 {
		return NewNumericalError("validate_garch", "garch(1,1) requires omega > 0, alpha, beta >= 0 and alpha + beta < 1").
			WithDetail("omega", d.Omega).
			WithDetail("alpha", d.Alpha).
			WithDetail("beta", d.Beta).
			WithDiagnostic("persistence", d.Alpha+d.Beta)
	}
	if d.InitialVariance < 0 {
		return NewValidationError("validate_garch", "initial variance must be non-negative")
	}
	return nil
}

// UnconditionalVariance returns omega / (1 - alpha - beta)
func (d GARCH) UnconditionalVariance() float64 {
	return d.Omega / (1 - d.Alpha - d.Beta)
}

// Validate checks the copula family, correlation matrix shape and marginals
func (d Copula) Validate() error {
	const op = "validate_copula"
	if _, err := ParseCopulaFamily(string(d.Family)); err != nil {
		return err
	}
	n := len(d.Correlation)
	if n == 0 {
		return NewValidationError(op, "copula requires a correlation matrix")
	}
	if len(d.Marginals) != n {
		return NewValidationError(op, "copula needs one marginal per correlation row").
			WithDetail("marginals", len(d.Marginals)).WithDetail("dimension", n)
	}
	for i, row := range d.Correlation {
		if len(row) != n {
			return NewValidationError(op, "correlation matrix must be square").WithDetail("row", i)
		}
		for j, v := range row {
			if !finite(v) || v < -1 || v > 1 {
				return NewValidationError(op, "correlations must lie in [-1, 1]").
					WithDetail("row", i).WithDetail("col", j)
			}
			if math.Abs(v-d.Correlation[j][i]) > 1e-9 {
				return NewValidationError(op, "correlation matrix must be symmetric").
					WithDetail("row", i).WithDetail("col", j)
			}
		}
		if math.Abs(row[i]-1) > 1e-9 {
			return NewValidationError(op, "correlation diagonal must be 1").WithDetail("row", i)
		}
	}
	if !finite(d.Theta) || d.Theta < 0 {
		return NewValidationError(op, "clayton theta must be non-negative")
	}
	for i, m := range d.Marginals {
		if err := m.Validate(); err != nil {
			return NewValidationError(op, fmt.Sprintf("invalid marginal %d", i)).WithCause(err)
		}
	}
	return nil
}

// Dimension returns the number of coupled assets
func (d Copula) Dimension() int { return len(d.Correlation) }

// Validate checks mixture weights and component parameters
func (d Mixture) Validate() error {
	const op = "validate_mixture"
	n := len(d.Weights)
	if n == 0 || len(d.Means) != n || len(d.Vols) != n {
		return NewValidationError(op, "mixture weights, means and vols must have equal non-zero length").
			WithDetail("weights", len(d.Weights)).
			WithDetail("means", len(d.Means)).
			WithDetail("vols", len(d.Vols))
	}
	sum := 0.0
	for i := range d.Weights {
		if !finite(d.Weights[i], d.Means[i], d.Vols[i]) || d.Weights[i] < 0 || d.Vols[i] < 0 {
			return NewValidationError(op, "mixture components need finite, non-negative weights and vols").
				WithDetail("component", i)
		}
		sum += d.Weights[i]
	}
	if math.Abs(sum-1) > 1e-6 {
		return NewValidationError(op, "mixture weights must sum to 1").WithDetail("sum", sum)
	}
	return nil
}
