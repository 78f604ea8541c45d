package sampling

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// psdTolerance is the relative eigenvalue floor accepted as rounding noise
const psdTolerance = 1e-10

// Correlated maps independent standard normals to draws with a target
// covariance through a factor A with A·Aᵀ = Σ.
type Correlated struct {
	n      int
	factor []float64 // row-major n×n
	cond   float64
}

// NewCorrelated factors a covariance or correlation matrix. Positive definite
// input uses Cholesky; singular positive semi-definite input falls back to an
// eigen factor; anything else is a NumericalError.
func NewCorrelated(m mat.Symmetric) (*Correlated, error) {
	const op = "correlated_factor"
	n := m.SymmetricDim()
	if n == 0 {
		return nil, domain.NewValidationError(op, "matrix must not be empty")
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, domain.NewValidationError(op, "matrix contains a non-finite value").
					WithDetail("row", i).WithDetail("col", j)
			}
		}
	}

	var chol mat.Cholesky
	if chol.Factorize(m) {
		var l mat.TriDense
		chol.LTo(&l)
		c := &Correlated{n: n, factor: make([]float64, n*n), cond: chol.Cond()}
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				c.factor[i*n+j] = l.At(i, j)
			}
		}
		return c, nil
	}

	var eig mat.EigenSym
	if !eig.Factorize(m, true) {
		return nil, domain.NewNumericalError(op, "eigen decomposition failed").WithDiagnostic("dimension", float64(n))
	}
	values := eig.Values(nil)
	maxAbs := 0.0
	minVal := math.Inf(1)
	for _, v := range values {
		maxAbs = math.Max(maxAbs, math.Abs(v))
		minVal = math.Min(minVal, v)
	}
	if minVal < -psdTolerance*math.Max(maxAbs, 1) {
		return nil, domain.NewNumericalError(op, "matrix is not positive semi-definite").
			WithDiagnostic("min_eigenvalue", minVal).
			WithDiagnostic("max_eigenvalue", maxAbs)
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	c := &Correlated{n: n, factor: make([]float64, n*n), cond: math.Inf(1)}
	for j, v := range values {
		s := math.Sqrt(math.Max(v, 0))
		for i := 0; i < n; i++ {
			c.factor[i*n+j] = vecs.At(i, j) * s
		}
	}
	return c, nil
}

// Dim returns the dimension
func (c *Correlated) Dim() int { return c.n }

// Cond returns the condition number estimate, +Inf for singular input
func (c *Correlated) Cond() float64 { return c.cond }

// Draw writes one correlated standard draw into dst
func (c *Correlated) Draw(g *Generator, dst []float64) {
	z := g.scratchB(c.n)
	for i := range z {
		z[i] = g.Normal()
	}
	for i := 0; i < c.n; i++ {
		row := c.factor[i*c.n : (i+1)*c.n]
		s := 0.0
		for j, a := range row {
			s += a * z[j]
		}
		dst[i] = s
	}
}

// VectorSampler draws one step of returns for several assets
type VectorSampler interface {
	Dim() int
	Draw(g *Generator, dst []float64)
}

// MultiNormal is a multivariate normal with mean vector and covariance
type MultiNormal struct {
	mean []float64
	corr *Correlated
}

// NewMultiNormal builds a multivariate normal sampler
func NewMultiNormal(mean []float64, cov mat.Symmetric) (*MultiNormal, error) {
	if len(mean) != cov.SymmetricDim() {
		return nil, domain.NewValidationError("multi_normal", "mean and covariance dimensions differ").
			WithDetail("mean", len(mean)).WithDetail("covariance", cov.SymmetricDim())
	}
	c, err := NewCorrelated(cov)
	if err != nil {
		return nil, err
	}
	return &MultiNormal{mean: mean, corr: c}, nil
}

// Dim returns the number of assets
func (m *MultiNormal) Dim() int { return len(m.mean) }

// Draw writes mean + A·z into dst
func (m *MultiNormal) Draw(g *Generator, dst []float64) {
	m.corr.Draw(g, dst)
	for i := range dst {
		dst[i] += m.mean[i]
	}
}

func clampUnit(u float64) float64 {
	const eps = 1e-15
	return math.Min(math.Max(u, eps), 1-eps)
}

func normalMarginals(ms []domain.Normal) []distuv.Normal {
	out := make([]distuv.Normal, len(ms))
	for i, m := range ms {
		sigma := m.Vol
		if sigma == 0 {
			sigma = math.SmallestNonzeroFloat64
		}
		out[i] = distuv.Normal{Mu: m.Mean, Sigma: sigma}
	}
	return out
}

// GaussianCopula couples marginals through correlated normals
type GaussianCopula struct {
	corr      *Correlated
	marginals []distuv.Normal
}

// Dim returns the number of assets
func (c *GaussianCopula) Dim() int { return len(c.marginals) }

// Draw maps correlated normals to uniforms and through each marginal quantile
func (c *GaussianCopula) Draw(g *Generator, dst []float64) {
	c.corr.Draw(g, dst)
	for i, y := range dst {
		dst[i] = c.marginals[i].Quantile(clampUnit(distuv.UnitNormal.CDF(y)))
	}
}

// ClaytonCopula is the Marshall–Olkin construction with V ~ Gamma(1/θ, 1)
type ClaytonCopula struct {
	theta     float64
	marginals []distuv.Normal
}

// Dim returns the number of assets
func (c *ClaytonCopula) Dim() int { return len(c.marginals) }

// Theta returns the dependence parameter
func (c *ClaytonCopula) Theta() float64 { return c.theta }

// Draw writes one joint draw into dst
func (c *ClaytonCopula) Draw(g *Generator, dst []float64) {
	v := g.Gamma(1 / c.theta)
	for i := range dst {
		e := g.Exponential()
		u := math.Pow(1+e/v, -1/c.theta)
		dst[i] = c.marginals[i].Quantile(clampUnit(u))
	}
}

// ClaytonTheta derives θ from the average off-diagonal correlation via
// Kendall's τ = (2/π)·asin(ρ) and θ = 2τ/(1-τ).
func ClaytonTheta(correlation [][]float64) (float64, error) {
	n := len(correlation)
	if n < 2 {
		return 1, nil
	}
	sum, count := 0.0, 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += correlation[i][j]
			count++
		}
	}
	rho := sum / float64(count)
	tau := 2 / math.Pi * math.Asin(rho)
	if tau <= 0 || tau >= 1 {
		return 0, domain.NewNumericalError("clayton_theta", "clayton copula requires positive dependence").
			WithDiagnostic("average_correlation", rho).
			WithDiagnostic("kendall_tau", tau)
	}
	return 2 * tau / (1 - tau), nil
}

// NewCopulaSampler builds the vector sampler for a copula distribution
func NewCopulaSampler(c domain.Copula) (VectorSampler, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	marginals := normalMarginals(c.Marginals)
	switch c.Family {
	case domain.CopulaGaussian:
		n := c.Dimension()
		m := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				m.SetSym(i, j, c.Correlation[i][j])
			}
		}
		corr, err := NewCorrelated(m)
		if err != nil {
			return nil, err
		}
		return &GaussianCopula{corr: corr, marginals: marginals}, nil
	case domain.CopulaClayton:
		theta := c.Theta
		if theta == 0 {
			var err error
			if theta, err = ClaytonTheta(c.Correlation); err != nil {
				return nil, err
			}
		}
		return &ClaytonCopula{theta: theta, marginals: marginals}, nil
	default:
		return nil, domain.NewValidationError("copula_sampler", "unknown copula family")
	}
}

// WeightedSampler collapses a vector sampler into a portfolio path sampler
type WeightedSampler struct {
	weights []float64
	inner   VectorSampler
}

// NewWeightedSampler combines per-asset draws with fixed weights
func NewWeightedSampler(weights []float64, inner VectorSampler) *WeightedSampler {
	return &WeightedSampler{weights: weights, inner: inner}
}

// Path sums weighted asset returns over the horizon
func (s *WeightedSampler) Path(g *Generator, horizon int) float64 {
	x := g.scratchA(s.inner.Dim())
	total := 0.0
	for step := 0; step < horizon; step++ {
		s.inner.Draw(g, x)
		for i, w := range s.weights {
			total += w * x[i]
		}
	}
	return total
}
