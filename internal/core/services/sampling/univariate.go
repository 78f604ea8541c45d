package sampling

import (
	"math"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// PathSampler draws the cumulative return of one path over a horizon.
// Implementations hold no mutable state; scratch space lives on the Generator.
type PathSampler interface {
	Path(g *Generator, horizon int) float64
}

// NewPathSampler returns the single-asset sampler for d
func NewPathSampler(d domain.Distribution) (PathSampler, error) {
	if d == nil {
		return nil, domain.NewValidationError("new_sampler", "distribution is required")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	switch dist := d.(type) {
	case domain.Normal:
		return normalSampler{mean: dist.Mean, vol: dist.Vol}, nil
	case domain.StudentT:
		return studentTSampler{dof: dist.DoF, loc: dist.Loc, scale: dist.Scale}, nil
	case domain.SkewedT:
		return skewedTSampler{dof: dist.DoF, skew: dist.Skew, loc: dist.Loc, scale: dist.Scale}, nil
	case domain.GARCH:
		v0 := dist.InitialVariance
		if v0 == 0 {
			v0 = dist.UnconditionalVariance()
		}
		return garchSampler{omega: dist.Omega, alpha: dist.Alpha, beta: dist.Beta, mean: dist.Mean, v0: v0}, nil
	case domain.Mixture:
		return newMixtureSampler(dist), nil
	case domain.Copula:
		vs, err := NewCopulaSampler(dist)
		if err != nil {
			return nil, err
		}
		weights := make([]float64, vs.Dim())
		for i := range weights {
			weights[i] = 1 / float64(len(weights))
		}
		return NewWeightedSampler(weights, vs), nil
	default:
		return nil, domain.NewValidationError("new_sampler", "unknown distribution variant")
	}
}

type normalSampler struct {
	mean, vol float64
}

func (s normalSampler) Path(g *Generator, horizon int) float64 {
	total := 0.0
	for i := 0; i < horizon; i++ {
		total += s.mean + s.vol*g.Normal()
	}
	return total
}

// standardT draws Z / sqrt(chi2_v / v)
func standardT(g *Generator, dof float64) float64 {
	z := g.Normal()
	chi := g.ChiSquare(dof)
	return z / math.Sqrt(chi/dof)
}

type studentTSampler struct {
	dof, loc, scale float64
}

func (s studentTSampler) Path(g *Generator, horizon int) float64 {
	total := 0.0
	for i := 0; i < horizon; i++ {
		total += s.loc + s.scale*standardT(g, s.dof)
	}
	return total
}

type skewedTSampler struct {
	dof, skew, loc, scale float64
}

func (s skewedTSampler) Path(g *Generator, horizon int) float64 {
	total := 0.0
	for i := 0; i < horizon; i++ {
		t := standardT(g, s.dof)
		if t >= 0 {
			t *= s.skew
		} else {
			t /= s.skew
		}
		total += s.loc + s.scale*t
	}
	return total
}

type garchSampler struct {
	omega, alpha, beta, mean, v0 float64
}

func (s garchSampler) Path(g *Generator, horizon int) float64 {
	variance := s.v0
	total := 0.0
	for i := 0; i < horizon; i++ {
		eps := math.Sqrt(variance) * g.Normal()
		total += s.mean + eps
		variance = s.omega + s.alpha*eps*eps + s.beta*variance
	}
	return total
}

type mixtureSampler struct {
	cumulative []float64
	means      []float64
	vols       []float64
}

func newMixtureSampler(m domain.Mixture) mixtureSampler {
	cum := make([]float64, len(m.Weights))
	acc := 0.0
	for i, w := range m.Weights {
		acc += w
		cum[i] = acc
	}
	return mixtureSampler{cumulative: cum, means: m.Means, vols: m.Vols}
}

func (s mixtureSampler) component(u float64) int {
	for k, c := range s.cumulative {
		if u < c {
			return k
		}
	}
	return len(s.cumulative) - 1
}

func (s mixtureSampler) Path(g *Generator, horizon int) float64 {
	total := 0.0
	for i := 0; i < horizon; i++ {
		k := s.component(g.Uniform())
		total += s.means[k] + s.vols[k]*g.Normal()
	}
	return total
}

// SupportsQuasi reports whether every variate d draws can come from a Halton
// coordinate: Gaussian innovations, and the component uniform of a mixture.
// Chi-square and gamma draws have no low-discrepancy source here.
func SupportsQuasi(d domain.Distribution) bool {
	switch dist := d.(type) {
	case domain.Normal, domain.GARCH, domain.Mixture:
		return true
	case domain.Copula:
		return dist.Family == domain.CopulaGaussian
	default:
		return false
	}
}

// QuasiDimsPerStep returns how many Halton coordinates one horizon step consumes
func QuasiDimsPerStep(d domain.Distribution) int {
	switch dist := d.(type) {
	case domain.Copula:
		return dist.Dimension()
	case domain.Mixture:
		return 2
	}
	return 1
}
