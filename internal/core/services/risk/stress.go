package risk

import (
	"context"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// maxStressedCorrelation bounds shocked correlations away from ±1
const maxStressedCorrelation = 0.999

// ValidateScenario checks the scenario type and factor
func ValidateScenario(s domain.StressScenario) error {
	if _, err := domain.ParseScenarioType(string(s.Type)); err != nil {
		return err
	}
	if math.IsNaN(s.Factor) || math.IsInf(s.Factor, 0) || s.Factor <= 0 {
		return domain.NewValidationError("validate_scenario", "stress factor must be finite and positive").
			WithDetail("factor", s.Factor)
	}
	return nil
}

// ApplyScenario returns dist with the scenario's parameters scaled. The bool
// reports whether any parameter was affected.
func ApplyScenario(dist domain.Distribution, s domain.StressScenario) (domain.Distribution, bool) {
	f := s.Factor
	switch s.Type {
	case domain.ScenarioVolatilityShock:
		switch d := dist.(type) {
		case domain.Normal:
			d.Vol *= f
			return d, true
		case domain.StudentT:
			d.Scale *= f
			return d, true
		case domain.SkewedT:
			d.Scale *= f
			return d, true
		case domain.GARCH:
			d.Omega *= f * f
			d.InitialVariance *= f * f
			return d, true
		case domain.Mixture:
			d.Vols = scaled(d.Vols, f)
			return d, true
		case domain.Copula:
			d.Marginals = cloneMarginals(d.Marginals)
			for i := range d.Marginals {
				d.Marginals[i].Vol *= f
			}
			return d, true
		}

	case domain.ScenarioReturnShock:
		switch d := dist.(type) {
		case domain.Normal:
			d.Mean *= f
			return d, true
		case domain.StudentT:
			d.Loc *= f
			return d, true
		case domain.SkewedT:
			d.Loc *= f
			return d, true
		case domain.GARCH:
			d.Mean *= f
			return d, true
		case domain.Mixture:
			d.Means = scaled(d.Means, f)
			return d, true
		case domain.Copula:
			d.Marginals = cloneMarginals(d.Marginals)
			for i := range d.Marginals {
				d.Marginals[i].Mean *= f
			}
			return d, true
		}

	case domain.ScenarioCorrelationShock:
		if d, ok := dist.(domain.Copula); ok && d.Dimension() > 1 {
			n := d.Dimension()
			corr := make([][]float64, n)
			for i := range corr {
				corr[i] = make([]float64, n)
				for j := range corr[i] {
					if i == j {
						corr[i][j] = 1
						continue
					}
					corr[i][j] = clampCorrelation(d.Correlation[i][j] * f)
				}
			}
			d.Correlation = corr
			if d.Family == domain.CopulaClayton && d.Theta > 0 {
				// shock Kendall's τ = θ/(θ+2)
				tau := math.Min(d.Theta/(d.Theta+2)*f, maxStressedCorrelation)
				d.Theta = 2 * tau / (1 - tau)
			}
			return d, true
		}
	}
	return dist, false
}

// StressReturns shocks an empirical series around its mean. Correlation
// shocks do not apply to a single series.
func StressReturns(returns []float64, s domain.StressScenario) ([]float64, bool) {
	if len(returns) == 0 {
		return returns, false
	}
	mean := stat.Mean(returns, nil)
	out := make([]float64, len(returns))
	switch s.Type {
	case domain.ScenarioVolatilityShock:
		for i, r := range returns {
			out[i] = mean + s.Factor*(r-mean)
		}
		return out, true
	case domain.ScenarioReturnShock:
		for i, r := range returns {
			out[i] = r + (s.Factor-1)*mean
		}
		return out, true
	}
	return returns, false
}

// StressMoments shocks a mean vector and covariance matrix
func StressMoments(means []float64, cov mat.Symmetric, s domain.StressScenario) ([]float64, *mat.SymDense, bool) {
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(cov)
	m := append([]float64(nil), means...)

	switch s.Type {
	case domain.ScenarioVolatilityShock:
		out.ScaleSym(s.Factor*s.Factor, cov)
		return m, out, true
	case domain.ScenarioReturnShock:
		return scaled(means, s.Factor), out, true
	case domain.ScenarioCorrelationShock:
		if n < 2 {
			return m, out, false
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				d := math.Sqrt(cov.At(i, i) * cov.At(j, j))
				if d == 0 {
					continue
				}
				rho := clampCorrelation(cov.At(i, j) / d * s.Factor)
				out.SetSym(i, j, rho*d)
			}
		}
		return m, out, true
	}
	return m, out, false
}

// StressColumns applies StressReturns to each asset column
func StressColumns(columns [][]float64, s domain.StressScenario) ([][]float64, bool) {
	out := make([][]float64, len(columns))
	applied := false
	for i, col := range columns {
		var ok bool
		out[i], ok = StressReturns(col, s)
		applied = applied || ok
	}
	return out, applied
}

func clampCorrelation(rho float64) float64 {
	return math.Max(-maxStressedCorrelation, math.Min(maxStressedCorrelation, rho))
}

func scaled(x []float64, f float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * f
	}
	return out
}

func cloneMarginals(ms []domain.Normal) []domain.Normal {
	return append([]domain.Normal(nil), ms...)
}

// StressEngine re-runs a VaR calculation under a scenario and reports the change
type StressEngine struct {
	calc   *Calculator
	logger *zap.Logger
}

// NewStressEngine creates a stress engine over calc
func NewStressEngine(calc *Calculator, logger *zap.Logger) *StressEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StressEngine{calc: calc, logger: logger}
}

// Run computes the baseline with req and the stressed result with the
// scenario applied to the same method, seed and confidence levels.
func (e *StressEngine) Run(ctx context.Context, req Request, scenario domain.StressScenario) (domain.StressResult, error) {
	if err := ValidateScenario(scenario); err != nil {
		return domain.StressResult{}, err
	}
	req = pinSeed(req)

	baseline, err := e.calc.Calculate(ctx, req)
	if err != nil {
		return domain.StressResult{}, err
	}

	stressedReq := req
	applied := false
	if req.Method == domain.MethodHistorical {
		stressedReq.Returns, applied = StressReturns(req.Returns, scenario)
	} else {
		dist, err := e.calc.distribution(req)
		if err != nil {
			return domain.StressResult{}, err
		}
		stressedReq.Distribution, applied = ApplyScenario(dist, scenario)
	}
	return e.finish(ctx, scenario, applied, baseline, func() (domain.VaRResult, error) {
		return e.calc.Calculate(ctx, stressedReq)
	})
}

// RunPortfolio stresses a portfolio calculation. Historical portfolios shock
// each asset column, explicit distributions are shocked directly and the other
// methods shock the moment estimates.
func (e *StressEngine) RunPortfolio(ctx context.Context, req PortfolioRequest, scenario domain.StressScenario) (domain.StressResult, error) {
	if err := ValidateScenario(scenario); err != nil {
		return domain.StressResult{}, err
	}
	req.Request = pinSeed(req.Request)

	base, err := e.calc.CalculatePortfolio(ctx, req)
	if err != nil {
		return domain.StressResult{}, err
	}

	stressedReq := req
	applied := false
	switch {
	case req.Method == domain.MethodHistorical:
		stressedReq.Columns, applied = StressColumns(req.Columns, scenario)
	case req.Distribution != nil:
		stressedReq.Distribution, applied = ApplyScenario(req.Distribution, scenario)
	default:
		in, err := e.calc.portfolioInputs(req)
		if err != nil {
			return domain.StressResult{}, err
		}
		stressedReq.Means, stressedReq.Covariance, applied = StressMoments(in.means, in.cov, scenario)
	}
	return e.finish(ctx, scenario, applied, base.VaRResult, func() (domain.VaRResult, error) {
		r, err := e.calc.CalculatePortfolio(ctx, stressedReq)
		return r.VaRResult, err
	})
}

func (e *StressEngine) finish(ctx context.Context, scenario domain.StressScenario, applied bool, baseline domain.VaRResult, stressed func() (domain.VaRResult, error)) (domain.StressResult, error) {
	result := domain.StressResult{Scenario: scenario, Applied: applied, Baseline: baseline, Stressed: baseline}
	if applied {
		s, err := stressed()
		if err != nil {
			return domain.StressResult{}, err
		}
		result.Stressed = s
	} else {
		e.logger.Warn("stress scenario left parameters unchanged",
			zap.String("scenario", scenario.Name),
			zap.String("type", string(scenario.Type)),
			zap.String("method", string(baseline.Method)),
			zap.String("distribution", string(baseline.Distribution)),
		)
	}
	if err := ctx.Err(); err != nil {
		return domain.StressResult{}, domain.NewCancelledError("stress_test", err)
	}

	result.Deltas = make([]domain.LevelDelta, len(result.Baseline.Levels))
	for i, b := range result.Baseline.Levels {
		s := result.Stressed.Levels[i]
		d := domain.LevelDelta{
			Confidence: b.Confidence,
			VaRDelta:   s.VaR - b.VaR,
			CVaRDelta:  s.CVaR - b.CVaR,
		}
		if b.VaR != 0 {
			d.VaRRatio = s.VaR / b.VaR
		}
		result.Deltas[i] = d
	}
	return result, nil
}

// pinSeed fixes a Monte Carlo seed so baseline and stressed runs share draws
func pinSeed(req Request) Request {
	if req.Method == domain.MethodMonteCarlo && req.Seed == nil {
		seed := rand.Uint64()
		req.Seed = &seed
	}
	return req
}
