package risk

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/services/stats"
)

// PortfolioRequest is a weighted multi-asset VaR calculation. Columns hold
// date-aligned returns per symbol. Means and Covariance default to the sample
// estimates of Columns; stress scenarios override them.
//
// An explicit Distribution replaces the estimates: a Copula describes the
// joint asset returns and must match the symbol count, any other variant
// describes the portfolio return itself.
type PortfolioRequest struct {
	Request
	Symbols    []string
	Weights    []float64
	Columns    [][]float64
	Means      []float64
	Covariance *mat.SymDense
}

type portfolioInputs struct {
	means    []float64
	cov      *mat.SymDense
	returns  []float64
	variance float64
	marginal []float64 // Σw
}

func (c *Calculator) portfolioInputs(req PortfolioRequest) (portfolioInputs, error) {
	const op = "portfolio_var"
	if err := domain.ValidateWeights(req.Symbols, req.Weights); err != nil {
		return portfolioInputs{}, err
	}
	if len(req.Columns) != len(req.Symbols) {
		return portfolioInputs{}, domain.NewValidationError(op, "one return column per symbol is required").
			WithDetail("symbols", len(req.Symbols)).
			WithDetail("columns", len(req.Columns))
	}

	in := portfolioInputs{means: req.Means, cov: req.Covariance}
	if in.cov == nil {
		cov, err := stats.CovarianceFromColumns(req.Columns)
		if err != nil {
			return portfolioInputs{}, err
		}
		in.cov = cov
	}
	if in.means == nil {
		in.means = stats.Means(req.Columns)
	}
	n := len(req.Symbols)
	if in.cov.SymmetricDim() != n || len(in.means) != n {
		return portfolioInputs{}, domain.NewValidationError(op, "moment dimensions do not match the symbol count").
			WithDetail("symbols", n)
	}

	t := len(req.Columns[0])
	in.returns = make([]float64, t)
	for j, col := range req.Columns {
		floats.AddScaled(in.returns, req.Weights[j], col)
	}

	w := mat.NewVecDense(n, req.Weights)
	var sw mat.VecDense
	sw.MulVec(in.cov, w)
	in.marginal = sw.RawVector().Data
	in.variance = mat.Dot(w, &sw)
	return in, nil
}

// rescaled maps the portfolio series onto the mean and volatility implied by
// the (possibly stressed) moments, leaving its shape intact.
func (in portfolioInputs) rescaled(weights []float64) []float64 {
	mu := floats.Dot(weights, in.means)
	sigma := math.Sqrt(math.Max(in.variance, 0))
	m, s := stat.MeanStdDev(in.returns, nil)
	out := make([]float64, len(in.returns))
	for i, r := range in.returns {
		if s == 0 {
			out[i] = mu
			continue
		}
		out[i] = mu + (r-m)*sigma/s
	}
	return out
}

// CalculatePortfolio estimates VaR for a weighted portfolio and decomposes it
// into per-asset contributions at the first confidence level.
func (c *Calculator) CalculatePortfolio(ctx context.Context, req PortfolioRequest) (domain.PortfolioVaRResult, error) {
	in, err := c.portfolioInputs(req)
	if err != nil {
		return domain.PortfolioVaRResult{}, err
	}

	if err := validatePortfolioDistribution(req); err != nil {
		return domain.PortfolioVaRResult{}, err
	}

	var result domain.VaRResult
	kind := req.DistributionKind
	_, explicitCopula := req.Distribution.(domain.Copula)
	switch {
	case req.Method == domain.MethodHistorical:
		single := req.Request
		single.Returns = in.returns
		result, err = c.Calculate(ctx, single)

	case explicitCopula:
		result, err = c.simulatePortfolio(ctx, req, in)

	case req.Distribution != nil:
		single := req.Request
		single.Returns = in.returns
		result, err = c.Calculate(ctx, single)

	case req.Method == domain.MethodMonteCarlo && (kind == "" || kind == domain.DistNormal || kind == domain.DistCopula):
		result, err = c.simulatePortfolio(ctx, req, in)

	case req.Method == domain.MethodParametric && (kind == "" || kind == domain.DistNormal):
		single := req.Request
		single.Returns = in.returns
		single.Distribution = domain.Normal{
			Mean: floats.Dot(req.Weights, in.means),
			Vol:  math.Sqrt(math.Max(in.variance, 0)),
		}
		result, err = c.Calculate(ctx, single)

	default:
		single := req.Request
		single.Returns = in.rescaled(req.Weights)
		result, err = c.Calculate(ctx, single)
	}
	if err != nil {
		return domain.PortfolioVaRResult{}, err
	}
	result.Observations = len(in.returns)

	return domain.PortfolioVaRResult{
		VaRResult:     result,
		Symbols:       req.Symbols,
		Weights:       req.Weights,
		Contributions: c.contributions(req, in, result),
	}, nil
}

func (c *Calculator) simulatePortfolio(ctx context.Context, req PortfolioRequest, in portfolioInputs) (domain.VaRResult, error) {
	horizon := req.HorizonDays
	if horizon == 0 {
		horizon = 1
	}
	cfg := domain.SimulationConfig{
		Method:           domain.MethodMonteCarlo,
		Paths:            req.Paths,
		HorizonDays:      horizon,
		ConfidenceLevels: req.ConfidenceLevels,
		Seed:             req.Seed,
		Antithetic:       req.Antithetic,
		ControlVariate:   req.ControlVariate,
		QuasiRandom:      req.QuasiRandom,
	}
	model := PortfolioModel{Weights: req.Weights, Means: in.means, Covariance: in.cov}
	if copula, ok := req.Distribution.(domain.Copula); ok {
		model.Copula = &copula
	} else if req.DistributionKind == domain.DistCopula {
		copula := GaussianCopulaFromMoments(in.means, in.cov)
		model.Copula = &copula
	}
	return c.monteCarlo.CalculatePortfolio(ctx, cfg, model)
}

func validatePortfolioDistribution(req PortfolioRequest) error {
	const op = "portfolio_var"
	copula, ok := req.Distribution.(domain.Copula)
	if !ok {
		return nil
	}
	if req.Method != domain.MethodMonteCarlo {
		return domain.NewUnsupportedDistributionError(op, req.Method, domain.DistCopula)
	}
	if copula.Dimension() != len(req.Symbols) {
		return domain.NewValidationError(op, "copula dimension must match the symbol count").
			WithDetail("dimension", copula.Dimension()).
			WithDetail("symbols", len(req.Symbols))
	}
	return nil
}

// GaussianCopulaFromMoments builds a Gaussian copula with Normal marginals
// from a mean vector and covariance matrix
func GaussianCopulaFromMoments(means []float64, cov mat.Symmetric) domain.Copula {
	corr := stats.CorrelationFromCovariance(cov)
	n := len(means)
	out := domain.Copula{
		Family:      domain.CopulaGaussian,
		Correlation: make([][]float64, n),
		Marginals:   make([]domain.Normal, n),
	}
	for i := 0; i < n; i++ {
		out.Correlation[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out.Correlation[i][j] = math.Max(-1, math.Min(1, corr.At(i, j)))
		}
		out.Marginals[i] = domain.Normal{Mean: means[i], Vol: math.Sqrt(math.Max(cov.At(i, i), 0))}
	}
	return out
}

// contributions splits VaR by the Euler allocation w_i(Σw)_i / w'Σw
func (c *Calculator) contributions(req PortfolioRequest, in portfolioInputs, result domain.VaRResult) []domain.AssetContribution {
	if len(result.Levels) == 0 {
		return nil
	}
	level := result.Levels[0]
	horizon := max(req.HorizonDays, 1)
	out := make([]domain.AssetContribution, len(req.Symbols))
	for i, sym := range req.Symbols {
		w := req.Weights[i]
		ac := domain.AssetContribution{Symbol: sym, Weight: w}

		if req.Method == domain.MethodHistorical {
			col := make([]float64, len(req.Columns[i]))
			floats.ScaleTo(col, w, req.Columns[i])
			v, _ := TailEstimate(stats.SortedCopy(col), level.Confidence)
			ac.StandaloneVaR = v * math.Sqrt(float64(horizon))
		} else {
			vol := math.Sqrt(math.Max(in.cov.At(i, i), 0))
			v, _ := NormalVaR(w*in.means[i], math.Abs(w)*vol, level.Confidence, horizon)
			ac.StandaloneVaR = v
		}

		if in.variance > 0 {
			ac.ComponentVaR = level.VaR * w * in.marginal[i] / in.variance
		}
		if level.VaR != 0 {
			ac.Percent = 100 * ac.ComponentVaR / level.VaR
		}
		out[i] = ac
	}
	return out
}
