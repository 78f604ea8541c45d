// Package portfolio builds optimal allocations under box and budget
// constraints and traces the efficient frontier.
package portfolio

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// Config bounds the iterative solvers
type Config struct {
	MaxIterations      int     `json:"max_iterations"`
	Tolerance          float64 `json:"tolerance"`
	MaxConditionNumber float64 `json:"max_condition_number"`
}

// DefaultConfig returns the solver defaults
func DefaultConfig() Config {
	return Config{
		MaxIterations:      2000,
		Tolerance:          1e-10,
		MaxConditionNumber: 1e10,
	}
}

// Input is the estimation universe for one optimization
type Input struct {
	Symbols         []string
	ExpectedReturns []float64
	Covariance      *mat.SymDense
	Constraints     domain.Constraints
	Views           *domain.Views
}

// Optimizer computes allocations for every OptimizationMethod
type Optimizer struct {
	config Config
	logger *zap.Logger
}

// NewOptimizer creates an optimizer
func NewOptimizer(config Config, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultConfig().MaxIterations
	}
	if config.Tolerance <= 0 {
		config.Tolerance = DefaultConfig().Tolerance
	}
	if config.MaxConditionNumber <= 0 {
		config.MaxConditionNumber = DefaultConfig().MaxConditionNumber
	}
	return &Optimizer{config: config, logger: logger}
}

// Validate checks dimensions, finiteness, feasibility of the box and the
// conditioning of the covariance matrix
func (o *Optimizer) Validate(in Input) error {
	const op = "validate_optimization"
	n := len(in.ExpectedReturns)
	if n < 1 || n > domain.MaxPortfolioAssets {
		return domain.NewValidationError(op, "portfolio must hold between 1 and 50 assets").WithDetail("assets", n)
	}
	if in.Symbols != nil && len(in.Symbols) != n {
		return domain.NewValidationError(op, "symbols and expected returns must have equal length").
			WithDetail("symbols", len(in.Symbols)).WithDetail("expected_returns", n)
	}
	if in.Covariance == nil || in.Covariance.SymmetricDim() != n {
		return domain.NewValidationError(op, "covariance must be an n×n matrix").WithDetail("assets", n)
	}
	for i, m := range in.ExpectedReturns {
		if !finite(m) {
			return domain.NewValidationError(op, "expected returns must be finite").WithDetail("index", i)
		}
		for j := 0; j < n; j++ {
			if !finite(in.Covariance.At(i, j)) {
				return domain.NewValidationError(op, "covariance must be finite").
					WithDetail("row", i).WithDetail("col", j)
			}
		}
	}

	c := in.Constraints
	if !finite(c.MinWeight) || !finite(c.MaxWeight) || c.MinWeight > c.MaxWeight {
		return domain.NewValidationError(op, "min weight must not exceed max weight").
			WithConstraint("min_weight", c.MinWeight).
			WithConstraint("max_weight", c.MaxWeight)
	}
	const slack = 1e-12
	if float64(n)*c.MinWeight > 1+slack || float64(n)*c.MaxWeight < 1-slack {
		return domain.NewValidationError(op, "weight bounds cannot sum to one").
			WithDetail("assets", n).
			WithConstraint("min_weight", c.MinWeight).
			WithConstraint("max_weight", c.MaxWeight)
	}
	if !finite(c.RiskFreeRate) || !finite(c.RiskAversion) || c.RiskAversion < 0 {
		return domain.NewValidationError(op, "risk aversion must be finite and non-negative").
			WithDetail("risk_aversion", c.RiskAversion)
	}

	var chol mat.Cholesky
	if !chol.Factorize(in.Covariance) {
		return domain.NewNumericalError(op, "covariance matrix is not positive definite").
			WithDiagnostic("assets", float64(n))
	}
	if cond := chol.Cond(); cond > o.config.MaxConditionNumber || math.IsInf(cond, 1) {
		return domain.NewNumericalError(op, "covariance matrix is ill-conditioned").
			WithDiagnostic("condition_number", cond).
			WithDiagnostic("max_condition_number", o.config.MaxConditionNumber)
	}
	return nil
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// Optimize dispatches to the requested method
func (o *Optimizer) Optimize(ctx context.Context, method domain.OptimizationMethod, in Input) (domain.OptimizationResult, error) {
	start := time.Now()
	if err := o.Validate(in); err != nil {
		return domain.OptimizationResult{}, err
	}

	var (
		res domain.OptimizationResult
		err error
	)
	switch method {
	case domain.OptMeanVariance:
		lambda := in.Constraints.RiskAversion
		if lambda == 0 {
			lambda = domain.DefaultConstraints().RiskAversion
		}
		res, err = o.meanVariance(ctx, in, in.ExpectedReturns, lambda)
	case domain.OptMinimumVariance:
		res, err = o.minimumVariance(ctx, in)
	case domain.OptMaximumSharpe:
		res, err = o.maximumSharpe(ctx, in)
	case domain.OptEqualWeight:
		res, err = o.equalWeight(in)
	case domain.OptRiskParity:
		res, err = o.riskParity(ctx, in)
	case domain.OptBlackLitterman:
		res, err = o.blackLitterman(ctx, in)
	default:
		return domain.OptimizationResult{}, domain.NewValidationError("optimize", "unknown optimization method").
			WithDetail("method", string(method))
	}
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	res.Method = method
	res.Symbols = in.Symbols

	o.logger.Debug("portfolio optimized",
		zap.String("method", string(method)),
		zap.Int("assets", len(in.ExpectedReturns)),
		zap.Int("iterations", res.Iterations),
		zap.Bool("converged", res.Converged),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (o *Optimizer) solveQP(ctx context.Context, q mat.Symmetric, c []float64, cons domain.Constraints) (qpResult, error) {
	order := make([]int, len(c))
	for i := range order {
		order[i] = i
	}
	qp := boxQP{q: q, c: c, lo: cons.MinWeight, hi: cons.MaxWeight}
	return qp.solve(ctx, feasibleStart(len(c), cons.MinWeight, cons.MaxWeight, order), o.config.MaxIterations)
}

// meanVariance maximizes μᵀw − (λ/2)·wᵀΣw
func (o *Optimizer) meanVariance(ctx context.Context, in Input, mu []float64, lambda float64) (domain.OptimizationResult, error) {
	if lambda == 0 {
		w := maxReturnWeights(mu, in.Constraints.MinWeight, in.Constraints.MaxWeight)
		res := Evaluate(w, mu, in.Covariance, in.Constraints.RiskFreeRate)
		res.Converged = true
		return res, nil
	}
	var q mat.SymDense
	q.ScaleSym(lambda, in.Covariance)
	sol, err := o.solveQP(ctx, &q, mu, in.Constraints)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	res := Evaluate(sol.weights, mu, in.Covariance, in.Constraints.RiskFreeRate)
	res.Iterations = sol.iterations
	res.Converged = true
	res.Metadata = map[string]float64{"risk_aversion": lambda}
	return res, nil
}

func (o *Optimizer) minimumVariance(ctx context.Context, in Input) (domain.OptimizationResult, error) {
	sol, err := o.solveQP(ctx, in.Covariance, make([]float64, len(in.ExpectedReturns)), in.Constraints)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	res := Evaluate(sol.weights, in.ExpectedReturns, in.Covariance, in.Constraints.RiskFreeRate)
	res.Iterations = sol.iterations
	res.Converged = true
	return res, nil
}

// maximumSharpe runs a minorize-maximize iteration: with σ(w) bounded by
// (wᵀΣw + σ_k²)/(2σ_k), each step is a mean-variance problem with λ = S_k/σ_k.
func (o *Optimizer) maximumSharpe(ctx context.Context, in Input) (domain.OptimizationResult, error) {
	const op = "maximum_sharpe"
	rf := in.Constraints.RiskFreeRate
	current, err := o.minimumVariance(ctx, in)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	if current.ExpectedVolatility == 0 {
		return current, nil
	}
	if current.Sharpe <= 0 {
		w := maxReturnWeights(in.ExpectedReturns, in.Constraints.MinWeight, in.Constraints.MaxWeight)
		alt := Evaluate(w, in.ExpectedReturns, in.Covariance, rf)
		if alt.Sharpe <= 0 || alt.ExpectedVolatility == 0 {
			return o.bestFrontierSharpe(ctx, in)
		}
		current = alt
	}

	iterations := current.Iterations
	for k := 0; k < o.config.MaxIterations; k++ {
		if err := ctx.Err(); err != nil {
			return domain.OptimizationResult{}, domain.NewCancelledError(op, err)
		}
		lambda := current.Sharpe / current.ExpectedVolatility
		next, err := o.meanVariance(ctx, in, in.ExpectedReturns, lambda)
		if err != nil {
			return domain.OptimizationResult{}, err
		}
		iterations += next.Iterations

		improvement := next.Sharpe - current.Sharpe
		moved := floats.Distance(next.Weights, current.Weights, math.Inf(1))
		if improvement > 0 {
			current = next
		}
		if improvement <= o.config.Tolerance*math.Max(1, math.Abs(current.Sharpe)) || moved < o.config.Tolerance {
			current.Iterations = iterations
			current.Converged = true
			current.Metadata = nil
			return current, nil
		}
	}
	return domain.OptimizationResult{}, domain.NewNumericalError(op, "maximum Sharpe iteration did not converge").
		WithDiagnostic("iterations", float64(iterations)).
		WithDiagnostic("sharpe", current.Sharpe)
}

// bestFrontierSharpe is the fallback when no feasible portfolio earns more
// than the risk-free rate
func (o *Optimizer) bestFrontierSharpe(ctx context.Context, in Input) (domain.OptimizationResult, error) {
	best := domain.OptimizationResult{Sharpe: math.Inf(-1)}
	for _, lambda := range lambdaGrid(in.ExpectedReturns, in.Covariance, 25) {
		res, err := o.meanVariance(ctx, in, in.ExpectedReturns, lambda)
		if err != nil {
			return domain.OptimizationResult{}, err
		}
		if res.Sharpe > best.Sharpe {
			best = res
		}
	}
	best.Converged = true
	best.Metadata = map[string]float64{"fallback": 1}
	return best, nil
}

func (o *Optimizer) equalWeight(in Input) (domain.OptimizationResult, error) {
	n := len(in.ExpectedReturns)
	eq := 1 / float64(n)
	c := in.Constraints
	if eq < c.MinWeight || eq > c.MaxWeight {
		return domain.OptimizationResult{}, domain.NewValidationError("equal_weight", "equal weights violate the weight bounds").
			WithDetail("weight", eq).
			WithConstraint("min_weight", c.MinWeight).
			WithConstraint("max_weight", c.MaxWeight)
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = eq
	}
	res := Evaluate(w, in.ExpectedReturns, in.Covariance, c.RiskFreeRate)
	res.Converged = true
	return res, nil
}

// Evaluate computes the portfolio statistics of w
func Evaluate(w, mu []float64, cov mat.Symmetric, riskFree float64) domain.OptimizationResult {
	n := len(w)
	wv := mat.NewVecDense(n, w)
	var sw mat.VecDense
	sw.MulVec(cov, wv)
	variance := math.Max(mat.Dot(wv, &sw), 0)
	vol := math.Sqrt(variance)

	res := domain.OptimizationResult{
		Weights:            w,
		ExpectedReturn:     floats.Dot(w, mu),
		ExpectedVolatility: vol,
		RiskContributions:  make([]float64, n),
	}
	weightedVol := 0.0
	for i := 0; i < n; i++ {
		weightedVol += w[i] * math.Sqrt(math.Max(cov.At(i, i), 0))
		res.ConcentrationRatio += w[i] * w[i]
		if vol > 0 {
			res.RiskContributions[i] = w[i] * sw.AtVec(i) / vol
		}
	}
	if vol > 0 {
		res.Sharpe = (res.ExpectedReturn - riskFree) / vol
		res.DiversificationRatio = weightedVol / vol
	}
	return res
}
