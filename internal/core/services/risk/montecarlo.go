package risk

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/services/sampling"
)

const (
	// DefaultBatchSize is the number of paths one batch simulates. It is even
	// so antithetic pairs never straddle a batch boundary.
	DefaultBatchSize = 1000
	// DefaultWorkers bounds concurrent batches
	DefaultWorkers = 8
)

// MonteCarloOption configures a MonteCarloEngine
type MonteCarloOption func(*MonteCarloEngine)

// WithWorkers sets the number of concurrent batches
func WithWorkers(n int) MonteCarloOption {
	return func(e *MonteCarloEngine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithBatchSize sets the paths per batch, rounded up to an even number
func WithBatchSize(n int) MonteCarloOption {
	return func(e *MonteCarloEngine) {
		if n > 0 {
			e.batchSize = n + n%2
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) MonteCarloOption {
	return func(e *MonteCarloEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// MonteCarloEngine simulates horizon returns in fixed-size batches. Each batch
// owns a generator derived from (seed, batch index), so results depend on the
// seed alone and not on the worker count.
type MonteCarloEngine struct {
	logger    *zap.Logger
	workers   int
	batchSize int
}

// NewMonteCarloEngine creates an engine
func NewMonteCarloEngine(opts ...MonteCarloOption) *MonteCarloEngine {
	e := &MonteCarloEngine{logger: zap.NewNop(), workers: DefaultWorkers, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PortfolioModel describes joint asset returns for a portfolio simulation.
// When Copula is set it replaces Means and Covariance.
type PortfolioModel struct {
	Weights    []float64
	Means      []float64
	Covariance mat.Symmetric
	Copula     *domain.Copula
}

type simulation struct {
	sampler    sampling.PathSampler
	paths      int
	horizon    int
	seed       uint64
	antithetic bool
	control    bool
	quasi      *sampling.Halton
}

type simulationOutput struct {
	returns     []float64
	controlBeta float64
	batches     int
}

// Simulate draws paths horizon returns from dist. It is the raw path
// generator behind Calculate and is exposed for stress and backtest callers.
func (e *MonteCarloEngine) Simulate(ctx context.Context, cfg domain.SimulationConfig) ([]float64, uint64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}
	sim, err := e.prepare(cfg)
	if err != nil {
		return nil, 0, err
	}
	out, err := e.run(ctx, sim)
	if err != nil {
		return nil, 0, err
	}
	return out.returns, sim.seed, nil
}

// Calculate runs a single-asset simulation and estimates each confidence level
func (e *MonteCarloEngine) Calculate(ctx context.Context, cfg domain.SimulationConfig) (domain.VaRResult, error) {
	if err := cfg.Validate(); err != nil {
		return domain.VaRResult{}, err
	}
	sim, err := e.prepare(cfg)
	if err != nil {
		return domain.VaRResult{}, err
	}
	return e.estimate(ctx, sim, cfg, cfg.Distribution.Kind())
}

// CalculatePortfolio simulates a weighted portfolio of jointly distributed assets
func (e *MonteCarloEngine) CalculatePortfolio(ctx context.Context, cfg domain.SimulationConfig, model PortfolioModel) (domain.VaRResult, error) {
	const op = "portfolio_monte_carlo"
	if err := validateRun(cfg); err != nil {
		return domain.VaRResult{}, err
	}

	var (
		inner sampling.VectorSampler
		kind  = domain.DistNormal
		err   error
	)
	if model.Copula != nil {
		kind = domain.DistCopula
		inner, err = sampling.NewCopulaSampler(*model.Copula)
	} else {
		if model.Covariance == nil {
			return domain.VaRResult{}, domain.NewValidationError(op, "covariance or copula is required")
		}
		inner, err = sampling.NewMultiNormal(model.Means, model.Covariance)
	}
	if err != nil {
		return domain.VaRResult{}, err
	}
	if len(model.Weights) != inner.Dim() {
		return domain.VaRResult{}, domain.NewValidationError(op, "weights do not match the asset count").
			WithDetail("weights", len(model.Weights)).
			WithDetail("assets", inner.Dim())
	}

	sim := simulation{
		sampler:    sampling.NewWeightedSampler(model.Weights, inner),
		paths:      cfg.Paths,
		horizon:    cfg.HorizonDays,
		seed:       resolveSeed(cfg.Seed),
		antithetic: cfg.Antithetic,
		control:    cfg.ControlVariate,
	}
	if cfg.QuasiRandom {
		if model.Copula != nil && model.Copula.Family != domain.CopulaGaussian {
			return domain.VaRResult{}, domain.NewUnsupportedDistributionError(op, domain.MethodMonteCarlo, kind).
				WithDetail("quasi_random", true)
		}
		sim.quasi = sampling.NewHalton(cfg.HorizonDays*inner.Dim(), sim.seed)
	}
	return e.estimate(ctx, sim, cfg, kind)
}

func validateRun(cfg domain.SimulationConfig) error {
	check := cfg
	if check.Distribution == nil {
		check.Distribution = domain.Normal{}
	}
	return check.Validate()
}

func resolveSeed(seed *uint64) uint64 {
	if seed != nil {
		return *seed
	}
	return rand.Uint64()
}

func (e *MonteCarloEngine) prepare(cfg domain.SimulationConfig) (simulation, error) {
	sampler, err := sampling.NewPathSampler(cfg.Distribution)
	if err != nil {
		return simulation{}, err
	}
	sim := simulation{
		sampler:    sampler,
		paths:      cfg.Paths,
		horizon:    cfg.HorizonDays,
		seed:       resolveSeed(cfg.Seed),
		antithetic: cfg.Antithetic,
		control:    cfg.ControlVariate,
	}
	if cfg.QuasiRandom {
		if !sampling.SupportsQuasi(cfg.Distribution) {
			return simulation{}, domain.NewUnsupportedDistributionError("monte_carlo_var", domain.MethodMonteCarlo, cfg.Distribution.Kind()).
				WithDetail("quasi_random", true)
		}
		sim.quasi = sampling.NewHalton(cfg.HorizonDays*sampling.QuasiDimsPerStep(cfg.Distribution), sim.seed)
	}
	return sim, nil
}

func (e *MonteCarloEngine) estimate(ctx context.Context, sim simulation, cfg domain.SimulationConfig, kind domain.DistributionKind) (domain.VaRResult, error) {
	start := time.Now()
	out, err := e.run(ctx, sim)
	if err != nil {
		return domain.VaRResult{}, err
	}

	mean, std := stat.MeanStdDev(out.returns, nil)
	sorted := out.returns
	slices.Sort(sorted)

	seed := sim.seed
	result := domain.VaRResult{
		ID:           uuid.New(),
		Method:       domain.MethodMonteCarlo,
		Distribution: kind,
		HorizonDays:  sim.horizon,
		Observations: sim.paths,
		Seed:         &seed,
		Levels:       make([]domain.LevelEstimate, len(cfg.ConfidenceLevels)),
		Diagnostics: map[string]float64{
			"mean":           mean,
			"std_dev":        std,
			"standard_error": std / math.Sqrt(float64(sim.paths)),
			"batches":        float64(out.batches),
		},
	}
	if sim.control {
		result.Diagnostics["control_beta"] = out.controlBeta
	}
	for i, c := range cfg.ConfidenceLevels {
		v, cv := TailEstimate(sorted, c)
		result.Levels[i] = domain.LevelEstimate{Confidence: c, VaR: v, CVaR: cv}
	}

	e.logger.Info("monte carlo VaR calculated",
		zap.String("distribution", string(kind)),
		zap.Int("paths", sim.paths),
		zap.Int("horizon_days", sim.horizon),
		zap.Uint64("seed", seed),
		zap.Bool("antithetic", sim.antithetic),
		zap.Bool("control_variate", sim.control),
		zap.Bool("quasi_random", sim.quasi != nil),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (e *MonteCarloEngine) run(ctx context.Context, sim simulation) (simulationOutput, error) {
	const op = "monte_carlo_simulation"
	if err := ctx.Err(); err != nil {
		return simulationOutput{}, domain.NewCancelledError(op, err)
	}

	returns := make([]float64, sim.paths)
	var controls []float64
	if sim.control {
		controls = make([]float64, sim.paths)
	}
	batches := (sim.paths + e.batchSize - 1) / e.batchSize

	p := pool.New().
		WithMaxGoroutines(e.workers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for b := 0; b < batches; b++ {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			begin := b * e.batchSize
			end := min(begin+e.batchSize, sim.paths)
			g := sampling.NewGenerator(sim.seed, uint64(b))
			if sim.quasi != nil {
				g.WithQuasi(sim.quasi)
			}
			for i := begin; i < end; i++ {
				g.BeginPath(i)
				if sim.antithetic {
					if (i-begin)%2 == 0 {
						g.Record()
					} else {
						g.Replay()
					}
				}
				returns[i] = sim.sampler.Path(g, sim.horizon)
				if controls != nil {
					controls[i] = g.NormalSum()
				}
			}
			g.Free()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return simulationOutput{}, domain.NewCancelledError(op, err)
		}
		return simulationOutput{}, err
	}
	if err := ctx.Err(); err != nil {
		return simulationOutput{}, domain.NewCancelledError(op, err)
	}

	out := simulationOutput{returns: returns, batches: batches}
	if controls != nil {
		out.controlBeta = applyControlVariate(returns, controls)
	}
	return out, nil
}

// applyControlVariate shifts every path by -b·ȳ where y is the path's sum of
// standard normals with known mean zero, and b = cov(x, y)/var(y).
func applyControlVariate(x, y []float64) float64 {
	varY := stat.Variance(y, nil)
	if varY == 0 || math.IsNaN(varY) {
		return 0
	}
	b := stat.Covariance(x, y, nil) / varY
	shift := b * stat.Mean(y, nil)
	for i := range x {
		x[i] -= shift
	}
	return b
}
