package portfolio

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// Frontier size bounds
const (
	MinFrontierPoints     = 2
	MaxFrontierPoints     = 200
	DefaultFrontierPoints = 20
	defaultFrontierWorker = 4
)

// lambdaGrid spans risk aversions geometrically around the ratio of the
// return spread to the average variance, from return-seeking to variance-averse
func lambdaGrid(mu []float64, cov mat.Symmetric, m int) []float64 {
	if m <= 0 {
		return nil
	}
	n := cov.SymmetricDim()
	trace := 0.0
	for i := 0; i < n; i++ {
		trace += cov.At(i, i)
	}
	avgVar := trace / float64(n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range mu {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	scale := 1.0
	if avgVar > 0 && hi > lo {
		scale = (hi - lo) / avgVar
	} else if avgVar > 0 {
		scale = 1 / avgVar
	}

	from, to := math.Log(scale*1e-2), math.Log(scale*1e3)
	grid := make([]float64, m)
	if m == 1 {
		grid[0] = scale
		return grid
	}
	for k := range grid {
		grid[k] = math.Exp(from + (to-from)*float64(k)/float64(m-1))
	}
	return grid
}

// FrontierBuilder traces the efficient frontier with a mean-variance sweep
type FrontierBuilder struct {
	opt     *Optimizer
	workers int
	logger  *zap.Logger
}

// NewFrontierBuilder creates a builder solving up to workers points at once
func NewFrontierBuilder(opt *Optimizer, workers int, logger *zap.Logger) *FrontierBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = defaultFrontierWorker
	}
	return &FrontierBuilder{opt: opt, workers: workers, logger: logger}
}

// Build returns up to numPoints efficient portfolios ordered by ascending
// volatility. Dominated points are dropped so fewer may be returned.
func (b *FrontierBuilder) Build(ctx context.Context, in Input, numPoints int) (domain.Frontier, error) {
	const op = "efficient_frontier"
	start := time.Now()
	if numPoints < MinFrontierPoints || numPoints > MaxFrontierPoints {
		return domain.Frontier{}, domain.NewValidationError(op, "number of frontier points out of range").
			WithDetail("num_points", numPoints).
			WithConstraint("min", MinFrontierPoints).
			WithConstraint("max", MaxFrontierPoints)
	}
	if err := b.opt.Validate(in); err != nil {
		return domain.Frontier{}, err
	}

	rf := in.Constraints.RiskFreeRate
	grid := lambdaGrid(in.ExpectedReturns, in.Covariance, numPoints-2)
	results := make([]domain.OptimizationResult, numPoints)

	minVar, err := b.opt.minimumVariance(ctx, in)
	if err != nil {
		return domain.Frontier{}, err
	}
	results[0] = minVar
	w := maxReturnWeights(in.ExpectedReturns, in.Constraints.MinWeight, in.Constraints.MaxWeight)
	results[numPoints-1] = Evaluate(w, in.ExpectedReturns, in.Covariance, rf)

	p := pool.New().
		WithMaxGoroutines(b.workers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for k, lambda := range grid {
		p.Go(func(ctx context.Context) error {
			res, err := b.opt.meanVariance(ctx, in, in.ExpectedReturns, lambda)
			if err != nil {
				return err
			}
			results[k+1] = res
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Frontier{}, domain.NewCancelledError(op, err)
		}
		return domain.Frontier{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Frontier{}, domain.NewCancelledError(op, err)
	}

	frontier := domain.Frontier{Symbols: in.Symbols, Points: efficientPoints(results)}
	tagAnchors(&frontier)

	b.logger.Debug("efficient frontier built",
		zap.Int("requested", numPoints),
		zap.Int("points", len(frontier.Points)),
		zap.Duration("duration", time.Since(start)),
	)
	return frontier, nil
}

// efficientPoints sorts by volatility and keeps only points whose return
// strictly improves on the last kept point
func efficientPoints(results []domain.OptimizationResult) []domain.FrontierPoint {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ExpectedVolatility < results[j].ExpectedVolatility
	})
	points := make([]domain.FrontierPoint, 0, len(results))
	last := 0.0
	for _, r := range results {
		if len(points) > 0 && r.ExpectedReturn <= last+1e-12*math.Max(1, math.Abs(last)) {
			continue
		}
		last = r.ExpectedReturn
		points = append(points, domain.FrontierPoint{
			ExpectedReturn:     r.ExpectedReturn,
			ExpectedVolatility: r.ExpectedVolatility,
			Weights:            r.Weights,
			Sharpe:             r.Sharpe,
		})
	}
	return points
}

func tagAnchors(f *domain.Frontier) {
	if len(f.Points) == 0 {
		return
	}
	f.MinVolatility, f.MaxSharpe, f.MaxReturn = 0, 0, 0
	for i, p := range f.Points {
		if p.ExpectedVolatility < f.Points[f.MinVolatility].ExpectedVolatility {
			f.MinVolatility = i
		}
		if p.Sharpe > f.Points[f.MaxSharpe].Sharpe {
			f.MaxSharpe = i
		}
		if p.ExpectedReturn > f.Points[f.MaxReturn].ExpectedReturn {
			f.MaxReturn = i
		}
	}
	f.Points[f.MinVolatility].Tags = append(f.Points[f.MinVolatility].Tags, domain.TagMinVolatility)
	f.Points[f.MaxSharpe].Tags = append(f.Points[f.MaxSharpe].Tags, domain.TagMaxSharpe)
	f.Points[f.MaxReturn].Tags = append(f.Points[f.MaxReturn].Tags, domain.TagMaxReturn)
}
