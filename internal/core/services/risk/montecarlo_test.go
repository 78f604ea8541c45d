package risk

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

func seedPtr(s uint64) *uint64 { return &s }

func mcConfig(dist domain.Distribution, paths int, seed *uint64) domain.SimulationConfig {
	return domain.SimulationConfig{
		Method:           domain.MethodMonteCarlo,
		Distribution:     dist,
		Paths:            paths,
		HorizonDays:      1,
		ConfidenceLevels: []float64{0.95, 0.99},
		Seed:             seed,
	}
}

func TestMonteCarlo_ConvergesToNormal(t *testing.T) {
	engine := NewMonteCarloEngine(WithLogger(zap.NewNop()))
	res, err := engine.Calculate(context.Background(), mcConfig(domain.Normal{Mean: 0.0005, Vol: 0.015}, 10000, seedPtr(42)))
	require.NoError(t, err)

	l99, ok := res.Level(0.99)
	require.True(t, ok)
	assert.InDelta(t, 0.0344, l99.VaR, 0.005)
	assert.GreaterOrEqual(t, l99.CVaR, l99.VaR)

	l95, _ := res.Level(0.95)
	assert.GreaterOrEqual(t, l99.VaR, l95.VaR)
	assert.Equal(t, uint64(42), *res.Seed)
	assert.Equal(t, 10000, res.Observations)
	assert.Equal(t, 10.0, res.Diagnostics["batches"])
}

func TestMonteCarlo_DeterministicAcrossWorkers(t *testing.T) {
	dists := []domain.Distribution{
		domain.Normal{Mean: 0.0005, Vol: 0.015},
		domain.StudentT{DoF: 5, Loc: 0, Scale: 0.01},
		domain.GARCH{Omega: 2e-6, Alpha: 0.08, Beta: 0.9},
		domain.Mixture{Weights: []float64{0.8, 0.2}, Means: []float64{0.001, -0.004}, Vols: []float64{0.01, 0.03}},
	}
	for _, dist := range dists {
		t.Run(string(dist.Kind()), func(t *testing.T) {
			cfg := mcConfig(dist, 5500, seedPtr(7))
			cfg.HorizonDays = 5
			cfg.Antithetic = true

			one, err := NewMonteCarloEngine(WithWorkers(1)).Calculate(context.Background(), cfg)
			require.NoError(t, err)
			eight, err := NewMonteCarloEngine(WithWorkers(8)).Calculate(context.Background(), cfg)
			require.NoError(t, err)
			again, err := NewMonteCarloEngine(WithWorkers(3)).Calculate(context.Background(), cfg)
			require.NoError(t, err)

			assert.Equal(t, one.Levels, eight.Levels)
			assert.Equal(t, one.Levels, again.Levels)
		})
	}
}

func TestMonteCarlo_RandomSeedReported(t *testing.T) {
	res, err := NewMonteCarloEngine().Calculate(context.Background(), mcConfig(domain.Normal{Vol: 0.01}, 1000, nil))
	require.NoError(t, err)
	require.NotNil(t, res.Seed)

	replay, err := NewMonteCarloEngine().Calculate(context.Background(), mcConfig(domain.Normal{Vol: 0.01}, 1000, res.Seed))
	require.NoError(t, err)
	assert.Equal(t, res.Levels, replay.Levels)
}

func TestMonteCarlo_VarianceReduction(t *testing.T) {
	dist := domain.Normal{Mean: 0.0005, Vol: 0.015}
	engine := NewMonteCarloEngine()

	t.Run("antithetic", func(t *testing.T) {
		cfg := mcConfig(dist, 10000, seedPtr(3))
		cfg.Antithetic = true
		res, err := engine.Calculate(context.Background(), cfg)
		require.NoError(t, err)
		// paired paths cancel the noise, leaving the drift
		assert.InDelta(t, 0.0005, res.Diagnostics["mean"], 1e-12)
		l, _ := res.Level(0.99)
		assert.InDelta(t, 0.0344, l.VaR, 0.005)
	})

	t.Run("control variate", func(t *testing.T) {
		cfg := mcConfig(dist, 10000, seedPtr(3))
		cfg.ControlVariate = true
		res, err := engine.Calculate(context.Background(), cfg)
		require.NoError(t, err)
		assert.InDelta(t, 0.015, res.Diagnostics["control_beta"], 1e-9)
		assert.InDelta(t, 0.0005, res.Diagnostics["mean"], 1e-9)
		l, _ := res.Level(0.99)
		assert.InDelta(t, 0.0344, l.VaR, 0.005)
	})

	t.Run("quasi random", func(t *testing.T) {
		cfg := mcConfig(dist, 10000, seedPtr(3))
		cfg.QuasiRandom = true
		res, err := engine.Calculate(context.Background(), cfg)
		require.NoError(t, err)
		l, _ := res.Level(0.99)
		assert.InDelta(t, 0.0344, l.VaR, 0.002)
	})
}

func TestMonteCarlo_QuasiRandomKinds(t *testing.T) {
	engine := NewMonteCarloEngine(WithWorkers(3))
	tests := []struct {
		name string
		dist domain.Distribution
	}{
		{"normal", domain.Normal{Mean: 0.0005, Vol: 0.015}},
		{"garch", domain.GARCH{Omega: 2e-6, Alpha: 0.08, Beta: 0.9}},
		{"mixture", domain.Mixture{Weights: []float64{0.8, 0.2}, Means: []float64{0.0005, -0.001}, Vols: []float64{0.01, 0.03}}},
		{"gaussian copula", domain.Copula{
			Family:      domain.CopulaGaussian,
			Correlation: [][]float64{{1}},
			Marginals:   []domain.Normal{{Mean: 0.0005, Vol: 0.015}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mcConfig(tt.dist, 20000, seedPtr(4))
			cfg.HorizonDays = 5
			pseudo, err := engine.Calculate(context.Background(), cfg)
			require.NoError(t, err)

			cfg.QuasiRandom = true
			quasi, err := engine.Calculate(context.Background(), cfg)
			require.NoError(t, err)

			p, _ := pseudo.Level(0.99)
			q, _ := quasi.Level(0.99)
			assert.InEpsilon(t, p.VaR, q.VaR, 0.1)
			assert.NotEqual(t, p.VaR, q.VaR)
		})
	}
}

func TestMonteCarlo_QuasiRandomUnsupported(t *testing.T) {
	cfg := mcConfig(domain.StudentT{DoF: 5, Scale: 0.01}, 1000, seedPtr(1))
	cfg.QuasiRandom = true
	_, err := NewMonteCarloEngine().Calculate(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrUnsupportedDistribution)
}

func TestMonteCarlo_Validation(t *testing.T) {
	engine := NewMonteCarloEngine()
	tests := []struct {
		name   string
		mutate func(*domain.SimulationConfig)
		kind   error
	}{
		{"too few paths", func(c *domain.SimulationConfig) { c.Paths = 999 }, domain.ErrValidation},
		{"too many paths", func(c *domain.SimulationConfig) { c.Paths = 100001 }, domain.ErrValidation},
		{"zero horizon", func(c *domain.SimulationConfig) { c.HorizonDays = 0 }, domain.ErrValidation},
		{"bad confidence", func(c *domain.SimulationConfig) { c.ConfidenceLevels = []float64{1} }, domain.ErrValidation},
		{"wrong method", func(c *domain.SimulationConfig) { c.Method = domain.MethodHistorical }, domain.ErrValidation},
		{"degenerate garch", func(c *domain.SimulationConfig) {
			c.Distribution = domain.GARCH{Omega: 1e-6, Alpha: 0.5, Beta: 0.6}
		}, domain.ErrNumerical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mcConfig(domain.Normal{Vol: 0.01}, 1000, seedPtr(1))
			tt.mutate(&cfg)
			_, err := engine.Calculate(context.Background(), cfg)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestMonteCarlo_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMonteCarloEngine().Calculate(ctx, mcConfig(domain.Normal{Vol: 0.01}, 100000, seedPtr(1)))
	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func TestMonteCarlo_Portfolio(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{
		0.0004, 0.00012,
		0.00012, 0.0009,
	})
	model := PortfolioModel{Weights: []float64{0.6, 0.4}, Means: []float64{0.0004, 0.0006}, Covariance: cov}
	cfg := mcConfig(nil, 20000, seedPtr(5))

	res, err := NewMonteCarloEngine().CalculatePortfolio(context.Background(), cfg, model)
	require.NoError(t, err)
	assert.Equal(t, domain.DistNormal, res.Distribution)

	variance := 0.36*0.0004 + 0.16*0.0009 + 2*0.24*0.00012
	want, _ := NormalVaR(0.6*0.0004+0.4*0.0006, math.Sqrt(variance), 0.99, 1)
	l, _ := res.Level(0.99)
	assert.InDelta(t, want, l.VaR, 0.003)

	copula := GaussianCopulaFromMoments(model.Means, cov)
	model.Copula = &copula
	cres, err := NewMonteCarloEngine().CalculatePortfolio(context.Background(), cfg, model)
	require.NoError(t, err)
	assert.Equal(t, domain.DistCopula, cres.Distribution)
	cl, _ := cres.Level(0.99)
	assert.InDelta(t, want, cl.VaR, 0.003)

	model.Copula = nil
	model.Weights = []float64{1}
	_, err = NewMonteCarloEngine().CalculatePortfolio(context.Background(), cfg, model)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func BenchmarkMonteCarlo_100kPaths(b *testing.B) {
	engine := NewMonteCarloEngine()
	cfg := mcConfig(domain.GARCH{Omega: 2e-6, Alpha: 0.08, Beta: 0.9}, 100000, seedPtr(1))
	cfg.HorizonDays = 10
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Calculate(context.Background(), cfg); err != nil {
			b.Fatal(err)
		}
	}
}
