package risk

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/services/sampling"
)

var referenceReturns = []float64{
	-0.05, -0.03, -0.02, -0.01, 0, 0.01, 0.02, 0.03, 0.04, 0.05,
	-0.04, -0.02, -0.01, 0, 0.01, 0.02, 0.03, 0.04, 0.05, 0.06,
	-0.06, -0.04, -0.02, -0.01, 0, 0.01, 0.02, 0.03, 0.04, 0.05,
}

func normalDraws(n int, mean, vol float64, seed uint64) []float64 {
	g := sampling.NewGenerator(seed, 0)
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + vol*g.Normal()
	}
	return out
}

func TestHistoricalVaR_ReferenceDataset(t *testing.T) {
	// nearest rank: ceil(0.05*30) = 2, the second-worst return
	v, cv, err := HistoricalVaR(referenceReturns, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, v, 1e-12)
	assert.InDelta(t, 0.055, cv, 1e-12)
}

func TestHistoricalVaR_EdgeCases(t *testing.T) {
	t.Run("all zero returns", func(t *testing.T) {
		v, cv, err := HistoricalVaR(make([]float64, 50), 0.99)
		require.NoError(t, err)
		assert.Equal(t, 0.0, v)
		assert.Equal(t, 0.0, cv)
		assert.False(t, math.Signbit(v))
		assert.False(t, math.Signbit(cv))
	})

	t.Run("single return", func(t *testing.T) {
		for _, c := range []float64{0.5, 0.9, 0.95, 0.99, 0.999} {
			v, cv, err := HistoricalVaR([]float64{-0.023}, c)
			require.NoError(t, err)
			assert.Equal(t, 0.023, v)
			assert.Equal(t, 0.023, cv)
		}
	})

	t.Run("empty series", func(t *testing.T) {
		_, _, err := HistoricalVaR(nil, 0.95)
		assert.ErrorIs(t, err, domain.ErrInsufficientData)
	})

	t.Run("invalid confidence", func(t *testing.T) {
		for _, c := range []float64{0, 1, -0.1, 1.5, math.NaN()} {
			_, _, err := HistoricalVaR(referenceReturns, c)
			assert.ErrorIs(t, err, domain.ErrValidation)
		}
	})

	t.Run("non-finite returns", func(t *testing.T) {
		_, _, err := HistoricalVaR([]float64{0.01, math.Inf(-1)}, 0.95)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("ties enter the tail", func(t *testing.T) {
		v, cv, err := HistoricalVaR([]float64{-0.02, -0.02, -0.02, 0.01}, 0.75)
		require.NoError(t, err)
		assert.InDelta(t, 0.02, v, 1e-15)
		assert.InDelta(t, 0.02, cv, 1e-15)
	})
}

func TestHistoricalEngine_MonotoneAndScaled(t *testing.T) {
	engine := NewHistoricalEngine(zap.NewNop())
	returns := normalDraws(1000, 0, 0.01, 9)
	levels := []float64{0.9, 0.95, 0.975, 0.99}

	one, err := engine.Calculate(context.Background(), returns, levels, HistoricalOptions{})
	require.NoError(t, err)
	require.Len(t, one.Levels, len(levels))
	assert.Equal(t, domain.MethodHistorical, one.Method)
	assert.Equal(t, 1000, one.Observations)

	for i, l := range one.Levels {
		assert.GreaterOrEqual(t, l.CVaR, l.VaR)
		if i > 0 {
			assert.GreaterOrEqual(t, l.VaR, one.Levels[i-1].VaR)
		}
	}

	ten, err := engine.Calculate(context.Background(), returns, levels, HistoricalOptions{HorizonDays: 10})
	require.NoError(t, err)
	for i := range levels {
		assert.InDelta(t, one.Levels[i].VaR*math.Sqrt(10), ten.Levels[i].VaR, 1e-12)
	}
}

func TestHistoricalEngine_Bootstrap(t *testing.T) {
	engine := NewHistoricalEngine(nil)
	returns := normalDraws(500, 0, 0.01, 4)

	res, err := engine.Calculate(context.Background(), returns, []float64{0.95}, HistoricalOptions{BootstrapSamples: 200, Seed: 7})
	require.NoError(t, err)
	l := res.Levels[0]
	require.NotNil(t, l.Bounds)
	require.NotNil(t, res.Seed)
	assert.Equal(t, 200, l.Bounds.Samples)
	assert.LessOrEqual(t, l.Bounds.VaRLower, l.VaR)
	assert.GreaterOrEqual(t, l.Bounds.VaRUpper, l.VaR)
	assert.LessOrEqual(t, l.Bounds.CVaRLower, l.CVaR)
	assert.GreaterOrEqual(t, l.Bounds.CVaRUpper, l.CVaR)

	again, err := engine.Calculate(context.Background(), returns, []float64{0.95}, HistoricalOptions{BootstrapSamples: 200, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, *l.Bounds, *again.Levels[0].Bounds)
}

func TestHistoricalEngine_BootstrapCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHistoricalEngine(nil).Calculate(ctx, referenceReturns, []float64{0.95}, HistoricalOptions{BootstrapSamples: 10})
	assert.ErrorIs(t, err, domain.ErrCancelled)
}
