package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

func TestDrawdownTracker(t *testing.T) {
	// wealth: 1.1, 0.55, 0.66, 1.32, 1.188
	stats := Drawdowns([]float64{0.1, -0.5, 0.2, 1.0, -0.1})
	assert.InDelta(t, 0.5, stats.MaxDrawdown, 1e-12)
	assert.Equal(t, 2, stats.MaxDrawdownDuration)
	assert.Equal(t, 3, stats.TotalDrawdownPeriods)
	assert.InDelta(t, 0.1, stats.CurrentDrawdown, 1e-12)
	assert.InDelta(t, (0.5+0.4+0.1)/3, stats.AverageDrawdown, 1e-12)

	rising := Drawdowns([]float64{0.01, 0.02, 0.03})
	assert.Equal(t, 0.0, rising.MaxDrawdown)
	assert.Equal(t, 0, rising.MaxDrawdownDuration)
}

func TestRiskMetrics(t *testing.T) {
	returns := normalDraws(504, 0.0004, 0.012, 12)
	m, err := RiskMetrics(returns, MetricsOptions{RiskFreeRate: 0.02})
	require.NoError(t, err)

	assert.Equal(t, 504, m.Observations)
	assert.InDelta(t, m.Mean*252, m.AnnualizedReturn, 1e-12)
	assert.InDelta(t, m.Volatility*math.Sqrt(252), m.AnnualizedVolatility, 1e-12)
	assert.InDelta(t, (252*m.Mean-0.02)/(m.Volatility*math.Sqrt(252)), m.Sharpe, 1e-12)
	assert.Greater(t, m.Sortino, 0.0)
	assert.Greater(t, m.MaxDrawdown, 0.0)
	assert.Less(t, m.MaxDrawdown, 1.0)
	assert.GreaterOrEqual(t, m.VaR99, m.VaR95)
	assert.GreaterOrEqual(t, m.CVaR95, m.VaR95)
	assert.GreaterOrEqual(t, m.CVaR99, m.VaR99)

	// zero benchmark: active returns are the returns themselves
	assert.InDelta(t, m.AnnualizedVolatility, m.TrackingError, 1e-12)
	assert.Equal(t, 0.0, m.Beta)
}

func TestRiskMetrics_Sortino(t *testing.T) {
	returns := []float64{0.02, -0.01, 0.03, -0.04, 0.01, 0, 0.015, -0.02}
	m, err := RiskMetrics(returns, MetricsOptions{RiskFreeRate: 0.02})
	require.NoError(t, err)
	// four observations below the mean of 0.000625
	assert.InDelta(t, 0.023393709090266127, DownsideDeviation(returns, m.Mean), 1e-15)
	assert.InDelta(t, 0.3702570552781144, m.Sortino, 1e-12)
}

func TestDownsideDeviation(t *testing.T) {
	assert.Equal(t, 0.0, DownsideDeviation(nil, 0))
	assert.Equal(t, 0.0, DownsideDeviation([]float64{0.01, 0.02}, 0))
	assert.InDelta(t, 0.03, DownsideDeviation([]float64{-0.03, 0.05, 0.07}, 0), 1e-15)
	assert.InDelta(t, math.Sqrt((0.01*0.01+0.03*0.03)/2), DownsideDeviation([]float64{-0.01, -0.03, 0.02}, 0), 1e-15)
}

func TestRiskMetrics_Benchmark(t *testing.T) {
	bench := normalDraws(300, 0.0003, 0.01, 1)
	noise := normalDraws(300, 0, 0.002, 2)
	returns := make([]float64, len(bench))
	for i := range returns {
		returns[i] = 1.5*bench[i] + noise[i]
	}

	m, err := RiskMetrics(returns, MetricsOptions{Benchmark: bench})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, m.Beta, 0.1)
	assert.Greater(t, m.TrackingError, 0.0)

	self, err := RiskMetrics(bench, MetricsOptions{Benchmark: bench})
	require.NoError(t, err)
	assert.Equal(t, 0.0, self.TrackingError)
	assert.Equal(t, 0.0, self.InformationRatio)
	assert.InDelta(t, 1, self.Beta, 1e-12)

	_, err = RiskMetrics(returns, MetricsOptions{Benchmark: bench[:10]})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRiskMetrics_Degenerate(t *testing.T) {
	flat := make([]float64, 40)
	m, err := RiskMetrics(flat, MetricsOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Sharpe)
	assert.Equal(t, 0.0, m.Sortino)
	assert.Equal(t, 0.0, m.MaxDrawdown)

	_, err = RiskMetrics([]float64{0.01}, MetricsOptions{})
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestPortfolioReturns(t *testing.T) {
	out, err := PortfolioReturns([][]float64{{0.01, 0.02}, {0.03, -0.01}}, []float64{0.5, 0.5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.02, 0.005}, out, 1e-15)

	_, err = PortfolioReturns([][]float64{{0.01}, {0.03, -0.01}}, []float64{0.5, 0.5})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
