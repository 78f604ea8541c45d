package risk

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/services/stats"
)

// TradingDaysPerYear annualizes daily statistics
const TradingDaysPerYear = 252

// MetricsOptions parameterizes RiskMetrics. RiskFreeRate is annual.
type MetricsOptions struct {
	RiskFreeRate  float64
	Benchmark     []float64
	Annualization float64
}

// Sharpe is the annualized excess return per unit of annualized volatility
func Sharpe(mean, vol, riskFree, annualization float64) float64 {
	if vol == 0 {
		return 0
	}
	return (annualization*mean - riskFree) / (vol * math.Sqrt(annualization))
}

// DownsideDeviation is the root mean square of the shortfalls below target,
// averaged over the below-target observations only
func DownsideDeviation(returns []float64, target float64) float64 {
	sum, count := 0.0, 0
	for _, r := range returns {
		if r < target {
			d := r - target
			sum += d * d
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}

// RiskMetrics derives performance and tail statistics from a return series
func RiskMetrics(returns []float64, opts MetricsOptions) (domain.RiskMetrics, error) {
	const op = "risk_metrics"
	mean, vol, err := stats.MeanVol(returns)
	if err != nil {
		return domain.RiskMetrics{}, err
	}
	if err := stats.CheckFinite(op, returns); err != nil {
		return domain.RiskMetrics{}, err
	}
	ann := opts.Annualization
	if ann == 0 {
		ann = TradingDaysPerYear
	}

	m := domain.RiskMetrics{
		Observations:         len(returns),
		Mean:                 mean,
		Volatility:           vol,
		AnnualizedReturn:     mean * ann,
		AnnualizedVolatility: vol * math.Sqrt(ann),
		Sharpe:               Sharpe(mean, vol, opts.RiskFreeRate, ann),
	}

	if dd := DownsideDeviation(returns, mean); dd > 0 {
		m.Sortino = (ann*mean - opts.RiskFreeRate) / (dd * math.Sqrt(ann))
	}

	drawdowns := Drawdowns(returns)
	m.MaxDrawdown = drawdowns.MaxDrawdown
	m.MaxDrawdownDuration = drawdowns.MaxDrawdownDuration

	benchmark := opts.Benchmark
	if benchmark == nil {
		benchmark = make([]float64, len(returns))
	}
	if len(benchmark) != len(returns) {
		return domain.RiskMetrics{}, domain.NewValidationError(op, "benchmark length must match returns").
			WithDetail("returns", len(returns)).
			WithDetail("benchmark", len(benchmark))
	}
	active := make([]float64, len(returns))
	floats.SubTo(active, returns, benchmark)
	activeMean, activeStd := stat.MeanStdDev(active, nil)
	m.TrackingError = activeStd * math.Sqrt(ann)
	if activeStd > 0 {
		m.InformationRatio = activeMean * math.Sqrt(ann) / activeStd
	}
	if opts.Benchmark != nil {
		if v := stat.Variance(benchmark, nil); v > 0 {
			m.Beta = stat.Covariance(returns, benchmark, nil) / v
		}
	}

	sorted := stats.SortedCopy(returns)
	m.VaR95, m.CVaR95 = TailEstimate(sorted, 0.95)
	m.VaR99, m.CVaR99 = TailEstimate(sorted, 0.99)
	return m, nil
}

// PortfolioReturns combines aligned asset columns with weights
func PortfolioReturns(columns [][]float64, weights []float64) ([]float64, error) {
	const op = "portfolio_returns"
	if len(columns) != len(weights) || len(columns) == 0 {
		return nil, domain.NewValidationError(op, "one weight per column is required").
			WithDetail("columns", len(columns)).
			WithDetail("weights", len(weights))
	}
	out := make([]float64, len(columns[0]))
	for i, col := range columns {
		if len(col) != len(out) {
			return nil, domain.NewValidationError(op, "columns must have equal length").WithDetail("column", i)
		}
		floats.AddScaled(out, weights[i], col)
	}
	return out, nil
}
