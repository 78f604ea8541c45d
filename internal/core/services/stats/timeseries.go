// Package stats holds the time-series statistics primitives shared by the
// VaR engines, the optimizers and the metrics calculator.
package stats

import (
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// rankEpsilon absorbs representation error in (1-c)*n, e.g. (1-0.95)*20.
const rankEpsilon = 1e-9

// SimpleReturns converts closing prices into simple returns (p_i - p_{i-1}) / p_{i-1}
func SimpleReturns(prices []float64) ([]float64, error) {
	const op = "simple_returns"
	if len(prices) < 2 {
		return nil, domain.NewInsufficientDataError(op, 2, len(prices))
	}
	for i, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return nil, domain.NewValidationError(op, "prices must be finite and positive").
				WithDetail("index", i).WithDetail("price", p)
		}
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
	}
	return returns, nil
}

// ReturnsFromPrices builds a return series from timestamped closes. Each return
// carries the timestamp of the later close.
func ReturnsFromPrices(symbol string, prices []domain.PricePoint) (domain.ReturnSeries, error) {
	const op = "returns_from_prices"
	for i := 1; i < len(prices); i++ {
		if !prices[i].Timestamp.After(prices[i-1].Timestamp) {
			return domain.ReturnSeries{}, domain.NewValidationError(op, "price timestamps must be strictly increasing").
				WithDetail("symbol", symbol).WithDetail("index", i)
		}
	}
	closes := make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.Close
	}
	returns, err := SimpleReturns(closes)
	if err != nil {
		return domain.ReturnSeries{}, err
	}
	points := make([]domain.ReturnPoint, len(returns))
	for i, r := range returns {
		points[i] = domain.ReturnPoint{Timestamp: prices[i+1].Timestamp, Return: r}
	}
	return domain.ReturnSeries{Symbol: symbol, Points: points}, nil
}

// CheckFinite rejects NaN and infinite observations
func CheckFinite(op string, x []float64) error {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.NewValidationError(op, "series contains a non-finite value").WithDetail("index", i)
		}
	}
	return nil
}

// Mean returns the sample mean
func Mean(x []float64) (float64, error) {
	if len(x) == 0 {
		return 0, domain.NewInsufficientDataError("mean", 1, 0)
	}
	return stat.Mean(x, nil), nil
}

// Variance returns the unbiased (n-1) sample variance
func Variance(x []float64) (float64, error) {
	if len(x) < 2 {
		return 0, domain.NewInsufficientDataError("variance", 2, len(x))
	}
	return stat.Variance(x, nil), nil
}

// Volatility returns the sample standard deviation
func Volatility(x []float64) (float64, error) {
	v, err := Variance(x)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

// MeanVol returns the sample mean and standard deviation in one pass
func MeanVol(x []float64) (mean, vol float64, err error) {
	if len(x) < 2 {
		return 0, 0, domain.NewInsufficientDataError("mean_vol", 2, len(x))
	}
	mean, vol = stat.MeanStdDev(x, nil)
	return mean, vol, nil
}

// Skewness returns the sample skewness, 0 for fewer than 3 observations
func Skewness(x []float64) float64 {
	if len(x) < 3 {
		return 0
	}
	s := stat.Skew(x, nil)
	if math.IsNaN(s) {
		return 0
	}
	return s
}

// ExcessKurtosis returns the sample excess kurtosis, 0 for fewer than 4 observations
func ExcessKurtosis(x []float64) float64 {
	if len(x) < 4 {
		return 0
	}
	k := stat.ExKurtosis(x, nil)
	if math.IsNaN(k) {
		return 0
	}
	return k
}

// NearestRankIndex returns the zero-based index of the nearest-rank lower-tail
// quantile at tail probability 1-confidence: rank = ceil((1-c)*n), clamped to [1, n].
func NearestRankIndex(n int, confidence float64) int {
	rank := int(math.Ceil((1-confidence)*float64(n) - rankEpsilon))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return rank - 1
}

// SortedCopy returns an ascending copy of x
func SortedCopy(x []float64) []float64 {
	out := slices.Clone(x)
	slices.Sort(out)
	return out
}

// Quantile returns the nearest-rank lower-tail quantile of x at confidence c
func Quantile(x []float64, confidence float64) (float64, error) {
	if len(x) == 0 {
		return 0, domain.NewInsufficientDataError("quantile", 1, 0)
	}
	if err := domain.ValidateConfidence(confidence); err != nil {
		return 0, err
	}
	sorted := SortedCopy(x)
	return sorted[NearestRankIndex(len(sorted), confidence)], nil
}

// Percentile returns the empirical p-quantile of an ascending slice
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Align restricts every series to the timestamps present in all of them,
// preserving order.
func Align(series []domain.ReturnSeries) []domain.ReturnSeries {
	if len(series) == 0 {
		return nil
	}
	counts := make(map[time.Time]int)
	for _, s := range series {
		for _, p := range s.Points {
			counts[p.Timestamp]++
		}
	}
	out := make([]domain.ReturnSeries, len(series))
	for i, s := range series {
		points := make([]domain.ReturnPoint, 0, len(s.Points))
		for _, p := range s.Points {
			if counts[p.Timestamp] == len(series) {
				points = append(points, p)
			}
		}
		out[i] = domain.ReturnSeries{Symbol: s.Symbol, Points: points}
	}
	return out
}

// CovarianceMatrix computes the sample covariance of aligned series. Series
// must share an identical date index.
func CovarianceMatrix(series []domain.ReturnSeries) (*mat.SymDense, error) {
	const op = "covariance_matrix"
	if len(series) == 0 {
		return nil, domain.NewValidationError(op, "at least one series is required")
	}
	ref := series[0]
	for _, s := range series[1:] {
		if s.Len() != ref.Len() {
			return nil, domain.NewValidationError(op, "series lengths differ").
				WithDetail("symbol", s.Symbol).
				WithDetail("length", s.Len()).
				WithConstraint("expected_length", ref.Len())
		}
		for i := range s.Points {
			if !s.Points[i].Timestamp.Equal(ref.Points[i].Timestamp) {
				return nil, domain.NewValidationError(op, "series dates differ").
					WithDetail("symbol", s.Symbol).WithDetail("index", i)
			}
		}
	}
	columns := make([][]float64, len(series))
	for i, s := range series {
		columns[i] = s.Values()
	}
	return CovarianceFromColumns(columns)
}

// CovarianceFromColumns computes the sample covariance of equal-length columns
func CovarianceFromColumns(columns [][]float64) (*mat.SymDense, error) {
	const op = "covariance_matrix"
	n := len(columns)
	if n == 0 {
		return nil, domain.NewValidationError(op, "at least one column is required")
	}
	t := len(columns[0])
	if t < 2 {
		return nil, domain.NewInsufficientDataError(op, 2, t)
	}
	data := mat.NewDense(t, n, nil)
	for j, col := range columns {
		if len(col) != t {
			return nil, domain.NewValidationError(op, "columns must have equal length").WithDetail("column", j)
		}
		if err := CheckFinite(op, col); err != nil {
			return nil, err
		}
		data.SetCol(j, col)
	}
	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, data, nil)
	return cov, nil
}

// Means returns the mean of each column
func Means(columns [][]float64) []float64 {
	out := make([]float64, len(columns))
	for i, col := range columns {
		if len(col) > 0 {
			out[i] = stat.Mean(col, nil)
		}
	}
	return out
}

// CorrelationFromCovariance rescales a covariance matrix to unit diagonal.
// Zero-variance rows get a unit diagonal and zero off-diagonals.
func CorrelationFromCovariance(cov mat.Symmetric) *mat.SymDense {
	n := cov.SymmetricDim()
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if i == j {
				corr.SetSym(i, i, 1)
				continue
			}
			d := math.Sqrt(cov.At(i, i) * cov.At(j, j))
			if d == 0 {
				continue
			}
			corr.SetSym(i, j, cov.At(i, j)/d)
		}
	}
	return corr
}
