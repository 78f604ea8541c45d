package risk

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// DefaultSignificance is the test size used when none is given
const DefaultSignificance = 0.05

// xlny is x·ln(y) with 0·ln(0) = 0
func xlny(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}

func chiSquareTest(statistic, dof, significance float64) domain.TestResult {
	statistic = math.Max(statistic, 0)
	p := 1 - distuv.ChiSquared{K: dof}.CDF(statistic)
	return domain.TestResult{Statistic: statistic, PValue: p, Passed: p > significance}
}

// KupiecStatistic is the proportion-of-failures likelihood ratio for x
// violations in t periods at expected rate p
func KupiecStatistic(t, x int, p float64) float64 {
	if t == 0 {
		return 0
	}
	n, v := float64(t), float64(x)
	observed := v / n
	null := xlny(n-v, 1-p) + xlny(v, p)
	alt := xlny(n-v, 1-observed) + xlny(v, observed)
	return math.Max(-2*(null-alt), 0)
}

// ChristoffersenStatistic is the independence likelihood ratio over the
// first-order transitions of the violation indicator sequence
func ChristoffersenStatistic(hits []bool) float64 {
	if len(hits) < 2 {
		return 0
	}
	var n00, n01, n10, n11 float64
	for i := 1; i < len(hits); i++ {
		switch {
		case !hits[i-1] && !hits[i]:
			n00++
		case !hits[i-1] && hits[i]:
			n01++
		case hits[i-1] && !hits[i]:
			n10++
		default:
			n11++
		}
	}
	total := n00 + n01 + n10 + n11
	pi := (n01 + n11) / total
	var pi01, pi11 float64
	if n00+n01 > 0 {
		pi01 = n01 / (n00 + n01)
	}
	if n10+n11 > 0 {
		pi11 = n11 / (n10 + n11)
	}
	null := xlny(n00+n10, 1-pi) + xlny(n01+n11, pi)
	alt := xlny(n00, 1-pi01) + xlny(n01, pi01) + xlny(n10, 1-pi11) + xlny(n11, pi11)
	return math.Max(-2*(null-alt), 0)
}

// Backtest compares realized returns with the VaR forecast for each period.
// A violation is a return below -VaR.
func Backtest(realized, forecasts []float64, confidence, significance float64) (domain.BacktestResult, error) {
	const op = "backtest"
	if len(realized) != len(forecasts) {
		return domain.BacktestResult{}, domain.NewValidationError(op, "realized and forecast series must have equal length").
			WithDetail("realized", len(realized)).
			WithDetail("forecasts", len(forecasts))
	}
	if err := domain.ValidateConfidence(confidence); err != nil {
		return domain.BacktestResult{}, err
	}
	if significance == 0 {
		significance = DefaultSignificance
	}
	if significance <= 0 || significance >= 1 {
		return domain.BacktestResult{}, domain.NewValidationError(op, "significance must lie in (0, 1)").
			WithDetail("significance", significance)
	}

	hits := make([]bool, len(realized))
	violations := 0
	for i, r := range realized {
		if math.IsNaN(r) || math.IsInf(r, 0) || math.IsNaN(forecasts[i]) || math.IsInf(forecasts[i], 0) {
			return domain.BacktestResult{}, domain.NewValidationError(op, "series contain a non-finite value").
				WithDetail("index", i)
		}
		if r < -forecasts[i] {
			hits[i] = true
			violations++
		}
	}

	expected := 1 - confidence
	result := domain.BacktestResult{
		Confidence:   confidence,
		Observations: len(realized),
		Violations:   violations,
		ExpectedRate: expected,
	}
	if len(realized) > 0 {
		result.ViolationRate = float64(violations) / float64(len(realized))
	}

	pof := KupiecStatistic(len(realized), violations, expected)
	ind := ChristoffersenStatistic(hits)
	result.Kupiec = chiSquareTest(pof, 1, significance)
	result.Christoffersen = chiSquareTest(ind, 1, significance)
	result.ConditionalCoverage = chiSquareTest(pof+ind, 2, significance)
	return result, nil
}
