package domain

import (
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BootstrapBounds is a resampled confidence band around a VaR/CVaR estimate
type BootstrapBounds struct {
	VaRLower  float64 `json:"var_lower"`
	VaRUpper  float64 `json:"var_upper"`
	CVaRLower float64 `json:"cvar_lower"`
	CVaRUpper float64 `json:"cvar_upper"`
	Samples   int     `json:"samples"`
}

// LevelEstimate holds VaR and CVaR at one confidence level. Losses are positive.
type LevelEstimate struct {
	Confidence float64          `json:"confidence"`
	VaR        float64          `json:"var"`
	CVaR       float64          `json:"cvar"`
	VaRAmount  *decimal.Decimal `json:"var_amount,omitempty"`
	CVaRAmount *decimal.Decimal `json:"cvar_amount,omitempty"`
	Bounds     *BootstrapBounds `json:"bounds,omitempty"`
}

// VaRResult is the outcome of a VaR/CVaR calculation
type VaRResult struct {
	ID           uuid.UUID          `json:"id"`
	Method       Method             `json:"method"`
	Distribution DistributionKind   `json:"distribution,omitempty"`
	HorizonDays  int                `json:"horizon_days"`
	Observations int                `json:"observations"`
	Seed         *uint64            `json:"seed,omitempty"`
	Levels       []LevelEstimate    `json:"levels"`
	Diagnostics  map[string]float64 `json:"diagnostics,omitempty"`
}

// Level returns the estimate at confidence c
func (r VaRResult) Level(c float64) (LevelEstimate, bool) {
	for _, l := range r.Levels {
		if math.Abs(l.Confidence-c) < 1e-12 {
			return l, true
		}
	}
	return LevelEstimate{}, false
}

// WithAmounts converts the loss fractions into currency amounts for a position value
func (r VaRResult) WithAmounts(value decimal.Decimal) VaRResult {
	levels := make([]LevelEstimate, len(r.Levels))
	for i, l := range r.Levels {
		v := value.Mul(decimal.NewFromFloat(l.VaR)).Round(2)
		cv := value.Mul(decimal.NewFromFloat(l.CVaR)).Round(2)
		l.VaRAmount = &v
		l.CVaRAmount = &cv
		levels[i] = l
	}
	r.Levels = levels
	return r
}

// AssetContribution decomposes portfolio VaR by asset
type AssetContribution struct {
	Symbol        string  `json:"symbol"`
	Weight        float64 `json:"weight"`
	StandaloneVaR float64 `json:"standalone_var"`
	ComponentVaR  float64 `json:"component_var"`
	Percent       float64 `json:"percent"`
}

// PortfolioVaRResult is a portfolio VaR with per-asset contributions at the
// first requested confidence level
type PortfolioVaRResult struct {
	VaRResult
	Symbols       []string            `json:"symbols"`
	Weights       []float64           `json:"weights"`
	Contributions []AssetContribution `json:"contributions"`
}

// StressScenario is a named stress applied to distribution parameters
type StressScenario struct {
	Name   string       `json:"name"`
	Type   ScenarioType `json:"type"`
	Factor float64      `json:"factor"`
}

// LevelDelta compares baseline and stressed estimates at one confidence level
type LevelDelta struct {
	Confidence float64 `json:"confidence"`
	VaRDelta   float64 `json:"var_delta"`
	CVaRDelta  float64 `json:"cvar_delta"`
	VaRRatio   float64 `json:"var_ratio"`
}

// StressResult is a baseline-versus-stressed comparison. Applied is false when
// the scenario found no parameter to act on.
type StressResult struct {
	Scenario StressScenario `json:"scenario"`
	Applied  bool           `json:"applied"`
	Baseline VaRResult      `json:"baseline"`
	Stressed VaRResult      `json:"stressed"`
	Deltas   []LevelDelta   `json:"deltas"`
}

// TestResult is a likelihood-ratio test outcome
type TestResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	Passed    bool    `json:"passed"`
}

// BacktestResult summarizes VaR violations and coverage tests
type BacktestResult struct {
	Confidence          float64    `json:"confidence"`
	Observations        int        `json:"observations"`
	Violations          int        `json:"violations"`
	ViolationRate       float64    `json:"violation_rate"`
	ExpectedRate        float64    `json:"expected_rate"`
	Kupiec              TestResult `json:"kupiec"`
	Christoffersen      TestResult `json:"christoffersen"`
	ConditionalCoverage TestResult `json:"conditional_coverage"`
}

// Constraints bound portfolio weights and parameterize objectives
type Constraints struct {
	MinWeight    float64 `json:"min_weight"`
	MaxWeight    float64 `json:"max_weight"`
	RiskFreeRate float64 `json:"risk_free_rate"`
	RiskAversion float64 `json:"risk_aversion"`
}

// DefaultConstraints is long-only and fully invested
func DefaultConstraints() Constraints {
	return Constraints{MinWeight: 0, MaxWeight: 1, RiskAversion: 1}
}

// Views are Black-Litterman investor views
type Views struct {
	P             [][]float64 `json:"p"`
	Q             []float64   `json:"q"`
	Omega         [][]float64 `json:"omega,omitempty"`
	Tau           float64     `json:"tau,omitempty"`
	Delta         float64     `json:"delta,omitempty"`
	MarketWeights []float64   `json:"market_weights,omitempty"`
}

// OptimizationResult is an optimized allocation
type OptimizationResult struct {
	Method               OptimizationMethod `json:"method"`
	Symbols              []string           `json:"symbols,omitempty"`
	Weights              []float64          `json:"weights"`
	ExpectedReturn       float64            `json:"expected_return"`
	ExpectedVolatility   float64            `json:"expected_volatility"`
	Sharpe               float64            `json:"sharpe"`
	RiskContributions    []float64          `json:"risk_contributions"`
	DiversificationRatio float64            `json:"diversification_ratio"`
	ConcentrationRatio   float64            `json:"concentration_ratio"`
	Iterations           int                `json:"iterations"`
	Converged            bool               `json:"converged"`
	PosteriorReturns     []float64          `json:"posterior_returns,omitempty"`
	Metadata             map[string]float64 `json:"metadata,omitempty"`
}

// Frontier point tags
const (
	TagMinVolatility = "min_volatility"
	TagMaxSharpe     = "max_sharpe"
	TagMaxReturn     = "max_return"
)

// FrontierPoint is one efficient portfolio
type FrontierPoint struct {
	ExpectedReturn     float64   `json:"expected_return"`
	ExpectedVolatility float64   `json:"expected_volatility"`
	Weights            []float64 `json:"weights"`
	Sharpe             float64   `json:"sharpe"`
	Tags               []string  `json:"tags,omitempty"`
}

// Frontier is the efficient frontier ordered by ascending volatility. The
// anchor fields index into Points.
type Frontier struct {
	Symbols       []string        `json:"symbols,omitempty"`
	Points        []FrontierPoint `json:"points"`
	MinVolatility int             `json:"min_volatility"`
	MaxSharpe     int             `json:"max_sharpe"`
	MaxReturn     int             `json:"max_return"`
}

// RiskMetrics are derived performance and risk statistics
type RiskMetrics struct {
	Observations         int     `json:"observations"`
	Mean                 float64 `json:"mean"`
	Volatility           float64 `json:"volatility"`
	AnnualizedReturn     float64 `json:"annualized_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	Sharpe               float64 `json:"sharpe"`
	Sortino              float64 `json:"sortino"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	MaxDrawdownDuration  int     `json:"max_drawdown_duration"`
	InformationRatio     float64 `json:"information_ratio"`
	TrackingError        float64 `json:"tracking_error"`
	Beta                 float64 `json:"beta"`
	VaR95                float64 `json:"var_95"`
	VaR99                float64 `json:"var_99"`
	CVaR95               float64 `json:"cvar_95"`
	CVaR99               float64 `json:"cvar_99"`
}
