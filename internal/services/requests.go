package services

import (
	"github.com/shopspring/decimal"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// Default request values applied when a field is left at its zero value
const (
	DefaultHorizonDays        = 1
	DefaultBacktestPeriodDays = 250
	DefaultBacktestConfidence = 0.99
)

// DefaultConfidenceLevels are used when a request names none
var DefaultConfidenceLevels = []float64{0.95, 0.99}

// VaRRequest asks for VaR/CVaR of a single symbol. Params pins the
// distribution parameters; when nil they are fitted from history.
type VaRRequest struct {
	Target           string
	Method           domain.Method
	Distribution     domain.DistributionKind
	Params           domain.Distribution
	ConfidenceLevels []float64
	LookbackDays     int
	SimulationCount  int
	TimeHorizonDays  int
	Seed             *uint64
	Antithetic       bool
	ControlVariate   bool
	QuasiRandom      bool
	Bootstrap        bool
	PortfolioValue   *decimal.Decimal
}

// PortfolioVaRRequest asks for VaR/CVaR of a weighted basket
type PortfolioVaRRequest struct {
	Symbols          []string
	Weights          []float64
	Method           domain.Method
	Distribution     domain.DistributionKind
	Params           domain.Distribution
	ConfidenceLevels []float64
	LookbackDays     int
	SimulationCount  int
	TimeHorizonDays  int
	Seed             *uint64
	Antithetic       bool
	ControlVariate   bool
	QuasiRandom      bool
	PortfolioValue   *decimal.Decimal
}

// StressRequest re-runs a VaR calculation under a scenario. Symbols and
// Weights select a portfolio stress instead of the single Target.
type StressRequest struct {
	Target           string
	Symbols          []string
	Weights          []float64
	ScenarioName     string
	ScenarioType     domain.ScenarioType
	StressFactor     float64
	Method           domain.Method
	Distribution     domain.DistributionKind
	Params           domain.Distribution
	ConfidenceLevels []float64
	LookbackDays     int
	SimulationCount  int
	TimeHorizonDays  int
	Seed             *uint64
}

// BacktestRequest evaluates a rolling one-day VaR forecast against realized
// returns. LookbackDays is the estimation window preceding each forecast.
type BacktestRequest struct {
	Target             string
	Method             domain.Method
	Distribution       domain.DistributionKind
	ConfidenceLevel    float64
	BacktestPeriodDays int
	LookbackDays       int
	SimulationCount    int
	Seed               *uint64
	Significance       float64
}

// OptimizeRequest asks for an optimized allocation. Nil Constraints means
// long-only, fully invested with the configured risk-free rate.
type OptimizeRequest struct {
	Symbols      []string
	Method       domain.OptimizationMethod
	Constraints  *domain.Constraints
	LookbackDays int
	Views        *domain.Views
}

// FrontierRequest asks for the efficient frontier
type FrontierRequest struct {
	Symbols      []string
	NumPoints    int
	Constraints  *domain.Constraints
	LookbackDays int
}

// MetricsRequest asks for risk metrics of a symbol or weighted basket,
// optionally relative to a benchmark symbol.
type MetricsRequest struct {
	Symbols      []string
	Weights      []float64
	Benchmark    string
	LookbackDays int
}
