package domain

import "fmt"

// Method is the VaR estimation method
type Method string

const (
	MethodHistorical Method = "historical"
	MethodParametric Method = "parametric"
	MethodMonteCarlo Method = "monte_carlo"
)

// ParseMethod converts a request string into a Method
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodHistorical, MethodParametric, MethodMonteCarlo:
		return m, nil
	}
	return "", NewValidationError("parse_method", fmt.Sprintf("unknown method %q", s)).
		WithConstraint("allowed", []string{"historical", "parametric", "monte_carlo"})
}

// DistributionKind names a return distribution model
type DistributionKind string

const (
	DistNormal   DistributionKind = "normal"
	DistStudentT DistributionKind = "student_t"
	DistSkewedT  DistributionKind = "skewed_t"
	DistGARCH    DistributionKind = "garch"
	DistCopula   DistributionKind = "copula"
	DistMixture  DistributionKind = "mixture"
)

// ParseDistributionKind converts a request string into a DistributionKind
func ParseDistributionKind(s string) (DistributionKind, error) {
	switch k := DistributionKind(s); k {
	case DistNormal, DistStudentT, DistSkewedT, DistGARCH, DistCopula, DistMixture:
		return k, nil
	}
	return "", NewValidationError("parse_distribution", fmt.Sprintf("unknown distribution %q", s)).
		WithConstraint("allowed", []string{"normal", "student_t", "skewed_t", "garch", "copula", "mixture"})
}

// CopulaFamily names the dependence structure of a copula
type CopulaFamily string

const (
	CopulaGaussian CopulaFamily = "gaussian"
	CopulaClayton  CopulaFamily = "clayton"
)

// ParseCopulaFamily converts a request string into a CopulaFamily
func ParseCopulaFamily(s string) (CopulaFamily, error) {
	switch f := CopulaFamily(s); f {
	case CopulaGaussian, CopulaClayton:
		return f, nil
	}
	return "", NewValidationError("parse_copula", fmt.Sprintf("unknown copula family %q", s))
}

// ScenarioType names a stress scenario
type ScenarioType string

const (
	ScenarioVolatilityShock  ScenarioType = "volatility_shock"
	ScenarioReturnShock      ScenarioType = "return_shock"
	ScenarioCorrelationShock ScenarioType = "correlation_shock"
)

// ParseScenarioType converts a request string into a ScenarioType.
// Unknown types are rejected rather than treated as a no-op.
func ParseScenarioType(s string) (ScenarioType, error) {
	switch t := ScenarioType(s); t {
	case ScenarioVolatilityShock, ScenarioReturnShock, ScenarioCorrelationShock:
		return t, nil
	}
	return "", NewValidationError("parse_scenario", fmt.Sprintf("unknown scenario type %q", s)).
		WithConstraint("allowed", []string{"volatility_shock", "return_shock", "correlation_shock"})
}

// OptimizationMethod names a portfolio construction objective
type OptimizationMethod string

const (
	OptMeanVariance    OptimizationMethod = "mean_variance"
	OptMinimumVariance OptimizationMethod = "minimum_variance"
	OptMaximumSharpe   OptimizationMethod = "maximum_sharpe"
	OptEqualWeight     OptimizationMethod = "equal_weight"
	OptRiskParity      OptimizationMethod = "risk_parity"
	OptBlackLitterman  OptimizationMethod = "black_litterman"
)

// ParseOptimizationMethod converts a request string into an OptimizationMethod
func ParseOptimizationMethod(s string) (OptimizationMethod, error) {
	switch m := OptimizationMethod(s); m {
	case OptMeanVariance, OptMinimumVariance, OptMaximumSharpe,
		OptEqualWeight, OptRiskParity, OptBlackLitterman:
		return m, nil
	}
	return "", NewValidationError("parse_optimization_method", fmt.Sprintf("unknown optimization method %q", s))
}
