package domain

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes failures of risk and optimization operations
type ErrorKind string

const (
	KindValidation              ErrorKind = "VALIDATION"
	KindInsufficientData        ErrorKind = "INSUFFICIENT_DATA"
	KindNumerical               ErrorKind = "NUMERICAL"
	KindUnsupportedDistribution ErrorKind = "UNSUPPORTED_DISTRIBUTION"
	KindCancelled               ErrorKind = "CANCELLED"
	KindNotAvailable            ErrorKind = "NOT_AVAILABLE"
)

// Sentinels for errors.Is matching on the error kind.
var (
	ErrValidation              = &RiskError{Kind: KindValidation}
	ErrInsufficientData        = &RiskError{Kind: KindInsufficientData}
	ErrNumerical               = &RiskError{Kind: KindNumerical}
	ErrUnsupportedDistribution = &RiskError{Kind: KindUnsupportedDistribution}
	ErrCancelled               = &RiskError{Kind: KindCancelled}
	ErrNotAvailable            = &RiskError{Kind: KindNotAvailable}
)

// RiskError is the error type returned by every core operation.
// Diagnostics carries numerical detail (condition numbers, residuals) that callers
// may log but must not depend on.
type RiskError struct {
	Kind        ErrorKind          `json:"kind"`
	Message     string             `json:"message"`
	Operation   string             `json:"operation,omitempty"`
	Details     map[string]any     `json:"details,omitempty"`
	Constraints map[string]any     `json:"constraints,omitempty"`
	Diagnostics map[string]float64 `json:"diagnostics,omitempty"`
	Cause       error              `json:"-"`
}

// NewRiskError creates a RiskError of the given kind
func NewRiskError(kind ErrorKind, operation, message string) *RiskError {
	return &RiskError{
		Kind:      kind,
		Message:   message,
		Operation: operation,
	}
}

// Error implements the error interface
func (re *RiskError) Error() string {
	msg := fmt.Sprintf("%s: %s", re.Kind, re.Message)
	if re.Operation != "" {
		msg += fmt.Sprintf(" (operation: %s)", re.Operation)
	}
	if re.Cause != nil {
		msg += ": " + re.Cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause
func (re *RiskError) Unwrap() error {
	return re.Cause
}

// Is reports whether target is a RiskError of the same kind. A target with a
// message only matches an identical message.
func (re *RiskError) Is(target error) bool {
	t, ok := target.(*RiskError)
	if !ok {
		return false
	}
	if t.Message != "" && t.Message != re.Message {
		return false
	}
	return t.Kind == re.Kind
}

// WithDetail records the offending input value
func (re *RiskError) WithDetail(key string, value any) *RiskError {
	if re.Details == nil {
		re.Details = make(map[string]any)
	}
	re.Details[key] = value
	return re
}

// WithConstraint records the violated constraint
func (re *RiskError) WithConstraint(key string, value any) *RiskError {
	if re.Constraints == nil {
		re.Constraints = make(map[string]any)
	}
	re.Constraints[key] = value
	return re
}

// WithDiagnostic attaches numerical diagnostics
func (re *RiskError) WithDiagnostic(key string, value float64) *RiskError {
	if re.Diagnostics == nil {
		re.Diagnostics = make(map[string]float64)
	}
	re.Diagnostics[key] = value
	return re
}

// WithCause wraps an underlying error
func (re *RiskError) WithCause(cause error) *RiskError {
	re.Cause = cause
	return re
}

// KindOf extracts the error kind, returning "" for foreign errors.
func KindOf(err error) ErrorKind {
	var re *RiskError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// Convenience constructors

// NewValidationError creates an error for malformed or out-of-range input
func NewValidationError(operation, message string) *RiskError {
	return NewRiskError(KindValidation, operation, message)
}

// NewInsufficientDataError creates an error for series shorter than required
func NewInsufficientDataError(operation string, required, provided int) *RiskError {
	return NewRiskError(KindInsufficientData, operation,
		fmt.Sprintf("insufficient data for %s", operation)).
		WithConstraint("min_observations", required).
		WithDetail("provided_observations", provided)
}

// NewNumericalError creates an error for numerical failures
func NewNumericalError(operation, message string) *RiskError {
	return NewRiskError(KindNumerical, operation, message)
}

// NewUnsupportedDistributionError creates an error for unimplemented method/distribution pairs
func NewUnsupportedDistributionError(operation string, method Method, dist DistributionKind) *RiskError {
	return NewRiskError(KindUnsupportedDistribution, operation,
		fmt.Sprintf("distribution %q is not supported by method %q", dist, method)).
		WithDetail("method", string(method)).
		WithDetail("distribution", string(dist))
}

// NewCancelledError creates an error for a cancelled computation
func NewCancelledError(operation string, cause error) *RiskError {
	return NewRiskError(KindCancelled, operation, "operation cancelled").WithCause(cause)
}

// NewNotAvailableError creates an error for missing history
func NewNotAvailableError(operation, symbol string) *RiskError {
	return NewRiskError(KindNotAvailable, operation,
		fmt.Sprintf("history not available for %s", symbol)).
		WithDetail("symbol", symbol)
}
