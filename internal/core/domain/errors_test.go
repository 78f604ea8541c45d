package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskError_KindMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     ErrorKind
	}{
		{"validation", NewValidationError("op", "bad input"), ErrValidation, KindValidation},
		{"insufficient data", NewInsufficientDataError("historical_var", 2, 1), ErrInsufficientData, KindInsufficientData},
		{"numerical", NewNumericalError("cholesky", "not positive definite"), ErrNumerical, KindNumerical},
		{"unsupported", NewUnsupportedDistributionError("parametric_var", MethodParametric, DistGARCH), ErrUnsupportedDistribution, KindUnsupportedDistribution},
		{"cancelled", NewCancelledError("monte_carlo", context.Canceled), ErrCancelled, KindCancelled},
		{"not available", NewNotAvailableError("history", "AAPL"), ErrNotAvailable, KindNotAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.kind, KindOf(tt.err))

			wrapped := fmt.Errorf("service layer: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.Equal(t, tt.kind, KindOf(wrapped))
		})
	}

	assert.False(t, errors.Is(NewValidationError("op", "x"), ErrNumerical))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestRiskError_Builders(t *testing.T) {
	err := NewInsufficientDataError("covariance", 2, 1).
		WithDiagnostic("condition_number", 1e13)

	assert.Equal(t, 2, err.Constraints["min_observations"])
	assert.Equal(t, 1, err.Details["provided_observations"])
	assert.Equal(t, 1e13, err.Diagnostics["condition_number"])
	assert.Contains(t, err.Error(), "INSUFFICIENT_DATA")
	assert.Contains(t, err.Error(), "covariance")
}

func TestRiskError_UnwrapsCause(t *testing.T) {
	err := NewCancelledError("frontier", context.DeadlineExceeded)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "deadline exceeded")
}

func TestParseEnums(t *testing.T) {
	m, err := ParseMethod("monte_carlo")
	require.NoError(t, err)
	assert.Equal(t, MethodMonteCarlo, m)

	_, err = ParseMethod("bootstrap")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseScenarioType("liquidity_shock")
	assert.ErrorIs(t, err, ErrValidation)

	k, err := ParseDistributionKind("skewed_t")
	require.NoError(t, err)
	assert.Equal(t, DistSkewedT, k)

	_, err = ParseOptimizationMethod("kelly")
	assert.ErrorIs(t, err, ErrValidation)
}
