package domain

import (
	"math"
	"time"
)

// PricePoint is a closing price observation
type PricePoint struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`
}

// ReturnPoint is a single simple return
type ReturnPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Return    float64   `json:"return"`
}

// ReturnSeries is an ordered sequence of simple returns for one symbol
type ReturnSeries struct {
	Symbol string        `json:"symbol"`
	Points []ReturnPoint `json:"points"`
}

// Len returns the number of observations
func (s ReturnSeries) Len() int { return len(s.Points) }

// Values returns the returns without timestamps
func (s ReturnSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Return
	}
	return out
}

// Tail returns the last n points, or the whole series when shorter
func (s ReturnSeries) Tail(n int) ReturnSeries {
	if n >= len(s.Points) || n < 0 {
		return s
	}
	return ReturnSeries{Symbol: s.Symbol, Points: s.Points[len(s.Points)-n:]}
}

// Validate enforces strictly increasing timestamps and finite values
func (s ReturnSeries) Validate() error {
	for i, p := range s.Points {
		if math.IsNaN(p.Return) || math.IsInf(p.Return, 0) {
			return NewValidationError("validate_series", "return series contains a non-finite value").
				WithDetail("symbol", s.Symbol).WithDetail("index", i)
		}
		if i > 0 && !p.Timestamp.After(s.Points[i-1].Timestamp) {
			return NewValidationError("validate_series", "return timestamps must be strictly increasing").
				WithDetail("symbol", s.Symbol).WithDetail("index", i)
		}
	}
	return nil
}
