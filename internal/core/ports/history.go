package ports

import (
	"context"
	"time"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// HistoryProvider supplies return history for a symbol. Implementations return
// an error matching domain.ErrNotAvailable when the symbol is unknown.
type HistoryProvider interface {
	History(ctx context.Context, symbol string, lookbackDays int) (domain.ReturnSeries, error)
}

// PriceStore persists closing prices
type PriceStore interface {
	HistoryProvider

	// SavePrices upserts closing prices keyed by symbol and timestamp
	SavePrices(ctx context.Context, prices []domain.PricePoint) error

	// Prices returns the most recent closes in ascending time order
	Prices(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.PricePoint, error)
}
