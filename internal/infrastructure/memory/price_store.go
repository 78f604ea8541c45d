// Package memory is an in-process price store used in development mode and tests.
package memory

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/services/sampling"
	"github.com/victoralfred/riskengine/internal/core/services/stats"
)

// PriceStore keeps closes per symbol in ascending time order
type PriceStore struct {
	mu     sync.RWMutex
	prices map[string][]domain.PricePoint
}

// NewPriceStore creates an empty store
func NewPriceStore() *PriceStore {
	return &PriceStore{prices: make(map[string][]domain.PricePoint)}
}

// SavePrices upserts closes keyed by symbol and timestamp
func (s *PriceStore) SavePrices(_ context.Context, prices []domain.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]struct{})
	for _, p := range prices {
		p.Timestamp = p.Timestamp.UTC()
		existing := s.prices[p.Symbol]
		replaced := false
		for i := range existing {
			if existing[i].Timestamp.Equal(p.Timestamp) {
				existing[i].Close = p.Close
				replaced = true
				break
			}
		}
		if !replaced {
			s.prices[p.Symbol] = append(existing, p)
		}
		touched[p.Symbol] = struct{}{}
	}
	for sym := range touched {
		pts := s.prices[sym]
		sort.Slice(pts, func(i, j int) bool { return pts[i].Timestamp.Before(pts[j].Timestamp) })
	}
	return nil
}

// Prices returns up to limit most recent closes at or after since, oldest first
func (s *PriceStore) Prices(_ context.Context, symbol string, since time.Time, limit int) ([]domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pts := s.prices[symbol]
	start := sort.Search(len(pts), func(i int) bool { return !pts[i].Timestamp.Before(since) })
	window := pts[start:]
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}
	return append([]domain.PricePoint(nil), window...), nil
}

// History returns up to lookbackDays simple returns from the latest closes
func (s *PriceStore) History(ctx context.Context, symbol string, lookbackDays int) (domain.ReturnSeries, error) {
	prices, err := s.Prices(ctx, symbol, time.Time{}, lookbackDays+1)
	if err != nil {
		return domain.ReturnSeries{}, err
	}
	if len(prices) == 0 {
		return domain.ReturnSeries{}, domain.NewNotAvailableError("price_history", symbol)
	}
	if len(prices) < 2 {
		return domain.ReturnSeries{Symbol: symbol}, nil
	}
	return stats.ReturnsFromPrices(symbol, prices)
}

// SyntheticPrices generates days business-day closes ending at end. Every
// symbol shares one market factor so the series are correlated; drift and
// volatility are derived from the symbol name so output is reproducible.
func SyntheticPrices(symbols []string, days int, end time.Time, seed uint64) []domain.PricePoint {
	dates := businessDays(days, end)
	market := sampling.NewGenerator(seed, 0)
	factor := make([]float64, len(dates))
	for i := range factor {
		factor[i] = market.Normal()
	}

	out := make([]domain.PricePoint, 0, len(symbols)*len(dates))
	for _, sym := range symbols {
		h := fnv.New64a()
		_, _ = h.Write([]byte(sym))
		key := h.Sum64()

		// daily drift in [0, 0.0008), vol in [0.008, 0.028), beta in [0.4, 1.2)
		drift := float64(key%800) / 1e6
		vol := 0.008 + float64((key>>10)%200)/1e4
		beta := 0.4 + float64((key>>20)%80)/100
		idio := sampling.NewGenerator(seed, key|1)

		price := 50 + float64((key>>30)%450)
		for i, d := range dates {
			if i > 0 {
				z := (beta*factor[i] + idio.Normal()) / math.Sqrt(1+beta*beta)
				price *= math.Exp(drift - 0.5*vol*vol + vol*z)
			}
			out = append(out, domain.PricePoint{Symbol: sym, Timestamp: d, Close: price})
		}
	}
	return out
}

func businessDays(n int, end time.Time) []time.Time {
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, 0, n)
	for d := end; len(dates) < n; d = d.AddDate(0, 0, -1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		dates = append(dates, d)
	}
	for i, j := 0, len(dates)-1; i < j; i, j = i+1, j-1 {
		dates[i], dates[j] = dates[j], dates[i]
	}
	return dates
}
