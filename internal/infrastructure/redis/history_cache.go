package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/ports"
)

const historyKeyPrefix = "riskengine:history:"

// HistoryObserver receives cache hit/miss notifications
type HistoryObserver interface {
	ObserveHistory(source, result string)
}

// HistoryCache decorates a HistoryProvider with a Redis read-through cache.
// Cache failures degrade to the underlying provider.
type HistoryCache struct {
	client   redis.UniversalClient
	next     ports.HistoryProvider
	ttl      time.Duration
	logger   *zap.Logger
	observer HistoryObserver
}

// NewHistoryCache wraps next with a cache whose entries live for ttl
func NewHistoryCache(client redis.UniversalClient, next ports.HistoryProvider, ttl time.Duration, logger *zap.Logger) *HistoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryCache{client: client, next: next, ttl: ttl, logger: logger}
}

// WithObserver reports hits and misses to o
func (h *HistoryCache) WithObserver(o HistoryObserver) *HistoryCache {
	h.observer = o
	return h
}

func historyKey(symbol string, lookbackDays int) string {
	return fmt.Sprintf("%s%s:%d", historyKeyPrefix, symbol, lookbackDays)
}

// History returns the cached series or loads and caches it
func (h *HistoryCache) History(ctx context.Context, symbol string, lookbackDays int) (domain.ReturnSeries, error) {
	key := historyKey(symbol, lookbackDays)

	data, err := h.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var series domain.ReturnSeries
		jsonErr := json.Unmarshal(data, &series)
		if jsonErr == nil {
			h.observe("hit")
			return series, nil
		}
		h.logger.Warn("discarding undecodable history cache entry", zap.String("key", key), zap.Error(jsonErr))
	case errors.Is(err, redis.Nil):
	default:
		h.logger.Warn("history cache read failed", zap.String("key", key), zap.Error(err))
	}
	h.observe("miss")

	series, err := h.next.History(ctx, symbol, lookbackDays)
	if err != nil {
		return domain.ReturnSeries{}, err
	}

	payload, err := json.Marshal(series)
	if err != nil {
		return series, nil
	}
	if err := h.client.Set(ctx, key, payload, h.ttl).Err(); err != nil {
		h.logger.Warn("history cache write failed", zap.String("key", key), zap.Error(err))
	}
	return series, nil
}

// Invalidate drops every cached lookback for symbol
func (h *HistoryCache) Invalidate(ctx context.Context, symbol string) error {
	iter := h.client.Scan(ctx, 0, historyKeyPrefix+symbol+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan history keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := h.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete history keys: %w", err)
	}
	return nil
}

func (h *HistoryCache) observe(result string) {
	if h.observer != nil {
		h.observer.ObserveHistory("cache", result)
	}
}
