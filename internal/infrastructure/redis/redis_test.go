package redis_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	redisModule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/victoralfred/riskengine/internal/core/domain"
	redisImpl "github.com/victoralfred/riskengine/internal/infrastructure/redis"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := redisModule.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithOccurrence(1),
		),
	)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, port.Port()),
	})
	t.Cleanup(func() {
		_ = client.Close()
		_ = container.Terminate(context.Background())
	})
	return client
}

type countingProvider struct {
	mu     sync.Mutex
	calls  int
	series domain.ReturnSeries
	err    error
}

func (p *countingProvider) History(_ context.Context, symbol string, _ int) (domain.ReturnSeries, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return domain.ReturnSeries{}, p.err
	}
	s := p.series
	s.Symbol = symbol
	return s, nil
}

type recordingObserver struct {
	results []string
}

func (o *recordingObserver) ObserveHistory(_, result string) {
	o.results = append(o.results, result)
}

func TestRedisIntegration(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("RateLimiterAllowsUnderLimit", func(t *testing.T) {
		limiter := redisImpl.NewRateLimiter(client)
		for i := 0; i < 3; i++ {
			res, err := limiter.Check(ctx, "under", 5, time.Minute)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 5-i-1, res.Remaining)
		}
	})

	t.Run("RateLimiterBlocksOverLimit", func(t *testing.T) {
		limiter := redisImpl.NewRateLimiter(client)
		for i := 0; i < 3; i++ {
			res, err := limiter.Check(ctx, "over", 3, time.Minute)
			require.NoError(t, err)
			require.True(t, res.Allowed)
		}
		res, err := limiter.Check(ctx, "over", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.Greater(t, res.RetryAfter, time.Duration(0))

		status, err := limiter.GetStatus(ctx, "over", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, status.Allowed)

		require.NoError(t, limiter.Reset(ctx, "over"))
		status, err = limiter.GetStatus(ctx, "over", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, status.Allowed)
		assert.Equal(t, 3, status.Remaining)
	})

	t.Run("RateLimiterSlidingWindow", func(t *testing.T) {
		limiter := redisImpl.NewRateLimiter(client)
		window := 150 * time.Millisecond
		for i := 0; i < 2; i++ {
			res, err := limiter.Check(ctx, "slide", 2, window)
			require.NoError(t, err)
			require.True(t, res.Allowed)
		}
		res, err := limiter.Check(ctx, "slide", 2, window)
		require.NoError(t, err)
		assert.False(t, res.Allowed)

		time.Sleep(200 * time.Millisecond)
		res, err = limiter.Check(ctx, "slide", 2, window)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("RateLimiterConcurrentAdmissions", func(t *testing.T) {
		limiter := redisImpl.NewRateLimiter(client)
		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := limiter.Check(ctx, "concurrent", 10, time.Minute)
				if err == nil && res.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 10, allowed)
	})

	t.Run("HistoryCacheReadThrough", func(t *testing.T) {
		day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		inner := &countingProvider{series: domain.ReturnSeries{Points: []domain.ReturnPoint{
			{Timestamp: day, Return: 0.01},
			{Timestamp: day.AddDate(0, 0, 1), Return: -0.02},
		}}}
		obs := &recordingObserver{}
		cache := redisImpl.NewHistoryCache(client, inner, time.Minute, nil).WithObserver(obs)

		first, err := cache.History(ctx, "AAA", 30)
		require.NoError(t, err)
		second, err := cache.History(ctx, "AAA", 30)
		require.NoError(t, err)

		assert.Equal(t, 1, inner.calls)
		assert.Equal(t, first.Values(), second.Values())
		assert.True(t, first.Points[1].Timestamp.Equal(second.Points[1].Timestamp))
		assert.Equal(t, []string{"miss", "hit"}, obs.results)

		_, err = cache.History(ctx, "AAA", 60)
		require.NoError(t, err)
		assert.Equal(t, 2, inner.calls)

		require.NoError(t, cache.Invalidate(ctx, "AAA"))
		_, err = cache.History(ctx, "AAA", 30)
		require.NoError(t, err)
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("HistoryCacheDoesNotStoreErrors", func(t *testing.T) {
		inner := &countingProvider{err: domain.NewNotAvailableError("price_history", "ZZZ")}
		cache := redisImpl.NewHistoryCache(client, inner, time.Minute, nil)

		_, err := cache.History(ctx, "ZZZ", 30)
		assert.ErrorIs(t, err, domain.ErrNotAvailable)
		_, err = cache.History(ctx, "ZZZ", 30)
		assert.ErrorIs(t, err, domain.ErrNotAvailable)
		assert.Equal(t, 2, inner.calls)
	})

	t.Run("HistoryCacheExpires", func(t *testing.T) {
		inner := &countingProvider{}
		cache := redisImpl.NewHistoryCache(client, inner, 100*time.Millisecond, nil)
		_, err := cache.History(ctx, "EXP", 30)
		require.NoError(t, err)
		time.Sleep(250 * time.Millisecond)
		_, err = cache.History(ctx, "EXP", 30)
		require.NoError(t, err)
		assert.Equal(t, 2, inner.calls)
	})
}

func TestHistoryCache_DegradesWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	inner := &countingProvider{series: domain.ReturnSeries{}}
	cache := redisImpl.NewHistoryCache(client, inner, time.Minute, nil)
	_, err := cache.History(context.Background(), "AAA", 30)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	inner.err = errors.New("store down")
	_, err = cache.History(context.Background(), "AAA", 30)
	assert.EqualError(t, err, "store down")
}
