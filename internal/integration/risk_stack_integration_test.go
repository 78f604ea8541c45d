package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	redisModule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/victoralfred/riskengine/internal/config"
	"github.com/victoralfred/riskengine/internal/handlers"
	"github.com/victoralfred/riskengine/internal/infrastructure/memory"
	pgRepo "github.com/victoralfred/riskengine/internal/infrastructure/postgres"
	redisImpl "github.com/victoralfred/riskengine/internal/infrastructure/redis"
	"github.com/victoralfred/riskengine/internal/metrics"
	"github.com/victoralfred/riskengine/internal/server"
	"github.com/victoralfred/riskengine/internal/services"
)

var stackSymbols = []string{"AAPL", "MSFT", "JPM", "XOM"}

type IntegrationTestEnv struct {
	RedisClient  *redis.Client
	PostgresPool *pgxpool.Pool
	Metrics      *metrics.Registry
	Router       *gin.Engine
}

func TestRiskStackIntegration(t *testing.T) {
	env := setupIntegrationTestEnv(t)

	t.Run("VaRServedFromPostgresThenCache", func(t *testing.T) {
		body := `{"target":"AAPL","method":"historical","confidence_levels":[0.95,0.99],"portfolio_value":"1000000"}`

		first := env.post(t, "10.0.0.1", "/v1/risk/var", body)
		require.Equal(t, http.StatusOK, first.Code, first.Body.String())
		second := env.post(t, "10.0.0.1", "/v1/risk/var", body)
		require.Equal(t, http.StatusOK, second.Code)

		assert.Equal(t, levels(t, first), levels(t, second))

		expected := `
# HELP riskengine_history_lookups_total Return history lookups by source and result
# TYPE riskengine_history_lookups_total counter
riskengine_history_lookups_total{result="hit",source="cache"} 1
riskengine_history_lookups_total{result="miss",source="cache"} 1
`
		assert.NoError(t, testutil.GatherAndCompare(env.Metrics.Gatherer(), strings.NewReader(expected),
			"riskengine_history_lookups_total"))
	})

	t.Run("PortfolioOperations", func(t *testing.T) {
		tests := []struct {
			path string
			body string
		}{
			{"/v1/risk/portfolio-var", `{"symbols":["AAPL","MSFT","JPM","XOM"],"weights":[0.25,0.25,0.25,0.25],"method":"monte_carlo","seed":11}`},
			{"/v1/risk/stress", `{"symbols":["AAPL","JPM"],"weights":[0.6,0.4],"scenario_type":"correlation_shock","stress_factor":0.5,"method":"parametric"}`},
			{"/v1/risk/backtest", `{"target":"XOM","method":"parametric","backtest_period_days":250,"lookback_days":250}`},
			{"/v1/risk/metrics", `{"symbols":["AAPL","MSFT"],"weights":[0.7,0.3],"benchmark":"XOM"}`},
			{"/v1/portfolio/optimize", `{"symbols":["AAPL","MSFT","JPM","XOM"],"method":"risk_parity"}`},
			{"/v1/portfolio/frontier", `{"symbols":["AAPL","MSFT","JPM","XOM"],"num_points":15}`},
		}
		for i, tt := range tests {
			w := env.post(t, fmt.Sprintf("10.0.1.%d", i), tt.path, tt.body)
			assert.Equal(t, http.StatusOK, w.Code, "%s: %s", tt.path, w.Body.String())
		}
	})

	t.Run("UnknownSymbolNotAvailable", func(t *testing.T) {
		w := env.post(t, "10.0.2.1", "/v1/risk/var", `{"target":"TSLA","method":"historical"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("RateLimitedByRedis", func(t *testing.T) {
		var limited int
		for range 8 {
			w := env.post(t, "10.0.3.1", "/v1/portfolio/optimize", `{"symbols":["AAPL","MSFT"],"method":"equal_weight"}`)
			if w.Code == http.StatusTooManyRequests {
				limited++
				assert.NotEmpty(t, w.Header().Get("Retry-After"))
			}
		}
		assert.Positive(t, limited)
	})

	t.Run("HealthReportsDependencies", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/v1/health", nil)
		env.Router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"postgres":"ok"`)
		assert.Contains(t, w.Body.String(), `"redis":"ok"`)
	})
}

func (env *IntegrationTestEnv) post(t *testing.T, clientIP, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", clientIP)
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	return w
}

func levels(t *testing.T, w *httptest.ResponseRecorder) []any {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	return data["levels"].([]any)
}

func setupIntegrationTestEnv(t *testing.T) *IntegrationTestEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	gin.SetMode(gin.TestMode)

	// Start Redis container
	redisContainer, err := redisModule.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithOccurrence(1),
		),
	)
	require.NoError(t, err)

	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})

	// Start PostgreSQL container
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgRepo.Connect(ctx, dsn, 5, time.Hour)
	require.NoError(t, err)
	require.NoError(t, pgRepo.Migrate(ctx, pool))

	t.Cleanup(func() {
		pool.Close()
		_ = redisClient.Close()
		_ = postgresContainer.Terminate(context.Background())
		_ = redisContainer.Terminate(context.Background())
	})

	repo := pgRepo.NewPriceRepository(pool)
	end := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SavePrices(ctx, memory.SyntheticPrices(stackSymbols, 800, end, 42)))

	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "test", Version: "test", StartTime: time.Now(), RequestTimeout: 30 * time.Second},
		RateLimit: config.RateLimitConfig{
			Enabled: true,
			Global:  1000,
			PerIP:   15, // compute budget is per_ip/3
			Window:  time.Minute,
		},
		Risk: config.RiskConfig{
			DefaultLookbackDays: 252,
			DefaultSimulations:  10000,
			BatchSize:           1000,
			BootstrapSamples:    20,
			RiskFreeRate:        0.02,
			AnnualizationFactor: 252,
			FrontierWorkers:     2,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	logger := zap.NewNop()
	reg := metrics.NewRegistry()
	history := redisImpl.NewHistoryCache(redisClient, repo, time.Minute, logger).WithObserver(reg)
	svc := services.NewRiskService(history, cfg.Risk, reg, logger)

	srv := server.New(cfg, &server.Services{
		RiskHandler: handlers.NewRiskHandler(svc, cfg.Risk.RiskFreeRate, cfg.Server.RequestTimeout),
		DocsHandler: handlers.NewDocsHandler(cfg.Server.Version),
		Metrics:     reg,
		RateLimiter: redisImpl.NewRateLimiter(redisClient),
		Checks: map[string]server.HealthCheck{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	}, logger)
	srv.Setup()

	return &IntegrationTestEnv{
		RedisClient:  redisClient,
		PostgresPool: pool,
		Metrics:      reg,
		Router:       srv.Router(),
	}
}
