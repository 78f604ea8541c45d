package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/victoralfred/riskengine/internal/config"
	"github.com/victoralfred/riskengine/internal/domain/ratelimit"
	"github.com/victoralfred/riskengine/internal/handlers"
	"github.com/victoralfred/riskengine/internal/infrastructure/memory"
	"github.com/victoralfred/riskengine/internal/metrics"
	"github.com/victoralfred/riskengine/internal/services"
)

type allowAll struct{}

func (allowAll) Check(_ context.Context, _ string, limit int, window time.Duration) (*ratelimit.RateLimitResult, error) {
	return &ratelimit.RateLimitResult{Allowed: true, Limit: limit, Remaining: limit - 1, ResetTime: time.Now().Add(window)}, nil
}

func (allowAll) Reset(context.Context, string) error { return nil }

func (a allowAll) GetStatus(ctx context.Context, key string, limit int, window time.Duration) (*ratelimit.RateLimitResult, error) {
	return a.Check(ctx, key, limit, window)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            0,
			Environment:     "test",
			Version:         "1.0.0",
			StartTime:       time.Now(),
			ShutdownTimeout: time.Second,
			RequestTimeout:  10 * time.Second,
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		RateLimit: config.RateLimitConfig{
			Enabled: true,
			Global:  100,
			PerIP:   30,
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
}

// Helper functions

func setupTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	cfg := testConfig()
	logger := zap.NewNop()

	store := memory.NewPriceStore()
	end := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SavePrices(context.Background(), memory.SyntheticPrices([]string{"AAPL", "MSFT"}, 400, end, 1)))

	reg := metrics.NewRegistry()
	svc := services.NewRiskService(store, cfg.Risk, reg, logger)

	return New(cfg, &Services{
		RiskHandler: handlers.NewRiskHandler(svc, cfg.Risk.RiskFreeRate, cfg.Server.RequestTimeout),
		DocsHandler: handlers.NewDocsHandler(cfg.Server.Version),
		Metrics:     reg,
		RateLimiter: allowAll{},
		Checks: map[string]HealthCheck{
			"store": func(context.Context) error { return nil },
		},
	}, logger)
}

func TestNewServer(t *testing.T) {
	cfg := testConfig()
	logger := zap.NewNop()
	svcs := &Services{}

	server := New(cfg, svcs, logger)

	assert.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.Equal(t, svcs, server.services)
	assert.Equal(t, logger, server.logger)

	assert.NotNil(t, New(cfg, nil, logger).services)
}

func TestServer_HealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("healthy", func(t *testing.T) {
		server := setupTestServer(t)
		server.Setup()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/health", nil)
		server.Router().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "healthy", response["status"])
		assert.Equal(t, "1.0.0", response["version"])
		assert.NotNil(t, response["uptime"])
		assert.Equal(t, map[string]any{"store": "ok"}, response["checks"])
	})

	t.Run("degraded when a dependency fails", func(t *testing.T) {
		server := New(testConfig(), &Services{Checks: map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		}}, zap.NewNop())
		server.Setup()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/health", nil)
		server.Router().ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"degraded"`)
		assert.Contains(t, w.Body.String(), `"unavailable"`)
	})
}

func TestServer_APIInfo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := setupTestServer(t)
	server.Setup()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/info", nil)
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "test", response["environment"])
	assert.Len(t, response["optimizers"], 6)
}

func TestServer_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := setupTestServer(t)
	server.Setup()

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{"GET", "/v1/docs", "", http.StatusOK},
		{"GET", "/v1/docs/swagger.json", "", http.StatusOK},
		{"POST", "/v1/risk/var", `{"target":"AAPL","method":"historical"}`, http.StatusOK},
		{"POST", "/v1/risk/portfolio-var", `{"symbols":["AAPL","MSFT"],"weights":[0.5,0.5],"method":"parametric"}`, http.StatusOK},
		{"POST", "/v1/risk/stress", `{"target":"AAPL","scenario_type":"return_shock","stress_factor":2,"method":"historical"}`, http.StatusOK},
		{"POST", "/v1/risk/backtest", `{"target":"AAPL","method":"historical","backtest_period_days":100,"lookback_days":100}`, http.StatusOK},
		{"POST", "/v1/risk/metrics", `{"symbols":["AAPL"]}`, http.StatusOK},
		{"POST", "/v1/portfolio/optimize", `{"symbols":["AAPL","MSFT"],"method":"equal_weight"}`, http.StatusOK},
		{"POST", "/v1/portfolio/frontier", `{"symbols":["AAPL","MSFT"],"num_points":5}`, http.StatusOK},
		{"POST", "/v1/risk/var", `{"target":"AAPL","method":"garch"}`, http.StatusBadRequest},
		{"GET", "/v1/risk/var", "", http.StatusNotFound},
		{"GET", "/v1/unknown", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			server.Router().ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestServer_RequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := setupTestServer(t)
	server.Setup()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/health", nil)
	req.Header.Set("X-Request-ID", "test-request-123")
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, "test-request-123", w.Header().Get("X-Request-ID"))
}

func TestServer_CORSHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := setupTestServer(t)
	server.Setup()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("OPTIONS", "/v1/risk/var", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestServer_RateLimitHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("set when enabled", func(t *testing.T) {
		server := setupTestServer(t)
		server.Setup()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/health", nil)
		server.Router().ServeHTTP(w, req)

		assert.Equal(t, "30", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("absent when disabled", func(t *testing.T) {
		server := setupTestServer(t)
		server.config.RateLimit.Enabled = false
		server.Setup()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/health", nil)
		server.Router().ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	})
}

func TestServer_MetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := setupTestServer(t)
	server.Setup()

	req, _ := http.NewRequest("POST", "/v1/risk/var", strings.NewReader(`{"target":"AAPL","method":"historical"}`))
	server.Router().ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/metrics", nil)
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "riskengine_")
	assert.Contains(t, w.Body.String(), `operation="calculate_var"`)
}

func TestServer_GracefulShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := setupTestServer(t)
	server.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
