package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/victoralfred/riskengine/internal/config"
	"github.com/victoralfred/riskengine/internal/domain/ratelimit"
	"github.com/victoralfred/riskengine/internal/handlers"
	"github.com/victoralfred/riskengine/internal/logging"
	"github.com/victoralfred/riskengine/internal/metrics"
	"github.com/victoralfred/riskengine/internal/middleware"
)

// slowRequestThreshold marks requests logged at warn level
const slowRequestThreshold = 2 * time.Second

// Server interface
type Server interface {
	Setup()
	Start(ctx context.Context) error
	Router() *gin.Engine
}

// HealthCheck checks one dependency
type HealthCheck func(ctx context.Context) error

// HTTPServer implements the Server interface
type HTTPServer struct {
	router   *gin.Engine
	config   *config.Config
	logger   *zap.Logger
	services *Services
}

// Services holds the handlers and optional infrastructure the router wires in
type Services struct {
	RiskHandler *handlers.RiskHandler
	DocsHandler *handlers.DocsHandler

	Metrics     *metrics.Registry
	RateLimiter ratelimit.RateLimiter

	// Checks are reported by /v1/health, keyed by dependency name
	Checks map[string]HealthCheck
}

// New creates a new server instance
func New(cfg *config.Config, svcs *Services, logger *zap.Logger) *HTTPServer {
	if svcs == nil {
		svcs = &Services{}
	}
	return &HTTPServer{
		config:   cfg,
		services: svcs,
		logger:   logger,
	}
}

// Setup initializes the router
func (s *HTTPServer) Setup() {
	if s.config.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()
}

func (s *HTTPServer) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(logging.GinLogger(s.logger, slowRequestThreshold))

	if s.services.Metrics != nil {
		s.router.Use(s.services.Metrics.Middleware())
	}

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", logging.RequestIDHeader},
		ExposeHeaders:    []string{logging.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           s.config.CORS.MaxAge,
	}
	if len(s.config.CORS.AllowedOrigins) == 0 || (len(s.config.CORS.AllowedOrigins) == 1 && s.config.CORS.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = s.config.CORS.AllowedOrigins
	}
	s.router.Use(cors.New(corsConfig))

	if s.config.RateLimit.Enabled && s.services.RateLimiter != nil {
		s.router.Use(middleware.RedisRateLimit(s.services.RateLimiter, ratelimit.FromConfig(s.config.RateLimit), s.logger))
	}
}

func (s *HTTPServer) setupRoutes() {
	v1 := s.router.Group("/v1")

	v1.GET("/health", s.healthCheck)
	v1.GET("/info", s.apiInfo)

	if s.services.DocsHandler != nil {
		v1.GET("/docs/swagger.json", s.services.DocsHandler.GetSwaggerJSON)
		v1.GET("/docs", s.services.DocsHandler.GetSwaggerUI)
	}

	if h := s.services.RiskHandler; h != nil {
		risk := v1.Group("/risk")
		{
			risk.POST("/var", h.CalculateVaR)
			risk.POST("/portfolio-var", h.CalculatePortfolioVaR)
			risk.POST("/stress", h.StressTest)
			risk.POST("/backtest", h.Backtest)
			risk.POST("/metrics", h.RiskMetrics)
		}

		portfolio := v1.Group("/portfolio")
		{
			portfolio.POST("/optimize", h.OptimizePortfolio)
			portfolio.POST("/frontier", h.EfficientFrontier)
		}
	}

	if s.config.Metrics.Enabled && s.services.Metrics != nil {
		path := s.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.services.Metrics.Handler()))
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.Response{Error: &handlers.ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "route not found",
		}})
	})
}

func (s *HTTPServer) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.services.Checks))
	for name := range s.services.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "healthy", http.StatusOK
	checks := make(gin.H, len(names))
	for _, name := range names {
		if err := s.services.Checks[name](ctx); err != nil {
			logging.FromContext(c.Request.Context(), s.logger).
				Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   s.config.Server.Version,
		"uptime":    time.Since(s.config.Server.StartTime).Seconds(),
		"checks":    checks,
	})
}

func (s *HTTPServer) apiInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":       s.config.Server.Version,
		"environment":   s.config.Server.Environment,
		"documentation": "/v1/docs",
		"methods":       []string{"historical", "parametric", "monte_carlo"},
		"distributions": []string{"normal", "student_t", "skewed_t", "garch", "copula", "mixture"},
		"optimizers": []string{
			"mean_variance", "minimum_variance", "maximum_sharpe", "equal_weight", "risk_parity", "black_litterman",
		},
	})
}

// Start serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests within the shutdown timeout
func (s *HTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server",
			zap.Int("port", s.config.Server.Port),
			zap.String("environment", s.config.Server.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("Server exited")
	return nil
}

// Router returns the gin router for testing
func (s *HTTPServer) Router() *gin.Engine {
	return s.router
}
