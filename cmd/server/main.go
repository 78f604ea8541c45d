package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/victoralfred/riskengine/internal/config"
	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/ports"
	"github.com/victoralfred/riskengine/internal/domain/ratelimit"
	"github.com/victoralfred/riskengine/internal/handlers"
	"github.com/victoralfred/riskengine/internal/infrastructure/memory"
	"github.com/victoralfred/riskengine/internal/infrastructure/postgres"
	"github.com/victoralfred/riskengine/internal/infrastructure/redis"
	"github.com/victoralfred/riskengine/internal/logging"
	"github.com/victoralfred/riskengine/internal/metrics"
	"github.com/victoralfred/riskengine/internal/server"
	"github.com/victoralfred/riskengine/internal/services"
)

// seedDays is roughly eight years of business days
const (
	seedDays = 2200
	seedRNG  = 20240101
)

type priceStore interface {
	ports.HistoryProvider
	SavePrices(ctx context.Context, prices []domain.PricePoint) error
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting Risk Engine Server...",
		zap.String("version", cfg.Server.Version),
		zap.String("environment", cfg.Server.Environment),
	)

	ctx := context.Background()
	checks := map[string]server.HealthCheck{}

	var store priceStore
	if cfg.Database.Enabled {
		pool, err := postgres.Connect(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MaxLifetime)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		logger.Info("Running database migrations...")
		if err := postgres.Migrate(ctx, pool); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		store = postgres.NewPriceRepository(pool)
		checks["postgres"] = pool.Ping
		logger.Info("Connected to database successfully")
	} else {
		store = memory.NewPriceStore()
		logger.Info("Using in-memory price store")
	}

	if err := seed(ctx, store, cfg.Risk.SeedSymbols, logger); err != nil {
		logger.Fatal("Failed to seed price history", zap.Error(err))
	}

	reg := metrics.NewRegistry()

	var history ports.HistoryProvider = store
	var limiter ratelimit.RateLimiter
	if cfg.Redis.Enabled {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			_ = client.Close()
		}()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, cache and rate limiter will degrade", zap.Error(err))
		}
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }

		history = redis.NewHistoryCache(client, store, cfg.Risk.HistoryCacheTTL, logger).WithObserver(reg)
		limiter = redis.NewRateLimiter(client)
	} else if cfg.RateLimit.Enabled {
		logger.Warn("Rate limiting requires redis; requests will not be limited")
	}

	riskService := services.NewRiskService(history, cfg.Risk, reg, logger)

	srv := server.New(cfg, &server.Services{
		RiskHandler: handlers.NewRiskHandler(riskService, cfg.Risk.RiskFreeRate, cfg.Server.RequestTimeout),
		DocsHandler: handlers.NewDocsHandler(cfg.Server.Version),
		Metrics:     reg,
		RateLimiter: limiter,
		Checks:      checks,
	}, logger)
	srv.Setup()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// seed loads synthetic closes for symbols that have no history yet
func seed(ctx context.Context, store priceStore, symbols []string, logger *zap.Logger) error {
	var missing []string
	for _, symbol := range symbols {
		_, err := store.History(ctx, symbol, domain.MinLookbackDays)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotAvailable):
			missing = append(missing, symbol)
		default:
			return err
		}
	}
	if len(missing) == 0 {
		return nil
	}

	prices := memory.SyntheticPrices(missing, seedDays, time.Now().UTC().Truncate(24*time.Hour), seedRNG)
	if err := store.SavePrices(ctx, prices); err != nil {
		return err
	}
	logger.Info("Seeded synthetic price history",
		zap.Strings("symbols", missing),
		zap.Int("days", seedDays),
	)
	return nil
}
