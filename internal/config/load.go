package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RISK_SERVER_PORT
const EnvPrefix = "RISK"

// Load reads defaults, then the optional YAML file at path, then RISK_*
// environment variables, and validates the result
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.StartTime = time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 45*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "logs/riskengine.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "riskengine")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.max_lifetime", time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 12*time.Hour)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.global", 1000)
	v.SetDefault("rate_limit.per_ip", 60)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("risk.default_lookback_days", 252)
	v.SetDefault("risk.default_simulations", 10000)
	v.SetDefault("risk.monte_carlo_workers", 0)
	v.SetDefault("risk.batch_size", 1000)
	v.SetDefault("risk.bootstrap_samples", 100)
	v.SetDefault("risk.risk_free_rate", 0.02)
	v.SetDefault("risk.annualization_factor", 252.0)
	v.SetDefault("risk.history_cache_ttl", 15*time.Minute)
	v.SetDefault("risk.frontier_workers", 4)
	v.SetDefault("risk.seed_symbols", []string{"AAPL", "MSFT", "GOOGL", "AMZN", "JPM", "XOM"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Output {
	case "stdout", "stderr":
	case "file":
		if c.Log.FilePath == "" {
			errs = append(errs, errors.New("log.file_path is required when log.output is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("log.output %q is not one of stdout, stderr, file", c.Log.Output))
	}
	if c.Risk.DefaultLookbackDays < 30 || c.Risk.DefaultLookbackDays > 1000 {
		errs = append(errs, fmt.Errorf("risk.default_lookback_days %d outside [30, 1000]", c.Risk.DefaultLookbackDays))
	}
	if c.Risk.DefaultSimulations < 1000 || c.Risk.DefaultSimulations > 100000 {
		errs = append(errs, fmt.Errorf("risk.default_simulations %d outside [1000, 100000]", c.Risk.DefaultSimulations))
	}
	if c.Risk.BatchSize <= 0 || c.Risk.BatchSize%2 != 0 {
		errs = append(errs, fmt.Errorf("risk.batch_size %d must be a positive even number", c.Risk.BatchSize))
	}
	if c.Risk.AnnualizationFactor <= 0 {
		errs = append(errs, errors.New("risk.annualization_factor must be positive"))
	}
	if c.RateLimit.Enabled && !c.Redis.Enabled {
		errs = append(errs, errors.New("rate_limit.enabled requires redis.enabled"))
	}
	return errors.Join(errs...)
}
