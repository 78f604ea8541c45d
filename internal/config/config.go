package config

import (
	"fmt"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Logging
	Log LogConfig `mapstructure:"log"`

	// Stores
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`

	// CORS settings
	CORS CORSConfig `mapstructure:"cors"`

	// Rate limiting
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Engine defaults
	Risk RiskConfig `mapstructure:"risk"`

	// Metrics
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	Version         string        `mapstructure:"version"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	StartTime       time.Time     `mapstructure:"-"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	Output     string `mapstructure:"output"` // stdout, stderr or file
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig holds PostgreSQL settings. Disabled means the in-memory store.
type DatabaseConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	Name        string        `mapstructure:"name"`
	SSLMode     string        `mapstructure:"ssl_mode"`
	MaxConns    int32         `mapstructure:"max_conns"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DSN returns the pgx connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig holds Redis settings for the history cache and rate limiter
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Global  int           `mapstructure:"global"` // requests per window
	PerIP   int           `mapstructure:"per_ip"`
	Window  time.Duration `mapstructure:"window"`
}

// RiskConfig holds calculation defaults applied when a request leaves them unset
type RiskConfig struct {
	DefaultLookbackDays int           `mapstructure:"default_lookback_days"`
	DefaultSimulations  int           `mapstructure:"default_simulations"`
	MonteCarloWorkers   int           `mapstructure:"monte_carlo_workers"`
	BatchSize           int           `mapstructure:"batch_size"`
	BootstrapSamples    int           `mapstructure:"bootstrap_samples"`
	RiskFreeRate        float64       `mapstructure:"risk_free_rate"` // annual
	AnnualizationFactor float64       `mapstructure:"annualization_factor"`
	HistoryCacheTTL     time.Duration `mapstructure:"history_cache_ttl"`
	FrontierWorkers     int           `mapstructure:"frontier_workers"`
	SeedSymbols         []string      `mapstructure:"seed_symbols"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}
