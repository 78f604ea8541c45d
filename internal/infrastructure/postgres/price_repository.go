package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victoralfred/riskengine/internal/core/domain"
	"github.com/victoralfred/riskengine/internal/core/services/stats"
)

// PriceRepository implements ports.PriceStore with PostgreSQL
type PriceRepository struct {
	db *pgxpool.Pool
}

// NewPriceRepository creates a new PostgreSQL price repository
func NewPriceRepository(db *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{
		db: db,
	}
}

// Connect opens a pool and verifies the connection
func Connect(ctx context.Context, dsn string, maxConns int32, maxLifetime time.Duration) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	if maxLifetime > 0 {
		poolConfig.MaxConnLifetime = maxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the price table and its indexes
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	query := `
	CREATE TABLE IF NOT EXISTS price_history (
		symbol VARCHAR(32) NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		close DOUBLE PRECISION NOT NULL CHECK (close > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (symbol, ts)
	)`
	if _, err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create price_history table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_price_history_symbol_ts_desc ON price_history(symbol, ts DESC)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// SavePrices upserts closing prices in one batch
func (r *PriceRepository) SavePrices(ctx context.Context, prices []domain.PricePoint) error {
	if len(prices) == 0 {
		return nil
	}
	query := `
		INSERT INTO price_history (symbol, ts, close)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, ts) DO UPDATE SET close = EXCLUDED.close`

	batch := &pgx.Batch{}
	for _, p := range prices {
		batch.Queue(query, p.Symbol, p.Timestamp.UTC(), p.Close)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save prices: %w", err)
	}
	return nil
}

// Prices returns up to limit most recent closes at or after since, oldest first
func (r *PriceRepository) Prices(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.PricePoint, error) {
	query := `
		SELECT symbol, ts, close FROM (
			SELECT symbol, ts, close
			FROM price_history
			WHERE symbol = $1 AND ts >= $2
			ORDER BY ts DESC
			LIMIT $3
		) recent
		ORDER BY ts ASC`

	rows, err := r.db.Query(ctx, query, symbol, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var out []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Symbol, &p.Timestamp, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prices: %w", err)
	}
	return out, nil
}

// History returns up to lookbackDays simple returns from the latest closes
func (r *PriceRepository) History(ctx context.Context, symbol string, lookbackDays int) (domain.ReturnSeries, error) {
	prices, err := r.Prices(ctx, symbol, time.Time{}, lookbackDays+1)
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
