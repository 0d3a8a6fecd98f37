package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kumo/internal/telemetry"
)

// Retry policy for transient Postgres conflicts on writes.
const (
	pgMaxRetries = 3
	pgRetryBase  = 20 * time.Millisecond
)

// Postgres is the PostgreSQL KV backend. It wraps a pgxpool.Pool and stores
// entries in the kv table created by the embedded migrations.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ KV = (*Postgres)(nil)

// NewPostgres connects to dsn and verifies the connection.
// Call RunMigrations before first use.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &Postgres{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool.
func (db *Postgres) Pool() *pgxpool.Pool {
	return db.pool
}

// Backend implements KV.
func (db *Postgres) Backend() string { return "postgres" }

// Put implements KV.
func (db *Postgres) Put(ctx context.Context, key string, value []byte) error {
	err := WithRetry(ctx, pgMaxRetries, pgRetryBase, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO kv (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			key, value)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

// Get implements KV.
func (db *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.pool.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return value, nil
}

// Scan implements KV.
func (db *Postgres) Scan(ctx context.Context, start, end string, limit int) ([]Entry, error) {
	query := `SELECT key, value FROM kv WHERE key >= $1 AND key < $2 ORDER BY key`
	args := []any{start, end}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: scan [%s, %s): %w", start, end, err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.Key, &e.Value)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan [%s, %s): %w", start, end, err)
	}
	return entries, nil
}

// Delete implements KV.
func (db *Postgres) Delete(ctx context.Context, key string) error {
	err := WithRetry(ctx, pgMaxRetries, pgRetryBase, func() error {
		_, err := db.pool.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// DeleteRange implements KV.
func (db *Postgres) DeleteRange(ctx context.Context, start, end string) (int64, error) {
	var n int64
	err := WithRetry(ctx, pgMaxRetries, pgRetryBase, func() error {
		tag, err := db.pool.Exec(ctx, `DELETE FROM kv WHERE key >= $1 AND key < $2`, start, end)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: delete [%s, %s): %w", start, end, err)
	}
	return n, nil
}

// Ping checks connectivity to the database.
func (db *Postgres) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *Postgres) Close(_ context.Context) {
	db.pool.Close()
}

// RegisterPoolMetrics exposes pool saturation as OTEL gauges.
// Call after telemetry.Init so the global meter provider is set.
func (db *Postgres) RegisterPoolMetrics() {
	meter := telemetry.Meter("kumo/storage")

	_, _ = meter.Int64ObservableGauge("kumo.db.pool.acquired",
		metric.WithDescription("Connections currently checked out of the pool"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(db.pool.Stat().AcquiredConns()))
			return nil
		}),
	)
	_, _ = meter.Int64ObservableGauge("kumo.db.pool.total",
		metric.WithDescription("Total connections held by the pool"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(db.pool.Stat().TotalConns()))
			return nil
		}),
	)
}
