package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/retry"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Executor is satisfied by both *pgxpool.Pool and pgx.Tx so store methods
// can run inside or outside a transaction.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Client wraps a PostgreSQL connection pool.
type Client struct {
	Logger    *zap.Logger
	Pool      *pgxpool.Pool
	Component string
}

// New connects to the PostgreSQL database configured via urlEnv. The
// component name only shows up in logs. Connection attempts are retried
// with backoff.
func New(ctx context.Context, logger *zap.Logger, urlEnv, component string) (*Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbURL := utils.Env(urlEnv, "postgres://localhost:5432/postgres")
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", urlEnv, err)
	}

	// Each component holds its own small exclusive pool for its lifetime.
	config.MinConns = 1
	config.MaxConns = int32(utils.EnvInt("POSTGRES_MAX_CONNS", 5))
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	client := &Client{Logger: logger, Component: component}
	err = retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, component+"_pg_connection", func() error {
		pool, err := pgxpool.NewWithConfig(connCtx, config)
		if err != nil {
			return fmt.Errorf("create pool: %w", err)
		}
		if err := pool.Ping(connCtx); err != nil {
			pool.Close()
			return fmt.Errorf("ping postgres: %w", err)
		}
		client.Pool = pool
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("PostgreSQL connection established",
		zap.String("component", component),
		zap.String("database", config.ConnConfig.Database),
		zap.String("host", config.ConnConfig.Host))
	return client, nil
}

// Begin starts a transaction.
func (c *Client) Begin(ctx context.Context) (pgx.Tx, error) {
	return c.Pool.Begin(ctx)
}

// Close releases the pool.
func (c *Client) Close() {
	c.Pool.Close()
}
