// Package persistence wraps the pgx connection pool used by the pipeline.
// One pool is shared by all upserts and reporting queries within a run;
// Reconnect replaces it wholesale after a connection loss.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spapi-finances-pipeline/internal/config"
)

// Querier supports database operations for both pool and transactions
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DB extends Querier with the ability to open a transaction. Repositories
// depend on this so tests can substitute a mock pool.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ensure interfaces are satisfied (compile-time check)
var _ DB = (*pgxpool.Pool)(nil)
var _ Querier = (pgx.Tx)(nil)

type PostgresDB struct {
	pool   *pgxpool.Pool
	cfg    *config.PostgresConfig
	logger *slog.Logger
}

func NewPostgresDB(ctx context.Context, logger *slog.Logger, cfg *config.PostgresConfig) (*PostgresDB, error) {
	err := RunMigrations(cfg.URL, cfg.MigrationsPath)
	if err != nil {
		return nil, err
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to PostgreSQL")

	return &PostgresDB{
		pool:   pool,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func newPool(ctx context.Context, cfg *config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return pool, nil
}

func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *PostgresDB) Close() {
	db.pool.Close()
	db.logger.Info("Closed PostgreSQL connection")
}

// Reconnect discards the current pool and establishes a fresh one. Callers
// must re-issue whatever operation was in flight when the connection died;
// the conflict-ignore upsert protocol makes that replay safe.
func (db *PostgresDB) Reconnect(ctx context.Context) error {
	db.pool.Close()

	pool, err := newPool(ctx, db.cfg)
	if err != nil {
		return fmt.Errorf("failed to reconnect to PostgreSQL: %w", err)
	}

	db.pool = pool
	db.logger.Info("Reconnected to PostgreSQL")
	return nil
}

// IsConnectionLoss reports whether err looks like a lost or unusable server
// connection rather than a statement-level failure. Duplicate-key and other
// SQL errors must not be classified here: they have SQLSTATE codes and the
// caller handles them as ordinary errors.
func IsConnectionLoss(err error) bool {
	if err == nil {
		return false
	}

	// Context errors satisfy net.Error but reflect the caller's deadline,
	// not the connection's health; reconnecting would not help.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 - connection exceptions raised by the server
		return strings.HasPrefix(pgErr.Code, "08")
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// pgconn reports writes on a dead connection with a plain error
	return strings.Contains(err.Error(), "conn closed")
}
