// Package database wires pgxpool and layers a retrying, serialization-
// failure-aware transaction helper over it. assignDriver and
// completeRide (internal/rides) are the two call sites that need this
// the most: both run as serializable transactions that can legitimately
// lose a race and must be retried rather than surfaced as an error.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/richxcame/ride-hailing/internal/platform/config"
	"github.com/richxcame/ride-hailing/internal/platform/resilience"
)

// NewPostgresPool opens a pgxpool configured from cfg and verifies
// connectivity with a bounded ping.
func NewPostgresPool(cfg *config.DatabaseConfig, queryTimeoutSeconds int) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(queryTimeoutSeconds)*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Close releases the pool's connections.
func Close(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

// Migrate applies every pending migration under migrationsPath (a
// "file://" source URL) to databaseURL. ErrNoChange is swallowed since a
// freshly-migrated database is not a failure.
func Migrate(migrationsPath, databaseURL string) error {
	m, err := migrate.New(migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

type beginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// RetryableTransaction runs fn inside a serializable pgx transaction, retrying the
// whole transaction on a serialization failure, deadlock, or other
// transient Postgres error. fn's error is returned unmodified if it is
// not retryable.
func RetryableTransaction(ctx context.Context, pool beginner, fn func(pgx.Tx) error) error {
	cfg := resilience.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
		RetryableChecker:  isPostgresRetryable,
	}

	_, err := resilience.RetryWithName(ctx, cfg, func(ctx context.Context) (interface{}, error) {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE"); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}

		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}, "database.transaction")

	return err
}

func isPostgresRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"53000", // insufficient_resources
			"53300", // too_many_connections
			"53400", // configuration_limit_exceeded
			"08000", "08003", "08006", // connection_exception
			"57P01", "57P02", "57P03", // shutdown / cannot connect
			"58000", // system_error
			"XX000": // internal_error
			return true
		case "53100", "53200": // disk_full, out_of_memory
			return false
		}
		if strings.HasPrefix(string(pgErr.Code), "23") || // integrity constraint
			strings.HasPrefix(string(pgErr.Code), "22") || // data exception
			strings.HasPrefix(string(pgErr.Code), "42") { // syntax/access rule
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection refused", "connection reset", "broken pipe",
		"no such host", "network is unreachable", "temporary failure",
		"timeout", "too many connections", "server closed", "unexpected eof",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}

	return false
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505) — used to detect the idempotent duplicate
// DriverEarning insert on a completeRide retry.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
