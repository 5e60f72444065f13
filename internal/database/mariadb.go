// Package database owns the MariaDB pool, the Redis client behind the
// session store, schema migrations and the transaction helper repositories
// share. Connections are opened once in main and injected everywhere else.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/glassyams/ams/internal/config"
)

// NewMariaDB opens the pool described by cfg and waits until the server
// answers. Sessions run in UTC (see config.DatabaseConfig.DSN); the pool
// check at the end refuses a server that ignored the time_zone parameter.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN()
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing mariadb dsn: %w", err)
	}
	connector, err := mysql.NewConnector(parsed)
	if err != nil {
		return nil, fmt.Errorf("creating mariadb connector: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := waitReady(ctx, "mariadb", cfg.ConnectRetries, db.PingContext); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := checkUTC(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	slog.Info("mariadb pool ready",
		slog.String("addr", parsed.Addr),
		slog.String("database", parsed.DBName),
		slog.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return db, nil
}

// checkUTC verifies the session clock is UTC. Lockout expiry and password
// age are written from Go in UTC and compared against server timestamps.
func checkUTC(ctx context.Context, db *sql.DB) error {
	var offset int
	err := db.QueryRowContext(ctx,
		`SELECT TIMESTAMPDIFF(MINUTE, UTC_TIMESTAMP(), NOW())`).Scan(&offset)
	if err != nil {
		return fmt.Errorf("checking mariadb session time zone: %w", err)
	}
	if offset != 0 {
		return fmt.Errorf("mariadb session time zone is %d minutes off UTC; pass time_zone='+00:00' in DATABASE_URL", offset)
	}
	return nil
}

// waitReady pings until ping succeeds or attempts run out, doubling the
// pause between tries up to a cap. Containers for MariaDB and Redis often
// come up after the app on a cold start.
func waitReady(ctx context.Context, name string, attempts int, ping func(context.Context) error) error {
	backoff := time.Second
	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		slog.Warn(name+" not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", name, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
	return fmt.Errorf("pinging %s after %d attempts: %w", name, attempts, err)
}
