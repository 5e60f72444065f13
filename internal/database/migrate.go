package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"

	// File source driver for reading migration files from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/glassyams/ams/internal/config"
)

// migrateLogger routes golang-migrate's progress lines into slog.
type migrateLogger struct {
	verbose bool
}

func (l migrateLogger) Printf(format string, v ...any) {
	slog.Debug("migrate: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool { return l.verbose }

// RunMigrations brings the schema up to the newest file under cfg.Path.
// A dirty version left by a failed run is reported rather than retried:
// it needs a manual look before anything else touches the schema.
func RunMigrations(db *sql.DB, cfg config.MigrationsConfig) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{MigrationsTable: cfg.Table})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.Path, "mysql", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	m.Log = migrateLogger{verbose: slog.Default().Enabled(context.Background(), slog.LevelDebug)}

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return fmt.Errorf("reading schema version: %w", err)
	case dirty:
		return fmt.Errorf("schema version %d is dirty; fix it and force the version before starting", from)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("schema up to date", slog.Uint64("version", uint64(from)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	to, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	slog.Info("schema migrated",
		slog.Uint64("from", uint64(from)),
		slog.Uint64("to", uint64(to)),
		slog.String("table", cfg.Table),
	)
	return nil
}
