package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending up migration on the connection pool.
// The migrate instance is not closed because its database driver would
// close the shared pool along with it.
func (p *Postgres) Migrate(logger *slog.Logger) error {
	if p == nil || p.DB == nil {
		return errors.New("postgres is not connected")
	}
	if logger == nil {
		logger = slog.Default()
	}

	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("resolve postgres sql db handle: %w", err)
	}
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	defer source.Close()

	driver, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{
		MigrationsTable: "board_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("init migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema already current",
				"event", "db_migrate_noop",
				"module", "platform/db",
				"layer", "platform",
			)
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("schema migrated",
		"event", "db_migrate_applied",
		"module", "platform/db",
		"layer", "platform",
		"version", version,
		"dirty", dirty,
	)
	return nil
}
