package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded schema for dialect. The migrate driver
// closes the database it is given, so it gets a connection of its own.
func RunMigrations(dialect Dialect, dsn string) error {
	migrateDB, err := sql.Open(driverName(dialect), dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	var (
		m       *migrate.Migrate
		srcPath = "migrations/" + string(dialect)
	)
	d, err := iofs.New(migrationsFS, srcPath)
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	switch dialect {
	case SQLite:
		driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
		if err != nil {
			return fmt.Errorf("create sqlite driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", d, "sqlite", driver)
		if err != nil {
			return fmt.Errorf("create migrate instance: %w", err)
		}
	case Postgres:
		driver, err := migratepgx.WithInstance(migrateDB, &migratepgx.Config{})
		if err != nil {
			return fmt.Errorf("create postgres driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", d, "pgx5", driver)
		if err != nil {
			return fmt.Errorf("create migrate instance: %w", err)
		}
	default:
		return fmt.Errorf("unsupported dialect: %s", dialect)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
