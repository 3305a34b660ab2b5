package database

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the audit schema up to date on the open connection. The
// migration SQL is written to run on both supported drivers.
func (db *DB) Migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	var driver database.Driver
	switch db.Driver {
	case "postgres":
		driver, err = postgres.WithInstance(db.DB.DB, &postgres.Config{})
	case "sqlite":
		driver, err = sqlite.WithInstance(db.DB.DB, &sqlite.Config{})
	default:
		return fmt.Errorf("unsupported audit driver: %s", db.Driver)
	}
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	// The migrate instance shares our connection; closing it would close
	// the pool, so it is left open on purpose.
	m, err := migrate.NewWithInstance("iofs", source, db.Driver, driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
