package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // cgo-free sqlite driver

	"github.com/toolgate/toolgate/internal/config"
)

// DB wraps the audit store connection.
type DB struct {
	*sqlx.DB
	Driver string
}

func init() {
	// sqlx does not know the modernc driver name out of the box.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Connect opens the audit database for the configured driver. sqlite keeps
// single-binary deployments self-contained; postgres serves shared setups.
func Connect(cfg config.AuditConfig) (*DB, error) {
	switch cfg.Driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported audit driver: %s", cfg.Driver)
	}

	db, err := sqlx.Connect(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "postgres" {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	} else {
		// WAL allows concurrent readers; writes serialize inside SQLite.
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	return &DB{DB: db, Driver: cfg.Driver}, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}
