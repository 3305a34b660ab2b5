// Package audit persists one record per tool invocation. The trail answers
// "what ran, when, for whom, and how did it end" after the fact; it is not
// in the request path for anything else.
package audit

import (
	"context"
	"fmt"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/database"
	"github.com/toolgate/toolgate/internal/models"
)

// Recorder accepts finished invocation records and serves recent history.
type Recorder interface {
	Record(ctx context.Context, rec *models.InvocationRecord) error
	Recent(ctx context.Context, limit int) ([]models.InvocationRecord, error)
	Close() error
}

// Open builds the Recorder for the configured driver. Driver "none"
// disables persistence entirely.
func Open(cfg config.AuditConfig) (Recorder, error) {
	if cfg.Driver == "none" {
		return Noop{}, nil
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit store: %w", err)
	}
	return NewStore(db), nil
}

// Noop drops records. Used when auditing is disabled.
type Noop struct{}

func (Noop) Record(context.Context, *models.InvocationRecord) error { return nil }

func (Noop) Recent(context.Context, int) ([]models.InvocationRecord, error) {
	return []models.InvocationRecord{}, nil
}

func (Noop) Close() error { return nil }
