package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/toolgate/toolgate/internal/database"
	"github.com/toolgate/toolgate/internal/models"
)

const defaultRecentLimit = 100

// Store writes invocation records through sqlx. The same statements run on
// sqlite and postgres; Rebind handles the placeholder dialect.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const insertInvocation = `
INSERT INTO invocations (id, tool, runtime, transport, request_id, status, error, duration_ms, lines_out, remote_addr, created_at)
VALUES (:id, :tool, :runtime, :transport, :request_id, :status, :error, :duration_ms, :lines_out, :remote_addr, :created_at)`

func (s *Store) Record(ctx context.Context, rec *models.InvocationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, insertInvocation, rec)
	return err
}

func (s *Store) Recent(ctx context.Context, limit int) ([]models.InvocationRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultRecentLimit
	}
	query := s.db.Rebind(`
SELECT id, tool, runtime, transport, request_id, status, error, duration_ms, lines_out, remote_addr, created_at
FROM invocations
ORDER BY created_at DESC
LIMIT ?`)

	recs := []models.InvocationRecord{}
	if err := s.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
