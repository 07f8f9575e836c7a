package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

// ReferenceRepository stores the latest snapshot of each generated-file
// reference, so refreshed access URLs survive between renders.
type ReferenceRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewReferenceRepository(db *sql.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ReferenceRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS generated_file_references (
	id TEXT PRIMARY KEY,
	media_type TEXT NOT NULL,
	file_values JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_generated_file_references_updated_at ON generated_file_references(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ReferenceRepository) Get(ctx context.Context, id string) (*domain.StoredReference, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, media_type, file_values
FROM generated_file_references
WHERE id = $1
`, id)

	var (
		ref       domain.StoredReference
		mediaType string
		valuesRaw []byte
	)
	if err := row.Scan(&ref.ID, &mediaType, &valuesRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrReferenceNotFound, "get reference", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan reference: %w", err)
	}
	ref.Reference.Type = domain.MediaType(mediaType)
	if err := json.Unmarshal(valuesRaw, &ref.Reference.Values); err != nil {
		return nil, fmt.Errorf("unmarshal reference values: %w", err)
	}
	return &ref, nil
}

// Save inserts the snapshot or replaces the stored one with the same ID.
func (r *ReferenceRepository) Save(ctx context.Context, ref domain.StoredReference) error {
	valuesJSON, err := json.Marshal(ref.Reference.Values)
	if err != nil {
		return fmt.Errorf("marshal reference values: %w", err)
	}

	now := r.now().UTC()
	_, err = r.db.ExecContext(ctx, `
INSERT INTO generated_file_references (id, media_type, file_values, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (id) DO UPDATE SET
	media_type = EXCLUDED.media_type,
	file_values = EXCLUDED.file_values,
	updated_at = EXCLUDED.updated_at
`, ref.ID, string(ref.Reference.Type), valuesJSON, now)
	if err != nil {
		return fmt.Errorf("upsert reference: %w", err)
	}
	return nil
}
