package ingestion

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanIngestion reads one job row. result and error stay NULL until the worker
// reports back, so both go through nullable intermediaries.
func scanIngestion(row rowScanner) (Ingestion, error) {
	var job Ingestion
	var result []byte
	var errText sql.NullString
	if err := row.Scan(&job.ID, &job.DocumentID, &job.Status, &result, &errText, &job.TriggeredBy, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return Ingestion{}, err
	}
	job.Result = result
	job.Error = errText.String

	return job, nil
}

func (r *Repository) Create(ctx context.Context, documentID, triggeredBy uuid.UUID) (Ingestion, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Ingestion{}, fmt.Errorf("generate ingestion id: %w", err)
	}

	now := time.Now().UTC()

	job, err := scanIngestion(r.db.QueryRowContext(ctx, `
		INSERT INTO ingestions (id, document_id, status, triggered_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, document_id, status, result, error, triggered_by, created_at, updated_at
	`, id.String(), documentID, StatusPending, triggeredBy, now))
	if err != nil {
		return Ingestion{}, fmt.Errorf("insert ingestion: %w", err)
	}

	return job, nil
}

func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, isAdmin bool) ([]Ingestion, error) {
	query := `
		SELECT id, document_id, status, result, error, triggered_by, created_at, updated_at
		FROM ingestions
	`
	args := []any{}
	if !isAdmin {
		query += ` WHERE triggered_by = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ingestions: %w", err)
	}
	defer rows.Close()

	var jobs []Ingestion
	for rows.Next() {
		job, err := scanIngestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ingestion row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingestion rows: %w", err)
	}

	return jobs, nil
}

func (r *Repository) GetForUser(ctx context.Context, id, userID uuid.UUID, isAdmin bool) (Ingestion, error) {
	query := `
		SELECT id, document_id, status, result, error, triggered_by, created_at, updated_at
		FROM ingestions
		WHERE id = $1
	`
	args := []any{id}
	if !isAdmin {
		query += ` AND triggered_by = $2`
		args = append(args, userID)
	}

	job, err := scanIngestion(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ingestion{}, err
		}
		return Ingestion{}, fmt.Errorf("query ingestion: %w", err)
	}

	return job, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, result json.RawMessage, errText string) error {
	var resultValue any
	if len(result) > 0 {
		resultValue = []byte(result)
	}
	var errValue any
	if errText != "" {
		errValue = errText
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE ingestions
		SET status = $2,
		    result = COALESCE($3, result),
		    error = COALESCE($4, error),
		    updated_at = NOW()
		WHERE id = $1
	`, id, status, resultValue, errValue)
	if err != nil {
		return fmt.Errorf("update ingestion status: %w", err)
	}

	return nil
}

// DeleteStale removes finished jobs older than the cutoff. Used by the
// maintenance sweep.
func (r *Repository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM ingestions
		WHERE updated_at < $1
		  AND status IN ($2, $3)
	`, cutoff, StatusCompleted, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("delete stale ingestions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale ingestions rows affected: %w", err)
	}

	return affected, nil
}
