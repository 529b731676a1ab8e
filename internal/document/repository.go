package document

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

// scanDocument reads one document row. metadata is nullable, so it goes
// through a plain byte slice before landing in the raw message.
func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var metadata []byte
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Filename, &doc.FileKey, &doc.Status, &metadata, &doc.UploadedBy, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.Metadata = metadata

	return doc, nil
}

func (r *Repository) Create(ctx context.Context, title, filename, fileKey string, metadata json.RawMessage, uploadedBy uuid.UUID) (Document, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Document{}, fmt.Errorf("generate document id: %w", err)
	}

	now := time.Now().UTC()

	doc, err := scanDocument(r.db.QueryRowContext(ctx, `
		INSERT INTO documents (id, title, filename, file_key, status, metadata, uploaded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id, title, filename, file_key, status, metadata, uploaded_by, created_at, updated_at
	`, id.String(), title, filename, fileKey, StatusPending, nullableJSON(metadata), uploadedBy, now))
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}

	return doc, nil
}

// ListForUser returns every document for admins, otherwise only the ones the
// user uploaded.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, isAdmin bool) ([]Document, error) {
	query := `
		SELECT id, title, filename, file_key, status, metadata, uploaded_by, created_at, updated_at
		FROM documents
	`
	args := []any{}
	if !isAdmin {
		query += ` WHERE uploaded_by = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}

	return docs, nil
}

func (r *Repository) GetForUser(ctx context.Context, id, userID uuid.UUID, isAdmin bool) (Document, error) {
	query := `
		SELECT id, title, filename, file_key, status, metadata, uploaded_by, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	args := []any{id}
	if !isAdmin {
		query += ` AND uploaded_by = $2`
		args = append(args, userID)
	}

	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("query document: %w", err)
	}

	return doc, nil
}

// GetByID skips the ownership filter. Used by the ingestion module, which has
// its own role gate.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Document, error) {
	return r.GetForUser(ctx, id, uuid.Nil, true)
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, title string, metadata json.RawMessage) (Document, error) {
	doc, err := scanDocument(r.db.QueryRowContext(ctx, `
		UPDATE documents
		SET title = COALESCE(NULLIF($2, ''), title),
		    metadata = COALESCE($3, metadata),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, title, filename, file_key, status, metadata, uploaded_by, created_at, updated_at
	`, id, title, nullableJSON(metadata)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("update document: %w", err)
	}

	return doc, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE documents
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	return nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
