package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/core/ports"
)

type DocumentRepository struct {
	db *sql.DB
}

var _ ports.DocumentRepository = (*DocumentRepository)(nil)

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	state, err := json.Marshal(doc.Extraction)
	if err != nil {
		return fmt.Errorf("marshal extraction state: %w", err)
	}

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	const query = `
		INSERT INTO documents (
			id, storage_key, doc_type, encounter_date, provider, facility,
			active, needs_metadata, extraction_state, transcript, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.ExecContext(ctx, query,
		doc.ID, doc.StorageKey, doc.DocType, doc.EncounterDate, doc.Provider, doc.Facility,
		doc.Active, doc.NeedsMetadata, state, doc.Transcript, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	const query = `
		SELECT id, storage_key, doc_type, encounter_date, provider, facility,
		       active, needs_metadata, extraction_state, transcript, created_at, updated_at
		FROM documents
		WHERE id = $1`

	var (
		doc   domain.Document
		state []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.StorageKey, &doc.DocType, &doc.EncounterDate, &doc.Provider, &doc.Facility,
		&doc.Active, &doc.NeedsMetadata, &state, &doc.Transcript, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}

	if len(state) > 0 {
		if err := json.Unmarshal(state, &doc.Extraction); err != nil {
			return nil, fmt.Errorf("unmarshal extraction state: %w", err)
		}
	}
	return &doc, nil
}

func (r *DocumentRepository) SaveExtractionState(ctx context.Context, id string, state domain.ExtractionState) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal extraction state: %w", err)
	}
	return r.updateColumn(ctx, id, "extraction_state", encoded)
}

func (r *DocumentRepository) SaveDocType(ctx context.Context, id, docType string) error {
	return r.updateColumn(ctx, id, "doc_type", docType)
}

func (r *DocumentRepository) SetNeedsMetadata(ctx context.Context, id string, needs bool) error {
	return r.updateColumn(ctx, id, "needs_metadata", needs)
}

func (r *DocumentRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.updateColumn(ctx, id, "active", active)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) ListRecentIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE active ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document ids: %w", err)
	}
	return ids, nil
}

// updateColumn is the shared shape of every per-stage column write. The column
// name comes from a fixed call-site literal, never user input.
func (r *DocumentRepository) updateColumn(ctx context.Context, id, column string, value any) error {
	query := fmt.Sprintf(`UPDATE documents SET %s = $1, updated_at = $2 WHERE id = $3`, column)
	result, err := r.db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update document %s: %w", column, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s rows affected: %w", column, err)
	}
	if affected == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
