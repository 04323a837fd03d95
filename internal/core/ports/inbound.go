package ports

import (
	"context"
	"io"
	"time"

	"github.com/chartmill/chartmill/internal/core/domain"
)

// UploadRequest carries the metadata a caller may declare at upload time.
type UploadRequest struct {
	Filename      string
	MimeType      string
	DocType       string
	Provider      string
	Facility      string
	EncounterDate *time.Time
}

// DocumentIngestor is the inbound contract for document upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest, body io.Reader) (*domain.Document, error)
}

// PipelineRunner drives the extraction pipeline for one document, either
// synchronously or fire-and-forget through the bounded worker pool.
type PipelineRunner interface {
	RunForDocument(ctx context.Context, documentID string) error
	Enqueue(documentID string) error
	RerunModule(ctx context.Context, documentID string, module domain.ModuleName) error
}

// TaxonomyRebuilder reruns model-driven tagging for one category across
// recent documents.
type TaxonomyRebuilder interface {
	RebuildCategory(ctx context.Context, categoryID string, limit int) error
}

// DocumentReader is the inbound read model for document state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentAdmin covers the explicit lifecycle operations outside the
// pipeline itself.
type DocumentAdmin interface {
	SetActive(ctx context.Context, id string, active bool) error
	HardDelete(ctx context.Context, id string) error
}
