package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	extractor ports.TranscriptExtractor
	queue     ports.MessageQueue
	logger    *slog.Logger
}

var _ ports.DocumentIngestor = (*IngestDocumentUseCase)(nil)

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TranscriptExtractor,
	queue ports.MessageQueue,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		queue:     queue,
		logger:    logger,
	}
}

// Upload stores the raw bytes, records the document with whatever metadata
// the caller declared, and hands it to the pipeline. Transcript extraction is
// best effort: a document we cannot read still enters the pipeline.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	req ports.UploadRequest,
	body io.Reader,
) (*domain.Document, error) {
	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(req.Filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:            id,
		StorageKey:    storageKey,
		DocType:       strings.TrimSpace(strings.ToLower(req.DocType)),
		EncounterDate: req.EncounterDate,
		Provider:      req.Provider,
		Facility:      req.Facility,
		Active:        true,
		NeedsMetadata: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if transcript, err := uc.extractor.Extract(ctx, doc); err != nil {
		uc.logger.Warn("transcript extraction failed", "document_id", id, "error", err)
	} else {
		doc.Transcript = transcript
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	if err := uc.queue.PublishPipelineRun(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish pipeline run: %w", err)
	}

	return doc, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
