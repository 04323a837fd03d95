package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/core/ports"
)

// DocumentAdminUseCase covers reads and the lifecycle operations outside the
// pipeline: deactivation and hard delete.
type DocumentAdminUseCase struct {
	repo        ports.DocumentRepository
	projections ports.ProjectionStore
	taxonomies  ports.TaxonomyStore
	index       ports.SearchIndex
	logger      *slog.Logger
}

var (
	_ ports.DocumentReader = (*DocumentAdminUseCase)(nil)
	_ ports.DocumentAdmin  = (*DocumentAdminUseCase)(nil)
)

func NewDocumentAdminUseCase(
	repo ports.DocumentRepository,
	projections ports.ProjectionStore,
	taxonomies ports.TaxonomyStore,
	index ports.SearchIndex,
	logger *slog.Logger,
) *DocumentAdminUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentAdminUseCase{
		repo:        repo,
		projections: projections,
		taxonomies:  taxonomies,
		index:       index,
		logger:      logger,
	}
}

func (uc *DocumentAdminUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return uc.repo.GetByID(ctx, id)
}

// SetActive flips the visibility flag; projections and terms stay in place so
// reactivation is instant. The index learns about it best effort.
func (uc *DocumentAdminUseCase) SetActive(ctx context.Context, id string, active bool) error {
	if err := uc.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	if uc.index != nil {
		if err := uc.index.UpdateAttributes(ctx, id, map[string]any{"active": active}); err != nil {
			uc.logger.Warn("index active-flag update skipped", "document_id", id, "error", err)
		}
	}
	return nil
}

// HardDelete removes the document and every derived record.
func (uc *DocumentAdminUseCase) HardDelete(ctx context.Context, id string) error {
	if err := uc.projections.DeleteForDocument(ctx, id); err != nil {
		return fmt.Errorf("delete projections: %w", err)
	}
	if err := uc.taxonomies.DeleteTermsForDocument(ctx, id); err != nil {
		return fmt.Errorf("delete terms: %w", err)
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		return err
	}
	if uc.index != nil {
		if err := uc.index.UpdateAttributes(ctx, id, map[string]any{"active": false, "deleted": true}); err != nil {
			uc.logger.Warn("index delete update skipped", "document_id", id, "error", err)
		}
	}
	return nil
}

// SeedTaxonomy loads the curated vocabulary into the store. Inserts are
// if-absent, so reseeding at every startup is safe.
func SeedTaxonomy(ctx context.Context, store ports.TaxonomyStore, categories []domain.Category, keywords []domain.Keyword) error {
	for _, category := range categories {
		if err := store.SeedCategory(ctx, category); err != nil {
			return err
		}
	}
	for _, keyword := range keywords {
		if err := store.InsertKeywordIfAbsent(ctx, keyword); err != nil {
			return err
		}
	}
	return nil
}
