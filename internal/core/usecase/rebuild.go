package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/chartmill/chartmill/internal/core/ports"
)

var _ ports.TaxonomyRebuilder = (*PipelineUseCase)(nil)

// RebuildCategory reruns model-driven tagging for one category across the
// most recent documents. Per-document failures are collected, not fatal; the
// rebuild keeps going.
func (uc *PipelineUseCase) RebuildCategory(ctx context.Context, categoryID string, limit int) error {
	category, err := uc.taxonomies.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}

	ids, err := uc.repo.ListRecentIDs(ctx, limit)
	if err != nil {
		return fmt.Errorf("list recent documents: %w", err)
	}

	var rebuildErrs []error
	for _, id := range ids {
		if err := uc.taxonomyRate.Wait(ctx); err != nil {
			rebuildErrs = append(rebuildErrs, fmt.Errorf("taxonomy pacing: %w", err))
			break
		}
		doc, err := uc.repo.GetByID(ctx, id)
		if err != nil {
			rebuildErrs = append(rebuildErrs, fmt.Errorf("load document %s: %w", id, err))
			continue
		}
		if err := uc.tagCategory(ctx, doc, *category); err != nil {
			rebuildErrs = append(rebuildErrs, fmt.Errorf("tag %s for %s: %w", categoryID, id, err))
		}
	}
	return errors.Join(rebuildErrs...)
}
