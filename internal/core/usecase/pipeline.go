package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/core/ports"
	"github.com/chartmill/chartmill/internal/core/projection"
	"github.com/chartmill/chartmill/internal/core/taxonomy"
)

// JobPool is the bounded fire-and-forget executor behind Enqueue.
type JobPool interface {
	Submit(job func(ctx context.Context)) error
}

// RunMetrics is the optional pipeline instrumentation hook.
type RunMetrics interface {
	StartRun()
	FinishRun()
	ObserveStage(service, stage string, d time.Duration, err error)
	ObserveQueueLag(service string, lag time.Duration)
	RecordIndexSync(service string, err error)
}

type PipelineConfig struct {
	// MinClassifyConfidence gates the detailed doc type; below it the
	// document stays unclassified.
	MinClassifyConfidence float64
	IndexReadyAttempts    int
	IndexReadyDelay       time.Duration
	Service               string
}

func (c PipelineConfig) normalized() PipelineConfig {
	if c.MinClassifyConfidence <= 0 {
		c.MinClassifyConfidence = 0.7
	}
	if c.IndexReadyAttempts <= 0 {
		c.IndexReadyAttempts = 5
	}
	if c.IndexReadyDelay <= 0 {
		c.IndexReadyDelay = 500 * time.Millisecond
	}
	if c.Service == "" {
		c.Service = "worker"
	}
	return c
}

// PipelineUseCase drives every stage for one document: classification, module
// selection, parallel module extraction, projection, taxonomy tagging, and
// best-effort index sync. Stages fail independently; every stage that can
// still run from persisted state does.
type PipelineUseCase struct {
	repo         ports.DocumentRepository
	projections  ports.ProjectionStore
	taxonomies   ports.TaxonomyStore
	annotator    ports.DocumentAnnotator
	index        ports.SearchIndex
	pool         JobPool
	taxonomyRate *rate.Limiter
	metrics      RunMetrics
	logger       *slog.Logger
	config       PipelineConfig
}

var _ ports.PipelineRunner = (*PipelineUseCase)(nil)

func NewPipelineUseCase(
	repo ports.DocumentRepository,
	projections ports.ProjectionStore,
	taxonomies ports.TaxonomyStore,
	annotator ports.DocumentAnnotator,
	index ports.SearchIndex,
	pool JobPool,
	taxonomyRate *rate.Limiter,
	metrics RunMetrics,
	logger *slog.Logger,
	config PipelineConfig,
) *PipelineUseCase {
	if taxonomyRate == nil {
		taxonomyRate = rate.NewLimiter(rate.Inf, 1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineUseCase{
		repo:         repo,
		projections:  projections,
		taxonomies:   taxonomies,
		annotator:    annotator,
		index:        index,
		pool:         pool,
		taxonomyRate: taxonomyRate,
		metrics:      metrics,
		logger:       logger,
		config:       config.normalized(),
	}
}

// Enqueue hands the run to the worker pool; a full queue surfaces as
// domain.ErrQueueFull instead of blocking the caller.
func (uc *PipelineUseCase) Enqueue(documentID string) error {
	if uc.pool == nil {
		return fmt.Errorf("enqueue %s: no worker pool configured", documentID)
	}
	return uc.pool.Submit(func(ctx context.Context) {
		if err := uc.RunForDocument(ctx, documentID); err != nil {
			uc.logger.Error("pipeline run failed", "document_id", documentID, "error", err)
		}
	})
}

func (uc *PipelineUseCase) RunForDocument(ctx context.Context, documentID string) error {
	if uc.metrics != nil {
		uc.metrics.StartRun()
		defer uc.metrics.FinishRun()
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if uc.metrics != nil {
		uc.metrics.ObserveQueueLag(uc.config.Service, time.Since(doc.CreatedAt))
	}

	var stageErrs []error

	hint := uc.classify(ctx, doc, &stageErrs)
	selected := uc.selectModules(ctx, doc, hint, &stageErrs)
	uc.extractModules(ctx, doc, selected, &stageErrs)

	// Projection and taxonomy run off persisted state even when upstream
	// stages failed; both are pure recomputation over what we have.
	set, err := uc.project(ctx, doc)
	if err != nil {
		stageErrs = append(stageErrs, err)
	} else {
		if err := uc.applyRuleTerms(ctx, doc.ID, set); err != nil {
			stageErrs = append(stageErrs, err)
		}
		uc.tagAllCategories(ctx, doc, &stageErrs)
	}

	// An empty module selection is "nothing extractable this pass", not
	// completion; the flag stays set until a payload actually lands.
	if len(stageErrs) == 0 && doc.Extraction.HasAnyModule() {
		if err := uc.repo.SetNeedsMetadata(ctx, doc.ID, false); err != nil {
			stageErrs = append(stageErrs, fmt.Errorf("clear needs_metadata: %w", err))
		}
	}

	uc.syncIndex(ctx, doc)

	return errors.Join(stageErrs...)
}

// RerunModule re-extracts one module and recomputes everything downstream of
// it; other module payloads are untouched.
func (uc *PipelineUseCase) RerunModule(ctx context.Context, documentID string, module domain.ModuleName) error {
	if _, ok := domain.KnownModule(string(module)); !ok {
		return domain.WrapError(domain.ErrInvalidInput, "rerun module", fmt.Errorf("unknown module %q", module))
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	raw, err := uc.annotator.ExtractModule(ctx, doc, module)
	if err != nil {
		return fmt.Errorf("extract module %s: %w", module, err)
	}
	if err := doc.Extraction.SetModulePayload(module, raw); err != nil {
		return domain.WrapError(domain.ErrMalformedOutput, "rerun module", err)
	}
	if err := uc.repo.SaveExtractionState(ctx, doc.ID, doc.Extraction); err != nil {
		return fmt.Errorf("save extraction state: %w", err)
	}

	set, err := uc.project(ctx, doc)
	if err != nil {
		return err
	}
	if err := uc.applyRuleTerms(ctx, doc.ID, set); err != nil {
		return err
	}
	uc.syncIndex(ctx, doc)
	return nil
}

// classify runs both classification stages. Failures leave the document
// unclassified; the rest of the pipeline proceeds without a type hint.
func (uc *PipelineUseCase) classify(ctx context.Context, doc *domain.Document, stageErrs *[]error) *domain.HighLevelType {
	var hint *domain.HighLevelType

	start := time.Now()
	high, err := uc.annotator.ClassifyHighLevel(ctx, doc)
	uc.observeStage("classify_high_level", start, err)
	if err != nil {
		*stageErrs = append(*stageErrs, fmt.Errorf("classify high level: %w", err))
	} else {
		doc.Extraction.HighLevel = high
		t := high.Type
		hint = &t
	}

	// A type the uploader declared is authoritative; the detailed classifier
	// only fills the gap when none is known yet.
	if doc.DocType == "" || doc.DocType == domain.DocTypeUnclassified {
		start = time.Now()
		detailed, err := uc.annotator.ClassifyDetailed(ctx, doc)
		uc.observeStage("classify_detailed", start, err)
		if err != nil {
			*stageErrs = append(*stageErrs, fmt.Errorf("classify detailed: %w", err))
		} else {
			doc.Extraction.DetailedType = detailed
			docType := detailed.DocType
			if detailed.Confidence < uc.config.MinClassifyConfidence {
				docType = domain.DocTypeUnclassified
			}
			if err := uc.repo.SaveDocType(ctx, doc.ID, docType); err != nil {
				*stageErrs = append(*stageErrs, fmt.Errorf("save doc type: %w", err))
			} else {
				doc.DocType = docType
			}
		}
	}

	if err := uc.repo.SaveExtractionState(ctx, doc.ID, doc.Extraction); err != nil {
		*stageErrs = append(*stageErrs, fmt.Errorf("save extraction state: %w", err))
	}
	return hint
}

func (uc *PipelineUseCase) selectModules(
	ctx context.Context,
	doc *domain.Document,
	hint *domain.HighLevelType,
	stageErrs *[]error,
) []domain.ModuleName {
	start := time.Now()
	selected, err := uc.annotator.SelectModules(ctx, doc, hint)
	uc.observeStage("select_modules", start, err)
	if err != nil {
		*stageErrs = append(*stageErrs, fmt.Errorf("select modules: %w", err))
		return nil
	}

	doc.Extraction.Selection = &domain.ModuleSelection{Modules: selected}
	if err := uc.repo.SaveExtractionState(ctx, doc.ID, doc.Extraction); err != nil {
		*stageErrs = append(*stageErrs, fmt.Errorf("save extraction state: %w", err))
	}
	return selected
}

// extractModules fans the selected modules out in parallel. A failing module
// only loses its own payload; the others land and are persisted together.
func (uc *PipelineUseCase) extractModules(
	ctx context.Context,
	doc *domain.Document,
	selected []domain.ModuleName,
	stageErrs *[]error,
) {
	if len(selected) == 0 {
		return
	}

	type moduleResult struct {
		module domain.ModuleName
		raw    []byte
		err    error
	}

	results := make([]moduleResult, len(selected))
	var g errgroup.Group
	for i, module := range selected {
		g.Go(func() error {
			start := time.Now()
			raw, err := uc.annotator.ExtractModule(ctx, doc, module)
			uc.observeStage("extract_"+string(module), start, err)
			results[i] = moduleResult{module: module, raw: raw, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res.err != nil {
			*stageErrs = append(*stageErrs, fmt.Errorf("extract module %s: %w", res.module, res.err))
			continue
		}
		if err := doc.Extraction.SetModulePayload(res.module, res.raw); err != nil {
			*stageErrs = append(*stageErrs, domain.WrapError(domain.ErrMalformedOutput, "module "+string(res.module), err))
		}
	}

	if err := uc.repo.SaveExtractionState(ctx, doc.ID, doc.Extraction); err != nil {
		*stageErrs = append(*stageErrs, fmt.Errorf("save extraction state: %w", err))
	}
}

// project rebuilds every projection row from the current extraction state.
func (uc *PipelineUseCase) project(ctx context.Context, doc *domain.Document) (domain.ProjectionSet, error) {
	start := time.Now()
	set := projection.Build(doc)

	writes := []struct {
		name string
		fn   func() error
	}{
		{"vitals", func() error { return uc.projections.UpsertVitals(ctx, set.Vitals) }},
		{"smoking", func() error { return uc.projections.UpsertSmoking(ctx, set.Smoking) }},
		{"mental_health", func() error { return uc.projections.UpsertMentalHealth(ctx, set.MentalHealth) }},
		{"sexual_history", func() error { return uc.projections.UpsertSexualHistory(ctx, set.SexualHistory) }},
		{"communication", func() error { return uc.projections.UpsertCommunication(ctx, set.Communication) }},
		{"referrals", func() error { return uc.projections.ReplaceReferrals(ctx, doc.ID, set.Referrals) }},
		{"results", func() error { return uc.projections.ReplaceResults(ctx, doc.ID, set.Results) }},
	}
	for _, w := range writes {
		if err := w.fn(); err != nil {
			uc.observeStage("project", start, err)
			return set, fmt.Errorf("write %s projection: %w", w.name, err)
		}
	}
	uc.observeStage("project", start, nil)
	return set, nil
}

// applyRuleTerms wipes and recomputes the rule-sourced taxonomy terms from
// the projection rows.
func (uc *PipelineUseCase) applyRuleTerms(ctx context.Context, documentID string, set domain.ProjectionSet) error {
	start := time.Now()
	byCategory := taxonomy.Evaluate(set)

	if err := uc.taxonomies.DeleteRuleTerms(ctx, documentID, taxonomy.AllCategoryIDs()); err != nil {
		uc.observeStage("rule_terms", start, err)
		return fmt.Errorf("delete stale rule terms: %w", err)
	}

	for _, categoryID := range taxonomy.AllCategoryIDs() {
		for _, term := range byCategory[categoryID] {
			err := uc.taxonomies.InsertTermIfAbsent(ctx, domain.Term{
				DocumentID: documentID,
				KeywordID:  term.KeywordID,
				Source:     domain.TermSourceRule,
			})
			if err != nil {
				uc.observeStage("rule_terms", start, err)
				return fmt.Errorf("insert rule term %s: %w", term.KeywordID, err)
			}
			err = uc.taxonomies.InsertEvidence(ctx, domain.Evidence{
				DocumentID: documentID,
				KeywordID:  term.KeywordID,
				Text:       term.Evidence,
			})
			if err != nil {
				uc.observeStage("rule_terms", start, err)
				return fmt.Errorf("insert rule evidence %s: %w", term.KeywordID, err)
			}
		}
	}
	uc.observeStage("rule_terms", start, nil)
	return nil
}

// tagAllCategories runs the model-driven extractor sequentially per category,
// paced by the taxonomy rate limiter. A failing category only loses its own
// tags.
func (uc *PipelineUseCase) tagAllCategories(ctx context.Context, doc *domain.Document, stageErrs *[]error) {
	categories, err := uc.taxonomies.ListCategories(ctx)
	if err != nil {
		*stageErrs = append(*stageErrs, fmt.Errorf("list taxonomy categories: %w", err))
		return
	}

	for _, category := range categories {
		if err := uc.taxonomyRate.Wait(ctx); err != nil {
			*stageErrs = append(*stageErrs, fmt.Errorf("taxonomy pacing: %w", err))
			return
		}
		start := time.Now()
		err := uc.tagCategory(ctx, doc, category)
		uc.observeStage("taxonomy_"+category.ID, start, err)
		if err != nil {
			*stageErrs = append(*stageErrs, fmt.Errorf("tag category %s: %w", category.ID, err))
		}
	}
}

// syncIndex pushes current attributes to the search index after bounded
// readiness polling. Strictly best effort: failures are logged and counted,
// never returned.
func (uc *PipelineUseCase) syncIndex(ctx context.Context, doc *domain.Document) {
	if uc.index == nil {
		return
	}

	err := uc.waitIndexReady(ctx, doc.ID)
	if err == nil {
		attrs := indexAttributes(doc)
		if count, countErr := uc.taxonomies.CountTerms(ctx, doc.ID); countErr == nil {
			attrs["term_count"] = count
		} else {
			uc.logger.Warn("term count unavailable for index sync", "document_id", doc.ID, "error", countErr)
		}
		err = uc.index.UpdateAttributes(ctx, doc.ID, attrs)
	}
	if uc.metrics != nil {
		uc.metrics.RecordIndexSync(uc.config.Service, err)
	}
	if err != nil {
		uc.logger.Warn("search index sync skipped", "document_id", doc.ID, "error", err)
	}
}

func (uc *PipelineUseCase) waitIndexReady(ctx context.Context, documentID string) error {
	var lastErr error
	for attempt := 0; attempt < uc.config.IndexReadyAttempts; attempt++ {
		ready, err := uc.index.IsReady(ctx, documentID)
		if err != nil {
			lastErr = err
		} else if ready {
			return nil
		} else {
			lastErr = fmt.Errorf("index not ready for %s", documentID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(uc.config.IndexReadyDelay):
		}
	}
	return lastErr
}

func indexAttributes(doc *domain.Document) map[string]any {
	attrs := map[string]any{
		"doc_type": doc.DocType,
		"provider": doc.Provider,
		"facility": doc.Facility,
		"active":   doc.Active,
	}
	if doc.Extraction.HighLevel != nil {
		attrs["high_level_type"] = string(doc.Extraction.HighLevel.Type)
	}
	if doc.EncounterDate != nil {
		attrs["encounter_date"] = doc.EncounterDate.UTC().Format(time.RFC3339)
	}
	return attrs
}

func (uc *PipelineUseCase) observeStage(stage string, start time.Time, err error) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.ObserveStage(uc.config.Service, stage, time.Since(start), err)
}
