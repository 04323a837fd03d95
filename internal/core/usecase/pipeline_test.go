package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/core/taxonomy"
)

type pipelineFixture struct {
	uc        *PipelineUseCase
	repo      *repoFake
	proj      *projectionFake
	tax       *taxonomyFake
	annotator *annotatorFake
	index     *indexFake
}

func newPipelineFixture(t *testing.T, annotator *annotatorFake) *pipelineFixture {
	t.Helper()

	repo := &repoFake{doc: &domain.Document{
		ID:            "doc-1",
		StorageKey:    "doc-1.pdf",
		Active:        true,
		NeedsMetadata: true,
		Transcript:    "Patient seen today. SpO2 94%.",
		CreatedAt:     time.Now().UTC(),
	}}
	proj := &projectionFake{}
	tax := newTaxonomyFake()
	categories, keywords := taxonomy.DefaultSeed().Concepts()
	if err := SeedTaxonomy(context.Background(), tax, categories, keywords); err != nil {
		t.Fatalf("seed taxonomy: %v", err)
	}
	index := &indexFake{}

	uc := NewPipelineUseCase(
		repo, proj, tax, annotator, index,
		&poolFake{},
		rate.NewLimiter(rate.Inf, 1),
		nil, nil,
		PipelineConfig{MinClassifyConfidence: 0.7, IndexReadyAttempts: 2, IndexReadyDelay: time.Millisecond},
	)
	return &pipelineFixture{uc: uc, repo: repo, proj: proj, tax: tax, annotator: annotator, index: index}
}

func clinicalAnnotator() *annotatorFake {
	return &annotatorFake{
		highLevel: &domain.HighLevelResult{Type: domain.TypeClinicalEncounter, Confidence: 0.95},
		detailed:  &domain.DetailedTypeResult{DocType: "progress_note", Confidence: 0.9},
		modules:   []domain.ModuleName{domain.ModuleVitals, domain.ModuleSmoking},
		payloads: map[domain.ModuleName]string{
			domain.ModuleVitals:  `{"blood_pressure":{"systolic":118,"diastolic":76},"spo2":88,"heart_rate":72}`,
			domain.ModuleSmoking: `{"status":"current","cessation_referral":true}`,
		},
	}
}

func TestRunForDocumentFullPass(t *testing.T) {
	fx := newPipelineFixture(t, clinicalAnnotator())

	if err := fx.uc.RunForDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("RunForDocument() error = %v", err)
	}

	if len(fx.repo.savedDocTypes) != 1 || fx.repo.savedDocTypes[0] != "progress_note" {
		t.Fatalf("unexpected doc types saved: %v", fx.repo.savedDocTypes)
	}
	if len(fx.proj.vitals) != 1 {
		t.Fatalf("expected one vitals upsert, got %d", len(fx.proj.vitals))
	}
	row := fx.proj.vitals[0]
	if row.SpO2 == nil || *row.SpO2 != 88 || !row.SpO2IsLow {
		t.Fatalf("vitals projection wrong: %+v", row)
	}
	if !fx.tax.hasTerm("doc-1", "vitals.hypoxia") {
		t.Fatalf("expected hypoxia rule term")
	}
	if !fx.tax.hasTerm("doc-1", "smoking.current") {
		t.Fatalf("expected current-smoker rule term")
	}
	if len(fx.repo.needsMetadata) != 1 || fx.repo.needsMetadata[0] {
		t.Fatalf("needs_metadata should be cleared, got %v", fx.repo.needsMetadata)
	}
	if len(fx.index.updates) != 1 {
		t.Fatalf("expected one index update, got %d", len(fx.index.updates))
	}
	if got := fx.index.updates[0]["doc_type"]; got != "progress_note" {
		t.Fatalf("index attributes missing doc type: %v", fx.index.updates[0])
	}
	if got := fx.index.updates[0]["high_level_type"]; got != string(domain.TypeClinicalEncounter) {
		t.Fatalf("index attributes missing high-level type: %v", fx.index.updates[0])
	}
	terms, err := fx.tax.CountTerms(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("count terms: %v", err)
	}
	if got := fx.index.updates[0]["term_count"]; got != terms {
		t.Fatalf("index attributes carry term_count %v, want %d", got, terms)
	}
	// Model tagging visited every seeded category.
	if len(fx.annotator.matchCalls) != len(taxonomy.AllCategoryIDs()) {
		t.Fatalf("expected %d taxonomy calls, got %d", len(taxonomy.AllCategoryIDs()), len(fx.annotator.matchCalls))
	}
}

func TestRunForDocumentKeepsDeclaredDocType(t *testing.T) {
	fx := newPipelineFixture(t, clinicalAnnotator())
	fx.repo.doc.DocType = "lab_report"

	if err := fx.uc.RunForDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("RunForDocument() error = %v", err)
	}
	if len(fx.repo.savedDocTypes) != 0 {
		t.Fatalf("declared doc type must not be reclassified, saved %v", fx.repo.savedDocTypes)
	}
	if fx.repo.doc.DocType != "lab_report" {
		t.Fatalf("declared doc type overwritten: got %q", fx.repo.doc.DocType)
	}
}

func TestRunForDocumentReclassifiesUnclassified(t *testing.T) {
	fx := newPipelineFixture(t, clinicalAnnotator())
	fx.repo.doc.DocType = domain.DocTypeUnclassified

	if err := fx.uc.RunForDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("RunForDocument() error = %v", err)
	}
	if len(fx.repo.savedDocTypes) != 1 || fx.repo.savedDocTypes[0] != "progress_note" {
		t.Fatalf("unclassified document should get a detailed pass, saved %v", fx.repo.savedDocTypes)
	}
}

func TestRunForDocumentEmptySelectionKeepsNeedsMetadata(t *testing.T) {
	annotator := clinicalAnnotator()
	annotator.modules = nil
	fx := newPipelineFixture(t, annotator)

	if err := fx.uc.RunForDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("an empty selection is not an error, got %v", err)
	}
	if len(fx.repo.needsMetadata) != 0 {
		t.Fatalf("needs_metadata must stay set without any module payload: %v", fx.repo.needsMetadata)
	}
	if len(fx.annotator.extractCalls) != 0 {
		t.Fatalf("nothing should be extracted from an empty selection")
	}
}

func TestRunForDocumentLowConfidenceStaysUnclassified(t *testing.T) {
	annotator := clinicalAnnotator()
	annotator.detailed = &domain.DetailedTypeResult{DocType: "progress_note", Confidence: 0.4}
	fx := newPipelineFixture(t, annotator)

	if err := fx.uc.RunForDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("RunForDocument() error = %v", err)
	}
	if len(fx.repo.savedDocTypes) != 1 || fx.repo.savedDocTypes[0] != domain.DocTypeUnclassified {
		t.Fatalf("expected unclassified doc type, got %v", fx.repo.savedDocTypes)
	}
}

func TestRunForDocumentModuleFailureIsIsolated(t *testing.T) {
	annotator := clinicalAnnotator()
	annotator.extractErrs = map[domain.ModuleName]error{
		domain.ModuleSmoking: errors.New("smoking extraction blew up"),
	}
	fx := newPipelineFixture(t, annotator)

	err := fx.uc.RunForDocument(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected aggregated stage error")
	}

	// The surviving module still landed and projected.
	if len(fx.proj.vitals) != 1 || fx.proj.vitals[0].SpO2 == nil {
		t.Fatalf("vitals should have been extracted and projected")
	}
	if fx.repo.doc.Extraction.Modules.Smoking != nil {
		t.Fatalf("failed module must not leave a payload")
	}
	// Smoking fell back to the transcript, which says nothing about smoking.
	if fx.tax.hasTerm("doc-1", "smoking.current") {
		t.Fatalf("unexpected smoking term without payload")
	}
	// A failed stage keeps the document flagged for another pass.
	if len(fx.repo.needsMetadata) != 0 {
		t.Fatalf("needs_metadata must not be cleared on failure")
	}
	// Index sync still happened.
	if len(fx.index.updates) != 1 {
		t.Fatalf("index sync should run despite stage failures")
	}
}

func TestRunForDocumentClassifierFailureStillSelectsModules(t *testing.T) {
	annotator := clinicalAnnotator()
	annotator.highLevelErr = errors.New("classifier unavailable")
	fx := newPipelineFixture(t, annotator)

	err := fx.uc.RunForDocument(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected aggregated stage error")
	}
	if len(fx.annotator.selectHints) != 1 || fx.annotator.selectHints[0] != nil {
		t.Fatalf("selection should run with a nil hint, got %v", fx.annotator.selectHints)
	}
	if len(fx.proj.vitals) != 1 {
		t.Fatalf("extraction and projection should proceed without classification")
	}
}

func TestRunForDocumentIsIdempotent(t *testing.T) {
	fx := newPipelineFixture(t, clinicalAnnotator())

	if err := fx.uc.RunForDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("first run error = %v", err)
	}
	firstTerms, err := fx.tax.CountTerms(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("count terms: %v", err)
	}

	if err := fx.uc.RunForDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("second run error = %v", err)
	}
	secondTerms, err := fx.tax.CountTerms(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("count terms: %v", err)
	}

	if firstTerms != secondTerms {
		t.Fatalf("term count changed across reruns: %d vs %d", firstTerms, secondTerms)
	}
	if fx.tax.ruleDeletes != 2 {
		t.Fatalf("each pass must wipe rule terms first, got %d wipes", fx.tax.ruleDeletes)
	}
}

func TestRerunModuleReplacesPayloadWholesale(t *testing.T) {
	fx := newPipelineFixture(t, clinicalAnnotator())
	if err := fx.uc.RunForDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("initial run error = %v", err)
	}

	fx.annotator.payloads[domain.ModuleVitals] = `{"spo2":97}`
	if err := fx.uc.RerunModule(context.Background(), "doc-1", domain.ModuleVitals); err != nil {
		t.Fatalf("RerunModule() error = %v", err)
	}

	vitals := fx.repo.doc.Extraction.Modules.Vitals
	if vitals == nil {
		t.Fatalf("vitals payload missing after rerun")
	}
	if spo2, ok := vitals.SpO2.Get(); !ok || spo2 != 97 {
		t.Fatalf("payload not replaced: %+v", vitals)
	}
	if sys := vitals.BloodPressure.Systolic.Ptr(); sys != nil {
		t.Fatalf("old blood pressure must not survive a wholesale replace")
	}

	latest := fx.proj.vitals[len(fx.proj.vitals)-1]
	if latest.SpO2IsLow {
		t.Fatalf("projection not recomputed after rerun: %+v", latest)
	}
	if fx.tax.hasTerm("doc-1", "vitals.hypoxia") {
		t.Fatalf("stale hypoxia rule term survived the rerun")
	}
}

func TestRerunModuleRejectsUnknownModule(t *testing.T) {
	fx := newPipelineFixture(t, clinicalAnnotator())

	err := fx.uc.RerunModule(context.Background(), "doc-1", "astrology")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEnqueueSurfacesFullQueue(t *testing.T) {
	fx := newPipelineFixture(t, clinicalAnnotator())
	fx.uc.pool = &poolFake{submitErr: domain.ErrQueueFull}

	err := fx.uc.Enqueue("doc-1")
	if !domain.IsKind(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestSyncIndexGivesUpAfterBoundedPolling(t *testing.T) {
	annotator := clinicalAnnotator()
	fx := newPipelineFixture(t, annotator)
	fx.index.readyAfter = 10 // never ready within the configured 2 attempts

	if err := fx.uc.RunForDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("index trouble must not fail the run, got %v", err)
	}
	if fx.index.readyCalls != 2 {
		t.Fatalf("expected exactly 2 readiness polls, got %d", fx.index.readyCalls)
	}
	if len(fx.index.updates) != 0 {
		t.Fatalf("attributes must not be pushed to a not-ready index")
	}
}

func TestRebuildCategoryVisitsRecentDocuments(t *testing.T) {
	fx := newPipelineFixture(t, clinicalAnnotator())
	fx.repo.recentIDs = []string{"doc-1", "doc-1", "doc-1"}

	if err := fx.uc.RebuildCategory(context.Background(), taxonomy.CategorySmoking, 3); err != nil {
		t.Fatalf("RebuildCategory() error = %v", err)
	}
	if len(fx.annotator.matchCalls) != 3 {
		t.Fatalf("expected 3 taxonomy calls, got %d", len(fx.annotator.matchCalls))
	}
	for _, call := range fx.annotator.matchCalls {
		if call != taxonomy.CategorySmoking {
			t.Fatalf("rebuild must stay within the requested category, got %q", call)
		}
	}
}

func TestRebuildCategoryUnknownCategory(t *testing.T) {
	fx := newPipelineFixture(t, clinicalAnnotator())

	err := fx.uc.RebuildCategory(context.Background(), "astrology", 3)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
