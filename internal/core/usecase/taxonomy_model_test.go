package usecase

import (
	"context"
	"testing"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/core/taxonomy"
)

func smokingCategory() domain.Category {
	return domain.Category{ID: taxonomy.CategorySmoking, Label: "Smoking"}
}

func TestTagCategoryMatchesExistingKeyword(t *testing.T) {
	annotator := clinicalAnnotator()
	annotator.matches = map[string]*domain.TaxonomyMatchResult{
		taxonomy.CategorySmoking: {
			Category: taxonomy.CategorySmoking,
			Matches: []domain.TaxonomyMatch{
				{KeywordID: "smoking.current", Evidence: "smokes one pack per day"},
			},
		},
	}
	fx := newPipelineFixture(t, annotator)

	if err := fx.uc.tagCategory(context.Background(), fx.repo.doc, smokingCategory()); err != nil {
		t.Fatalf("tagCategory() error = %v", err)
	}
	if !fx.tax.hasTerm("doc-1", "smoking.current") {
		t.Fatalf("expected model term for existing keyword")
	}
	if len(fx.tax.evidence) != 1 || fx.tax.evidence[0].Text != "smokes one pack per day" {
		t.Fatalf("evidence not recorded: %+v", fx.tax.evidence)
	}
}

func TestTagCategoryRejectsForeignKeyword(t *testing.T) {
	annotator := clinicalAnnotator()
	annotator.matches = map[string]*domain.TaxonomyMatchResult{
		taxonomy.CategorySmoking: {
			Category: taxonomy.CategorySmoking,
			Matches: []domain.TaxonomyMatch{
				{KeywordID: "vitals.fever", Evidence: "wrong category"},
			},
		},
	}
	fx := newPipelineFixture(t, annotator)

	if err := fx.uc.tagCategory(context.Background(), fx.repo.doc, smokingCategory()); err != nil {
		t.Fatalf("tagCategory() error = %v", err)
	}
	if fx.tax.hasTerm("doc-1", "vitals.fever") {
		t.Fatalf("keyword outside the category vocabulary must be discarded")
	}
}

func TestTagCategoryProposedKeywordLandsUnderReview(t *testing.T) {
	annotator := clinicalAnnotator()
	annotator.matches = map[string]*domain.TaxonomyMatchResult{
		taxonomy.CategorySmoking: {
			Category: taxonomy.CategorySmoking,
			Matches: []domain.TaxonomyMatch{
				{
					NewKeyword: &domain.ConceptProposal{Label: "Vaping", Synonyms: []string{"e-cigarette use"}},
					Evidence:   "patient vapes daily",
				},
			},
		},
	}
	fx := newPipelineFixture(t, annotator)

	if err := fx.uc.tagCategory(context.Background(), fx.repo.doc, smokingCategory()); err != nil {
		t.Fatalf("tagCategory() error = %v", err)
	}

	kw, ok := fx.tax.keywords["smoking.vaping"]
	if !ok {
		t.Fatalf("proposed keyword not inserted")
	}
	if kw.Status != domain.ConceptReview {
		t.Fatalf("model-created concept must land under review, got %q", kw.Status)
	}
	if !fx.tax.hasTerm("doc-1", "smoking.vaping") {
		t.Fatalf("term for proposed keyword missing")
	}
}

func TestTagCategorySlugCollisionMatchesExistingConcept(t *testing.T) {
	annotator := clinicalAnnotator()
	annotator.matches = map[string]*domain.TaxonomyMatchResult{
		taxonomy.CategorySmoking: {
			Category: taxonomy.CategorySmoking,
			Matches: []domain.TaxonomyMatch{
				// "Current!" slugs to "current", colliding with the seeded
				// approved keyword.
				{NewKeyword: &domain.ConceptProposal{Label: "Current!"}},
			},
		},
	}
	fx := newPipelineFixture(t, annotator)

	if err := fx.uc.tagCategory(context.Background(), fx.repo.doc, smokingCategory()); err != nil {
		t.Fatalf("tagCategory() error = %v", err)
	}

	kw := fx.tax.keywords["smoking.current"]
	if kw.Status != domain.ConceptApproved {
		t.Fatalf("collision must keep the existing approved concept, got %q", kw.Status)
	}
	if kw.Label != "Current" {
		t.Fatalf("existing concept label must not be overwritten, got %q", kw.Label)
	}
	if !fx.tax.hasTerm("doc-1", "smoking.current") {
		t.Fatalf("collision should still tag the existing concept")
	}
}

func TestTagCategoryProposedSubkeyword(t *testing.T) {
	annotator := clinicalAnnotator()
	annotator.matches = map[string]*domain.TaxonomyMatchResult{
		taxonomy.CategorySmoking: {
			Category: taxonomy.CategorySmoking,
			Matches: []domain.TaxonomyMatch{
				{
					KeywordID: "smoking.current",
					NewSubkeyword: &domain.ConceptProposal{
						KeywordID: "smoking.current",
						Label:     "Heavy Use",
					},
					Evidence: "two packs per day",
				},
			},
		},
	}
	fx := newPipelineFixture(t, annotator)

	if err := fx.uc.tagCategory(context.Background(), fx.repo.doc, smokingCategory()); err != nil {
		t.Fatalf("tagCategory() error = %v", err)
	}

	sub, ok := fx.tax.subkeywords["smoking.current.heavy_use"]
	if !ok {
		t.Fatalf("proposed subkeyword not inserted")
	}
	if sub.Status != domain.ConceptReview {
		t.Fatalf("proposed subkeyword must land under review")
	}

	found := false
	for _, term := range fx.tax.terms {
		if term.KeywordID == "smoking.current" && term.SubkeywordID == "smoking.current.heavy_use" {
			found = true
		}
	}
	if !found {
		t.Fatalf("narrowed term missing: %+v", fx.tax.terms)
	}
}
