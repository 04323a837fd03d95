package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/chartmill/chartmill/internal/core/domain"
)

func newTaxonomyMock(t *testing.T) (sqlmock.Sqlmock, *TaxonomyRepository) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return mock, NewTaxonomyRepository(db)
}

func TestInsertKeywordIfAbsentUsesDoNothing(t *testing.T) {
	mock, repo := newTaxonomyMock(t)

	mock.ExpectExec(`INSERT INTO taxonomy_keywords .+ ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("vitals.hypoxia", "vitals", "Hypoxia", sqlmock.AnyArg(), "approved").
		WillReturnResult(sqlmock.NewResult(0, 0))

	keyword := domain.Keyword{
		ID:         "vitals.hypoxia",
		CategoryID: "vitals",
		Label:      "Hypoxia",
		Status:     domain.ConceptApproved,
	}
	if err := repo.InsertKeywordIfAbsent(context.Background(), keyword); err != nil {
		t.Fatalf("InsertKeywordIfAbsent() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListKeywordsDecodesSynonyms(t *testing.T) {
	mock, repo := newTaxonomyMock(t)

	rows := sqlmock.NewRows([]string{"id", "category_id", "label", "synonyms", "status"}).
		AddRow("smoking.current_smoker", "smoking", "Current Smoker", []byte(`["active smoker","smokes daily"]`), "approved").
		AddRow("smoking.vaping", "smoking", "Vaping", []byte(`[]`), "review")

	mock.ExpectQuery(`SELECT .+ FROM taxonomy_keywords`).WithArgs("smoking").WillReturnRows(rows)

	keywords, err := repo.ListKeywords(context.Background(), "smoking")
	if err != nil {
		t.Fatalf("ListKeywords() error = %v", err)
	}
	if len(keywords) != 2 {
		t.Fatalf("expected 2 keywords, got %d", len(keywords))
	}
	if len(keywords[0].Synonyms) != 2 || keywords[0].Synonyms[0] != "active smoker" {
		t.Fatalf("synonyms lost: %+v", keywords[0])
	}
	if keywords[1].Status != domain.ConceptReview {
		t.Fatalf("unexpected status %q", keywords[1].Status)
	}
}

func TestInsertTermIfAbsentIsIdempotent(t *testing.T) {
	mock, repo := newTaxonomyMock(t)

	term := domain.Term{
		DocumentID: "doc-1",
		KeywordID:  "vitals.hypoxia",
		Source:     domain.TermSourceRule,
	}

	mock.ExpectExec(`INSERT INTO document_terms .+ DO NOTHING`).
		WithArgs("doc-1", "vitals.hypoxia", "", "rule").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO document_terms .+ DO NOTHING`).
		WithArgs("doc-1", "vitals.hypoxia", "", "rule").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.InsertTermIfAbsent(context.Background(), term); err != nil {
		t.Fatalf("first insert error = %v", err)
	}
	if err := repo.InsertTermIfAbsent(context.Background(), term); err != nil {
		t.Fatalf("second insert must be a no-op, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteRuleTermsScopesToCategoriesAndSource(t *testing.T) {
	mock, repo := newTaxonomyMock(t)

	// Evidence goes first, joined through the still-present rule terms so
	// model-sourced evidence is untouched; then the terms themselves.
	mock.ExpectExec(`DELETE FROM document_term_evidence .+ t\.source = 'rule'`).
		WithArgs("doc-1", "vitals", "smoking").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM document_terms .+ t\.source = 'rule'`).
		WithArgs("doc-1", "vitals", "smoking").
		WillReturnResult(sqlmock.NewResult(0, 4))

	err := repo.DeleteRuleTerms(context.Background(), "doc-1", []string{"vitals", "smoking"})
	if err != nil {
		t.Fatalf("DeleteRuleTerms() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteRuleTermsNoCategoriesIsNoOp(t *testing.T) {
	mock, repo := newTaxonomyMock(t)

	if err := repo.DeleteRuleTerms(context.Background(), "doc-1", nil); err != nil {
		t.Fatalf("DeleteRuleTerms() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}

func TestCountTerms(t *testing.T) {
	mock, repo := newTaxonomyMock(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM document_terms`).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := repo.CountTerms(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("CountTerms() error = %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 terms, got %d", count)
	}
}
