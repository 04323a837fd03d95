package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/chartmill/chartmill/internal/core/domain"
)

func newProjectionMock(t *testing.T) (sqlmock.Sqlmock, *ProjectionRepository) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return mock, NewProjectionRepository(db)
}

func TestUpsertVitalsWritesNullsForMissingValues(t *testing.T) {
	mock, repo := newProjectionMock(t)

	spo2 := 88.0
	mock.ExpectExec(`INSERT INTO vitals_projections`).
		WithArgs("doc-1", nil, nil, spo2, nil, nil, nil, true, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	row := domain.VitalsRow{DocumentID: "doc-1", SpO2: &spo2, HasVitals: true, SpO2IsLow: true}
	if err := repo.UpsertVitals(context.Background(), row); err != nil {
		t.Fatalf("UpsertVitals() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceReferralsDeletesThenInsertsInOneTx(t *testing.T) {
	mock, repo := newProjectionMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM referral_projections`).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO referral_projections`).
		WithArgs("doc-1", "cardiology", "palpitations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO referral_projections`).
		WithArgs("doc-1", "", "follow up with specialist").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	rows := []domain.ReferralRow{
		{DocumentID: "doc-1", Specialty: "cardiology", Reason: "palpitations"},
		{DocumentID: "doc-1", Reason: "follow up with specialist"},
	}
	if err := repo.ReplaceReferrals(context.Background(), "doc-1", rows); err != nil {
		t.Fatalf("ReplaceReferrals() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceResultsEmptyListClearsRows(t *testing.T) {
	mock, repo := newProjectionMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM result_projections`).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	if err := repo.ReplaceResults(context.Background(), "doc-1", nil); err != nil {
		t.Fatalf("ReplaceResults() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteForDocumentClearsEveryTable(t *testing.T) {
	mock, repo := newProjectionMock(t)

	mock.ExpectBegin()
	for range [7]struct{}{} {
		mock.ExpectExec(`DELETE FROM \w+ WHERE document_id`).
			WithArgs("doc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if err := repo.DeleteForDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("DeleteForDocument() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
