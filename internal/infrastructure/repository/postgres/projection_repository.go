package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/core/ports"
)

type ProjectionRepository struct {
	db *sql.DB
}

var _ ports.ProjectionStore = (*ProjectionRepository)(nil)

func NewProjectionRepository(db *sql.DB) *ProjectionRepository {
	return &ProjectionRepository{db: db}
}

func (r *ProjectionRepository) UpsertVitals(ctx context.Context, row domain.VitalsRow) error {
	const query = `
		INSERT INTO vitals_projections (
			document_id, systolic, diastolic, spo2, heart_rate, temperature,
			respiratory_rate, has_vitals, spo2_is_low
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (document_id) DO UPDATE SET
			systolic = EXCLUDED.systolic,
			diastolic = EXCLUDED.diastolic,
			spo2 = EXCLUDED.spo2,
			heart_rate = EXCLUDED.heart_rate,
			temperature = EXCLUDED.temperature,
			respiratory_rate = EXCLUDED.respiratory_rate,
			has_vitals = EXCLUDED.has_vitals,
			spo2_is_low = EXCLUDED.spo2_is_low`

	_, err := r.db.ExecContext(ctx, query,
		row.DocumentID, row.Systolic, row.Diastolic, row.SpO2, row.HeartRate,
		row.Temperature, row.RespiratoryRate, row.HasVitals, row.SpO2IsLow,
	)
	if err != nil {
		return fmt.Errorf("upsert vitals projection: %w", err)
	}
	return nil
}

func (r *ProjectionRepository) UpsertSmoking(ctx context.Context, row domain.SmokingRow) error {
	const query = `
		INSERT INTO smoking_projections (
			document_id, has_history, status, cessation_counseling,
			pharmacologic_offered, behavioral_support, cessation_referral, follow_up_planned
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (document_id) DO UPDATE SET
			has_history = EXCLUDED.has_history,
			status = EXCLUDED.status,
			cessation_counseling = EXCLUDED.cessation_counseling,
			pharmacologic_offered = EXCLUDED.pharmacologic_offered,
			behavioral_support = EXCLUDED.behavioral_support,
			cessation_referral = EXCLUDED.cessation_referral,
			follow_up_planned = EXCLUDED.follow_up_planned`

	_, err := r.db.ExecContext(ctx, query,
		row.DocumentID, row.HasHistory, row.Status, row.CessationCounseling,
		row.PharmacologicOffered, row.BehavioralSupport, row.CessationReferral, row.FollowUpPlanned,
	)
	if err != nil {
		return fmt.Errorf("upsert smoking projection: %w", err)
	}
	return nil
}

func (r *ProjectionRepository) UpsertMentalHealth(ctx context.Context, row domain.MentalHealthRow) error {
	const query = `
		INSERT INTO mental_health_projections (
			document_id, has_content, anxiety, depression, substance_use
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id) DO UPDATE SET
			has_content = EXCLUDED.has_content,
			anxiety = EXCLUDED.anxiety,
			depression = EXCLUDED.depression,
			substance_use = EXCLUDED.substance_use`

	_, err := r.db.ExecContext(ctx, query,
		row.DocumentID, row.HasContent, row.Anxiety, row.Depression, row.SubstanceUse,
	)
	if err != nil {
		return fmt.Errorf("upsert mental health projection: %w", err)
	}
	return nil
}

func (r *ProjectionRepository) UpsertSexualHistory(ctx context.Context, row domain.SexualHistoryRow) error {
	const query = `
		INSERT INTO sexual_history_projections (
			document_id, mentioned, partner_count, partner_sti_positive, new_partner,
			multiple_partners, unprotected_sex, sti_history, transactional_sex
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (document_id) DO UPDATE SET
			mentioned = EXCLUDED.mentioned,
			partner_count = EXCLUDED.partner_count,
			partner_sti_positive = EXCLUDED.partner_sti_positive,
			new_partner = EXCLUDED.new_partner,
			multiple_partners = EXCLUDED.multiple_partners,
			unprotected_sex = EXCLUDED.unprotected_sex,
			sti_history = EXCLUDED.sti_history,
			transactional_sex = EXCLUDED.transactional_sex`

	_, err := r.db.ExecContext(ctx, query,
		row.DocumentID, row.Mentioned, row.PartnerCount, row.PartnerSTIPositive, row.NewPartner,
		row.MultiplePartners, row.UnprotectedSex, row.STIHistory, row.TransactionalSex,
	)
	if err != nil {
		return fmt.Errorf("upsert sexual history projection: %w", err)
	}
	return nil
}

func (r *ProjectionRepository) UpsertCommunication(ctx context.Context, row domain.CommunicationRow) error {
	const query = `
		INSERT INTO communication_projections (
			document_id, initiator, mode, subject, patient_initiated
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id) DO UPDATE SET
			initiator = EXCLUDED.initiator,
			mode = EXCLUDED.mode,
			subject = EXCLUDED.subject,
			patient_initiated = EXCLUDED.patient_initiated`

	_, err := r.db.ExecContext(ctx, query,
		row.DocumentID, row.Initiator, row.Mode, row.Subject, row.PatientInitiated,
	)
	if err != nil {
		return fmt.Errorf("upsert communication projection: %w", err)
	}
	return nil
}

// ReplaceReferrals deletes then reinserts inside one transaction so a reader
// never sees a partial list.
func (r *ProjectionRepository) ReplaceReferrals(ctx context.Context, documentID string, rows []domain.ReferralRow) error {
	return r.replaceRows(ctx, documentID, "referral_projections", func(tx *sql.Tx) error {
		for _, row := range rows {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO referral_projections (document_id, specialty, reason) VALUES ($1, $2, $3)`,
				documentID, row.Specialty, row.Reason,
			)
			if err != nil {
				return fmt.Errorf("insert referral projection: %w", err)
			}
		}
		return nil
	})
}

func (r *ProjectionRepository) ReplaceResults(ctx context.Context, documentID string, rows []domain.ResultRow) error {
	return r.replaceRows(ctx, documentID, "result_projections", func(tx *sql.Tx) error {
		for _, row := range rows {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO result_projections (document_id, test_name, value, unit, abnormal) VALUES ($1, $2, $3, $4, $5)`,
				documentID, row.TestName, row.Value, row.Unit, row.Abnormal,
			)
			if err != nil {
				return fmt.Errorf("insert result projection: %w", err)
			}
		}
		return nil
	})
}

func (r *ProjectionRepository) DeleteForDocument(ctx context.Context, documentID string) error {
	tables := []string{
		"vitals_projections",
		"smoking_projections",
		"mental_health_projections",
		"sexual_history_projections",
		"communication_projections",
		"referral_projections",
		"result_projections",
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin projection delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, table := range tables {
		query := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, table)
		if _, err := tx.ExecContext(ctx, query, documentID); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit projection delete tx: %w", err)
	}
	return nil
}

func (r *ProjectionRepository) replaceRows(ctx context.Context, documentID, table string, insert func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx for %s: %w", table, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, table)
	if _, err := tx.ExecContext(ctx, query, documentID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if err := insert(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx for %s: %w", table, err)
	}
	return nil
}
