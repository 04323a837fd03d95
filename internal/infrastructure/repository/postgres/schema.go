package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema bootstraps every table. Subkeyword id and term subkeyword_id
// are NOT NULL with '' for "none" so the term uniqueness constraint actually
// holds (NULLs never collide in Postgres unique indexes).
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	storage_key TEXT NOT NULL,
	doc_type TEXT NOT NULL DEFAULT '',
	encounter_date TIMESTAMPTZ,
	provider TEXT NOT NULL DEFAULT '',
	facility TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	needs_metadata BOOLEAN NOT NULL DEFAULT TRUE,
	extraction_state JSONB NOT NULL DEFAULT '{}'::jsonb,
	transcript TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_needs_metadata ON documents(needs_metadata);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS vitals_projections (
	document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
	systolic DOUBLE PRECISION,
	diastolic DOUBLE PRECISION,
	spo2 DOUBLE PRECISION,
	heart_rate DOUBLE PRECISION,
	temperature DOUBLE PRECISION,
	respiratory_rate DOUBLE PRECISION,
	has_vitals BOOLEAN NOT NULL DEFAULT FALSE,
	spo2_is_low BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS smoking_projections (
	document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
	has_history BOOLEAN NOT NULL DEFAULT FALSE,
	status TEXT NOT NULL DEFAULT '',
	cessation_counseling BOOLEAN NOT NULL DEFAULT FALSE,
	pharmacologic_offered BOOLEAN NOT NULL DEFAULT FALSE,
	behavioral_support BOOLEAN NOT NULL DEFAULT FALSE,
	cessation_referral BOOLEAN NOT NULL DEFAULT FALSE,
	follow_up_planned BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS mental_health_projections (
	document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
	has_content BOOLEAN NOT NULL DEFAULT FALSE,
	anxiety BOOLEAN NOT NULL DEFAULT FALSE,
	depression BOOLEAN NOT NULL DEFAULT FALSE,
	substance_use BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS sexual_history_projections (
	document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
	mentioned BOOLEAN NOT NULL DEFAULT FALSE,
	partner_count DOUBLE PRECISION,
	partner_sti_positive BOOLEAN NOT NULL DEFAULT FALSE,
	new_partner BOOLEAN NOT NULL DEFAULT FALSE,
	multiple_partners BOOLEAN NOT NULL DEFAULT FALSE,
	unprotected_sex BOOLEAN NOT NULL DEFAULT FALSE,
	sti_history BOOLEAN NOT NULL DEFAULT FALSE,
	transactional_sex BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS communication_projections (
	document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
	initiator TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	patient_initiated BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS referral_projections (
	id BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	specialty TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_referral_projections_document ON referral_projections(document_id);

CREATE TABLE IF NOT EXISTS result_projections (
	id BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	test_name TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	unit TEXT NOT NULL DEFAULT '',
	abnormal BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_result_projections_document ON result_projections(document_id);

CREATE TABLE IF NOT EXISTS taxonomy_categories (
	id TEXT PRIMARY KEY,
	label TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS taxonomy_keywords (
	id TEXT PRIMARY KEY,
	category_id TEXT NOT NULL REFERENCES taxonomy_categories(id),
	label TEXT NOT NULL,
	synonyms JSONB NOT NULL DEFAULT '[]'::jsonb,
	status TEXT NOT NULL DEFAULT 'review'
);

CREATE INDEX IF NOT EXISTS idx_taxonomy_keywords_category ON taxonomy_keywords(category_id);

CREATE TABLE IF NOT EXISTS taxonomy_subkeywords (
	id TEXT PRIMARY KEY,
	keyword_id TEXT NOT NULL REFERENCES taxonomy_keywords(id),
	label TEXT NOT NULL,
	synonyms JSONB NOT NULL DEFAULT '[]'::jsonb,
	status TEXT NOT NULL DEFAULT 'review'
);

CREATE TABLE IF NOT EXISTS document_terms (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	keyword_id TEXT NOT NULL REFERENCES taxonomy_keywords(id),
	subkeyword_id TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT 'rule',
	PRIMARY KEY (document_id, keyword_id, subkeyword_id)
);

CREATE TABLE IF NOT EXISTS document_term_evidence (
	id BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	keyword_id TEXT NOT NULL,
	subkeyword_id TEXT NOT NULL DEFAULT '',
	evidence TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_term_evidence_document ON document_term_evidence(document_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
