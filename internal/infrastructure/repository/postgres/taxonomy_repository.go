package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/core/ports"
)

type TaxonomyRepository struct {
	db *sql.DB
}

var _ ports.TaxonomyStore = (*TaxonomyRepository)(nil)

func NewTaxonomyRepository(db *sql.DB) *TaxonomyRepository {
	return &TaxonomyRepository{db: db}
}

func (r *TaxonomyRepository) SeedCategory(ctx context.Context, category domain.Category) error {
	const query = `
		INSERT INTO taxonomy_categories (id, label) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label`

	if _, err := r.db.ExecContext(ctx, query, category.ID, category.Label); err != nil {
		return fmt.Errorf("seed category %s: %w", category.ID, err)
	}
	return nil
}

// InsertKeywordIfAbsent inserts with DO NOTHING: an id collision means the
// concept already exists and the caller treats it as a match, never an error.
func (r *TaxonomyRepository) InsertKeywordIfAbsent(ctx context.Context, keyword domain.Keyword) error {
	synonyms, err := json.Marshal(emptyIfNil(keyword.Synonyms))
	if err != nil {
		return fmt.Errorf("marshal keyword synonyms: %w", err)
	}

	const query = `
		INSERT INTO taxonomy_keywords (id, category_id, label, synonyms, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query,
		keyword.ID, keyword.CategoryID, keyword.Label, synonyms, string(keyword.Status),
	); err != nil {
		return fmt.Errorf("insert keyword %s: %w", keyword.ID, err)
	}
	return nil
}

func (r *TaxonomyRepository) InsertSubkeywordIfAbsent(ctx context.Context, subkeyword domain.Subkeyword) error {
	synonyms, err := json.Marshal(emptyIfNil(subkeyword.Synonyms))
	if err != nil {
		return fmt.Errorf("marshal subkeyword synonyms: %w", err)
	}

	const query = `
		INSERT INTO taxonomy_subkeywords (id, keyword_id, label, synonyms, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query,
		subkeyword.ID, subkeyword.KeywordID, subkeyword.Label, synonyms, string(subkeyword.Status),
	); err != nil {
		return fmt.Errorf("insert subkeyword %s: %w", subkeyword.ID, err)
	}
	return nil
}

func (r *TaxonomyRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, label FROM taxonomy_categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Label); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (r *TaxonomyRepository) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, label FROM taxonomy_categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", id, domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("select category: %w", err)
	}
	return &c, nil
}

func (r *TaxonomyRepository) ListKeywords(ctx context.Context, categoryID string) ([]domain.Keyword, error) {
	const query = `
		SELECT id, category_id, label, synonyms, status
		FROM taxonomy_keywords
		WHERE category_id = $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	var keywords []domain.Keyword
	for rows.Next() {
		var (
			kw       domain.Keyword
			synonyms []byte
			status   string
		)
		if err := rows.Scan(&kw.ID, &kw.CategoryID, &kw.Label, &synonyms, &status); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		if err := json.Unmarshal(synonyms, &kw.Synonyms); err != nil {
			return nil, fmt.Errorf("unmarshal keyword synonyms: %w", err)
		}
		kw.Status = domain.ConceptStatus(status)
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keywords: %w", err)
	}
	return keywords, nil
}

func (r *TaxonomyRepository) ListSubkeywords(ctx context.Context, categoryID string) ([]domain.Subkeyword, error) {
	const query = `
		SELECT s.id, s.keyword_id, s.label, s.synonyms, s.status
		FROM taxonomy_subkeywords s
		JOIN taxonomy_keywords k ON k.id = s.keyword_id
		WHERE k.category_id = $1
		ORDER BY s.id`

	rows, err := r.db.QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list subkeywords: %w", err)
	}
	defer rows.Close()

	var subkeywords []domain.Subkeyword
	for rows.Next() {
		var (
			sub      domain.Subkeyword
			synonyms []byte
			status   string
		)
		if err := rows.Scan(&sub.ID, &sub.KeywordID, &sub.Label, &synonyms, &status); err != nil {
			return nil, fmt.Errorf("scan subkeyword: %w", err)
		}
		if err := json.Unmarshal(synonyms, &sub.Synonyms); err != nil {
			return nil, fmt.Errorf("unmarshal subkeyword synonyms: %w", err)
		}
		sub.Status = domain.ConceptStatus(status)
		subkeywords = append(subkeywords, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subkeywords: %w", err)
	}
	return subkeywords, nil
}

func (r *TaxonomyRepository) InsertTermIfAbsent(ctx context.Context, term domain.Term) error {
	const query = `
		INSERT INTO document_terms (document_id, keyword_id, subkeyword_id, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_id, keyword_id, subkeyword_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query,
		term.DocumentID, term.KeywordID, term.SubkeywordID, string(term.Source),
	); err != nil {
		return fmt.Errorf("insert term %s/%s: %w", term.DocumentID, term.KeywordID, err)
	}
	return nil
}

// DeleteRuleTerms wipes rule-sourced terms for the named categories so a pass
// recomputes them from scratch. Model-sourced terms survive.
func (r *TaxonomyRepository) DeleteRuleTerms(ctx context.Context, documentID string, categoryIDs []string) error {
	if len(categoryIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(categoryIDs))
	args := make([]any, 0, len(categoryIDs)+1)
	args = append(args, documentID)
	for i, id := range categoryIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	in := strings.Join(placeholders, ", ")

	// Evidence first, scoped through the surviving term rows: model-sourced
	// evidence must outlive a rule wipe. The term delete would break the join.
	evidenceQuery := fmt.Sprintf(`
		DELETE FROM document_term_evidence e
		USING document_terms t, taxonomy_keywords k
		WHERE t.document_id = e.document_id
		  AND t.keyword_id = e.keyword_id
		  AND t.subkeyword_id = e.subkeyword_id
		  AND k.id = t.keyword_id
		  AND e.document_id = $1
		  AND t.source = 'rule'
		  AND k.category_id IN (%s)`, in)

	if _, err := r.db.ExecContext(ctx, evidenceQuery, args...); err != nil {
		return fmt.Errorf("delete rule term evidence: %w", err)
	}

	query := fmt.Sprintf(`
		DELETE FROM document_terms t
		USING taxonomy_keywords k
		WHERE t.keyword_id = k.id
		  AND t.document_id = $1
		  AND t.source = 'rule'
		  AND k.category_id IN (%s)`, in)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete rule terms: %w", err)
	}
	return nil
}

func (r *TaxonomyRepository) InsertEvidence(ctx context.Context, evidence domain.Evidence) error {
	const query = `
		INSERT INTO document_term_evidence (document_id, keyword_id, subkeyword_id, evidence)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.ExecContext(ctx, query,
		evidence.DocumentID, evidence.KeywordID, evidence.SubkeywordID, evidence.Text,
	); err != nil {
		return fmt.Errorf("insert term evidence: %w", err)
	}
	return nil
}

func (r *TaxonomyRepository) CountTerms(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_terms WHERE document_id = $1`, documentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count terms: %w", err)
	}
	return count, nil
}

func (r *TaxonomyRepository) DeleteTermsForDocument(ctx context.Context, documentID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM document_terms WHERE document_id = $1`, documentID,
	); err != nil {
		return fmt.Errorf("delete document terms: %w", err)
	}
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM document_term_evidence WHERE document_id = $1`, documentID,
	); err != nil {
		return fmt.Errorf("delete document term evidence: %w", err)
	}
	return nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
