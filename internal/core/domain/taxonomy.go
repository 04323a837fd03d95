package domain

// ConceptStatus separates curated vocabulary from model proposals awaiting
// review. Model-created concepts are never auto-approved.
type ConceptStatus string

const (
	ConceptApproved ConceptStatus = "approved"
	ConceptReview   ConceptStatus = "review"
)

// Category is the top level of the controlled vocabulary. The set is fixed
// and seeded at startup.
type Category struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Keyword IDs are namespaced "<category>.<slug>".
type Keyword struct {
	ID         string        `json:"id"`
	CategoryID string        `json:"category_id"`
	Label      string        `json:"label"`
	Synonyms   []string      `json:"synonyms"`
	Status     ConceptStatus `json:"status"`
}

// Subkeyword IDs are namespaced "<keyword-id>.<slug>".
type Subkeyword struct {
	ID        string        `json:"id"`
	KeywordID string        `json:"keyword_id"`
	Label     string        `json:"label"`
	Synonyms  []string      `json:"synonyms"`
	Status    ConceptStatus `json:"status"`
}

// TermSource records whether a term came from the deterministic rules or the
// model-driven extractor; rule terms are wiped and recomputed per pass.
type TermSource string

const (
	TermSourceRule  TermSource = "rule"
	TermSourceModel TermSource = "model"
)

// Term links a document to a keyword, optionally narrowed to a subkeyword.
// The (document, keyword, subkeyword) triple is unique; re-tagging is a
// no-op.
type Term struct {
	DocumentID   string     `json:"document_id"`
	KeywordID    string     `json:"keyword_id"`
	SubkeywordID string     `json:"subkeyword_id,omitempty"`
	Source       TermSource `json:"source"`
}

// Evidence is diagnostic text explaining why a term was applied. It is not
// unique-constrained and is safe to recreate.
type Evidence struct {
	DocumentID   string `json:"document_id"`
	KeywordID    string `json:"keyword_id"`
	SubkeywordID string `json:"subkeyword_id,omitempty"`
	Text         string `json:"text"`
}

// ConceptProposal is a model-suggested keyword or subkeyword.
type ConceptProposal struct {
	Label    string   `json:"label"`
	Synonyms []string `json:"synonyms"`
	// KeywordID is set only for subkeyword proposals and names the parent.
	KeywordID string `json:"keyword_id,omitempty"`
}

// TaxonomyMatch is one concept the model matched or proposed for a document.
type TaxonomyMatch struct {
	KeywordID     string           `json:"keyword_id,omitempty"`
	SubkeywordID  string           `json:"subkeyword_id,omitempty"`
	NewKeyword    *ConceptProposal `json:"new_keyword,omitempty"`
	NewSubkeyword *ConceptProposal `json:"new_subkeyword,omitempty"`
	Evidence      string           `json:"evidence,omitempty"`
}

// TaxonomyMatchResult is the full model response for one category. A result
// whose Category does not match the requested category is discarded.
type TaxonomyMatchResult struct {
	Category string          `json:"category"`
	Matches  []TaxonomyMatch `json:"matches"`
}
