package ports

import (
	"context"
	"encoding/json"
	"io"

	"github.com/chartmill/chartmill/internal/core/domain"
)

// DocumentRepository persists and reads document state. Each pipeline stage
// writes its own column, so partial writes from an aborted pass are simply
// overwritten on the next one.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	SaveExtractionState(ctx context.Context, id string, state domain.ExtractionState) error
	SaveDocType(ctx context.Context, id, docType string) error
	SetNeedsMetadata(ctx context.Context, id string, needs bool) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	ListRecentIDs(ctx context.Context, limit int) ([]string, error)
}

// ProjectionStore writes relational projections. Singleton rows are upserted
// by document id; referral and result rows are replaced wholesale.
type ProjectionStore interface {
	UpsertVitals(ctx context.Context, row domain.VitalsRow) error
	UpsertSmoking(ctx context.Context, row domain.SmokingRow) error
	UpsertMentalHealth(ctx context.Context, row domain.MentalHealthRow) error
	UpsertSexualHistory(ctx context.Context, row domain.SexualHistoryRow) error
	UpsertCommunication(ctx context.Context, row domain.CommunicationRow) error
	ReplaceReferrals(ctx context.Context, documentID string, rows []domain.ReferralRow) error
	ReplaceResults(ctx context.Context, documentID string, rows []domain.ResultRow) error
	DeleteForDocument(ctx context.Context, documentID string) error
}

// TaxonomyStore persists the controlled vocabulary and document terms.
type TaxonomyStore interface {
	SeedCategory(ctx context.Context, category domain.Category) error
	InsertKeywordIfAbsent(ctx context.Context, keyword domain.Keyword) error
	InsertSubkeywordIfAbsent(ctx context.Context, subkeyword domain.Subkeyword) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListKeywords(ctx context.Context, categoryID string) ([]domain.Keyword, error)
	ListSubkeywords(ctx context.Context, categoryID string) ([]domain.Subkeyword, error)
	InsertTermIfAbsent(ctx context.Context, term domain.Term) error
	DeleteRuleTerms(ctx context.Context, documentID string, categoryIDs []string) error
	InsertEvidence(ctx context.Context, evidence domain.Evidence) error
	CountTerms(ctx context.Context, documentID string) (int, error)
	DeleteTermsForDocument(ctx context.Context, documentID string) error
}

// DocumentAnnotator is the inference-backed stage surface. Implementations
// build the prompt, call the document-understanding service, and parse the
// response; malformed output comes back as domain.ErrMalformedOutput and
// exhausted rate-limit retries as domain.ErrTemporary.
type DocumentAnnotator interface {
	ClassifyHighLevel(ctx context.Context, doc *domain.Document) (*domain.HighLevelResult, error)
	ClassifyDetailed(ctx context.Context, doc *domain.Document) (*domain.DetailedTypeResult, error)
	SelectModules(ctx context.Context, doc *domain.Document, hint *domain.HighLevelType) ([]domain.ModuleName, error)
	ExtractModule(ctx context.Context, doc *domain.Document, module domain.ModuleName) (json.RawMessage, error)
	MatchTaxonomy(
		ctx context.Context,
		doc *domain.Document,
		category domain.Category,
		keywords []domain.Keyword,
		subkeywords []domain.Subkeyword,
	) (*domain.TaxonomyMatchResult, error)
}

// SearchIndex is the best-effort external index. The relational store stays
// authoritative; failures here are logged, never fatal.
type SearchIndex interface {
	IsReady(ctx context.Context, docRef string) (bool, error)
	UpdateAttributes(ctx context.Context, docRef string, attrs map[string]any) error
}

// ObjectStorage stores the original uploaded bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TranscriptExtractor pulls plain text from a stored document, best effort.
type TranscriptExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// MessageQueue hands pipeline runs from the api binary to the worker.
type MessageQueue interface {
	PublishPipelineRun(ctx context.Context, documentID string) error
	SubscribePipelineRun(ctx context.Context, handler func(context.Context, string) error) error
}
