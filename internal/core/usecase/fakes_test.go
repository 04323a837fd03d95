package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/chartmill/chartmill/internal/core/domain"
)

type repoFake struct {
	mu            sync.Mutex
	doc           *domain.Document
	getErr        error
	savedStates   []domain.ExtractionState
	savedDocTypes []string
	needsMetadata []bool
	activeCalls   []bool
	deleted       []string
	recentIDs     []string
	created       []*domain.Document
}

func (f *repoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, doc)
	return nil
}

func (f *repoFake) GetByID(context.Context, string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.doc == nil {
		return nil, domain.ErrDocumentNotFound
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *repoFake) SaveExtractionState(_ context.Context, _ string, state domain.ExtractionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedStates = append(f.savedStates, state)
	f.doc.Extraction = state
	return nil
}

func (f *repoFake) SaveDocType(_ context.Context, _ string, docType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedDocTypes = append(f.savedDocTypes, docType)
	f.doc.DocType = docType
	return nil
}

func (f *repoFake) SetNeedsMetadata(_ context.Context, _ string, needs bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.needsMetadata = append(f.needsMetadata, needs)
	return nil
}

func (f *repoFake) SetActive(_ context.Context, _ string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeCalls = append(f.activeCalls, active)
	return nil
}

func (f *repoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *repoFake) ListRecentIDs(context.Context, int) ([]string, error) {
	return f.recentIDs, nil
}

type projectionFake struct {
	vitals        []domain.VitalsRow
	smoking       []domain.SmokingRow
	mentalHealth  []domain.MentalHealthRow
	sexualHistory []domain.SexualHistoryRow
	communication []domain.CommunicationRow
	referrals     [][]domain.ReferralRow
	results       [][]domain.ResultRow
	deleted       []string
	failVitals    error
}

func (f *projectionFake) UpsertVitals(_ context.Context, row domain.VitalsRow) error {
	if f.failVitals != nil {
		return f.failVitals
	}
	f.vitals = append(f.vitals, row)
	return nil
}

func (f *projectionFake) UpsertSmoking(_ context.Context, row domain.SmokingRow) error {
	f.smoking = append(f.smoking, row)
	return nil
}

func (f *projectionFake) UpsertMentalHealth(_ context.Context, row domain.MentalHealthRow) error {
	f.mentalHealth = append(f.mentalHealth, row)
	return nil
}

func (f *projectionFake) UpsertSexualHistory(_ context.Context, row domain.SexualHistoryRow) error {
	f.sexualHistory = append(f.sexualHistory, row)
	return nil
}

func (f *projectionFake) UpsertCommunication(_ context.Context, row domain.CommunicationRow) error {
	f.communication = append(f.communication, row)
	return nil
}

func (f *projectionFake) ReplaceReferrals(_ context.Context, _ string, rows []domain.ReferralRow) error {
	f.referrals = append(f.referrals, rows)
	return nil
}

func (f *projectionFake) ReplaceResults(_ context.Context, _ string, rows []domain.ResultRow) error {
	f.results = append(f.results, rows)
	return nil
}

func (f *projectionFake) DeleteForDocument(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

type taxonomyFake struct {
	categories  []domain.Category
	keywords    map[string]domain.Keyword
	subkeywords map[string]domain.Subkeyword
	terms       map[string]domain.Term // keyed doc|kw|sub
	evidence    []domain.Evidence
	ruleDeletes int
	termDeletes []string
}

func newTaxonomyFake(categories ...domain.Category) *taxonomyFake {
	return &taxonomyFake{
		categories:  categories,
		keywords:    map[string]domain.Keyword{},
		subkeywords: map[string]domain.Subkeyword{},
		terms:       map[string]domain.Term{},
	}
}

func (f *taxonomyFake) SeedCategory(_ context.Context, category domain.Category) error {
	for _, c := range f.categories {
		if c.ID == category.ID {
			return nil
		}
	}
	f.categories = append(f.categories, category)
	return nil
}

func (f *taxonomyFake) InsertKeywordIfAbsent(_ context.Context, keyword domain.Keyword) error {
	if _, ok := f.keywords[keyword.ID]; !ok {
		f.keywords[keyword.ID] = keyword
	}
	return nil
}

func (f *taxonomyFake) InsertSubkeywordIfAbsent(_ context.Context, subkeyword domain.Subkeyword) error {
	if _, ok := f.subkeywords[subkeyword.ID]; !ok {
		f.subkeywords[subkeyword.ID] = subkeyword
	}
	return nil
}

func (f *taxonomyFake) ListCategories(context.Context) ([]domain.Category, error) {
	return f.categories, nil
}

func (f *taxonomyFake) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	for _, c := range f.categories {
		if c.ID == id {
			copyCat := c
			return &copyCat, nil
		}
	}
	return nil, domain.ErrInvalidInput
}

func (f *taxonomyFake) ListKeywords(_ context.Context, categoryID string) ([]domain.Keyword, error) {
	var out []domain.Keyword
	for _, kw := range f.keywords {
		if kw.CategoryID == categoryID {
			out = append(out, kw)
		}
	}
	return out, nil
}

func (f *taxonomyFake) ListSubkeywords(_ context.Context, categoryID string) ([]domain.Subkeyword, error) {
	var out []domain.Subkeyword
	for _, sub := range f.subkeywords {
		if kw, ok := f.keywords[sub.KeywordID]; ok && kw.CategoryID == categoryID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *taxonomyFake) InsertTermIfAbsent(_ context.Context, term domain.Term) error {
	key := term.DocumentID + "|" + term.KeywordID + "|" + term.SubkeywordID
	if _, ok := f.terms[key]; !ok {
		f.terms[key] = term
	}
	return nil
}

func (f *taxonomyFake) DeleteRuleTerms(_ context.Context, documentID string, categoryIDs []string) error {
	f.ruleDeletes++
	for key, term := range f.terms {
		if term.DocumentID == documentID && term.Source == domain.TermSourceRule {
			delete(f.terms, key)
		}
	}
	return nil
}

func (f *taxonomyFake) InsertEvidence(_ context.Context, evidence domain.Evidence) error {
	f.evidence = append(f.evidence, evidence)
	return nil
}

func (f *taxonomyFake) CountTerms(_ context.Context, documentID string) (int, error) {
	count := 0
	for _, term := range f.terms {
		if term.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

func (f *taxonomyFake) DeleteTermsForDocument(_ context.Context, documentID string) error {
	f.termDeletes = append(f.termDeletes, documentID)
	for key, term := range f.terms {
		if term.DocumentID == documentID {
			delete(f.terms, key)
		}
	}
	return nil
}

func (f *taxonomyFake) hasTerm(documentID, keywordID string) bool {
	for _, term := range f.terms {
		if term.DocumentID == documentID && term.KeywordID == keywordID {
			return true
		}
	}
	return false
}

type annotatorFake struct {
	mu sync.Mutex

	highLevel    *domain.HighLevelResult
	highLevelErr error
	detailed     *domain.DetailedTypeResult
	detailedErr  error
	modules      []domain.ModuleName
	selectErr    error
	selectHints  []*domain.HighLevelType
	payloads     map[domain.ModuleName]string
	extractErrs  map[domain.ModuleName]error
	extractCalls []domain.ModuleName
	matches      map[string]*domain.TaxonomyMatchResult
	matchErr     error
	matchCalls   []string
}

func (f *annotatorFake) ClassifyHighLevel(context.Context, *domain.Document) (*domain.HighLevelResult, error) {
	if f.highLevelErr != nil {
		return nil, f.highLevelErr
	}
	return f.highLevel, nil
}

func (f *annotatorFake) ClassifyDetailed(context.Context, *domain.Document) (*domain.DetailedTypeResult, error) {
	if f.detailedErr != nil {
		return nil, f.detailedErr
	}
	return f.detailed, nil
}

func (f *annotatorFake) SelectModules(_ context.Context, _ *domain.Document, hint *domain.HighLevelType) ([]domain.ModuleName, error) {
	f.mu.Lock()
	f.selectHints = append(f.selectHints, hint)
	f.mu.Unlock()
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.modules, nil
}

func (f *annotatorFake) ExtractModule(_ context.Context, _ *domain.Document, module domain.ModuleName) (json.RawMessage, error) {
	f.mu.Lock()
	f.extractCalls = append(f.extractCalls, module)
	f.mu.Unlock()
	if err := f.extractErrs[module]; err != nil {
		return nil, err
	}
	payload, ok := f.payloads[module]
	if !ok {
		payload = "{}"
	}
	return json.RawMessage(payload), nil
}

func (f *annotatorFake) MatchTaxonomy(
	_ context.Context,
	_ *domain.Document,
	category domain.Category,
	_ []domain.Keyword,
	_ []domain.Subkeyword,
) (*domain.TaxonomyMatchResult, error) {
	f.mu.Lock()
	f.matchCalls = append(f.matchCalls, category.ID)
	f.mu.Unlock()
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	if result, ok := f.matches[category.ID]; ok {
		return result, nil
	}
	return &domain.TaxonomyMatchResult{Category: category.ID}, nil
}

type indexFake struct {
	readyAfter int
	readyCalls int
	readyErr   error
	updates    []map[string]any
	updateErr  error
}

func (f *indexFake) IsReady(context.Context, string) (bool, error) {
	f.readyCalls++
	if f.readyErr != nil {
		return false, f.readyErr
	}
	return f.readyCalls > f.readyAfter, nil
}

func (f *indexFake) UpdateAttributes(_ context.Context, _ string, attrs map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, attrs)
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishPipelineRun(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribePipelineRun(context.Context, func(context.Context, string) error) error {
	return nil
}

type storageFake struct {
	saved map[string][]byte
	err   error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.saved[key])), nil
}

type transcriptFake struct {
	text string
	err  error
}

func (f *transcriptFake) Extract(context.Context, *domain.Document) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// poolFake runs submitted jobs synchronously.
type poolFake struct {
	submitErr error
	ran       int
}

func (f *poolFake) Submit(job func(ctx context.Context)) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.ran++
	job(context.Background())
	return nil
}
