package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/core/taxonomy"
)

// tagCategory runs the model-driven extractor for one category: it presents
// the current vocabulary, validates what comes back, persists proposed
// concepts under review, and records terms plus evidence. A proposed label
// whose derived id already exists is treated as a match to the existing
// concept, never a second insert.
func (uc *PipelineUseCase) tagCategory(ctx context.Context, doc *domain.Document, category domain.Category) error {
	keywords, err := uc.taxonomies.ListKeywords(ctx, category.ID)
	if err != nil {
		return fmt.Errorf("list keywords: %w", err)
	}
	subkeywords, err := uc.taxonomies.ListSubkeywords(ctx, category.ID)
	if err != nil {
		return fmt.Errorf("list subkeywords: %w", err)
	}

	result, err := uc.annotator.MatchTaxonomy(ctx, doc, category, keywords, subkeywords)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		known[kw.ID] = true
	}
	knownSubs := make(map[string]bool, len(subkeywords))
	for _, sub := range subkeywords {
		knownSubs[sub.ID] = true
	}

	for _, match := range result.Matches {
		keywordID, subkeywordID, err := uc.resolveMatch(ctx, category, match, known, knownSubs)
		if err != nil {
			uc.logger.Warn("taxonomy match discarded",
				"document_id", doc.ID, "category", category.ID, "error", err)
			continue
		}
		if keywordID == "" {
			continue
		}

		err = uc.taxonomies.InsertTermIfAbsent(ctx, domain.Term{
			DocumentID:   doc.ID,
			KeywordID:    keywordID,
			SubkeywordID: subkeywordID,
			Source:       domain.TermSourceModel,
		})
		if err != nil {
			return fmt.Errorf("insert model term %s: %w", keywordID, err)
		}
		if evidence := strings.TrimSpace(match.Evidence); evidence != "" {
			err = uc.taxonomies.InsertEvidence(ctx, domain.Evidence{
				DocumentID:   doc.ID,
				KeywordID:    keywordID,
				SubkeywordID: subkeywordID,
				Text:         evidence,
			})
			if err != nil {
				return fmt.Errorf("insert model evidence %s: %w", keywordID, err)
			}
		}
	}
	return nil
}

// resolveMatch turns one model match into a (keyword, subkeyword) pair,
// creating proposed concepts as needed. Matches referencing ids outside the
// presented vocabulary are rejected.
func (uc *PipelineUseCase) resolveMatch(
	ctx context.Context,
	category domain.Category,
	match domain.TaxonomyMatch,
	known map[string]bool,
	knownSubs map[string]bool,
) (string, string, error) {
	keywordID := strings.TrimSpace(match.KeywordID)

	switch {
	case match.NewKeyword != nil:
		label := strings.TrimSpace(match.NewKeyword.Label)
		if taxonomy.Slugify(label) == "" {
			return "", "", fmt.Errorf("proposed keyword has no usable label")
		}
		keywordID = taxonomy.KeywordID(category.ID, label)
		if !known[keywordID] {
			err := uc.taxonomies.InsertKeywordIfAbsent(ctx, domain.Keyword{
				ID:         keywordID,
				CategoryID: category.ID,
				Label:      label,
				Synonyms:   match.NewKeyword.Synonyms,
				Status:     domain.ConceptReview,
			})
			if err != nil {
				return "", "", fmt.Errorf("insert proposed keyword: %w", err)
			}
			known[keywordID] = true
		}
	case keywordID != "":
		if !known[keywordID] {
			return "", "", fmt.Errorf("keyword %q not in category vocabulary", keywordID)
		}
	case match.NewSubkeyword == nil:
		return "", "", fmt.Errorf("match carries neither keyword nor proposal")
	}

	subkeywordID := strings.TrimSpace(match.SubkeywordID)
	if subkeywordID != "" && !knownSubs[subkeywordID] {
		return "", "", fmt.Errorf("subkeyword %q not in category vocabulary", subkeywordID)
	}

	if match.NewSubkeyword != nil {
		parent := strings.TrimSpace(match.NewSubkeyword.KeywordID)
		if parent == "" {
			parent = keywordID
		}
		if parent == "" || !known[parent] {
			return "", "", fmt.Errorf("proposed subkeyword has unknown parent %q", parent)
		}
		label := strings.TrimSpace(match.NewSubkeyword.Label)
		if taxonomy.Slugify(label) == "" {
			return "", "", fmt.Errorf("proposed subkeyword has no usable label")
		}
		subkeywordID = taxonomy.SubkeywordID(parent, label)
		if !knownSubs[subkeywordID] {
			err := uc.taxonomies.InsertSubkeywordIfAbsent(ctx, domain.Subkeyword{
				ID:        subkeywordID,
				KeywordID: parent,
				Label:     label,
				Synonyms:  match.NewSubkeyword.Synonyms,
				Status:    domain.ConceptReview,
			})
			if err != nil {
				return "", "", fmt.Errorf("insert proposed subkeyword: %w", err)
			}
			knownSubs[subkeywordID] = true
		}
		if keywordID == "" {
			keywordID = parent
		}
	}

	return keywordID, subkeywordID, nil
}
