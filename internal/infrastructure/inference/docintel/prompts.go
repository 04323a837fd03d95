package docintel

import (
	"fmt"
	"strings"

	"github.com/chartmill/chartmill/internal/core/domain"
)

const maxTranscriptSnippet = 6000

func transcriptSnippet(doc *domain.Document) string {
	snippet := doc.Transcript
	if len(snippet) > maxTranscriptSnippet {
		snippet = snippet[:maxTranscriptSnippet]
	}
	if snippet == "" {
		return "(no transcript available; use the referenced document)"
	}
	return snippet
}

func buildHighLevelPrompt(doc *domain.Document) string {
	return fmt.Sprintf(`You are a clinical document classifier.
Return a strict JSON object with keys:
type (one of: clinical_encounter, communication, result, referral, administrative, external_record),
confidence (number from 0 to 1).
No markdown, no extra keys.

Document reference: %s
Document:
%s`, doc.ID, transcriptSnippet(doc))
}

func buildDetailedPrompt(doc *domain.Document) string {
	return fmt.Sprintf(`You are a clinical document classifier.
Name the specific document type (for example: progress_note, discharge_summary,
lab_report, imaging_report, patient_letter). If you cannot tell, use "unclassified".
Return a strict JSON object with keys: doc_type (string), confidence (number from 0 to 1).
No markdown, no extra keys.

Document reference: %s
Document:
%s`, doc.ID, transcriptSnippet(doc))
}

func buildModuleSelectionPrompt(doc *domain.Document, hint *domain.HighLevelType) string {
	hintLine := "unknown"
	if hint != nil {
		hintLine = string(*hint)
	}

	names := make([]string, 0, len(domain.AllModules()))
	for _, m := range domain.AllModules() {
		names = append(names, string(m))
	}

	return fmt.Sprintf(`You decide which structured-extraction modules apply to a clinical document.
Available modules: %s.
The document's coarse type is: %s.
Return a strict JSON object: {"modules": [list of applicable module names]}.
Only use names from the list above. An empty list is valid.

Document reference: %s
Document:
%s`, strings.Join(names, ", "), hintLine, doc.ID, transcriptSnippet(doc))
}

var modulePromptBodies = map[domain.ModuleName]string{
	domain.ModuleVitals: `Extract vital signs. Return a strict JSON object with keys:
blood_pressure (object {systolic, diastolic} or a "120/80" string, null if absent),
spo2, heart_rate, temperature, respiratory_rate (numbers or null).`,
	domain.ModuleSmoking: `Extract smoking history. Return a strict JSON object with keys:
status ("current", "former", "never" or ""),
pharmacologic_offered, behavioral_support, cessation_referral, follow_up_planned (booleans).`,
	domain.ModuleMentalHealth: `Extract mental health content. Return a strict JSON object with boolean keys:
affect_noted, behavior_noted, symptom_noted, diagnosis_noted,
anxiety_symptom, anxiety_diagnosis, depression_symptom, depression_diagnosis,
substance_use_symptom, substance_use_diagnosis.`,
	domain.ModuleSexualHistory: `Extract sexual history. Return a strict JSON object with keys:
activity_reported, partners_reported (booleans), partner_count (number or null),
partner_sti_positive, new_partner, multiple_partners, unprotected_sex,
sti_history, transactional_sex, screening_offered (booleans).`,
	domain.ModuleReferral: `Extract referrals. Return a strict JSON object with keys:
specialty (string), reason (string), additional (array of free-text referral mentions).`,
	domain.ModuleResults: `Extract test results. Return a strict JSON object:
{"items": [{"test_name", "value", "unit", "abnormal"}]}.`,
	domain.ModuleCommunication: `Extract communication details. Return a strict JSON object with keys:
initiator ("patient", "provider" or "clinic"), mode (string), subject (string).`,
}

func buildModulePrompt(doc *domain.Document, module domain.ModuleName) string {
	body, ok := modulePromptBodies[module]
	if !ok {
		body = "Return a strict JSON object describing this document."
	}
	return fmt.Sprintf(`%s
No markdown, no extra keys. Use null for anything not documented; never guess.

Document reference: %s
Document:
%s`, body, doc.ID, transcriptSnippet(doc))
}

func buildTaxonomyPrompt(
	doc *domain.Document,
	category domain.Category,
	keywords []domain.Keyword,
	subkeywords []domain.Subkeyword,
) string {
	var vocab strings.Builder
	subsByKeyword := make(map[string][]domain.Subkeyword)
	for _, sub := range subkeywords {
		subsByKeyword[sub.KeywordID] = append(subsByKeyword[sub.KeywordID], sub)
	}
	for _, kw := range keywords {
		fmt.Fprintf(&vocab, "- %s (%s)", kw.ID, kw.Label)
		if len(kw.Synonyms) > 0 {
			fmt.Fprintf(&vocab, " synonyms: %s", strings.Join(kw.Synonyms, ", "))
		}
		vocab.WriteString("\n")
		for _, sub := range subsByKeyword[kw.ID] {
			fmt.Fprintf(&vocab, "  - %s (%s)", sub.ID, sub.Label)
			if len(sub.Synonyms) > 0 {
				fmt.Fprintf(&vocab, " synonyms: %s", strings.Join(sub.Synonyms, ", "))
			}
			vocab.WriteString("\n")
		}
	}

	return fmt.Sprintf(`You tag clinical documents against a controlled vocabulary.
Category: %s (%s)
Existing vocabulary:
%s
Match concepts in the document to existing keyword/subkeyword ids, or propose new
ones with a label and synonyms. A synonym should belong to at most one keyword, and
subkeywords under the same keyword should not share synonyms.
Return a strict JSON object:
{"category": "%s", "matches": [{"keyword_id", "subkeyword_id", "new_keyword": {"label", "synonyms"},
"new_subkeyword": {"keyword_id", "label", "synonyms"}, "evidence"}]}.
Omit keys that do not apply. Quote the supporting text in evidence.

Document reference: %s
Document:
%s`, category.ID, category.Label, vocab.String(), category.ID, doc.ID, transcriptSnippet(doc))
}
