package domain

import "time"

// HighLevelType is the coarse classification of a document. The enumeration
// is closed: an inference response outside it is a stage failure, never
// coerced into the nearest member.
type HighLevelType string

const (
	TypeClinicalEncounter HighLevelType = "clinical_encounter"
	TypeCommunication     HighLevelType = "communication"
	TypeResult            HighLevelType = "result"
	TypeReferral          HighLevelType = "referral"
	TypeAdministrative    HighLevelType = "administrative"
	TypeExternalRecord    HighLevelType = "external_record"
)

// DocTypeUnclassified is the sentinel the detailed classifier returns when it
// cannot name a specific document type.
const DocTypeUnclassified = "unclassified"

func ParseHighLevelType(raw string) (HighLevelType, bool) {
	switch HighLevelType(raw) {
	case TypeClinicalEncounter, TypeCommunication, TypeResult, TypeReferral, TypeAdministrative, TypeExternalRecord:
		return HighLevelType(raw), true
	default:
		return "", false
	}
}

// Document is one uploaded file plus everything the pipeline has learned
// about it so far. Extraction grows additively as stages complete; projection
// rows and taxonomy terms are always rederivable from it.
type Document struct {
	ID            string          `json:"id"`
	StorageKey    string          `json:"storage_key"`
	DocType       string          `json:"doc_type,omitempty"`
	EncounterDate *time.Time      `json:"encounter_date,omitempty"`
	Provider      string          `json:"provider,omitempty"`
	Facility      string          `json:"facility,omitempty"`
	Active        bool            `json:"active"`
	NeedsMetadata bool            `json:"needs_metadata"`
	Extraction    ExtractionState `json:"extraction"`
	Transcript    string          `json:"transcript,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
