package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ModuleName identifies a structured-extraction module. The set is a fixed
// allow-list; names outside it coming back from the model are dropped.
type ModuleName string

const (
	ModuleVitals        ModuleName = "vitals"
	ModuleSmoking       ModuleName = "smoking"
	ModuleMentalHealth  ModuleName = "mental_health"
	ModuleSexualHistory ModuleName = "sexual_history"
	ModuleReferral      ModuleName = "referral"
	ModuleResults       ModuleName = "results"
	ModuleCommunication ModuleName = "communication"
)

func AllModules() []ModuleName {
	return []ModuleName{
		ModuleVitals,
		ModuleSmoking,
		ModuleMentalHealth,
		ModuleSexualHistory,
		ModuleReferral,
		ModuleResults,
		ModuleCommunication,
	}
}

func KnownModule(name string) (ModuleName, bool) {
	for _, m := range AllModules() {
		if string(m) == strings.TrimSpace(strings.ToLower(name)) {
			return m, true
		}
	}
	return "", false
}

// HighLevelResult is the outcome of the coarse classifier.
type HighLevelResult struct {
	Type       HighLevelType `json:"type"`
	Confidence float64       `json:"confidence"`
}

// DetailedTypeResult is the outcome of the detailed classifier. DocType may
// be DocTypeUnclassified.
type DetailedTypeResult struct {
	DocType    string  `json:"doc_type"`
	Confidence float64 `json:"confidence"`
}

// ModuleSelection records which modules the selector chose for this document.
type ModuleSelection struct {
	Modules []ModuleName `json:"modules"`
}

// ModulePayloads holds the latest payload per module. A rerun replaces the
// pointer wholesale; payloads are never merged.
type ModulePayloads struct {
	Vitals        *VitalsPayload        `json:"vitals,omitempty"`
	Smoking       *SmokingPayload       `json:"smoking,omitempty"`
	MentalHealth  *MentalHealthPayload  `json:"mental_health,omitempty"`
	SexualHistory *SexualHistoryPayload `json:"sexual_history,omitempty"`
	Referral      *ReferralPayload      `json:"referral,omitempty"`
	Results       *ResultsPayload       `json:"results,omitempty"`
	Communication *CommunicationPayload `json:"communication,omitempty"`
}

// ExtractionState is the accumulating record of completed pipeline stages,
// one explicit field per stage instead of a loose key-value bag.
type ExtractionState struct {
	HighLevel    *HighLevelResult    `json:"high_level,omitempty"`
	DetailedType *DetailedTypeResult `json:"detailed_type,omitempty"`
	Selection    *ModuleSelection    `json:"selection,omitempty"`
	Modules      ModulePayloads      `json:"modules"`
}

// SetModulePayload decodes raw into the typed payload for name and replaces
// whatever was there before.
func (s *ExtractionState) SetModulePayload(name ModuleName, raw json.RawMessage) error {
	switch name {
	case ModuleVitals:
		p := &VitalsPayload{}
		if err := json.Unmarshal(raw, p); err != nil {
			return fmt.Errorf("decode vitals payload: %w", err)
		}
		s.Modules.Vitals = p
	case ModuleSmoking:
		p := &SmokingPayload{}
		if err := json.Unmarshal(raw, p); err != nil {
			return fmt.Errorf("decode smoking payload: %w", err)
		}
		s.Modules.Smoking = p
	case ModuleMentalHealth:
		p := &MentalHealthPayload{}
		if err := json.Unmarshal(raw, p); err != nil {
			return fmt.Errorf("decode mental_health payload: %w", err)
		}
		s.Modules.MentalHealth = p
	case ModuleSexualHistory:
		p := &SexualHistoryPayload{}
		if err := json.Unmarshal(raw, p); err != nil {
			return fmt.Errorf("decode sexual_history payload: %w", err)
		}
		s.Modules.SexualHistory = p
	case ModuleReferral:
		p := &ReferralPayload{}
		if err := json.Unmarshal(raw, p); err != nil {
			return fmt.Errorf("decode referral payload: %w", err)
		}
		s.Modules.Referral = p
	case ModuleResults:
		p := &ResultsPayload{}
		if err := json.Unmarshal(raw, p); err != nil {
			return fmt.Errorf("decode results payload: %w", err)
		}
		s.Modules.Results = p
	case ModuleCommunication:
		p := &CommunicationPayload{}
		if err := json.Unmarshal(raw, p); err != nil {
			return fmt.Errorf("decode communication payload: %w", err)
		}
		s.Modules.Communication = p
	default:
		return fmt.Errorf("unknown module %q", name)
	}
	return nil
}

// HasAnyModule reports whether at least one module payload has been stored.
func (s ExtractionState) HasAnyModule() bool {
	m := s.Modules
	return m.Vitals != nil || m.Smoking != nil || m.MentalHealth != nil ||
		m.SexualHistory != nil || m.Referral != nil || m.Results != nil ||
		m.Communication != nil
}

// FlexNumber is a numeric field that tolerates sloppy model output: anything
// that is not a finite JSON number decodes to null rather than an error or a
// zero.
type FlexNumber struct {
	value float64
	valid bool
}

func Number(v float64) FlexNumber {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return FlexNumber{}
	}
	return FlexNumber{value: v, valid: true}
}

func (n FlexNumber) Ptr() *float64 {
	if !n.valid {
		return nil
	}
	v := n.value
	return &v
}

func (n FlexNumber) Get() (float64, bool) {
	return n.value, n.valid
}

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	// json.Unmarshal leaves a float64 untouched on a null token, which would
	// read as a valid zero here; null must stay invalid.
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*n = FlexNumber{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*n = FlexNumber{}
		return nil
	}
	*n = Number(v)
	return nil
}

func (n FlexNumber) MarshalJSON() ([]byte, error) {
	if !n.valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.value)
}

var bpTextPattern = regexp.MustCompile(`(\d{2,3})\s*/\s*(\d{2,3})`)

// BloodPressure accepts either a structured {systolic, diastolic} object or a
// free-text "120/80"-style string. Unparseable input decodes to nulls.
type BloodPressure struct {
	Systolic  FlexNumber `json:"systolic"`
	Diastolic FlexNumber `json:"diastolic"`
}

func ParseBloodPressureText(raw string) (BloodPressure, bool) {
	m := bpTextPattern.FindStringSubmatch(raw)
	if m == nil {
		return BloodPressure{}, false
	}
	var sys, dia float64
	if _, err := fmt.Sscanf(m[1], "%f", &sys); err != nil {
		return BloodPressure{}, false
	}
	if _, err := fmt.Sscanf(m[2], "%f", &dia); err != nil {
		return BloodPressure{}, false
	}
	return BloodPressure{Systolic: Number(sys), Diastolic: Number(dia)}, true
}

func (b *BloodPressure) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		if bp, ok := ParseBloodPressureText(text); ok {
			*b = bp
		} else {
			*b = BloodPressure{}
		}
		return nil
	}

	var obj struct {
		Systolic  FlexNumber `json:"systolic"`
		Diastolic FlexNumber `json:"diastolic"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		*b = BloodPressure{}
		return nil
	}
	*b = BloodPressure{Systolic: obj.Systolic, Diastolic: obj.Diastolic}
	return nil
}

type VitalsPayload struct {
	BloodPressure   BloodPressure `json:"blood_pressure"`
	SpO2            FlexNumber    `json:"spo2"`
	HeartRate       FlexNumber    `json:"heart_rate"`
	Temperature     FlexNumber    `json:"temperature"`
	RespiratoryRate FlexNumber    `json:"respiratory_rate"`
}

type SmokingPayload struct {
	Status               string `json:"status"` // current|former|never|""
	PharmacologicOffered bool   `json:"pharmacologic_offered"`
	BehavioralSupport    bool   `json:"behavioral_support"`
	CessationReferral    bool   `json:"cessation_referral"`
	FollowUpPlanned      bool   `json:"follow_up_planned"`
}

type MentalHealthPayload struct {
	AffectNoted           bool `json:"affect_noted"`
	BehaviorNoted         bool `json:"behavior_noted"`
	SymptomNoted          bool `json:"symptom_noted"`
	DiagnosisNoted        bool `json:"diagnosis_noted"`
	AnxietySymptom        bool `json:"anxiety_symptom"`
	AnxietyDiagnosis      bool `json:"anxiety_diagnosis"`
	DepressionSymptom     bool `json:"depression_symptom"`
	DepressionDiagnosis   bool `json:"depression_diagnosis"`
	SubstanceUseSymptom   bool `json:"substance_use_symptom"`
	SubstanceUseDiagnosis bool `json:"substance_use_diagnosis"`
}

type SexualHistoryPayload struct {
	ActivityReported   bool       `json:"activity_reported"`
	PartnersReported   bool       `json:"partners_reported"`
	PartnerCount       FlexNumber `json:"partner_count"`
	PartnerSTIPositive bool       `json:"partner_sti_positive"`
	NewPartner         bool       `json:"new_partner"`
	MultiplePartners   bool       `json:"multiple_partners"`
	UnprotectedSex     bool       `json:"unprotected_sex"`
	STIHistory         bool       `json:"sti_history"`
	TransactionalSex   bool       `json:"transactional_sex"`
	ScreeningOffered   bool       `json:"screening_offered"`
}

type ReferralPayload struct {
	Specialty  string   `json:"specialty"`
	Reason     string   `json:"reason"`
	Additional []string `json:"additional"` // free-text referral mentions
}

type ResultItem struct {
	TestName string `json:"test_name"`
	Value    string `json:"value"`
	Unit     string `json:"unit"`
	Abnormal bool   `json:"abnormal"`
}

type ResultsPayload struct {
	Items []ResultItem `json:"items"`
}

type CommunicationPayload struct {
	Initiator string `json:"initiator"` // patient|provider|clinic
	Mode      string `json:"mode"`
	Subject   string `json:"subject"`
}
