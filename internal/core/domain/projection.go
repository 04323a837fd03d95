package domain

// Projection rows are typed relational shadows of the extraction state. The
// singleton rows are keyed by document id and written with upsert semantics;
// referral and result rows are replaced wholesale on every pass.

type VitalsRow struct {
	DocumentID      string   `json:"document_id"`
	Systolic        *float64 `json:"systolic"`
	Diastolic       *float64 `json:"diastolic"`
	SpO2            *float64 `json:"spo2"`
	HeartRate       *float64 `json:"heart_rate"`
	Temperature     *float64 `json:"temperature"`
	RespiratoryRate *float64 `json:"respiratory_rate"`
	HasVitals       bool     `json:"has_vitals"`
	SpO2IsLow       bool     `json:"spo2_is_low"`
}

type SmokingRow struct {
	DocumentID           string `json:"document_id"`
	HasHistory           bool   `json:"has_history"`
	Status               string `json:"status"`
	CessationCounseling  bool   `json:"cessation_counseling"`
	PharmacologicOffered bool   `json:"pharmacologic_offered"`
	BehavioralSupport    bool   `json:"behavioral_support"`
	CessationReferral    bool   `json:"cessation_referral"`
	FollowUpPlanned      bool   `json:"follow_up_planned"`
}

type MentalHealthRow struct {
	DocumentID   string `json:"document_id"`
	HasContent   bool   `json:"has_content"`
	Anxiety      bool   `json:"anxiety"`
	Depression   bool   `json:"depression"`
	SubstanceUse bool   `json:"substance_use"`
}

type SexualHistoryRow struct {
	DocumentID         string   `json:"document_id"`
	Mentioned          bool     `json:"mentioned"`
	PartnerCount       *float64 `json:"partner_count"`
	PartnerSTIPositive bool     `json:"partner_sti_positive"`
	NewPartner         bool     `json:"new_partner"`
	MultiplePartners   bool     `json:"multiple_partners"`
	UnprotectedSex     bool     `json:"unprotected_sex"`
	STIHistory         bool     `json:"sti_history"`
	TransactionalSex   bool     `json:"transactional_sex"`
}

type CommunicationRow struct {
	DocumentID       string `json:"document_id"`
	Initiator        string `json:"initiator"`
	Mode             string `json:"mode"`
	Subject          string `json:"subject"`
	PatientInitiated bool   `json:"patient_initiated"`
}

// ReferralRow with an empty Specialty is a reason-only row built from free
// text that matched no known specialty.
type ReferralRow struct {
	DocumentID string `json:"document_id"`
	Specialty  string `json:"specialty"`
	Reason     string `json:"reason"`
}

type ResultRow struct {
	DocumentID string `json:"document_id"`
	TestName   string `json:"test_name"`
	Value      string `json:"value"`
	Unit       string `json:"unit"`
	Abnormal   bool   `json:"abnormal"`
}

// ProjectionSet is everything one projection pass produces for a document.
type ProjectionSet struct {
	Vitals        VitalsRow
	Smoking       SmokingRow
	MentalHealth  MentalHealthRow
	SexualHistory SexualHistoryRow
	Communication CommunicationRow
	Referrals     []ReferralRow
	Results       []ResultRow
}
