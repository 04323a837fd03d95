package taxonomy

import (
	"fmt"
	"strings"

	"github.com/chartmill/chartmill/internal/core/domain"
)

// Fixed clinical thresholds. These are rule constants, not configuration.
const (
	HypoxiaSpO2Below     = 90.0
	HypotensionSysBelow  = 90.0
	HypotensionDiaBelow  = 60.0
	TachycardiaHRAtLeast = 120.0
	FeverTempAtLeast     = 100.4
)

// Category IDs; the fixed set seeded at startup.
const (
	CategoryVitals        = "vitals"
	CategorySmoking       = "smoking"
	CategoryMentalHealth  = "mental_health"
	CategorySexualHistory = "sexual_history"
	CategoryReferrals     = "referrals"
	CategoryResults       = "results"
	CategoryAppointments  = "appointments"
	CategoryCommunication = "communication"
)

func AllCategoryIDs() []string {
	return []string{
		CategoryVitals,
		CategorySmoking,
		CategoryMentalHealth,
		CategorySexualHistory,
		CategoryReferrals,
		CategoryResults,
		CategoryAppointments,
		CategoryCommunication,
	}
}

// RuleTerm is one deterministically derived tag plus its justification.
type RuleTerm struct {
	KeywordID string
	Evidence  string
}

// Evaluate runs every rule category over the projection set. The result maps
// category id to derived terms; categories with no hits map to an empty
// slice, which still signals "recomputed, delete stale rule terms".
func Evaluate(set domain.ProjectionSet) map[string][]RuleTerm {
	return map[string][]RuleTerm{
		CategoryVitals:        VitalsTerms(set.Vitals),
		CategorySmoking:       SmokingTerms(set.Smoking),
		CategoryMentalHealth:  MentalHealthTerms(set.MentalHealth),
		CategorySexualHistory: SexualHistoryTerms(set.SexualHistory),
		CategoryReferrals:     ReferralTerms(set.Referrals),
		CategoryResults:       ResultTerms(set.Results),
		CategoryAppointments:  AppointmentTerms(set.Communication),
		CategoryCommunication: CommunicationTerms(set.Communication),
	}
}

func VitalsTerms(row domain.VitalsRow) []RuleTerm {
	var terms []RuleTerm
	if row.HasVitals {
		terms = append(terms, RuleTerm{
			KeywordID: "vitals.recorded",
			Evidence:  "at least one vital sign measurement present",
		})
	}
	if row.SpO2 != nil && *row.SpO2 < HypoxiaSpO2Below {
		terms = append(terms, RuleTerm{
			KeywordID: "vitals.hypoxia",
			Evidence:  fmt.Sprintf("SpO2 %.0f below %.0f", *row.SpO2, HypoxiaSpO2Below),
		})
	}
	if (row.Systolic != nil && *row.Systolic < HypotensionSysBelow) ||
		(row.Diastolic != nil && *row.Diastolic < HypotensionDiaBelow) {
		terms = append(terms, RuleTerm{
			KeywordID: "vitals.hypotension",
			Evidence:  fmt.Sprintf("blood pressure %s below %.0f/%.0f", formatBP(row), HypotensionSysBelow, HypotensionDiaBelow),
		})
	}
	if row.HeartRate != nil && *row.HeartRate >= TachycardiaHRAtLeast {
		terms = append(terms, RuleTerm{
			KeywordID: "vitals.tachycardia",
			Evidence:  fmt.Sprintf("heart rate %.0f at or above %.0f", *row.HeartRate, TachycardiaHRAtLeast),
		})
	}
	if row.Temperature != nil && *row.Temperature >= FeverTempAtLeast {
		terms = append(terms, RuleTerm{
			KeywordID: "vitals.fever",
			Evidence:  fmt.Sprintf("temperature %.1f at or above %.1f", *row.Temperature, FeverTempAtLeast),
		})
	}
	return terms
}

func formatBP(row domain.VitalsRow) string {
	sys, dia := "?", "?"
	if row.Systolic != nil {
		sys = fmt.Sprintf("%.0f", *row.Systolic)
	}
	if row.Diastolic != nil {
		dia = fmt.Sprintf("%.0f", *row.Diastolic)
	}
	return sys + "/" + dia
}

func SmokingTerms(row domain.SmokingRow) []RuleTerm {
	var terms []RuleTerm
	if row.HasHistory {
		terms = append(terms, RuleTerm{
			KeywordID: "smoking.history",
			Evidence:  "smoking history documented",
		})
	}
	switch row.Status {
	case "current":
		terms = append(terms, RuleTerm{KeywordID: "smoking.current", Evidence: "status: current smoker"})
	case "former":
		terms = append(terms, RuleTerm{KeywordID: "smoking.former", Evidence: "status: former smoker"})
	case "never":
		terms = append(terms, RuleTerm{KeywordID: "smoking.never", Evidence: "status: never smoker"})
	}
	if row.CessationCounseling {
		var signals []string
		if row.PharmacologicOffered {
			signals = append(signals, "pharmacologic offer")
		}
		if row.BehavioralSupport {
			signals = append(signals, "behavioral support")
		}
		if row.CessationReferral {
			signals = append(signals, "cessation referral")
		}
		if row.FollowUpPlanned {
			signals = append(signals, "follow-up planned")
		}
		terms = append(terms, RuleTerm{
			KeywordID: "smoking.cessation_counseling",
			Evidence:  "cessation counseling: " + strings.Join(signals, ", "),
		})
	}
	return terms
}

func MentalHealthTerms(row domain.MentalHealthRow) []RuleTerm {
	var terms []RuleTerm
	if row.HasContent {
		terms = append(terms, RuleTerm{
			KeywordID: "mental_health.present",
			Evidence:  "mental health content documented",
		})
	}
	if row.Anxiety {
		terms = append(terms, RuleTerm{KeywordID: "mental_health.anxiety", Evidence: "anxiety symptom or diagnosis"})
	}
	if row.Depression {
		terms = append(terms, RuleTerm{KeywordID: "mental_health.depression", Evidence: "depression symptom or diagnosis"})
	}
	if row.SubstanceUse {
		terms = append(terms, RuleTerm{KeywordID: "mental_health.substance_use", Evidence: "substance use symptom or diagnosis"})
	}
	return terms
}

// SexualHistoryTerms tags mentions and risk. The risk allow-list is explicit;
// routine preventive screening is not itself a risk signal.
func SexualHistoryTerms(row domain.SexualHistoryRow) []RuleTerm {
	var terms []RuleTerm
	if row.Mentioned {
		terms = append(terms, RuleTerm{
			KeywordID: "sexual_history.mentioned",
			Evidence:  "sexual activity reported",
		})
	}

	var risks []string
	if row.PartnerSTIPositive {
		risks = append(risks, "partner STI-positive")
	}
	if row.NewPartner {
		risks = append(risks, "new partner")
	}
	if row.MultiplePartners {
		risks = append(risks, "multiple partners")
	}
	if row.UnprotectedSex {
		risks = append(risks, "unprotected sex")
	}
	if row.STIHistory {
		risks = append(risks, "STI history")
	}
	if row.TransactionalSex {
		risks = append(risks, "transactional sex")
	}
	if row.PartnerCount != nil && *row.PartnerCount > 1 {
		risks = append(risks, fmt.Sprintf("%.0f partners reported", *row.PartnerCount))
	}
	if len(risks) > 0 {
		terms = append(terms, RuleTerm{
			KeywordID: "sexual_history.risky_behavior",
			Evidence:  "risk signals: " + strings.Join(risks, ", "),
		})
	}
	return terms
}

func ReferralTerms(rows []domain.ReferralRow) []RuleTerm {
	if len(rows) == 0 {
		return nil
	}
	terms := []RuleTerm{{
		KeywordID: "referrals.present",
		Evidence:  fmt.Sprintf("%d referral(s) documented", len(rows)),
	}}
	for _, row := range rows {
		if row.Specialty != "" {
			terms = append(terms, RuleTerm{
				KeywordID: "referrals.specialty",
				Evidence:  "referral to " + row.Specialty,
			})
			break
		}
	}
	return terms
}

func ResultTerms(rows []domain.ResultRow) []RuleTerm {
	if len(rows) == 0 {
		return nil
	}
	terms := []RuleTerm{{
		KeywordID: "results.present",
		Evidence:  fmt.Sprintf("%d result(s) documented", len(rows)),
	}}
	for _, row := range rows {
		if row.Abnormal {
			terms = append(terms, RuleTerm{
				KeywordID: "results.abnormal",
				Evidence:  "abnormal result: " + row.TestName,
			})
			break
		}
	}
	return terms
}

func AppointmentTerms(comm domain.CommunicationRow) []RuleTerm {
	if strings.Contains(strings.ToLower(comm.Subject), "appointment") {
		return []RuleTerm{{
			KeywordID: "appointments.scheduling",
			Evidence:  "communication subject mentions an appointment: " + comm.Subject,
		}}
	}
	return nil
}

func CommunicationTerms(row domain.CommunicationRow) []RuleTerm {
	if row.Initiator == "" {
		return nil
	}
	terms := []RuleTerm{{
		KeywordID: "communication.present",
		Evidence:  "communication documented via " + orUnknown(row.Mode),
	}}
	if row.PatientInitiated {
		terms = append(terms, RuleTerm{
			KeywordID: "communication.patient_initiated",
			Evidence:  "initiated by patient",
		})
	} else {
		terms = append(terms, RuleTerm{
			KeywordID: "communication.clinic_initiated",
			Evidence:  "initiated by " + row.Initiator,
		})
	}
	return terms
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown channel"
	}
	return s
}
