// Package projection turns a document's extraction state into typed
// relational rows. Build is pure: the same document state always yields the
// same ProjectionSet, which is what makes projection passes idempotent and
// safely re-runnable.
package projection

import (
	"strings"

	"github.com/chartmill/chartmill/internal/core/domain"
)

const spo2LowThreshold = 90

// Build derives every projection row for doc from its current extraction
// state, falling back to free-text heuristics for modules with no payload.
func Build(doc *domain.Document) domain.ProjectionSet {
	return domain.ProjectionSet{
		Vitals:        buildVitals(doc),
		Smoking:       buildSmoking(doc),
		MentalHealth:  buildMentalHealth(doc),
		SexualHistory: buildSexualHistory(doc),
		Communication: buildCommunication(doc),
		Referrals:     buildReferrals(doc),
		Results:       buildResults(doc),
	}
}

func buildVitals(doc *domain.Document) domain.VitalsRow {
	row := domain.VitalsRow{DocumentID: doc.ID}

	if p := doc.Extraction.Modules.Vitals; p != nil {
		row.Systolic = p.BloodPressure.Systolic.Ptr()
		row.Diastolic = p.BloodPressure.Diastolic.Ptr()
		row.SpO2 = p.SpO2.Ptr()
		row.HeartRate = p.HeartRate.Ptr()
		row.Temperature = p.Temperature.Ptr()
		row.RespiratoryRate = p.RespiratoryRate.Ptr()
	} else {
		fb := vitalsFallback(doc)
		row.Systolic = fb.Systolic
		row.Diastolic = fb.Diastolic
		row.SpO2 = fb.SpO2
		row.Temperature = fb.Temperature
	}

	row.HasVitals = row.Systolic != nil || row.Diastolic != nil || row.SpO2 != nil ||
		row.HeartRate != nil || row.Temperature != nil || row.RespiratoryRate != nil
	row.SpO2IsLow = row.SpO2 != nil && *row.SpO2 < spo2LowThreshold
	return row
}

func buildSmoking(doc *domain.Document) domain.SmokingRow {
	row := domain.SmokingRow{DocumentID: doc.ID}

	if p := doc.Extraction.Modules.Smoking; p != nil {
		row.Status = normalizeSmokingStatus(p.Status)
		row.PharmacologicOffered = p.PharmacologicOffered
		row.BehavioralSupport = p.BehavioralSupport
		row.CessationReferral = p.CessationReferral
		row.FollowUpPlanned = p.FollowUpPlanned
	} else {
		row.Status = smokingStatusFallback(doc)
	}

	row.HasHistory = row.Status != ""
	row.CessationCounseling = row.PharmacologicOffered || row.BehavioralSupport ||
		row.CessationReferral || row.FollowUpPlanned
	return row
}

func normalizeSmokingStatus(raw string) string {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "current", "former", "never":
		return strings.TrimSpace(strings.ToLower(raw))
	default:
		return ""
	}
}

func buildMentalHealth(doc *domain.Document) domain.MentalHealthRow {
	row := domain.MentalHealthRow{DocumentID: doc.ID}

	if p := doc.Extraction.Modules.MentalHealth; p != nil {
		row.HasContent = p.AffectNoted || p.BehaviorNoted || p.SymptomNoted || p.DiagnosisNoted
		row.Anxiety = p.AnxietySymptom || p.AnxietyDiagnosis
		row.Depression = p.DepressionSymptom || p.DepressionDiagnosis
		row.SubstanceUse = p.SubstanceUseSymptom || p.SubstanceUseDiagnosis
		return row
	}

	text := fallbackText(doc)
	row.Anxiety = strings.Contains(text, "anxiety")
	row.Depression = strings.Contains(text, "depression") || strings.Contains(text, "depressive")
	row.SubstanceUse = strings.Contains(text, "substance use") || strings.Contains(text, "substance abuse")
	row.HasContent = row.Anxiety || row.Depression || row.SubstanceUse
	return row
}

func buildSexualHistory(doc *domain.Document) domain.SexualHistoryRow {
	row := domain.SexualHistoryRow{DocumentID: doc.ID}

	if p := doc.Extraction.Modules.SexualHistory; p != nil {
		row.Mentioned = p.ActivityReported || p.PartnersReported
		row.PartnerCount = p.PartnerCount.Ptr()
		row.PartnerSTIPositive = p.PartnerSTIPositive
		row.NewPartner = p.NewPartner
		row.MultiplePartners = p.MultiplePartners
		row.UnprotectedSex = p.UnprotectedSex
		row.STIHistory = p.STIHistory
		row.TransactionalSex = p.TransactionalSex
		return row
	}

	row.Mentioned = strings.Contains(fallbackText(doc), "sexually active")
	return row
}

func buildCommunication(doc *domain.Document) domain.CommunicationRow {
	row := domain.CommunicationRow{DocumentID: doc.ID}

	if p := doc.Extraction.Modules.Communication; p != nil {
		row.Initiator = strings.TrimSpace(strings.ToLower(p.Initiator))
		row.Mode = strings.TrimSpace(strings.ToLower(p.Mode))
		row.Subject = strings.TrimSpace(p.Subject)
	}

	row.PatientInitiated = row.Initiator == "patient"
	return row
}

func buildResults(doc *domain.Document) []domain.ResultRow {
	p := doc.Extraction.Modules.Results
	if p == nil {
		return nil
	}

	rows := make([]domain.ResultRow, 0, len(p.Items))
	for _, item := range p.Items {
		name := strings.TrimSpace(item.TestName)
		if name == "" {
			continue
		}
		rows = append(rows, domain.ResultRow{
			DocumentID: doc.ID,
			TestName:   name,
			Value:      strings.TrimSpace(item.Value),
			Unit:       strings.TrimSpace(item.Unit),
			Abnormal:   item.Abnormal,
		})
	}
	return rows
}
