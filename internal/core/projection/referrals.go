package projection

import (
	"regexp"
	"strings"

	"github.com/chartmill/chartmill/internal/core/domain"
)

// Fixed specialty vocabulary; free-text referral mentions are matched against
// it case-insensitively.
var specialties = []string{
	"cardiology",
	"dermatology",
	"endocrinology",
	"gastroenterology",
	"nephrology",
	"neurology",
	"oncology",
	"ophthalmology",
	"orthopedics",
	"physical therapy",
	"psychiatry",
	"pulmonology",
	"rheumatology",
	"urology",
}

var referredToPattern = regexp.MustCompile(`(?i)referr(?:ed|al)\s+to\s+([a-z ]+)`)

func buildReferrals(doc *domain.Document) []domain.ReferralRow {
	dedupe := newReferralDedupe()
	var rows []domain.ReferralRow

	appendRow := func(row domain.ReferralRow) {
		if dedupe.seen(row) {
			return
		}
		rows = append(rows, row)
	}

	if p := doc.Extraction.Modules.Referral; p != nil {
		if r, ok := referralFromText(doc.ID, p.Specialty, p.Reason); ok {
			appendRow(r)
		}
		for _, item := range p.Additional {
			if r, ok := referralFromText(doc.ID, item, item); ok {
				appendRow(r)
			}
		}
		return rows
	}

	// No module payload: scan free text for "referred to X" mentions.
	for _, m := range referredToPattern.FindAllStringSubmatch(fallbackText(doc), -1) {
		if r, ok := referralFromText(doc.ID, m[1], strings.TrimSpace(m[0])); ok {
			appendRow(r)
		}
	}
	return rows
}

// referralFromText builds one row, matching text against the specialty
// vocabulary. Unmatched text yields a reason-only row.
func referralFromText(docID, text, reason string) (domain.ReferralRow, bool) {
	specialty := matchSpecialty(text)
	reason = strings.TrimSpace(reason)
	if specialty == "" && reason == "" {
		return domain.ReferralRow{}, false
	}
	if specialty != "" && strings.EqualFold(reason, specialty) {
		reason = ""
	}
	return domain.ReferralRow{DocumentID: docID, Specialty: specialty, Reason: reason}, true
}

func matchSpecialty(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return ""
	}
	for _, s := range specialties {
		if strings.Contains(lowered, s) {
			return s
		}
	}
	return ""
}

// referralDedupe suppresses duplicate rows within a single pass: two rows
// with the same specialty, or two reason-only rows with the same reason.
type referralDedupe struct {
	specialties map[string]bool
	reasons     map[string]bool
}

func newReferralDedupe() *referralDedupe {
	return &referralDedupe{
		specialties: make(map[string]bool),
		reasons:     make(map[string]bool),
	}
}

func (d *referralDedupe) seen(row domain.ReferralRow) bool {
	if row.Specialty != "" {
		if d.specialties[row.Specialty] {
			return true
		}
		d.specialties[row.Specialty] = true
		return false
	}

	key := strings.ToLower(row.Reason)
	if d.reasons[key] {
		return true
	}
	d.reasons[key] = true
	return false
}
