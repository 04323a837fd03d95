package projection

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/chartmill/chartmill/internal/core/domain"
)

// Fallback heuristics run only when a module payload is absent. They scan the
// looser universal metadata (transcript plus classified doc type) with
// pattern matches; anything ambiguous stays null.

var (
	bpFallbackPattern   = regexp.MustCompile(`(?i)(?:bp|blood pressure)[:\s]*(\d{2,3})\s*/\s*(\d{2,3})`)
	spo2FallbackPattern = regexp.MustCompile(`(?i)(?:spo2|o2 sat(?:uration)?)[:\s]*(\d{2,3})\s*%?`)
	tempFallbackPattern = regexp.MustCompile(`(?i)(?:temp(?:erature)?)[:\s]*(\d{2,3}(?:\.\d+)?)`)
)

type vitalsFallbackResult struct {
	Systolic    *float64
	Diastolic   *float64
	SpO2        *float64
	Temperature *float64
}

func fallbackText(doc *domain.Document) string {
	parts := []string{doc.Transcript, doc.DocType}
	return strings.ToLower(strings.Join(parts, "\n"))
}

func vitalsFallback(doc *domain.Document) vitalsFallbackResult {
	var out vitalsFallbackResult
	text := doc.Transcript

	if m := bpFallbackPattern.FindStringSubmatch(text); m != nil {
		out.Systolic = parseFiniteNumber(m[1])
		out.Diastolic = parseFiniteNumber(m[2])
	} else if bp, ok := domain.ParseBloodPressureText(text); ok {
		out.Systolic = bp.Systolic.Ptr()
		out.Diastolic = bp.Diastolic.Ptr()
	}
	if m := spo2FallbackPattern.FindStringSubmatch(text); m != nil {
		out.SpO2 = parseFiniteNumber(m[1])
	}
	if m := tempFallbackPattern.FindStringSubmatch(text); m != nil {
		out.Temperature = parseFiniteNumber(m[1])
	}
	return out
}

func smokingStatusFallback(doc *domain.Document) string {
	text := fallbackText(doc)
	switch {
	case strings.Contains(text, "current smoker") || strings.Contains(text, "currently smokes"):
		return "current"
	case strings.Contains(text, "former smoker") || strings.Contains(text, "quit smoking"):
		return "former"
	case strings.Contains(text, "never smoker") || strings.Contains(text, "denies smoking") ||
		strings.Contains(text, "never smoked"):
		return "never"
	default:
		return ""
	}
}

func parseFiniteNumber(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return domain.Number(v).Ptr()
}
