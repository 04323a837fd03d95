// Package taxonomy holds the controlled vocabulary: deterministic rule
// evaluation over projection rows, ID generation for model-proposed concepts,
// and the seeded category/keyword set.
package taxonomy

import "strings"

// Slugify lowercases a label and collapses everything outside [a-z0-9] into
// single underscores.
func Slugify(label string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// KeywordID derives the namespaced id "<category>.<slug>" for a proposed
// keyword label.
func KeywordID(categoryID, label string) string {
	return categoryID + "." + Slugify(label)
}

// SubkeywordID derives the namespaced id "<keyword-id>.<slug>" for a proposed
// subkeyword label.
func SubkeywordID(keywordID, label string) string {
	return keywordID + "." + Slugify(label)
}
