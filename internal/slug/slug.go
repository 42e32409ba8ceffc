// Package slug derives the deterministic URL identifier of a book from its title.
// The slug doubles as the deduplication key, so the pipeline must never change
// for existing data.
package slug

import (
	"regexp"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the maximum slug length in bytes.
const MaxLength = 80

var (
	// Matches a trailing file-extension-like suffix such as ".pdf".
	extensionRe = regexp.MustCompile(`\.[^/.]+$`)
	// Matches anything outside the allowed slug alphabet (before separators are replaced).
	// Whitespace is the Unicode-aware set: ASCII spacing plus \v, separators and BOM.
	disallowedRe = regexp.MustCompile(`[^a-z0-9\s\v\p{Z}\x{FEFF}-]`)
	whitespaceRe = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)
	multiDashRe  = regexp.MustCompile(`-+`)
)

// Combining Diacritical Marks block.
var combiningMark = runes.Predicate(func(r rune) bool {
	return r >= 0x0300 && r <= 0x036f
})

// Make converts a title to its slug.
//
// Normalization rules, in order:
//  1. Strip a trailing file extension
//  2. Decompose (NFKD) and drop combining diacritical marks
//  3. Lowercase and trim
//  4. Replace "&" with "and"
//  5. Remove everything outside [a-z0-9], whitespace and "-"
//  6. Replace whitespace runs with "-"
//  7. Collapse repeated dashes
//  8. Trim leading/trailing dashes
//  9. Truncate to MaxLength
//  10. Drop a trailing dash left by truncation
//
// Examples:
//
//	"Rich Dad, Poor Dad.pdf" → "rich-dad-poor-dad"
//	"Crème & Brûlée"         → "creme-and-brulee"
func Make(title string) string {
	s := extensionRe.ReplaceAllString(title, "")
	s = foldMarks(s)
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, "&", " and ")
	s = disallowedRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, "-")
	s = multiDashRe.ReplaceAllString(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimSuffix(s, "-")
	if len(s) > MaxLength {
		s = s[:MaxLength]
	}
	return strings.TrimSuffix(s, "-")
}

func foldMarks(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(combiningMark))
	out, _, err := transform.String(t, s)
	if err != nil {
		// The chain only drops runes; fall back to plain decomposition.
		return norm.NFKD.String(s)
	}
	return out
}
