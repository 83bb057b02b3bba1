package services

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"

	"github.com/alligator-inc/alligator-engine/pkg/models"
)

// CleanCell normalizes a raw cell value: NFKC-normalize, strip invisible
// characters, collapse runs of whitespace, trim.
func CleanCell(raw string) string {
	normalized := norm.NFKC.String(raw)

	var b strings.Builder
	b.Grow(len(normalized))
	lastSpace := false
	for _, r := range normalized {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Fold lowercases a cleaned value; the folded shadow is used only for
// matching, never surfaced.
func Fold(s string) string {
	return strings.ToLower(s)
}

// Tokens splits a folded value on spaces.
func Tokens(s string) []string {
	return strings.Fields(s)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokens(s) {
		set[tok] = struct{}{}
	}
	return set
}

// JaccardTokens is the token-set Jaccard similarity of two folded strings.
func JaccardTokens(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	return jaccard(sa, sb)
}

// JaccardNgrams is the character n-gram Jaccard similarity of two folded
// strings, for the given gram size n. Strings shorter than n contribute
// themselves as a single gram.
func JaccardNgrams(a, b string, n int) float64 {
	return jaccard(ngramSet(a, n), ngramSet(b, n))
}

func ngramSet(s string, n int) map[string]struct{} {
	set := make(map[string]struct{})
	runes := []rune(s)
	if len(runes) == 0 {
		return set
	}
	if len(runes) < n {
		set[string(runes)] = struct{}{}
		return set
	}
	for i := 0; i+n <= len(runes); i++ {
		set[string(runes[i:i+n])] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// EditScore is 1 minus the normalized Levenshtein distance of two folded
// strings. Two empty strings score 1.
func EditScore(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// datetime layouts the literal matcher recognizes.
var datetimeLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"01/02/2006",
	"2006",
}

// ClassifyLiteral infers the datatype of a literal value.
func ClassifyLiteral(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return models.DatatypeString
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return models.DatatypeNumber
	}
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return models.DatatypeDatetime
		}
	}
	return models.DatatypeString
}

// LiteralMatches reports whether a cell value and a KG literal denote the
// same thing: folded string equality, numeric equality, or same calendar day
// for datetimes.
func LiteralMatches(cellText, literal string) bool {
	a := Fold(CleanCell(cellText))
	b := Fold(CleanCell(literal))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	if fa, err := strconv.ParseFloat(a, 64); err == nil {
		if fb, err := strconv.ParseFloat(b, 64); err == nil {
			return fa == fb
		}
	}

	if ta, ok := parseDatetime(a); ok {
		if tb, ok := parseDatetime(b); ok {
			ya, ma, da := ta.Date()
			yb, mb, db := tb.Date()
			return ya == yb && ma == mb && da == db
		}
	}
	return false
}

// parseDatetime tries the datetime layouts on folded input in two forms:
// re-capitalized (month names as "January") and upper-cased (the "T" and "Z"
// separators of an ISO timestamp).
func parseDatetime(s string) (time.Time, bool) {
	for _, form := range []string{capitalizeWords(s), strings.ToUpper(s)} {
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, form); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func capitalizeWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
