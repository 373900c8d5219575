package resolve

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dyluth/tally/pkg/crowd"
)

const (
	// DefaultJaccardThreshold flags pairs sharing more than 30% of their words.
	DefaultJaccardThreshold = 0.30

	// DefaultLevenshteinThreshold flags pairs whose normalized edit distance is below 0.5.
	DefaultLevenshteinThreshold = 0.50
)

// Predicate reports whether a pair might be a duplicate and should be shown
// to the crowd. Pairs it rejects are never reconsidered.
type Predicate func(crowd.Pair) bool

// Any flags a pair when at least one of preds does.
func Any(preds ...Predicate) Predicate {
	return func(p crowd.Pair) bool {
		for _, pred := range preds {
			if pred(p) {
				return true
			}
		}
		return false
	}
}

// Jaccard flags pairs whose word-set similarity exceeds threshold.
func Jaccard(threshold float64) Predicate {
	return func(p crowd.Pair) bool {
		return JaccardSimilarity(p.A, p.B) > threshold
	}
}

// Levenshtein flags pairs whose normalized edit distance is below threshold.
func Levenshtein(threshold float64) Predicate {
	return func(p crowd.Pair) bool {
		return NormalizedEditDistance(p.A, p.B) < threshold
	}
}

// DefaultPredicate combines the token-overlap and edit-distance tests with
// their default thresholds.
func DefaultPredicate() Predicate {
	return Any(Jaccard(DefaultJaccardThreshold), Levenshtein(DefaultLevenshteinThreshold))
}

// JaccardSimilarity is |A∩B| / |A∪B| over the lower-cased whitespace tokens
// of a and b. Two token-less strings have similarity 0.
func JaccardSimilarity(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)

	union := len(ta)
	inter := 0
	for t := range tb {
		if _, ok := ta[t]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// NormalizedEditDistance is 2·levenshtein(a, b) / (len(a) + len(b)) with
// lengths counted in runes. Two empty strings have distance 0.
func NormalizedEditDistance(a, b string) float64 {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 0
	}
	return 2 * float64(levenshtein.ComputeDistance(a, b)) / float64(total)
}

func tokens(s string) map[string]struct{} {
	// Casers carry state, so each call gets its own
	lower := cases.Lower(language.Und).String(s)
	fields := strings.Fields(lower)

	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
