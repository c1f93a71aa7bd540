package dedupe

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/adrg/strutil/metrics"
)

// indel distance: a substitution counts as a deletion plus an insertion
var levenshtein = &metrics.Levenshtein{
	CaseSensitive: true,
	InsertCost:    1,
	DeleteCost:    1,
	ReplaceCost:   2,
}

// Ratio returns the similarity of a and b as an integer between 0 and 100.
// Either string being empty yields 0.
func Ratio(a, b string) int {
	lenSum := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein.Distance(a, b)
	return int(math.Round(100 * float64(lenSum-dist) / float64(lenSum)))
}

// TokenSetRatio compares the sets of words in a and b, ignoring case,
// punctuation, word order and repeated words. It returns 100 when one
// name's words are all contained in the other's.
func TokenSetRatio(a, b string) int {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	var intersection, onlyA, onlyB []string
	for t := range tokensA {
		if tokensB[t] {
			intersection = append(intersection, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tokensB {
		if !tokensA[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(intersection)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sorted := strings.Join(intersection, " ")
	combinedA := strings.TrimSpace(sorted + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sorted + " " + strings.Join(onlyB, " "))

	best := Ratio(sorted, combinedA)
	if r := Ratio(sorted, combinedB); r > best {
		best = r
	}
	if r := Ratio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

// tokenSet lowercases s, treats anything but letters and digits as a
// separator and returns the distinct words
func tokenSet(s string) map[string]bool {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)

	set := make(map[string]bool)
	for _, f := range strings.Fields(cleaned) {
		set[f] = true
	}
	return set
}
