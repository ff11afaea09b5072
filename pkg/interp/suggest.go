package interp

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// maxSuggestDistance is the largest edit distance for which a suggestion is offered.
const maxSuggestDistance = 2

// Suggest finds the candidate closest to token by edit distance, case-insensitively.
// It returns "" when nothing is within maxSuggestDistance edits.
// Ties go to the alphabetically first candidate.
func Suggest(token string, candidates []string) string {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	best, bestDist := "", maxSuggestDistance+1
	lower := strings.ToLower(token)
	for _, c := range sorted {
		if c == token {
			continue
		}
		d := fuzzy.LevenshteinDistance(lower, strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
