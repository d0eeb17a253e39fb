package validate

import (
	"strings"

	"github.com/lohnlab/tarifbot/internal/schema"
)

// maxEditDistance bounds near-miss matching; anything further away is more
// likely a different answer than a typo.
const maxEditDistance = 2

// nearestOption finds the closest enum label to the received value, returning
// the user-facing spelling.
func nearestOption(raw string, def *schema.Field) (string, bool) {
	labels := schema.OptionLabels(def.Name)
	needle := strings.ToLower(strings.TrimSpace(raw))

	best, bestDist := "", maxEditDistance+1
	for i, canonical := range def.Options {
		label := canonical
		if i < len(labels) {
			label = labels[i]
		}
		for _, candidate := range []string{canonical, strings.ToLower(label)} {
			if d := levenshtein(needle, candidate); d < bestDist {
				bestDist = d
				best = label
			}
		}
	}
	return best, bestDist <= maxEditDistance
}

// levenshtein computes the edit distance between two strings over runes.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// escalationFallbacks supplies discrete choices for open fields that have no
// enum options of their own.
var escalationFallbacks = map[string][]string{
	"experience": {"Stufe 1", "Stufe 2", "Stufe 3", "Stufe 4", "Stufe 5", "Stufe 6"},
	"hours":      {"Vollzeit", "30 Stunden", "20 Stunden"},
	"children":   {"keine", "1", "2", "3"},
	"group":      {"E5", "E9", "E13", "P7", "P8"},
}

// EscalationOptions returns the multiple-choice chip set shown once a field's
// circuit breaker has fired.
func EscalationOptions(field string) []string {
	if labels := schema.OptionLabels(field); len(labels) > 0 {
		return labels
	}
	return escalationFallbacks[field]
}
