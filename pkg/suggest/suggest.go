// Package suggest ranks registered patterns by similarity to a user's
// unmatched step, powering the did-you-mean diagnostics.
package suggest

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

// Scored pairs a candidate string with its similarity to the target.
type Scored struct {
	Text  string
	Score float64
}

// Similarity is a normalized edit-distance score in [0, 1], where 1 means
// the strings are identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// Closest scores every option against the target and returns them sorted
// by descending similarity. The sort is stable so equal scores keep the
// registration order.
func Closest(target string, options []string) []Scored {
	scored := make([]Scored, len(options))
	for i, o := range options {
		scored[i] = Scored{Text: o, Score: Similarity(target, o)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// FilterTop trims a descending score list to the entries worth surfacing:
// the best match always survives, entries past the first need at least
// 0.4, and entries past the sixth need at least 0.6.
func FilterTop(scored []Scored) []Scored {
	var out []Scored
	for i, s := range scored {
		if i > 5 && s.Score < 0.6 {
			continue
		}
		if i > 0 && s.Score < 0.4 {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Best returns the single closest option, or "" when options is empty.
func Best(target string, options []string) string {
	scored := Closest(target, options)
	if len(scored) == 0 {
		return ""
	}
	return scored[0].Text
}
