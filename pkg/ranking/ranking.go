// Package ranking orders scored candidates and keeps the top N.
package ranking

import (
	"math"
	"sort"

	"mercator-hq/compass/pkg/scoring"
)

// DefaultTopN is the number of candidates kept when no limit is given.
const DefaultTopN = 3

// Candidate is a rule scored against one context. It is transient and
// carries the rule version it was scored with.
type Candidate struct {
	RuleID          string                 `json:"rule_id"`
	RuleVersion     int                    `json:"rule_version"`
	Score           float64                `json:"score"`
	PriorityTier    int                    `json:"priority_tier"`
	Reason          string                 `json:"reason,omitempty"`
	ActionType      string                 `json:"action_type"`
	TargetObjectRef string                 `json:"target_object_ref,omitempty"`
	SuggestedAction string                 `json:"suggested_action,omitempty"`
	Contributions   []scoring.Contribution `json:"contributions,omitempty"`
}

// scoreKey quantizes a score to Epsilon resolution. Comparing keys keeps
// the order total and transitive, which pairwise AlmostEqual does not.
func scoreKey(score float64) float64 {
	return math.Round(score / scoring.Epsilon)
}

// Less reports whether a ranks before b: higher score, then higher
// priority tier, then lower rule id.
func Less(a, b Candidate) bool {
	if ka, kb := scoreKey(a.Score), scoreKey(b.Score); ka != kb {
		return ka > kb
	}
	if a.PriorityTier != b.PriorityTier {
		return a.PriorityTier > b.PriorityTier
	}
	return a.RuleID < b.RuleID
}

// Rank returns the first n candidates in ranking order. The input slice is
// not modified. n <= 0 uses DefaultTopN.
func Rank(candidates []Candidate, n int) []Candidate {
	if n <= 0 {
		n = DefaultTopN
	}
	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})

	if len(out) > n {
		out = out[:n:n]
	}
	return out
}

// IsRanked reports whether cs is in ranking order.
func IsRanked(cs []Candidate) bool {
	for i := 1; i < len(cs); i++ {
		if Less(cs[i], cs[i-1]) {
			return false
		}
	}
	return true
}
