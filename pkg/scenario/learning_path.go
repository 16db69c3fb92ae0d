package scenario

import (
	"slices"
	"strings"
)

// LearningPath orders scenarios for a learner with the given goals: easier
// scenarios first, and within the same difficulty those tagged with one of
// the goals ahead of the rest. Ties keep their catalog order. The input slice
// is not modified.
func LearningPath(all []Scenario, goals []string) []Scenario {
	wanted := make(map[string]struct{}, len(goals))
	for _, g := range goals {
		wanted[strings.ToLower(strings.TrimSpace(g))] = struct{}{}
	}
	matches := func(s *Scenario) bool {
		for _, t := range s.Tags {
			if _, ok := wanted[strings.ToLower(t)]; ok {
				return true
			}
		}
		return false
	}

	out := slices.Clone(all)
	slices.SortStableFunc(out, func(a, b Scenario) int {
		if d := a.Difficulty.Rank() - b.Difficulty.Rank(); d != 0 {
			return d
		}
		am, bm := matches(&a), matches(&b)
		switch {
		case am && !bm:
			return -1
		case bm && !am:
			return 1
		}
		return 0
	})
	return out
}
