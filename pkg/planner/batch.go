package planner

import (
	"sort"
	"strconv"
	"strings"
)

// ParsePositions reads space-separated 1-based positions ("1 3 5"),
// ignoring anything that is not a positive integer and duplicates.
func ParsePositions(text string) []int {
	seen := make(map[int]bool)
	var out []int
	for _, f := range strings.Fields(text) {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// RemovePositions drops the 1-based positions from lines. Positions are
// applied highest first so earlier removals do not shift later ones; the
// removed lines come back in that order.
func RemovePositions(lines []string, positions []int) (kept, removed []string) {
	desc := append([]int(nil), positions...)
	sort.Sort(sort.Reverse(sort.IntSlice(desc)))

	kept = append([]string(nil), lines...)
	last := -1
	for _, p := range desc {
		idx := p - 1
		if idx < 0 || idx >= len(kept) || p == last {
			continue
		}
		last = p
		removed = append(removed, kept[idx])
		kept = append(kept[:idx], kept[idx+1:]...)
	}
	return kept, removed
}
