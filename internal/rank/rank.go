// Package rank merges listings from every source and picks the cheapest.
package rank

import (
	"sort"

	"github.com/rsilvagit/cratedig/internal/model"
)

// DefaultTopN is how many listings a search returns.
const DefaultTopN = 3

// Dedupe keeps one listing per Key, the one with the lowest price. On equal
// prices the listing seen first wins. Output order follows the first
// occurrence of each key.
func Dedupe(listings []model.Listing) []model.Listing {
	index := make(map[string]int, len(listings))
	var result []model.Listing
	for _, l := range listings {
		i, seen := index[l.Key()]
		if !seen {
			index[l.Key()] = len(result)
			result = append(result, l)
			continue
		}
		if l.Price.LessThan(result[i].Price) {
			result[i] = l
		}
	}
	return result
}

// Rank sorts listings by ascending price and returns at most n of them. The
// input slice is not modified.
func Rank(listings []model.Listing, n int) []model.Listing {
	sorted := make([]model.Listing, len(listings))
	copy(sorted, listings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price.LessThan(sorted[j].Price)
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Top deduplicates and ranks in one step.
func Top(listings []model.Listing, n int) []model.Listing {
	return Rank(Dedupe(listings), n)
}
