package filter

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rsilvagit/cratedig/internal/model"
)

// Options holds all filter criteria. Empty fields mean "no filter".
type Options struct {
	MaxPrice   decimal.Decimal // zero means no limit
	Conditions string          // comma-separated terms, ex: "mint,near mint,vg+"
	Sources    string          // discogs, bandcamp
	Terms      string          // text to match against name, conditions and source
}

// Apply filters a slice of listings, returning only those that match all criteria.
func Apply(listings []model.Listing, opts Options) []model.Listing {
	if opts.isEmpty() {
		return listings
	}

	var result []model.Listing
	for _, l := range listings {
		if matchListing(l, opts) {
			result = append(result, l)
		}
	}
	return result
}

func matchListing(l model.Listing, opts Options) bool {
	if opts.MaxPrice.IsPositive() && l.Price.GreaterThan(opts.MaxPrice) {
		return false
	}
	if opts.Conditions != "" && !containsAny(strings.ToLower(l.Condition), opts.Conditions) {
		return false
	}
	if opts.Sources != "" && !containsAny(strings.ToLower(l.Source), opts.Sources) {
		return false
	}
	if opts.Terms != "" && !containsAny(l.FullText(), opts.Terms) {
		return false
	}
	return true
}

// containsAny checks if text contains any of the comma-separated terms.
func containsAny(text, terms string) bool {
	for _, term := range strings.Split(terms, ",") {
		term = strings.TrimSpace(strings.ToLower(term))
		if term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func (o Options) isEmpty() bool {
	return !o.MaxPrice.IsPositive() && o.Conditions == "" && o.Sources == "" && o.Terms == ""
}
