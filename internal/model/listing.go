package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ReleaseID identifies a catalog release on the record marketplace.
type ReleaseID string

// ListingID identifies a single purchasable listing. It only has meaning
// inside the source that produced it.
type ListingID string

// Listing represents a single purchasable item scraped from any source.
// Price is always expressed in the reference currency.
type Listing struct {
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Condition       string          `json:"condition"`
	SleeveCondition *string         `json:"sleeve_condition"` // nil para fontes sem mídia física
	Link            string          `json:"link"`
	Image           *string         `json:"image"`
	Source          string          `json:"source"`
}

// Key returns the deduplication key for this listing.
func (l Listing) Key() string {
	return l.Name
}

// FullText returns the searchable text fields concatenated in lowercase.
func (l Listing) FullText() string {
	sleeve := ""
	if l.SleeveCondition != nil {
		sleeve = *l.SleeveCondition
	}
	return strings.ToLower(l.Name + " " + l.Condition + " " + sleeve + " " + l.Source)
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
