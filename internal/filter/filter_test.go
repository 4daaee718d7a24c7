package filter

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rsilvagit/cratedig/internal/model"
)

func TestApply(t *testing.T) {
	listings := []model.Listing{
		{Name: "A", Price: decimal.NewFromInt(10), Condition: "Mint (M)", Source: "discogs"},
		{Name: "B", Price: decimal.NewFromInt(40), Condition: "Very Good Plus (VG+)", Source: "discogs"},
		{Name: "C", Price: decimal.NewFromInt(15), Condition: "New", Source: "bandcamp"},
		{Name: "D", Price: decimal.NewFromInt(25), Condition: "Good (G)", Source: "discogs"},
	}

	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"no filter", Options{}, "ABCD"},
		{"max price", Options{MaxPrice: decimal.NewFromInt(20)}, "AC"},
		{"conditions", Options{Conditions: "mint, vg+"}, "AB"},
		{"source", Options{Sources: "bandcamp"}, "C"},
		{"combined", Options{MaxPrice: decimal.NewFromInt(30), Conditions: "new,good"}, "CD"},
		{"nothing matches", Options{Conditions: "sealed"}, ""},
		{"terms", Options{Terms: "good plus, bandcamp"}, "BC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			for _, l := range Apply(listings, tt.opts) {
				got += l.Name
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
