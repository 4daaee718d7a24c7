package rank

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rsilvagit/cratedig/internal/model"
)

func listing(name, price, source string) model.Listing {
	return model.Listing{Name: name, Price: decimal.RequireFromString(price), Source: source}
}

func TestDedupeKeepsCheapest(t *testing.T) {
	tests := []struct {
		name   string
		input  []model.Listing
		expect map[string]string
	}{
		{
			name: "cheaper second",
			input: []model.Listing{
				listing("Abbey Road", "25.00", "discogs"),
				listing("Abbey Road", "19.99", "bandcamp"),
			},
			expect: map[string]string{"Abbey Road": "19.99"},
		},
		{
			name: "cheaper first",
			input: []model.Listing{
				listing("Abbey Road", "19.99", "bandcamp"),
				listing("Abbey Road", "25.00", "discogs"),
			},
			expect: map[string]string{"Abbey Road": "19.99"},
		},
		{
			name: "distinct names untouched",
			input: []model.Listing{
				listing("Blue Train", "30", "discogs"),
				listing("Kind of Blue", "12", "discogs"),
				listing("Blue Train", "31", "bandcamp"),
			},
			expect: map[string]string{"Blue Train": "30", "Kind of Blue": "12"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedupe(tt.input)
			if len(got) != len(tt.expect) {
				t.Fatalf("expected %d listings, got %d", len(tt.expect), len(got))
			}
			seen := map[string]bool{}
			for _, l := range got {
				if seen[l.Name] {
					t.Fatalf("duplicate name %q", l.Name)
				}
				seen[l.Name] = true
				want := decimal.RequireFromString(tt.expect[l.Name])
				if !l.Price.Equal(want) {
					t.Errorf("%s: expected price %s, got %s", l.Name, want, l.Price)
				}
			}
		})
	}
}

func TestDedupeTieKeepsFirst(t *testing.T) {
	got := Dedupe([]model.Listing{
		listing("Nevermind", "10", "discogs"),
		listing("Nevermind", "10", "bandcamp"),
	})
	if len(got) != 1 || got[0].Source != "discogs" {
		t.Fatalf("expected the discogs listing to survive, got %+v", got)
	}
}

func TestTopIsBoundedAndSorted(t *testing.T) {
	input := []model.Listing{
		listing("A", "40", "discogs"),
		listing("B", "5.5", "discogs"),
		listing("C", "12", "bandcamp"),
		listing("B", "3", "bandcamp"),
		listing("D", "7", "discogs"),
		listing("E", "150000", "bandcamp"),
	}

	got := Top(input, DefaultTopN)
	if len(got) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(got))
	}
	want := []string{"B", "D", "C"}
	for i, l := range got {
		if l.Name != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], l.Name)
		}
		if i > 0 && got[i].Price.LessThan(got[i-1].Price) {
			t.Fatalf("prices not non-decreasing at %d", i)
		}
	}
	if !got[0].Price.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected B at 3, got %s", got[0].Price)
	}
}

func TestRankShortInputAndStability(t *testing.T) {
	if got := Top(nil, 3); len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}

	input := []model.Listing{listing("X", "9", "discogs"), listing("Y", "9", "bandcamp")}
	got := Rank(input, 3)
	if len(got) != 2 || got[0].Name != "X" || got[1].Name != "Y" {
		t.Fatalf("equal prices should keep input order, got %+v", got)
	}
	if input[0].Name != "X" {
		t.Fatal("Rank must not reorder its input")
	}
}
