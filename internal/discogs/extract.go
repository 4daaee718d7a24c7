package discogs

import (
	"fmt"
	"io"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/rsilvagit/cratedig/internal/model"
)

var itemHrefRe = regexp.MustCompile(`/sell/item/(\d+)`)

// ExtractListingIDs returns the IDs of every available listing on a release
// sale page, in page order. Rows marked unavailable are skipped.
func ExtractListingIDs(r io.Reader) ([]model.ListingID, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, model.NewParseError("sale page", fmt.Errorf("parsing HTML: %w", err))
	}

	var ids []model.ListingID
	seen := make(map[model.ListingID]bool)
	doc.Find("a[href*='/sell/item/']").Each(func(i int, s *goquery.Selection) {
		if s.Closest(".unavailable").Length() > 0 {
			return
		}
		href, _ := s.Attr("href")
		m := itemHrefRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := model.ListingID(m[1])
		if seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	})

	return ids, nil
}
