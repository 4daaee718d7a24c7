// Package bandcamp reads a fan's wishlist and prices each album on sale.
package bandcamp

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/sanitize"
)

// WishlistItem is one album on a wishlist page.
type WishlistItem struct {
	Title  string
	Artist string
	Link   string
}

// Name is the display name shared with other sources: "Artist - Title".
func (w WishlistItem) Name() string {
	if w.Artist == "" {
		return w.Title
	}
	return w.Artist + " - " + w.Title
}

// AlbumPrice is what an album page says about buying it.
type AlbumPrice struct {
	Text    string
	SoldOut bool
}

// ExtractWishlistItems returns the albums on a wishlist page in page order.
// Items without a link are skipped.
func ExtractWishlistItems(r io.Reader) ([]WishlistItem, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, model.NewParseError("wishlist page", fmt.Errorf("parsing HTML: %w", err))
	}

	var items []WishlistItem
	doc.Find("li.collection-item-container").Each(func(i int, s *goquery.Selection) {
		link, ok := s.Find("a.item-link").First().Attr("href")
		if !ok || strings.TrimSpace(link) == "" {
			return
		}

		// O título vem acompanhado do artista ("by X") em algumas versões da página.
		titleSel := s.Find(".collection-item-title").First().Clone()
		titleSel.Find(".collection-item-artist").Remove()
		title := sanitize.Text(titleSel.Text())
		artist := sanitize.Text(s.Find(".collection-item-artist").First().Text())
		artist = strings.TrimSpace(strings.TrimPrefix(artist, "by "))

		if title == "" {
			return
		}
		items = append(items, WishlistItem{
			Title:  title,
			Artist: artist,
			Link:   strings.TrimSpace(link),
		})
	})

	return items, nil
}

// ParseAlbumPage parses an album page once so price and image can both be
// read from it.
func ParseAlbumPage(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, model.NewParseError("album page", fmt.Errorf("parsing HTML: %w", err))
	}
	return doc, nil
}

// ExtractAlbumPrice finds the price text and sold-out marker of an album.
// A page that is not sold out and shows no price is a ParseError.
func ExtractAlbumPrice(doc *goquery.Document) (AlbumPrice, error) {
	var p AlbumPrice

	doc.Find(".buyItem .notable, .sold-out, .buyItem .buyItemExtra").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(s.Text()), "sold out") {
			p.SoldOut = true
			return false
		}
		return true
	})

	doc.Find(".buyItem .base-text-color, .buyItem .price").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if text := sanitize.Text(s.Text()); text != "" {
			p.Text = text
			return false
		}
		return true
	})

	if p.Text == "" && !p.SoldOut {
		return p, model.NewParseError("album page", errors.New("no price found"))
	}
	return p, nil
}

// ExtractImage returns the album art URL, or nil when the page has none.
func ExtractImage(doc *goquery.Document) *string {
	if content, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && strings.TrimSpace(content) != "" {
		return model.StringPtr(strings.TrimSpace(content))
	}
	if src, ok := doc.Find("#tralbumArt img").Attr("src"); ok {
		return model.StringPtr(strings.TrimSpace(src))
	}
	return nil
}
