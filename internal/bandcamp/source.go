package bandcamp

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rsilvagit/cratedig/internal/currency"
	"github.com/rsilvagit/cratedig/internal/httpclient"
	"github.com/rsilvagit/cratedig/internal/logger"
	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/progress"
)

const (
	DefaultBaseURL     = "https://bandcamp.com"
	DefaultConcurrency = 8

	condition = "New"
)

// Options configures a Source.
type Options struct {
	BaseURL     string
	Currency    currency.Code
	Concurrency int
	Logger      *logger.Log
}

// Source is the Bandcamp adapter.
type Source struct {
	http        *httpclient.Client
	rater       currency.Rater
	baseURL     string
	currency    currency.Code
	concurrency int
	log         *logger.Entry
}

// NewSource creates a Source. rater converts album prices into the
// reference currency.
func NewSource(hc *httpclient.Client, rater currency.Rater, opts Options) *Source {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Currency == "" {
		opts.Currency = currency.USD
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	return &Source{
		http:        hc,
		rater:       rater,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		currency:    opts.Currency,
		concurrency: opts.Concurrency,
		log:         opts.Logger.WithComponent("bandcamp"),
	}
}

func (s *Source) Name() string {
	return "bandcamp"
}

// Fetch prices every album on username's wishlist. Sold-out albums and
// albums whose page cannot be read are left out.
func (s *Source) Fetch(ctx context.Context, username string, rep *progress.Reporter) ([]model.Listing, error) {
	items, err := s.wishlist(ctx, username)
	if err != nil {
		return nil, err
	}
	rep.Note(fmt.Sprintf("Found %d Bandcamp wishlist items", len(items)))

	// Uma cotação por moeda em cada execução.
	rates := currency.NewMemo(s.rater)

	slots := make([]*model.Listing, len(items))
	var checked atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			l, err := s.price(gctx, item, rates)
			switch {
			case err != nil:
				s.log.WithField("album", item.Link).WithError(err).Warn("skipping album")
			case l != nil:
				slots[i] = l
			}
			n := checked.Add(1)
			rep.Note(fmt.Sprintf("Checked Bandcamp albums %d/%d", n, len(items)))
			return nil
		})
	}
	_ = g.Wait()

	var listings []model.Listing
	for _, l := range slots {
		if l != nil {
			listings = append(listings, *l)
		}
	}

	s.log.WithFields(logger.Fields{
		"user":     username,
		"items":    len(items),
		"listings": len(listings),
	}).Info("bandcamp run complete")
	return listings, nil
}

func (s *Source) wishlist(ctx context.Context, username string) ([]WishlistItem, error) {
	resp, err := s.http.Get(ctx, fmt.Sprintf("%s/%s/wishlist", s.baseURL, url.PathEscape(username)))
	if err != nil {
		return nil, fmt.Errorf("bandcamp: fetching wishlist: %w", err)
	}
	defer resp.Body.Close()

	items, err := ExtractWishlistItems(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bandcamp: reading wishlist: %w", err)
	}
	return items, nil
}

// price returns nil without error for sold-out albums.
func (s *Source) price(ctx context.Context, item WishlistItem, rates currency.Rater) (*model.Listing, error) {
	resp, err := s.http.Get(ctx, s.absolute(item.Link))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := ParseAlbumPage(resp.Body)
	if err != nil {
		return nil, err
	}
	p, err := ExtractAlbumPrice(doc)
	if err != nil {
		return nil, err
	}
	if p.SoldOut {
		return nil, nil
	}

	amount, code, err := currency.ParsePrice(p.Text)
	if err != nil {
		return nil, err
	}

	return &model.Listing{
		Name:            item.Name(),
		Price:           currency.Convert(ctx, rates, amount, code, s.currency),
		Condition:       condition,
		SleeveCondition: model.StringPtr(condition),
		Link:            s.absolute(item.Link),
		Image:           ExtractImage(doc),
		Source:          "bandcamp",
	}, nil
}

func (s *Source) absolute(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return s.baseURL + "/" + strings.TrimLeft(link, "/")
}
