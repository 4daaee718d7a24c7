package discogs

import (
	"context"
	"fmt"

	"github.com/rsilvagit/cratedig/internal/batch"
	"github.com/rsilvagit/cratedig/internal/logger"
	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/progress"
)

// Progress ranges owned by each step of a Discogs run.
const (
	releasesDone    = 5
	marketplaceDone = 35
	listingsDone    = 95
)

// Source is the Discogs adapter: wantlist, sale pages, then rate-budgeted
// listing hydration.
type Source struct {
	client    *Client
	collector *Collector
	fetcher   *batch.Fetcher
	log       *logger.Entry
}

// SourceOptions configures a Source.
type SourceOptions struct {
	CollectConcurrency int
	Batch              batch.Options
	Logger             *logger.Log
}

// NewSource wires a Source around client.
func NewSource(client *Client, opts SourceOptions) *Source {
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if opts.Batch.Logger == nil {
		opts.Batch.Logger = opts.Logger
	}
	return &Source{
		client:    client,
		collector: NewCollector(client, opts.CollectConcurrency, opts.Logger),
		fetcher:   batch.New(client, opts.Batch),
		log:       opts.Logger.WithComponent("discogs"),
	}
}

func (s *Source) Name() string {
	return "discogs"
}

// Fetch returns a listing for every available copy of every release on
// username's wantlist.
func (s *Source) Fetch(ctx context.Context, username string, rep *progress.Reporter) ([]model.Listing, error) {
	rep.Note("Fetching Discogs wantlist")
	wants, err := s.client.Wantlist(ctx, username)
	if err != nil {
		return nil, err
	}

	releases := CollectReleaseIDs(wants)
	rep.Report(releasesDone, fmt.Sprintf("Found %d releases", len(releases)))

	ids := s.collector.CollectMarketplaceIDs(ctx, releases, rep.Stage(releasesDone, marketplaceDone))
	rep.Report(marketplaceDone, fmt.Sprintf("Found %d marketplace listings", len(ids)))

	res, err := s.fetcher.Run(ctx, ids, rep.Stage(marketplaceDone, listingsDone))
	if err != nil {
		return nil, fmt.Errorf("discogs: hydrating listings: %w", err)
	}

	s.log.WithFields(logger.Fields{
		"user":     username,
		"listings": len(res.Listings),
		"failed":   res.Failed,
		"rejected": res.Rejected,
		"waves":    len(res.Waves),
	}).Info("discogs run complete")
	return res.Listings, nil
}
