package discogs

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rsilvagit/cratedig/internal/batch"
	"github.com/rsilvagit/cratedig/internal/logger"
	"github.com/rsilvagit/cratedig/internal/model"
)

// DefaultCollectConcurrency bounds concurrent sale-page fetches.
const DefaultCollectConcurrency = 4

// CollectReleaseIDs flattens a wantlist into release IDs, keeping order and
// duplicates.
func CollectReleaseIDs(wants []Want) []model.ReleaseID {
	ids := make([]model.ReleaseID, 0, len(wants))
	for _, w := range wants {
		ids = append(ids, model.ReleaseID(strconv.FormatInt(w.ID, 10)))
	}
	return ids
}

// SalePager opens a release's sale page.
type SalePager interface {
	SalePage(ctx context.Context, id model.ReleaseID) (io.ReadCloser, error)
}

// Collector turns release IDs into marketplace listing IDs.
type Collector struct {
	pages       SalePager
	concurrency int
	log         *logger.Entry
}

// NewCollector creates a Collector. concurrency <= 0 uses the default.
func NewCollector(pages SalePager, concurrency int, log *logger.Log) *Collector {
	if concurrency <= 0 {
		concurrency = DefaultCollectConcurrency
	}
	if log == nil {
		log = logger.Get()
	}
	return &Collector{pages: pages, concurrency: concurrency, log: log.WithComponent("discogs")}
}

// CollectMarketplaceIDs returns the available listing IDs of every release,
// concatenated in release order. A release whose page cannot be fetched or
// parsed is logged and contributes nothing.
func (c *Collector) CollectMarketplaceIDs(ctx context.Context, releases []model.ReleaseID, prog batch.Progress) []model.ListingID {
	total := len(releases)
	perRelease := make([][]model.ListingID, total)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range releases {
		i, id := i, id
		g.Go(func() error {
			ids, err := c.collectOne(gctx, id)
			if err != nil {
				c.log.WithField("release", id).WithError(err).Warn("skipping release")
			}
			perRelease[i] = ids

			n := int(done.Add(1))
			if prog != nil {
				prog.Report(n, total, fmt.Sprintf("Collected marketplace listings %d/%d releases", n, total))
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []model.ListingID
	for _, ids := range perRelease {
		out = append(out, ids...)
	}
	c.log.WithFields(logger.Fields{"releases": total, "listings": len(out)}).Info("marketplace IDs collected")
	return out
}

func (c *Collector) collectOne(ctx context.Context, id model.ReleaseID) ([]model.ListingID, error) {
	body, err := c.pages.SalePage(ctx, id)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return ExtractListingIDs(body)
}
