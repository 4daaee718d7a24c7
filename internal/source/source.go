package source

import (
	"context"

	"github.com/rsilvagit/cratedig/internal/bandcamp"
	"github.com/rsilvagit/cratedig/internal/currency"
	"github.com/rsilvagit/cratedig/internal/discogs"
	"github.com/rsilvagit/cratedig/internal/httpclient"
	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/progress"
)

// Source defines the contract every marketplace adapter must satisfy.
type Source interface {
	// Name returns the identifier used for usernames, logs and the Listing.Source field.
	Name() string

	// Fetch returns the purchasable listings for username's wanted items.
	// rep may be nil.
	Fetch(ctx context.Context, username string, rep *progress.Reporter) ([]model.Listing, error)
}

// Options carries the per-adapter settings used by Registry.
type Options struct {
	Discogs       discogs.ClientOptions
	DiscogsSource discogs.SourceOptions
	Bandcamp      bandcamp.Options
}

// Registry returns all available sources using the shared HTTP client and
// rate lookup.
func Registry(client *httpclient.Client, rater currency.Rater, opts Options) []Source {
	if opts.Discogs.Rater == nil {
		opts.Discogs.Rater = rater
	}
	return []Source{
		discogs.NewSource(discogs.NewClient(client, opts.Discogs), opts.DiscogsSource),
		bandcamp.NewSource(client, rater, opts.Bandcamp),
	}
}
