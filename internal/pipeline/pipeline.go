// Package pipeline runs every marketplace source for a search and merges
// their listings into one ranking.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/rsilvagit/cratedig/internal/filter"
	"github.com/rsilvagit/cratedig/internal/logger"
	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/progress"
	"github.com/rsilvagit/cratedig/internal/rank"
	"github.com/rsilvagit/cratedig/internal/source"
)

// Request names the user on each marketplace. An empty username skips that
// marketplace.
type Request struct {
	DiscogsUsername  string `json:"discogsUsername"`
	BandcampUsername string `json:"bandcampUsername"`
}

func (r Request) usernameFor(name string) string {
	switch name {
	case "discogs":
		return r.DiscogsUsername
	case "bandcamp":
		return r.BandcampUsername
	}
	return ""
}

// Result is the ranked answer of one search.
type Result struct {
	RunID           string          `json:"runId"`
	Currency        string          `json:"currency"`
	Results         []model.Listing `json:"results"`
	DiscogsSuccess  bool            `json:"discogsSuccess"`
	BandcampSuccess bool            `json:"bandcampSuccess"`
	// Skipped names the sources not requested in this search.
	Skipped []string `json:"skipped,omitempty"`
}

// WasSkipped reports whether source was left out of the search.
func (r Result) WasSkipped(source string) bool {
	return slices.Contains(r.Skipped, source)
}

// Outcome is what one source produced. Err is nil on success.
type Outcome struct {
	Source   string
	Listings []model.Listing
	Err      error
	Skipped  bool
}

// OK reports whether the source ran and succeeded.
func (o Outcome) OK() bool {
	return !o.Skipped && o.Err == nil
}

// Options configures a Pipeline.
type Options struct {
	TopN int
	// Currency is the reference currency prices are expressed in.
	Currency  string
	Filter    filter.Options
	Publisher progress.Publisher
	Logger    *logger.Log
}

// Pipeline is safe for concurrent use. All run state lives inside Run.
type Pipeline struct {
	sources []source.Source
	opts    Options
	log     *logger.Entry
}

// New creates a Pipeline over sources.
func New(sources []source.Source, opts Options) *Pipeline {
	if opts.TopN <= 0 {
		opts.TopN = rank.DefaultTopN
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	return &Pipeline{sources: sources, opts: opts, log: opts.Logger.WithComponent("pipeline")}
}

// Run executes every source concurrently and ranks the merged listings. A
// failing source only clears its success flag; Run itself fails only on
// configuration errors.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if req.DiscogsUsername == "" && req.BandcampUsername == "" {
		return Result{}, &model.ConfigError{Field: "username", Reason: "is required for at least one marketplace"}
	}

	runID := uuid.NewString()
	log := p.log.WithField("run", runID)
	rep := progress.NewReporter(p.opts.Publisher, runID)
	rep.Report(0, "Starting search")

	outcomes := p.fanOut(ctx, req, rep, log)

	res := Result{RunID: runID, Currency: p.opts.Currency}
	var merged []model.Listing
	for _, o := range outcomes {
		if model.IsConfigError(o.Err) {
			return Result{}, fmt.Errorf("pipeline: %s: %w", o.Source, o.Err)
		}
		if o.Skipped {
			res.Skipped = append(res.Skipped, o.Source)
		}
		switch o.Source {
		case "discogs":
			res.DiscogsSuccess = o.OK()
		case "bandcamp":
			res.BandcampSuccess = o.OK()
		}
		merged = append(merged, o.Listings...)
	}

	res.Results = rank.Top(filter.Apply(merged, p.opts.Filter), p.opts.TopN)
	if res.Results == nil {
		res.Results = []model.Listing{}
	}

	log.WithFields(logger.Fields{
		"merged":   len(merged),
		"results":  len(res.Results),
		"discogs":  res.DiscogsSuccess,
		"bandcamp": res.BandcampSuccess,
	}).Info("search complete")
	rep.Report(100, "Done")
	return res, nil
}

// fanOut runs each source with a username in its own goroutine and waits
// for all of them. Outcomes keep source order.
func (p *Pipeline) fanOut(ctx context.Context, req Request, rep *progress.Reporter, log *logger.Entry) []Outcome {
	outcomes := make([]Outcome, len(p.sources))
	var wg sync.WaitGroup

	for i, s := range p.sources {
		i, s := i, s
		username := req.usernameFor(s.Name())
		if username == "" {
			outcomes[i] = Outcome{Source: s.Name(), Skipped: true}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = runSource(ctx, s, username, rep)

			entry := log.WithFields(logger.Fields{"source": s.Name(), "listings": len(outcomes[i].Listings)})
			if err := outcomes[i].Err; err != nil {
				entry.WithError(err).Warn("source failed")
				rep.Note(fmt.Sprintf("%s unavailable, continuing without it", s.Name()))
				return
			}
			entry.Info("source finished")
		}()
	}
	wg.Wait()
	return outcomes
}

func runSource(ctx context.Context, s source.Source, username string, rep *progress.Reporter) (o Outcome) {
	o.Source = s.Name()
	defer func() {
		if r := recover(); r != nil {
			o.Listings, o.Err = nil, fmt.Errorf("pipeline: %s panicked: %v", s.Name(), r)
		}
	}()

	listings, err := s.Fetch(ctx, username, rep)
	if err != nil {
		o.Err = err
		return o
	}
	o.Listings = listings
	return o
}
