// Package batch hydrates listing identifiers into listings in waves sized by
// the upstream's reported rate budget.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rsilvagit/cratedig/internal/logger"
	"github.com/rsilvagit/cratedig/internal/model"
)

const (
	// MaxBatchSize caps a wave regardless of the reported budget.
	MaxBatchSize = 60
	// DefaultCooldown separates waves. The upstream does not expose a reset
	// time, so this is a fixed conservative wait.
	DefaultCooldown = 61 * time.Second
)

// Response is one listing-detail fetch: the normalized listing plus the
// budget read from the response headers.
type Response struct {
	Listing model.Listing
	Budget  Budget
}

// DetailClient fetches a single listing. Errors other than
// *model.NetworkError are expected to come with Budget populated.
type DetailClient interface {
	FetchListing(ctx context.Context, id model.ListingID) (Response, error)
}

// Progress receives wave completions.
type Progress interface {
	Report(done, total int, msg string)
	ReportETA(done, total int, eta time.Duration, msg string)
}

// Options configures a Fetcher.
type Options struct {
	MaxBatchSize int
	Cooldown     time.Duration
	// WaveTimeout bounds a whole wave, probe included. Zero means no limit.
	WaveTimeout time.Duration
	Logger      *logger.Log
}

// Wave records how one wave was sized.
type Wave struct {
	Start     int `json:"start"`
	Size      int `json:"size"`
	Remaining int `json:"remaining"`
}

// Result is the outcome of one Run. Listings keep identifier order.
type Result struct {
	Listings  []model.Listing
	Waves     []Wave
	Attempted int
	Failed    int
	Rejected  int
}

// Fetcher runs the wave loop. It holds no per-run state, so one Fetcher can
// serve concurrent runs.
type Fetcher struct {
	client DetailClient
	opts   Options
	log    *logger.Entry
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher.
func New(client DetailClient, opts Options) *Fetcher {
	if opts.MaxBatchSize <= 0 || opts.MaxBatchSize > MaxBatchSize {
		opts.MaxBatchSize = MaxBatchSize
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	return &Fetcher{
		client: client,
		opts:   opts,
		log:    opts.Logger.WithComponent("batch"),
		sleep:  sleepCtx,
	}
}

type tally struct {
	failed   atomic.Int64
	rejected atomic.Int64
}

// Run fetches every identifier exactly once. A wave starts with a probe
// fetch whose budget sizes the rest of the wave; the remaining fetches of the
// wave run concurrently. Item failures are logged and dropped. A probe that
// fails at the network level aborts the run.
func (f *Fetcher) Run(ctx context.Context, ids []model.ListingID, prog Progress) (Result, error) {
	total := len(ids)
	var res Result
	if total == 0 {
		report(prog, 0, 0, "No listings to fetch")
		return res, nil
	}

	slots := make([]*model.Listing, total)
	var t tally

	for i := 0; i < total; {
		if err := ctx.Err(); err != nil {
			return f.finish(res, slots, &t), fmt.Errorf("batch: %w", err)
		}

		size, remaining, err := f.wave(ctx, ids, i, slots, &t)
		if err != nil {
			return f.finish(res, slots, &t), err
		}
		res.Waves = append(res.Waves, Wave{Start: i, Size: size, Remaining: remaining})
		res.Attempted += size
		i += size

		f.log.WithFields(logger.Fields{
			"wave":      len(res.Waves),
			"size":      size,
			"remaining": remaining,
			"done":      i,
			"total":     total,
		}).Info("wave complete")
		report(prog, i, total, fmt.Sprintf("Fetched listing details %d/%d", i, total))

		if i < total {
			left := total - i
			waves := (left + f.opts.MaxBatchSize - 1) / f.opts.MaxBatchSize
			eta := time.Duration(waves) * f.opts.Cooldown
			if prog != nil {
				prog.ReportETA(i, total, eta, "Waiting for rate limit window")
			}
			if err := f.sleep(ctx, f.opts.Cooldown); err != nil {
				return f.finish(res, slots, &t), fmt.Errorf("batch: cooldown interrupted: %w", err)
			}
		}
	}

	// Followers of a cancelled last wave fail as items; the run itself did
	// not complete.
	if err := ctx.Err(); err != nil {
		return f.finish(res, slots, &t), fmt.Errorf("batch: %w", err)
	}
	return f.finish(res, slots, &t), nil
}

// wave runs one probe plus its concurrent followers starting at index start
// and returns how many identifiers it covered.
func (f *Fetcher) wave(ctx context.Context, ids []model.ListingID, start int, slots []*model.Listing, t *tally) (int, int, error) {
	waveCtx := ctx
	if f.opts.WaveTimeout > 0 {
		var cancel context.CancelFunc
		waveCtx, cancel = context.WithTimeout(ctx, f.opts.WaveTimeout)
		defer cancel()
	}

	probe, err := f.client.FetchListing(waveCtx, ids[start])
	var netErr *model.NetworkError
	if errors.As(err, &netErr) {
		return 0, 0, fmt.Errorf("batch: probe for listing %s: %w", ids[start], err)
	}
	f.record(start, ids[start], probe, err, slots, t)

	remaining := probe.Budget.Remaining
	size := WaveSize(remaining, f.opts.MaxBatchSize, len(ids)-start)

	var g errgroup.Group
	g.SetLimit(size)
	for j := start + 1; j < start+size; j++ {
		j := j
		g.Go(func() error {
			resp, err := f.client.FetchListing(waveCtx, ids[j])
			f.record(j, ids[j], resp, err, slots, t)
			return nil
		})
	}
	_ = g.Wait()

	return size, remaining, nil
}

// record stores a successful listing in its slot. Each index is written by
// exactly one goroutine.
func (f *Fetcher) record(idx int, id model.ListingID, resp Response, err error, slots []*model.Listing, t *tally) {
	switch {
	case errors.Is(err, model.ErrRateLimited):
		t.rejected.Add(1)
		f.log.WithField("listing", id).Warn("listing rejected by rate limit, dropping")
	case err != nil:
		t.failed.Add(1)
		f.log.WithField("listing", id).WithError(err).Warn("listing fetch failed, dropping")
	default:
		l := resp.Listing
		slots[idx] = &l
	}
}

func (f *Fetcher) finish(res Result, slots []*model.Listing, t *tally) Result {
	res.Listings = make([]model.Listing, 0, len(slots))
	for _, l := range slots {
		if l != nil {
			res.Listings = append(res.Listings, *l)
		}
	}
	res.Failed = int(t.failed.Load())
	res.Rejected = int(t.rejected.Load())
	return res
}

func report(prog Progress, done, total int, msg string) {
	if prog != nil {
		prog.Report(done, total, msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
