package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rsilvagit/cratedig/internal/httpclient"
	"github.com/rsilvagit/cratedig/internal/logger"
)

// DefaultBaseURL is the exchange-rate API.
const DefaultBaseURL = "https://api.frankfurter.app"

// DefaultFallbackRate is returned when a lookup fails. It is large enough to
// push affected listings to the bottom of any ranking.
var DefaultFallbackRate = decimal.NewFromInt(10000)

// Rater returns the multiplier converting an amount in base into target.
type Rater interface {
	Rate(ctx context.Context, base, target Code) decimal.Decimal
}

// RateCache is an optional shared store for looked-up rates.
type RateCache interface {
	GetRate(ctx context.Context, base, target string) (decimal.Decimal, bool)
	SetRate(ctx context.Context, base, target string, rate decimal.Decimal) error
}

// Options configures a Converter.
type Options struct {
	BaseURL  string
	Fallback decimal.Decimal
	Cache    RateCache
	Logger   *logger.Log
}

// Converter looks rates up over HTTP. It never fails: any error is logged and
// answered with the fallback rate.
type Converter struct {
	http     *httpclient.Client
	baseURL  string
	fallback decimal.Decimal
	cache    RateCache
	log      *logger.Entry
}

// NewConverter creates a Converter.
func NewConverter(client *httpclient.Client, opts Options) *Converter {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if !opts.Fallback.IsPositive() {
		opts.Fallback = DefaultFallbackRate
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	return &Converter{
		http:     client,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		fallback: opts.Fallback,
		cache:    opts.Cache,
		log:      opts.Logger.WithComponent("currency"),
	}
}

type ratesResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Rate implements Rater.
func (c *Converter) Rate(ctx context.Context, base, target Code) decimal.Decimal {
	if base == target {
		return decimal.NewFromInt(1)
	}
	if c.cache != nil {
		if rate, ok := c.cache.GetRate(ctx, string(base), string(target)); ok {
			return rate
		}
	}

	rate, err := c.lookup(ctx, base, target)
	if err != nil {
		c.log.WithFields(logger.Fields{"base": base, "target": target}).
			WithError(err).Warn("rate lookup failed, using fallback")
		return c.fallback
	}

	if c.cache != nil {
		if err := c.cache.SetRate(ctx, string(base), string(target), rate); err != nil {
			c.log.WithError(err).Debug("rate cache write failed")
		}
	}
	return rate
}

func (c *Converter) lookup(ctx context.Context, base, target Code) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("from", string(base))
	q.Set("to", string(target))

	resp, err := c.http.Get(ctx, c.baseURL+"/latest?"+q.Encode())
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("currency: decoding rates: %w", err)
	}
	rate, ok := body.Rates[string(target)]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("currency: no %s rate for %s", target, base)
	}
	return rate, nil
}

// Memo wraps a Rater so each currency pair is looked up at most once. Create
// one per run.
type Memo struct {
	rater Rater

	mu    sync.Mutex
	rates map[[2]Code]*memoEntry
}

type memoEntry struct {
	once sync.Once
	rate decimal.Decimal
}

// NewMemo returns an empty Memo over r.
func NewMemo(r Rater) *Memo {
	return &Memo{rater: r, rates: make(map[[2]Code]*memoEntry)}
}

// Rate implements Rater. Concurrent callers for the same pair share one
// lookup.
func (m *Memo) Rate(ctx context.Context, base, target Code) decimal.Decimal {
	key := [2]Code{base, target}
	m.mu.Lock()
	e, ok := m.rates[key]
	if !ok {
		e = &memoEntry{}
		m.rates[key] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.rate = m.rater.Rate(ctx, base, target)
	})
	return e.rate
}

// Convert expresses amount, given in from, in to, rounded to cents.
func Convert(ctx context.Context, r Rater, amount decimal.Decimal, from, to Code) decimal.Decimal {
	return amount.Mul(r.Rate(ctx, from, to)).Round(2)
}
