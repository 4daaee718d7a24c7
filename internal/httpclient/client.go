package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rsilvagit/cratedig/internal/logger"
	"github.com/rsilvagit/cratedig/internal/model"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15",
}

// RetryPolicy is a fixed-delay retry budget: MaxAttempts calls in total,
// Delay between consecutive attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetry is three attempts one second apart.
var DefaultRetry = RetryPolicy{MaxAttempts: 3, Delay: time.Second}

// Options configures the client.
type Options struct {
	ProxyURL string
	Timeout  time.Duration
	Retry    RetryPolicy
	// HostRPS paces requests per host. Zero disables pacing.
	HostRPS   float64
	HostBurst int
	Logger    *logger.Log
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry.MaxAttempts = DefaultRetry.MaxAttempts
	}
	if o.Retry.Delay < 0 {
		o.Retry.Delay = 0
	}
	if o.HostBurst <= 0 {
		o.HostBurst = 1
	}
	if o.Logger == nil {
		o.Logger = logger.Get()
	}
	return o
}

// Client wraps http.Client with browser-like headers, optional per-host
// pacing and fixed-delay retries. Every non-2xx response counts as a failure.
type Client struct {
	inner    *http.Client
	retry    RetryPolicy
	hostRPS  float64
	burst    int
	log      *logger.Entry
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Client with the given options.
func New(opts Options) (*Client, error) {
	opts = opts.withDefaults()

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
	}

	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("httpclient: invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		inner:    &http.Client{Transport: transport, Timeout: opts.Timeout},
		retry:    opts.Retry,
		hostRPS:  opts.HostRPS,
		burst:    opts.HostBurst,
		log:      opts.Logger.WithComponent("httpclient"),
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// Policy returns the retry policy in use.
func (c *Client) Policy() RetryPolicy {
	return c.retry
}

// Do executes req, retrying failed attempts after the policy delay. On
// success the caller owns the response body. After the last failed attempt
// a *model.NetworkError is returned.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	target := req.URL.String()

	var (
		lastErr    error
		lastStatus int
	)

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := c.pace(ctx, req.URL.Host); err != nil {
			return nil, &model.NetworkError{URL: target, Attempts: attempt - 1, Err: err}
		}

		r, err := c.prepare(req)
		if err != nil {
			return nil, fmt.Errorf("httpclient: rebuilding request: %w", err)
		}

		resp, err := c.inner.Do(r)
		switch {
		case err != nil:
			lastErr, lastStatus = err, 0
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			lastErr, lastStatus = fmt.Errorf("unexpected status %d", resp.StatusCode), resp.StatusCode
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
		default:
			c.log.WithFields(logger.Fields{"url": target, "attempt": attempt, "status": resp.StatusCode}).Debug("fetch ok")
			return resp, nil
		}

		c.log.WithFields(logger.Fields{
			"url":     target,
			"attempt": attempt,
			"of":      c.retry.MaxAttempts,
			"status":  lastStatus,
		}).WithError(lastErr).Warn("fetch attempt failed")

		if ctx.Err() != nil {
			return nil, &model.NetworkError{URL: target, Status: lastStatus, Attempts: attempt, Err: ctx.Err()}
		}
		if attempt == c.retry.MaxAttempts {
			break
		}

		select {
		case <-time.After(c.retry.Delay):
		case <-ctx.Done():
			return nil, &model.NetworkError{URL: target, Status: lastStatus, Attempts: attempt, Err: ctx.Err()}
		}
	}

	return nil, &model.NetworkError{URL: target, Status: lastStatus, Attempts: c.retry.MaxAttempts, Err: lastErr}
}

// Get is a convenience wrapper around Do for GET requests.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: building request: %w", err)
	}
	return c.Do(req)
}

// prepare returns a per-attempt copy of req with a fresh body and the
// default browser headers filled in.
func (c *Client) prepare(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	setHeaders(r)
	return r, nil
}

func setHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9,pt-BR;q=0.8")
	}
	// Accept-Encoding fica de fora: o http.Transport cuida da compressão
	// quando o header não é setado.
	req.Header.Set("DNT", "1")
}

func (c *Client) pace(ctx context.Context, host string) error {
	if c.hostRPS <= 0 {
		return nil
	}
	c.mu.Lock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.hostRPS), c.burst)
		c.limiters[host] = lim
	}
	c.mu.Unlock()
	return lim.Wait(ctx)
}
