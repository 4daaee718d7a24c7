// Package discogs reads a user's wantlist and hydrates the marketplace
// listings for every wanted release.
package discogs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rsilvagit/cratedig/internal/batch"
	"github.com/rsilvagit/cratedig/internal/currency"
	"github.com/rsilvagit/cratedig/internal/httpclient"
	"github.com/rsilvagit/cratedig/internal/logger"
	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/sanitize"
)

const (
	DefaultAPIURL = "https://api.discogs.com"
	DefaultWebURL = "https://www.discogs.com"

	wantsPerPage = 100
	maxBody      = 2 << 20
)

var budgetHeaders = batch.BudgetHeaders{
	Limit:     "X-Discogs-Ratelimit",
	Used:      "X-Discogs-Ratelimit-Used",
	Remaining: "X-Discogs-Ratelimit-Remaining",
}

var rateLimitPhrases = []string{
	"you are making requests too quickly",
	"too many requests",
	"rate limit",
}

// ClientOptions configures a Client.
type ClientOptions struct {
	APIURL string
	WebURL string
	// Currency is the reference currency listings are priced in.
	Currency currency.Code
	// Rater converts prices the API returns in another currency. Optional.
	Rater  currency.Rater
	Logger *logger.Log
}

// Client talks to the Discogs API and marketplace pages through the shared
// retrying HTTP client.
type Client struct {
	http     *httpclient.Client
	apiURL   string
	webURL   string
	currency currency.Code
	rater    currency.Rater
	log      *logger.Entry
}

// NewClient creates a Client.
func NewClient(hc *httpclient.Client, opts ClientOptions) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.WebURL == "" {
		opts.WebURL = DefaultWebURL
	}
	if opts.Currency == "" {
		opts.Currency = currency.USD
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	return &Client{
		http:     hc,
		apiURL:   strings.TrimRight(opts.APIURL, "/"),
		webURL:   strings.TrimRight(opts.WebURL, "/"),
		currency: opts.Currency,
		rater:    opts.Rater,
		log:      opts.Logger.WithComponent("discogs"),
	}
}

// Want is one wantlist entry. Its ID is the release ID.
type Want struct {
	ID               int64 `json:"id"`
	BasicInformation struct {
		Title   string `json:"title"`
		Artists []struct {
			Name string `json:"name"`
		} `json:"artists"`
	} `json:"basic_information"`
}

type wantsPage struct {
	Pagination struct {
		Page  int `json:"page"`
		Pages int `json:"pages"`
	} `json:"pagination"`
	Wants []Want `json:"wants"`
}

// Wantlist returns every entry of username's wantlist, walking all pages.
func (c *Client) Wantlist(ctx context.Context, username string) ([]Want, error) {
	var wants []Want
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", fmt.Sprint(page))
		q.Set("per_page", fmt.Sprint(wantsPerPage))
		target := fmt.Sprintf("%s/users/%s/wants?%s", c.apiURL, url.PathEscape(username), q.Encode())

		body, _, err := c.getJSON(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("discogs: fetching wantlist page %d: %w", page, err)
		}

		var p wantsPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, model.NewParseError(fmt.Sprintf("wantlist page %d", page), err)
		}
		wants = append(wants, p.Wants...)

		if p.Pagination.Pages <= page || len(p.Wants) == 0 {
			break
		}
	}

	c.log.WithFields(logger.Fields{"user": username, "wants": len(wants)}).Info("wantlist loaded")
	return wants, nil
}

// SalePage opens the marketplace page listing every copy of a release.
func (c *Client) SalePage(ctx context.Context, id model.ReleaseID) (io.ReadCloser, error) {
	resp, err := c.http.Get(ctx, fmt.Sprintf("%s/sell/release/%s", c.webURL, url.PathEscape(string(id))))
	if err != nil {
		return nil, fmt.Errorf("discogs: fetching sale page for release %s: %w", id, err)
	}
	return resp.Body, nil
}

type listingPayload struct {
	ID              int64  `json:"id"`
	URI             string `json:"uri"`
	Condition       string `json:"condition"`
	SleeveCondition string `json:"sleeve_condition"`
	Price           struct {
		Value    decimal.Decimal `json:"value"`
		Currency string          `json:"currency"`
	} `json:"price"`
	Release struct {
		Artist      string `json:"artist"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Thumbnail   string `json:"thumbnail"`
	} `json:"release"`
	Message string `json:"message"`
}

// FetchListing loads one marketplace listing. The budget is filled in
// whenever a response arrived, even if the payload was unusable.
func (c *Client) FetchListing(ctx context.Context, id model.ListingID) (batch.Response, error) {
	q := url.Values{}
	q.Set("curr_abbr", string(c.currency))
	target := fmt.Sprintf("%s/marketplace/listings/%s?%s", c.apiURL, url.PathEscape(string(id)), q.Encode())

	body, header, err := c.getJSON(ctx, target)
	if err != nil {
		return batch.Response{}, fmt.Errorf("discogs: fetching listing %s: %w", id, err)
	}

	var out batch.Response
	out.Budget, _ = budgetHeaders.Parse(header)

	var p listingPayload
	if err := json.Unmarshal(body, &p); err != nil {
		if rateLimited(string(body)) {
			return out, fmt.Errorf("discogs: listing %s: %w", id, model.ErrRateLimited)
		}
		return out, model.NewParseError("listing "+string(id), err)
	}
	if p.ID == 0 && rateLimited(p.Message) {
		return out, fmt.Errorf("discogs: listing %s: %w", id, model.ErrRateLimited)
	}

	listing, err := c.normalize(ctx, id, p)
	if err != nil {
		return out, err
	}
	out.Listing = listing
	return out, nil
}

func (c *Client) normalize(ctx context.Context, id model.ListingID, p listingPayload) (model.Listing, error) {
	name := p.Release.Description
	if p.Release.Artist != "" && p.Release.Title != "" {
		name = p.Release.Artist + " - " + p.Release.Title
	}
	name = sanitize.Text(name)
	if name == "" {
		return model.Listing{}, model.NewParseError("listing "+string(id), fmt.Errorf("missing release name"))
	}
	if p.Price.Value.IsNegative() {
		return model.Listing{}, model.NewParseError("listing "+string(id), fmt.Errorf("negative price %s", p.Price.Value))
	}

	price := p.Price.Value
	if from := currency.Code(strings.ToUpper(p.Price.Currency)); from != "" && from != c.currency {
		if c.rater == nil {
			return model.Listing{}, model.NewParseError("listing "+string(id), fmt.Errorf("price in %s, no converter", from))
		}
		price = currency.Convert(ctx, c.rater, price, from, c.currency)
	}

	link := p.URI
	if link == "" {
		link = fmt.Sprintf("%s/sell/item/%s", c.webURL, id)
	}

	return model.Listing{
		Name:            name,
		Price:           price,
		Condition:       p.Condition,
		SleeveCondition: model.StringPtr(p.SleeveCondition),
		Link:            link,
		Image:           model.StringPtr(p.Release.Thumbnail),
		Source:          "discogs",
	}, nil
}

func (c *Client) getJSON(ctx context.Context, target string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.Header, &model.NetworkError{URL: target, Status: resp.StatusCode, Attempts: 1, Err: err}
	}
	return body, resp.Header, nil
}

// rateLimited reports whether an otherwise successful answer is the API
// asking the caller to slow down.
func rateLimited(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
