package discogs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rsilvagit/cratedig/internal/batch"
	"github.com/rsilvagit/cratedig/internal/currency"
	"github.com/rsilvagit/cratedig/internal/httpclient"
	"github.com/rsilvagit/cratedig/internal/logger"
	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/progress"
)

const salePage = `<html><body><table class="mpitems"><tbody>
<tr class="shortcut_navigable">
  <td><a href="/sell/item/1001" class="item_description_title">Abbey Road (LP)</a></td>
  <td><a href="/sell/item/1001"><img src="x.jpg"></a></td>
</tr>
<tr class="shortcut_navigable unavailable">
  <td><a href="/sell/item/1002" class="item_description_title">Abbey Road (LP)</a></td>
</tr>
<tr class="shortcut_navigable">
  <td><a href="https://www.discogs.com/sell/item/1003?ev=rb" class="item_description_title">Abbey Road (LP)</a></td>
  <td><a href="/seller/someone/profile">someone</a></td>
</tr>
</tbody></table></body></html>`

func TestExtractListingIDs(t *testing.T) {
	ids, err := ExtractListingIDs(strings.NewReader(salePage))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []model.ListingID{"1001", "1003"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], ids[i])
		}
	}
}

func TestExtractListingIDsEmptyPage(t *testing.T) {
	ids, err := ExtractListingIDs(strings.NewReader("<html><body><p>No items for sale</p></body></html>"))
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected no IDs, got %v (%v)", ids, err)
	}
}

func TestCollectReleaseIDs(t *testing.T) {
	wants := []Want{{ID: 3}, {ID: 1}, {ID: 3}}
	got := CollectReleaseIDs(wants)
	want := []model.ReleaseID{"3", "1", "3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

// marketplace is a fake Discogs serving API and web routes from one server.
type marketplace struct {
	mu           sync.Mutex
	releases     map[string][]string // release ID -> listing IDs on its sale page
	brokenPages  map[string]bool
	listingCalls map[string]int
	remaining    int
	wantPages    int
}

func (m *marketplace) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/users/alice/wants", func(w http.ResponseWriter, r *http.Request) {
		var page int
		fmt.Sscan(r.URL.Query().Get("page"), &page)
		if r.URL.Query().Get("per_page") != "100" {
			t.Errorf("unexpected per_page %q", r.URL.Query().Get("per_page"))
		}

		ids := m.releaseIDs()
		per := (len(ids) + m.wantPages - 1) / m.wantPages
		start := min((page-1)*per, len(ids))
		end := min(start+per, len(ids))

		var wants []string
		for _, id := range ids[start:end] {
			wants = append(wants, fmt.Sprintf(`{"id":%s,"basic_information":{"title":"Album %s"}}`, id, id))
		}
		fmt.Fprintf(w, `{"pagination":{"page":%d,"pages":%d},"wants":[%s]}`, page, m.wantPages, strings.Join(wants, ","))
	})

	mux.HandleFunc("/sell/release/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/sell/release/")
		if m.brokenPages[id] {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "<table>")
		for _, l := range m.releases[id] {
			fmt.Fprintf(w, `<tr class="shortcut_navigable"><td><a href="/sell/item/%s">item</a></td></tr>`, l)
		}
		fmt.Fprint(w, "</table>")
	})

	mux.HandleFunc("/marketplace/listings/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/marketplace/listings/")
		if r.URL.Query().Get("curr_abbr") != "USD" {
			t.Errorf("expected curr_abbr=USD, got %q", r.URL.Query().Get("curr_abbr"))
		}
		m.mu.Lock()
		m.listingCalls[id]++
		m.mu.Unlock()

		w.Header().Set("X-Discogs-Ratelimit", "60")
		w.Header().Set("X-Discogs-Ratelimit-Remaining", fmt.Sprint(m.remaining))
		fmt.Fprintf(w, `{"id":%s,"uri":"https://www.discogs.com/sell/item/%s","condition":"Very Good Plus (VG+)",
			"sleeve_condition":"Very Good (VG)","price":{"value":%s.50,"currency":"USD"},
			"release":{"artist":"Artist %s","title":"Title %s","thumbnail":"https://img/%s.jpg"}}`, id, id, id, id, id, id)
	})

	return mux
}

func (m *marketplace) releaseIDs() []string {
	ids := make([]string, 0, len(m.releases))
	for i := 1; len(ids) < len(m.releases); i++ {
		id := fmt.Sprint(i)
		if _, ok := m.releases[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func newTestClient(t *testing.T, srvURL string) *Client {
	t.Helper()
	hc, err := httpclient.New(httpclient.Options{
		Retry:  httpclient.RetryPolicy{MaxAttempts: 1},
		Logger: logger.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(hc, ClientOptions{APIURL: srvURL, WebURL: srvURL, Logger: logger.Discard()})
}

func TestWantlistWalksEveryPage(t *testing.T) {
	m := &marketplace{
		releases:     map[string][]string{"1": nil, "2": nil, "3": nil, "4": nil, "5": nil},
		listingCalls: map[string]int{},
		wantPages:    3,
	}
	srv := httptest.NewServer(m.handler(t))
	defer srv.Close()

	wants, err := newTestClient(t, srv.URL).Wantlist(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Wantlist failed: %v", err)
	}
	if len(wants) != 5 {
		t.Fatalf("expected 5 wants, got %d", len(wants))
	}
	for i, w := range wants {
		if w.ID != int64(i+1) {
			t.Errorf("position %d: expected release %d, got %d", i, i+1, w.ID)
		}
	}
}

func TestWantlistUnknownUser(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Wantlist(context.Background(), "nobody")
	var netErr *model.NetworkError
	if !errors.As(err, &netErr) || netErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 NetworkError, got %v", err)
	}
}

func TestFetchListing(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   func(error) bool
		wantPrice string
	}{
		{
			name:      "ok",
			status:    http.StatusOK,
			body:      `{"id":7,"uri":"https://www.discogs.com/sell/item/7","condition":"Mint (M)","price":{"value":19.99,"currency":"USD"},"release":{"description":"The Beatles - Abbey Road","thumbnail":""}}`,
			wantPrice: "19.99",
		},
		{
			name:   "rate limited",
			status: http.StatusOK,
			body:   `{"message": "You are making requests too quickly."}`,
			wantErr: func(err error) bool {
				return errors.Is(err, model.ErrRateLimited)
			},
		},
		{
			name:   "malformed",
			status: http.StatusOK,
			body:   `{"id":7,"price":`,
			wantErr: func(err error) bool {
				var pe *model.ParseError
				return errors.As(err, &pe)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			wantErr: func(err error) bool {
				var ne *model.NetworkError
				return errors.As(err, &ne)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Discogs-Ratelimit", "60")
				w.Header().Set("X-Discogs-Ratelimit-Used", "18")
				w.Header().Set("X-Discogs-Ratelimit-Remaining", "42")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			resp, err := newTestClient(t, srv.URL).FetchListing(context.Background(), "7")
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("unexpected error %v", err)
				}
				if tt.status == http.StatusOK && resp.Budget.Remaining != 42 {
					t.Errorf("budget must be read even on item failure, got %+v", resp.Budget)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Budget != (batch.Budget{Limit: 60, Used: 18, Remaining: 42}) {
				t.Errorf("unexpected budget %+v", resp.Budget)
			}
			l := resp.Listing
			if l.Name != "The Beatles - Abbey Road" || l.Source != "discogs" || l.Condition != "Mint (M)" {
				t.Errorf("unexpected listing %+v", l)
			}
			if l.SleeveCondition != nil || l.Image != nil {
				t.Errorf("empty optional fields should be nil, got %+v", l)
			}
			if !l.Price.Equal(decimal.RequireFromString(tt.wantPrice)) {
				t.Errorf("expected price %s, got %s", tt.wantPrice, l.Price)
			}
		})
	}
}

type fixedRater decimal.Decimal

func (f fixedRater) Rate(ctx context.Context, base, target currency.Code) decimal.Decimal {
	return decimal.Decimal(f)
}

func TestFetchListingConvertsForeignPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":9,"price":{"value":"20.00","currency":"EUR"},"release":{"artist":"Can","title":"Tago Mago"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.rater = fixedRater(decimal.RequireFromString("1.1"))

	resp, err := c.FetchListing(context.Background(), "9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Listing.Price.Equal(decimal.NewFromInt(22)) {
		t.Fatalf("expected 22 USD, got %s", resp.Listing.Price)
	}
	if resp.Listing.Link != srv.URL+"/sell/item/9" {
		t.Errorf("unexpected fallback link %q", resp.Listing.Link)
	}
}

func TestCollectMarketplaceIDsIsolatesFailures(t *testing.T) {
	m := &marketplace{
		releases:     map[string][]string{"1": {"11", "12"}, "2": {"21"}, "3": {"31"}},
		brokenPages:  map[string]bool{"2": true},
		listingCalls: map[string]int{},
		wantPages:    1,
	}
	srv := httptest.NewServer(m.handler(t))
	defer srv.Close()

	c := NewCollector(newTestClient(t, srv.URL), 2, logger.Discard())
	rec := &stageRecorder{}
	ids := c.CollectMarketplaceIDs(context.Background(), []model.ReleaseID{"1", "2", "3"}, rec)

	want := []model.ListingID{"11", "12", "31"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	if rec.calls != 3 {
		t.Fatalf("expected a progress report per release, got %d", rec.calls)
	}
}

type stageRecorder struct {
	mu    sync.Mutex
	calls int
}

func (s *stageRecorder) Report(done, total int, msg string) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *stageRecorder) ReportETA(done, total int, eta time.Duration, msg string) {
	s.Report(done, total, msg)
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *eventLog) Publish(ev progress.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func TestSourceFetchFiveReleasesOneListingEach(t *testing.T) {
	m := &marketplace{
		releases: map[string][]string{
			"1": {"101"}, "2": {"201"}, "3": {"301"}, "4": {"401"}, "5": {"501"},
		},
		listingCalls: map[string]int{},
		remaining:    25,
		wantPages:    2,
	}
	srv := httptest.NewServer(m.handler(t))
	defer srv.Close()

	src := NewSource(newTestClient(t, srv.URL), SourceOptions{
		Batch:  batch.Options{Cooldown: time.Millisecond},
		Logger: logger.Discard(),
	})
	events := &eventLog{}
	rep := progress.NewReporter(events, "run-1")

	listings, err := src.Fetch(context.Background(), "alice", rep)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(listings) != 5 {
		t.Fatalf("expected 5 listings, got %d", len(listings))
	}
	for _, id := range []string{"101", "201", "301", "401", "501"} {
		if m.listingCalls[id] != 1 {
			t.Errorf("listing %s fetched %d times", id, m.listingCalls[id])
		}
	}
	if listings[0].Name != "Artist 101 - Title 101" || !listings[0].Price.Equal(decimal.RequireFromString("101.5")) {
		t.Errorf("unexpected first listing %+v", listings[0])
	}

	last := 0
	for _, ev := range events.events {
		if ev.Percent < last {
			t.Fatalf("progress went backwards: %d after %d", ev.Percent, last)
		}
		last = ev.Percent
	}
	if last != listingsDone {
		t.Errorf("expected progress to end at %d, got %d", listingsDone, last)
	}
}
