package output

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rsilvagit/cratedig/internal/model"
	"github.com/rsilvagit/cratedig/internal/pipeline"
)

func sampleResult() pipeline.Result {
	img := "https://img/abbey.jpg"
	return pipeline.Result{
		Currency: "USD",
		Results: []model.Listing{
			{Name: "The Beatles - Abbey Road", Price: decimal.RequireFromString("19.9"), Condition: "New", Link: "https://bandcamp.com/x", Image: &img, Source: "bandcamp"},
			{Name: "Can - Tago Mago", Price: decimal.NewFromInt(25), Condition: "Mint (M)", Link: "https://www.discogs.com/sell/item/1", Source: "discogs"},
		},
		DiscogsSuccess:  false,
		BandcampSuccess: true,
	}
}

func TestConsolePrinter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewConsolePrinter(&buf).WriteResult(sampleResult()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Discogs indisponível", "The Beatles - Abbey Road", "19.90 USD", "Can - Tago Mago"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Bandcamp indisponível") {
		t.Error("bandcamp succeeded and must not be flagged")
	}
}

func TestConsolePrinterEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewConsolePrinter(&buf).WriteResult(pipeline.Result{DiscogsSuccess: true, BandcampSuccess: true})
	if strings.TrimSpace(buf.String()) != "Nenhum disco encontrado." {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestDiscordWriter(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordWriter(srv.URL).WriteResult(sampleResult()); err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}
	if len(got.Embeds) != 2 || got.Embeds[0].Thumbnail == nil || got.Embeds[1].Thumbnail != nil {
		t.Fatalf("unexpected embeds %+v", got.Embeds)
	}
	if !strings.Contains(got.Content, "Discogs indisponível") {
		t.Errorf("expected degraded notice in %q", got.Content)
	}
}

func TestDiscordWriterAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid Webhook Token"}`))
	}))
	defer srv.Close()

	err := NewDiscordWriter(srv.URL).WriteResult(sampleResult())
	if err == nil || !strings.Contains(err.Error(), "Invalid Webhook Token") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestTelegramWriter(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tw := NewTelegramWriter("TOKEN", "42")
	tw.baseURL = srv.URL
	if err := tw.WriteResult(sampleResult()); err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}
	if path != "/botTOKEN/sendMessage" || got["chat_id"] != "42" || got["parse_mode"] != "MarkdownV2" {
		t.Fatalf("unexpected request %s %v", path, got)
	}
	if !strings.Contains(got["text"], `The Beatles \- Abbey Road`) || !strings.Contains(got["text"], `19\.90 USD`) {
		t.Errorf("unexpected text %q", got["text"])
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("A-B (C).!"); got != `A\-B \(C\)\.\!` {
		t.Fatalf("unexpected escape %q", got)
	}
}

func TestEscapeLinkURL(t *testing.T) {
	got := formatListing(1, model.Listing{Name: "X", Price: decimal.NewFromInt(1), Link: `https://www.discogs.com/release/1-Can-Tago_Mago_(Remaster)\x`}, "USD")
	want := `[Ver anúncio](https://www.discogs.com/release/1-Can-Tago_Mago_(Remaster\)\\x)`
	if !strings.Contains(got, want) {
		t.Fatalf("link not escaped:\n%s", got)
	}
}

func TestNoticesIgnoreSkippedSources(t *testing.T) {
	tests := []struct {
		name string
		res  pipeline.Result
		want []string
	}{
		{"skipped discogs", pipeline.Result{BandcampSuccess: true, Skipped: []string{"discogs"}}, nil},
		{"failed discogs", pipeline.Result{BandcampSuccess: true}, []string{"Discogs"}},
		{"skipped bandcamp, failed discogs", pipeline.Result{Skipped: []string{"bandcamp"}}, []string{"Discogs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Notices(tt.res)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d notices, got %v", len(tt.want), got)
			}
			for i, prefix := range tt.want {
				if !strings.HasPrefix(got[i], prefix) {
					t.Errorf("notice %d = %q, want prefix %q", i, got[i], prefix)
				}
			}
		})
	}
}
