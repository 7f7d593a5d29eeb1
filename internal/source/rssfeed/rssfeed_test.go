package rssfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/linnemanlabs/airsight/internal/incident"
	"github.com/linnemanlabs/airsight/internal/source"
)

const feedBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Wire</title>
    <item>
      <title>Copenhagen Airport closed after drone sighting</title>
      <link>https://example.org/cph</link>
      <pubDate>Sun, 01 Mar 2026 10:15:00 +0000</pubDate>
    </item>
    <item>
      <title>Drone breach reported at Port of Rotterdam</title>
      <link>https://example.org/rtm</link>
      <pubDate>Sat, 01 Mar 2025 09:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Rail strike disrupts morning commute</title>
      <link>https://example.org/rail</link>
      <pubDate>Sun, 01 Mar 2026 08:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func newTestAdapter(feed Feed, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	srv := httptest.NewServer(handler)
	feed.URL = srv.URL
	return New(feed, srv.Client()), srv
}

func TestFetch_RelevantEntriesSinceCutoff(t *testing.T) {
	t.Parallel()

	a, srv := newTestAdapter(Feed{Name: "example"}, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedBody))
	})
	defer srv.Close()

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	got, err := a.Fetch(context.Background(), since)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// The Rotterdam entry predates the cutoff; the rail entry never
	// mentions a drone.
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}

	c := got[0]
	if c.AssetName != "Copenhagen Airport" {
		t.Errorf("AssetName = %q", c.AssetName)
	}
	if c.Category != incident.CategoryClosure {
		t.Errorf("Category = %q", c.Category)
	}
	if c.SourceKind != incident.SourceRSS {
		t.Errorf("SourceKind = %q", c.SourceKind)
	}
	if c.Publisher != "Example Wire" {
		t.Errorf("Publisher = %q, want the channel title", c.Publisher)
	}
	want := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	if !c.OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v, want %v", c.OccurredAt, want)
	}
}

func TestFetch_PublisherOverride(t *testing.T) {
	t.Parallel()

	a, srv := newTestAdapter(Feed{Name: "example", Publisher: "Reuters"}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(feedBody))
	})
	defer srv.Close()

	got, err := a.Fetch(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got[0].Publisher != "Reuters" {
		t.Errorf("Publisher = %q, want the configured override", got[0].Publisher)
	}
}

func TestFetch_BadStatusIsUnavailable(t *testing.T) {
	t.Parallel()

	a, srv := newTestAdapter(Feed{Name: "example"}, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})
	defer srv.Close()

	_, err := a.Fetch(context.Background(), time.Now())
	if !errors.Is(err, source.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestFetch_MalformedFeedIsAnError(t *testing.T) {
	t.Parallel()

	a, srv := newTestAdapter(Feed{Name: "example"}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<rss><channel><item>"))
	})
	defer srv.Close()

	if _, err := a.Fetch(context.Background(), time.Now()); err == nil {
		t.Fatal("malformed feed should be an error")
	}
}

func TestParsePubDate(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	tests := []string{
		"Sun, 01 Mar 2026 10:15:00 +0000",
		"Sun, 01 Mar 2026 10:15:00 UTC",
		"01 Mar 26 10:15 +0000",
		"01 Mar 26 10:15 UTC",
	}

	for _, s := range tests {
		got, err := parsePubDate(s)
		if err != nil {
			t.Errorf("parsePubDate(%q): %v", s, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parsePubDate(%q) = %v, want %v", s, got, want)
		}
	}

	if _, err := parsePubDate("not a date"); err == nil {
		t.Error("unparseable pubDate should be an error")
	}
}

func TestAdapterIdentity(t *testing.T) {
	t.Parallel()

	a := New(Feed{Name: "reuters-europe"}, nil)
	if a.Name() != "rss:reuters-europe" {
		t.Errorf("Name = %q", a.Name())
	}
	if a.Fast() {
		t.Error("RSS feeds should sit out breaking-news passes")
	}
}
