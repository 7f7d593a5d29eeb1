// Package rssfeed fetches drone-incident candidates from RSS 2.0 feeds.
package rssfeed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/airsight/internal/incident"
	"github.com/linnemanlabs/airsight/internal/source"
)

const (
	maxEntries     = 40
	confidenceHint = 0.5
)

// Feed is one configured RSS source.
type Feed struct {
	Name      string
	URL       string
	Publisher string // overrides the channel title when set
}

// DefaultFeeds is the bundled press feed list.
func DefaultFeeds() []Feed {
	return []Feed{
		{Name: "reuters-europe", URL: "https://www.reuters.com/rssFeed/world/europe"},
	}
}

// Adapter polls one RSS feed. Feeds index on publication schedules, not
// in real time, so the adapter is excluded from breaking-news passes.
type Adapter struct {
	feed   Feed
	client *http.Client
}

// New creates an adapter for one feed. A nil client uses
// http.DefaultClient.
func New(feed Feed, client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{feed: feed, client: client}
}

// Name identifies the adapter in cycle results.
func (a *Adapter) Name() string { return "rss:" + a.feed.Name }

// Fast excludes the adapter from breaking-news passes.
func (a *Adapter) Fast() bool { return false }

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

type rssDoc struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

// Fetch downloads and parses the feed, converting relevant entries newer
// than the cutoff into candidates.
func (a *Adapter) Fetch(ctx context.Context, since time.Time) ([]incident.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("rssfeed: create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rssfeed: %w: %w", source.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rssfeed: %w: status %d", source.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("rssfeed: read response: %w", err)
	}

	var doc rssDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("rssfeed: parse feed: %w", err)
	}

	publisher := a.feed.Publisher
	if publisher == "" {
		publisher = doc.Channel.Title
	}

	items := doc.Channel.Items
	if len(items) > maxEntries {
		items = items[:maxEntries]
	}

	var candidates []incident.Candidate
	for _, item := range items {
		if !source.Relevant(item.Title) {
			continue
		}
		name, assetType, category := source.Classify(item.Title)
		if name == "" {
			continue
		}

		occurred := time.Now().UTC()
		if t, err := parsePubDate(item.PubDate); err == nil {
			occurred = t
		}
		if occurred.Before(since) {
			continue
		}

		candidates = append(candidates, incident.Candidate{
			SourceKind:     incident.SourceRSS,
			RawText:        item.Title,
			OccurredAt:     occurred,
			LocationHint:   name,
			SourceRef:      item.Link,
			Publisher:      publisher,
			ConfidenceHint: confidenceHint,
			AssetName:      name,
			AssetType:      assetType,
			Category:       category,
		})
	}
	return candidates, nil
}

// parsePubDate accepts the RFC 1123 variants feeds use in the wild.
func parsePubDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("rssfeed: unrecognized pubDate %q", s)
}
