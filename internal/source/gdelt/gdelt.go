// Package gdelt fetches drone-incident candidates from the GDELT 2.0 doc
// API. GDELT indexes global press within minutes of publication, so this
// adapter is marked fast and participates in breaking-news passes.
package gdelt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/linnemanlabs/airsight/internal/incident"
	"github.com/linnemanlabs/airsight/internal/source"
)

const (
	defaultBaseURL = "https://api.gdeltproject.org/api/v2/doc/doc"
	maxRecords     = 75

	// GDELT aggregates press; article credibility comes from the
	// publisher tier, not from the transport being an API.
	confidenceHint = 0.5

	query = `(drone OR uav) AND (airport OR airfield OR runway OR port OR harbour OR harbor OR ferry OR quay OR berth OR vts)`
)

// seendate layout, e.g. 20260114T093000Z.
const seenDateLayout = "20060102T150405Z"

// Adapter queries the GDELT doc API.
type Adapter struct {
	baseURL string
	client  *http.Client
}

// New creates a GDELT adapter. A nil client uses http.DefaultClient.
func New(client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{baseURL: defaultBaseURL, client: client}
}

// Name identifies the adapter in cycle results.
func (a *Adapter) Name() string { return "gdelt" }

// Fast marks the adapter for breaking-news passes.
func (a *Adapter) Fast() bool { return true }

type article struct {
	Title        string `json:"title"`
	URL          string `json:"url"`
	SourceDomain string `json:"domain"`
	SeenDate     string `json:"seendate"`
}

type response struct {
	Articles []article `json:"articles"`
}

// Fetch queries GDELT for drone-incident press since the cutoff and
// converts relevant articles into candidates.
func (a *Adapter) Fetch(ctx context.Context, since time.Time) ([]incident.Candidate, error) {
	minutes := int(time.Since(since).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	params := url.Values{
		"query":      {query},
		"format":     {"json"},
		"maxrecords": {fmt.Sprint(maxRecords)},
		"timespan":   {fmt.Sprintf("MINUTE:%d", minutes)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("gdelt: create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gdelt: %w: %w", source.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gdelt: %w: status %d", source.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("gdelt: read response: %w", err)
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("gdelt: decode response: %w", err)
	}

	var candidates []incident.Candidate
	for _, art := range out.Articles {
		if !source.Relevant(art.Title) {
			continue
		}
		name, assetType, category := source.Classify(art.Title)
		if name == "" {
			continue
		}

		occurred := time.Now().UTC()
		if t, err := time.Parse(seenDateLayout, art.SeenDate); err == nil {
			occurred = t
		}

		candidates = append(candidates, incident.Candidate{
			SourceKind:     incident.SourceRSS,
			RawText:        art.Title,
			OccurredAt:     occurred,
			LocationHint:   name,
			SourceRef:      art.URL,
			Publisher:      art.SourceDomain,
			ConfidenceHint: confidenceHint,
			AssetName:      name,
			AssetType:      assetType,
			Category:       category,
		})
	}
	return candidates, nil
}
