// Package incident defines the domain model for drone incident reports:
// raw candidates as delivered by source adapters, and the merged,
// authoritative Incident records the rest of the pipeline operates on.
package incident

import "time"

// SourceKind identifies the class of feed a candidate came from.
type SourceKind string

const (
	// SourceRSS is a syndicated news feed.
	SourceRSS SourceKind = "rss"

	// SourceSocial is a social-media or crowd report.
	SourceSocial SourceKind = "social"

	// SourceAPI is an authority or third-party API (NOTAM, police, VTS).
	SourceAPI SourceKind = "api"
)

// AssetType classifies the infrastructure an incident is attached to.
type AssetType string

const (
	AssetAirport  AssetType = "airport"
	AssetHarbour  AssetType = "harbour"
	AssetMilitary AssetType = "military"
	AssetCity     AssetType = "city"
	AssetUnknown  AssetType = "unknown"
)

// Category is the incident classification.
type Category string

const (
	CategorySighting   Category = "sighting"
	CategoryClosure    Category = "closure"
	CategoryBreach     Category = "breach"
	CategoryThreat     Category = "threat"
	CategoryDisruption Category = "disruption"
)

// Status tracks where an incident is in its lifecycle.
type Status string

const (
	StatusUnconfirmed Status = "unconfirmed"
	StatusActive      Status = "active"
	StatusResolved    Status = "resolved"
)

// Evidence strength tiers (0..3). StrengthOfficial is reserved for
// authority sources (NOTAM/police/VTS feeds).
const (
	StrengthNone     = 0
	StrengthSingle   = 1
	StrengthCorrobor = 2
	StrengthOfficial = 3
)

const (
	severityFloor    = 1
	severityCeiling  = 10
	credibilityScale = 10
)

// Candidate is an unvalidated, unmerged report from a single source pass.
// Adapters resolve assets and geocoding before handing candidates to the
// pipeline; the normalizer only validates and fills derived fields.
type Candidate struct {
	SourceKind     SourceKind `json:"source_kind"`
	RawText        string     `json:"raw_text"`
	OccurredAt     time.Time  `json:"occurred_at"`
	LocationHint   string     `json:"location_hint,omitempty"`
	SourceRef      string     `json:"source_ref"`
	Publisher      string     `json:"publisher,omitempty"`
	ConfidenceHint float64    `json:"confidence_hint,omitempty"` // 0..1

	AssetName string    `json:"asset_name"`
	AssetType AssetType `json:"asset_type,omitempty"`
	Lat       float64   `json:"lat,omitempty"`
	Lon       float64   `json:"lon,omitempty"`
	Category  Category  `json:"category,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// Asset is the infrastructure element an incident is attached to.
type Asset struct {
	Type AssetType `json:"type"`
	Name string    `json:"name"`
	Lat  float64   `json:"lat"`
	Lon  float64   `json:"lon"`
}

// Classification holds the incident category and lifecycle status.
type Classification struct {
	Category Category `json:"category"`
	Status   Status   `json:"status"`
}

// SourceRecord is one provenance entry on an incident's evidence trail.
type SourceRecord struct {
	Kind      SourceKind `json:"kind"`
	URL       string     `json:"url"`
	Publisher string     `json:"publisher,omitempty"`
	SeenAt    time.Time  `json:"seen_at"`
}

// Evidence aggregates provenance across merges. Strength never decreases.
type Evidence struct {
	Strength int            `json:"strength"` // 0..3
	Sources  []SourceRecord `json:"sources"`
}

// Scores holds the derived severity and credibility ratings.
type Scores struct {
	Severity    int `json:"severity"`    // 1..10
	Credibility int `json:"credibility"` // 0..10
}

// Incident is the authoritative unit: exactly one exists per logical
// real-world event within the store at any time.
type Incident struct {
	ID             string         `json:"id"`
	FirstSeenAt    time.Time      `json:"first_seen_at"`
	LastUpdatedAt  time.Time      `json:"last_updated_at"`
	Asset          Asset          `json:"asset"`
	Classification Classification `json:"classification"`
	Evidence       Evidence       `json:"evidence"`
	Scores         Scores         `json:"scores"`
	Tags           []string       `json:"tags,omitempty"`
	Narrative      string         `json:"narrative,omitempty"`
}

// Active reports whether the incident is in active status.
func (in *Incident) Active() bool {
	return in.Classification.Status == StatusActive
}
