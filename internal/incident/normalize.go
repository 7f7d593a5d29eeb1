package incident

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// ErrMalformed marks a candidate that cannot be merged: no asset name and
// no usable coordinates. Malformed candidates are rejected whole, never
// partially merged.
var ErrMalformed = errors.New("malformed candidate")

var (
	slugRe       = regexp.MustCompile(`[^a-z0-9]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// tierOnePublishers get corroborated evidence strength even from a single
// report. Lowercase substring match against the publisher field.
var tierOnePublishers = []string{
	"reuters", "associated press", "afp", "ansa", "bbc", "dr", "nrk", "lsm", "pap",
}

// NormalizeAssetName canonicalizes an asset name for identity comparison.
// The store's merge matching and the alert engine's cooldown key both use
// this helper so the two "is this the same thing" notions cannot drift.
func NormalizeAssetName(name string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(strings.ToLower(name)), " ")
}

// Slug converts an asset name to a URL- and ID-safe token.
func Slug(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// DeterministicID derives a stable incident ID from the asset and the hour
// bucket of the first report, so re-ingesting the same feed window is
// idempotent.
func DeterministicID(assetType AssetType, assetName string, occurredAt time.Time) string {
	return fmt.Sprintf("%s-%s-%d", assetType, Slug(assetName), occurredAt.UTC().Truncate(time.Hour).Unix())
}

// Normalize validates a candidate and fills derived fields in place:
// asset type, category, status, timestamps. It returns ErrMalformed when
// the candidate has neither an asset name nor coordinates.
func Normalize(c *Candidate) error {
	c.AssetName = strings.TrimSpace(c.AssetName)
	if c.AssetName == "" && c.Lat == 0 && c.Lon == 0 {
		return fmt.Errorf("%w: no asset name and no coordinates (ref=%s)", ErrMalformed, c.SourceRef)
	}
	if c.AssetName == "" {
		c.AssetName = fmt.Sprintf("unresolved %.3f,%.3f", c.Lat, c.Lon)
	}
	if c.AssetType == "" {
		c.AssetType = AssetUnknown
	}
	if c.Category == "" {
		c.Category = CategorySighting
	}
	if c.Status == "" {
		c.Status = StatusUnconfirmed
	}
	if c.OccurredAt.IsZero() {
		c.OccurredAt = time.Now().UTC()
	}
	c.OccurredAt = c.OccurredAt.UTC()
	return nil
}

// DeriveStrength maps a candidate's source kind and publisher to an
// evidence strength tier. Authority APIs outrank press, press outranks
// social.
func DeriveStrength(c *Candidate) int {
	switch c.SourceKind {
	case SourceAPI:
		return StrengthOfficial
	case SourceRSS:
		pub := strings.ToLower(c.Publisher)
		for _, t := range tierOnePublishers {
			if strings.Contains(pub, t) {
				return StrengthCorrobor
			}
		}
		return StrengthSingle
	case SourceSocial:
		return StrengthSingle
	}
	return StrengthNone
}

var categoryBaseSeverity = map[Category]int{
	CategorySighting:   3,
	CategoryDisruption: 5,
	CategoryClosure:    6,
	CategoryBreach:     7,
	CategoryThreat:     8,
}

var assetSeverityWeight = map[AssetType]int{
	AssetAirport:  2,
	AssetMilitary: 3,
	AssetHarbour:  1,
	AssetCity:     0,
	AssetUnknown:  0,
}

// DeriveSeverity computes the 1..10 severity for a candidate from its
// category and asset type.
func DeriveSeverity(c *Candidate) int {
	s := categoryBaseSeverity[c.Category] + assetSeverityWeight[c.AssetType]
	if s < severityFloor {
		s = severityFloor
	}
	if s > severityCeiling {
		s = severityCeiling
	}
	return s
}

// DeriveCredibility scales the adapter's 0..1 confidence hint to 0..10.
func DeriveCredibility(c *Candidate) int {
	cr := int(math.Round(c.ConfidenceHint * credibilityScale))
	if cr < 0 {
		return 0
	}
	if cr > credibilityScale {
		return credibilityScale
	}
	return cr
}

// FromCandidate builds a fresh Incident from a normalized candidate.
func FromCandidate(c *Candidate) *Incident {
	return &Incident{
		ID:            DeterministicID(c.AssetType, c.AssetName, c.OccurredAt),
		FirstSeenAt:   c.OccurredAt,
		LastUpdatedAt: c.OccurredAt,
		Asset: Asset{
			Type: c.AssetType,
			Name: c.AssetName,
			Lat:  c.Lat,
			Lon:  c.Lon,
		},
		Classification: Classification{
			Category: c.Category,
			Status:   c.Status,
		},
		Evidence: Evidence{
			Strength: DeriveStrength(c),
			Sources: []SourceRecord{{
				Kind:      c.SourceKind,
				URL:       c.SourceRef,
				Publisher: c.Publisher,
				SeenAt:    c.OccurredAt,
			}},
		},
		Scores: Scores{
			Severity:    DeriveSeverity(c),
			Credibility: DeriveCredibility(c),
		},
		Tags:      append([]string(nil), c.Tags...),
		Narrative: c.RawText,
	}
}
