package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/linnemanlabs/airsight/internal/incident"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func candidate(name string, at time.Time) *incident.Candidate {
	c := &incident.Candidate{
		SourceKind: incident.SourceRSS,
		RawText:    "Drone sighted near " + name,
		OccurredAt: at,
		SourceRef:  "https://example.org/" + incident.Slug(name),
		Publisher:  "Local Gazette",
		AssetName:  name,
		AssetType:  incident.AssetAirport,
		Category:   incident.CategorySighting,
	}
	if err := incident.Normalize(c); err != nil {
		panic(err)
	}
	return c
}

func TestMerge_NewIncident(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	in, isNew, err := s.Merge(candidate("Copenhagen Airport", baseTime))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !isNew {
		t.Fatal("first merge should create a new incident")
	}
	if in.Asset.Name != "Copenhagen Airport" {
		t.Errorf("Asset.Name = %q", in.Asset.Name)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestMerge_RejectsEmptyAssetName(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	_, _, err := s.Merge(&incident.Candidate{AssetName: "   "})
	if !errors.Is(err, incident.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if s.Len() != 0 {
		t.Error("rejected candidate must not create an incident")
	}
}

func TestMerge_SameAssetWithinToleranceMergesOnce(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	_, _, _ = s.Merge(candidate("Copenhagen Airport", baseTime))

	// Case-insensitive match, 90 minutes later, still inside ±2h.
	c2 := candidate("COPENHAGEN airport", baseTime.Add(90*time.Minute))
	c2.Publisher = "Reuters"
	in, isNew, err := s.Merge(c2)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if isNew {
		t.Fatal("matching candidate should merge, not create")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}

	if len(in.Evidence.Sources) != 2 {
		t.Errorf("Sources = %d, want both provenance entries", len(in.Evidence.Sources))
	}
	// Tier-one publisher lifts strength to the max of both candidates.
	if in.Evidence.Strength != incident.StrengthCorrobor {
		t.Errorf("Strength = %d, want %d", in.Evidence.Strength, incident.StrengthCorrobor)
	}
	if !in.LastUpdatedAt.Equal(baseTime.Add(90 * time.Minute)) {
		t.Errorf("LastUpdatedAt = %v, want bumped", in.LastUpdatedAt)
	}
}

func TestMerge_OutsideToleranceCreatesSecondIncident(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	_, _, _ = s.Merge(candidate("Copenhagen Airport", baseTime))

	_, isNew, err := s.Merge(candidate("Copenhagen Airport", baseTime.Add(5*time.Hour)))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !isNew {
		t.Fatal("candidate outside the tolerance should create a new incident")
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestMerge_SeverityAndCredibilityNeverRegress(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	c1 := candidate("Copenhagen Airport", baseTime)
	c1.Category = incident.CategoryClosure // severity 8 at an airport
	c1.ConfidenceHint = 0.9
	_, _, _ = s.Merge(c1)

	c2 := candidate("Copenhagen Airport", baseTime.Add(time.Hour))
	c2.Category = incident.CategorySighting // severity 5, lower
	c2.ConfidenceHint = 0.2
	in, _, err := s.Merge(c2)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if in.Scores.Severity != 8 {
		t.Errorf("Severity = %d, want 8 (no regression)", in.Scores.Severity)
	}
	if in.Scores.Credibility != 9 {
		t.Errorf("Credibility = %d, want 9 (no regression)", in.Scores.Credibility)
	}
}

func TestMerge_LastUpdatedAtMonotonic(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	_, _, _ = s.Merge(candidate("Copenhagen Airport", baseTime))

	// An older matching report must not move LastUpdatedAt backwards.
	in, isNew, err := s.Merge(candidate("Copenhagen Airport", baseTime.Add(-time.Hour)))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if isNew {
		t.Fatal("older report within tolerance should merge")
	}
	if !in.LastUpdatedAt.Equal(baseTime) {
		t.Errorf("LastUpdatedAt = %v, want unchanged %v", in.LastUpdatedAt, baseTime)
	}
}

func TestMerge_TagsUnion(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	c1 := candidate("Copenhagen Airport", baseTime)
	c1.Tags = []string{"airspace", "police"}
	_, _, _ = s.Merge(c1)

	c2 := candidate("Copenhagen Airport", baseTime.Add(time.Hour))
	c2.Tags = []string{"police", "navtex"}
	in, _, err := s.Merge(c2)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	want := []string{"airspace", "police", "navtex"}
	if len(in.Tags) != len(want) {
		t.Fatalf("Tags = %v, want %v", in.Tags, want)
	}
	for i, tag := range want {
		if in.Tags[i] != tag {
			t.Errorf("Tags[%d] = %q, want %q", i, in.Tags[i], tag)
		}
	}
}

func TestTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cur      incident.Status
		next     incident.Status
		strength int
		want     incident.Status
	}{
		{"unconfirmed to active", incident.StatusUnconfirmed, incident.StatusActive, 1, incident.StatusActive},
		{"unconfirmed to resolved", incident.StatusUnconfirmed, incident.StatusResolved, 1, incident.StatusResolved},
		{"active to resolved", incident.StatusActive, incident.StatusResolved, 1, incident.StatusResolved},
		{"active to unconfirmed blocked", incident.StatusActive, incident.StatusUnconfirmed, 3, incident.StatusActive},
		{"resolved to active blocked on weak evidence", incident.StatusResolved, incident.StatusActive, 2, incident.StatusResolved},
		{"resolved to active on official evidence", incident.StatusResolved, incident.StatusActive, 3, incident.StatusActive},
		{"resolved to unconfirmed blocked", incident.StatusResolved, incident.StatusUnconfirmed, 3, incident.StatusResolved},
		{"empty next keeps current", incident.StatusActive, "", 3, incident.StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := transition(tt.cur, tt.next, tt.strength); got != tt.want {
				t.Errorf("transition(%q, %q, %d) = %q, want %q", tt.cur, tt.next, tt.strength, got, tt.want)
			}
		})
	}
}

func TestList_Ordering(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)

	mk := func(name string, status incident.Status, cat incident.Category, at time.Time) {
		c := candidate(name, at)
		c.Status = status
		c.Category = cat
		if _, _, err := s.Merge(c); err != nil {
			t.Fatalf("Merge %s: %v", name, err)
		}
	}

	mk("Aalborg Airport", incident.StatusResolved, incident.CategoryThreat, baseTime)               // severity 10, resolved
	mk("Copenhagen Airport", incident.StatusActive, incident.CategorySighting, baseTime)            // severity 5, active
	mk("Billund Airport", incident.StatusActive, incident.CategoryClosure, baseTime.Add(-time.Hour)) // severity 8, active

	got := s.List(ListOptions{})
	if len(got) != 3 {
		t.Fatalf("List = %d incidents, want 3", len(got))
	}
	// Active first, then severity within active, resolved last despite
	// its higher severity.
	if got[0].Asset.Name != "Billund Airport" {
		t.Errorf("first = %q, want Billund Airport", got[0].Asset.Name)
	}
	if got[1].Asset.Name != "Copenhagen Airport" {
		t.Errorf("second = %q, want Copenhagen Airport", got[1].Asset.Name)
	}
	if got[2].Asset.Name != "Aalborg Airport" {
		t.Errorf("third = %q, want Aalborg Airport", got[2].Asset.Name)
	}
}

func TestList_Filters(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	c := candidate("Copenhagen Airport", baseTime)
	c.Status = incident.StatusActive
	_, _, _ = s.Merge(c)
	_, _, _ = s.Merge(candidate("Billund Airport", baseTime.Add(-48*time.Hour)))

	if got := s.List(ListOptions{Status: incident.StatusActive}); len(got) != 1 {
		t.Errorf("status filter = %d incidents, want 1", len(got))
	}
	if got := s.List(ListOptions{Since: baseTime.Add(-time.Hour)}); len(got) != 1 {
		t.Errorf("since filter = %d incidents, want 1", len(got))
	}
}

func TestEvict_AgeSkipsActive(t *testing.T) {
	t.Parallel()

	s := New(Config{MatchTolerance: 2 * time.Hour, RetentionHorizon: 30 * 24 * time.Hour, MaxIncidents: 100}, nil)

	old := candidate("Billund Airport", baseTime.Add(-40*24*time.Hour))
	_, _, _ = s.Merge(old)
	oldActive := candidate("Copenhagen Airport", baseTime.Add(-40*24*time.Hour))
	oldActive.Status = incident.StatusActive
	_, _, _ = s.Merge(oldActive)
	_, _, _ = s.Merge(candidate("Aalborg Airport", baseTime))

	removed := s.Evict(baseTime)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}

	// The active incident survived despite its age.
	got := s.List(ListOptions{Status: incident.StatusActive})
	if len(got) != 1 || got[0].Asset.Name != "Copenhagen Airport" {
		t.Error("active incident should survive the age pass")
	}
}

func TestEvict_CeilingRemovesOldestNonActiveFirst(t *testing.T) {
	t.Parallel()

	s := New(Config{MatchTolerance: 2 * time.Hour, RetentionHorizon: 365 * 24 * time.Hour, MaxIncidents: 3}, nil)

	active := candidate("Copenhagen Airport", baseTime.Add(-10*24*time.Hour))
	active.Status = incident.StatusActive
	_, _, _ = s.Merge(active)
	for i := range 4 {
		_, _, _ = s.Merge(candidate(fmt.Sprintf("Airport %d", i), baseTime.Add(-time.Duration(i)*24*time.Hour)))
	}

	removed := s.Evict(baseTime)
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}

	// The oldest non-active incidents went first; the older active one stayed.
	if got := s.List(ListOptions{Status: incident.StatusActive}); len(got) != 1 {
		t.Error("active incident should survive the ceiling pass while non-active remain")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	_, _, _ = s.Merge(candidate("Copenhagen Airport", baseTime))
	_, _, _ = s.Merge(candidate("Billund Airport", baseTime))

	all := s.All()

	s2 := New(DefaultConfig(), nil)
	s2.Restore(all)
	if s2.Len() != 2 {
		t.Fatalf("restored Len = %d, want 2", s2.Len())
	}
	for _, in := range all {
		got, ok := s2.Get(in.ID)
		if !ok {
			t.Fatalf("missing incident %s after restore", in.ID)
		}
		if got.Asset.Name != in.Asset.Name {
			t.Errorf("Asset.Name = %q, want %q", got.Asset.Name, in.Asset.Name)
		}
	}
}

func TestMerge_ReturnsCopies(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	in, _, _ := s.Merge(candidate("Copenhagen Airport", baseTime))

	in.Asset.Name = "Tampered"
	got, ok := s.Get(in.ID)
	if !ok {
		t.Fatal("incident missing")
	}
	if got.Asset.Name != "Copenhagen Airport" {
		t.Error("mutating a returned incident must not affect the store")
	}
}
