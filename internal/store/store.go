// Package store holds the authoritative incident set: merge/dedup of
// candidate reports, retention eviction, and the sorted exposure the API
// and broadcast layers consume.
//
// The store is mutated only from the ingestion-cycle path (single-writer
// discipline); the mutex exists because HTTP and websocket reads happen
// concurrently with cycle writes.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/airsight/internal/incident"
)

// Config controls matching and retention behavior.
type Config struct {
	// MatchTolerance is the window around an incident's LastUpdatedAt in
	// which a candidate for the same asset merges instead of creating a
	// new incident.
	MatchTolerance time.Duration

	// RetentionHorizon evicts incidents first seen longer ago than this.
	RetentionHorizon time.Duration

	// MaxIncidents caps the total incident count; oldest non-active
	// incidents are evicted first when exceeded.
	MaxIncidents int
}

// DefaultConfig mirrors the production ingestion defaults.
func DefaultConfig() Config {
	return Config{
		MatchTolerance:   2 * time.Hour,
		RetentionHorizon: 30 * 24 * time.Hour,
		MaxIncidents:     1000,
	}
}

// Store is the in-memory authoritative incident set.
type Store struct {
	cfg    Config
	logger log.Logger

	mu        sync.RWMutex
	incidents map[string]*incident.Incident
}

// New initializes an empty Store.
func New(cfg Config, logger log.Logger) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.MatchTolerance <= 0 {
		cfg.MatchTolerance = 2 * time.Hour
	}
	return &Store{
		cfg:       cfg,
		logger:    logger,
		incidents: make(map[string]*incident.Incident),
	}
}

// Merge folds a normalized candidate into the incident set. It returns the
// resulting incident (a copy) and whether it was newly created. A candidate
// with no asset name is rejected whole.
func (s *Store) Merge(c *incident.Candidate) (*incident.Incident, bool, error) {
	if strings.TrimSpace(c.AssetName) == "" {
		return nil, false, fmt.Errorf("%w: empty asset name", incident.ErrMalformed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.findMatch(c); existing != nil {
		s.mergeInto(existing, c)
		cp := cloneIncident(existing)
		return cp, false, nil
	}

	in := incident.FromCandidate(c)
	// Hour-bucketed IDs collide when two distinct events hit the same
	// asset in one hour outside the match tolerance; suffix to keep IDs
	// unique within the store.
	for i := 2; ; i++ {
		if _, taken := s.incidents[in.ID]; !taken {
			break
		}
		in.ID = fmt.Sprintf("%s-%d", incident.DeterministicID(c.AssetType, c.AssetName, c.OccurredAt), i)
	}
	s.incidents[in.ID] = in
	return cloneIncident(in), true, nil
}

// findMatch returns the incident a candidate should merge into, if any:
// same normalized asset name, timestamps within the match tolerance.
func (s *Store) findMatch(c *incident.Candidate) *incident.Incident {
	name := incident.NormalizeAssetName(c.AssetName)
	var best *incident.Incident
	for _, in := range s.incidents {
		if incident.NormalizeAssetName(in.Asset.Name) != name {
			continue
		}
		delta := c.OccurredAt.Sub(in.LastUpdatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > s.cfg.MatchTolerance {
			continue
		}
		if best == nil || in.LastUpdatedAt.After(best.LastUpdatedAt) {
			best = in
		}
	}
	return best
}

// mergeInto applies a matching candidate to an existing incident. Evidence
// strength, severity, and credibility never regress; status moves only via
// the explicit state machine.
func (s *Store) mergeInto(in *incident.Incident, c *incident.Candidate) {
	in.Evidence.Sources = append(in.Evidence.Sources, incident.SourceRecord{
		Kind:      c.SourceKind,
		URL:       c.SourceRef,
		Publisher: c.Publisher,
		SeenAt:    c.OccurredAt,
	})

	if str := incident.DeriveStrength(c); str > in.Evidence.Strength {
		in.Evidence.Strength = str
	}
	if sev := incident.DeriveSeverity(c); sev > in.Scores.Severity {
		in.Scores.Severity = sev
	}
	if cred := incident.DeriveCredibility(c); cred > in.Scores.Credibility {
		in.Scores.Credibility = cred
	}

	in.Classification.Status = transition(in.Classification.Status, c.Status, in.Evidence.Strength)

	// Tags are a union-accumulated set.
	for _, t := range c.Tags {
		found := false
		for _, have := range in.Tags {
			if have == t {
				found = true
				break
			}
		}
		if !found {
			in.Tags = append(in.Tags, t)
		}
	}

	if c.OccurredAt.After(in.LastUpdatedAt) {
		in.LastUpdatedAt = c.OccurredAt
	}
}

// transition implements the status state machine:
// unconfirmed → active → resolved, with resolved → active allowed only on
// strength-3 evidence. Anything else keeps the current status.
func transition(cur, next incident.Status, strength int) incident.Status {
	if next == cur || next == "" {
		return cur
	}
	switch cur {
	case incident.StatusUnconfirmed:
		if next == incident.StatusActive || next == incident.StatusResolved {
			return next
		}
	case incident.StatusActive:
		if next == incident.StatusResolved {
			return next
		}
	case incident.StatusResolved:
		if next == incident.StatusActive && strength >= incident.StrengthOfficial {
			return next
		}
	}
	return cur
}

// ListOptions filters the sorted incident list.
type ListOptions struct {
	Status incident.Status // empty = all
	Since  time.Time       // zero = no cutoff; compared against LastUpdatedAt
}

// List returns incident copies sorted active-first, then severity, then
// recency.
func (s *Store) List(opts ListOptions) []*incident.Incident {
	s.mu.RLock()
	out := make([]*incident.Incident, 0, len(s.incidents))
	for _, in := range s.incidents {
		if opts.Status != "" && in.Classification.Status != opts.Status {
			continue
		}
		if !opts.Since.IsZero() && in.LastUpdatedAt.Before(opts.Since) {
			continue
		}
		out = append(out, cloneIncident(in))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Active() != b.Active() {
			return a.Active()
		}
		if a.Scores.Severity != b.Scores.Severity {
			return a.Scores.Severity > b.Scores.Severity
		}
		return a.LastUpdatedAt.After(b.LastUpdatedAt)
	})
	return out
}

// Get returns a copy of the incident with the given ID.
func (s *Store) Get(id string) (*incident.Incident, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.incidents[id]
	if !ok {
		return nil, false
	}
	return cloneIncident(in), true
}

// Len returns the current incident count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.incidents)
}

// Evict applies both retention triggers and returns the number of
// incidents removed. Active incidents are always evicted last: the age
// pass skips them, and the ceiling pass removes them only once no
// non-active incidents remain.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	if s.cfg.RetentionHorizon > 0 {
		cutoff := now.Add(-s.cfg.RetentionHorizon)
		for id, in := range s.incidents {
			if in.Active() {
				continue
			}
			if in.FirstSeenAt.Before(cutoff) {
				delete(s.incidents, id)
				removed++
			}
		}
	}

	if s.cfg.MaxIncidents > 0 && len(s.incidents) > s.cfg.MaxIncidents {
		overflow := len(s.incidents) - s.cfg.MaxIncidents
		for _, in := range s.evictionOrder() {
			if overflow == 0 {
				break
			}
			delete(s.incidents, in.ID)
			removed++
			overflow--
		}
	}

	return removed
}

// evictionOrder lists incidents non-active before active, oldest first
// within each class.
func (s *Store) evictionOrder() []*incident.Incident {
	order := make([]*incident.Incident, 0, len(s.incidents))
	for _, in := range s.incidents {
		order = append(order, in)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.Active() != b.Active() {
			return b.Active()
		}
		return a.FirstSeenAt.Before(b.FirstSeenAt)
	})
	return order
}

// All returns copies of every incident, unsorted. Used for snapshots.
func (s *Store) All() []*incident.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*incident.Incident, 0, len(s.incidents))
	for _, in := range s.incidents {
		out = append(out, cloneIncident(in))
	}
	return out
}

// Restore replaces the incident set from a snapshot. Called once at
// startup before any cycle runs.
func (s *Store) Restore(incidents []*incident.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = make(map[string]*incident.Incident, len(incidents))
	for _, in := range incidents {
		s.incidents[in.ID] = cloneIncident(in)
	}
}

func cloneIncident(in *incident.Incident) *incident.Incident {
	cp := *in
	cp.Evidence.Sources = append([]incident.SourceRecord(nil), in.Evidence.Sources...)
	cp.Tags = append([]string(nil), in.Tags...)
	return &cp
}
