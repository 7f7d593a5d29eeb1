// Package sched drives the incident pipeline: periodic full ingestion
// cycles, the lighter breaking-news pass, and retention cleanup, each on
// its own cadence and never overlapping itself.
package sched

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/airsight/internal/alert"
	"github.com/linnemanlabs/airsight/internal/hub"
	"github.com/linnemanlabs/airsight/internal/incident"
	"github.com/linnemanlabs/airsight/internal/source"
	"github.com/linnemanlabs/airsight/internal/store"
)

// Cycle kinds.
const (
	KindFull     = "full"
	KindBreaking = "breaking"
	KindManual   = "manual"
)

// urgentRe gates the breaking-news pass to high-urgency reports only.
var urgentRe = regexp.MustCompile(`(?i)\b(closed|closure|shut ?down|suspended|evacuat|diverted|lockdown|intrusion|breach)\b`)

// Config controls cycle cadences and per-adapter budgets.
type Config struct {
	IngestInterval   time.Duration // full cycle cadence
	BreakingInterval time.Duration // breaking-news cadence
	CleanupInterval  time.Duration // retention cleanup cadence
	AdapterTimeout   time.Duration // per-adapter fetch budget
	IngestLookback   time.Duration // fetch cutoff for full cycles
	BreakingLookback time.Duration // fetch cutoff for breaking passes
}

// DefaultConfig mirrors the production cadences.
func DefaultConfig() Config {
	return Config{
		IngestInterval:   15 * time.Minute,
		BreakingInterval: 5 * time.Minute,
		CleanupInterval:  24 * time.Hour,
		AdapterTimeout:   60 * time.Second,
		IngestLookback:   24 * time.Hour,
		BreakingLookback: time.Hour,
	}
}

// SourceResult is one adapter's outcome within a cycle.
type SourceResult struct {
	Name       string `json:"name"`
	Candidates int    `json:"candidates"`
	Error      string `json:"error,omitempty"`
}

// CycleResult summarizes one ingestion cycle for observability. Partial
// adapter failures are recorded here, not retried within the tick.
type CycleResult struct {
	Kind       string         `json:"kind"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   float64        `json:"duration_seconds"`
	Sources    []SourceResult `json:"sources"`
	Candidates int            `json:"candidates"`
	Rejected   int            `json:"rejected"`
	NewCount   int            `json:"new_incidents"`
	Updated    int            `json:"updated_incidents"`
	Alerts     int            `json:"alerts"`
	Failed     int            `json:"failed_sources"`
}

// Status is the scheduler summary served by the status API.
type Status struct {
	Initialized bool         `json:"initialized"`
	Incidents   int          `json:"incidents"`
	LastCycle   *CycleResult `json:"last_cycle,omitempty"`
	Alerts      alert.Stats  `json:"alerts"`
	Hub         hub.Stats    `json:"hub"`
}

// Scheduler composes the pipeline: it takes the store, alert engine, and
// hub as constructor-injected collaborators and calls them directly.
type Scheduler struct {
	cfg      Config
	registry *source.Registry
	store    *store.Store
	engine   *alert.Engine
	hub      *hub.Hub
	state    store.State
	logger   log.Logger
	metrics  *Metrics

	ingestBusy   atomic.Bool
	breakingBusy atomic.Bool
	cleanupBusy  atomic.Bool
	initialized  atomic.Bool

	mu   sync.RWMutex
	last *CycleResult
}

// New creates a Scheduler. state may be nil (no persistence); metrics may
// be nil (no instrumentation).
func New(
	cfg Config,
	registry *source.Registry,
	st *store.Store,
	engine *alert.Engine,
	h *hub.Hub,
	state store.State,
	logger log.Logger,
	metrics *Metrics,
) *Scheduler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Scheduler{
		cfg:      cfg,
		registry: registry,
		store:    st,
		engine:   engine,
		hub:      h,
		state:    state,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run starts the three cadence loops and blocks until the context is
// canceled. An immediate full cycle runs first so the store is warm
// before the first scheduled tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.runIngest(ctx, KindFull)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.IngestInterval, func() { s.runIngest(ctx, KindFull) })
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.BreakingInterval, func() { s.runBreaking(ctx) })
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.CleanupInterval, func() { s.runCleanup(ctx) })
	}()

	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, task func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task()
		}
	}
}

// TriggerUpdate starts an out-of-cadence ingestion cycle. It returns
// false when a cycle is already in flight (suppressed, not queued).
func (s *Scheduler) TriggerUpdate(ctx context.Context) bool {
	if s.ingestBusy.Load() {
		return false
	}
	go s.runIngest(context.WithoutCancel(ctx), KindManual)
	return true
}

// Initialized reports whether the startup cycle has completed.
func (s *Scheduler) Initialized() bool {
	return s.initialized.Load()
}

// Status summarizes scheduler, store, alert, and hub state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	return Status{
		Initialized: s.initialized.Load(),
		Incidents:   s.store.Len(),
		LastCycle:   last,
		Alerts:      s.engine.Stats(),
		Hub:         s.hub.Stats(),
	}
}

// runIngest executes a full (or manually triggered) ingestion cycle. A
// cycle already in progress suppresses this trigger entirely.
func (s *Scheduler) runIngest(ctx context.Context, kind string) {
	if !s.ingestBusy.CompareAndSwap(false, true) {
		s.logger.Info(ctx, "ingest cycle suppressed, previous still running", "kind", kind)
		return
	}
	defer s.ingestBusy.Store(false)

	since := time.Now().Add(-s.cfg.IngestLookback)
	res := s.cycle(ctx, kind, s.registry.All(), since, nil)
	s.finishCycle(ctx, res)
	s.initialized.Store(true)
}

// runBreaking executes the lighter-weight breaking-news pass: fast
// sources only, urgent keywords only, same merge path.
func (s *Scheduler) runBreaking(ctx context.Context) {
	if !s.breakingBusy.CompareAndSwap(false, true) {
		s.logger.Info(ctx, "breaking-news pass suppressed, previous still running")
		return
	}
	defer s.breakingBusy.Store(false)

	since := time.Now().Add(-s.cfg.BreakingLookback)
	res := s.cycle(ctx, KindBreaking, s.registry.Fast(), since, func(c *incident.Candidate) bool {
		return urgentRe.MatchString(c.RawText)
	})
	s.finishCycle(ctx, res)
}

// runCleanup applies store retention and persists the result.
func (s *Scheduler) runCleanup(ctx context.Context) {
	if !s.cleanupBusy.CompareAndSwap(false, true) {
		s.logger.Info(ctx, "cleanup suppressed, previous still running")
		return
	}
	defer s.cleanupBusy.Store(false)

	removed := s.store.Evict(time.Now())
	if s.metrics != nil {
		s.metrics.EvictedTotal.Add(float64(removed))
	}
	s.logger.Info(ctx, "retention cleanup complete", "removed", removed, "remaining", s.store.Len())
	s.Flush(ctx)
}

// cycle runs fetch → normalize → merge → evaluate → broadcast, in that
// order, for one set of adapters. Adapter fetches fan out concurrently;
// the cycle waits for all of them (or their timeouts) before merging.
func (s *Scheduler) cycle(
	ctx context.Context,
	kind string,
	adapters []source.Adapter,
	since time.Time,
	keep func(*incident.Candidate) bool,
) *CycleResult {
	start := time.Now()
	res := &CycleResult{Kind: kind, StartedAt: start}

	type fetched struct {
		name       string
		candidates []incident.Candidate
		err        error
	}

	results := make([]fetched, len(adapters))
	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a source.Adapter) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
			defer cancel()
			cs, err := a.Fetch(fctx, since)
			results[i] = fetched{name: a.Name(), candidates: cs, err: err}
		}(i, a)
	}
	wg.Wait()

	var candidates []incident.Candidate
	for _, f := range results {
		sr := SourceResult{Name: f.name, Candidates: len(f.candidates)}
		if f.err != nil {
			// One adapter's failure never aborts the cycle or the
			// other adapters' results.
			sr.Error = f.err.Error()
			res.Failed++
			s.logger.Error(ctx, f.err, "source fetch failed", "source", f.name, "kind", kind)
		} else {
			candidates = append(candidates, f.candidates...)
		}
		res.Sources = append(res.Sources, sr)
		s.hub.BroadcastSourceUpdate(ctx, f.name, len(f.candidates), f.err)
	}
	res.Candidates = len(candidates)

	var newIncidents, changed []*incident.Incident
	for i := range candidates {
		c := &candidates[i]
		if err := incident.Normalize(c); err != nil {
			res.Rejected++
			s.logger.Warn(ctx, "rejected malformed candidate", "source_ref", c.SourceRef, "error", err.Error())
			continue
		}
		if keep != nil && !keep(c) {
			continue
		}

		in, isNew, err := s.store.Merge(c)
		if err != nil {
			res.Rejected++
			s.logger.Warn(ctx, "rejected candidate at merge", "source_ref", c.SourceRef, "error", err.Error())
			continue
		}
		if isNew {
			res.NewCount++
			newIncidents = append(newIncidents, in)
		} else {
			res.Updated++
			changed = append(changed, in)
		}

		// New and changed incidents both go through the alert engine;
		// its cooldown absorbs re-evaluation of the same event.
		if rec := s.engine.Evaluate(ctx, in); rec != nil {
			res.Alerts++
		}
	}

	if len(newIncidents) > 0 {
		s.hub.BroadcastNewIncidents(ctx, newIncidents)
	}
	// Updates carry only the delta, not the full list; clients that want
	// the complete set query the API.
	if len(changed) > 0 {
		s.hub.BroadcastUpdate(ctx, changed)
	}

	res.Duration = time.Since(start).Seconds()
	return res
}

// finishCycle records the result, emits statistics, and flushes the
// snapshot.
func (s *Scheduler) finishCycle(ctx context.Context, res *CycleResult) {
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.CyclesTotal.WithLabelValues(res.Kind).Inc()
		s.metrics.CycleDuration.WithLabelValues(res.Kind).Observe(res.Duration)
		s.metrics.CandidatesTotal.WithLabelValues(res.Kind).Add(float64(res.Candidates))
	}

	s.logger.Info(ctx, "cycle complete",
		"kind", res.Kind,
		"duration", res.Duration,
		"candidates", res.Candidates,
		"rejected", res.Rejected,
		"new", res.NewCount,
		"updated", res.Updated,
		"alerts", res.Alerts,
		"failed_sources", res.Failed,
	)

	s.hub.BroadcastStatistics(ctx, s.Status())
	s.Flush(ctx)
}

// Flush persists the current pipeline snapshot.
func (s *Scheduler) Flush(ctx context.Context) {
	if s.state == nil {
		return
	}
	snap := &store.Snapshot{
		GeneratedAt: time.Now().UTC(),
		LastCycleAt: time.Now().UTC(),
		Incidents:   s.store.All(),
		Alerts:      s.engine.All(),
	}
	if err := s.state.Save(ctx, snap); err != nil {
		s.logger.Error(ctx, err, "snapshot flush failed")
	}
}
