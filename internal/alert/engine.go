package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/airsight/internal/incident"
)

// Config controls alert policy.
type Config struct {
	// SeverityThreshold is the minimum final score that produces an alert.
	SeverityThreshold float64

	// CooldownWindow suppresses repeat alerts for the same
	// (asset, category) key. Prevents alert storms from re-ingestion of
	// the same evolving incident.
	CooldownWindow time.Duration

	// MaxAlertsPerHour is a hard cap on the rolling hourly alert count.
	// Excess alerts are dropped, not deferred.
	MaxAlertsPerHour int
}

// DefaultConfig mirrors the production alerting defaults.
func DefaultConfig() Config {
	return Config{
		SeverityThreshold: 7,
		CooldownWindow:    5 * time.Minute,
		MaxAlertsPerHour:  20,
	}
}

// Stats summarizes engine state for the status API.
type Stats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	SentLastHr int `json:"sent_last_hour"`
	HourlyCap  int `json:"hourly_cap"`
	HourlyLeft int `json:"hourly_remaining"`
	Suppressed int `json:"suppressed"`
}

// Engine owns alert scoring, cooldown and rate-limit state, the alert
// record set, and channel fan-out. All mutation happens from the
// ingestion-cycle path; the mutex covers concurrent reads from the API.
type Engine struct {
	cfg      Config
	rules    []Rule
	channels []Channel
	logger   log.Logger
	metrics  *Metrics
	now      func() time.Time

	mu         sync.RWMutex
	records    map[string]*Record
	lastFired  map[string]time.Time // cooldown key -> last alert time
	hourWindow []time.Time          // rolling hourly counter
	suppressed int
}

// NewEngine creates an alert engine with the given policy, rule table, and
// delivery channels. A nil metrics disables instrumentation.
func NewEngine(cfg Config, rules []Rule, channels []Channel, logger log.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	if rules == nil {
		rules = DefaultRules
	}
	return &Engine{
		cfg:       cfg,
		rules:     rules,
		channels:  channels,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
		records:   make(map[string]*Record),
		lastFired: make(map[string]time.Time),
	}
}

// CooldownKey derives the suppression key for an incident. It shares the
// store's asset-name normalization so merge matching and cooldown matching
// agree on identity.
func CooldownKey(in *incident.Incident) string {
	return incident.NormalizeAssetName(in.Asset.Name) + "|" + string(in.Classification.Category)
}

// Evaluate scores an incident and returns the produced alert record, or
// nil when no alert is warranted (below threshold, cooldown, or rate cap).
// Delivery to channels is best-effort and recorded on the returned record.
func (e *Engine) Evaluate(ctx context.Context, in *incident.Incident) *Record {
	if e.metrics != nil {
		e.metrics.EvaluationsTotal.Inc()
	}

	multiplier, reasons := applyRules(e.rules, in)
	score := float64(in.Scores.Severity) * multiplier
	if score < e.cfg.SeverityThreshold {
		return nil
	}

	now := e.now()
	key := CooldownKey(in)

	e.mu.Lock()
	if last, ok := e.lastFired[key]; ok && now.Sub(last) < e.cfg.CooldownWindow {
		e.suppressed++
		e.mu.Unlock()
		e.suppress(ctx, "cooldown", in, score)
		return nil
	}

	e.pruneHourWindowLocked(now)
	if e.cfg.MaxAlertsPerHour > 0 && len(e.hourWindow) >= e.cfg.MaxAlertsPerHour {
		e.suppressed++
		e.mu.Unlock()
		e.suppress(ctx, "rate_limit", in, score)
		return nil
	}

	rec := &Record{
		ID:          ulid.Make().String(),
		IncidentID:  in.ID,
		CreatedAt:   now,
		Priority:    BandPriority(score),
		Score:       score,
		Reasons:     reasons,
		Status:      StatusPending,
		CooldownKey: key,
		AssetName:   in.Asset.Name,
		Severity:    in.Scores.Severity,
		Summary:     in.Narrative,
	}
	e.lastFired[key] = now
	e.hourWindow = append(e.hourWindow, now)
	e.records[rec.ID] = rec
	e.mu.Unlock()

	e.deliver(ctx, rec)

	if e.metrics != nil {
		e.metrics.AlertsTotal.WithLabelValues(string(rec.Priority)).Inc()
	}
	e.logger.Info(ctx, "alert produced",
		"alert_id", rec.ID,
		"incident_id", rec.IncidentID,
		"priority", rec.Priority,
		"score", rec.Score,
		"reasons", rec.Reasons,
	)
	return rec
}

func (e *Engine) suppress(ctx context.Context, reason string, in *incident.Incident, score float64) {
	if e.metrics != nil {
		e.metrics.SuppressedTotal.WithLabelValues(reason).Inc()
	}
	e.logger.Info(ctx, "alert suppressed",
		"reason", reason,
		"incident_id", in.ID,
		"score", score,
	)
}

// deliver fans the record out to every channel independently and records
// per-channel outcomes. One channel failing never skips the others. All
// record mutation goes through setStatus; API readers must only ever see
// writes made under the lock.
func (e *Engine) deliver(ctx context.Context, rec *Record) {
	if len(e.channels) == 0 {
		e.setStatus(rec.ID, StatusSent, nil)
		return
	}

	results := make([]ChannelResult, len(e.channels))
	var wg sync.WaitGroup
	for i, ch := range e.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			res := ChannelResult{Channel: ch.Name(), At: e.now()}
			if err := ch.Deliver(ctx, rec); err != nil {
				res.Error = err.Error()
				e.logger.Error(ctx, err, "alert delivery failed",
					"alert_id", rec.ID,
					"channel", ch.Name(),
				)
			} else {
				res.OK = true
			}
			if e.metrics != nil {
				status := "ok"
				if !res.OK {
					status = "error"
				}
				e.metrics.DeliveriesTotal.WithLabelValues(ch.Name(), status).Inc()
			}
			results[i] = res
		}(i, ch)
	}
	wg.Wait()

	status := StatusSent
	for _, r := range results {
		if !r.OK {
			status = StatusFailed
			break
		}
	}
	e.setStatus(rec.ID, status, results)
}

func (e *Engine) setStatus(id string, status Status, channels []ChannelResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stored, ok := e.records[id]; ok {
		stored.Status = status
		stored.Channels = channels
	}
}

// pruneHourWindowLocked drops window entries older than one hour.
func (e *Engine) pruneHourWindowLocked(now time.Time) {
	cutoff := now.Add(-time.Hour)
	keep := e.hourWindow[:0]
	for _, t := range e.hourWindow {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	e.hourWindow = keep
}

// Clear transitions an alert record to cleared. Returns false when the ID
// is unknown.
func (e *Engine) Clear(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok {
		return false
	}
	rec.Status = StatusCleared
	return true
}

// Get returns a copy of the record with the given ID.
func (e *Engine) Get(id string) (*Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[id]
	if !ok {
		return nil, false
	}
	return cloneRecord(rec), true
}

// Active returns non-cleared alert records, newest first.
func (e *Engine) Active() []*Record {
	e.mu.RLock()
	out := make([]*Record, 0, len(e.records))
	for _, rec := range e.records {
		if rec.Status == StatusCleared {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// All returns every record, unsorted. Used for snapshots.
func (e *Engine) All() []*Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Record, 0, len(e.records))
	for _, rec := range e.records {
		out = append(out, cloneRecord(rec))
	}
	return out
}

// Stats summarizes engine state.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Stats{
		Total:      len(e.records),
		HourlyCap:  e.cfg.MaxAlertsPerHour,
		Suppressed: e.suppressed,
	}
	cutoff := e.now().Add(-time.Hour)
	for _, t := range e.hourWindow {
		if t.After(cutoff) {
			st.SentLastHr++
		}
	}
	for _, rec := range e.records {
		if rec.Status != StatusCleared {
			st.Active++
		}
	}
	st.HourlyLeft = st.HourlyCap - st.SentLastHr
	if st.HourlyLeft < 0 {
		st.HourlyLeft = 0
	}
	return st
}

// Restore refills alert state from a snapshot: the record set, plus the
// cooldown map and hourly window reconstructed from record timestamps.
func (e *Engine) Restore(records []*Record) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.records = make(map[string]*Record, len(records))
	e.lastFired = make(map[string]time.Time, len(records))
	e.hourWindow = e.hourWindow[:0]
	cutoff := e.now().Add(-time.Hour)

	for _, rec := range records {
		cp := cloneRecord(rec)
		e.records[cp.ID] = cp
		if last, ok := e.lastFired[cp.CooldownKey]; !ok || cp.CreatedAt.After(last) {
			e.lastFired[cp.CooldownKey] = cp.CreatedAt
		}
		if cp.CreatedAt.After(cutoff) {
			e.hourWindow = append(e.hourWindow, cp.CreatedAt)
		}
	}
}

func cloneRecord(rec *Record) *Record {
	cp := *rec
	cp.Reasons = append([]string(nil), rec.Reasons...)
	cp.Channels = append([]ChannelResult(nil), rec.Channels...)
	return &cp
}
