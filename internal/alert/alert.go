// Package alert scores incidents, applies cooldown and rate-limit policy,
// and fans qualifying alerts out to the configured delivery channels.
package alert

import "time"

// Priority bands an alert by its final score.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Status tracks delivery state of an alert record.
type Status string

const (
	// StatusPending means created, delivery not yet attempted.
	StatusPending Status = "pending"

	// StatusSent means every configured channel accepted the alert.
	StatusSent Status = "sent"

	// StatusFailed means at least one channel delivery failed.
	StatusFailed Status = "failed"

	// StatusCleared means an operator acknowledged and dismissed the alert.
	StatusCleared Status = "cleared"
)

// ChannelResult records one channel's delivery outcome.
type ChannelResult struct {
	Channel string    `json:"channel"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Record is a produced alert. It references an incident by ID but does not
// own it; the broadcast hub references records the same way.
type Record struct {
	ID          string          `json:"id"`
	IncidentID  string          `json:"incident_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Priority    Priority        `json:"priority"`
	Score       float64         `json:"score"`
	Reasons     []string        `json:"reasons"`
	Status      Status          `json:"status"`
	Channels    []ChannelResult `json:"channels,omitempty"`
	CooldownKey string          `json:"cooldown_key"`
	AssetName   string          `json:"asset_name"`
	Severity    int             `json:"severity"`
	Summary     string          `json:"summary,omitempty"`
}

// BandPriority maps a final score to its priority band.
func BandPriority(score float64) Priority {
	switch {
	case score >= 9:
		return PriorityCritical
	case score >= 7:
		return PriorityHigh
	case score >= 5:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
