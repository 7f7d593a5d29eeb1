package hub

import (
	"strings"
	"time"

	"github.com/linnemanlabs/airsight/internal/incident"
)

// Topics clients can subscribe to. A subscription to TopicAll receives
// every broadcast.
const (
	TopicAll       = "all"
	TopicIncidents = "incidents"
	TopicAlerts    = "alerts"
	TopicStats     = "stats"
)

// Server→client message types.
const (
	MsgWelcome        = "welcome"
	MsgSubscribed     = "subscribed"
	MsgFiltersUpdated = "filters_updated"
	MsgPong           = "pong"
	MsgStatus         = "status"
	MsgNewIncidents   = "new_incidents"
	MsgUpdate         = "update"
	MsgAlert          = "alert"
	MsgSourceUpdate   = "source_update"
	MsgStatistics     = "statistics"
	MsgShutdown       = "shutdown"
)

// clientMessage is the envelope for client→server messages. Malformed
// messages are dropped and logged server-side; the protocol has no error
// reply type.
type clientMessage struct {
	Type        string   `json:"type"`
	Topics      []string `json:"topics,omitempty"`
	MinSeverity int      `json:"min_severity,omitempty"`
	Status      string   `json:"status,omitempty"`
	Region      string   `json:"region,omitempty"`
}

// Filters is a per-connection predicate applied to incident-bearing
// broadcasts. Zero values mean "no constraint".
type Filters struct {
	MinSeverity int    `json:"min_severity,omitempty"`
	Status      string `json:"status,omitempty"`
	Region      string `json:"region,omitempty"`
}

// MatchIncident reports whether an incident passes the filter. Region is
// a case-insensitive substring match on the asset name.
func (f *Filters) MatchIncident(in *incident.Incident) bool {
	if f == nil {
		return true
	}
	if f.MinSeverity > 0 && in.Scores.Severity < f.MinSeverity {
		return false
	}
	if f.Status != "" && string(in.Classification.Status) != f.Status {
		return false
	}
	if f.Region != "" && !strings.Contains(strings.ToLower(in.Asset.Name), strings.ToLower(f.Region)) {
		return false
	}
	return true
}

// MatchSeverity applies only the severity floor, for alert broadcasts.
func (f *Filters) MatchSeverity(severity int) bool {
	return f == nil || f.MinSeverity <= 0 || severity >= f.MinSeverity
}

// stamp formats a timestamp the way the socket protocol requires:
// ISO-8601 UTC.
func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
