package store

import (
	"context"
	"time"

	"github.com/linnemanlabs/airsight/internal/alert"
	"github.com/linnemanlabs/airsight/internal/incident"
)

// Snapshot is the persisted pipeline state: the incident collection plus
// alert and scheduler metadata. Written after ingest cycles and cleanups,
// reloaded once at startup.
type Snapshot struct {
	GeneratedAt time.Time            `json:"generated_at"`
	LastCycleAt time.Time            `json:"last_cycle_at,omitempty"`
	Incidents   []*incident.Incident `json:"incidents"`
	Alerts      []*alert.Record      `json:"alerts,omitempty"`
}

// State persists and reloads pipeline snapshots. Load returns ok=false
// when no snapshot exists yet; an unreadable snapshot is an error and
// aborts startup.
type State interface {
	Load(ctx context.Context) (*Snapshot, bool, error)
	Save(ctx context.Context, snap *Snapshot) error
}
