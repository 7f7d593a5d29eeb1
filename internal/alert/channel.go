package alert

import "context"

// Channel is a delivery capability. Deliveries are best-effort: a failure
// is recorded on the alert record and never propagated to the pipeline.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, rec *Record) error
}
