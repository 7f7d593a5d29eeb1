package hub

import (
	"context"

	"github.com/linnemanlabs/airsight/internal/alert"
)

// alertChannel adapts the hub into an alert delivery channel so fired
// alerts reach dashboard subscribers alongside webhook and email.
type alertChannel struct {
	h *Hub
}

// Channel returns the hub as an alert delivery channel.
func (h *Hub) Channel() alert.Channel {
	return &alertChannel{h: h}
}

func (c *alertChannel) Name() string { return "websocket" }

// Deliver broadcasts the alert; fan-out to individual connections is
// best-effort and never fails the delivery.
func (c *alertChannel) Deliver(ctx context.Context, rec *alert.Record) error {
	c.h.BroadcastAlert(ctx, rec)
	return nil
}
