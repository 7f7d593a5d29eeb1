// Package email is the email delivery channel. Delivery is recorded but
// not yet wired to a mail provider.
package email

import (
	"context"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/airsight/internal/alert"
)

// Notifier records alert deliveries destined for email recipients. It
// implements alert.Channel.
//
// TODO: wire to SES once the ops account has a verified sender domain.
type Notifier struct {
	recipients []string
	logger     log.Logger
}

// New creates an email notifier for the given recipients. If recipients
// is empty, Deliver is a no-op.
func New(recipients []string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{recipients: recipients, logger: logger}
}

// Name identifies the channel in delivery results.
func (n *Notifier) Name() string { return "email" }

// Deliver logs the alert for each configured recipient.
func (n *Notifier) Deliver(ctx context.Context, rec *alert.Record) error {
	if len(n.recipients) == 0 {
		return nil
	}
	n.logger.Info(ctx, "email alert queued",
		"alert_id", rec.ID,
		"priority", string(rec.Priority),
		"asset", rec.AssetName,
		"recipients", len(n.recipients),
	)
	return nil
}
