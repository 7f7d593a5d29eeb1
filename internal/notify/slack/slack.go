// Package slack delivers fired alerts to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/airsight/internal/alert"
)

const (
	maxSummaryLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier sends alerts to a Slack webhook. It implements alert.Channel.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Deliver is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Name identifies the channel in delivery results.
func (n *Notifier) Name() string { return "slack" }

// Deliver posts an alert to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Deliver(ctx context.Context, rec *alert.Record) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(rec)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(r *alert.Record) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(r),
			{"type": "divider"},
			fieldsBlock(r),
			{"type": "divider"},
			summaryBlock(r),
			{"type": "divider"},
			contextBlock(r),
		},
	}
}

func headerBlock(r *alert.Record) map[string]any {
	emoji := priorityEmoji(r.Priority)
	text := fmt.Sprintf("%s Drone Incident Alert: %s", emoji, r.AssetName)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(r *alert.Record) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Priority:* %s", r.Priority),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Severity:* %d/10", r.Severity),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Score:* %.1f", r.Score),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Incident:* %s", r.IncidentID),
		},
	}
	if len(r.Reasons) > 0 {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Rules:* %s", strings.Join(r.Reasons, ", ")),
		})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func summaryBlock(r *alert.Record) map[string]any {
	text := truncate(r.Summary, maxSummaryLen)
	if text == "" {
		text = "_No summary available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Summary*\n\n%s", text),
		},
	}
}

func contextBlock(r *alert.Record) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("airsight • alert %s • %s", r.ID, r.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func priorityEmoji(p alert.Priority) string {
	switch p {
	case alert.PriorityCritical:
		return "\U0001f534" // red circle
	case alert.PriorityHigh:
		return "\U0001f7e0" // orange circle
	case alert.PriorityMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
