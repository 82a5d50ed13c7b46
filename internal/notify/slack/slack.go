// Package slack sends escalation notifications to Slack via incoming
// webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/docbox/internal/triage"
)

const (
	maxSnippetLen = 500
	httpTimeout   = 10 * time.Second
)

// Notifier posts escalations to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a
// no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Notify posts an escalation to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Notify(ctx context.Context, m *triage.Message, ev *triage.AuditEvent) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(m, ev))
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

func buildMessage(m *triage.Message, ev *triage.AuditEvent) map[string]any {
	snippet := m.Snippet
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen] + "…"
	}

	fields := []map[string]any{
		{"type": "mrkdwn", "text": "*Zone:*\n" + string(m.Zone)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Risk:*\n%.2f", m.RiskScore)},
		{"type": "mrkdwn", "text": "*Owner:*\n" + m.OwnerRole},
		{"type": "mrkdwn", "text": "*Sender:*\n" + m.Sender},
	}
	if !m.DeadlineAt.IsZero() {
		fields = append(fields, map[string]any{
			"type": "mrkdwn", "text": "*Deadline:*\n" + m.DeadlineAt.Format(time.RFC3339),
		})
	}

	return map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": "🚨 Escalated: " + m.Subject,
				},
			},
			{"type": "divider"},
			{"type": "section", "fields": fields},
			{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": snippet},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("%s by %s · message %s", ev.Description, ev.ActorRole, m.ID)},
				},
			},
		},
	}
}
