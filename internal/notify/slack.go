// Package notify posts the campaign completion digest to a Slack webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/command-center/hive/internal/config"
	"github.com/command-center/hive/internal/model"
)

// TopFindings is how many key findings the digest lists.
const TopFindings = 3

// WebhookError is returned when the webhook answers with a non-2xx status.
type WebhookError struct {
	StatusCode int
	Body       string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("notify: slack webhook failed (%d): %s", e.StatusCode, e.Body)
}

// Notifier sends briefing digests. A Notifier without a webhook URL is a
// no-op.
type Notifier struct {
	webhookURL    string
	reviewBaseURL string
	client        *http.Client
}

// New creates a Notifier from config.
func New(cfg config.NotifyConfig) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		webhookURL:    cfg.SlackWebhookURL,
		reviewBaseURL: strings.TrimRight(cfg.ReviewBaseURL, "/"),
		client:        &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.webhookURL != ""
}

// Notify posts the digest for b. It returns false with no error when no
// webhook is configured.
func (n *Notifier) Notify(ctx context.Context, b *model.Briefing, c *model.Campaign) (bool, error) {
	if !n.Enabled() {
		return false, nil
	}

	payload, err := json.Marshal(n.digest(b, c))
	if err != nil {
		return false, eris.Wrap(err, "notify: marshal digest")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return false, eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return false, eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, &WebhookError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	zap.L().Info("notify: digest sent", zap.String("campaign_id", c.ID))
	return true, nil
}

// ReviewURL is the deep link to a campaign's review page.
func (n *Notifier) ReviewURL(campaignID string) string {
	return n.reviewBaseURL + "/" + campaignID
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type element struct {
	Type string `json:"type"`
	Text text   `json:"text"`
	URL  string `json:"url,omitempty"`
}

type block struct {
	Type     string    `json:"type"`
	Text     *text     `json:"text,omitempty"`
	Fields   []text    `json:"fields,omitempty"`
	Elements []element `json:"elements,omitempty"`
}

type message struct {
	Blocks []block `json:"blocks"`
}

func (n *Notifier) digest(b *model.Briefing, c *model.Campaign) message {
	findings := b.TopFindings(TopFindings)
	lines := make([]string, len(findings))
	for i, f := range findings {
		lines[i] = "• " + f
	}

	return message{Blocks: []block{
		{
			Type: "header",
			Text: &text{Type: "plain_text", Text: fmt.Sprintf("✅ %s Complete", c.Name)},
		},
		{
			Type: "section",
			Text: &text{Type: "mrkdwn", Text: "*Findings:*\n" + strings.Join(lines, "\n")},
		},
		{
			Type: "section",
			Fields: []text{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Explorations:* %d", b.TotalExplorations)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Valuable:* %d", b.ValuableCount)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Cost:* $%.2f", b.TotalCost)},
			},
		},
		{
			Type: "actions",
			Elements: []element{{
				Type: "button",
				Text: text{Type: "plain_text", Text: "Review →"},
				URL:  n.ReviewURL(c.ID),
			}},
		},
	}}
}
