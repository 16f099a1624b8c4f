// Package publish exports finished briefings to a Notion database.
package publish

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/command-center/hive/internal/model"
	"github.com/command-center/hive/pkg/notion"
)

// PropCampaignID is the rich text property that keys a briefing page to
// its campaign.
const PropCampaignID = "Campaign ID"

// Publisher writes one page per campaign. Re-publishing a campaign updates
// its existing page.
type Publisher struct {
	client        notion.Client
	dbID          string
	reviewBaseURL string
}

// New creates a Publisher. A nil client or empty database id disables it.
func New(client notion.Client, dbID, reviewBaseURL string) *Publisher {
	return &Publisher{
		client:        client,
		dbID:          dbID,
		reviewBaseURL: strings.TrimRight(reviewBaseURL, "/"),
	}
}

// Enabled reports whether publishing is configured.
func (p *Publisher) Enabled() bool {
	return p != nil && p.client != nil && p.dbID != ""
}

// Publish creates or updates the briefing page and returns its id.
func (p *Publisher) Publish(ctx context.Context, b *model.Briefing, c *model.Campaign) (string, error) {
	if !p.Enabled() {
		return "", nil
	}

	res, err := p.client.Upsert(ctx, p.dbID, notion.Key{Property: PropCampaignID, Value: c.ID}, p.properties(b, c))
	if err != nil {
		return "", eris.Wrap(err, "publish: upsert briefing page")
	}
	zap.L().Info("publish: briefing page written",
		zap.String("campaign_id", c.ID),
		zap.String("page_id", res.PageID),
		zap.Bool("created", res.Created),
	)
	return res.PageID, nil
}

func (p *Publisher) properties(b *model.Briefing, c *model.Campaign) notionapi.Properties {
	props := notionapi.Properties{
		"Name":         notion.Title(c.Name),
		"Question":     notion.Text(c.RootQuestion),
		"Summary":      notion.Text(b.Summary),
		"Key Findings": notion.Text(bullets(b.KeyFindings)),
		"Gaps":         notion.Text(bullets(b.Gaps)),
		"Next Actions": notion.Text(bullets(b.NextActions)),
		"Explorations": notion.Number(float64(b.TotalExplorations)),
		"Valuable":     notion.Number(float64(b.ValuableCount)),
		"Cost":         notion.Number(b.TotalCost),
		"Synthesized":  notion.Date(b.CreatedAt),
	}
	if p.reviewBaseURL != "" {
		props["Review"] = notion.URL(p.reviewBaseURL + "/" + c.ID)
	}
	return props
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, s := range items {
		lines[i] = "• " + s
	}
	return strings.Join(lines, "\n")
}
