package model

import (
	"time"
)

// Briefing is the single synthesized summary of a completed campaign.
type Briefing struct {
	ID                string    `json:"id"`
	CampaignID        string    `json:"campaign_id"`
	Summary           string    `json:"summary"`
	KeyFindings       []string  `json:"key_findings"`
	Gaps              []string  `json:"gaps"`
	NextActions       []string  `json:"next_actions"`
	TotalExplorations int       `json:"total_explorations"`
	ValuableCount     int       `json:"valuable_count"`
	TotalCost         float64   `json:"total_cost"`
	SlackSent         bool      `json:"slack_sent"`
	CreatedAt         time.Time `json:"created_at"`
}

// TopFindings returns at most n key findings.
func (b *Briefing) TopFindings(n int) []string {
	if len(b.KeyFindings) <= n {
		return b.KeyFindings
	}
	return b.KeyFindings[:n]
}

// CampaignReview bundles everything a reviewer needs for one campaign.
type CampaignReview struct {
	Campaign      *Campaign       `json:"campaign"`
	Briefing      *Briefing       `json:"briefing"`
	Explorations  []Exploration   `json:"explorations"`
	Events        []CampaignEvent `json:"events"`
	ValuableCount int             `json:"valuable_count"`
	TotalCost     float64         `json:"total_cost"`
}

// NewCampaignReview assembles a review and computes its counters.
func NewCampaignReview(c *Campaign, b *Briefing, exps []Exploration, events []CampaignEvent) *CampaignReview {
	r := &CampaignReview{
		Campaign:     c,
		Briefing:     b,
		Explorations: exps,
		Events:       events,
	}
	for i := range exps {
		if exps[i].Valuable() {
			r.ValuableCount++
		}
	}
	if c != nil {
		r.TotalCost = c.BudgetSpent
	}
	return r
}
