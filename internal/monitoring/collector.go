// Package monitoring watches campaign health and raises webhook alerts when
// failures, spend or stuck runs cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/command-center/hive/internal/model"
	"github.com/command-center/hive/internal/store"
)

// scanLimit caps how many recent campaigns one snapshot inspects.
const scanLimit = 10000

// MetricsSnapshot holds a point-in-time view of campaign health.
type MetricsSnapshot struct {
	// Campaigns created within the lookback window.
	CampaignsTotal    int     `json:"campaigns_total"`
	CampaignsComplete int     `json:"campaigns_complete"`
	CampaignsFailed   int     `json:"campaigns_failed"`
	CampaignsPending  int     `json:"campaigns_pending"`
	CampaignsPaused   int     `json:"campaigns_paused"`
	CampaignsRunning  int     `json:"campaigns_running"`
	FailureRate       float64 `json:"failure_rate"`
	SpendUSD          float64 `json:"spend_usd"`
	Explorations      int     `json:"explorations"`

	// Running campaigns started longer ago than the stale threshold,
	// regardless of lookback.
	StaleCampaigns []string `json:"stale_campaigns,omitempty"`

	LookbackWindow time.Duration `json:"lookback_window"`
	CollectedAt    time.Time     `json:"collected_at"`
}

// CampaignLister is the slice of store.Store the collector reads.
type CampaignLister interface {
	ListCampaigns(ctx context.Context, filter store.CampaignFilter) ([]model.Campaign, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	store      CampaignLister
	staleAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a new metrics collector. A zero staleAfter disables
// stale-run detection.
func NewCollector(st CampaignLister, staleAfter time.Duration) *Collector {
	return &Collector{store: st, staleAfter: staleAfter, now: time.Now}
}

// Collect gathers a snapshot of campaign metrics over the lookback window.
func (c *Collector) Collect(ctx context.Context, lookback time.Duration) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackWindow: lookback,
		CollectedAt:    now,
	}
	cutoff := now.Add(-lookback)

	campaigns, err := c.store.ListCampaigns(ctx, store.CampaignFilter{Limit: scanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list campaigns")
	}

	for _, cp := range campaigns {
		if cp.Status == model.CampaignStatusRunning && c.stale(cp, now) {
			snap.StaleCampaigns = append(snap.StaleCampaigns, cp.ID)
		}
		if lookback > 0 && cp.CreatedAt.Before(cutoff) {
			continue
		}

		snap.CampaignsTotal++
		snap.SpendUSD += cp.BudgetSpent
		snap.Explorations += cp.ExplorationCount
		switch cp.Status {
		case model.CampaignStatusComplete:
			snap.CampaignsComplete++
		case model.CampaignStatusFailed:
			snap.CampaignsFailed++
		case model.CampaignStatusPending:
			snap.CampaignsPending++
		case model.CampaignStatusPaused:
			snap.CampaignsPaused++
		case model.CampaignStatusRunning:
			snap.CampaignsRunning++
		}
	}

	if finished := snap.CampaignsComplete + snap.CampaignsFailed; finished > 0 {
		snap.FailureRate = float64(snap.CampaignsFailed) / float64(finished)
	}

	return snap, nil
}

func (c *Collector) stale(cp model.Campaign, now time.Time) bool {
	if c.staleAfter <= 0 || cp.StartedAt == nil {
		return false
	}
	return now.Sub(*cp.StartedAt) > c.staleAfter
}
