package store

import (
	"context"
	"errors"

	"github.com/command-center/hive/internal/model"
)

var (
	// ErrNotFound is returned when a campaign, exploration or briefing does
	// not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a guarded update finds the row in a state
	// that does not allow it.
	ErrConflict = errors.New("store: conflict")
)

// CampaignFilter specifies criteria for listing campaigns.
type CampaignFilter struct {
	Status model.CampaignStatus `json:"status,omitempty"`
	UserID string               `json:"user_id,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// Totals are a campaign's running spend and exploration count.
type Totals struct {
	BudgetSpent      float64 `json:"budget_spent"`
	ExplorationCount int     `json:"exploration_count"`
}

// Store defines the persistence interface for campaigns and their records.
type Store interface {
	// Campaigns
	CreateCampaign(ctx context.Context, nc model.NewCampaign) (*model.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id string, upd model.StatusUpdate) error

	// Explorations. RecordExploration inserts the exploration and charges
	// its cost to the campaign in one transaction.
	RecordExploration(ctx context.Context, e *model.Exploration) (Totals, error)
	ListExplorations(ctx context.Context, campaignID string) ([]model.Exploration, error)
	CurateExploration(ctx context.Context, id string, status model.CurationStatus) error

	// Briefings
	CreateBriefing(ctx context.Context, b *model.Briefing) error
	GetBriefing(ctx context.Context, campaignID string) (*model.Briefing, error)
	MarkBriefingSent(ctx context.Context, briefingID string) error

	// Events
	AppendEvent(ctx context.Context, ev *model.CampaignEvent) error
	ListEvents(ctx context.Context, campaignID string) ([]model.CampaignEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// normalizeExploration fills generated fields before insert.
func normalizeExploration(e *model.Exploration) {
	if e.Claims == nil {
		e.Claims = []string{}
	}
	if e.Evidence == nil {
		e.Evidence = []model.Evidence{}
	}
	if e.FollowUps == nil {
		e.FollowUps = []string{}
	}
	if e.CurationStatus == "" {
		e.CurationStatus = model.InitialCuration(e.PredictedValue)
	}
}

func statusStrings(in []model.CampaignStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
