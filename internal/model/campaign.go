// Package model defines the records persisted by the campaign orchestrator.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// CampaignStatus represents the lifecycle state of a research campaign.
type CampaignStatus string

const (
	CampaignStatusPending  CampaignStatus = "pending"
	CampaignStatusRunning  CampaignStatus = "running"
	CampaignStatusPaused   CampaignStatus = "paused"
	CampaignStatusComplete CampaignStatus = "complete"
	CampaignStatusFailed   CampaignStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignStatusComplete || s == CampaignStatusFailed
}

// Valid reports whether s is a known campaign status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusPending, CampaignStatusRunning, CampaignStatusPaused,
		CampaignStatusComplete, CampaignStatusFailed:
		return true
	}
	return false
}

// Campaign is one research run against a root question.
type Campaign struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	Name             string         `json:"name"`
	RootQuestion     string         `json:"root_question"`
	Context          string         `json:"context,omitempty"`
	BudgetCap        float64        `json:"budget_cap"`
	ExplorationCap   int            `json:"exploration_cap"`
	Models           []string       `json:"models"`
	Status           CampaignStatus `json:"status"`
	BudgetSpent      float64        `json:"budget_spent"`
	ExplorationCount int            `json:"exploration_count"`
	CreatedAt        time.Time      `json:"created_at"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
}

// BudgetExhausted reports whether the spend cap has been met.
func (c *Campaign) BudgetExhausted() bool {
	return c.BudgetSpent >= c.BudgetCap
}

// ExplorationsExhausted reports whether reserving inFlight more units would
// meet or pass the exploration cap.
func (c *Campaign) ExplorationsExhausted(inFlight int) bool {
	return c.ExplorationCount+inFlight >= c.ExplorationCap
}

// NewCampaign holds the caller-supplied fields for a pending campaign.
type NewCampaign struct {
	UserID         string   `json:"user_id" yaml:"user_id"`
	Name           string   `json:"name" yaml:"name"`
	RootQuestion   string   `json:"root_question" yaml:"root_question"`
	Context        string   `json:"context" yaml:"context"`
	BudgetCap      float64  `json:"budget_cap" yaml:"budget_cap"`
	ExplorationCap int      `json:"exploration_cap" yaml:"exploration_cap"`
	Models         []string `json:"models" yaml:"models"`
}

// DefaultModels are requested when a new campaign names none.
var DefaultModels = []string{"claude", "gemini"}

// Normalize trims text fields and fills default models.
func (nc *NewCampaign) Normalize() {
	nc.Name = strings.TrimSpace(nc.Name)
	nc.RootQuestion = strings.TrimSpace(nc.RootQuestion)
	nc.Context = strings.TrimSpace(nc.Context)
	if len(nc.Models) == 0 {
		nc.Models = append([]string(nil), DefaultModels...)
	}
}

// Validate reports every missing or out-of-range field in one error.
func (nc NewCampaign) Validate() error {
	var problems []string
	if strings.TrimSpace(nc.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(nc.RootQuestion) == "" {
		problems = append(problems, "root_question is required")
	}
	if nc.BudgetCap <= 0 {
		problems = append(problems, "budget_cap must be > 0")
	}
	if nc.ExplorationCap <= 0 {
		problems = append(problems, "exploration_cap must be > 0")
	}
	if len(problems) > 0 {
		return eris.New("invalid campaign: " + strings.Join(problems, "; "))
	}
	return nil
}

// StatusUpdate describes a campaign status transition and the timestamps
// and error message that travel with it.
type StatusUpdate struct {
	Status       CampaignStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
	// From restricts the update to campaigns currently in one of these
	// states. Empty means unrestricted.
	From []CampaignStatus
}

// RunSummary is the caller-visible outcome of a campaign run.
type RunSummary struct {
	CampaignID        string  `json:"campaign_id"`
	TotalExplorations int     `json:"total_explorations"`
	ValuableCount     int     `json:"valuable_count"`
	TotalCost         float64 `json:"total_cost"`
	SlackSent         bool    `json:"slack_sent"`
	Stopped           bool    `json:"stopped,omitempty"`
}
