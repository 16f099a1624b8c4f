package model

import (
	"time"
)

// CurationStatus is the review disposition of an exploration.
type CurationStatus string

const (
	CurationPending  CurationStatus = "pending"
	CurationValuable CurationStatus = "valuable"
	CurationNoise    CurationStatus = "noise"
	CurationArchive  CurationStatus = "archive"
)

// ArchiveThreshold is the predicted value below which an exploration is
// archived without review.
const ArchiveThreshold = 0.2

// ValuableThreshold is the predicted value at or above which an exploration
// counts as valuable in a briefing.
const ValuableThreshold = 0.5

// InitialCuration returns the curation status assigned at creation time.
func InitialCuration(predictedValue float64) CurationStatus {
	if predictedValue < ArchiveThreshold {
		return CurationArchive
	}
	return CurationPending
}

// Reviewable reports whether s is a status a human reviewer may assign.
func (s CurationStatus) Reviewable() bool {
	return s == CurationValuable || s == CurationNoise || s == CurationArchive
}

// Evidence is a free-form record supporting a claim. The optional "claim"
// key links it to one of the exploration's claims.
type Evidence map[string]any

// Claim returns the linked claim text, if any.
func (e Evidence) Claim() string {
	if s, ok := e["claim"].(string); ok {
		return s
	}
	return ""
}

// Exploration is the persisted result of one (sub-question, backend) unit.
type Exploration struct {
	ID             string         `json:"id"`
	CampaignID     string         `json:"campaign_id"`
	Question       string         `json:"question"`
	SourceModel    string         `json:"source_model"`
	Claims         []string       `json:"claims"`
	Evidence       []Evidence     `json:"evidence"`
	Confidence     float64        `json:"confidence"`
	Uncertainty    string         `json:"uncertainty"`
	FollowUps      []string       `json:"follow_ups"`
	RawResponse    string         `json:"raw_response"`
	TokensUsed     int            `json:"tokens_used"`
	CostDollars    float64        `json:"cost_dollars"`
	PredictedValue float64        `json:"predicted_value"`
	CurationStatus CurationStatus `json:"curation_status"`
	CuratedAt      *time.Time     `json:"curated_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Valuable reports whether the exploration meets the valuable threshold.
func (e *Exploration) Valuable() bool {
	return e.PredictedValue >= ValuableThreshold
}
