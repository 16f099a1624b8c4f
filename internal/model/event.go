package model

import (
	"time"
)

// EventType tags an entry in a campaign's audit log.
type EventType string

const (
	EventStarted             EventType = "started"
	EventDecomposed          EventType = "decomposed"
	EventExplorationComplete EventType = "exploration_complete"
	EventLimitReached        EventType = "limit_reached"
	EventError               EventType = "error"
	EventSlackError          EventType = "slack_error"
	EventPublished           EventType = "published"
	EventPublishError        EventType = "publish_error"
	EventStopped             EventType = "stopped"
	EventCompleted           EventType = "completed"
	EventFailed              EventType = "failed"
)

// CampaignEvent is an append-only audit log entry.
type CampaignEvent struct {
	ID         string         `json:"id"`
	CampaignID string         `json:"campaign_id"`
	EventType  EventType      `json:"event_type"`
	EventData  map[string]any `json:"event_data"`
	CreatedAt  time.Time      `json:"created_at"`
}
