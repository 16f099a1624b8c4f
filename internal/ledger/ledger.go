// Package ledger gates units of work against a campaign's spend and
// exploration caps and charges completed work atomically.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/command-center/hive/internal/model"
	"github.com/command-center/hive/internal/store"
)

// ErrCapExceeded matches any *CapError via errors.Is.
var ErrCapExceeded = errors.New("campaign cap reached")

// Snapshot is a point-in-time view of a campaign's accounting.
type Snapshot struct {
	BudgetSpent      float64 `json:"budget_spent"`
	BudgetCap        float64 `json:"budget_cap"`
	ExplorationCount int     `json:"exploration_count"`
	ExplorationCap   int     `json:"exploration_cap"`
	InFlight         int     `json:"in_flight"`
}

// EventData renders the snapshot for a limit_reached event.
func (s Snapshot) EventData(reason string) map[string]any {
	return map[string]any{
		"reason":            reason,
		"budget_spent":      s.BudgetSpent,
		"budget_cap":        s.BudgetCap,
		"exploration_count": s.ExplorationCount,
		"exploration_cap":   s.ExplorationCap,
		"in_flight":         s.InFlight,
	}
}

// CapError reports which cap stopped dispatch.
type CapError struct {
	Reason   string
	Snapshot Snapshot
}

func (e *CapError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCapExceeded, e.Reason)
}

// Is makes errors.Is(err, ErrCapExceeded) true.
func (e *CapError) Is(target error) bool {
	return target == ErrCapExceeded
}

const (
	ReasonBudget       = "budget"
	ReasonExplorations = "explorations"
)

// Ledger reads caps from and charges costs to the store.
type Ledger struct {
	store store.Store
}

// New creates a Ledger backed by s.
func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Check re-reads the campaign and returns a *CapError when budget_spent has
// met budget_cap, or when exploration_count plus inFlight reserved units has
// met exploration_cap. Store errors are returned as-is.
func (l *Ledger) Check(ctx context.Context, campaignID string, inFlight int) (Snapshot, error) {
	c, err := l.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return Snapshot{}, eris.Wrap(err, "ledger: read campaign")
	}

	snap := Snapshot{
		BudgetSpent:      c.BudgetSpent,
		BudgetCap:        c.BudgetCap,
		ExplorationCount: c.ExplorationCount,
		ExplorationCap:   c.ExplorationCap,
		InFlight:         inFlight,
	}

	switch {
	case c.BudgetExhausted():
		return snap, &CapError{Reason: ReasonBudget, Snapshot: snap}
	case c.ExplorationsExhausted(inFlight):
		return snap, &CapError{Reason: ReasonExplorations, Snapshot: snap}
	}
	return snap, nil
}

// Commit persists e and charges its cost in one transaction. The returned
// snapshot carries the post-increment totals.
func (l *Ledger) Commit(ctx context.Context, e *model.Exploration) (Snapshot, error) {
	totals, err := l.store.RecordExploration(ctx, e)
	if err != nil {
		return Snapshot{}, eris.Wrapf(err, "ledger: record exploration for %s", e.CampaignID)
	}
	return Snapshot{
		BudgetSpent:      totals.BudgetSpent,
		ExplorationCount: totals.ExplorationCount,
	}, nil
}
