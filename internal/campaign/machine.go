// Package campaign owns campaign status transitions and the event log.
package campaign

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/command-center/hive/internal/model"
	"github.com/command-center/hive/internal/store"
)

var (
	// ErrNotRunnable is returned by Start for a campaign that is not pending.
	ErrNotRunnable = errors.New("campaign is not runnable")

	// ErrStopped signals that a run halted on an external stop.
	ErrStopped = errors.New("campaign stopped")
)

// Machine applies status transitions through the store. It holds no
// per-run state.
type Machine struct {
	store store.Store
	now   func() time.Time
}

// NewMachine creates a Machine backed by s.
func NewMachine(s store.Store) *Machine {
	return &Machine{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Start moves a pending campaign to running, stamps started_at, clears any
// previous error and records a started event.
func (m *Machine) Start(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := m.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "campaign: load %s", id)
	}
	if c.Status != model.CampaignStatusPending {
		return nil, eris.Wrapf(ErrNotRunnable, "campaign %s is %s", id, c.Status)
	}

	now := m.now()
	empty := ""
	err = m.store.UpdateCampaignStatus(ctx, id, model.StatusUpdate{
		Status:       model.CampaignStatusRunning,
		StartedAt:    &now,
		ErrorMessage: &empty,
		From:         []model.CampaignStatus{model.CampaignStatusPending},
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, eris.Wrapf(ErrNotRunnable, "campaign %s changed state", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "campaign: start %s", id)
	}

	c.Status = model.CampaignStatusRunning
	c.StartedAt = &now
	c.ErrorMessage = ""

	if err := m.Emit(ctx, id, model.EventStarted, map[string]any{
		"root_question": c.RootQuestion,
		"models":        c.Models,
	}); err != nil {
		return nil, err
	}
	return c, nil
}

// Emit appends one event to the campaign's log.
func (m *Machine) Emit(ctx context.Context, id string, typ model.EventType, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	err := m.store.AppendEvent(ctx, &model.CampaignEvent{
		CampaignID: id,
		EventType:  typ,
		EventData:  data,
		CreatedAt:  m.now(),
	})
	return eris.Wrapf(err, "campaign: emit %s", typ)
}

// StopRequested reports whether the campaign has been paused externally.
func (m *Machine) StopRequested(ctx context.Context, id string) (bool, error) {
	c, err := m.store.GetCampaign(ctx, id)
	if err != nil {
		return false, eris.Wrapf(err, "campaign: check stop %s", id)
	}
	return c.Status == model.CampaignStatusPaused, nil
}

// Pause is the external stop command. Only a running campaign can be
// paused; the orchestrator observes it between units of work.
func (m *Machine) Pause(ctx context.Context, id string) error {
	err := m.store.UpdateCampaignStatus(ctx, id, model.StatusUpdate{
		Status: model.CampaignStatusPaused,
		From:   []model.CampaignStatus{model.CampaignStatusRunning},
	})
	if errors.Is(err, store.ErrConflict) {
		return eris.Wrapf(err, "campaign %s is not running", id)
	}
	return eris.Wrapf(err, "campaign: pause %s", id)
}

// Complete moves a running campaign to complete and records the summary
// counters.
func (m *Machine) Complete(ctx context.Context, id string, summary *model.RunSummary) error {
	now := m.now()
	empty := ""
	err := m.store.UpdateCampaignStatus(ctx, id, model.StatusUpdate{
		Status:       model.CampaignStatusComplete,
		CompletedAt:  &now,
		ErrorMessage: &empty,
		From:         []model.CampaignStatus{model.CampaignStatusRunning},
	})
	if err != nil {
		return eris.Wrapf(err, "campaign: complete %s", id)
	}

	data := map[string]any{}
	if summary != nil {
		data["total_explorations"] = summary.TotalExplorations
		data["valuable_count"] = summary.ValuableCount
		data["total_cost"] = summary.TotalCost
		data["slack_sent"] = summary.SlackSent
	}
	return m.Emit(ctx, id, model.EventCompleted, data)
}

// Fail moves a running campaign to failed with cause as its error message.
func (m *Machine) Fail(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	err := m.store.UpdateCampaignStatus(ctx, id, model.StatusUpdate{
		Status:       model.CampaignStatusFailed,
		ErrorMessage: &msg,
		From:         []model.CampaignStatus{model.CampaignStatusRunning},
	})
	if err != nil {
		return eris.Wrapf(err, "campaign: fail %s", id)
	}
	return m.Emit(ctx, id, model.EventFailed, map[string]any{"error": msg})
}

// Stopped records that the run halted on an external stop. The status is
// left as the stop command set it.
func (m *Machine) Stopped(ctx context.Context, id string, data map[string]any) error {
	return m.Emit(ctx, id, model.EventStopped, data)
}

// Finalize is deferred once per run after a successful Start. It converts a
// panic into an error, then records exactly one terminal outcome: stopped,
// complete, or failed. A failed completion write falls through to Fail.
// When a status write is refused because the campaign was paused under the
// run, the outcome is recorded as stopped, carrying the run error if any.
// Writes use a context detached from ctx's cancellation so a cancelled run
// still reaches a terminal status.
func (m *Machine) Finalize(ctx context.Context, id string, errp *error, summary *model.RunSummary) {
	if r := recover(); r != nil {
		*errp = eris.Errorf("campaign: panic during run: %v", r)
	}

	fctx := context.WithoutCancel(ctx)
	log := zap.L().With(zap.String("campaign_id", id))

	if *errp == nil {
		if summary != nil && summary.Stopped {
			m.recordStop(fctx, log, id, summary, nil)
			return
		}

		err := m.Complete(fctx, id, summary)
		if err == nil {
			log.Info("campaign: complete")
			return
		}
		if m.pausedUnderRun(fctx, err, id) {
			if summary != nil {
				summary.Stopped = true
			}
			m.recordStop(fctx, log, id, summary, nil)
			return
		}
		*errp = err
	}

	log.Error("campaign: failed", zap.Error(*errp))
	err := m.Fail(fctx, id, *errp)
	if err == nil {
		return
	}
	if m.pausedUnderRun(fctx, err, id) {
		m.recordStop(fctx, log, id, summary, *errp)
		return
	}
	log.Error("campaign: record failure", zap.Error(err))
}

// pausedUnderRun reports whether err is a refused status write on a
// campaign that is now paused.
func (m *Machine) pausedUnderRun(ctx context.Context, err error, id string) bool {
	if !errors.Is(err, store.ErrConflict) {
		return false
	}
	paused, perr := m.StopRequested(ctx, id)
	return perr == nil && paused
}

func (m *Machine) recordStop(ctx context.Context, log *zap.Logger, id string, summary *model.RunSummary, cause error) {
	data := map[string]any{}
	if summary != nil {
		data["explorations"] = summary.TotalExplorations
		data["total_cost"] = summary.TotalCost
	}
	if cause != nil {
		data["error"] = cause.Error()
	}
	if err := m.Stopped(ctx, id, data); err != nil {
		log.Error("campaign: record stop", zap.Error(err))
	}
	log.Info("campaign: stopped", zap.Bool("with_error", cause != nil))
}
