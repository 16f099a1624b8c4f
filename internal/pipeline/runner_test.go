package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/command-center/hive/internal/campaign"
	"github.com/command-center/hive/internal/config"
	"github.com/command-center/hive/internal/cost"
	"github.com/command-center/hive/internal/gateway"
	"github.com/command-center/hive/internal/model"
	"github.com/command-center/hive/internal/notify"
	"github.com/command-center/hive/internal/publish"
	"github.com/command-center/hive/internal/resilience"
	"github.com/command-center/hive/internal/store"
	"github.com/command-center/hive/pkg/notion"
)

type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) Upsert(ctx context.Context, dbID string, key notion.Key, props notionapi.Properties) (notion.Result, error) {
	args := m.Called(ctx, dbID, key, props)
	return args.Get(0).(notion.Result), args.Error(1)
}

func TestRun_ExplorationCapBoundsQueue(t *testing.T) {
	claude := happyBackend("claude", 3, 1200)
	gemini := happyBackend("gemini", 3, 800)
	env := newTestEnv(t, nil, nil, nil, claude, gemini)
	id := env.createCampaign(100, 4, "claude", "gemini")

	summary, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, seq(
		one(model.EventStarted),
		one(model.EventDecomposed),
		repeat(model.EventExplorationComplete, 4),
		one(model.EventLimitReached),
		one(model.EventCompleted),
	), env.eventTypes(id))

	events := env.events(id)
	assert.EqualValues(t, 3, events[1].EventData["count"])
	assert.EqualValues(t, 6, events[1].EventData["queued"])
	assert.Equal(t, "explorations", events[6].EventData["reason"])
	assert.EqualValues(t, 4, events[6].EventData["exploration_count"])

	exps := env.explorations(id)
	require.Len(t, exps, 4)
	wantOrder := []unit{
		{"sub-question 1", "claude"}, {"sub-question 1", "gemini"},
		{"sub-question 2", "claude"}, {"sub-question 2", "gemini"},
	}
	calc := cost.NewCalculator(cost.Rates{})
	var spent float64
	for i, e := range exps {
		assert.Equal(t, wantOrder[i], unit{e.Question, e.SourceModel})
		rate, _ := calc.Rate(e.SourceModel)
		assert.Equal(t, float64(e.TokensUsed)*rate, e.CostDollars)
		assert.Equal(t, model.CurationPending, e.CurationStatus)
		spent += e.CostDollars
	}

	c := env.campaign(id)
	assert.Equal(t, model.CampaignStatusComplete, c.Status)
	assert.Equal(t, 4, c.ExplorationCount)
	assert.InDelta(t, spent, c.BudgetSpent, 1e-12)
	assert.NotNil(t, c.StartedAt)
	assert.NotNil(t, c.CompletedAt)
	assert.Empty(t, c.ErrorMessage)

	assert.Equal(t, id, summary.CampaignID)
	assert.Equal(t, 4, summary.TotalExplorations)
	assert.Equal(t, 4, summary.ValuableCount)
	assert.InDelta(t, spent, summary.TotalCost, 1e-12)
	assert.False(t, summary.SlackSent)

	b, err := env.store.GetBriefing(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Storage is cost bound.", b.Summary)
	assert.Equal(t, 4, b.TotalExplorations)
	assert.False(t, b.SlackSent)

	assert.Equal(t, 1, claude.calls(stageDecompose))
	assert.Equal(t, 1, claude.calls(stageBriefing))
	assert.Zero(t, gemini.calls(stageDecompose))
	assert.Equal(t, 2, gemini.calls(stageExplore))
}

func TestRun_BudgetCapHaltsAfterOvershoot(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil, happyBackend("claude", 3, 1000))
	id := env.createCampaign(0.001, 50, "claude")

	_, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)

	c := env.campaign(id)
	assert.Equal(t, model.CampaignStatusComplete, c.Status)
	assert.Equal(t, 1, c.ExplorationCount)
	assert.Greater(t, c.BudgetSpent, c.BudgetCap)

	events := env.events(id)
	var limit *model.CampaignEvent
	for i := range events {
		if events[i].EventType == model.EventLimitReached {
			limit = &events[i]
		}
	}
	require.NotNil(t, limit)
	assert.Equal(t, "budget", limit.EventData["reason"])
}

func TestRun_CircuitBreakerTrips(t *testing.T) {
	b := newScripted("claude", func(_ context.Context, s stage, _ int, _ string) (*gateway.Response, error) {
		if s == stageDecompose {
			return &gateway.Response{Text: subQuestions(2)}, nil
		}
		return nil, errBackendDown
	})
	gemini := newScripted("gemini", func(context.Context, stage, int, string) (*gateway.Response, error) {
		return nil, &gateway.TransportError{Backend: "gemini", StatusCode: http.StatusServiceUnavailable, Err: errBackendDown}
	})
	env := newTestEnv(t, nil, nil, nil, b, gemini)
	id := env.createCampaign(100, 50, "claude", "gemini")

	_, err := env.runner.Run(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker triggered after 3 consecutive failures")

	assert.Equal(t, seq(
		one(model.EventStarted),
		one(model.EventDecomposed),
		repeat(model.EventError, 3),
		one(model.EventFailed),
	), env.eventTypes(id))

	events := env.events(id)
	for i, ev := range events[2:5] {
		assert.EqualValues(t, i+1, ev.EventData["consecutive_failures"])
		assert.Contains(t, ev.EventData["error"], "backend down")
	}
	assert.Equal(t, "gemini", events[3].EventData["model"])
	assert.Equal(t, true, events[3].EventData["transient"])
	assert.Equal(t, "transient", events[3].EventData["class"])
	assert.Equal(t, false, events[2].EventData["transient"])
	assert.Equal(t, "permanent", events[2].EventData["class"])

	c := env.campaign(id)
	assert.Equal(t, model.CampaignStatusFailed, c.Status)
	assert.Equal(t, "circuit breaker triggered after 3 consecutive failures", c.ErrorMessage)
	assert.Zero(t, c.ExplorationCount)
	assert.Nil(t, c.CompletedAt)

	_, err = env.store.GetBriefing(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_BreakerTripKeepsInFlightResults(t *testing.T) {
	cfg := testConfig()
	cfg.Campaign.Workers = 3
	cfg.Campaign.MaxConsecutiveFailures = 2

	var env *testEnv
	var id string
	b := newScripted("claude", func(ctx context.Context, s stage, _ int, prompt string) (*gateway.Response, error) {
		if s == stageDecompose {
			return &gateway.Response{Text: subQuestions(3)}, nil
		}
		if !strings.Contains(prompt, "sub-question 3") {
			return nil, errBackendDown
		}
		// Finish only after both failures are on record.
		for {
			events, _ := env.store.ListEvents(ctx, id)
			errs := 0
			for _, ev := range events {
				if ev.EventType == model.EventError {
					errs++
				}
			}
			if errs >= 2 {
				return &gateway.Response{Text: goodExploration, Tokens: 100}, nil
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
	})
	env = newTestEnv(t, cfg, nil, nil, b)
	id = env.createCampaign(100, 50, "claude")

	_, err := env.runner.Run(context.Background(), id)
	require.ErrorIs(t, err, resilience.ErrCircuitTripped)

	assert.Equal(t, seq(
		one(model.EventStarted),
		one(model.EventDecomposed),
		repeat(model.EventError, 2),
		one(model.EventExplorationComplete),
		one(model.EventFailed),
	), env.eventTypes(id))

	c := env.campaign(id)
	assert.Equal(t, model.CampaignStatusFailed, c.Status)
	assert.Equal(t, 1, c.ExplorationCount)
	assert.Positive(t, c.BudgetSpent)

	exps, err := env.store.ListExplorations(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, "sub-question 3", exps[0].Question)
}

func TestRun_SuccessResetsFailureCount(t *testing.T) {
	b := newScripted("claude", func(_ context.Context, s stage, n int, _ string) (*gateway.Response, error) {
		switch s {
		case stageDecompose:
			return &gateway.Response{Text: subQuestions(5)}, nil
		case stageBriefing:
			return &gateway.Response{Text: goodBriefing}, nil
		}
		if n == 3 || n == 5 {
			return &gateway.Response{Text: goodExploration, Tokens: 100}, nil
		}
		return nil, errBackendDown
	})
	env := newTestEnv(t, nil, nil, nil, b)
	id := env.createCampaign(100, 50, "claude")

	_, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, []model.EventType{
		model.EventStarted, model.EventDecomposed,
		model.EventError, model.EventError, model.EventExplorationComplete,
		model.EventError, model.EventExplorationComplete,
		model.EventCompleted,
	}, env.eventTypes(id))

	events := env.events(id)
	assert.EqualValues(t, 1, events[2].EventData["consecutive_failures"])
	assert.EqualValues(t, 2, events[3].EventData["consecutive_failures"])
	assert.EqualValues(t, 1, events[5].EventData["consecutive_failures"])
	assert.Equal(t, model.CampaignStatusComplete, env.campaign(id).Status)
}

func TestRun_MalformedOutputStillCompletes(t *testing.T) {
	b := staticBackend("claude", "I would rather chat about the weather.", nil)
	env := newTestEnv(t, nil, nil, nil, b)
	id := env.createCampaign(100, 50, "claude")

	summary, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)

	exps := env.explorations(id)
	require.Len(t, exps, 1)
	assert.Equal(t, "What limits grid-scale storage?", exps[0].Question)
	assert.Empty(t, exps[0].Claims)
	assert.InDelta(t, DefaultConfidence, exps[0].Confidence, 1e-9)
	assert.InDelta(t, 0.55, exps[0].PredictedValue, 1e-9)

	briefing, err := env.store.GetBriefing(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, fallbackSummary, briefing.Summary)
	assert.Equal(t, 1, summary.ValuableCount)
}

func TestRun_UnknownModelsFallBack(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil, happyBackend("claude", 2, 100))
	id := env.createCampaign(100, 50, "gpt-9")

	_, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)

	exps := env.explorations(id)
	require.Len(t, exps, 1)
	assert.Equal(t, "What limits grid-scale storage?", exps[0].Question)
	assert.Equal(t, "claude", exps[0].SourceModel)
}

func TestRun_DecomposeFailureFails(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil, staticBackend("claude", "", errBackendDown))
	id := env.createCampaign(100, 50, "claude")

	_, err := env.runner.Run(context.Background(), id)
	require.ErrorIs(t, err, errBackendDown)

	assert.Equal(t, []model.EventType{model.EventStarted, model.EventFailed}, env.eventTypes(id))
	c := env.campaign(id)
	assert.Equal(t, model.CampaignStatusFailed, c.Status)
	assert.Contains(t, c.ErrorMessage, "backend down")
}

func TestRun_BriefingFailureFails(t *testing.T) {
	b := newScripted("claude", func(_ context.Context, s stage, _ int, _ string) (*gateway.Response, error) {
		switch s {
		case stageDecompose:
			return &gateway.Response{Text: subQuestions(1)}, nil
		case stageBriefing:
			return nil, errBackendDown
		}
		return &gateway.Response{Text: goodExploration}, nil
	})
	env := newTestEnv(t, nil, nil, nil, b)
	id := env.createCampaign(100, 50, "claude")

	_, err := env.runner.Run(context.Background(), id)
	require.Error(t, err)

	c := env.campaign(id)
	assert.Equal(t, model.CampaignStatusFailed, c.Status)
	assert.Equal(t, 1, c.ExplorationCount)
	assert.Contains(t, c.ErrorMessage, "briefing: call model")
}

func TestRun_NotPending(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil, happyBackend("claude", 1, 100))
	id := env.createCampaign(100, 50, "claude")

	_, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)

	_, err = env.runner.Run(context.Background(), id)
	require.ErrorIs(t, err, campaign.ErrNotRunnable)
	assert.Equal(t, model.CampaignStatusComplete, env.campaign(id).Status)
	assert.Len(t, env.explorations(id), 1)
}

func TestRun_NotifiesSlack(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := notify.New(config.NotifyConfig{SlackWebhookURL: srv.URL, ReviewBaseURL: "https://example.com/c"})
	env := newTestEnv(t, nil, n, nil, happyBackend("claude", 1, 100))
	id := env.createCampaign(100, 50, "claude")

	summary, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, summary.SlackSent)
	assert.EqualValues(t, 1, hits.Load())

	b, err := env.store.GetBriefing(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, b.SlackSent)

	events := env.events(id)
	last := events[len(events)-1]
	assert.Equal(t, model.EventCompleted, last.EventType)
	assert.Equal(t, true, last.EventData["slack_sent"])
}

func TestRun_SlackFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := notify.New(config.NotifyConfig{SlackWebhookURL: srv.URL})
	env := newTestEnv(t, nil, n, nil, happyBackend("claude", 1, 100))
	id := env.createCampaign(100, 50, "claude")

	summary, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, summary.SlackSent)

	types := env.eventTypes(id)
	assert.Equal(t, model.EventSlackError, types[len(types)-2])
	assert.Equal(t, model.EventCompleted, types[len(types)-1])
	assert.Contains(t, env.events(id)[len(types)-2].EventData["error"], "400")

	b, err := env.store.GetBriefing(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, b.SlackSent)
	assert.Equal(t, model.CampaignStatusComplete, env.campaign(id).Status)
}

func TestRun_PublishesToNotion(t *testing.T) {
	mc := &mockNotion{}
	mc.On("Upsert", mock.Anything, "db-1", mock.MatchedBy(func(k notion.Key) bool {
		return k.Property == publish.PropCampaignID && k.Value != ""
	}), mock.Anything).
		Return(notion.Result{PageID: "page-1", Created: true}, nil).Once()

	env := newTestEnv(t, nil, nil, publish.New(mc, "db-1", ""), happyBackend("claude", 1, 100))
	id := env.createCampaign(100, 50, "claude")

	_, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)
	mc.AssertExpectations(t)

	events := env.events(id)
	published := events[len(events)-2]
	assert.Equal(t, model.EventPublished, published.EventType)
	assert.Equal(t, "page-1", published.EventData["page_id"])
}

func TestRun_PublishFailureIsNotFatal(t *testing.T) {
	mc := &mockNotion{}
	mc.On("Upsert", mock.Anything, "db-1", mock.Anything, mock.Anything).
		Return(notion.Result{}, errors.New("notion unavailable")).Once()

	env := newTestEnv(t, nil, nil, publish.New(mc, "db-1", ""), happyBackend("claude", 1, 100))
	id := env.createCampaign(100, 50, "claude")

	_, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)

	types := env.eventTypes(id)
	assert.Equal(t, model.EventPublishError, types[len(types)-2])
	assert.Equal(t, model.CampaignStatusComplete, env.campaign(id).Status)
}

func TestRun_PauseStopsDispatch(t *testing.T) {
	var env *testEnv
	var id string
	b := newScripted("claude", func(ctx context.Context, s stage, n int, _ string) (*gateway.Response, error) {
		switch s {
		case stageDecompose:
			return &gateway.Response{Text: subQuestions(5)}, nil
		case stageBriefing:
			return &gateway.Response{Text: goodBriefing}, nil
		}
		if n == 2 {
			if err := env.runner.Machine().Pause(ctx, id); err != nil {
				return nil, err
			}
		}
		return &gateway.Response{Text: goodExploration, Tokens: 100}, nil
	})
	env = newTestEnv(t, nil, nil, nil, b)
	id = env.createCampaign(100, 50, "claude")

	summary, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, summary.Stopped)
	assert.Equal(t, 2, summary.TotalExplorations)

	assert.Equal(t, seq(
		one(model.EventStarted),
		one(model.EventDecomposed),
		repeat(model.EventExplorationComplete, 2),
		one(model.EventStopped),
	), env.eventTypes(id))

	c := env.campaign(id)
	assert.Equal(t, model.CampaignStatusPaused, c.Status)
	assert.Nil(t, c.CompletedAt)
	assert.Equal(t, 0, b.calls(stageBriefing))

	_, err = env.store.GetBriefing(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_PauseDuringLastUnitSkipsBriefing(t *testing.T) {
	var env *testEnv
	var id string
	b := newScripted("claude", func(ctx context.Context, s stage, _ int, _ string) (*gateway.Response, error) {
		switch s {
		case stageDecompose:
			return &gateway.Response{Text: subQuestions(1)}, nil
		case stageBriefing:
			return &gateway.Response{Text: goodBriefing}, nil
		}
		if err := env.runner.Machine().Pause(ctx, id); err != nil {
			return nil, err
		}
		return &gateway.Response{Text: goodExploration, Tokens: 100}, nil
	})
	env = newTestEnv(t, nil, nil, nil, b)
	id = env.createCampaign(100, 50, "claude")

	summary, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, summary.Stopped)
	assert.Equal(t, 1, summary.TotalExplorations)
	assert.Equal(t, 0, b.calls(stageBriefing))

	assert.Equal(t, seq(
		one(model.EventStarted),
		one(model.EventDecomposed),
		one(model.EventExplorationComplete),
		one(model.EventStopped),
	), env.eventTypes(id))
	assert.Equal(t, model.CampaignStatusPaused, env.campaign(id).Status)
}

func TestRun_PauseDuringBriefingRecordsStop(t *testing.T) {
	var env *testEnv
	var id string
	b := newScripted("claude", func(ctx context.Context, s stage, _ int, _ string) (*gateway.Response, error) {
		switch s {
		case stageDecompose:
			return &gateway.Response{Text: subQuestions(2)}, nil
		case stageBriefing:
			if err := env.runner.Machine().Pause(ctx, id); err != nil {
				return nil, err
			}
			return &gateway.Response{Text: goodBriefing}, nil
		}
		return &gateway.Response{Text: goodExploration, Tokens: 100}, nil
	})
	env = newTestEnv(t, nil, nil, nil, b)
	id = env.createCampaign(100, 50, "claude")

	summary, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, summary.Stopped)
	assert.Equal(t, 2, summary.TotalExplorations)

	types := env.eventTypes(id)
	require.NotEmpty(t, types)
	assert.Equal(t, model.EventStopped, types[len(types)-1])
	assert.NotContains(t, types, model.EventCompleted)

	c := env.campaign(id)
	assert.Equal(t, model.CampaignStatusPaused, c.Status)
	assert.Nil(t, c.CompletedAt)

	_, err = env.store.GetBriefing(context.Background(), id)
	assert.NoError(t, err)
}

func TestRun_PauseThenBriefingFailureKeepsCause(t *testing.T) {
	var env *testEnv
	var id string
	b := newScripted("claude", func(ctx context.Context, s stage, _ int, _ string) (*gateway.Response, error) {
		switch s {
		case stageDecompose:
			return &gateway.Response{Text: subQuestions(1)}, nil
		case stageBriefing:
			if err := env.runner.Machine().Pause(ctx, id); err != nil {
				return nil, err
			}
			return nil, errBackendDown
		}
		return &gateway.Response{Text: goodExploration, Tokens: 100}, nil
	})
	env = newTestEnv(t, nil, nil, nil, b)
	id = env.createCampaign(100, 50, "claude")

	_, err := env.runner.Run(context.Background(), id)
	require.ErrorIs(t, err, errBackendDown)

	events := env.events(id)
	last := events[len(events)-1]
	assert.Equal(t, model.EventStopped, last.EventType)
	assert.Contains(t, last.EventData["error"], "backend down")
	assert.Equal(t, model.CampaignStatusPaused, env.campaign(id).Status)
}

func TestRun_RuntimeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Campaign.MaxRuntime = time.Nanosecond
	b := happyBackend("claude", 2, 100)
	env := newTestEnv(t, cfg, nil, nil, b)
	id := env.createCampaign(100, 50, "claude")

	_, err := env.runner.Run(context.Background(), id)
	require.Error(t, err)

	assert.Equal(t, []model.EventType{
		model.EventStarted, model.EventDecomposed, model.EventFailed,
	}, env.eventTypes(id))
	assert.Zero(t, b.calls(stageExplore))

	c := env.campaign(id)
	assert.Equal(t, model.CampaignStatusFailed, c.Status)
	assert.Equal(t, "runtime limit reached (1ns)", c.ErrorMessage)
}

func TestRun_CancelledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := newScripted("claude", func(ctx context.Context, s stage, _ int, _ string) (*gateway.Response, error) {
		if s == stageDecompose {
			return &gateway.Response{Text: subQuestions(3)}, nil
		}
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	env := newTestEnv(t, nil, nil, nil, b)
	id := env.createCampaign(100, 50, "claude")

	_, err := env.runner.Run(ctx, id)
	require.ErrorIs(t, err, context.Canceled)

	types := env.eventTypes(id)
	assert.Equal(t, model.EventFailed, types[len(types)-1])
	assert.NotContains(t, types, model.EventError)

	c := env.campaign(id)
	assert.Equal(t, model.CampaignStatusFailed, c.Status)
	assert.Contains(t, c.ErrorMessage, "context canceled")
}

func TestRun_WorkerPoolRespectsCap(t *testing.T) {
	cfg := testConfig()
	cfg.Campaign.Workers = 4

	var active, peak atomic.Int32
	slow := func(name string) *scriptedBackend {
		return newScripted(name, func(_ context.Context, s stage, _ int, _ string) (*gateway.Response, error) {
			switch s {
			case stageDecompose:
				return &gateway.Response{Text: subQuestions(5)}, nil
			case stageBriefing:
				return &gateway.Response{Text: goodBriefing}, nil
			}
			cur := active.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return &gateway.Response{Text: goodExploration, Tokens: 100}, nil
		})
	}
	env := newTestEnv(t, cfg, nil, nil, slow("claude"), slow("gemini"))
	id := env.createCampaign(100, 7, "claude", "gemini")

	summary, err := env.runner.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 7, summary.TotalExplorations)

	c := env.campaign(id)
	assert.Equal(t, 7, c.ExplorationCount)

	var spent float64
	for _, e := range env.explorations(id) {
		spent += e.CostDollars
	}
	assert.InDelta(t, spent, c.BudgetSpent, 1e-12)

	types := env.eventTypes(id)
	count := map[model.EventType]int{}
	for _, typ := range types {
		count[typ]++
	}
	assert.Equal(t, 7, count[model.EventExplorationComplete])
	assert.Equal(t, 1, count[model.EventLimitReached])
	assert.Equal(t, model.EventCompleted, types[len(types)-1])
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestNew_ClampsWorkers(t *testing.T) {
	cfg := testConfig()
	cfg.Campaign.Workers = 100
	r := New(cfg, nil, gateway.New(nil), nil, nil)
	assert.Equal(t, MaxWorkers, r.cfg.Workers)

	cfg.Campaign.Workers = 0
	r = New(cfg, nil, gateway.New(nil), nil, nil)
	assert.Equal(t, 1, r.cfg.Workers)
}
