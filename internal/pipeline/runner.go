package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/command-center/hive/internal/campaign"
	"github.com/command-center/hive/internal/config"
	"github.com/command-center/hive/internal/cost"
	"github.com/command-center/hive/internal/gateway"
	"github.com/command-center/hive/internal/ledger"
	"github.com/command-center/hive/internal/model"
	"github.com/command-center/hive/internal/notify"
	"github.com/command-center/hive/internal/publish"
	"github.com/command-center/hive/internal/resilience"
	"github.com/command-center/hive/internal/store"
)

// MaxWorkers bounds the explorer pool.
const MaxWorkers = 16

// Runner executes campaigns: decompose, explore under the ledger and
// guard, synthesize, notify.
type Runner struct {
	cfg        config.CampaignConfig
	store      store.Store
	gw         *gateway.Gateway
	machine    *campaign.Machine
	ledger     *ledger.Ledger
	decomposer *Decomposer
	explorer   *Explorer
	synth      *Synthesizer
	notifier   *notify.Notifier
	publisher  *publish.Publisher
}

// New wires a Runner. publisher may be nil.
func New(cfg *config.Config, st store.Store, gw *gateway.Gateway, n *notify.Notifier, pub *publish.Publisher) *Runner {
	cc := cfg.Campaign
	if cc.Workers <= 0 {
		cc.Workers = 1
	}
	cc.Workers = min(cc.Workers, MaxWorkers)

	return &Runner{
		cfg:        cc,
		store:      st,
		gw:         gw,
		machine:    campaign.NewMachine(st),
		ledger:     ledger.New(st),
		decomposer: NewDecomposer(gw, cc.DecomposeBackend, cc.MaxSubQuestions),
		explorer:   NewExplorer(gw, cost.NewCalculator(cost.Rates{Backends: cfg.Pricing.Backends}), DefaultScoringPolicy()),
		synth:      NewSynthesizer(st, gw, cc.BriefingBackend, cc.BriefingClaims),
		notifier:   n,
		publisher:  pub,
	}
}

// Machine exposes the state machine for external commands such as pause.
func (r *Runner) Machine() *campaign.Machine {
	return r.machine
}

// Run executes one pending campaign to a terminal outcome. The campaign's
// status and event log are updated whatever happens; the returned error is
// the one persisted as error_message.
func (r *Runner) Run(ctx context.Context, campaignID string) (summary *model.RunSummary, err error) {
	c, err := r.machine.Start(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	summary = &model.RunSummary{CampaignID: campaignID}
	defer r.machine.Finalize(ctx, campaignID, &err, summary)

	log := zap.L().With(zap.String("campaign_id", campaignID))
	log.Info("pipeline: campaign started",
		zap.String("name", c.Name),
		zap.Strings("models", c.Models),
		zap.Int("workers", r.cfg.Workers),
	)

	guard := resilience.NewGuard(r.cfg.MaxConsecutiveFailures, r.cfg.MaxRuntime, log)

	subs, err := r.decomposer.Decompose(ctx, c.RootQuestion, c.Context)
	if err != nil {
		return summary, err
	}
	queue := buildQueue(subs, c.Models, r.gw.Has, c.RootQuestion, r.decomposer.Backend())

	if err := r.machine.Emit(ctx, campaignID, model.EventDecomposed, map[string]any{
		"count":         len(subs),
		"queued":        len(queue),
		"sub_questions": subs,
	}); err != nil {
		return summary, err
	}
	log.Info("pipeline: decomposed", zap.Int("sub_questions", len(subs)), zap.Int("queued", len(queue)))

	d := &dispatcher{r: r, c: c, guard: guard, log: log}
	stopped, err := d.drain(ctx, queue)
	if err != nil {
		return summary, err
	}
	if !stopped {
		// A pause can land while the last units are in flight.
		if stopped, err = r.machine.StopRequested(ctx, campaignID); err != nil {
			return summary, err
		}
	}

	if stopped {
		summary.Stopped = true
		totals, err := r.store.GetCampaign(ctx, campaignID)
		if err != nil {
			return summary, eris.Wrap(err, "pipeline: read totals")
		}
		summary.TotalExplorations = totals.ExplorationCount
		summary.TotalCost = totals.BudgetSpent
		return summary, nil
	}

	b, err := r.synth.Synthesize(ctx, c)
	if err != nil {
		return summary, err
	}
	summary.TotalExplorations = b.TotalExplorations
	summary.ValuableCount = b.ValuableCount
	summary.TotalCost = b.TotalCost

	if err := r.deliver(ctx, b, c, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// deliver notifies and publishes the briefing. Delivery failures become
// events; only event or briefing writes can fail the run.
func (r *Runner) deliver(ctx context.Context, b *model.Briefing, c *model.Campaign, summary *model.RunSummary) error {
	sent, nerr := r.notifier.Notify(ctx, b, c)
	if nerr != nil {
		zap.L().Warn("pipeline: notify failed", zap.String("campaign_id", c.ID), zap.Error(nerr))
		if err := r.machine.Emit(ctx, c.ID, model.EventSlackError, map[string]any{"error": nerr.Error()}); err != nil {
			return err
		}
	}
	if sent {
		if err := r.store.MarkBriefingSent(ctx, b.ID); err != nil {
			return eris.Wrap(err, "pipeline: mark briefing sent")
		}
		b.SlackSent = true
	}
	summary.SlackSent = sent

	if !r.publisher.Enabled() {
		return nil
	}
	pageID, perr := r.publisher.Publish(ctx, b, c)
	if perr != nil {
		zap.L().Warn("pipeline: publish failed", zap.String("campaign_id", c.ID), zap.Error(perr))
		return r.machine.Emit(ctx, c.ID, model.EventPublishError, map[string]any{"error": perr.Error()})
	}
	return r.machine.Emit(ctx, c.ID, model.EventPublished, map[string]any{"page_id": pageID})
}

// outcome is a worker's report for one unit.
type outcome struct {
	unit   unit
	result *ExplorationResult
	err    error
}

// dispatcher owns one run's queue and accounting. Only the dispatching
// goroutine reads the ledger and records outcomes; workers just explore.
type dispatcher struct {
	r     *Runner
	c     *model.Campaign
	guard *resilience.Guard
	log   *zap.Logger
}

type admission int

const (
	admit admission = iota
	wait
	halt
)

// drain works through queue until it is exhausted, a cap is reached, or a
// stop is requested. A non-nil error is fatal to the run.
func (d *dispatcher) drain(ctx context.Context, queue []unit) (stopped bool, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	jobs := make(chan unit)
	results := make(chan outcome)
	workers := d.r.cfg.Workers

	for range workers {
		g.Go(func() error {
			for u := range jobs {
				res, err := d.r.explorer.Explore(gctx, u.Question, d.c.Context, u.Backend)
				select {
				case results <- outcome{unit: u, result: res, err: err}:
				case <-gctx.Done():
					return nil
				}
			}
			return nil
		})
	}

	defer func() {
		close(jobs)
		cancel()
		_ = g.Wait()
	}()

	var limiter *rate.Limiter
	if d.r.cfg.Pace > 0 {
		limiter = rate.NewLimiter(rate.Every(d.r.cfg.Pace), 1)
	}

	next, inFlight := 0, 0
	halted := false

	for {
		if !halted && next < len(queue) && inFlight < workers {
			verdict, stop, err := d.admit(ctx, inFlight)
			if err != nil {
				d.settle(ctx, err, results, inFlight)
				return false, err
			}
			switch verdict {
			case admit:
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return false, eris.Wrap(err, "pipeline: pace")
					}
				}
				select {
				case jobs <- queue[next]:
				case <-ctx.Done():
					return false, eris.Wrap(ctx.Err(), "pipeline: run cancelled")
				}
				next++
				inFlight++
				continue
			case halt:
				halted = true
				stopped = stop
			case wait:
			}
		}

		if inFlight == 0 {
			return stopped, nil
		}

		var o outcome
		select {
		case o = <-results:
		case <-ctx.Done():
			return false, eris.Wrap(ctx.Err(), "pipeline: run cancelled")
		}
		inFlight--
		if err := d.record(ctx, o); err != nil {
			d.settle(ctx, err, results, inFlight)
			return false, err
		}
	}
}

// settle waits out the units still in flight when the guard aborts the run
// and commits the ones that succeeded. Late failures are only logged.
func (d *dispatcher) settle(ctx context.Context, cause error, results <-chan outcome, inFlight int) {
	if !errors.Is(cause, resilience.ErrCircuitTripped) && !errors.Is(cause, resilience.ErrRuntimeExceeded) {
		return
	}
	for ; inFlight > 0; inFlight-- {
		var o outcome
		select {
		case o = <-results:
		case <-ctx.Done():
			return
		}
		if o.err != nil {
			d.log.Warn("pipeline: exploration failed after abort",
				zap.String("backend", o.unit.Backend),
				zap.String("question", o.unit.Question),
				zap.Error(o.err),
			)
			continue
		}
		if err := d.record(ctx, o); err != nil {
			d.log.Error("pipeline: commit after abort", zap.Error(err))
			return
		}
	}
}

// admit decides whether the next unit may be dispatched. Checks run in
// order: stop request, guard, ledger.
func (d *dispatcher) admit(ctx context.Context, inFlight int) (admission, bool, error) {
	if err := ctx.Err(); err != nil {
		return halt, false, eris.Wrap(err, "pipeline: run cancelled")
	}

	stop, err := d.r.machine.StopRequested(ctx, d.c.ID)
	if err != nil {
		return halt, false, err
	}
	if stop {
		d.log.Info("pipeline: stop requested", zap.Int("in_flight", inFlight))
		return halt, true, nil
	}

	if err := d.guard.Check(); err != nil {
		return halt, false, err
	}

	_, err = d.r.ledger.Check(ctx, d.c.ID, inFlight)
	var capErr *ledger.CapError
	if errors.As(err, &capErr) {
		if capErr.Reason == ledger.ReasonExplorations && inFlight > 0 {
			return wait, false, nil
		}
		d.log.Info("pipeline: limit reached",
			zap.String("reason", capErr.Reason),
			zap.Float64("budget_spent", capErr.Snapshot.BudgetSpent),
			zap.Int("exploration_count", capErr.Snapshot.ExplorationCount),
		)
		if err := d.r.machine.Emit(ctx, d.c.ID, model.EventLimitReached, capErr.Snapshot.EventData(capErr.Reason)); err != nil {
			return halt, false, err
		}
		return halt, false, nil
	}
	if err != nil {
		return halt, false, err
	}
	return admit, false, nil
}

// record applies one outcome: commit and reset on success, count and log
// on failure. It returns the breaker's trip error or any write error.
func (d *dispatcher) record(ctx context.Context, o outcome) error {
	if o.err != nil {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "pipeline: run cancelled")
		}

		failures, tripErr := d.guard.Breaker.Failure(o.err)
		d.log.Warn("pipeline: exploration failed",
			zap.String("backend", o.unit.Backend),
			zap.String("question", o.unit.Question),
			zap.Int("consecutive_failures", failures),
			zap.Error(o.err),
		)
		if err := d.r.machine.Emit(ctx, d.c.ID, model.EventError, map[string]any{
			"model":                o.unit.Backend,
			"question":             o.unit.Question,
			"error":                o.err.Error(),
			"consecutive_failures": failures,
			"transient":            resilience.IsTransient(o.err),
			"class":                resilience.Classify(o.err),
		}); err != nil {
			return err
		}
		return tripErr
	}

	exp := o.result.Exploration(d.c.ID)
	snap, err := d.r.ledger.Commit(ctx, exp)
	if err != nil {
		return err
	}
	d.guard.Breaker.Success()

	d.log.Info("pipeline: exploration complete",
		zap.String("backend", o.unit.Backend),
		zap.Int("tokens", exp.TokensUsed),
		zap.Float64("cost_usd", exp.CostDollars),
		zap.Float64("predicted", exp.PredictedValue),
	)
	return d.r.machine.Emit(ctx, d.c.ID, model.EventExplorationComplete, map[string]any{
		"exploration_id":    exp.ID,
		"model":             o.unit.Backend,
		"question":          o.unit.Question,
		"tokens":            exp.TokensUsed,
		"cost":              exp.CostDollars,
		"predicted":         exp.PredictedValue,
		"budget_spent":      snap.BudgetSpent,
		"exploration_count": snap.ExplorationCount,
	})
}
