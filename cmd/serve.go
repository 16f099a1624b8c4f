package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/command-center/hive/internal/campaign"
	"github.com/command-center/hive/internal/model"
	"github.com/command-center/hive/internal/monitoring"
	"github.com/command-center/hive/internal/pipeline"
	"github.com/command-center/hive/internal/store"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRunner(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		a := &api{
			store:     env.Store,
			runner:    env.Runner,
			runCtx:    ctx,
			collector: monitoring.NewCollector(env.Store, cfg.Monitoring.StaleAfter),
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(a.collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			a.start(func() { checker.Run(ctx) })
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(a, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown. In-flight runs see the cancelled context and
		// finalize as failed before the store closes.
		shutdownDone := make(chan struct{})
		go func() {
			defer close(shutdownDone)
			<-ctx.Done()
			zap.L().Info("shutting down server")
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		listenErr := srv.ListenAndServe()
		if errors.Is(listenErr, http.ErrServerClosed) {
			listenErr = nil
		}

		// No handler can start a run once Shutdown has returned.
		stop()
		<-shutdownDone
		a.wait()

		if listenErr != nil {
			return eris.Wrap(listenErr, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api serves campaign records and triggers runs in the background.
type api struct {
	store  store.Store
	runner *pipeline.Runner

	// runCtx parents background runs.
	runCtx context.Context

	mu     sync.Mutex
	closed bool
	runs   sync.WaitGroup

	collector *monitoring.Collector
}

func newRouter(a *api, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Get("/metrics", a.metrics)
	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", a.listCampaigns)
		r.Post("/", a.createCampaign)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getCampaign)
			r.Get("/review", a.review)
			r.Post("/run", a.triggerRun)
			r.Post("/pause", a.pause)
		})
	})
	return r
}

// start runs fn in the background unless the api is shutting down.
func (a *api) start(fn func()) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.runCtx.Err() != nil {
		return false
	}
	a.runs.Add(1)
	go func() {
		defer a.runs.Done()
		fn()
	}()
	return true
}

// wait stops new background work and blocks until running work finishes.
func (a *api) wait() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.runs.Wait()
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) metrics(w http.ResponseWriter, r *http.Request) {
	lookback := 24 * time.Hour
	if v := r.URL.Query().Get("lookback"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid lookback %q", v))
			return
		}
		lookback = d
	}

	snap, err := a.collector.Collect(r.Context(), lookback)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) listCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CampaignFilter{
		Status: model.CampaignStatus(q.Get("status")),
		UserID: q.Get("user_id"),
		Limit:  50,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", filter.Status))
		return
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	campaigns, err := a.store.ListCampaigns(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if campaigns == nil {
		campaigns = []model.Campaign{}
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (a *api) createCampaign(w http.ResponseWriter, r *http.Request) {
	var nc model.NewCampaign
	if err := json.NewDecoder(r.Body).Decode(&nc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	nc.Normalize()
	if err := nc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.store.CreateCampaign(r.Context(), nc)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *api) getCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := a.store.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *api) review(w http.ResponseWriter, r *http.Request) {
	rv, err := loadReview(r.Context(), a.store, chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func (a *api) triggerRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := a.store.GetCampaign(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if c.Status != model.CampaignStatusPending {
		writeError(w, http.StatusConflict, fmt.Sprintf("campaign is %s", c.Status))
		return
	}

	started := a.start(func() {
		summary, err := a.runner.Run(a.runCtx, id)
		if err != nil {
			zap.L().Error("campaign run failed", zap.String("campaign_id", id), zap.Error(err))
			return
		}
		zap.L().Info("campaign run finished",
			zap.String("campaign_id", id),
			zap.Int("explorations", summary.TotalExplorations),
			zap.Float64("cost_usd", summary.TotalCost),
			zap.Bool("stopped", summary.Stopped),
		)
	})
	if !started {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":      "accepted",
		"campaign_id": id,
	})
}

func (a *api) pause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.runner.Machine().Pause(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      string(model.CampaignStatusPaused),
		"campaign_id": id,
	})
}

// loadReview assembles the review payload. A campaign without a briefing
// yet has a null briefing.
func loadReview(ctx context.Context, st store.Store, id string) (*model.CampaignReview, error) {
	c, err := st.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	b, err := st.GetBriefing(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		b, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	exps, err := st.ListExplorations(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := st.ListEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if exps == nil {
		exps = []model.Exploration{}
	}
	if events == nil {
		events = []model.CampaignEvent{}
	}
	return model.NewCampaignReview(c, b, exps, events), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict), errors.Is(err, campaign.ErrNotRunnable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
