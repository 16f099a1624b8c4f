package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/command-center/hive/internal/config"
	"github.com/command-center/hive/internal/gateway"
	"github.com/command-center/hive/internal/notify"
	"github.com/command-center/hive/internal/pipeline"
	"github.com/command-center/hive/internal/publish"
	"github.com/command-center/hive/internal/store"
	anthropicpkg "github.com/command-center/hive/pkg/anthropic"
	"github.com/command-center/hive/pkg/gemini"
	"github.com/command-center/hive/pkg/notion"
	"github.com/command-center/hive/pkg/perplexity"
)

// runnerEnv holds the store and runner needed by the run and serve commands.
type runnerEnv struct {
	Store  store.Store
	Runner *pipeline.Runner
}

// Close releases resources held by the environment.
func (e *runnerEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initRunner validates config for mode, opens the store and wires the
// gateway, notifier and publisher into a Runner. Callers should defer
// env.Close().
func initRunner(ctx context.Context, mode string) (*runnerEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	gw, err := buildGateway(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	n := notify.New(cfg.Notify)
	if !n.Enabled() {
		zap.L().Info("slack webhook not configured, digests disabled")
	}

	return &runnerEnv{
		Store:  st,
		Runner: pipeline.New(cfg, st, gw, n, buildPublisher(cfg)),
	}, nil
}

// buildGateway registers a backend for every configured API key. The
// decompose and briefing backends must be among them.
func buildGateway(ctx context.Context, c *config.Config) (*gateway.Gateway, error) {
	var backends []gateway.Backend

	if c.Anthropic.Key != "" {
		backends = append(backends, &gateway.Claude{
			Client:    anthropicpkg.NewClient(c.Anthropic.Key),
			Model:     c.Anthropic.Model,
			MaxTokens: c.Anthropic.MaxTokens,
		})
	}

	if c.Gemini.Key != "" {
		gc, err := gemini.NewClient(ctx, c.Gemini.Key, gemini.WithModel(c.Gemini.Model))
		if err != nil {
			return nil, eris.Wrap(err, "init gemini")
		}
		backends = append(backends, &gateway.Gemini{Client: gc, Model: c.Gemini.Model})
	}

	if c.Perplexity.Key != "" {
		pc := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
		backends = append(backends, &gateway.Perplexity{Client: pc, Model: c.Perplexity.Model})
	}

	gw := gateway.New(backends,
		gateway.WithCallTimeout(c.Campaign.CallTimeout),
		gateway.WithFallbackTokens(c.Campaign.FallbackTokens),
	)

	for _, role := range []struct{ key, backend string }{
		{"campaign.decompose_backend", c.Campaign.DecomposeBackend},
		{"campaign.briefing_backend", c.Campaign.BriefingBackend},
	} {
		if role.backend != "" && !gw.Has(role.backend) {
			return nil, eris.Errorf("%s %q has no API key configured (have %v)", role.key, role.backend, gw.Backends())
		}
	}

	zap.L().Info("gateway ready", zap.Strings("backends", gw.Backends()))
	return gw, nil
}

// buildPublisher returns a Notion publisher, or nil when export is not
// configured.
func buildPublisher(c *config.Config) *publish.Publisher {
	if c.Notion.Token == "" || c.Notion.BriefingDB == "" {
		return nil
	}
	return publish.New(notion.NewClient(c.Notion.Token), c.Notion.BriefingDB, c.Notify.ReviewBaseURL)
}
