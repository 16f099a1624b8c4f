package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Every problem is
// reported in one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run", "serve":
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	if mode == "run" || mode == "serve" {
		if c.Anthropic.Key == "" && c.Gemini.Key == "" && c.Perplexity.Key == "" {
			errs = append(errs, "at least one of anthropic.key, gemini.key, perplexity.key is required")
		}
		cc := c.Campaign
		if cc.MaxConsecutiveFailures < 1 {
			errs = append(errs, "campaign.max_consecutive_failures must be >= 1")
		}
		if cc.Workers < 1 || cc.Workers > 16 {
			errs = append(errs, "campaign.workers must be between 1 and 16")
		}
		if cc.MaxRuntime <= 0 {
			errs = append(errs, "campaign.max_runtime must be > 0")
		}
		if cc.CallTimeout <= 0 {
			errs = append(errs, "campaign.call_timeout must be > 0")
		}
		if cc.Pace < 0 {
			errs = append(errs, "campaign.pace must be >= 0")
		}
		if cc.MaxSubQuestions < 1 {
			errs = append(errs, "campaign.max_sub_questions must be >= 1")
		}
		if cc.BriefingClaims < 1 {
			errs = append(errs, "campaign.briefing_claims must be >= 1")
		}
		for backend, rate := range c.Pricing.Backends {
			if rate < 0 {
				errs = append(errs, fmt.Sprintf("pricing.backends.%s must be >= 0", backend))
			}
		}
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}
