package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Campaign   CampaignConfig   `yaml:"campaign" mapstructure:"campaign"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the claude backend.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Google GenAI settings for the gemini backend.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PricingConfig holds per-backend token rates (USD per token). Entries
// override the built-in defaults.
type PricingConfig struct {
	Backends map[string]float64 `yaml:"backends" mapstructure:"backends"`
}

// CampaignConfig bounds and paces a campaign run.
type CampaignConfig struct {
	MaxRuntime             time.Duration `yaml:"max_runtime" mapstructure:"max_runtime"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
	CallTimeout            time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	Pace                   time.Duration `yaml:"pace" mapstructure:"pace"`
	Workers                int           `yaml:"workers" mapstructure:"workers"`
	MaxSubQuestions        int           `yaml:"max_sub_questions" mapstructure:"max_sub_questions"`
	BriefingClaims         int           `yaml:"briefing_claims" mapstructure:"briefing_claims"`
	DecomposeBackend       string        `yaml:"decompose_backend" mapstructure:"decompose_backend"`
	BriefingBackend        string        `yaml:"briefing_backend" mapstructure:"briefing_backend"`
	FallbackTokens         int           `yaml:"fallback_tokens" mapstructure:"fallback_tokens"`
}

// NotifyConfig configures the Slack completion digest.
type NotifyConfig struct {
	SlackWebhookURL string        `yaml:"slack_webhook_url" mapstructure:"slack_webhook_url"`
	ReviewBaseURL   string        `yaml:"review_base_url" mapstructure:"review_base_url"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// NotionConfig holds Notion API credentials for briefing export.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	BriefingDB string `yaml:"briefing_db" mapstructure:"briefing_db"`
}

// MonitoringConfig configures the campaign health checker run by serve.
type MonitoringConfig struct {
	Enabled              bool          `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckInterval        time.Duration `yaml:"check_interval" mapstructure:"check_interval"`
	LookbackWindow       time.Duration `yaml:"lookback_window" mapstructure:"lookback_window"`
	FailureRateThreshold float64       `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64       `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	StaleAfter           time.Duration `yaml:"stale_after" mapstructure:"stale_after"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets have empty defaults so AutomaticEnv can see them on Unmarshal.
	for _, key := range []string{
		"anthropic.key", "gemini.key", "perplexity.key",
		"notion.token", "notion.briefing_db", "notify.slack_webhook_url",
		"monitoring.webhook_url",
	} {
		v.SetDefault(key, "")
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "hive.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("campaign.max_runtime", 10*time.Hour)
	v.SetDefault("campaign.max_consecutive_failures", 3)
	v.SetDefault("campaign.call_timeout", 2*time.Minute)
	v.SetDefault("campaign.pace", 250*time.Millisecond)
	v.SetDefault("campaign.workers", 1)
	v.SetDefault("campaign.max_sub_questions", 5)
	v.SetDefault("campaign.briefing_claims", 30)
	v.SetDefault("campaign.decompose_backend", "claude")
	v.SetDefault("campaign.briefing_backend", "claude")
	v.SetDefault("campaign.fallback_tokens", 1000)
	v.SetDefault("notify.review_base_url", "https://emanuelteklu.com/cc/campaigns")
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.check_interval", 5*time.Minute)
	v.SetDefault("monitoring.lookback_window", 24*time.Hour)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stale_after", 11*time.Hour)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
