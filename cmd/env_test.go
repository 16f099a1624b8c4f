//go:build !integration

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/command-center/hive/internal/config"
)

func gatewayConfig() *config.Config {
	return &config.Config{
		Anthropic:  config.AnthropicConfig{Model: "claude-sonnet-4-5-20250929", MaxTokens: 1024},
		Gemini:     config.GeminiConfig{Model: "gemini-2.5-flash"},
		Perplexity: config.PerplexityConfig{BaseURL: "https://api.perplexity.ai", Model: "sonar-pro"},
		Campaign: config.CampaignConfig{
			DecomposeBackend: "claude",
			BriefingBackend:  "claude",
		},
	}
}

func TestBuildGateway_AllKeys(t *testing.T) {
	c := gatewayConfig()
	c.Anthropic.Key = "sk-ant"
	c.Gemini.Key = "g-key"
	c.Perplexity.Key = "pplx"

	gw, err := buildGateway(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"claude", "gemini", "perplexity"}, gw.Backends())
}

func TestBuildGateway_RoleBackendMissing(t *testing.T) {
	c := gatewayConfig()
	c.Perplexity.Key = "pplx"

	_, err := buildGateway(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `campaign.decompose_backend "claude"`)

	c.Campaign.DecomposeBackend = "perplexity"
	c.Campaign.BriefingBackend = "perplexity"
	gw, err := buildGateway(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"perplexity"}, gw.Backends())
}

func TestBuildPublisher(t *testing.T) {
	c := gatewayConfig()
	assert.Nil(t, buildPublisher(c))
	assert.False(t, buildPublisher(c).Enabled())

	c.Notion.Token = "secret"
	c.Notion.BriefingDB = "db-1"
	assert.True(t, buildPublisher(c).Enabled())
}
