package gateway

import (
	"context"

	"github.com/command-center/hive/internal/cost"
	"github.com/command-center/hive/pkg/anthropic"
	"github.com/command-center/hive/pkg/gemini"
	"github.com/command-center/hive/pkg/perplexity"
)

// Claude adapts the Anthropic Messages API.
type Claude struct {
	Client    anthropic.Client
	Model     string
	MaxTokens int64
}

// Name implements Backend.
func (c *Claude) Name() string { return cost.BackendClaude }

// Complete implements Backend.
func (c *Claude) Complete(ctx context.Context, prompt string) (*Response, error) {
	resp, err := c.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, &TransportError{Backend: c.Name(), StatusCode: anthropic.StatusCode(err), Err: err}
	}
	return &Response{
		Text:   resp.Text(),
		Tokens: int(resp.Usage.Total()),
		Model:  resp.Model,
	}, nil
}

// Gemini adapts the Google GenAI API.
type Gemini struct {
	Client gemini.Client
	Model  string
}

// Name implements Backend.
func (g *Gemini) Name() string { return cost.BackendGemini }

// Complete implements Backend.
func (g *Gemini) Complete(ctx context.Context, prompt string) (*Response, error) {
	resp, err := g.Client.Generate(ctx, gemini.GenerateRequest{Model: g.Model, Prompt: prompt})
	if err != nil {
		return nil, &TransportError{Backend: g.Name(), StatusCode: gemini.StatusCode(err), Err: err}
	}
	return &Response{
		Text:   resp.Text,
		Tokens: resp.TotalTokens,
		Model:  resp.Model,
	}, nil
}

// Perplexity adapts the Perplexity chat completions API.
type Perplexity struct {
	Client perplexity.Client
	Model  string
}

// Name implements Backend.
func (p *Perplexity) Name() string { return cost.BackendPerplexity }

// Complete implements Backend.
func (p *Perplexity) Complete(ctx context.Context, prompt string) (*Response, error) {
	resp, err := p.Client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model:    p.Model,
		Messages: []perplexity.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, &TransportError{Backend: p.Name(), StatusCode: perplexity.StatusCode(err), Err: err}
	}
	return &Response{
		Text:   resp.Text(),
		Tokens: resp.Usage.Total(),
		Model:  p.Model,
	}, nil
}
