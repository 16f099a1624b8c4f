package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/command-center/hive/internal/resilience"
	"github.com/command-center/hive/pkg/anthropic"
	"github.com/command-center/hive/pkg/gemini"
	"github.com/command-center/hive/pkg/perplexity"
)

type fakeBackend struct {
	name  string
	calls int
	fn    func(ctx context.Context, prompt string) (*Response, error)
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Complete(ctx context.Context, prompt string) (*Response, error) {
	f.calls++
	return f.fn(ctx, prompt)
}

func TestCall_ReturnsTextAndTokens(t *testing.T) {
	b := &fakeBackend{name: "claude", fn: func(_ context.Context, prompt string) (*Response, error) {
		return &Response{Text: "echo: " + prompt, Tokens: 321, Model: "m"}, nil
	}}
	g := New([]Backend{b})

	resp, err := g.Call(context.Background(), "claude", "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", resp.Text)
	assert.Equal(t, 321, resp.Tokens)
}

func TestCall_FallbackTokens(t *testing.T) {
	b := &fakeBackend{name: "gemini", fn: func(context.Context, string) (*Response, error) {
		return &Response{Text: "x"}, nil
	}}

	resp, err := New([]Backend{b}).Call(context.Background(), "gemini", "p")
	require.NoError(t, err)
	assert.Equal(t, DefaultFallbackTokens, resp.Tokens)

	resp, err = New([]Backend{b}, WithFallbackTokens(250)).Call(context.Background(), "gemini", "p")
	require.NoError(t, err)
	assert.Equal(t, 250, resp.Tokens)
}

func TestCall_UnknownBackend(t *testing.T) {
	g := New(nil)
	_, err := g.Call(context.Background(), "gpt", "p")

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "gpt", te.Backend)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestCall_WrapsBackendErrorWithoutRetry(t *testing.T) {
	b := &fakeBackend{name: "claude", fn: func(context.Context, string) (*Response, error) {
		return nil, errors.New("boom")
	}}
	g := New([]Backend{b})

	_, err := g.Call(context.Background(), "claude", "p")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "claude", te.Backend)
	assert.Equal(t, 1, b.calls)
	assert.Contains(t, err.Error(), "boom")
}

func TestCall_MarksTransientFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		status    int
	}{
		{
			name:      "rate limited",
			err:       &TransportError{Backend: "claude", StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")},
			transient: true,
			status:    http.StatusTooManyRequests,
		},
		{
			name:      "server error",
			err:       &TransportError{Backend: "claude", StatusCode: http.StatusBadGateway, Err: errors.New("upstream")},
			transient: true,
			status:    http.StatusBadGateway,
		},
		{
			name: "bad request",
			err:  &TransportError{Backend: "claude", StatusCode: http.StatusBadRequest, Err: errors.New("bad")},
		},
		{
			name:      "connection reset",
			err:       errors.New("read tcp: connection reset by peer"),
			transient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{name: "claude", fn: func(context.Context, string) (*Response, error) {
				return nil, tt.err
			}}
			_, err := New([]Backend{b}).Call(context.Background(), "claude", "p")
			require.Error(t, err)

			var te *TransportError
			require.ErrorAs(t, err, &te)

			var transient *resilience.TransientError
			assert.Equal(t, tt.transient, errors.As(err, &transient))
			if tt.transient {
				assert.Equal(t, tt.status, transient.StatusCode)
				assert.Equal(t, "transient", resilience.Classify(err))
			} else {
				assert.Equal(t, "permanent", resilience.Classify(err))
			}
		})
	}
}

func TestCall_NilResponse(t *testing.T) {
	b := &fakeBackend{name: "claude", fn: func(context.Context, string) (*Response, error) {
		return nil, nil
	}}
	_, err := New([]Backend{b}).Call(context.Background(), "claude", "p")
	var te *TransportError
	require.ErrorAs(t, err, &te)
}

func TestCall_PerCallTimeout(t *testing.T) {
	b := &fakeBackend{name: "claude", fn: func(ctx context.Context, _ string) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	g := New([]Backend{b}, WithCallTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := g.Call(context.Background(), "claude", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Transient())
}

func TestHasAndBackends(t *testing.T) {
	g := New([]Backend{
		&fakeBackend{name: "perplexity"},
		&fakeBackend{name: "claude"},
	})
	assert.True(t, g.Has("claude"))
	assert.False(t, g.Has("gemini"))
	assert.Equal(t, []string{"claude", "perplexity"}, g.Backends())
}

func TestTransportError_Message(t *testing.T) {
	err := &TransportError{Backend: "claude", StatusCode: 503, Err: errors.New("overloaded")}
	assert.Equal(t, "gateway: claude returned status 503: overloaded", err.Error())
	assert.True(t, err.Transient())

	err = &TransportError{Backend: "claude", StatusCode: 400, Err: errors.New("bad")}
	assert.Equal(t, "gateway: claude returned status 400: bad", err.Error())
	assert.False(t, err.Transient())

	err = &TransportError{Backend: "gemini", Err: errors.New("dial")}
	assert.Equal(t, "gateway: gemini: dial", err.Error())
}

// --- adapter tests ---

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockGemini struct {
	mock.Mock
}

func (m *mockGemini) Generate(ctx context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gemini.GenerateResponse), args.Error(1)
}

type mockPerplexity struct {
	mock.Mock
}

func (m *mockPerplexity) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perplexity.ChatCompletionResponse), args.Error(1)
}

func TestClaude_Complete(t *testing.T) {
	mc := &mockAnthropic{}
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-x" && req.MaxTokens == 4096 &&
			len(req.Messages) == 1 && req.Messages[0].Content == "q"
	})).Return(&anthropic.MessageResponse{
		Model: "claude-x",
		Content: []anthropic.ContentBlock{
			{Type: "text", Text: "part one"},
			{Type: "text", Text: "part two"},
		},
		Usage: anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil)

	c := &Claude{Client: mc, Model: "claude-x", MaxTokens: 4096}
	assert.Equal(t, "claude", c.Name())

	resp, err := c.Complete(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "part one\npart two", resp.Text)
	assert.Equal(t, 150, resp.Tokens)
	mc.AssertExpectations(t)
}

func TestClaude_CompleteError(t *testing.T) {
	mc := &mockAnthropic{}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	_, err := (&Claude{Client: mc}).Complete(context.Background(), "q")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "claude", te.Backend)
}

func TestGemini_Complete(t *testing.T) {
	mg := &mockGemini{}
	mg.On("Generate", mock.Anything, gemini.GenerateRequest{Model: "gemini-2.5-flash", Prompt: "q"}).
		Return(&gemini.GenerateResponse{Text: "{}", Model: "gemini-2.5-flash", TotalTokens: 42}, nil)

	g := &Gemini{Client: mg, Model: "gemini-2.5-flash"}
	resp, err := g.Complete(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
	assert.Equal(t, 42, resp.Tokens)
	mg.AssertExpectations(t)
}

func TestPerplexity_Complete(t *testing.T) {
	mp := &mockPerplexity{}
	mp.On("ChatCompletion", mock.Anything, mock.Anything).Return(&perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: " answer "}}},
		Usage:   perplexity.Usage{PromptTokens: 10, CompletionTokens: 5},
	}, nil)

	p := &Perplexity{Client: mp, Model: "sonar-pro"}
	resp, err := p.Complete(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Text)
	assert.Equal(t, 15, resp.Tokens)
}

func TestPerplexity_CompleteStatusError(t *testing.T) {
	mp := &mockPerplexity{}
	mp.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &perplexity.StatusError{StatusCode: http.StatusTooManyRequests, Body: "slow down"})

	_, err := (&Perplexity{Client: mp}).Complete(context.Background(), "q")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
	assert.True(t, te.Transient())
}
