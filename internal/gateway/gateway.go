// Package gateway routes prompts to language-model backends through a single
// call contract.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/command-center/hive/internal/resilience"
)

// DefaultFallbackTokens is charged when a backend does not report usage.
const DefaultFallbackTokens = 1000

// DefaultCallTimeout bounds a single backend call.
const DefaultCallTimeout = 2 * time.Minute

// Response is the raw text and token usage of one backend call.
type Response struct {
	Text   string
	Tokens int
	Model  string
}

// Backend is one language-model provider.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// TransportError is returned for any failed backend call.
type TransportError struct {
	Backend    string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway: %s returned status %d: %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway: %s: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure looks like a temporary backend
// condition.
func (e *TransportError) Transient() bool {
	if resilience.IsTransientHTTPStatus(e.StatusCode) {
		return true
	}
	return errors.Is(e.Err, context.DeadlineExceeded) || resilience.IsTransient(e.Err)
}

// classify marks temporary failures with resilience.TransientError so the
// event log can tell outages from bad requests. errors.As still reaches the
// TransportError underneath.
func classify(te *TransportError) error {
	if te.Transient() {
		return resilience.NewTransientError(te, te.StatusCode)
	}
	return te
}

// ErrUnknownBackend is wrapped by the TransportError returned for an
// unregistered backend id.
var ErrUnknownBackend = errors.New("unknown backend")

// Option configures a Gateway.
type Option func(*Gateway)

// WithCallTimeout sets the per-call deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithFallbackTokens sets the token estimate used when usage is missing.
func WithFallbackTokens(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.fallbackTokens = n
		}
	}
}

// Gateway dispatches calls to registered backends. It never retries.
type Gateway struct {
	backends       map[string]Backend
	timeout        time.Duration
	fallbackTokens int
}

// New creates a Gateway over the given backends, keyed by Name().
func New(backends []Backend, opts ...Option) *Gateway {
	g := &Gateway{
		backends:       make(map[string]Backend, len(backends)),
		timeout:        DefaultCallTimeout,
		fallbackTokens: DefaultFallbackTokens,
	}
	for _, b := range backends {
		g.backends[b.Name()] = b
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Has reports whether id names a registered backend.
func (g *Gateway) Has(id string) bool {
	_, ok := g.backends[id]
	return ok
}

// Backends returns the registered backend ids in sorted order.
func (g *Gateway) Backends() []string {
	ids := make([]string, 0, len(g.backends))
	for id := range g.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Call sends prompt to backend id and returns its text and token count.
func (g *Gateway) Call(ctx context.Context, id, prompt string) (*Response, error) {
	b, ok := g.backends[id]
	if !ok {
		return nil, &TransportError{Backend: id, Err: ErrUnknownBackend}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := b.Complete(callCtx, prompt)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			te = &TransportError{Backend: id, Err: err}
		}
		return nil, classify(te)
	}
	if resp == nil {
		return nil, &TransportError{Backend: id, Err: eris.New("empty response")}
	}

	if resp.Tokens <= 0 {
		resp.Tokens = g.fallbackTokens
	}

	zap.L().Debug("gateway: call complete",
		zap.String("backend", id),
		zap.String("model", resp.Model),
		zap.Int("tokens", resp.Tokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}
