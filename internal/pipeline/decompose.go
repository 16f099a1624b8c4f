package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/command-center/hive/internal/cost"
	"github.com/command-center/hive/internal/extract"
	"github.com/command-center/hive/internal/gateway"
)

// DefaultMaxSubQuestions bounds the decomposition.
const DefaultMaxSubQuestions = 5

// Decomposer splits a root question into independent sub-questions.
type Decomposer struct {
	gw      *gateway.Gateway
	backend string
	max     int
}

// NewDecomposer creates a Decomposer that calls backend through gw.
func NewDecomposer(gw *gateway.Gateway, backend string, maxSubQuestions int) *Decomposer {
	if backend == "" {
		backend = cost.BackendClaude
	}
	if maxSubQuestions <= 0 {
		maxSubQuestions = DefaultMaxSubQuestions
	}
	return &Decomposer{gw: gw, backend: backend, max: maxSubQuestions}
}

// Backend returns the backend used for decomposition.
func (d *Decomposer) Backend() string {
	return d.backend
}

// Decompose returns 1 to max sub-questions. Output with no usable array
// falls back to the root question alone; only a gateway failure is an
// error.
func (d *Decomposer) Decompose(ctx context.Context, question, background string) ([]string, error) {
	resp, err := d.gw.Call(ctx, d.backend, decomposePrompt(question, background, d.max))
	if err != nil {
		return nil, eris.Wrap(err, "decompose: call model")
	}

	subs := extract.Array(resp.Text)
	if len(subs) == 0 {
		zap.L().Warn("decompose: no sub-questions in output, using root question",
			zap.String("backend", d.backend),
		)
		return []string{question}, nil
	}
	if len(subs) > d.max {
		subs = subs[:d.max]
	}

	zap.L().Debug("decompose: complete",
		zap.Int("sub_questions", len(subs)),
		zap.Int("tokens", resp.Tokens),
	)
	return subs, nil
}
