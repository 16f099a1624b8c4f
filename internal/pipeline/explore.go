package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/command-center/hive/internal/cost"
	"github.com/command-center/hive/internal/extract"
	"github.com/command-center/hive/internal/gateway"
	"github.com/command-center/hive/internal/model"
)

// DefaultConfidence is used when the model omits a usable confidence.
const DefaultConfidence = 0.5

// ExplorationResult is one decoded and scored research answer.
type ExplorationResult struct {
	Question       string
	Backend        string
	Claims         []string
	Evidence       []model.Evidence
	Confidence     float64
	Uncertainty    string
	FollowUps      []string
	Raw            string
	Tokens         int
	Cost           float64
	PredictedValue float64
}

// Exploration converts r into an unsaved exploration for campaignID.
func (r *ExplorationResult) Exploration(campaignID string) *model.Exploration {
	return &model.Exploration{
		CampaignID:     campaignID,
		Question:       r.Question,
		SourceModel:    r.Backend,
		Claims:         r.Claims,
		Evidence:       r.Evidence,
		Confidence:     r.Confidence,
		Uncertainty:    r.Uncertainty,
		FollowUps:      r.FollowUps,
		RawResponse:    r.Raw,
		TokensUsed:     r.Tokens,
		CostDollars:    r.Cost,
		PredictedValue: r.PredictedValue,
		CurationStatus: model.InitialCuration(r.PredictedValue),
	}
}

// decodeExploration decodes model text with defaults for anything absent
// or malformed.
func decodeExploration(text string) ExplorationResult {
	obj := extract.Object(text)

	records := extract.Records(obj["evidence"], extract.MaxRecords)
	evidence := make([]model.Evidence, len(records))
	for i, rec := range records {
		evidence[i] = model.Evidence(rec)
	}

	return ExplorationResult{
		Claims:      extract.Strings(obj["claims"]),
		Evidence:    evidence,
		Confidence:  extract.Clamp(extract.Number(obj["confidence"], DefaultConfidence), 0, 1),
		Uncertainty: extract.String(obj["uncertainty"]),
		FollowUps:   extract.Strings(obj["follow_ups"]),
		Raw:         text,
	}
}

// Explorer answers one sub-question on one backend.
type Explorer struct {
	gw     *gateway.Gateway
	calc   *cost.Calculator
	policy ScoringPolicy
}

// NewExplorer creates an Explorer.
func NewExplorer(gw *gateway.Gateway, calc *cost.Calculator, policy ScoringPolicy) *Explorer {
	return &Explorer{gw: gw, calc: calc, policy: policy}
}

// Explore issues one research call and returns the decoded, scored and
// priced result. It has no side effects beyond the gateway call.
func (e *Explorer) Explore(ctx context.Context, question, background, backend string) (*ExplorationResult, error) {
	resp, err := e.gw.Call(ctx, backend, explorePrompt(question, background))
	if err != nil {
		return nil, eris.Wrapf(err, "explore: %s", backend)
	}

	r := decodeExploration(resp.Text)
	r.Question = question
	r.Backend = backend
	r.Tokens = resp.Tokens
	r.Cost = e.calc.Cost(backend, resp.Tokens)
	r.PredictedValue = e.policy.Score(&r)
	return &r, nil
}
