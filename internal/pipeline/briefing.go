package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/command-center/hive/internal/cost"
	"github.com/command-center/hive/internal/extract"
	"github.com/command-center/hive/internal/gateway"
	"github.com/command-center/hive/internal/model"
	"github.com/command-center/hive/internal/store"
)

const (
	// DefaultBriefingClaims caps the claims fed to the synthesis prompt.
	DefaultBriefingClaims = 30

	fallbackSummary = "Campaign complete."
)

// Synthesizer produces the single briefing of a campaign.
type Synthesizer struct {
	store     store.Store
	gw        *gateway.Gateway
	backend   string
	maxClaims int
}

// NewSynthesizer creates a Synthesizer that calls backend through gw.
func NewSynthesizer(st store.Store, gw *gateway.Gateway, backend string, maxClaims int) *Synthesizer {
	if backend == "" {
		backend = cost.BackendClaude
	}
	if maxClaims <= 0 {
		maxClaims = DefaultBriefingClaims
	}
	return &Synthesizer{store: st, gw: gw, backend: backend, maxClaims: maxClaims}
}

// Synthesize summarizes the campaign's explorations and persists the
// briefing with slack_sent false.
func (s *Synthesizer) Synthesize(ctx context.Context, c *model.Campaign) (*model.Briefing, error) {
	exps, err := s.store.ListExplorations(ctx, c.ID)
	if err != nil {
		return nil, eris.Wrap(err, "briefing: list explorations")
	}

	claims := gatherClaims(exps, s.maxClaims)
	resp, err := s.gw.Call(ctx, s.backend, briefingPrompt(c.RootQuestion, claims))
	if err != nil {
		return nil, eris.Wrap(err, "briefing: call model")
	}

	b := decodeBriefing(resp.Text)
	b.CampaignID = c.ID
	for i := range exps {
		if exps[i].Valuable() {
			b.ValuableCount++
		}
	}

	totals, err := s.store.GetCampaign(ctx, c.ID)
	if err != nil {
		return nil, eris.Wrap(err, "briefing: read totals")
	}
	b.TotalExplorations = totals.ExplorationCount
	b.TotalCost = totals.BudgetSpent

	if err := s.store.CreateBriefing(ctx, b); err != nil {
		return nil, eris.Wrap(err, "briefing: persist")
	}

	zap.L().Info("briefing: synthesized",
		zap.String("campaign_id", c.ID),
		zap.Int("claims", len(claims)),
		zap.Int("valuable", b.ValuableCount),
		zap.Float64("cost_usd", b.TotalCost),
	)
	return b, nil
}

func decodeBriefing(text string) *model.Briefing {
	obj := extract.Object(text)
	summary := strings.TrimSpace(extract.String(obj["summary"]))
	if summary == "" {
		summary = fallbackSummary
	}
	return &model.Briefing{
		Summary:     summary,
		KeyFindings: extract.Strings(obj["key_findings"]),
		Gaps:        extract.Strings(obj["gaps"]),
		NextActions: extract.Strings(obj["next_actions"]),
	}
}

// gatherClaims returns up to limit claims in exploration order, dropping
// claims that repeat an earlier one after NFKC and case folding.
func gatherClaims(exps []model.Exploration, limit int) []string {
	fold := cases.Fold()
	seen := make(map[string]struct{})
	out := make([]string, 0, limit)

	for i := range exps {
		for _, claim := range exps[i].Claims {
			if len(out) == limit {
				return out
			}
			key := strings.Join(strings.Fields(fold.String(norm.NFKC.String(claim))), " ")
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, claim)
		}
	}
	return out
}
