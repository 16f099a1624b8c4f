package pipeline

import (
	"github.com/command-center/hive/internal/extract"
)

// ScoringPolicy assigns an exploration its predicted value. The weights are
// an explainable additive heuristic and can be replaced wholesale.
type ScoringPolicy struct {
	Base float64

	// ManyClaims is added when there are more than ManyClaimsMin claims.
	ManyClaims    float64
	ManyClaimsMin int

	HasEvidence float64

	// Calibrated is added for a confidence strictly between 0 and 1.
	Calibrated float64

	// Uncertainty is added when the uncertainty text is longer than
	// UncertaintyMinLen characters.
	Uncertainty       float64
	UncertaintyMinLen int

	HasFollowUps float64
}

// DefaultScoringPolicy returns the stock weights.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		Base:              0.5,
		ManyClaims:        0.10,
		ManyClaimsMin:     2,
		HasEvidence:       0.15,
		Calibrated:        0.05,
		Uncertainty:       0.10,
		UncertaintyMinLen: 20,
		HasFollowUps:      0.10,
	}
}

// Score returns the predicted value of r clamped to [0,1].
func (p ScoringPolicy) Score(r *ExplorationResult) float64 {
	v := p.Base
	if len(r.Claims) > p.ManyClaimsMin {
		v += p.ManyClaims
	}
	if len(r.Evidence) > 0 {
		v += p.HasEvidence
	}
	if r.Confidence > 0 && r.Confidence < 1 {
		v += p.Calibrated
	}
	if len([]rune(r.Uncertainty)) > p.UncertaintyMinLen {
		v += p.Uncertainty
	}
	if len(r.FollowUps) > 0 {
		v += p.HasFollowUps
	}
	return extract.Clamp(v, 0, 1)
}
