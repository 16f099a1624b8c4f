// Package cost converts backend token usage into dollars.
package cost

const (
	BackendClaude     = "claude"
	BackendGemini     = "gemini"
	BackendPerplexity = "perplexity"
)

// Rates holds the flat USD-per-token rate for each backend. Backends are
// priced differently per token; a single blended rate per backend keeps
// exploration costs reproducible from tokens_used alone.
type Rates struct {
	Backends map[string]float64 `yaml:"backends" mapstructure:"backends"`
}

// Calculator computes costs for model usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Backends missing
// from rates fall back to DefaultRates.
func NewCalculator(rates Rates) *Calculator {
	merged := DefaultRates()
	for name, rate := range rates.Backends {
		merged.Backends[name] = rate
	}
	return &Calculator{rates: merged}
}

// Rate returns the per-token rate for backend and whether it is known.
func (c *Calculator) Rate(backend string) (float64, bool) {
	r, ok := c.rates.Backends[backend]
	return r, ok
}

// Cost returns tokens × the backend's rate. Unknown backends cost 0.
func (c *Calculator) Cost(backend string, tokens int) float64 {
	rate, ok := c.rates.Backends[backend]
	if !ok {
		return 0
	}
	return float64(tokens) * rate
}

// DefaultRates returns the default per-token pricing.
func DefaultRates() Rates {
	return Rates{
		Backends: map[string]float64{
			BackendClaude:     0.000003,
			BackendGemini:     0.0000001,
			BackendPerplexity: 0.000001,
		},
	}
}
