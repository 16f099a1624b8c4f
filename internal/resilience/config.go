package resilience

import (
	"time"

	"go.uber.org/zap"
)

// Guard bundles the breaker and watchdog that bound one run.
type Guard struct {
	Breaker  *Breaker
	Watchdog *Watchdog
}

// NewGuard converts config values into a fresh per-run Guard. Zero values
// fall back to DefaultFailureThreshold and DefaultMaxRuntime. Breaker state
// changes are logged on log, or on zap.L() when log is nil.
func NewGuard(failureThreshold int, maxRuntime time.Duration, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.L()
	}
	var b *Breaker
	b = NewBreaker(BreakerConfig{
		FailureThreshold: failureThreshold,
		ShouldTrip:       CountsAsFailure,
		OnStateChange: func(from, to CircuitState) {
			log.Warn("resilience: breaker state changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
				zap.Int("threshold", b.cfg.FailureThreshold),
				zap.Int("consecutive_failures", b.consecutiveFailures),
			)
		},
	})
	return &Guard{
		Breaker:  b,
		Watchdog: NewWatchdog(maxRuntime),
	}
}

// Check returns the breaker's trip error or the watchdog's runtime error,
// whichever applies first.
func (g *Guard) Check() error {
	if err := g.Breaker.Err(); err != nil {
		return err
	}
	return g.Watchdog.Check()
}
