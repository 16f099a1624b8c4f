// Package resilience provides the run-scoped failure breaker and runtime
// watchdog that bound a campaign run.
package resilience

import (
	"errors"
	"fmt"
	"sync"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state. Work is dispatched.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the consecutive-failure threshold was reached. A run
	// breaker never closes again; the run aborts.
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitTripped matches any TripError via errors.Is.
var ErrCircuitTripped = errors.New("circuit breaker triggered")

// TripError reports how many consecutive failures tripped the breaker.
type TripError struct {
	Failures int
}

func (e *TripError) Error() string {
	return fmt.Sprintf("circuit breaker triggered after %d consecutive failures", e.Failures)
}

// Is makes errors.Is(err, ErrCircuitTripped) true.
func (e *TripError) Is(target error) bool {
	return target == ErrCircuitTripped
}

// DefaultFailureThreshold is the number of consecutive failures that trips
// a run.
const DefaultFailureThreshold = 3

// BreakerConfig controls breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// breaker opens. Default: 3.
	FailureThreshold int

	// ShouldTrip optionally filters which errors count as failures. If nil,
	// every non-nil error counts.
	ShouldTrip func(err error) bool

	// OnStateChange is called with the breaker lock held when the state
	// changes.
	OnStateChange func(from, to CircuitState)
}

// Breaker counts consecutive unit-of-work failures across all workers of a
// single run. A success resets the count; reaching the threshold opens the
// breaker permanently.
type Breaker struct {
	cfg   BreakerConfig
	mu    sync.Mutex
	state CircuitState

	consecutiveFailures int
}

// NewBreaker creates a breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	return &Breaker{
		cfg:   cfg,
		state: CircuitClosed,
	}
}

// Record feeds one unit-of-work outcome into the breaker. It returns the
// consecutive-failure count after the update and a *TripError once the
// threshold is reached. Errors rejected by ShouldTrip leave the count as is.
func (b *Breaker) Record(err error) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	shouldTrip := b.cfg.ShouldTrip
	if shouldTrip == nil {
		shouldTrip = func(e error) bool { return e != nil }
	}

	if err == nil {
		if b.state == CircuitClosed {
			b.consecutiveFailures = 0
		}
		return b.consecutiveFailures, b.tripErr()
	}
	if !shouldTrip(err) {
		return b.consecutiveFailures, b.tripErr()
	}

	b.consecutiveFailures++
	if b.state == CircuitClosed && b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.transition(CircuitOpen)
	}
	return b.consecutiveFailures, b.tripErr()
}

// Success records a successful unit of work.
func (b *Breaker) Success() {
	_, _ = b.Record(nil)
}

// Failure records a failed unit of work.
func (b *Breaker) Failure(err error) (int, error) {
	if err == nil {
		err = errors.New("unit of work failed")
	}
	return b.Record(err)
}

// Err returns a *TripError when the breaker is open, otherwise nil.
func (b *Breaker) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripErr()
}

func (b *Breaker) tripErr() error {
	if b.state != CircuitOpen {
		return nil
	}
	return &TripError{Failures: b.consecutiveFailures}
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
