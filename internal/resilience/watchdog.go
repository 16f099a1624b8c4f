package resilience

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMaxRuntime is the wall-clock ceiling for a single campaign run.
const DefaultMaxRuntime = 10 * time.Hour

// ErrRuntimeExceeded matches any RuntimeError via errors.Is.
var ErrRuntimeExceeded = errors.New("runtime limit reached")

// RuntimeError reports the ceiling a run exceeded.
type RuntimeError struct {
	Limit   time.Duration
	Elapsed time.Duration
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime limit reached (%s)", e.Limit)
}

// Is makes errors.Is(err, ErrRuntimeExceeded) true.
func (e *RuntimeError) Is(target error) bool {
	return target == ErrRuntimeExceeded
}

// Watchdog tracks elapsed wall-clock time since a run started. It is
// polled before each unit of work rather than interrupting work in flight;
// per-call deadlines bound individual calls.
type Watchdog struct {
	start time.Time
	limit time.Duration

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewWatchdog starts a watchdog with the given ceiling. A non-positive
// limit uses DefaultMaxRuntime.
func NewWatchdog(limit time.Duration) *Watchdog {
	return newWatchdogAt(limit, time.Now)
}

func newWatchdogAt(limit time.Duration, now func() time.Time) *Watchdog {
	if limit <= 0 {
		limit = DefaultMaxRuntime
	}
	return &Watchdog{
		start:   now(),
		limit:   limit,
		nowFunc: now,
	}
}

// Elapsed returns the time since the watchdog started.
func (w *Watchdog) Elapsed() time.Duration {
	return w.nowFunc().Sub(w.start)
}

// Limit returns the configured ceiling.
func (w *Watchdog) Limit() time.Duration {
	return w.limit
}

// Check returns a *RuntimeError once elapsed time exceeds the ceiling.
func (w *Watchdog) Check() error {
	if elapsed := w.Elapsed(); elapsed > w.limit {
		return &RuntimeError{Limit: w.limit, Elapsed: elapsed}
	}
	return nil
}
