package engine

import (
	"time"
)

// Timer is a stopwatch backed by the monotonic clock reading that
// time.Now carries, so wall clock adjustments do not skew it.
type Timer struct {
	start   time.Time
	started bool
}

// Start records the current instant, replacing any earlier start.
func (t *Timer) Start() {
	t.start = time.Now()
	t.started = true
}

// Stop returns the nanoseconds elapsed since the last Start.
func (t *Timer) Stop() (int64, error) {
	if !t.started {
		return 0, ErrNotStarted
	}
	return time.Since(t.start).Nanoseconds(), nil
}
