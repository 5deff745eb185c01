// Package energy implements the leaky-bucket energy regulator: the sole
// owner of the process-wide scalar E that gates how much cognitive work
// the loop is allowed to do per iteration.
package energy

import (
	"context"
	"sync"
	"time"
)

// Status is the derived five-valued tag computed from E.
type Status string

const (
	StatusHigh     Status = "high"
	StatusMedium   Status = "medium"
	StatusLow      Status = "low"
	StatusDepleted Status = "depleted"
	StatusUrgent   Status = "urgent"
)

const (
	// Min and Max bound E. Sleep caps E at Max and Consume floors it at
	// Min; Consume does not cap at Max, so a negative amount can raise E
	// above Max.
	Min = -50.0
	Max = 100.0

	// deepRecoveryThreshold marks "very deep negative" per spec: at or
	// below Min, await_level forces a full recovery regardless of target.
	deepRecoveryThreshold = Min
)

// Regulator owns E and serialises every read/write through its mutex.
type Regulator struct {
	mu   sync.Mutex
	e    float64
	rate float64 // replenishment rate R, units/second
}

// New creates a Regulator starting at Max with the given replenishment
// rate (units per second). A non-positive rate is replaced with 1.0.
func New(rate float64) *Regulator {
	if rate <= 0 {
		rate = 1.0
	}
	return &Regulator{e: Max, rate: rate}
}

// Current returns E.
func (r *Regulator) Current() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.e
}

// Percentage returns max(0, E) rounded to an integer, for display.
func (r *Regulator) Percentage() int {
	r.mu.Lock()
	e := r.e
	r.mu.Unlock()
	if e < 0 {
		return 0
	}
	return int(e + 0.5)
}

// Consume sets E <- max(Min, E - amount). amount may be negative; this is
// intentional (see spec's Open Question on signed energy cost) and is not
// "fixed" to a non-negative-only charge.
func (r *Regulator) Consume(amount float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.e = max(Min, r.e-amount)
}

// Sleep suspends the caller for seconds (or until ctx is cancelled), then
// replenishes E by seconds*R, capped at Max.
func (r *Regulator) Sleep(ctx context.Context, seconds float64) {
	if seconds > 0 {
		timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	r.mu.Lock()
	r.e = min(Max, r.e+seconds*r.rate)
	r.mu.Unlock()
}

// AwaitLevel blocks until E >= target, or returns immediately if already
// satisfied. If E is at or below the deep-recovery threshold, it forces a
// full recovery to Max regardless of the requested target.
func (r *Regulator) AwaitLevel(ctx context.Context, target float64) {
	r.mu.Lock()
	e := r.e
	rate := r.rate
	r.mu.Unlock()

	if e >= target {
		return
	}
	if e <= deepRecoveryThreshold {
		deficit := Max - e
		r.Sleep(ctx, deficit/rate)
		return
	}
	deficit := target - e
	seconds := deficit / rate
	if seconds < 0 {
		seconds = 0
	}
	r.Sleep(ctx, ceilSeconds(seconds))
}

// Status returns the five-valued status tag for the current E.
func (r *Regulator) Status() Status {
	e := r.Current()
	switch {
	case e > 50:
		return StatusHigh
	case e > 20:
		return StatusMedium
	case e > 0:
		return StatusLow
	case e == 0:
		return StatusDepleted
	default:
		return StatusUrgent
	}
}

func ceilSeconds(s float64) float64 {
	i := float64(int64(s))
	if i < s {
		return i + 1
	}
	return i
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
