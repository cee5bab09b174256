package infra

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff produces jittered exponential delays for the reconnect loops
// (RabbitMQ links, database polling after failures). Safe for concurrent
// use.
type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     float64 // fraction of the delay randomized in each direction
	attempts   int
	mu         sync.Mutex
}

// NewBackoff builds a schedule starting at min and multiplying up to max.
// jitter spreads each delay by ±that fraction, so a fleet of units sharing
// an outage does not reconnect in lockstep; zero makes delays exact.
func NewBackoff(min, max time.Duration, mult, jitter float64) *Backoff {
	return &Backoff{
		minDelay:   min,
		maxDelay:   max,
		multiplier: mult,
		jitter:     jitter,
	}
}

// Next returns the delay to wait before the upcoming attempt and advances
// the schedule.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := float64(b.minDelay) * math.Pow(b.multiplier, float64(b.attempts))
	if d > float64(b.maxDelay) {
		d = float64(b.maxDelay)
	}
	b.attempts++

	if b.jitter > 0 {
		d *= 1 + b.jitter*(2*rand.Float64()-1)
	}

	wait := time.Duration(d)
	if wait < b.minDelay {
		wait = b.minDelay
	}
	return wait
}

// Reset returns the schedule to the minimum delay after a success.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

// Attempts reports how many delays were handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
