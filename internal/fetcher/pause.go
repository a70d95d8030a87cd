package fetcher

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pauser inserts the politeness delay between page requests.
type Pauser interface {
	Pause(ctx context.Context)
}

// NoPause never waits. Tests and single-page runs use it.
type NoPause struct{}

// Pause returns immediately.
func (NoPause) Pause(context.Context) {}

// RandomPause waits for a duration drawn uniformly from [Min, Max].
type RandomPause struct {
	min time.Duration
	max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomPause builds a RandomPause. Bounds are swapped when inverted.
func NewRandomPause(minDelay, maxDelay time.Duration) *RandomPause {
	if maxDelay < minDelay {
		minDelay, maxDelay = maxDelay, minDelay
	}
	return &RandomPause{
		min: minDelay,
		max: maxDelay,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // jitter only
	}
}

// Next draws the next delay.
func (p *RandomPause) Next() time.Duration {
	span := p.max - p.min
	if span <= 0 {
		return p.min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min + time.Duration(p.rnd.Int63n(int64(span)+1))
}

// Pause blocks for Next() or until ctx is done.
func (p *RandomPause) Pause(ctx context.Context) {
	delay := p.Next()
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
