package normalizer

import (
	"context"
	"time"
)

const (
	defaultMaxAttempts    = 3
	defaultAttemptTimeout = 30 * time.Second
)

// RetryPolicy bounds the attempts made for one completion.
// Attempts are back to back; there is no backoff.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = defaultAttemptTimeout
	}
	return p
}

// ShouldRetry reports whether another attempt is allowed after attempt failed.
func (p RetryPolicy) ShouldRetry(ctx context.Context, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return ctx.Err() == nil
}
