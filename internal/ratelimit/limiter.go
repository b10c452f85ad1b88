// Package ratelimit gates outbound sends with a token bucket per destination.
//
// Capacity equals the per-minute setting and tokens refill at setting/60 per
// second. A fresh bucket admits its first send immediately, leaving
// capacity-1 tokens. A denied check consumes nothing and reports how long
// until one whole token is available.
package ratelimit

import (
	"context"
	"time"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Unlimited admits every request.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
