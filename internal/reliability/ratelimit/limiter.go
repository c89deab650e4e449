// Package ratelimit provides a token-bucket limiter on top of
// golang.org/x/time/rate. Each Limiter is a single bucket; callers keep one
// Limiter per source. Acquire reserves tokens with ReserveN, so concurrent
// waiters are served in reservation order.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when acquire could not get its tokens within
// the caller's timeout, including the timeout=0 case.
var ErrRateLimited = errors.New("rate limited")

// Limiter is a per-source token bucket.
type Limiter struct {
	mu    sync.Mutex
	inner *rate.Limiter
}

// New constructs a limiter with the given bucket capacity and refill rate.
func New(capacity int, refillPerSecond float64) *Limiter {
	return &Limiter{inner: rate.NewLimiter(rate.Limit(refillPerSecond), capacity)}
}

// Acquire blocks until n tokens are available, ctx is cancelled, or timeout
// elapses (whichever comes first). timeout=0 means "don't wait at all": if
// fewer than n tokens are immediately available, ErrRateLimited is returned
// without blocking.
func (l *Limiter) Acquire(ctx context.Context, n int, timeout time.Duration) error {
	l.mu.Lock()
	lim := l.inner
	l.mu.Unlock()

	if timeout <= 0 {
		if lim.AllowN(time.Now(), n) {
			return nil
		}
		return ErrRateLimited
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reservation := lim.ReserveN(time.Now(), n)
	if !reservation.OK() {
		return ErrRateLimited
	}
	delay := reservation.Delay()
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-waitCtx.Done():
		// Cooperative cancellation releases the reservation rather than
		// holding a token for a waiter that gave up.
		reservation.Cancel()
		return ErrRateLimited
	}
}

// SetRate updates the refill rate for all future acquisitions.
func (l *Limiter) SetRate(refillPerSecond float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inner.SetLimit(rate.Limit(refillPerSecond))
}
