package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_TimeoutZeroReturnsImmediately(t *testing.T) {
	l := New(2, 1) // capacity 2, 1/s refill

	assert.NoError(t, l.Acquire(context.Background(), 2, 0))
	err := l.Acquire(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestLimiter_WaitsForRefill(t *testing.T) {
	l := New(1, 20) // fast refill for test speed

	assert.NoError(t, l.Acquire(context.Background(), 1, 0))
	start := time.Now()
	err := l.Acquire(context.Background(), 1, 200*time.Millisecond)
	assert.NoError(t, err)
	assert.True(t, time.Since(start) > 0)
}

func TestLimiter_ContextCancelReleasesReservation(t *testing.T) {
	l := New(1, 0.1) // very slow refill

	assert.NoError(t, l.Acquire(context.Background(), 1, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx, 1, time.Second)
	assert.ErrorIs(t, err, ErrRateLimited)
}
