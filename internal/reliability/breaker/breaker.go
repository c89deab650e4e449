// Package breaker wraps sony/gobreaker with a per-source contract: fail
// immediately when Open, count only transient failure kinds, one probe in
// HalfOpen.
package breaker

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker"

	"github.com/sawpanic/autotrader/internal/model"
)

// ErrCircuitOpen is returned immediately when the breaker is Open.
var ErrCircuitOpen = errors.New("circuit open")

// FailureKind enumerates the call outcomes that count toward tripping the
// breaker. Business-level 4xx responses are deliberately excluded - they
// are not failures.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureTimeout
	FailureRateLimited
	FailureTransport
	FailureHTTP5xx
)

// Classifier reports whether err should count as a breaker failure, and
// whether it's eligible at all (FailureNone => not eligible, don't count).
type Classifier func(err error) FailureKind

// Config mirrors config.BreakerConfig, decoupled so this package has no
// dependency on internal/config.
type Config struct {
	FailureThreshold int
	OpenDuration     time.Duration
}

// Breaker is a per-source circuit breaker.
type Breaker struct {
	name       string
	cb         *gobreaker.CircuitBreaker
	classify   Classifier
}

// New constructs a breaker for a single source name.
func New(name string, cfg Config, classify Classifier) *Breaker {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one probe admitted in half-open,
		Interval:    0, // counts never reset on a timer; only a trip/close transition resets them
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			// Business-level 4xx (and any error the classifier doesn't
			// recognize as transient) never counts toward tripping.
			return err == nil || classify(err) == FailureNone
		},
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(st), classify: classify}
}

// Call executes fn through the breaker. If the breaker is Open, fn is never
// invoked and ErrCircuitOpen is returned immediately.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// State reports the current FSM position for observability.
func (b *Breaker) State() model.BreakerState {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return model.BreakerOpen
	case gobreaker.StateHalfOpen:
		return model.BreakerHalfOpen
	default:
		return model.BreakerClosed
	}
}
