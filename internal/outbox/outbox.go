// Package outbox implements the durable alert queue and dispatcher: entries
// are enqueued synchronously from the alert engine, then drained by a
// cooperative worker pool with exponential backoff, at-least-once delivery,
// and crash recovery. Shares the repository-interface-plus-backends shape
// used by the feature store, over a poll-and-run job loop.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sawpanic/autotrader/internal/alert"
)

// State is an outbox entry's lifecycle position.
type State string

const (
	StatePending    State = "pending"
	StateInFlight   State = "in_flight"
	StateDelivered  State = "delivered"
	StateFailed     State = "failed"
	StateSuppressed State = "suppressed"
)

// Entry is one durable alert awaiting (or having completed) delivery.
type Entry struct {
	AlertID         string
	RuleID          string
	Token           string
	Severity        string
	RenderedMessage string
	Channels        []string
	EnqueuedAt      time.Time
	State           State
	Attempts        int
	DedupeKey       string
	NextAttemptAt   time.Time
}

// Store is the durable persistence contract for outbox entries. Memory and
// Postgres backends implement it identically, mirroring internal/feature's
// Store seam.
type Store interface {
	Enqueue(ctx context.Context, e Entry) error
	Due(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	// Undelivered lists Pending/InFlight entries regardless of their
	// next_attempt_at, for the escalation sweep.
	Undelivered(ctx context.Context, limit int) ([]Entry, error)
	UpdateState(ctx context.Context, alertID string, state State, attempts int, nextAttemptAt time.Time) error
	FindByDedupeKey(ctx context.Context, key string) (*Entry, error)
	// RevertStaleInFlight reverts InFlight entries older than grace back to
	// Pending, once, as a crash-recovery sweep.
	RevertStaleInFlight(ctx context.Context, now time.Time, grace time.Duration) (int, error)
}

// Channel delivers one entry to an external system. Concrete channel
// implementations (webhook, email, pager) are external collaborators;
// Channel is the seam they implement.
type Channel interface {
	Send(ctx context.Context, e Entry) error
}

// Config configures backoff and attempt limits (mirrors config.OutboxConfig,
// decoupled so this package has no dependency on internal/config).
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Dispatcher drains Store: each RunOnce call delivers every due entry on a
// goroutine of its own, and there is no long-lived worker per channel type.
// Failed entries are retried with exponential backoff until MaxAttempts is
// exhausted.
type Dispatcher struct {
	store    Store
	channels map[string]Channel
	cfg      Config

	mu     sync.Mutex
	locked map[string]bool // dedupe_key -> currently being processed (serializes per-key delivery)
}

// NewDispatcher constructs a dispatcher over a store and named channels.
func NewDispatcher(store Store, channels map[string]Channel, cfg Config) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Hour
	}
	return &Dispatcher{
		store:    store,
		channels: channels,
		cfg:      cfg,
		locked:   make(map[string]bool),
	}
}

// Enqueue persists a freshly fired alert as a Pending entry, or Suppressed
// if the alert engine already marked it so - suppressed fires still pass
// through the outbox purely for analytics/backtest counts.
func (d *Dispatcher) Enqueue(ctx context.Context, f alert.Fired) error {
	state := StatePending
	if f.Status == alert.StatusSuppressed {
		state = StateSuppressed
	}
	return d.store.Enqueue(ctx, Entry{
		AlertID:         f.ID,
		RuleID:          f.RuleID,
		Token:           f.Token,
		Severity:        f.Severity,
		RenderedMessage: f.Message,
		Channels:        f.Channels,
		EnqueuedAt:      f.Timestamp,
		State:           state,
		DedupeKey:       f.DedupeKey,
		NextAttemptAt:   f.Timestamp,
	})
}

// RunOnce pulls every entry due at now and attempts delivery once per
// channel the entry targets, advancing state per the delivery contract.
// Entries sharing a dedupe_key never run concurrently: only the first of
// them is delivered and the others are left due for a later call. Entries
// with distinct keys run in parallel, one goroutine per entry.
func (d *Dispatcher) RunOnce(ctx context.Context, now time.Time, batchSize int) error {
	due, err := d.store.Due(ctx, now, batchSize)
	if err != nil {
		return fmt.Errorf("outbox: list due entries: %w", err)
	}

	var wg sync.WaitGroup
	for _, e := range due {
		if !d.tryLock(e.DedupeKey) {
			continue // another goroutine in this batch owns this key; picked up next round
		}
		wg.Add(1)
		go func(e Entry) {
			defer wg.Done()
			defer d.unlock(e.DedupeKey)
			d.deliver(ctx, e, now)
		}(e)
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) tryLock(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked[key] {
		return false
	}
	d.locked[key] = true
	return true
}

func (d *Dispatcher) unlock(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.locked, key)
}

func (d *Dispatcher) deliver(ctx context.Context, e Entry, now time.Time) {
	ok := true
	for _, chName := range e.Channels {
		ch, known := d.channels[chName]
		if !known {
			ok = false
			continue
		}
		if err := ch.Send(ctx, e); err != nil {
			ok = false
		}
	}

	attempts := e.Attempts + 1
	if ok {
		_ = d.store.UpdateState(ctx, e.AlertID, StateDelivered, attempts, time.Time{})
		return
	}

	if attempts >= d.cfg.MaxAttempts {
		_ = d.store.UpdateState(ctx, e.AlertID, StateFailed, attempts, time.Time{})
		return
	}

	backoff := time.Duration(float64(d.cfg.BaseBackoff) * math.Pow(2, float64(attempts)))
	if backoff > d.cfg.MaxBackoff {
		backoff = d.cfg.MaxBackoff
	}
	_ = d.store.UpdateState(ctx, e.AlertID, StateInFlight, attempts, now.Add(backoff))
}

// RecoverCrashed reverts InFlight entries stuck past grace back to Pending,
// exactly once each.
func (d *Dispatcher) RecoverCrashed(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	return d.store.RevertStaleInFlight(ctx, now, grace)
}

// DispatchEscalations runs one escalation sweep: entries still undelivered
// are handed to the alert engine's escalation check, and every due step is
// delivered to the step's channels. The original entry is never touched -
// escalation adds deliveries, it does not replace the normal retry path.
func (d *Dispatcher) DispatchEscalations(ctx context.Context, eng *alert.Engine, now time.Time, limit int) (int, error) {
	entries, err := d.store.Undelivered(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox: list undelivered entries: %w", err)
	}

	byID := make(map[string]Entry, len(entries))
	pending := make([]alert.Fired, 0, len(entries))
	for _, e := range entries {
		byID[e.AlertID] = e
		pending = append(pending, alert.Fired{
			ID:        e.AlertID,
			RuleID:    e.RuleID,
			Token:     e.Token,
			Severity:  e.Severity,
			Timestamp: e.EnqueuedAt,
			DedupeKey: e.DedupeKey,
			Message:   e.RenderedMessage,
			Channels:  e.Channels,
			Status:    alert.Status(e.State), // state strings mirror alert.Status values
		})
	}

	dispatches := eng.CheckEscalations(pending, now)
	for _, esc := range dispatches {
		entry, ok := byID[esc.Fired.ID]
		if !ok {
			continue
		}
		for _, chName := range esc.Channels {
			ch, known := d.channels[chName]
			if !known {
				continue
			}
			_ = ch.Send(ctx, entry)
		}
	}
	return len(dispatches), nil
}

// ErrUnknownChannel names a channel the dispatcher has no implementation
// for. The dispatcher does not return it: delivery counts an unknown channel
// as a failed send, and the escalation sweep skips it.
var ErrUnknownChannel = errors.New("outbox: unknown channel")
