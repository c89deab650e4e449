package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// entry tracks one dedupe key's most recent firing, so Evaluate can tell a
// fresh alert from a suppressed repeat within the same window.
type entry struct {
	fired      Fired
	firstFired time.Time
	status     Status
}

// Engine evaluates candidates against a compiled rule set, applying
// suppression/dedupe and tracking escalation state. It never dispatches
// itself - Evaluate returns the alerts a caller (the scan orchestrator, C8)
// hands to the outbox (C7).
type Engine struct {
	mu    sync.Mutex
	rules map[string]*Rule
	seen  map[string]*entry // dedupe_key -> entry
}

// NewEngine constructs an engine over a compiled rule set.
func NewEngine(rules []*Rule) *Engine {
	byID := make(map[string]*Rule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}
	return &Engine{rules: byID, seen: make(map[string]*entry)}
}

// Evaluate runs every enabled rule against candidate, returning one Fired
// per rule whose condition is true - each either newly Pending or marked
// Suppressed if a Delivered/Pending entry with the same dedupe key already
// exists.
func (e *Engine) Evaluate(candidate Candidate) []Fired {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []Fired
	vars := templateVars(candidate)

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		if !rule.Condition.Evaluate(candidate.Metrics) {
			continue
		}

		key := dedupeKey(rule.ID, candidate.Token, candidate.Timestamp, rule.SuppressionDuration)
		f := Fired{
			ID:        uuid.NewString(),
			RuleID:    rule.ID,
			Token:     candidate.Token,
			Severity:  rule.Severity,
			Timestamp: candidate.Timestamp,
			DedupeKey: key,
			Message:   render(rule.Template, vars),
			Channels:  rule.Channels,
			Status:    StatusPending,
		}

		if existing, ok := e.seen[key]; ok && (existing.status == StatusPending || existing.status == StatusDelivered || existing.status == StatusInFlight) {
			f.Status = StatusSuppressed
			fired = append(fired, f)
			continue
		}

		e.seen[key] = &entry{fired: f, firstFired: candidate.Timestamp, status: StatusPending}
		fired = append(fired, f)
	}

	return fired
}

// MarkDelivered/MarkFailed update an entry's tracked status, e.g. once the
// outbox dispatcher reports the outcome - needed so later Evaluate calls
// know whether to suppress a repeat.
func (e *Engine) MarkDelivered(dedupeKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.seen[dedupeKey]; ok {
		ent.status = StatusDelivered
	}
}

func (e *Engine) MarkFailed(dedupeKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.seen[dedupeKey]; ok {
		ent.status = StatusFailed
	}
}

// EscalationDispatch is one additional delivery an escalation step requires,
// on top of (never replacing) the original alert entry.
type EscalationDispatch struct {
	Fired    Fired
	Channels []string
	Step     int
}

// CheckEscalations scans alerts still Pending/InFlight and returns the
// escalation-step dispatches due at `now`. pending must be the caller's
// live view of undelivered alerts
// (typically sourced from the outbox); this engine does not itself track
// delivery latency beyond the dedupe map.
func (e *Engine) CheckEscalations(pending []Fired, now time.Time) []EscalationDispatch {
	e.mu.Lock()
	rules := make(map[string]*Rule, len(e.rules))
	for id, r := range e.rules {
		rules[id] = r
	}
	e.mu.Unlock()

	var dispatches []EscalationDispatch
	for _, f := range pending {
		if f.Status != StatusPending && f.Status != StatusInFlight {
			continue
		}
		rule, ok := rules[f.RuleID]
		if !ok || rule.Escalation == nil {
			continue
		}
		elapsed := now.Sub(f.Timestamp)
		for i, step := range rule.Escalation.Steps {
			if elapsed >= step.After {
				dispatches = append(dispatches, EscalationDispatch{Fired: f, Channels: step.Channels, Step: i})
			}
		}
	}
	return dispatches
}
