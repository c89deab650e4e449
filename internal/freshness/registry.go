// Package freshness is the process-wide registry for last-success tracking
// per source, freshness-level classification (Fresh/Recent/Stale/Outdated),
// and SLA enforcement via an sla_violated flag.
package freshness

import (
	"sync"
	"time"

	"github.com/sawpanic/autotrader/internal/model"
)

// SourceState is one source's tracked freshness state.
type SourceState struct {
	LastSuccessAt   time.Time
	LastError       error
	UpdateFrequency time.Duration
	MaxAge          time.Duration // 0 disables SLA enforcement for this source
}

// Registry is a process-wide, mutex-guarded source freshness tracker. Tests
// construct their own instance rather than touching a package-level global.
type Registry struct {
	mu    sync.RWMutex
	state map[string]*SourceState
	now   func() time.Time
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{state: make(map[string]*SourceState), now: time.Now}
}

// Configure registers (or re-registers) a source's expected update
// frequency and optional SLA max-age.
func (r *Registry) Configure(source string, updateFrequency, maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.state[source]
	if !ok {
		st = &SourceState{}
		r.state[source] = st
	}
	st.UpdateFrequency = updateFrequency
	st.MaxAge = maxAge
}

// RecordSuccess marks a successful fetch from source at time t.
func (r *Registry) RecordSuccess(source string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.getOrCreateLocked(source)
	st.LastSuccessAt = t
	st.LastError = nil
}

// RecordError records a failed fetch without advancing LastSuccessAt.
func (r *Registry) RecordError(source string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.getOrCreateLocked(source)
	st.LastError = err
}

func (r *Registry) getOrCreateLocked(source string) *SourceState {
	st, ok := r.state[source]
	if !ok {
		st = &SourceState{}
		r.state[source] = st
	}
	return st
}

// Age returns now - LastSuccessAt. A source with no recorded success ever
// reports an effectively infinite age (math.MaxInt64 duration would overflow
// arithmetic elsewhere, so a very large but finite duration is used).
func (r *Registry) Age(source string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.state[source]
	if !ok || st.LastSuccessAt.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return r.now().Sub(st.LastSuccessAt)
}

// Level classifies a source's current data age against its configured
// update frequency: Fresh <= freq, Recent <= 2*freq, Stale <= 5*freq, else
// Outdated.
func (r *Registry) Level(source string) model.FreshnessLevel {
	r.mu.RLock()
	freq := time.Duration(0)
	if st, ok := r.state[source]; ok {
		freq = st.UpdateFrequency
	}
	r.mu.RUnlock()

	if freq <= 0 {
		return model.FreshnessOutdated
	}
	age := r.Age(source)
	switch {
	case age <= freq:
		return model.FreshnessFresh
	case age <= 2*freq:
		return model.FreshnessRecent
	case age <= 5*freq:
		return model.FreshnessStale
	default:
		return model.FreshnessOutdated
	}
}

// SLAViolated reports whether the source's data age has exceeded its
// configured max-age, the SLA enforcement critical sources opt into.
// Sources with MaxAge == 0 never violate.
func (r *Registry) SLAViolated(source string) bool {
	r.mu.RLock()
	st, ok := r.state[source]
	r.mu.RUnlock()
	if !ok || st.MaxAge <= 0 {
		return false
	}
	return r.Age(source) > st.MaxAge
}
