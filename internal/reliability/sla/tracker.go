// Package sla tracks per-source latency and availability and classifies
// health. Percentiles are read by nearest rank from the sorted raw
// latencies in the window (stdlib sort), with no bucketing and no HDR
// histogram library (see DESIGN.md).
package sla

import (
	"sort"
	"sync"
	"time"

	"github.com/sawpanic/autotrader/internal/model"
)

type observation struct {
	at      time.Time
	latency time.Duration
	success bool
}

// Tracker records observations for one source and exports rolling stats
// over a fixed time window.
type Tracker struct {
	mu      sync.Mutex
	window  time.Duration
	samples []observation
}

// New constructs a tracker with the given rolling-window length, defaulting
// to 5 minutes.
func New(window time.Duration) *Tracker {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Tracker{window: window}
}

// Record appends one request outcome.
func (t *Tracker) Record(start, end time.Time, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, observation{at: end, latency: end.Sub(start), success: success})
	t.evictLocked(end)
}

func (t *Tracker) evictLocked(now time.Time) {
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(t.samples) && t.samples[i].at.Before(cutoff) {
		i++
	}
	t.samples = t.samples[i:]
}

// Snapshot computes the current SLA view for a source name.
func (t *Tracker) Snapshot(source string) model.SourceSLA {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(time.Now())

	if len(t.samples) == 0 {
		return model.SourceSLA{Source: source, State: model.HealthHealthy, SuccessRate: 1, UptimePct: 100}
	}

	latencies := make([]time.Duration, 0, len(t.samples))
	var successes int
	for _, s := range t.samples {
		latencies = append(latencies, s.latency)
		if s.success {
			successes++
		}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	successRate := float64(successes) / float64(len(t.samples))

	sla := model.SourceSLA{
		Source:      source,
		LatencyP50:  percentile(latencies, 0.50),
		LatencyP95:  percentile(latencies, 0.95),
		LatencyP99:  percentile(latencies, 0.99),
		SuccessRate: successRate,
		UptimePct:   successRate * 100,
		State:       classify(successRate),
	}
	return sla
}

// percentile returns the element at index floor(p*(n-1)) of a sorted slice,
// without interpolation.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// classify maps success rate to health state.
func classify(successRate float64) model.HealthState {
	switch {
	case successRate >= 0.99:
		return model.HealthHealthy
	case successRate >= 0.90:
		return model.HealthDegraded
	default:
		return model.HealthFailed
	}
}
