package model

import "time"

// HealthState classifies a data source's current operational health,
// derived from its rolling success rate.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthFailed   HealthState = "failed"
)

// SourceSLA is a point-in-time snapshot of a source's latency/availability
// characteristics, as exported by the SLA tracker (C1).
type SourceSLA struct {
	Source      string      `json:"source"`
	LatencyP50  time.Duration `json:"latency_p50"`
	LatencyP95  time.Duration `json:"latency_p95"`
	LatencyP99  time.Duration `json:"latency_p99"`
	SuccessRate float64     `json:"success_rate"`
	UptimePct   float64     `json:"uptime_pct"`
	State       HealthState `json:"state"`
}

// BreakerState is the finite-state-machine position of a per-source circuit
// breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// FreshnessLevel classifies a source's data age relative to its expected
// update frequency.
type FreshnessLevel string

const (
	FreshnessFresh    FreshnessLevel = "fresh"
	FreshnessRecent   FreshnessLevel = "recent"
	FreshnessStale    FreshnessLevel = "stale"
	FreshnessOutdated FreshnessLevel = "outdated"
)
