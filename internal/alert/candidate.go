package alert

import "time"

// Candidate is one token's metrics at a point in time, evaluated against
// every enabled rule set.
type Candidate struct {
	Token       string
	Timestamp   time.Time
	Metrics     map[string]float64
	PriorPeriod map[string]float64
	FeatureDiff map[string]float64
}

// Status is a fired alert's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInFlight   Status = "in_flight"
	StatusDelivered  Status = "delivered"
	StatusSuppressed Status = "suppressed"
	StatusFailed     Status = "failed"
)

// Fired is one rule firing against one candidate.
type Fired struct {
	ID        string
	RuleID    string
	Token     string
	Severity  string
	Timestamp time.Time
	DedupeKey string
	Message   string
	Channels  []string
	Status    Status
}
