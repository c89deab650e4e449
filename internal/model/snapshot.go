package model

import "time"

// GemScoreSnapshot is the immutable, write-once record of a single scoring
// event. Invariants (enforced by the scoring pipeline, not
// here):
//   score = 100 * sum(weight[n] * features[n])
//   sum(contributions[n]) ~= score
//   every name in Features has a corresponding weight
type GemScoreSnapshot struct {
	Token         string             `json:"token"`
	Timestamp     time.Time          `json:"timestamp"`
	Score         float64            `json:"score"`
	Confidence    float64            `json:"confidence"`
	Features      map[string]float64 `json:"features"`      // normalized [0,1]
	Contributions map[string]float64 `json:"contributions"` // 100 * w[n] * v[n]
	Metadata      SnapshotMetadata   `json:"metadata"`
}

// SnapshotMetadata carries non-scoring context: which sources were missing,
// which features fell outside the weight set, SLA violations, etc.
type SnapshotMetadata struct {
	MissingSources []string          `json:"missing_sources,omitempty"`
	SLAViolated    bool              `json:"sla_violated"`
	ExtraFeatures  map[string]float64 `json:"extra_features,omitempty"`
	DeterminismSeed int64            `json:"determinism_seed,omitempty"`
}

// FeatureDelta is one feature's contribution change between two snapshots,
// ranked by |DeltaContribution|.
type FeatureDelta struct {
	Name               string  `json:"name"`
	PreviousValue      float64 `json:"previous_value"`
	CurrentValue       float64 `json:"current_value"`
	DeltaValue         float64 `json:"delta_value"`
	PreviousContribution float64 `json:"previous_contribution"`
	CurrentContribution  float64 `json:"current_contribution"`
	DeltaContribution  float64 `json:"delta_contribution"`
}

// ScoreDelta is the derived, non-persistent comparison between two
// consecutive snapshots for the same token.
type ScoreDelta struct {
	Token           string         `json:"token"`
	Previous        *GemScoreSnapshot `json:"previous"`
	Current         *GemScoreSnapshot `json:"current"`
	DeltaScore      float64        `json:"delta_score"`
	PercentChange   float64        `json:"percent_change"`
	DeltaHours      float64        `json:"time_delta_hours"`
	FeatureDeltas   []FeatureDelta `json:"feature_deltas"` // sorted by |DeltaContribution| desc
	TopPositive     []FeatureDelta `json:"top_positive"`
	TopNegative     []FeatureDelta `json:"top_negative"`
	Narrative       string         `json:"narrative"`
}
