package backtest

import (
	"sort"

	"github.com/sawpanic/autotrader/internal/model"
)

// buildDelta mirrors internal/feature's buildScoreDelta exactly (same
// ranking-by-|delta_contribution| and narrative shape), kept as its own
// small copy here because a replay step's "previous snapshot" comes from
// the in-memory stride loop, not a feature.Store, and the two packages
// otherwise have no reason to depend on each other.
func buildDelta(token string, previous, current model.GemScoreSnapshot) *model.ScoreDelta {
	names := make(map[string]struct{})
	for n := range current.Features {
		names[n] = struct{}{}
	}
	for n := range previous.Features {
		names[n] = struct{}{}
	}

	deltas := make([]model.FeatureDelta, 0, len(names))
	for n := range names {
		pv := previous.Features[n]
		cv := current.Features[n]
		pc := previous.Contributions[n]
		cc := current.Contributions[n]
		deltas = append(deltas, model.FeatureDelta{
			Name:                 n,
			PreviousValue:        pv,
			CurrentValue:         cv,
			DeltaValue:           cv - pv,
			PreviousContribution: pc,
			CurrentContribution:  cc,
			DeltaContribution:    cc - pc,
		})
	}

	sort.Slice(deltas, func(i, j int) bool {
		return absFloat(deltas[i].DeltaContribution) > absFloat(deltas[j].DeltaContribution)
	})

	top := 3
	var positive, negative []model.FeatureDelta
	for _, d := range deltas {
		if d.DeltaContribution > 0 && len(positive) < top {
			positive = append(positive, d)
		}
		if d.DeltaContribution < 0 && len(negative) < top {
			negative = append(negative, d)
		}
	}

	deltaHours := current.Timestamp.Sub(previous.Timestamp).Hours()
	deltaScore := current.Score - previous.Score
	percentChange := 0.0
	if previous.Score != 0 {
		percentChange = deltaScore / previous.Score * 100
	}

	prevCopy := previous
	currCopy := current

	return &model.ScoreDelta{
		Token:         token,
		Previous:      &prevCopy,
		Current:       &currCopy,
		DeltaScore:    deltaScore,
		PercentChange: percentChange,
		DeltaHours:    deltaHours,
		FeatureDeltas: deltas,
		TopPositive:   positive,
		TopNegative:   negative,
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
