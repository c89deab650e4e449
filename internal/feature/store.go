// Package feature implements the append-only feature store and snapshot
// history: write_feature, read_latest, read_history, write_snapshot,
// read_snapshot_history, compute_score_delta, clear_old. Two backends share
// these semantics - an in-memory store for tests and database-less runs, and a
// Postgres-backed store for production - behind a repository-interface-
// plus-two-backends shape.
package feature

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sawpanic/autotrader/internal/model"
)

// ErrNotFound is returned by ReadLatest when no feature has ever been
// written for (token, name).
var ErrNotFound = errors.New("feature: not found")

// Store is the feature/snapshot persistence contract. Both backends
// (memstore, pgstore) implement it identically; callers are backend-agnostic
// - storage is durable or in-memory, selectable at construction, with
// identical semantics either way.
type Store interface {
	WriteFeature(ctx context.Context, f model.Feature) error
	ReadLatest(ctx context.Context, token, name string) (*model.Feature, error)
	ReadHistory(ctx context.Context, token, name string, limit int) ([]model.Feature, error)

	WriteSnapshot(ctx context.Context, s model.GemScoreSnapshot) error
	ReadSnapshotHistory(ctx context.Context, token string, limit int) ([]model.GemScoreSnapshot, error)
	ComputeScoreDelta(ctx context.Context, token string) (*model.ScoreDelta, error)

	ClearOld(ctx context.Context, maxAge time.Duration) error
}

// buildScoreDelta compares two consecutive snapshots for the same token,
// ranking feature deltas by |delta_contribution|.
func buildScoreDelta(token string, previous, current model.GemScoreSnapshot) *model.ScoreDelta {
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
		Narrative:     narrate(token, deltaScore, positive, negative),
	}
}

func narrate(token string, deltaScore float64, positive, negative []model.FeatureDelta) string {
	direction := "improved"
	if deltaScore < 0 {
		direction = "declined"
	}
	if len(positive) == 0 && len(negative) == 0 {
		return token + " score " + direction + " with no significant feature movement"
	}
	driver := ""
	switch {
	case deltaScore >= 0 && len(positive) > 0:
		driver = positive[0].Name
	case deltaScore < 0 && len(negative) > 0:
		driver = negative[0].Name
	}
	if driver == "" {
		return token + " score " + direction
	}
	return token + " score " + direction + ", driven by " + driver
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
