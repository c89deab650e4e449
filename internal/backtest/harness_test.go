package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/autotrader/internal/alert"
	"github.com/sawpanic/autotrader/internal/model"
	"github.com/sawpanic/autotrader/internal/scoring"
)

type fixtureSource struct {
	values map[string]map[time.Time]map[string]float64 // token -> at -> feature -> value
}

func (f *fixtureSource) FeaturesAt(ctx context.Context, token string, at time.Time) (map[string]model.Feature, error) {
	byAt, ok := f.values[token]
	if !ok {
		return nil, nil
	}
	vals, ok := byAt[at]
	if !ok {
		return nil, nil
	}
	out := make(map[string]model.Feature, len(vals))
	for name, v := range vals {
		out[name] = model.Feature{Token: token, Name: name, Value: model.NumericValue(v), Timestamp: at, Confidence: 1}
	}
	return out, nil
}

func TestRun_ReplaysStridedWindow(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	source := &fixtureSource{values: map[string]map[time.Time]map[string]float64{
		"GEM": {
			t0: {"A": 0.2, "B": 0.2},
			t1: {"A": 0.9, "B": 0.9},
		},
	}}

	engine, err := scoring.New(map[string]float64{"A": 0.5, "B": 0.5}, nil)
	require.NoError(t, err)

	rule, err := alert.CompileRule(alert.RuleDoc{ID: "high-score", Metric: "gem_score", Op: "gte", Threshold: 80})
	require.NoError(t, err)

	cfg := Config{
		WindowStart: t0,
		WindowEnd:   t0.Add(2 * time.Hour),
		Stride:      time.Hour,
		Tokens:      []string{"GEM"},
	}

	result, err := Run(context.Background(), cfg, source, engine, []*alert.Rule{rule}, nil)
	require.NoError(t, err)
	require.Len(t, result.Steps, 2)

	assert.InDelta(t, 20.0, result.Steps[0].Snapshot.Score, 1e-6)
	assert.InDelta(t, 90.0, result.Steps[1].Snapshot.Score, 1e-6)
	require.NotNil(t, result.Steps[1].Delta)
	assert.InDelta(t, 70.0, result.Steps[1].Delta.DeltaScore, 1e-6)
	assert.Equal(t, 1, result.RuleCounts["high-score"])
}

func TestRun_PrecisionAtK(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	source := &fixtureSource{values: map[string]map[time.Time]map[string]float64{
		"WIN":  {t0: {"A": 0.9, "B": 0.9}},
		"LOSE": {t0: {"A": 0.1, "B": 0.1}},
	}}

	engine, err := scoring.New(map[string]float64{"A": 0.5, "B": 0.5}, nil)
	require.NoError(t, err)

	cfg := Config{WindowStart: t0, WindowEnd: t0.Add(time.Hour), Stride: time.Hour, Tokens: []string{"WIN", "LOSE"}, TopK: 1}
	labels := []LabeledOutcome{{Token: "WIN", At: t0, IsGem: true}, {Token: "LOSE", At: t0, IsGem: false}}

	result, err := Run(context.Background(), cfg, source, engine, nil, labels)
	require.NoError(t, err)
	require.True(t, result.PrecisionAtKSet)
	assert.InDelta(t, 1.0, result.PrecisionAtK, 1e-9)
}
