package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/autotrader/internal/model"
)

func equalWeights() map[string]float64 {
	return map[string]float64{
		"Sentiment":         0.125,
		"Accumulation":      0.125,
		"OnchainActivity":   0.125,
		"LiquidityDepth":    0.125,
		"TokenomicsRisk":    0.125,
		"ContractSafety":    0.125,
		"NarrativeMomentum": 0.125,
		"CommunityGrowth":   0.125,
	}
}

func TestNew_RejectsWeightsNotSummingToOne(t *testing.T) {
	_, err := New(map[string]float64{"Sentiment": 0.5}, nil)
	assert.Error(t, err)
}

func TestNew_RejectsNegativeWeight(t *testing.T) {
	_, err := New(map[string]float64{"Sentiment": -0.5, "Accumulation": 1.5}, nil)
	assert.Error(t, err)
}

func TestEngine_ScoreSumsPresentFeatures(t *testing.T) {
	e, err := New(equalWeights(), nil)
	require.NoError(t, err)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	features := map[string]model.Feature{
		"Accumulation":   {Value: model.NumericValue(1.0), Confidence: 1.0},
		"ContractSafety": {Value: model.NumericValue(1.0), Confidence: 1.0},
	}

	snap := e.Score("GEM", features, at)
	assert.Equal(t, at, snap.Timestamp)
	assert.InDelta(t, 100*0.125+100*0.125, snap.Score, 1e-9)
	assert.Len(t, snap.Metadata.MissingSources, 6)
}

func TestEngine_ScoreIsDeterministic(t *testing.T) {
	e, err := New(equalWeights(), nil)
	require.NoError(t, err)

	features := map[string]model.Feature{
		"Sentiment":       {Value: model.NumericValue(0.3), Confidence: 0.8},
		"OnchainActivity": {Value: model.NumericValue(1500), Confidence: 0.9},
	}
	at := time.Now()

	first := e.Score("GEM", features, at)
	second := e.Score("GEM", features, at)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Contributions, second.Contributions)
}

func TestEngine_MissingFeatureZeroesValueAndConfidence(t *testing.T) {
	e, err := New(equalWeights(), nil)
	require.NoError(t, err)

	snap := e.Score("GEM", map[string]model.Feature{}, time.Now())
	assert.Equal(t, 0.0, snap.Score)
	assert.Equal(t, 0.0, snap.Confidence)
	assert.Len(t, snap.Metadata.MissingSources, 8)
}

func TestEngine_ExtraFeaturesDoNotAffectScore(t *testing.T) {
	e, err := New(equalWeights(), nil)
	require.NoError(t, err)

	base := e.Score("GEM", map[string]model.Feature{}, time.Now())

	withExtra := e.Score("GEM", map[string]model.Feature{
		"SomeUnweightedSignal": {Value: model.NumericValue(0.9), Confidence: 1.0},
	}, time.Now())

	assert.Equal(t, base.Score, withExtra.Score)
	assert.Contains(t, withExtra.Metadata.ExtraFeatures, "SomeUnweightedSignal")
}

func TestEngine_BooleanExtraFeatureCarriedAsOneOrZero(t *testing.T) {
	e, err := New(equalWeights(), nil)
	require.NoError(t, err)

	snap := e.Score("GEM", map[string]model.Feature{
		"honeypot_detected": {Value: model.BooleanValue(true), Confidence: 1.0},
	}, time.Now())
	assert.Equal(t, 1.0, snap.Metadata.ExtraFeatures["honeypot_detected"])

	snap = e.Score("GEM", map[string]model.Feature{
		"honeypot_detected": {Value: model.BooleanValue(false), Confidence: 1.0},
	}, time.Now())
	assert.Equal(t, 0.0, snap.Metadata.ExtraFeatures["honeypot_detected"])
}

func TestEngine_NumericExtraFeatureKeptRaw(t *testing.T) {
	e, err := New(equalWeights(), nil)
	require.NoError(t, err)

	snap := e.Score("GEM", map[string]model.Feature{
		"holder_count": {Value: model.NumericValue(4200), Confidence: 1.0},
	}, time.Now())
	assert.Equal(t, 4200.0, snap.Metadata.ExtraFeatures["holder_count"])
}

func TestNormalize_LogScaleClampsToUnitInterval(t *testing.T) {
	spec := NormSpec{Transform: TransformLogScale, Scale: 1000}
	v := Normalize(model.NumericValue(1_000_000), spec)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)
}

func TestNormalize_InverseClampFlipsRisk(t *testing.T) {
	spec := NormSpec{Transform: TransformInverse, Min: 0, Max: 1}
	assert.InDelta(t, 1.0, Normalize(model.NumericValue(0), spec), 1e-9)
	assert.InDelta(t, 0.0, Normalize(model.NumericValue(1), spec), 1e-9)
}

func TestNormalize_ZSigmoidCentersAtHalf(t *testing.T) {
	spec := NormSpec{Transform: TransformZSigmoid, Mean: 0, StdDev: 1}
	assert.InDelta(t, 0.5, Normalize(model.NumericValue(0), spec), 1e-9)
}
