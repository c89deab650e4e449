// Package scoring implements the composite GemScore pipeline: per-feature
// normalization into [0,1], weighted aggregation into a 0-100 score,
// contribution decomposition, and confidence aggregation, over an open,
// named feature set.
package scoring

import (
	"math"

	"github.com/sawpanic/autotrader/internal/model"
)

// Transform names the normalization applied to a feature before weighting:
// a fixed, documented transform per feature name.
type Transform string

const (
	// TransformClamp clamps an already-bounded ratio into [0,1].
	TransformClamp Transform = "clamp"
	// TransformLogScale compresses an unbounded non-negative magnitude
	// (volume, liquidity depth, follower counts) via log1p against a scale
	// reference, then clamps to [0,1].
	TransformLogScale Transform = "log_scale"
	// TransformZSigmoid standardizes an arbitrary-magnitude signal against a
	// baseline mean/stddev, then squashes with a logistic sigmoid.
	TransformZSigmoid Transform = "zscore_sigmoid"
	// TransformBoolean maps a boolean feature straight to 0.0/1.0.
	TransformBoolean Transform = "boolean"
	// TransformInverse is TransformClamp, inverted (1-v) - for "risk"-style
	// features where a lower raw value is better.
	TransformInverse Transform = "inverse_clamp"
)

// NormSpec configures one feature's normalization. Mean/StdDev parameterize
// TransformZSigmoid; Scale parameterizes TransformLogScale (the raw value at
// which log_scale reaches 1.0); Min/Max parameterize TransformClamp and
// TransformInverse's clamp bounds (default [0,1] when both are zero).
type NormSpec struct {
	Transform Transform
	Mean      float64
	StdDev    float64
	Scale     float64
	Min       float64
	Max       float64
}

// Table maps feature name to its normalization spec. The transform set is
// fixed and reproducible, so identical inputs always score identically.
type Table map[string]NormSpec

// DefaultTable returns the normalization table for the eight canonical
// GemScore weight names. A deployment may override or
// extend it via configuration; scoring falls back to TransformClamp for any
// feature name absent from the table.
func DefaultTable() Table {
	return Table{
		"Sentiment":         {Transform: TransformZSigmoid, Mean: 0, StdDev: 1},
		"Accumulation":      {Transform: TransformClamp, Min: 0, Max: 1},
		"OnchainActivity":   {Transform: TransformLogScale, Scale: 1000},
		"LiquidityDepth":    {Transform: TransformLogScale, Scale: 500000},
		"TokenomicsRisk":    {Transform: TransformInverse, Min: 0, Max: 1},
		"ContractSafety":    {Transform: TransformClamp, Min: 0, Max: 1},
		"NarrativeMomentum": {Transform: TransformZSigmoid, Mean: 0, StdDev: 1},
		"CommunityGrowth":   {Transform: TransformLogScale, Scale: 10000},
	}
}

// Normalize maps a feature value to [0,1] using spec. Kind mismatches (e.g. a
// categorical value under a numeric transform) fall back to 0 rather than
// panicking - a decode error is a missing feature, not a fatal condition.
func Normalize(v model.Value, spec NormSpec) float64 {
	switch spec.Transform {
	case TransformBoolean:
		if v.Kind != model.KindBoolean {
			return 0
		}
		if v.Bool {
			return 1
		}
		return 0

	case TransformLogScale:
		if v.Kind != model.KindNumeric || v.Num < 0 {
			return 0
		}
		scale := spec.Scale
		if scale <= 0 {
			scale = 1
		}
		return clamp01(math.Log1p(v.Num) / math.Log1p(scale))

	case TransformZSigmoid:
		if v.Kind != model.KindNumeric {
			return 0
		}
		std := spec.StdDev
		if std <= 0 {
			std = 1
		}
		z := (v.Num - spec.Mean) / std
		return sigmoid(z)

	case TransformInverse:
		if v.Kind != model.KindNumeric {
			return 0
		}
		return 1 - clampRange(v.Num, spec)

	case TransformClamp:
		fallthrough
	default:
		if v.Kind != model.KindNumeric {
			return 0
		}
		return clampRange(v.Num, spec)
	}
}

func clampRange(v float64, spec NormSpec) float64 {
	lo, hi := spec.Min, spec.Max
	if lo == 0 && hi == 0 {
		hi = 1
	}
	if hi <= lo {
		return clamp01(v)
	}
	return clamp01((v - lo) / (hi - lo))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
