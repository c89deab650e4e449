package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sawpanic/autotrader/internal/model"
)

// WeightTolerance is the floating-point slack allowed when validating that
// weights sum to 1.0 (mirrors internal/config's document-level check; kept
// as its own constant here so this package has no dependency on config).
const WeightTolerance = 1e-6

// Engine computes GemScore snapshots from a fixed weight vector and
// normalization table. Both are validated once at
// construction; a weight-sum violation is a fatal configuration error per
// a configuration error, never a per-call failure.
type Engine struct {
	weights map[string]float64
	names   []string // sorted, fixed iteration order for deterministic output
	norms   Table
}

// New validates weights and constructs a scoring Engine. norms may be nil,
// in which case DefaultTable() is used.
func New(weights map[string]float64, norms Table) (*Engine, error) {
	if err := validateWeights(weights); err != nil {
		return nil, err
	}
	if norms == nil {
		norms = DefaultTable()
	}

	names := make([]string, 0, len(weights))
	for n := range weights {
		names = append(names, n)
	}
	sort.Strings(names)

	return &Engine{weights: weights, names: names, norms: norms}, nil
}

func validateWeights(weights map[string]float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("scoring: empty weight vector")
	}
	sum := 0.0
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("scoring: negative weight for %q: %f", name, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("scoring: weights sum to %f, want 1.0 +/- %g", sum, WeightTolerance)
	}
	return nil
}

// Score computes a GemScoreSnapshot for token from the features present at
// call time. Missing inputs are treated as
// value=0, confidence=0 (step 2); their zero contribution is still recorded
// so downstream delta computation sees a consistent feature set.
func (e *Engine) Score(token string, features map[string]model.Feature, at time.Time) model.GemScoreSnapshot {
	normalized := make(map[string]float64, len(e.names))
	contributions := make(map[string]float64, len(e.names))
	confidences := make(map[string]float64, len(e.names))
	var missing []string

	for _, name := range e.names {
		f, ok := features[name]
		var value, confidence float64
		if !ok {
			missing = append(missing, name)
		} else {
			spec, hasSpec := e.norms[name]
			if !hasSpec {
				spec = NormSpec{Transform: TransformClamp}
			}
			value = Normalize(f.Value, spec)
			confidence = f.Confidence
		}
		normalized[name] = value
		confidences[name] = confidence
		contributions[name] = 100 * e.weights[name] * value
	}

	score := 0.0
	for _, name := range e.names {
		score += 100 * e.weights[name] * normalized[name]
	}

	aggregateConfidence := 0.0
	for _, name := range e.names {
		aggregateConfidence += e.weights[name] * confidences[name]
	}

	// Features outside the weight set never influence the score, but they
	// are carried through metadata so alert rules can reference them (e.g.
	// a honeypot flag from a contract scanner). Without an explicit norm
	// spec they are kept raw rather than normalized: a boolean maps to 1/0,
	// a numeric passes through untouched - clamping a raw magnitude (or
	// zeroing a boolean) here would corrupt the thresholds rules compare
	// against.
	extra := make(map[string]float64)
	for name, f := range features {
		if _, weighted := e.weights[name]; weighted {
			continue
		}
		if spec, hasSpec := e.norms[name]; hasSpec {
			extra[name] = Normalize(f.Value, spec)
			continue
		}
		switch f.Value.Kind {
		case model.KindBoolean:
			if f.Value.Bool {
				extra[name] = 1
			} else {
				extra[name] = 0
			}
		case model.KindNumeric:
			extra[name] = f.Value.Num
		}
	}
	if len(extra) == 0 {
		extra = nil
	}

	return model.GemScoreSnapshot{
		Token:         token,
		Timestamp:     at,
		Score:         score,
		Confidence:    aggregateConfidence,
		Features:      normalized,
		Contributions: contributions,
		Metadata: model.SnapshotMetadata{
			MissingSources: missing,
			ExtraFeatures:  extra,
		},
	}
}

// Explain renders a human-readable breakdown of a snapshot's
// contributions, sorted by descending contribution.
func Explain(s model.GemScoreSnapshot) string {
	type row struct {
		name         string
		value        float64
		contribution float64
	}
	rows := make([]row, 0, len(s.Contributions))
	for name, c := range s.Contributions {
		rows = append(rows, row{name: name, value: s.Features[name], contribution: c})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].contribution > rows[j].contribution })

	out := fmt.Sprintf("GemScore %.1f (confidence %.0f%%)\n", s.Score, s.Confidence*100)
	for _, r := range rows {
		out += fmt.Sprintf("  %-20s %.3f -> %.2f\n", r.name, r.value, r.contribution)
	}
	if len(s.Metadata.MissingSources) > 0 {
		out += fmt.Sprintf("missing: %v\n", s.Metadata.MissingSources)
	}
	return out
}
