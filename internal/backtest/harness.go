// Package backtest implements the historical replay harness: step through
// [window_start, window_end] at a fixed stride, invoking the scoring
// pipeline and alert engine exactly as a live scan would, but routing the
// outbox to an in-memory sink instead of dispatching.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sawpanic/autotrader/internal/alert"
	"github.com/sawpanic/autotrader/internal/model"
	"github.com/sawpanic/autotrader/internal/outbox"
	"github.com/sawpanic/autotrader/internal/scoring"
)

// FeatureSource supplies the features known for a token as of a given
// historical step. Backed by the production feature store's history reads
// in live use; fixture-backed in tests.
type FeatureSource interface {
	FeaturesAt(ctx context.Context, token string, at time.Time) (map[string]model.Feature, error)
}

// LabeledOutcome is an optional ground-truth label for precision@k scoring:
// did this token actually turn out to be a "hidden gem" as of `at`.
type LabeledOutcome struct {
	Token    string
	At       time.Time
	IsGem    bool
}

// Config bounds one replay run.
type Config struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Stride      time.Duration
	Tokens      []string
	TopK        int // for precision@k; 0 disables the metric
}

// StepResult is one (token, step) scoring + evaluation outcome.
type StepResult struct {
	Token     string
	At        time.Time
	Snapshot  model.GemScoreSnapshot
	Delta     *model.ScoreDelta
	Fired     []alert.Fired
}

// RunResult is the aggregate output of a replay: per-run metrics
// (precision@k over labelled outcomes if provided, suppression rate,
// severity counts).
type RunResult struct {
	Config          Config
	Steps           []StepResult
	SeverityCounts  map[string]int
	RuleCounts      map[string]int
	SuppressionRate float64
	PrecisionAtK    float64
	PrecisionAtKSet bool
}

// Run replays scoring and rule evaluation across Config's window, stepping
// every Stride, for each of Tokens. A fresh alert.Engine is used so a
// backtest never shares suppression state with a live engine (mirrors
// alert.Run's own isolation guarantee, generalized to also drive scoring).
func Run(ctx context.Context, cfg Config, source FeatureSource, scorer *scoring.Engine, rules []*alert.Rule, labels []LabeledOutcome) (*RunResult, error) {
	if cfg.Stride <= 0 {
		return nil, fmt.Errorf("backtest: stride must be positive")
	}

	engine := alert.NewEngine(rules)
	sink := outbox.NewMemStore()
	dispatcher := outbox.NewDispatcher(sink, nil, outbox.Config{})

	result := &RunResult{
		Config:         cfg,
		SeverityCounts: make(map[string]int),
		RuleCounts:     make(map[string]int),
	}

	// previous snapshot per token, for delta computation without a live
	// feature store (the backtest window's snapshot history is the replay
	// itself, not the production store).
	previous := make(map[string]model.GemScoreSnapshot)

	for at := cfg.WindowStart; at.Before(cfg.WindowEnd); at = at.Add(cfg.Stride) {
		for _, token := range cfg.Tokens {
			features, err := source.FeaturesAt(ctx, token, at)
			if err != nil {
				continue // missing-source policy applies to historical gaps too
			}

			snapshot := scorer.Score(token, features, at)

			var delta *model.ScoreDelta
			if prev, ok := previous[token]; ok {
				delta = buildDelta(token, prev, snapshot)
			}
			previous[token] = snapshot

			candidate := toCandidate(token, at, snapshot, delta)
			fired := engine.Evaluate(candidate)

			for _, f := range fired {
				_ = dispatcher.Enqueue(ctx, f)
				result.SeverityCounts[f.Severity]++
				result.RuleCounts[f.RuleID]++
			}

			result.Steps = append(result.Steps, StepResult{Token: token, At: at, Snapshot: snapshot, Delta: delta, Fired: fired})
		}
	}

	summary := outbox.Summarize(sink.Snapshot())
	result.SuppressionRate = summary.SuppressionRate

	if cfg.TopK > 0 && len(labels) > 0 {
		result.PrecisionAtK = precisionAtK(result.Steps, labels, cfg.TopK)
		result.PrecisionAtKSet = true
	}

	return result, nil
}

// precisionAtK ranks the final step's snapshots by score descending, takes
// the top K tokens, and reports the fraction that match a true-positive
// label, when labelled outcomes are provided.
func precisionAtK(steps []StepResult, labels []LabeledOutcome, k int) float64 {
	labelIndex := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l.IsGem {
			labelIndex[l.Token+"|"+l.At.UTC().Format(time.RFC3339)] = true
		}
	}

	// last step per token
	last := make(map[string]StepResult)
	for _, s := range steps {
		if existing, ok := last[s.Token]; !ok || s.At.After(existing.At) {
			last[s.Token] = s
		}
	}

	ranked := make([]StepResult, 0, len(last))
	for _, s := range last {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Snapshot.Score > ranked[j].Snapshot.Score })

	if k > len(ranked) {
		k = len(ranked)
	}
	if k == 0 {
		return 0
	}

	hits := 0
	for i := 0; i < k; i++ {
		s := ranked[i]
		if labelIndex[s.Token+"|"+s.At.UTC().Format(time.RFC3339)] {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

func toCandidate(token string, at time.Time, snapshot model.GemScoreSnapshot, delta *model.ScoreDelta) alert.Candidate {
	metrics := map[string]float64{"gem_score": snapshot.Score, "confidence": snapshot.Confidence}
	for name, v := range snapshot.Features {
		metrics[name] = v
	}
	// Unweighted extras are carried raw in snapshot metadata; merge them so
	// replayed rules see the same metric set a live scan builds.
	for name, v := range snapshot.Metadata.ExtraFeatures {
		metrics[name] = v
	}
	if snapshot.Metadata.SLAViolated {
		metrics["sla_violated"] = 1
	} else {
		metrics["sla_violated"] = 0
	}
	c := alert.Candidate{Token: token, Timestamp: at, Metrics: metrics}
	if delta != nil {
		diff := make(map[string]float64, len(delta.FeatureDeltas))
		for _, fd := range delta.FeatureDeltas {
			diff[fd.Name] = fd.DeltaValue
		}
		c.FeatureDiff = diff
		if delta.Previous != nil {
			prior := make(map[string]float64, len(delta.Previous.Features)+1)
			prior["gem_score"] = delta.Previous.Score
			for name, v := range delta.Previous.Features {
				prior[name] = v
			}
			c.PriorPeriod = prior
		}
	}
	return c
}
