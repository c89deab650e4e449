// Package scan implements the per-token scan orchestrator: fan out to
// data sources, build a partial feature set, score, persist, compute a
// delta, evaluate alert rules, and enqueue, with partial-failure tolerance
// throughout the ingest -> score -> snapshot -> evaluate -> enqueue flow.
package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sawpanic/autotrader/internal/alert"
	"github.com/sawpanic/autotrader/internal/datasource"
	"github.com/sawpanic/autotrader/internal/feature"
	"github.com/sawpanic/autotrader/internal/freshness"
	"github.com/sawpanic/autotrader/internal/model"
	"github.com/sawpanic/autotrader/internal/outbox"
	"github.com/sawpanic/autotrader/internal/scoring"
	"github.com/sawpanic/autotrader/internal/telemetry"
)

// ErrScanTimeout is returned when the outer deadline expires before scoring
// has completed.
type ErrScanTimeout struct{ Token string }

func (e *ErrScanTimeout) Error() string { return fmt.Sprintf("scan: %s: deadline exceeded", e.Token) }

// SourceFamily is one data-source family this token's scan draws features
// from: a named fetch plus the feature names it's expected to populate.
type SourceFamily struct {
	Name     string
	Fetch    func(ctx context.Context, client *datasource.Client, token string) (map[string]model.Feature, error)
	Features []string
}

// Orchestrator wires the data-source client, feature store, scoring engine,
// alert engine, and outbox dispatcher into a single-pass scan pipeline.
type Orchestrator struct {
	Client    *datasource.Client
	Freshness *freshness.Registry
	Features  feature.Store
	Scoring   *scoring.Engine
	Alerts    *alert.Engine
	Outbox    *outbox.Dispatcher
	Emitter   telemetry.Emitter
	Families  []SourceFamily
}

// Result is the per-token return value of Scan.
type Result struct {
	Summary model.ScanSummary
	Delta   *model.ScoreDelta
}

// Scan runs one full pass for token: fetch every source family in parallel,
// write whatever features succeeded, score, persist, delta, evaluate rules,
// enqueue. Partial source failures degrade confidence rather than aborting
// the scan; only a feature-store failure (a write or the score-delta read) or the outer deadline
// expiring before scoring completes is fatal.
func (o *Orchestrator) Scan(ctx context.Context, token string, at time.Time) (*Result, error) {
	features, missing := o.fetchAll(ctx, token)

	select {
	case <-ctx.Done():
		return nil, &ErrScanTimeout{Token: token}
	default:
	}

	for _, f := range features {
		if err := o.Features.WriteFeature(ctx, f); err != nil {
			return nil, fmt.Errorf("scan: %s: write feature %s: %w", token, f.Name, err)
		}
	}

	snapshot := o.Scoring.Score(token, features, at)
	snapshot.Metadata.MissingSources = missing
	snapshot.Metadata.SLAViolated = o.anySLAViolated(missing)

	if err := o.Features.WriteSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("scan: %s: write snapshot: %w", token, err)
	}

	delta, err := o.Features.ComputeScoreDelta(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("scan: %s: compute score delta: %w", token, err)
	}

	candidate := buildCandidate(token, at, snapshot, delta)
	fired := o.Alerts.Evaluate(candidate)

	ruleHits := make([]string, 0, len(fired))
	for _, f := range fired {
		ruleHits = append(ruleHits, f.RuleID)
		if o.Outbox != nil {
			if err := o.Outbox.Enqueue(ctx, f); err != nil {
				o.emit("scan_outbox_enqueue_errors_total", token)
			}
		}
	}

	status := model.StatusSuccess
	switch {
	case len(features) == 0:
		status = model.StatusFailed
	case len(missing) > 0:
		status = model.StatusPartial
	}

	o.emit("scan_completed_total", token)

	return &Result{
		Summary: model.ScanSummary{
			Token:          token,
			Score:          snapshot.Score,
			Confidence:     snapshot.Confidence,
			Status:         status,
			MissingSources: missing,
			RuleHits:       ruleHits,
		},
		Delta: delta,
	}, nil
}

// fetchAll runs every configured source family concurrently, merging
// successful families' features into one map and collecting the names of
// families that failed entirely.
func (o *Orchestrator) fetchAll(ctx context.Context, token string) (map[string]model.Feature, []string) {
	type outcome struct {
		family   string
		features map[string]model.Feature
		err      error
	}

	results := make(chan outcome, len(o.Families))
	var wg sync.WaitGroup
	for _, fam := range o.Families {
		wg.Add(1)
		go func(fam SourceFamily) {
			defer wg.Done()
			fs, err := fam.Fetch(ctx, o.Client, token)
			results <- outcome{family: fam.Name, features: fs, err: err}
		}(fam)
	}
	go func() { wg.Wait(); close(results) }()

	merged := make(map[string]model.Feature)
	var missing []string
	for r := range results {
		if r.err != nil {
			// CircuitOpen/Upstream5xx (and any other fetch error) means this
			// family is treated as missing, never a fatal scan error.
			missing = append(missing, r.family)
			continue
		}
		for name, f := range r.features {
			merged[name] = f
		}
	}
	return merged, missing
}

func (o *Orchestrator) anySLAViolated(missingFamilies []string) bool {
	for _, name := range missingFamilies {
		if o.Freshness.SLAViolated(name) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) emit(metric, token string) {
	if o.Emitter == nil {
		return
	}
	o.Emitter.IncCounter(metric, map[string]string{"token": token})
}

// buildCandidate assembles an alert.Candidate from a fresh snapshot and its
// delta, attaching the feature diff and prior-period metrics. Unweighted
// extras (carried raw in the snapshot metadata) are merged alongside the
// normalized feature set so rules can reference metrics like a honeypot
// flag that never participate in scoring.
func buildCandidate(token string, at time.Time, snapshot model.GemScoreSnapshot, delta *model.ScoreDelta) alert.Candidate {
	metrics := map[string]float64{"gem_score": snapshot.Score, "confidence": snapshot.Confidence}
	for name, v := range snapshot.Features {
		metrics[name] = v
	}
	for name, v := range snapshot.Metadata.ExtraFeatures {
		metrics[name] = v
	}
	if snapshot.Metadata.SLAViolated {
		metrics["sla_violated"] = 1
	} else {
		metrics["sla_violated"] = 0
	}

	c := alert.Candidate{Token: token, Timestamp: at, Metrics: metrics}
	if delta != nil && delta.Previous != nil {
		prior := make(map[string]float64, len(delta.Previous.Features)+1)
		prior["gem_score"] = delta.Previous.Score
		for name, v := range delta.Previous.Features {
			prior[name] = v
		}
		c.PriorPeriod = prior

		diff := make(map[string]float64, len(delta.FeatureDeltas))
		for _, fd := range delta.FeatureDeltas {
			diff[fd.Name] = fd.DeltaValue
		}
		c.FeatureDiff = diff
	}
	return c
}
