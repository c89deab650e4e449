package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/autotrader/internal/alert"
	"github.com/sawpanic/autotrader/internal/config"
	"github.com/sawpanic/autotrader/internal/datasource"
	"github.com/sawpanic/autotrader/internal/feature"
	"github.com/sawpanic/autotrader/internal/freshness"
	"github.com/sawpanic/autotrader/internal/model"
	"github.com/sawpanic/autotrader/internal/outbox"
	"github.com/sawpanic/autotrader/internal/reliability/breaker"
	"github.com/sawpanic/autotrader/internal/reliability/cache"
	"github.com/sawpanic/autotrader/internal/reliability/ratelimit"
	"github.com/sawpanic/autotrader/internal/reliability/sla"
	"github.com/sawpanic/autotrader/internal/scan"
	"github.com/sawpanic/autotrader/internal/scoring"
	"github.com/sawpanic/autotrader/internal/telemetry"
)

// cliError tags an error with the exit code root.go's classifyExit maps
// it to.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) ExitCode() int { return e.code }
func (e *cliError) Unwrap() error { return e.err }

func scanCmd(ctx context.Context, configPath *string) *cobra.Command {
	var (
		tokens      string
		fixturesDir string
		deadline    time.Duration
		outputPath  string
		dbURL       string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan pass over a set of tokens and print the output snapshot record",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(*configPath)
			if err != nil {
				return &cliError{code: ExitConfig, err: err}
			}

			orch, outboxStore, err := buildOrchestrator(doc, fixturesDir, dbURL)
			if err != nil {
				return &cliError{code: ExitConfig, err: err}
			}

			scanCtx := cmd.Context()
			var cancel context.CancelFunc
			if deadline > 0 {
				scanCtx, cancel = context.WithTimeout(scanCtx, deadline)
				defer cancel()
			}

			symbols := splitCSV(tokens)
			start := time.Now()
			records := make([]model.TokenRecord, 0, len(symbols))
			var successful, failed int

			for _, sym := range symbols {
				res, err := orch.Scan(scanCtx, sym, time.Now())
				if err != nil {
					if _, ok := err.(*scan.ErrScanTimeout); ok {
						return &cliError{code: ExitTimeout, err: err}
					}
					return &cliError{code: ExitRuntime, err: err}
				}
				if res.Summary.Status == model.StatusSuccess {
					successful++
				} else if res.Summary.Status == model.StatusFailed {
					failed++
				}
				records = append(records, toTokenRecord(res))
			}

			// Drain the outbox: recover anything a crashed prior run left
			// in flight, deliver what the scans enqueued, then run one
			// escalation sweep over whatever is still undelivered.
			dispatchNow := time.Now()
			if _, err := orch.Outbox.RecoverCrashed(scanCtx, dispatchNow, 5*time.Minute); err != nil {
				return &cliError{code: ExitRuntime, err: err}
			}
			if err := orch.Outbox.RunOnce(scanCtx, dispatchNow, dispatchBatchSize); err != nil {
				return &cliError{code: ExitRuntime, err: err}
			}
			if _, err := orch.Outbox.DispatchEscalations(scanCtx, orch.Alerts, dispatchNow, dispatchBatchSize); err != nil {
				return &cliError{code: ExitRuntime, err: err}
			}
			if ms, ok := outboxStore.(*outbox.MemStore); ok {
				sum := outbox.Summarize(ms.Snapshot())
				log.Info().
					Int("delivered", sum.Delivered).
					Int("suppressed", sum.Suppressed).
					Int("failed", sum.Failed).
					Int("pending", sum.Pending).
					Float64("suppression_rate", sum.SuppressionRate).
					Msg("outbox drained")
			}

			snapshot := model.OutputSnapshot{
				Tokens: records,
				Metadata: model.RunMetadata{
					Version:          "1",
					DurationSeconds:  time.Since(start).Seconds(),
					TokensProcessed:  len(symbols),
					TokensSuccessful: successful,
					TokensFailed:     failed,
					Strategy:         "gem_score",
					Deterministic:    true,
					Seed:             doc.Determinism.Seed,
				},
				Timestamp: time.Now(),
			}

			out := os.Stdout
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return &cliError{code: ExitRuntime, err: err}
				}
				defer f.Close()
				out = f
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snapshot); err != nil {
				return &cliError{code: ExitRuntime, err: err}
			}

			log.Info().Int("tokens", len(symbols)).Int("successful", successful).Int("failed", failed).Msg("scan complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&tokens, "tokens", "", "comma-separated token symbols to scan")
	cmd.Flags().StringVar(&fixturesDir, "fixtures", "fixtures", "directory of per-source JSON feature fixtures (offline/dev mode)")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "outer scan deadline; 0 disables")
	cmd.Flags().StringVar(&outputPath, "out", "", "output file path; defaults to stdout")
	cmd.Flags().StringVar(&dbURL, "db", "", "Postgres URL for durable feature/outbox storage; empty selects in-memory stores")
	_ = cmd.MarkFlagRequired("tokens")

	return cmd
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toTokenRecord(res *scan.Result) model.TokenRecord {
	features := make(map[string]model.FeatureView, len(res.Summary.MissingSources)+len(res.Summary.RuleHits))
	rec := model.TokenRecord{
		Symbol:         res.Summary.Token,
		GemScore:       res.Summary.Score,
		Confidence:     res.Summary.Confidence,
		Status:         res.Summary.Status,
		Features:       features,
		MissingSources: res.Summary.MissingSources,
		RuleHits:       res.Summary.RuleHits,
	}
	if res.Delta != nil {
		rec.Delta = &model.DeltaView{
			Previous:       res.Delta.Previous.Score,
			Current:        res.Delta.Current.Score,
			Delta:          res.Delta.DeltaScore,
			PercentChange:  res.Delta.PercentChange,
			TimeDeltaHours: res.Delta.DeltaHours,
			TopPositive:    res.Delta.TopPositive,
			TopNegative:    res.Delta.TopNegative,
		}
	}
	return rec
}

// dispatchBatchSize bounds one outbox drain pass; a single-shot CLI run
// never enqueues anywhere near this many alerts.
const dispatchBatchSize = 1000

// buildOrchestrator wires the reliability envelope, stores, scorer, alert
// engine, and dispatcher from a loaded config document. fixturesDir selects
// the offline fixture-backed source families (see fixtures.go); a live
// deployment supplies its own datasource.Transport per source. dbURL picks
// durable Postgres stores over the in-memory defaults.
func buildOrchestrator(doc *config.Document, fixturesDir, dbURL string) (*scan.Orchestrator, outbox.Store, error) {
	fr := freshness.New()
	emitter := telemetry.NewPrometheusEmitter()
	client := datasource.NewClient(fr, emitter)

	sourceNames := make([]string, 0, len(doc.Sources))
	for name, src := range doc.Sources {
		sourceNames = append(sourceNames, name)
		fr.Configure(name, src.SLA.UpdateFrequency(), src.SLA.MaxAge())

		limiter := ratelimit.New(src.RateLimit.Capacity, src.RateLimit.RefillPerSec)
		cb := breaker.New(name, breaker.Config{FailureThreshold: src.Breaker.FailureThreshold, OpenDuration: src.Breaker.OpenDuration()}, datasourceClassifier)
		c := cache.New(cache.Config{
			Mode:         cacheMode(src.Cache.Mode),
			TTL:          src.Cache.TTL(),
			TTLMin:       src.Cache.TTLMin(),
			TTLMax:       src.Cache.TTLMax(),
			MaxEntries:   src.Cache.MaxEntries,
			HotWindow:    src.Cache.HotWindow(),
			HotThreshold: src.Cache.HotThresholdOrDefault(),
		})
		tracker := sla.New(5 * time.Minute)

		client.Register(&datasource.Source{Name: name, Transport: unimplementedTransport{}, Limiter: limiter, Breaker: cb, Cache: c, SLA: tracker})
	}

	weights := doc.Weights
	scorer, err := scoring.New(weights, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("scoring engine: %w", err)
	}

	rules := make([]*alert.Rule, 0, len(doc.AlertRules))
	for _, rd := range doc.AlertRules {
		rule, err := alert.CompileRule(rd)
		if err != nil {
			return nil, nil, fmt.Errorf("alert rule %q: %w", rd.ID, err)
		}
		rules = append(rules, rule)
	}

	var (
		featureStore feature.Store = feature.NewMemStore()
		outboxStore  outbox.Store  = outbox.NewMemStore()
	)
	if dbURL != "" {
		db, err := sqlx.Open("postgres", dbURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		featureStore = feature.NewPGStore(db, 5*time.Second)
		outboxStore = outbox.NewPGStore(db, 5*time.Second)
	}

	channels := make(map[string]outbox.Channel, len(doc.Outbox.Channels))
	for name, ch := range doc.Outbox.Channels {
		switch ch.Type {
		case "webhook":
			channels[name] = outbox.NewWebhookChannel(ch.Options["url"])
		default:
			channels[name] = &outbox.LogChannel{}
		}
	}
	dispatcher := outbox.NewDispatcher(outboxStore, channels, outbox.Config{
		MaxAttempts: doc.Outbox.MaxAttempts,
		BaseBackoff: time.Duration(doc.Outbox.BaseBackoffS) * time.Second,
		MaxBackoff:  time.Duration(doc.Outbox.MaxBackoffS) * time.Second,
	})

	orch := &scan.Orchestrator{
		Client:    client,
		Freshness: fr,
		Features:  featureStore,
		Scoring:   scorer,
		Alerts:    alert.NewEngine(rules),
		Outbox:    dispatcher,
		Emitter:   emitter,
		Families:  fixtureFamilies(fixturesDir, sourceNames),
	}
	return orch, outboxStore, nil
}

func datasourceClassifier(err error) breaker.FailureKind {
	return datasource.Classify(err)
}

func cacheMode(m config.CacheMode) cache.Mode {
	if m == config.CacheModeAdaptive {
		return cache.ModeAdaptive
	}
	return cache.ModeTTL
}

// unimplementedTransport is the default Transport until a deployment
// wires a concrete market/on-chain/social client. Every call fails as a
// fetch error so the orchestrator degrades confidence rather than
// aborting the scan.
type unimplementedTransport struct{}

func (unimplementedTransport) Do(ctx context.Context, source string, req datasource.Request) (interface{}, error) {
	return nil, fmt.Errorf("datasource: no transport configured for %s; use --fixtures for offline mode", source)
}
