package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/autotrader/internal/alert"
	"github.com/sawpanic/autotrader/internal/backtest"
	"github.com/sawpanic/autotrader/internal/config"
	"github.com/sawpanic/autotrader/internal/model"
	"github.com/sawpanic/autotrader/internal/scoring"
)

func backtestCmd(ctx context.Context, configPath *string) *cobra.Command {
	var (
		tokens      string
		fixturesDir string
		startStr    string
		endStr      string
		stride      time.Duration
		topK        int
		labelsPath  string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay scoring and rule evaluation over a historical window",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(*configPath)
			if err != nil {
				return &cliError{code: ExitConfig, err: err}
			}

			start, err := time.Parse(time.RFC3339, startStr)
			if err != nil {
				return &cliError{code: ExitInput, err: fmt.Errorf("parse --start: %w", err)}
			}
			end, err := time.Parse(time.RFC3339, endStr)
			if err != nil {
				return &cliError{code: ExitInput, err: fmt.Errorf("parse --end: %w", err)}
			}
			if !end.After(start) {
				return &cliError{code: ExitInput, err: fmt.Errorf("--end must be after --start")}
			}

			scorer, err := scoring.New(doc.Weights, nil)
			if err != nil {
				return &cliError{code: ExitConfig, err: err}
			}

			rules := make([]*alert.Rule, 0, len(doc.AlertRules))
			for _, rd := range doc.AlertRules {
				rule, err := alert.CompileRule(rd)
				if err != nil {
					return &cliError{code: ExitConfig, err: err}
				}
				rules = append(rules, rule)
			}

			var labels []backtest.LabeledOutcome
			if labelsPath != "" {
				labels, err = loadLabels(labelsPath)
				if err != nil {
					return &cliError{code: ExitInput, err: err}
				}
			}

			cfg := backtest.Config{
				WindowStart: start,
				WindowEnd:   end,
				Stride:      stride,
				Tokens:      splitCSV(tokens),
				TopK:        topK,
			}

			source := &fixtureHistorySource{dir: fixturesDir}
			result, err := backtest.Run(cmd.Context(), cfg, source, scorer, rules, labels)
			if err != nil {
				return &cliError{code: ExitRuntime, err: err}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(backtestReport(result)); err != nil {
				return &cliError{code: ExitRuntime, err: err}
			}

			log.Info().
				Int("steps", len(result.Steps)).
				Float64("suppression_rate", result.SuppressionRate).
				Msg("backtest complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&tokens, "tokens", "", "comma-separated token symbols to replay")
	cmd.Flags().StringVar(&fixturesDir, "fixtures", "fixtures", "directory of per-step historical feature fixtures")
	cmd.Flags().StringVar(&startStr, "start", "", "window start (RFC3339)")
	cmd.Flags().StringVar(&endStr, "end", "", "window end (RFC3339)")
	cmd.Flags().DurationVar(&stride, "stride", time.Hour, "replay step size")
	cmd.Flags().IntVar(&topK, "top-k", 0, "precision@k cutoff; 0 disables")
	cmd.Flags().StringVar(&labelsPath, "labels", "", "optional JSON file of labelled outcomes for precision@k")
	_ = cmd.MarkFlagRequired("tokens")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

// fixtureHistorySource reads <dir>/<token>/<RFC3339 step>.json, each file a
// flat {feature: value} map, the historical analogue of fixtures.go's
// per-source layout.
type fixtureHistorySource struct {
	dir string
}

func (s *fixtureHistorySource) FeaturesAt(ctx context.Context, token string, at time.Time) (map[string]model.Feature, error) {
	path := filepath.Join(s.dir, token, at.UTC().Format(time.RFC3339)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backtest fixtures: read %s: %w", path, err)
	}
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("backtest fixtures: decode %s: %w", path, err)
	}
	features := make(map[string]model.Feature, len(raw))
	for name, v := range raw {
		features[name] = model.Feature{
			Token:      token,
			Name:       name,
			Value:      model.NumericValue(v),
			Timestamp:  at,
			Confidence: 1,
		}
	}
	return features, nil
}

type labelDoc struct {
	Token string    `json:"token"`
	At    time.Time `json:"at"`
	IsGem bool      `json:"is_gem"`
}

func loadLabels(path string) ([]backtest.LabeledOutcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels %s: %w", path, err)
	}
	var docs []labelDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode labels %s: %w", path, err)
	}
	out := make([]backtest.LabeledOutcome, 0, len(docs))
	for _, d := range docs {
		out = append(out, backtest.LabeledOutcome{Token: d.Token, At: d.At, IsGem: d.IsGem})
	}
	return out, nil
}

type backtestSummary struct {
	WindowStart     time.Time      `json:"window_start"`
	WindowEnd       time.Time      `json:"window_end"`
	Steps           int            `json:"steps"`
	SeverityCounts  map[string]int `json:"severity_counts"`
	RuleCounts      map[string]int `json:"rule_counts"`
	SuppressionRate float64        `json:"suppression_rate"`
	PrecisionAtK    *float64       `json:"precision_at_k,omitempty"`
}

func backtestReport(r *backtest.RunResult) backtestSummary {
	s := backtestSummary{
		WindowStart:     r.Config.WindowStart,
		WindowEnd:       r.Config.WindowEnd,
		Steps:           len(r.Steps),
		SeverityCounts:  r.SeverityCounts,
		RuleCounts:      r.RuleCounts,
		SuppressionRate: r.SuppressionRate,
	}
	if r.PrecisionAtKSet {
		p := r.PrecisionAtK
		s.PrecisionAtK = &p
	}
	return s
}
