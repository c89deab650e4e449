// Package config loads and validates the engine's typed configuration
// document: sources, feature weights, alert rules, outbox, and determinism
// settings. Loading follows a read-file-then-yaml.Unmarshal-then-defaults-
// then-validate shape.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/autotrader/internal/alert"
)

// WeightTolerance is the allowed slack in the feature-weight sum invariant.
const WeightTolerance = 1e-6

// Document is the root of the engine's configuration.
type Document struct {
	Sources      SourcesConfig       `yaml:"sources"`
	Weights      map[string]float64  `yaml:"weights"`
	// ExtraMetrics declares unweighted feature names (contract-scanner
	// flags, holder counts, ...) that sources may contribute and alert
	// rules may reference. Anything not declared here, in Weights, or
	// among the built-in system metrics is an unknown metric and fails
	// validation.
	ExtraMetrics []string            `yaml:"extra_metrics"`
	AlertRules   []alert.RuleDoc     `yaml:"alert_rules"`
	Outbox       OutboxConfig        `yaml:"outbox"`
	Determinism  DeterminismConfig   `yaml:"determinism"`
}

// systemMetrics are the metric names every candidate carries regardless of
// the configured weight set.
var systemMetrics = []string{"gem_score", "confidence", "sla_violated"}

// OutboxConfig configures C7's dispatcher.
type OutboxConfig struct {
	MaxAttempts    int                        `yaml:"max_attempts"`
	BaseBackoffS   int                        `yaml:"base_backoff_s"`
	MaxBackoffS    int                        `yaml:"max_backoff_s"`
	Channels       map[string]ChannelConfig   `yaml:"channels"`
}

// ChannelConfig names a delivery channel and its implementation type.
type ChannelConfig struct {
	Type    string            `yaml:"type"`
	Options map[string]string `yaml:"options"`
}

// DeterminismConfig seeds anything that would otherwise vary run to run.
type DeterminismConfig struct {
	Seed     int64 `yaml:"seed"`
	HashSeed int64 `yaml:"hash_seed"`
}

// Load reads, parses, defaults, and validates a configuration document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(&doc)
	doc.applyDefaults()

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &doc, nil
}

// applyDefaults fills outbox defaults left unset by the document.
func (d *Document) applyDefaults() {
	if d.Outbox.MaxAttempts == 0 {
		d.Outbox.MaxAttempts = 8
	}
	if d.Outbox.BaseBackoffS == 0 {
		d.Outbox.BaseBackoffS = 5
	}
	if d.Outbox.MaxBackoffS == 0 {
		d.Outbox.MaxBackoffS = 3600
	}
}

// applyEnvOverrides lets environment variables take precedence over file
// values for the handful of settings operators commonly need to flip
// without editing YAML.
func applyEnvOverrides(d *Document) {
	if seed := os.Getenv("AUTOTRADER_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			d.Determinism.Seed = v
		}
	}
	if maxAttempts := os.Getenv("AUTOTRADER_OUTBOX_MAX_ATTEMPTS"); maxAttempts != "" {
		if v, err := strconv.Atoi(maxAttempts); err == nil {
			d.Outbox.MaxAttempts = v
		}
	}
}

// Validate enforces the configuration-error class: weight sum invariant,
// unknown rule metrics, duplicate rule ids, unparseable conditions. These
// are fatal at construction, never degraded at runtime.
func (d *Document) Validate() error {
	if err := d.Sources.Validate(); err != nil {
		return err
	}
	if err := ValidateWeights(d.Weights); err != nil {
		return err
	}

	known := make(map[string]bool, len(d.Weights)+len(d.ExtraMetrics)+len(systemMetrics))
	for name := range d.Weights {
		known[name] = true
	}
	for _, name := range d.ExtraMetrics {
		known[name] = true
	}
	for _, name := range systemMetrics {
		known[name] = true
	}

	seen := make(map[string]bool, len(d.AlertRules))
	for _, rd := range d.AlertRules {
		if seen[rd.ID] {
			return fmt.Errorf("duplicate alert rule id %q", rd.ID)
		}
		seen[rd.ID] = true
		rule, err := alert.CompileRule(rd)
		if err != nil {
			return fmt.Errorf("alert rule %q: %w", rd.ID, err)
		}
		for _, metric := range rule.Condition.MetricNames() {
			if !known[metric] {
				return fmt.Errorf("alert rule %q references unknown metric %q", rd.ID, metric)
			}
		}
	}

	if d.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox.max_attempts must be positive")
	}
	if d.Outbox.BaseBackoffS <= 0 || d.Outbox.MaxBackoffS < d.Outbox.BaseBackoffS {
		return fmt.Errorf("outbox backoff configuration invalid")
	}

	return nil
}

// ValidateWeights enforces the sum-to-1.0 invariant.
func ValidateWeights(weights map[string]float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("weights must not be empty")
	}
	var sum float64
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("weight %q must be non-negative, got %f", name, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("weights must sum to 1.0 +/- %g, got %f", WeightTolerance, sum)
	}
	return nil
}

// CanonicalWeightNames are the eight named GemScore weights; additional
// weights are permitted as long as the sum invariant holds.
var CanonicalWeightNames = []string{
	"Sentiment",
	"Accumulation",
	"OnchainActivity",
	"LiquidityDepth",
	"TokenomicsRisk",
	"ContractSafety",
	"NarrativeMomentum",
	"CommunityGrowth",
}
