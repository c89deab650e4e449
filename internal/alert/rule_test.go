package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCompileRule_V1FlatCondition(t *testing.T) {
	rule, err := CompileRule(RuleDoc{ID: "r1", Severity: "high", Metric: "gem_score", Op: "gte", Threshold: 80})
	require.NoError(t, err)
	assert.Equal(t, "v1", rule.Version)
	assert.True(t, rule.Enabled)
	assert.Equal(t, DefaultSuppressionDuration, rule.SuppressionDuration)
}

func TestCompileRule_V2CompoundCondition(t *testing.T) {
	rule, err := CompileRule(RuleDoc{
		ID:       "r2",
		Severity: "medium",
		Condition: &ConditionDoc{
			Kind: "and",
			Children: []ConditionDoc{
				{Kind: "simple", Metric: "gem_score", Op: "gte", Threshold: 70},
				{Kind: "simple", Metric: "liquidity_depth", Op: "gt", Threshold: 50000},
			},
		},
		SuppressionSeconds: 300,
		Template:           "{symbol} crossed threshold",
		Escalation: &EscalationDoc{
			Name: "default",
			Steps: []EscalationStepDoc{
				{AfterSeconds: 600, Channels: []string{"slack"}},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "v2", rule.Version)
	assert.Equal(t, 300e9, float64(rule.SuppressionDuration))
	require.NotNil(t, rule.Escalation)
	assert.Len(t, rule.Escalation.Steps, 1)
}

func TestCompileRule_MissingIDFails(t *testing.T) {
	_, err := CompileRule(RuleDoc{Metric: "x", Op: "gt", Threshold: 1})
	assert.Error(t, err)
}

func TestCompileRule_NoConditionFails(t *testing.T) {
	_, err := CompileRule(RuleDoc{ID: "r3"})
	assert.Error(t, err)
}

func TestCompileRule_EnabledDefaultsTrueButRespectsExplicitFalse(t *testing.T) {
	disabled := false
	rule, err := CompileRule(RuleDoc{ID: "r4", Metric: "x", Op: "gt", Threshold: 1, Enabled: &disabled})
	require.NoError(t, err)
	assert.False(t, rule.Enabled)
}

func TestCompileRule_EscalationRequiresChannels(t *testing.T) {
	_, err := CompileRule(RuleDoc{
		ID: "r5", Metric: "x", Op: "gt", Threshold: 1,
		Escalation: &EscalationDoc{Name: "esc", Steps: []EscalationStepDoc{{AfterSeconds: 60}}},
	})
	assert.Error(t, err)
}

func TestRuleDoc_LongFormConditionGrammar(t *testing.T) {
	src := `
id: compound-long
severity: high
condition:
  type: compound
  operator: AND
  conditions:
    - {metric: gem_score, operator: lt, threshold: 30}
    - {metric: honeypot_detected, operator: eq, threshold: true}
`
	var doc RuleDoc
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))

	rule, err := CompileRule(doc)
	require.NoError(t, err)
	assert.Equal(t, "v2", rule.Version)

	assert.True(t, rule.Condition.Evaluate(map[string]float64{"gem_score": 25, "honeypot_detected": 1}))
	assert.False(t, rule.Condition.Evaluate(map[string]float64{"gem_score": 25, "honeypot_detected": 0}))
	assert.False(t, rule.Condition.Evaluate(map[string]float64{"gem_score": 45, "honeypot_detected": 1}))
}

func TestRuleDoc_YAMLRoundTripV1(t *testing.T) {
	src := `
id: low-score
severity: warning
metric: gem_score
op: lt
threshold: 30
`
	var doc RuleDoc
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	var again RuleDoc
	require.NoError(t, yaml.Unmarshal(out, &again))
	assert.Equal(t, doc, again)

	rule, err := CompileRule(again)
	require.NoError(t, err)
	assert.Equal(t, "v1", rule.Version)
}

func TestRuleDoc_YAMLRoundTripV2(t *testing.T) {
	src := `
id: honeypot-trap
severity: critical
channels: [slack, pagerduty]
suppression_seconds: 3600
template: "{symbol} looks like a honeypot"
condition:
  kind: and
  children:
    - {kind: simple, metric: gem_score, op: lt, threshold: 30}
    - {kind: simple, metric: honeypot_detected, op: eq, threshold: 1}
escalation:
  name: oncall
  steps:
    - {after_seconds: 600, channels: [pagerduty]}
`
	var doc RuleDoc
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	var again RuleDoc
	require.NoError(t, yaml.Unmarshal(out, &again))
	assert.Equal(t, doc, again)

	rule, err := CompileRule(again)
	require.NoError(t, err)
	assert.Equal(t, "v2", rule.Version)
	assert.Equal(t, time.Hour, rule.SuppressionDuration)

	fires := rule.Condition.Evaluate(map[string]float64{"gem_score": 25, "honeypot_detected": 1})
	assert.True(t, fires)
	fires = rule.Condition.Evaluate(map[string]float64{"gem_score": 25, "honeypot_detected": 0})
	assert.False(t, fires)
}
