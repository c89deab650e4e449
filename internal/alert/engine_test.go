package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRule(t *testing.T, doc RuleDoc) *Rule {
	t.Helper()
	r, err := CompileRule(doc)
	require.NoError(t, err)
	return r
}

func TestEngine_EvaluateFiresOnMatchingRule(t *testing.T) {
	rule := mustRule(t, RuleDoc{ID: "r1", Severity: "high", Metric: "gem_score", Op: "gte", Threshold: 80, Template: "{symbol} scored {gem_score}"})
	e := NewEngine([]*Rule{rule})

	fired := e.Evaluate(Candidate{Token: "GEM", Timestamp: time.Now(), Metrics: map[string]float64{"gem_score": 90}})
	require.Len(t, fired, 1)
	assert.Equal(t, StatusPending, fired[0].Status)
	assert.Equal(t, "GEM scored 90", fired[0].Message)
}

func TestEngine_EvaluateSkipsDisabledRule(t *testing.T) {
	disabled := false
	rule := mustRule(t, RuleDoc{ID: "r1", Metric: "gem_score", Op: "gte", Threshold: 80, Enabled: &disabled})
	e := NewEngine([]*Rule{rule})

	fired := e.Evaluate(Candidate{Token: "GEM", Timestamp: time.Now(), Metrics: map[string]float64{"gem_score": 90}})
	assert.Empty(t, fired)
}

func TestEngine_SuppressesRepeatWithinWindow(t *testing.T) {
	rule := mustRule(t, RuleDoc{ID: "r1", Metric: "gem_score", Op: "gte", Threshold: 80, SuppressionSeconds: 600})
	e := NewEngine([]*Rule{rule})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := e.Evaluate(Candidate{Token: "GEM", Timestamp: base, Metrics: map[string]float64{"gem_score": 90}})
	require.Len(t, first, 1)
	assert.Equal(t, StatusPending, first[0].Status)

	second := e.Evaluate(Candidate{Token: "GEM", Timestamp: base.Add(2 * time.Minute), Metrics: map[string]float64{"gem_score": 95}})
	require.Len(t, second, 1)
	assert.Equal(t, StatusSuppressed, second[0].Status)
	assert.Equal(t, first[0].DedupeKey, second[0].DedupeKey)
}

func TestEngine_DifferentTokenNotSuppressed(t *testing.T) {
	rule := mustRule(t, RuleDoc{ID: "r1", Metric: "gem_score", Op: "gte", Threshold: 80})
	e := NewEngine([]*Rule{rule})

	now := time.Now()
	e.Evaluate(Candidate{Token: "GEM", Timestamp: now, Metrics: map[string]float64{"gem_score": 90}})
	fired := e.Evaluate(Candidate{Token: "OTHER", Timestamp: now, Metrics: map[string]float64{"gem_score": 90}})
	require.Len(t, fired, 1)
	assert.Equal(t, StatusPending, fired[0].Status)
}

func TestEngine_CheckEscalationsFiresAfterThreshold(t *testing.T) {
	rule := mustRule(t, RuleDoc{
		ID: "r1", Metric: "gem_score", Op: "gte", Threshold: 80,
		Escalation: &EscalationDoc{Name: "esc", Steps: []EscalationStepDoc{
			{AfterSeconds: 300, Channels: []string{"slack"}},
			{AfterSeconds: 900, Channels: []string{"pagerduty"}},
		}},
	})
	e := NewEngine([]*Rule{rule})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pending := []Fired{{ID: "a1", RuleID: "r1", Timestamp: base, Status: StatusPending}}

	dispatches := e.CheckEscalations(pending, base.Add(10*time.Minute))
	require.Len(t, dispatches, 1)
	assert.Equal(t, []string{"slack"}, dispatches[0].Channels)

	dispatches = e.CheckEscalations(pending, base.Add(20*time.Minute))
	require.Len(t, dispatches, 2)
}

func TestEngine_CheckEscalationsIgnoresDeliveredAlerts(t *testing.T) {
	rule := mustRule(t, RuleDoc{
		ID: "r1", Metric: "gem_score", Op: "gte", Threshold: 80,
		Escalation: &EscalationDoc{Name: "esc", Steps: []EscalationStepDoc{{AfterSeconds: 60, Channels: []string{"slack"}}}},
	})
	e := NewEngine([]*Rule{rule})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	delivered := []Fired{{ID: "a1", RuleID: "r1", Timestamp: base, Status: StatusDelivered}}

	dispatches := e.CheckEscalations(delivered, base.Add(time.Hour))
	assert.Empty(t, dispatches)
}
