package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRender_SubstitutesKnownKeys(t *testing.T) {
	out := render("{symbol} hit {gem_score}", map[string]interface{}{"symbol": "GEM", "gem_score": 85.5})
	assert.Equal(t, "GEM hit 85.5", out)
}

func TestRender_MissingKeyLeavesPlaceholderLiteral(t *testing.T) {
	out := render("{symbol} moved {unknown_metric}", map[string]interface{}{"symbol": "GEM"})
	assert.Equal(t, "GEM moved {unknown_metric}", out)
}

func TestRender_UnclosedBraceIsLiteral(t *testing.T) {
	out := render("score {gem_score", map[string]interface{}{"gem_score": 1.0})
	assert.Equal(t, "score {gem_score", out)
}

func TestRender_BoolAndIntValues(t *testing.T) {
	out := render("honeypot={honeypot} holders={holders}", map[string]interface{}{"honeypot": true, "holders": 1200})
	assert.Equal(t, "honeypot=true holders=1200", out)
}

func TestTemplateVars_PrefixesPriorAndDiff(t *testing.T) {
	c := Candidate{
		Token:       "GEM",
		Timestamp:   time.Now(),
		Metrics:     map[string]float64{"gem_score": 80},
		PriorPeriod: map[string]float64{"gem_score": 70},
		FeatureDiff: map[string]float64{"Sentiment": 0.1},
	}
	vars := templateVars(c)
	assert.Equal(t, "GEM", vars["symbol"])
	assert.Equal(t, 80.0, vars["gem_score"])
	assert.Equal(t, 70.0, vars["prior_gem_score"])
	assert.Equal(t, 0.1, vars["diff_Sentiment"])
}
