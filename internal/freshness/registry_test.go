package freshness

import (
	"testing"
	"time"

	"github.com/sawpanic/autotrader/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestLevel_TransitionsAtExactMultiples(t *testing.T) {
	r := New()
	freq := 10 * time.Second
	r.Configure("dex", freq, 0)

	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixedNow }

	cases := []struct {
		successAt time.Time
		want      model.FreshnessLevel
	}{
		{fixedNow.Add(-freq), model.FreshnessFresh},
		{fixedNow.Add(-freq - time.Nanosecond), model.FreshnessRecent},
		{fixedNow.Add(-2 * freq), model.FreshnessRecent},
		{fixedNow.Add(-2*freq - time.Nanosecond), model.FreshnessStale},
		{fixedNow.Add(-5 * freq), model.FreshnessStale},
		{fixedNow.Add(-5*freq - time.Nanosecond), model.FreshnessOutdated},
	}
	for _, c := range cases {
		r.RecordSuccess("dex", c.successAt)
		assert.Equal(t, c.want, r.Level("dex"), "successAt=%v", c.successAt)
	}
}

func TestSLAViolated(t *testing.T) {
	r := New()
	r.Configure("onchain", time.Minute, 30*time.Second)
	r.RecordSuccess("onchain", time.Now().Add(-45*time.Second))
	assert.True(t, r.SLAViolated("onchain"))

	r.RecordSuccess("onchain", time.Now())
	assert.False(t, r.SLAViolated("onchain"))
}

func TestSLADisabledWhenMaxAgeZero(t *testing.T) {
	r := New()
	r.Configure("social", time.Minute, 0)
	r.RecordSuccess("social", time.Now().Add(-time.Hour))
	assert.False(t, r.SLAViolated("social"))
}

func TestUnknownSourceIsOutdated(t *testing.T) {
	r := New()
	assert.Equal(t, model.FreshnessOutdated, r.Level("never-seen"))
}
