package sla

import (
	"testing"
	"time"

	"github.com/sawpanic/autotrader/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestTracker_HealthyAboveNinetyNine(t *testing.T) {
	tr := New(time.Minute)
	now := time.Now()
	for i := 0; i < 200; i++ {
		tr.Record(now, now.Add(10*time.Millisecond), true)
	}
	snap := tr.Snapshot("dex")
	assert.Equal(t, model.HealthHealthy, snap.State)
	assert.Equal(t, 1.0, snap.SuccessRate)
}

func TestTracker_DegradedBetweenNinetyAndNinetyNine(t *testing.T) {
	tr := New(time.Minute)
	now := time.Now()
	for i := 0; i < 95; i++ {
		tr.Record(now, now.Add(time.Millisecond), true)
	}
	for i := 0; i < 5; i++ {
		tr.Record(now, now.Add(time.Millisecond), false)
	}
	snap := tr.Snapshot("dex")
	assert.Equal(t, model.HealthDegraded, snap.State)
}

func TestTracker_FailedBelowNinety(t *testing.T) {
	tr := New(time.Minute)
	now := time.Now()
	for i := 0; i < 50; i++ {
		tr.Record(now, now.Add(time.Millisecond), false)
	}
	for i := 0; i < 50; i++ {
		tr.Record(now, now.Add(time.Millisecond), true)
	}
	snap := tr.Snapshot("dex")
	assert.Equal(t, model.HealthFailed, snap.State)
}

func TestTracker_EmptyWindowIsHealthy(t *testing.T) {
	tr := New(time.Minute)
	snap := tr.Snapshot("unused")
	assert.Equal(t, model.HealthHealthy, snap.State)
}
