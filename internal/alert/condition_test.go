package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCondition_SimpleCompares(t *testing.T) {
	c := Condition{Kind: NodeSimple, Metric: "score", Op: OpGTE, Threshold: 75}
	assert.True(t, c.Evaluate(map[string]float64{"score": 80}))
	assert.False(t, c.Evaluate(map[string]float64{"score": 70}))
}

func TestCondition_SimpleMissingMetricIsFalse(t *testing.T) {
	c := Condition{Kind: NodeSimple, Metric: "score", Op: OpGTE, Threshold: 75}
	assert.False(t, c.Evaluate(map[string]float64{}))
}

func TestCondition_AndShortCircuits(t *testing.T) {
	c := Condition{Kind: NodeAnd, Children: []Condition{
		{Kind: NodeSimple, Metric: "a", Op: OpGT, Threshold: 100},
		{Kind: NodeSimple, Metric: "b", Op: OpGT, Threshold: 0},
	}}
	assert.False(t, c.Evaluate(map[string]float64{"a": 0, "b": 1}))
}

func TestCondition_OrShortCircuits(t *testing.T) {
	c := Condition{Kind: NodeOr, Children: []Condition{
		{Kind: NodeSimple, Metric: "a", Op: OpGT, Threshold: 0},
		{Kind: NodeSimple, Metric: "b", Op: OpGT, Threshold: 100},
	}}
	assert.True(t, c.Evaluate(map[string]float64{"a": 1, "b": 0}))
}

func TestCondition_NotInverts(t *testing.T) {
	c := Condition{Kind: NodeNot, Children: []Condition{
		{Kind: NodeSimple, Metric: "a", Op: OpGT, Threshold: 0},
	}}
	assert.False(t, c.Evaluate(map[string]float64{"a": 1}))
	assert.True(t, c.Evaluate(map[string]float64{"a": -1}))
}

func TestCondition_ValidateRejectsBadNot(t *testing.T) {
	c := Condition{Kind: NodeNot, Children: []Condition{
		{Kind: NodeSimple, Metric: "a", Op: OpGT, Threshold: 0},
		{Kind: NodeSimple, Metric: "b", Op: OpGT, Threshold: 0},
	}}
	assert.Error(t, c.Validate())
}

func TestCondition_ValidateRejectsUnknownOp(t *testing.T) {
	c := Condition{Kind: NodeSimple, Metric: "a", Op: Op("between")}
	assert.Error(t, c.Validate())
}
