package telemetry

import "time"

// NoopEmitter discards every observation. Used by tests and the backtest
// harness, which must not mutate process-wide metrics state.
type NoopEmitter struct{}

func (NoopEmitter) IncCounter(string, map[string]string)                  {}
func (NoopEmitter) ObserveLatency(string, map[string]string, time.Duration) {}
func (NoopEmitter) SetGauge(string, map[string]string, float64)           {}

var _ Emitter = NoopEmitter{}
