// Package telemetry gives the engine an explicit metrics collaborator
// instead of a touched global: components take an Emitter rather than
// reaching for a package-level singleton. Logging setup (zerolog) lives
// alongside it since both are wired from the same place at startup.
package telemetry

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Emitter is the engine-facing metrics contract. Every component that wants
// to record a counter, gauge, or latency observation takes one of these as a
// constructor argument; nothing in the engine imports a concrete metrics
// backend directly.
type Emitter interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, labels map[string]string, d time.Duration)
	SetGauge(name string, labels map[string]string, value float64)
}

// ConfigureLogging sets up the global zerolog logger: RFC3339 timestamps,
// console writer for an interactive terminal, otherwise plain JSON to
// stderr.
func ConfigureLogging(pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
