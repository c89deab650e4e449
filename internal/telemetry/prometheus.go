package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusEmitter implements Emitter over a dedicated
// prometheus.Registry: vectors keyed by metric name, lazily created on
// first use since the engine's callers (reliability primitives, scan
// orchestrator, outbox dispatcher) don't know their label sets until
// runtime.
type PrometheusEmitter struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusEmitter creates an emitter backed by its own registry so the
// engine never touches prometheus.DefaultRegisterer (callers can still
// expose it to an HTTP handler via Registry()).
func NewPrometheusEmitter() *PrometheusEmitter {
	return &PrometheusEmitter{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Registry exposes the underlying registry for a caller-owned promhttp.Handler.
func (e *PrometheusEmitter) Registry() *prometheus.Registry { return e.registry }

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *PrometheusEmitter) counterVec(name string, keys []string) *prometheus.CounterVec {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cv, ok := e.counters[name]; ok {
		return cv
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autotrader_" + name,
		Help: name,
	}, keys)
	e.registry.MustRegister(cv)
	e.counters[name] = cv
	return cv
}

func (e *PrometheusEmitter) histogramVec(name string, keys []string) *prometheus.HistogramVec {
	e.mu.Lock()
	defer e.mu.Unlock()
	if hv, ok := e.histograms[name]; ok {
		return hv
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autotrader_" + name,
		Help:    name,
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, keys)
	e.registry.MustRegister(hv)
	e.histograms[name] = hv
	return hv
}

func (e *PrometheusEmitter) gaugeVec(name string, keys []string) *prometheus.GaugeVec {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gv, ok := e.gauges[name]; ok {
		return gv
	}
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autotrader_" + name,
		Help: name,
	}, keys)
	e.registry.MustRegister(gv)
	e.gauges[name] = gv
	return gv
}

func (e *PrometheusEmitter) IncCounter(name string, labels map[string]string) {
	keys := labelKeys(labels)
	cv := e.counterVec(name, keys)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = labels[k]
	}
	cv.WithLabelValues(vals...).Inc()
}

func (e *PrometheusEmitter) ObserveLatency(name string, labels map[string]string, d time.Duration) {
	keys := labelKeys(labels)
	hv := e.histogramVec(name, keys)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = labels[k]
	}
	hv.WithLabelValues(vals...).Observe(d.Seconds())
}

func (e *PrometheusEmitter) SetGauge(name string, labels map[string]string, value float64) {
	keys := labelKeys(labels)
	gv := e.gaugeVec(name, keys)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = labels[k]
	}
	gv.WithLabelValues(vals...).Set(value)
}

var _ Emitter = (*PrometheusEmitter)(nil)
