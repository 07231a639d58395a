// Package metrics constructs the metrics the application will track.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics represents the set of metrics we gather. These fields are
// safe to be accessed concurrently thanks to prometheus.
type Metrics struct {
	Requests   prometheus.Counter
	Errors     prometheus.Counter
	Panics     prometheus.Counter
	Goroutines prometheus.Gauge
}

// New constructs the web metrics and registers them.
func New(reg prometheus.Registerer) *Metrics {
	m := Metrics{
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "node_requests_total",
			Help: "Number of requests handled.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "node_errors_total",
			Help: "Number of requests that failed.",
		}),
		Panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "node_panics_total",
			Help: "Number of requests that panicked.",
		}),
		Goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "node_goroutines",
			Help: "Number of goroutines sampled every 100 requests.",
		}),
	}

	reg.MustRegister(m.Requests, m.Errors, m.Panics, m.Goroutines)

	return &m
}

// =============================================================================

// Status is the subset of the engine status reported as gauges.
type Status struct {
	ChainLength  uint64
	PendingCount int
	Difficulty   float64
}

// RegisterChain registers gauges reading the engine status on collection.
func RegisterChain(reg prometheus.Registerer, status func() Status) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chain_length",
			Help: "Number of blocks including genesis.",
		},
		func() float64 {
			return float64(status().ChainLength)
		}))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chain_pending_transactions",
			Help: "Number of transactions in the mempool.",
		},
		func() float64 {
			return float64(status().PendingCount)
		}))

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chain_difficulty",
			Help: "Difficulty level or value threshold in effect for the next block.",
		},
		func() float64 {
			return status().Difficulty
		}))
}
