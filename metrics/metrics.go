// Package metrics exposes simulation progress as Prometheus metrics.
package metrics

import (
	"github.com/leomarlo/simulate-sis-on-circle/sis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the status label of RunsTotal.
const (
	RunOK       = "ok"
	RunRejected = "rejected"
	RunInvalid  = "invalid"
)

// Registry holds the simulation metrics. It implements sis.Observer so it
// can be attached to a simulator with sis.WithObserver.
type Registry struct {
	registry *prometheus.Registry

	StepsTotal      prometheus.Counter
	InfectionsTotal prometheus.Counter
	RecoveriesTotal prometheus.Counter
	InfectedNodes   prometheus.Gauge
	Prevalence      prometheus.Gauge
	RunsTotal       *prometheus.CounterVec
}

// NewRegistry creates a registry with all the simulation metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.StepsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sis_steps_total",
			Help: "Total number of simulated steps",
		},
	)

	r.InfectionsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sis_infections_total",
			Help: "Total number of susceptible to infected transitions",
		},
	)

	r.RecoveriesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "sis_recoveries_total",
			Help: "Total number of infected to susceptible transitions",
		},
	)

	r.InfectedNodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sis_infected_nodes",
			Help: "Number of infected nodes after the last step",
		},
	)

	r.Prevalence = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "sis_prevalence_ratio",
			Help: "Fraction of infected nodes after the last step",
		},
	)

	r.RunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "sis_runs_total",
			Help: "Total number of requested runs by outcome",
		},
		[]string{"status"},
	)

	return r
}

// Gatherer returns the underlying Prometheus gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveStep records a simulated step.
func (r *Registry) ObserveStep(step int, states sis.Snapshot, changes []sis.StateChange) {
	r.StepsTotal.Inc()
	for _, c := range changes {
		if c.Previous == sis.Infected {
			r.RecoveriesTotal.Inc()
		} else {
			r.InfectionsTotal.Inc()
		}
	}

	infected := states.NumInfected()
	r.InfectedNodes.Set(float64(infected))
	if len(states) > 0 {
		r.Prevalence.Set(float64(infected) / float64(len(states)))
	}
}

// RecordRun records the outcome of a run.
func (r *Registry) RecordRun(status string) {
	r.RunsTotal.WithLabelValues(status).Inc()
}

// WriteTextfile writes all the metrics to path in the Prometheus text format,
// for instance to be picked up by node_exporter's textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
