// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all collectors, registered on a dedicated registry so tests
// can build isolated instances.
type Metrics struct {
	Registry *prometheus.Registry

	JobsTotal          *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	VerificationsTotal *prometheus.CounterVec
	LeadsStored        prometheus.Counter
	LeadsExported      prometheus.Counter
}

// New builds and registers all pipeline collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadforge",
			Name:      "jobs_total",
			Help:      "Completed jobs by outcome.",
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadforge",
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		VerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadforge",
			Name:      "verifications_total",
			Help:      "Email verifications by resulting status.",
		}, []string{"status"}),
		LeadsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadforge",
			Name:      "leads_stored_total",
			Help:      "Leads written to storage.",
		}),
		LeadsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadforge",
			Name:      "leads_exported_total",
			Help:      "Leads pushed to the outreach platform.",
		}),
	}

	reg.MustRegister(
		m.JobsTotal,
		m.StageDuration,
		m.VerificationsTotal,
		m.LeadsStored,
		m.LeadsExported,
	)
	return m
}
