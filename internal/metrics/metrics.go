// Package metrics provides the Prometheus collectors for the risk engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/sentinel-risk/internal/domain"
)

const namespace = "sentinel_risk"

// Metrics owns a registry and the engine's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SimulationRunsTotal       *prometheus.CounterVec
	SimulationPathsTotal      prometheus.Counter
	SimulationDuration        *prometheus.HistogramVec
	ScenarioRunsTotal         *prometheus.CounterVec
	BacktestRunsTotal         *prometheus.CounterVec
	CovarianceRegularizations prometheus.Counter
	FallbacksTotal            *prometheus.CounterVec
}

// New creates a registry with the engine collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SimulationRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_runs_total",
			Help:      "Total number of simulation runs",
		}, []string{"method", "status"}),
		SimulationPathsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_paths_total",
			Help:      "Total number of simulated wealth paths",
		}),
		SimulationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		ScenarioRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenario_runs_total",
			Help:      "Total number of stress scenarios evaluated",
		}, []string{"status"}),
		BacktestRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtest_runs_total",
			Help:      "Total number of VaR backtests by verdict",
		}, []string{"verdict"}),
		CovarianceRegularizations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "covariance_regularizations_total",
			Help:      "Total number of covariance matrices regularized before factorization",
		}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of numerical fallbacks by kind",
		}, []string{"fallback"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SimulationRunsTotal,
		m.SimulationPathsTotal,
		m.SimulationDuration,
		m.ScenarioRunsTotal,
		m.BacktestRunsTotal,
		m.CovarianceRegularizations,
		m.FallbacksTotal,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler for the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSimulation records one simulation run.
func (m *Metrics) RecordSimulation(method domain.SimulationMethod, err error, paths int) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SimulationRunsTotal.WithLabelValues(string(method), status).Inc()
	if err == nil {
		m.SimulationPathsTotal.Add(float64(paths))
	}
}

// RecordDuration observes how long an engine operation took.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.SimulationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordScenario records one scenario outcome.
func (m *Metrics) RecordScenario(failed bool) {
	if m == nil {
		return
	}
	status := "success"
	if failed {
		status = "failed"
	}
	m.ScenarioRunsTotal.WithLabelValues(status).Inc()
}

// RecordBacktest records one backtest verdict.
func (m *Metrics) RecordBacktest(verdict string) {
	if m == nil {
		return
	}
	m.BacktestRunsTotal.WithLabelValues(verdict).Inc()
}

// RecordFallbacks counts every fallback marker of a result.
func (m *Metrics) RecordFallbacks(fs domain.Fallbacks) {
	if m == nil {
		return
	}
	for _, f := range fs {
		m.FallbacksTotal.WithLabelValues(string(f)).Inc()
		if f == domain.FallbackCovarianceRegularized {
			m.CovarianceRegularizations.Inc()
		}
	}
}
