package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-risk/internal/domain"
)

func TestRecordSimulation(t *testing.T) {
	m := New()
	m.RecordSimulation(domain.MethodCorrelated, nil, 1000)
	m.RecordSimulation(domain.MethodCorrelated, nil, 500)
	m.RecordSimulation(domain.MethodScalarGBM, errors.New("boom"), 500)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SimulationRunsTotal.WithLabelValues("correlated", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SimulationRunsTotal.WithLabelValues("scalar_gbm", "error")))
	assert.Equal(t, 1500.0, testutil.ToFloat64(m.SimulationPathsTotal))
}

func TestRecordScenarioAndBacktest(t *testing.T) {
	m := New()
	m.RecordScenario(false)
	m.RecordScenario(true)
	m.RecordScenario(false)
	m.RecordBacktest("adequate")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScenarioRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScenarioRunsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BacktestRunsTotal.WithLabelValues("adequate")))
}

func TestRecordFallbacks(t *testing.T) {
	m := New()
	m.RecordFallbacks(domain.Fallbacks{domain.FallbackCovarianceRegularized, domain.FallbackEqualWeights})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CovarianceRegularizations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("equal_weights")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSimulation(domain.MethodCorrelated, nil, 1)
		m.RecordDuration("run", time.Second)
		m.RecordScenario(true)
		m.RecordBacktest("adequate")
		m.RecordFallbacks(domain.Fallbacks{domain.FallbackPseudoInverse})
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordDuration("run", 250*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "sentinel_risk_simulation_duration_seconds"))
}
