package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-risk/internal/config"
	"github.com/aristath/sentinel-risk/internal/metrics"
	"github.com/aristath/sentinel-risk/internal/modules/engine"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	cfg := &config.Config{
		Port:           8080,
		DevMode:        true,
		RequestTimeout: 30 * time.Second,
		RiskFreeRate:   0.02,
		Simulation: config.SimulationConfig{
			Workers:             2,
			DefaultPaths:        300,
			DefaultSteps:        12,
			MaxPaths:            1000,
			RetainPaths:         5,
			ScenarioConcurrency: 2,
		},
	}
	m := metrics.New()
	svc := engine.New(engine.Options{Workers: 2, ScenarioConcurrency: 2}, m, logger)
	return New(Config{Log: logger, Config: cfg, Engine: svc, Metrics: m})
}

func TestHealth(t *testing.T) {
	s := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "sentinel-risk", body["service"])
	assert.EqualValues(t, 2, body["workers"])
	assert.Contains(t, body, "cpu_percent")
	assert.Contains(t, body, "memory_percent")
}

func TestRiskRunIsCountedInMetrics(t *testing.T) {
	s := setupServer(t)

	body := `{"model": {"assets": ["EQ", "BOND"], "mu": [0.08, 0.05], "sigma": [[0.04, 0.01], [0.01, 0.02]], "risk_free_rate": 0.02, "risk_aversion": 3}, "config": {"seed": 1}}`
	req := httptest.NewRequest(http.MethodPost, "/api/risk", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	out, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(out), `sentinel_risk_simulation_runs_total{method="correlated",status="success"} 1`)
	assert.Contains(t, string(out), "sentinel_risk_simulation_paths_total 300")
}

func TestUnknownRoute(t *testing.T) {
	s := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAllocationRouteRejectsGet(t *testing.T) {
	s := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/allocation", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
