package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "LOG_PRETTY", "SIM_WORKERS", "SIM_DEFAULT_PATHS",
		"SIM_DEFAULT_STEPS", "SIM_MAX_PATHS", "SIM_RETAIN_PATHS", "SCENARIO_CONCURRENCY",
		"RISK_FREE_RATE", "REQUEST_TIMEOUT_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 0.02, cfg.RiskFreeRate)
	assert.Greater(t, cfg.Simulation.Workers, 0)
	assert.Equal(t, 10000, cfg.Simulation.DefaultPaths)
	assert.Equal(t, 252, cfg.Simulation.DefaultSteps)
	assert.Equal(t, 200000, cfg.Simulation.MaxPaths)
	assert.Equal(t, 100, cfg.Simulation.RetainPaths)
	assert.Equal(t, 4, cfg.Simulation.ScenarioConcurrency)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("SIM_WORKERS", "3")
	t.Setenv("SIM_DEFAULT_PATHS", "5000")
	t.Setenv("RISK_FREE_RATE", "0.035")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, 3, cfg.Simulation.Workers)
	assert.Equal(t, 5000, cfg.Simulation.DefaultPaths)
	assert.Equal(t, 0.035, cfg.RiskFreeRate)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("RISK_FREE_RATE", "abc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 0.02, cfg.RiskFreeRate)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:           8080,
			RequestTimeout: time.Minute,
			Simulation: SimulationConfig{
				Workers: 2, DefaultPaths: 100, DefaultSteps: 10, MaxPaths: 1000,
				RetainPaths: 10, ScenarioConcurrency: 2,
			},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Simulation.Workers = 0 }},
		{"zero paths", func(c *Config) { c.Simulation.DefaultPaths = 0 }},
		{"paths above max", func(c *Config) { c.Simulation.DefaultPaths = 5000 }},
		{"negative steps", func(c *Config) { c.Simulation.DefaultSteps = -1 }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"retain below -1", func(c *Config) { c.Simulation.RetainPaths = -2 }},
		{"zero concurrency", func(c *Config) { c.Simulation.ScenarioConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
