// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Config holds application configuration
type Config struct {
	Port           int
	LogLevel       string
	LogPretty      bool
	DevMode        bool
	RequestTimeout time.Duration
	Simulation     SimulationConfig
	RiskFreeRate   float64
}

// SimulationConfig holds the Monte Carlo defaults and limits
type SimulationConfig struct {
	Workers             int
	DefaultPaths        int
	DefaultSteps        int
	MaxPaths            int
	RetainPaths         int
	ScenarioConcurrency int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnvAsInt("PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("LOG_PRETTY", false),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 120)) * time.Second,
		RiskFreeRate:   getEnvAsFloat("RISK_FREE_RATE", 0.02),
		Simulation: SimulationConfig{
			Workers:             getEnvAsInt("SIM_WORKERS", defaultWorkers()),
			DefaultPaths:        getEnvAsInt("SIM_DEFAULT_PATHS", 10000),
			DefaultSteps:        getEnvAsInt("SIM_DEFAULT_STEPS", 252),
			MaxPaths:            getEnvAsInt("SIM_MAX_PATHS", 200000),
			RetainPaths:         getEnvAsInt("SIM_RETAIN_PATHS", 100),
			ScenarioConcurrency: getEnvAsInt("SCENARIO_CONCURRENCY", 4),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configured limits are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}

	sim := c.Simulation
	if sim.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be positive, got %d", sim.Workers)
	}
	if sim.DefaultPaths <= 0 || sim.DefaultSteps <= 0 || sim.MaxPaths <= 0 {
		return fmt.Errorf("SIM_DEFAULT_PATHS, SIM_DEFAULT_STEPS and SIM_MAX_PATHS must be positive")
	}
	if sim.DefaultPaths > sim.MaxPaths {
		return fmt.Errorf("SIM_DEFAULT_PATHS (%d) exceeds SIM_MAX_PATHS (%d)", sim.DefaultPaths, sim.MaxPaths)
	}
	if sim.RetainPaths < -1 {
		return fmt.Errorf("SIM_RETAIN_PATHS must be >= -1, got %d", sim.RetainPaths)
	}
	if sim.ScenarioConcurrency <= 0 {
		return fmt.Errorf("SCENARIO_CONCURRENCY must be positive, got %d", sim.ScenarioConcurrency)
	}
	return nil
}

// defaultWorkers is the logical CPU count.
func defaultWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
