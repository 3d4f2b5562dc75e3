package domain

import (
	"fmt"
	"math"
)

// SimulationMethod selects how wealth paths are generated.
type SimulationMethod string

const (
	// MethodCorrelated simulates every asset with Cholesky-correlated shocks. Canonical.
	MethodCorrelated SimulationMethod = "correlated"
	// MethodScalarGBM simulates the portfolio as a single GBM. Valid only for static weights.
	MethodScalarGBM SimulationMethod = "scalar_gbm"
)

const (
	// DefaultWealthFloor is the absorbing level as a fraction of initial capital.
	DefaultWealthFloor = 1e-6
	// DefaultMaxSummaryPoints bounds the time grid used for percentile curves.
	DefaultMaxSummaryPoints = 253
)

// SimulationConfig describes one Monte Carlo run. A nil Seed means nondeterministic.
type SimulationConfig struct {
	Paths int `json:"paths" yaml:"paths" validate:"gt=0"`
	Steps int `json:"steps" yaml:"steps" validate:"gt=0"`
	// Horizon is in years.
	Horizon float64 `json:"horizon" yaml:"horizon" validate:"gt=0"`
	Seed    *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Workers int     `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0"`
	// RetainPaths is the number of full paths kept; -1 keeps all.
	RetainPaths int `json:"retain_paths,omitempty" yaml:"retain_paths,omitempty" validate:"gte=-1"`
	// SummaryPoints is the size of the percentile time grid; 0 means default.
	SummaryPoints int              `json:"summary_points,omitempty" yaml:"summary_points,omitempty"`
	Method        SimulationMethod `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,oneof=correlated scalar_gbm"`
	// WealthFloor is the absorbing level as a fraction of initial capital.
	WealthFloor float64 `json:"wealth_floor,omitempty" yaml:"wealth_floor,omitempty" validate:"gte=0,lt=1"`
}

// Validate rejects non-positive counts and horizons.
func (c SimulationConfig) Validate() error {
	if c.Paths <= 0 {
		return fmt.Errorf("%w: paths must be > 0, got %d", ErrInvalidParameter, c.Paths)
	}
	if c.Steps <= 0 {
		return fmt.Errorf("%w: steps must be > 0, got %d", ErrInvalidParameter, c.Steps)
	}
	if !(c.Horizon > 0) || math.IsInf(c.Horizon, 0) {
		return fmt.Errorf("%w: horizon must be > 0, got %v", ErrInvalidParameter, c.Horizon)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidParameter, c.Workers)
	}
	if c.RetainPaths < -1 {
		return fmt.Errorf("%w: retain_paths must be >= -1, got %d", ErrInvalidParameter, c.RetainPaths)
	}
	if c.SummaryPoints < 0 || c.SummaryPoints == 1 {
		return fmt.Errorf("%w: summary_points must be 0 or >= 2, got %d", ErrInvalidParameter, c.SummaryPoints)
	}
	if c.WealthFloor < 0 || c.WealthFloor >= 1 {
		return fmt.Errorf("%w: wealth_floor must be in [0,1), got %v", ErrInvalidParameter, c.WealthFloor)
	}
	switch c.Method {
	case "", MethodCorrelated, MethodScalarGBM:
	default:
		return fmt.Errorf("%w: unknown simulation method %q", ErrInvalidParameter, c.Method)
	}
	return nil
}

// WithDefaults fills zero-valued optional fields.
func (c SimulationConfig) WithDefaults() SimulationConfig {
	if c.Method == "" {
		c.Method = MethodCorrelated
	}
	if c.WealthFloor == 0 {
		c.WealthFloor = DefaultWealthFloor
	}
	if c.SummaryPoints == 0 {
		c.SummaryPoints = c.Steps + 1
		if c.SummaryPoints > DefaultMaxSummaryPoints {
			c.SummaryPoints = DefaultMaxSummaryPoints
		}
	}
	if c.SummaryPoints > c.Steps+1 {
		c.SummaryPoints = c.Steps + 1
	}
	return c
}

// Dt returns the step length in years.
func (c SimulationConfig) Dt() float64 {
	return c.Horizon / float64(c.Steps)
}

// Seeded returns a copy with the given seed.
func (c SimulationConfig) Seeded(seed uint64) SimulationConfig {
	c.Seed = &seed
	return c
}
