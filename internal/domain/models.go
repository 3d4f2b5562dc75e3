// Package domain provides the core value types shared by the risk modules.
// The domain layer is pure: no numeric library or infrastructure dependencies.
package domain

import (
	"fmt"
	"math"
	"strings"
)

// symmetryTolerance is the relative tolerance used when checking Σ for symmetry.
const symmetryTolerance = 1e-8

// MomentsModel is the input to every stage of the pipeline: ordered asset names,
// annualized mean returns, annualized covariance, risk-free rate and risk aversion.
type MomentsModel struct {
	Assets       []string    `json:"assets" yaml:"assets" validate:"required,min=1,dive,required"`
	Mu           []float64   `json:"mu" yaml:"mu" validate:"required,min=1"`
	Sigma        [][]float64 `json:"sigma" yaml:"sigma" validate:"required,min=1"`
	RiskFreeRate float64     `json:"risk_free_rate" yaml:"risk_free_rate"`
	RiskAversion float64     `json:"risk_aversion" yaml:"risk_aversion" validate:"gt=0"`
}

// Dim returns the number of assets.
func (m MomentsModel) Dim() int {
	return len(m.Assets)
}

// Validate checks dimensions, finiteness, symmetry and γ>0.
// Positive semi-definiteness is not required here; it is restored downstream.
func (m MomentsModel) Validate() error {
	n := len(m.Assets)
	if n == 0 {
		return fmt.Errorf("%w: moments model has no assets", ErrInvalidParameter)
	}

	seen := make(map[string]struct{}, n)
	for i, name := range m.Assets {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: asset %d has an empty name", ErrInvalidParameter, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate asset %q", ErrInvalidParameter, name)
		}
		seen[name] = struct{}{}
	}

	if len(m.Mu) != n {
		return fmt.Errorf("%w: mu has length %d, expected %d", ErrInvalidParameter, len(m.Mu), n)
	}
	if len(m.Sigma) != n {
		return fmt.Errorf("%w: sigma has %d rows, expected %d", ErrInvalidParameter, len(m.Sigma), n)
	}
	for i, row := range m.Sigma {
		if len(row) != n {
			return fmt.Errorf("%w: sigma row %d has size %d, expected %d", ErrInvalidParameter, i, len(row), n)
		}
	}

	for i, v := range m.Mu {
		if !isFinite(v) {
			return fmt.Errorf("%w: mu[%d] is not finite", ErrInvalidParameter, i)
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if !isFinite(m.Sigma[i][j]) {
				return fmt.Errorf("%w: sigma[%d][%d] is not finite", ErrInvalidParameter, i, j)
			}
		}
		if m.Sigma[i][i] < 0 {
			return fmt.Errorf("%w: sigma[%d][%d] is a negative variance", ErrInvalidParameter, i, i)
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := m.Sigma[i][j], m.Sigma[j][i]
			scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
			if math.Abs(a-b) > symmetryTolerance*scale {
				return fmt.Errorf("%w: sigma is not symmetric at (%d,%d)", ErrInvalidParameter, i, j)
			}
		}
	}

	if !isFinite(m.RiskFreeRate) {
		return fmt.Errorf("%w: risk-free rate is not finite", ErrInvalidParameter)
	}
	if !(m.RiskAversion > 0) || math.IsInf(m.RiskAversion, 0) {
		return fmt.Errorf("%w: risk aversion must be > 0, got %v", ErrInvalidParameter, m.RiskAversion)
	}

	return nil
}

// Clone returns a deep copy so transforms never alias the caller's slices.
func (m MomentsModel) Clone() MomentsModel {
	out := MomentsModel{
		Assets:       append([]string(nil), m.Assets...),
		Mu:           append([]float64(nil), m.Mu...),
		Sigma:        make([][]float64, len(m.Sigma)),
		RiskFreeRate: m.RiskFreeRate,
		RiskAversion: m.RiskAversion,
	}
	for i, row := range m.Sigma {
		out.Sigma[i] = append([]float64(nil), row...)
	}
	return out
}

// WithMoments returns a copy with mu and sigma replaced (deep-copied).
func (m MomentsModel) WithMoments(mu []float64, sigma [][]float64) MomentsModel {
	out := m.Clone()
	out.Mu = append([]float64(nil), mu...)
	out.Sigma = make([][]float64, len(sigma))
	for i, row := range sigma {
		out.Sigma[i] = append([]float64(nil), row...)
	}
	return out
}

// CheckWeights verifies a weight vector matches the model dimension and is finite.
func (m MomentsModel) CheckWeights(weights []float64) error {
	if len(weights) != m.Dim() {
		return fmt.Errorf("%w: weights have length %d, expected %d", ErrInvalidParameter, len(weights), m.Dim())
	}
	for i, w := range weights {
		if !isFinite(w) {
			return fmt.Errorf("%w: weight %d is not finite", ErrInvalidParameter, i)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
