// Package allocation computes closed-form Merton allocations from a moments model.
package allocation

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/covariance"
	"github.com/aristath/sentinel-risk/pkg/logger"
)

const (
	// degenerateTotal is the |Σw| below which weights cannot be normalized.
	degenerateTotal = 1e-10
	// zeroVolatility is the volatility below which Sharpe is reported as 0.
	zeroVolatility = 1e-12
)

// Options controls post-processing of the raw Merton weights.
type Options struct {
	AllowShort bool `json:"allow_short" yaml:"allow_short"`
	// MaxLeverage caps gross exposure Σ|w| when not normalizing. 0 means 1.
	MaxLeverage float64 `json:"max_leverage" yaml:"max_leverage" validate:"gte=0"`
	// MinWeight zeroes weights with |w| below it.
	MinWeight float64 `json:"min_weight" yaml:"min_weight" validate:"gte=0"`
	Normalize bool    `json:"normalize" yaml:"normalize"`
}

// DefaultOptions is long-only, fully invested.
func DefaultOptions() Options {
	return Options{AllowShort: false, MaxLeverage: 1, Normalize: true}
}

func (o Options) withDefaults() Options {
	if o.MaxLeverage == 0 {
		o.MaxLeverage = 1
	}
	return o
}

// Validate rejects negative or non-finite limits.
func (o Options) Validate() error {
	if !(o.MaxLeverage > 0) || math.IsInf(o.MaxLeverage, 0) {
		return fmt.Errorf("%w: max leverage must be > 0, got %v", domain.ErrInvalidParameter, o.MaxLeverage)
	}
	if o.MinWeight < 0 || math.IsNaN(o.MinWeight) {
		return fmt.Errorf("%w: min weight must be >= 0, got %v", domain.ErrInvalidParameter, o.MinWeight)
	}
	return nil
}

// Stats are the figures derived from a weight vector. They are always recomputed
// from the weights, never carried independently.
type Stats struct {
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
	Sharpe         float64 `json:"sharpe"`
	Leverage       float64 `json:"leverage"`
}

// Result is an allocation and its derived statistics.
type Result struct {
	Assets     []string         `json:"assets"`
	Weights    []float64        `json:"weights"`
	RawWeights []float64        `json:"raw_weights"`
	Fallbacks  domain.Fallbacks `json:"fallbacks,omitempty"`
	Stats
}

// Solver computes w = (1/γ)·Σ⁻¹(μ − rf·1) and applies the allocation constraints.
type Solver struct {
	log zerolog.Logger
}

// NewSolver creates a new allocation solver.
func NewSolver(log zerolog.Logger) *Solver {
	return &Solver{
		log: logger.Component(log, "allocation_solver"),
	}
}

// Solve returns the constrained Merton allocation for model. A singular covariance is
// inverted with the pseudo-inverse and an all-zero allocation falls back to equal
// weights; both are recorded in Result.Fallbacks.
func (s *Solver) Solve(model domain.MomentsModel, opts Options) (Result, error) {
	if err := model.Validate(); err != nil {
		return Result{}, err
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}

	n := model.Dim()
	var fallbacks domain.Fallbacks

	excess := make([]float64, n)
	for i, m := range model.Mu {
		excess[i] = m - model.RiskFreeRate
	}

	inv, usedPinv := covariance.Inverse(model.Sigma)
	if usedPinv {
		fallbacks = fallbacks.Add(domain.FallbackPseudoInverse)
		s.log.Warn().Int("assets", n).Msg("Covariance singular or ill-conditioned, using pseudo-inverse")
	}

	raw := covariance.MulVec(inv, excess)
	floats.Scale(1/model.RiskAversion, raw)

	weights := append([]float64(nil), raw...)
	for i, w := range weights {
		if !opts.AllowShort && w < 0 {
			weights[i] = 0
		}
		if math.Abs(weights[i]) < opts.MinWeight {
			weights[i] = 0
		}
	}

	gross := grossExposure(weights)
	total := floats.Sum(weights)
	degenerate := gross < degenerateTotal || (opts.Normalize && math.Abs(total) < degenerateTotal)

	switch {
	case degenerate:
		for i := range weights {
			weights[i] = 1 / float64(n)
		}
		fallbacks = fallbacks.Add(domain.FallbackEqualWeights)
		s.log.Warn().
			Float64("total", total).
			Float64("gross", gross).
			Msg("Allocation degenerate, falling back to equal weights")
	case opts.Normalize:
		floats.Scale(1/total, weights)
	case gross > opts.MaxLeverage:
		floats.Scale(opts.MaxLeverage/gross, weights)
		fallbacks = fallbacks.Add(domain.FallbackLeverageScaled)
		s.log.Debug().
			Float64("gross", gross).
			Float64("max_leverage", opts.MaxLeverage).
			Msg("Scaled allocation down to leverage cap")
	}

	stats, err := ComputeStats(model, weights)
	if err != nil {
		return Result{}, err
	}
	if stats.Volatility < zeroVolatility {
		fallbacks = fallbacks.Add(domain.FallbackZeroVolatility)
	}

	s.log.Debug().
		Int("assets", n).
		Float64("expected_return", stats.ExpectedReturn).
		Float64("volatility", stats.Volatility).
		Float64("sharpe", stats.Sharpe).
		Msg("Solved allocation")

	return Result{
		Assets:     append([]string(nil), model.Assets...),
		Weights:    weights,
		RawWeights: raw,
		Fallbacks:  fallbacks,
		Stats:      stats,
	}, nil
}

// ComputeStats derives expected return w·μ, volatility √(w'Σw), Sharpe and gross
// leverage for any weight vector. Sharpe is 0 when volatility is ~0.
func ComputeStats(model domain.MomentsModel, weights []float64) (Stats, error) {
	if err := model.CheckWeights(weights); err != nil {
		return Stats{}, err
	}

	ret := floats.Dot(weights, model.Mu)
	variance := covariance.QuadForm(model.Sigma, weights)
	vol := math.Sqrt(math.Max(variance, 0))

	sharpe := 0.0
	if vol >= zeroVolatility {
		sharpe = (ret - model.RiskFreeRate) / vol
	}

	return Stats{
		ExpectedReturn: ret,
		Volatility:     vol,
		Sharpe:         sharpe,
		Leverage:       grossExposure(weights),
	}, nil
}

// Evaluate wraps caller-supplied weights in a Result without re-solving.
func Evaluate(model domain.MomentsModel, weights []float64) (Result, error) {
	stats, err := ComputeStats(model, weights)
	if err != nil {
		return Result{}, err
	}
	var fallbacks domain.Fallbacks
	if stats.Volatility < zeroVolatility {
		fallbacks = fallbacks.Add(domain.FallbackZeroVolatility)
	}
	w := append([]float64(nil), weights...)
	return Result{
		Assets:     append([]string(nil), model.Assets...),
		Weights:    w,
		RawWeights: append([]float64(nil), weights...),
		Fallbacks:  fallbacks,
		Stats:      stats,
	}, nil
}

func grossExposure(weights []float64) float64 {
	return floats.Norm(weights, 1)
}
