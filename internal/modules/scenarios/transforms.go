// Package scenarios perturbs a moments model into named stress scenarios and
// re-runs the simulation pipeline for each of them.
package scenarios

import (
	"fmt"
	"math"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/covariance"
)

// Kind selects the transform a scenario applies to (μ, Σ).
type Kind string

const (
	KindBaseline         Kind = "baseline"
	KindMuScale          Kind = "mu_scale"
	KindSigmaScale       Kind = "sigma_scale"
	KindCorrelationShock Kind = "correlation_shock"
	KindAdversarial      Kind = "adversarial"
)

const (
	// maxCorrelation bounds shocked off-diagonal correlations.
	maxCorrelation = 0.999
	// correlationRidge is added to the diagonal after a correlation shock.
	correlationRidge = 1e-8
	// eigenFloor is the smallest eigenvalue kept in the adversarial covariance.
	eigenFloor = 1e-8
)

// Definition names a scenario and parameterizes its transform.
type Definition struct {
	Name            string  `json:"name" yaml:"name" validate:"required"`
	Kind            Kind    `json:"kind" yaml:"kind" validate:"required,oneof=baseline mu_scale sigma_scale correlation_shock adversarial"`
	MuMultiplier    float64 `json:"mu_multiplier,omitempty" yaml:"mu_multiplier,omitempty"`
	SigmaMultiplier float64 `json:"sigma_multiplier,omitempty" yaml:"sigma_multiplier,omitempty"`
	CorrelationK    float64 `json:"correlation_k,omitempty" yaml:"correlation_k,omitempty"`
	Kappa           float64 `json:"kappa,omitempty" yaml:"kappa,omitempty"`
	Epsilon         float64 `json:"epsilon,omitempty" yaml:"epsilon,omitempty"`
}

// DefaultDefinitions returns the standard stress suite.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Name: "baseline", Kind: KindBaseline},
		{Name: "crisis", Kind: KindMuScale, MuMultiplier: 0.7},
		{Name: "bull", Kind: KindMuScale, MuMultiplier: 1.5},
		{Name: "black_swan", Kind: KindMuScale, MuMultiplier: 0.5},
		{Name: "high_vol", Kind: KindSigmaScale, SigmaMultiplier: 1.5},
		{Name: "low_vol", Kind: KindSigmaScale, SigmaMultiplier: 0.5},
		{Name: "correlation_spike", Kind: KindCorrelationShock, CorrelationK: 1.5},
		{Name: "correlation_breakdown", Kind: KindCorrelationShock, CorrelationK: 0.5},
		{Name: "adversarial", Kind: KindAdversarial, Kappa: 0.5, Epsilon: 0.05},
	}
}

// Validate checks the parameters the kind uses.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: scenario name is required", domain.ErrInvalidParameter)
	}
	switch d.Kind {
	case KindBaseline:
	case KindMuScale:
		if !isFinite(d.MuMultiplier) {
			return fmt.Errorf("%w: scenario %q: mu multiplier is not finite", domain.ErrInvalidParameter, d.Name)
		}
	case KindSigmaScale:
		if !(d.SigmaMultiplier > 0) || math.IsInf(d.SigmaMultiplier, 0) {
			return fmt.Errorf("%w: scenario %q: sigma multiplier must be > 0", domain.ErrInvalidParameter, d.Name)
		}
	case KindCorrelationShock:
		if !isFinite(d.CorrelationK) {
			return fmt.Errorf("%w: scenario %q: correlation k is not finite", domain.ErrInvalidParameter, d.Name)
		}
	case KindAdversarial:
		if d.Kappa < 0 || d.Epsilon < 0 || !isFinite(d.Kappa) || !isFinite(d.Epsilon) {
			return fmt.Errorf("%w: scenario %q: kappa and epsilon must be >= 0", domain.ErrInvalidParameter, d.Name)
		}
	default:
		return fmt.Errorf("%w: scenario %q: unknown kind %q", domain.ErrInvalidParameter, d.Name, d.Kind)
	}
	return nil
}

// Transformed is a perturbed model plus what it took to produce it.
type Transformed struct {
	Model       domain.MomentsModel
	Adversarial *Adversarial
	Fallbacks   domain.Fallbacks
}

// Apply returns the perturbed copy of model for d. The input model is never modified.
// weights are needed only by the adversarial transform.
func Apply(model domain.MomentsModel, d Definition, weights []float64) (Transformed, error) {
	if err := d.Validate(); err != nil {
		return Transformed{}, err
	}

	switch d.Kind {
	case KindMuScale:
		return Transformed{Model: ScaleMu(model, d.MuMultiplier)}, nil
	case KindSigmaScale:
		return Transformed{Model: ScaleSigma(model, d.SigmaMultiplier)}, nil
	case KindCorrelationShock:
		return Transformed{Model: ShockCorrelation(model, d.CorrelationK)}, nil
	case KindAdversarial:
		adv, err := WorstCase(model, weights, d.Kappa, d.Epsilon)
		if err != nil {
			return Transformed{}, err
		}
		return Transformed{
			Model:       model.WithMoments(adv.WorstMu, adv.WorstSigma),
			Adversarial: adv,
			Fallbacks:   append(domain.Fallbacks(nil), adv.Fallbacks...),
		}, nil
	default:
		return Transformed{Model: model.Clone()}, nil
	}
}

// ScaleMu returns a copy with μ multiplied by k.
func ScaleMu(model domain.MomentsModel, k float64) domain.MomentsModel {
	out := model.Clone()
	for i := range out.Mu {
		out.Mu[i] *= k
	}
	return out
}

// ScaleSigma returns a copy with Σ multiplied by k.
func ScaleSigma(model domain.MomentsModel, k float64) domain.MomentsModel {
	out := model.Clone()
	out.Sigma = covariance.Scale(model.Sigma, k)
	return out
}

// ShockCorrelation rescales the correlation structure: C → I + k·(C − I) with
// off-diagonals clipped to ±0.999, volatilities unchanged, plus a small ridge.
func ShockCorrelation(model domain.MomentsModel, k float64) domain.MomentsModel {
	std, corr := covariance.Correlation(model.Sigma)
	n := len(corr)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				corr[i][j] = 1
				continue
			}
			c := k * corr[i][j]
			corr[i][j] = math.Max(-maxCorrelation, math.Min(maxCorrelation, c))
		}
	}

	sigma := covariance.Symmetrize(covariance.FromCorrelation(std, corr))
	out := model.Clone()
	out.Sigma = covariance.AddRidge(sigma, correlationRidge)
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
