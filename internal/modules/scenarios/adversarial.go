package scenarios

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/covariance"
)

// Adversarial describes the worst-case moments found inside the uncertainty set
// around the current weights, and how far they are from the nominal model.
type Adversarial struct {
	Kappa      float64     `json:"kappa"`
	Epsilon    float64     `json:"epsilon"`
	WorstMu    []float64   `json:"worst_mu"`
	WorstSigma [][]float64 `json:"worst_sigma"`

	MeanShiftMahalanobis float64 `json:"mean_shift_mahalanobis"`
	CovShiftFrobenius    float64 `json:"cov_shift_frobenius"`
	// Plausibility maps the combined shift to [0,1] via 1 − exp(−½·(d_μ + d_Σ)).
	Plausibility float64 `json:"plausibility"`

	Tail      *TailEstimate    `json:"tail,omitempty"`
	Fallbacks domain.Fallbacks `json:"fallbacks,omitempty"`
}

// WorstCase computes the closed-form worst-case moments for weights w:
//
//	μ* = μ − κ·Σw / √(w'Σw)
//	Σ* = Σ + ε·ww' / ‖ww'‖_F, eigenvalues floored to restore PSD
//
// A portfolio with zero variance leaves μ unchanged; zero weights leave Σ unchanged.
func WorstCase(model domain.MomentsModel, w []float64, kappa, epsilon float64) (*Adversarial, error) {
	if err := model.CheckWeights(w); err != nil {
		return nil, err
	}
	if kappa < 0 || epsilon < 0 {
		return nil, fmt.Errorf("%w: kappa and epsilon must be >= 0", domain.ErrInvalidParameter)
	}

	var fallbacks domain.Fallbacks
	n := model.Dim()

	sw := covariance.MulVec(model.Sigma, w)
	norm := math.Sqrt(math.Max(floats.Dot(w, sw), 0))

	worstMu := append([]float64(nil), model.Mu...)
	if norm > 1e-12 {
		floats.AddScaled(worstMu, -kappa/norm, sw)
	} else if kappa > 0 {
		fallbacks = fallbacks.Add(domain.FallbackZeroVolatility)
	}

	worstSigma := covariance.Clone(model.Sigma)
	wNormSq := floats.Dot(w, w) // ‖ww'‖_F = ‖w‖²
	if wNormSq > 0 {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				worstSigma[i][j] += epsilon * w[i] * w[j] / wNormSq
			}
		}
	}

	worstSigma, clipped, err := covariance.ClipEigenvalues(worstSigma, eigenFloor)
	if err != nil {
		return nil, err
	}
	if clipped {
		fallbacks = fallbacks.Add(domain.FallbackEigenvalueClipped)
	}

	adv := &Adversarial{
		Kappa:      kappa,
		Epsilon:    epsilon,
		WorstMu:    worstMu,
		WorstSigma: worstSigma,
		Fallbacks:  fallbacks,
	}
	adv.MeanShiftMahalanobis, adv.CovShiftFrobenius, adv.Plausibility, fallbacks = Plausibility(model, worstMu, worstSigma)
	adv.Fallbacks = adv.Fallbacks.Merge(fallbacks)
	return adv, nil
}

// Plausibility scores a perturbation of the model. It returns the Mahalanobis
// distance of the mean shift under Σ⁻¹, the Frobenius distance of the covariance
// shift relative to ‖Σ‖_F, and 1 − exp(−½·(sum of both)).
func Plausibility(model domain.MomentsModel, mu []float64, sigma [][]float64) (mahalanobis, frobenius, score float64, fallbacks domain.Fallbacks) {
	delta := make([]float64, len(mu))
	floats.SubTo(delta, mu, model.Mu)

	inv, usedPinv := covariance.Inverse(model.Sigma)
	if usedPinv {
		fallbacks = fallbacks.Add(domain.FallbackPseudoInverse)
	}
	mahalanobis = math.Sqrt(math.Max(covariance.QuadForm(inv, delta), 0))

	base := covariance.Frobenius(model.Sigma)
	if base > 0 {
		frobenius = covariance.Frobenius(covariance.Sub(sigma, model.Sigma)) / base
	}

	score = 1 - math.Exp(-0.5*(mahalanobis+frobenius))
	return mahalanobis, frobenius, score, fallbacks
}
