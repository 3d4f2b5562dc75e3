package scenarios

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/pkg/formulas"
)

const (
	// DefaultThresholdQuantile selects the losses used for the tail fit.
	DefaultThresholdQuantile = 0.90
	// minExceedances is the smallest tail sample a GPD is fitted to.
	minExceedances = 10

	minShape = -0.5
	maxShape = 0.95
)

// TailMethod records how a tail estimate was produced.
type TailMethod string

const (
	TailMethodMLE       TailMethod = "gpd_mle"
	TailMethodMoments   TailMethod = "gpd_moments"
	TailMethodEmpirical TailMethod = "empirical"
)

// TailEstimate extrapolates loss quantiles beyond the simulated sample. Losses are
// positive numbers (initial capital minus terminal wealth).
type TailEstimate struct {
	Method            TailMethod `json:"method"`
	ThresholdQuantile float64    `json:"threshold_quantile"`
	Threshold         float64    `json:"threshold"`
	Observations      int        `json:"observations"`
	Exceedances       int        `json:"exceedances"`
	Shape             float64    `json:"shape"` // ξ
	Scale             float64    `json:"scale"` // σ
	// MaxLoss caps extrapolated quantiles and shortfalls; 0 leaves them uncapped.
	MaxLoss float64 `json:"max_loss,omitempty"`

	VaR999  float64 `json:"var_999"`
	VaR9999 float64 `json:"var_9999"`
	ES999   float64 `json:"es_999"`
	ES9999  float64 `json:"es_9999"`

	Fallbacks domain.Fallbacks `json:"fallbacks,omitempty"`
}

// Quantile returns the loss quantile at level p (e.g. 0.999).
func (t TailEstimate) Quantile(p float64) float64 {
	ratio := float64(t.Observations) / float64(t.Exceedances) * (1 - p)
	var q float64
	if math.Abs(t.Shape) < 1e-9 {
		q = t.Threshold - t.Scale*math.Log(ratio)
	} else {
		q = t.Threshold + t.Scale/t.Shape*(math.Pow(ratio, -t.Shape)-1)
	}
	return t.capped(q)
}

// ExpectedShortfall returns the mean loss beyond the level-p quantile.
func (t TailEstimate) ExpectedShortfall(p float64) float64 {
	q := t.Quantile(p)
	return t.capped(q/(1-t.Shape) + (t.Scale-t.Shape*t.Threshold)/(1-t.Shape))
}

func (t TailEstimate) capped(loss float64) float64 {
	if t.MaxLoss > 0 && loss > t.MaxLoss {
		return t.MaxLoss
	}
	return loss
}

// FitGPD fits a Generalized Pareto Distribution to the losses above the
// thresholdQuantile loss. The fit starts from the method-of-moments estimate and is
// refined by maximum likelihood. With fewer than 10 exceedances it reports the
// empirical quantiles instead and records FallbackEmpiricalTail.
//
// A positive maxLoss is the largest loss the sample can reach (for wealth losses,
// initial capital minus the absorbing floor); extrapolated figures never exceed it.
func FitGPD(losses []float64, thresholdQuantile, maxLoss float64) (TailEstimate, error) {
	if len(losses) == 0 {
		return TailEstimate{}, fmt.Errorf("%w: no losses to fit", domain.ErrInsufficientData)
	}
	if !(thresholdQuantile > 0 && thresholdQuantile < 1) {
		return TailEstimate{}, fmt.Errorf("%w: threshold quantile must be in (0,1), got %v",
			domain.ErrInvalidParameter, thresholdQuantile)
	}
	if maxLoss < 0 || math.IsNaN(maxLoss) {
		return TailEstimate{}, fmt.Errorf("%w: max loss must be >= 0, got %v",
			domain.ErrInvalidParameter, maxLoss)
	}
	if math.IsInf(maxLoss, 1) {
		maxLoss = 0
	}

	sorted := formulas.SortedCopy(losses)
	u := formulas.Percentile(sorted, thresholdQuantile)

	excess := make([]float64, 0, len(sorted)/8)
	for _, l := range sorted {
		if l > u {
			excess = append(excess, l-u)
		}
	}

	est := TailEstimate{
		ThresholdQuantile: thresholdQuantile,
		Threshold:         u,
		Observations:      len(sorted),
		Exceedances:       len(excess),
		MaxLoss:           maxLoss,
	}

	if len(excess) < minExceedances {
		return empiricalTail(est, sorted), nil
	}

	m, v := formulas.MeanStd(excess)
	v *= v
	shape, scale := momentsEstimate(m, v)
	est.Method = TailMethodMoments

	nll := func(x []float64) float64 {
		return gpdNegLogLikelihood(excess, x[1], math.Exp(x[0]))
	}
	start := []float64{math.Log(scale), shape}
	startF := nll(start)

	result, err := optimize.Minimize(optimize.Problem{Func: nll}, start, &optimize.Settings{}, &optimize.NelderMead{})
	if err == nil && result != nil && result.F < startF && !math.IsInf(result.F, 0) {
		shape, scale = result.X[1], math.Exp(result.X[0])
		est.Method = TailMethodMLE
	}

	est.Shape = shape
	est.Scale = scale
	est.VaR999 = est.Quantile(0.999)
	est.VaR9999 = est.Quantile(0.9999)
	est.ES999 = est.ExpectedShortfall(0.999)
	est.ES9999 = est.ExpectedShortfall(0.9999)
	return est, nil
}

// momentsEstimate returns the method-of-moments (ξ, σ) for excesses with mean m and
// variance v, clamped to the supported shape range.
func momentsEstimate(m, v float64) (float64, float64) {
	if v <= 0 || m <= 0 {
		return 0, math.Max(m, 1e-12)
	}
	r := m * m / v
	shape := 0.5 * (1 - r)
	scale := 0.5 * m * (r + 1)
	shape = math.Max(minShape, math.Min(maxShape, shape))
	return shape, math.Max(scale, 1e-12)
}

// gpdNegLogLikelihood is the GPD negative log-likelihood of excesses y. Parameters
// outside the supported region or the distribution support score +Inf.
func gpdNegLogLikelihood(y []float64, shape, scale float64) float64 {
	if !(scale > 0) || shape < minShape || shape > maxShape || math.IsNaN(shape) {
		return math.Inf(1)
	}

	n := float64(len(y))
	if math.Abs(shape) < 1e-9 {
		sum := 0.0
		for _, v := range y {
			sum += v
		}
		return n*math.Log(scale) + sum/scale
	}

	sum := 0.0
	for _, v := range y {
		z := 1 + shape*v/scale
		if z <= 0 {
			return math.Inf(1)
		}
		sum += math.Log(z)
	}
	return n*math.Log(scale) + (1+1/shape)*sum
}

func empiricalTail(est TailEstimate, sorted []float64) TailEstimate {
	est.Method = TailMethodEmpirical
	est.Fallbacks = est.Fallbacks.Add(domain.FallbackEmpiricalTail)
	est.VaR999 = formulas.Percentile(sorted, 0.999)
	est.VaR9999 = formulas.Percentile(sorted, 0.9999)
	est.ES999 = upperTailMean(sorted, est.VaR999)
	est.ES9999 = upperTailMean(sorted, est.VaR9999)
	return est
}

// upperTailMean returns the mean of ascending data at or above threshold.
func upperTailMean(sorted []float64, threshold float64) float64 {
	sum := 0.0
	count := 0
	for i := len(sorted) - 1; i >= 0 && sorted[i] >= threshold; i-- {
		sum += sorted[i]
		count++
	}
	if count == 0 {
		return threshold
	}
	return sum / float64(count)
}
