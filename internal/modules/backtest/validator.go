// Package backtest checks whether a VaR threshold is calibrated against an
// evaluation return series.
package backtest

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/simulation"
	"github.com/aristath/sentinel-risk/pkg/formulas"
	"github.com/aristath/sentinel-risk/pkg/logger"
)

// Verdict is the directional reading of a coverage test.
type Verdict string

const (
	VerdictAdequate       Verdict = "adequate"
	VerdictUnderestimates Verdict = "underestimates_risk"
	VerdictOverestimates  Verdict = "overestimates_risk"
)

// Source names where a VaR threshold came from.
type Source string

const (
	SourceHistorical Source = "historical"
	SourceMonteCarlo Source = "monte_carlo"
	SourceProvided   Source = "provided"
)

// Result is the outcome of one (threshold, evaluation series) backtest.
type Result struct {
	Source        Source  `json:"source"`
	Confidence    float64 `json:"confidence"`
	Threshold     float64 `json:"threshold"`
	Observations  int     `json:"observations"`
	Breaches      int     `json:"breaches"`
	BreachRate    float64 `json:"breach_rate"`
	ExpectedRate  float64 `json:"expected_rate"`
	BreachIndices []int   `json:"breach_indices"`

	LRStatistic   float64 `json:"lr_statistic"`
	PValue        float64 `json:"p_value"`
	CriticalValue float64 `json:"critical_value"`
	RejectH0      bool    `json:"reject_h0"`
	Verdict       Verdict `json:"verdict"`

	Independence Independence `json:"independence"`
}

// Comparison runs a historical and a Monte Carlo threshold through the same test.
type Comparison struct {
	Historical Result `json:"historical"`
	MonteCarlo Result `json:"monte_carlo"`
	// Closer names the source whose breach rate is nearer the expected rate.
	Closer Source `json:"closer"`
}

// Validator runs VaR backtests.
type Validator struct {
	log zerolog.Logger
}

// NewValidator creates a new backtest validator.
func NewValidator(log zerolog.Logger) *Validator {
	return &Validator{
		log: logger.Component(log, "backtest_validator"),
	}
}

// Validate counts observations strictly below threshold and applies the Kupiec
// unconditional-coverage test plus Christoffersen's independence test.
func (v *Validator) Validate(series []float64, threshold, confidence float64, source Source) (Result, error) {
	if err := checkConfidence(confidence); err != nil {
		return Result{}, err
	}
	if len(series) == 0 {
		return Result{}, fmt.Errorf("%w: evaluation series is empty", domain.ErrInsufficientData)
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return Result{}, fmt.Errorf("%w: threshold is not finite", domain.ErrInvalidParameter)
	}

	hits := make([]bool, len(series))
	indices := make([]int, 0)
	for i, r := range series {
		if math.IsNaN(r) {
			return Result{}, fmt.Errorf("%w: observation %d is NaN", domain.ErrInvalidParameter, i)
		}
		if r < threshold {
			hits[i] = true
			indices = append(indices, i)
		}
	}

	n := len(series)
	breaches := len(indices)
	lr, p := Kupiec(n, breaches, confidence)
	critical := CriticalValue(1)

	res := Result{
		Source:        source,
		Confidence:    confidence,
		Threshold:     threshold,
		Observations:  n,
		Breaches:      breaches,
		BreachRate:    float64(breaches) / float64(n),
		ExpectedRate:  1 - confidence,
		BreachIndices: indices,
		LRStatistic:   lr,
		PValue:        p,
		CriticalValue: critical,
		RejectH0:      lr > critical,
		Independence:  Christoffersen(hits, lr),
	}
	res.Verdict = verdict(res)

	v.log.Debug().
		Str("source", string(source)).
		Int("observations", n).
		Int("breaches", breaches).
		Float64("lr", lr).
		Float64("p_value", p).
		Str("verdict", string(res.Verdict)).
		Msg("VaR backtest completed")

	return res, nil
}

// Compare derives a historical threshold from reference and a Monte Carlo threshold
// from ens, then backtests both against evaluation.
func (v *Validator) Compare(evaluation, reference []float64, ens *simulation.Ensemble, confidence float64) (Comparison, error) {
	histVaR, err := HistoricalVaR(reference, confidence)
	if err != nil {
		return Comparison{}, err
	}
	mcVaR, err := MonteCarloVaR(ens, confidence)
	if err != nil {
		return Comparison{}, err
	}

	hist, err := v.Validate(evaluation, histVaR, confidence, SourceHistorical)
	if err != nil {
		return Comparison{}, err
	}
	mc, err := v.Validate(evaluation, mcVaR, confidence, SourceMonteCarlo)
	if err != nil {
		return Comparison{}, err
	}

	closer := SourceHistorical
	if math.Abs(mc.BreachRate-mc.ExpectedRate) < math.Abs(hist.BreachRate-hist.ExpectedRate) {
		closer = SourceMonteCarlo
	}
	return Comparison{Historical: hist, MonteCarlo: mc, Closer: closer}, nil
}

// HistoricalVaR is the (1−confidence)-quantile of a reference return series.
func HistoricalVaR(reference []float64, confidence float64) (float64, error) {
	if err := checkConfidence(confidence); err != nil {
		return 0, err
	}
	if len(reference) == 0 {
		return 0, fmt.Errorf("%w: reference series is empty", domain.ErrInsufficientData)
	}
	return formulas.Quantile(reference, 1-confidence), nil
}

// MonteCarloVaR is the (1−confidence)-quantile of simulated simple returns
// W_T/W_0 − 1. The ensemble horizon must match the period of the evaluation series.
func MonteCarloVaR(ens *simulation.Ensemble, confidence float64) (float64, error) {
	if err := checkConfidence(confidence); err != nil {
		return 0, err
	}
	if ens == nil || len(ens.Terminal) == 0 || !(ens.InitialCapital > 0) {
		return 0, fmt.Errorf("%w: ensemble has no terminal wealth", domain.ErrInsufficientData)
	}
	returns := make([]float64, len(ens.Terminal))
	for i, w := range ens.Terminal {
		returns[i] = w/ens.InitialCapital - 1
	}
	return formulas.Quantile(returns, 1-confidence), nil
}

func verdict(r Result) Verdict {
	switch {
	case !r.RejectH0:
		return VerdictAdequate
	case r.BreachRate > r.ExpectedRate:
		return VerdictUnderestimates
	default:
		return VerdictOverestimates
	}
}

func checkConfidence(confidence float64) error {
	if !(confidence > 0 && confidence < 1) {
		return fmt.Errorf("%w: confidence must be in (0,1), got %v", domain.ErrInvalidParameter, confidence)
	}
	return nil
}
