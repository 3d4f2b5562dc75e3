// Package risk aggregates simulated terminal-wealth distributions into tail-risk reports.
package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/simulation"
	"github.com/aristath/sentinel-risk/pkg/formulas"
	"github.com/aristath/sentinel-risk/pkg/logger"
)

const (
	// catastrophicFraction of initial capital below which a path counts as catastrophic.
	catastrophicFraction = 0.5
	zeroStd              = 1e-12
)

// Report is the immutable risk snapshot of one simulated distribution.
// VaR and CVaR figures are wealth levels; the *Loss fields express them as
// losses relative to initial capital.
type Report struct {
	PathCount      int     `json:"path_count"`
	InitialCapital float64 `json:"initial_capital"`
	Horizon        float64 `json:"horizon"`

	MeanTerminal   float64 `json:"mean_terminal"`
	MedianTerminal float64 `json:"median_terminal"`
	StdTerminal    float64 `json:"std_terminal"`
	MinTerminal    float64 `json:"min_terminal"`
	MaxTerminal    float64 `json:"max_terminal"`

	VaR95  float64 `json:"var_95"`
	VaR99  float64 `json:"var_99"`
	CVaR95 float64 `json:"cvar_95"`
	CVaR99 float64 `json:"cvar_99"`

	VaR95Loss  float64 `json:"var_95_loss"`
	VaR99Loss  float64 `json:"var_99_loss"`
	CVaR95Loss float64 `json:"cvar_95_loss"`
	CVaR99Loss float64 `json:"cvar_99_loss"`

	MeanMaxDrawdown  float64 `json:"mean_max_drawdown"`
	WorstMaxDrawdown float64 `json:"worst_max_drawdown"`

	MeanAnnualizedReturn float64 `json:"mean_annualized_return"`
	ReturnStd            float64 `json:"return_std"`
	Sharpe               float64 `json:"sharpe"`

	ProbLoss         float64 `json:"prob_loss"`
	ProbCatastrophic float64 `json:"prob_catastrophic"`

	Fallbacks domain.Fallbacks `json:"fallbacks,omitempty"`
}

// TailRisk returns the wealth VaR at confidence (the (1−confidence)-quantile) and the
// mean of observations at or below it. ok is false when the tail set is empty, in
// which case CVaR equals VaR.
func TailRisk(sorted []float64, confidence float64) (valueAtRisk, cvar float64, ok bool) {
	valueAtRisk = formulas.Percentile(sorted, 1-confidence)
	cvar, ok = formulas.TailMean(sorted, valueAtRisk)
	return valueAtRisk, cvar, ok
}

// Calculator turns simulated outcomes into risk reports.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a new risk metrics calculator.
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: logger.Component(log, "risk_calculator"),
	}
}

// Calculate builds a report from an ensemble. Fallbacks recorded by the
// simulation are carried into the report.
func (c *Calculator) Calculate(ens *simulation.Ensemble, riskFreeRate float64) (Report, error) {
	if ens == nil {
		return Report{}, fmt.Errorf("%w: nil ensemble", domain.ErrInvalidParameter)
	}
	report, err := c.FromTerminal(ens.Terminal, ens.MaxDrawdowns, ens.InitialCapital, ens.Horizon, riskFreeRate)
	if err != nil {
		return Report{}, err
	}
	report.Fallbacks = append(domain.Fallbacks(nil), ens.Fallbacks...).Merge(report.Fallbacks)
	return report, nil
}

// FromTerminal builds a report from terminal wealth and optional per-path max
// drawdowns. Inputs are not modified.
func (c *Calculator) FromTerminal(terminal, drawdowns []float64, initialCapital, horizon, riskFreeRate float64) (Report, error) {
	if len(terminal) == 0 {
		return Report{}, fmt.Errorf("%w: no terminal wealth observations", domain.ErrInsufficientData)
	}
	if !(initialCapital > 0) {
		return Report{}, fmt.Errorf("%w: initial capital must be > 0", domain.ErrInvalidParameter)
	}
	if !(horizon > 0) {
		return Report{}, fmt.Errorf("%w: horizon must be > 0", domain.ErrInvalidParameter)
	}
	if len(drawdowns) != 0 && len(drawdowns) != len(terminal) {
		return Report{}, fmt.Errorf("%w: %d drawdowns for %d paths",
			domain.ErrInvalidParameter, len(drawdowns), len(terminal))
	}

	var fallbacks domain.Fallbacks
	sorted := formulas.SortedCopy(terminal)
	mean, std := formulas.MeanStd(terminal)
	minW, maxW := formulas.MinMax(terminal)

	var95, cvar95, ok95 := TailRisk(sorted, 0.95)
	var99, cvar99, ok99 := TailRisk(sorted, 0.99)
	if !ok95 || !ok99 {
		fallbacks = fallbacks.Add(domain.FallbackEmptyTail)
	}

	returns := make([]float64, len(terminal))
	for i, w := range terminal {
		returns[i] = formulas.AnnualizedReturn(initialCapital, w, horizon)
	}
	meanRet, stdRet := formulas.MeanStd(returns)

	sharpe := 0.0
	if stdRet > zeroStd {
		sharpe = (meanRet - riskFreeRate) / stdRet
	} else {
		fallbacks = fallbacks.Add(domain.FallbackZeroVolatility)
	}

	var meanDD, worstDD float64
	if len(drawdowns) > 0 {
		meanDD = formulas.Mean(drawdowns)
		_, worstDD = formulas.MinMax(drawdowns)
	}

	report := Report{
		PathCount:            len(terminal),
		InitialCapital:       initialCapital,
		Horizon:              horizon,
		MeanTerminal:         mean,
		MedianTerminal:       formulas.Percentile(sorted, 0.5),
		StdTerminal:          std,
		MinTerminal:          minW,
		MaxTerminal:          maxW,
		VaR95:                var95,
		VaR99:                var99,
		CVaR95:               cvar95,
		CVaR99:               cvar99,
		VaR95Loss:            initialCapital - var95,
		VaR99Loss:            initialCapital - var99,
		CVaR95Loss:           initialCapital - cvar95,
		CVaR99Loss:           initialCapital - cvar99,
		MeanMaxDrawdown:      meanDD,
		WorstMaxDrawdown:     worstDD,
		MeanAnnualizedReturn: meanRet,
		ReturnStd:            stdRet,
		Sharpe:               sharpe,
		ProbLoss:             formulas.FractionBelow(terminal, initialCapital),
		ProbCatastrophic:     formulas.FractionBelow(terminal, catastrophicFraction*initialCapital),
		Fallbacks:            fallbacks,
	}

	if math.IsNaN(report.Sharpe) {
		report.Sharpe = 0
	}

	c.log.Debug().
		Int("paths", report.PathCount).
		Float64("var_95", report.VaR95).
		Float64("cvar_95", report.CVaR95).
		Float64("sharpe", report.Sharpe).
		Msg("Calculated risk report")

	return report, nil
}
