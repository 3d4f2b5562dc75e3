package risk

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/simulation"
)

func TestFromTerminal_KnownDistribution(t *testing.T) {
	terminal := make([]float64, 100)
	drawdowns := make([]float64, 100)
	for i := range terminal {
		terminal[99-i] = float64(i + 1) // unsorted on purpose
		drawdowns[i] = float64(i) / 200
	}
	original := append([]float64(nil), terminal...)

	report, err := NewCalculator(zerolog.Nop()).FromTerminal(terminal, drawdowns, 50, 1, 0.02)
	require.NoError(t, err)

	assert.Equal(t, 100, report.PathCount)
	assert.InDelta(t, 50.5, report.MeanTerminal, 1e-12)
	assert.InDelta(t, 50.5, report.MedianTerminal, 1e-12)
	assert.Equal(t, 1.0, report.MinTerminal)
	assert.Equal(t, 100.0, report.MaxTerminal)

	assert.InDelta(t, 5.95, report.VaR95, 1e-12)
	assert.InDelta(t, 1.99, report.VaR99, 1e-12)
	assert.InDelta(t, 3.0, report.CVaR95, 1e-12)
	assert.InDelta(t, 1.0, report.CVaR99, 1e-12)
	assert.InDelta(t, 50-5.95, report.VaR95Loss, 1e-12)
	assert.InDelta(t, 49.0, report.CVaR99Loss, 1e-12)

	assert.InDelta(t, 0.49, report.ProbLoss, 1e-12)
	assert.InDelta(t, 0.24, report.ProbCatastrophic, 1e-12)

	assert.InDelta(t, 99.0/400, report.MeanMaxDrawdown, 1e-12)
	assert.InDelta(t, 99.0/200, report.WorstMaxDrawdown, 1e-12)

	// one-year horizon: annualized return = W/W0 − 1
	assert.InDelta(t, 50.5/50-1, report.MeanAnnualizedReturn, 1e-12)
	assert.Greater(t, report.ReturnStd, 0.0)
	assert.InDelta(t, (report.MeanAnnualizedReturn-0.02)/report.ReturnStd, report.Sharpe, 1e-12)
	assert.Empty(t, report.Fallbacks)

	assert.Equal(t, original, terminal)
}

func TestFromTerminal_ZeroVariance(t *testing.T) {
	terminal := []float64{100, 100, 100, 100}
	report, err := NewCalculator(zerolog.Nop()).FromTerminal(terminal, nil, 100, 2, 0.02)
	require.NoError(t, err)

	assert.Equal(t, 0.0, report.Sharpe)
	assert.True(t, report.Fallbacks.Has(domain.FallbackZeroVolatility))
	assert.Equal(t, 100.0, report.VaR95)
	assert.Equal(t, 100.0, report.CVaR99)
	assert.Equal(t, 0.0, report.ProbLoss)
	assert.Equal(t, 0.0, report.MeanMaxDrawdown)
}

func TestFromTerminal_Errors(t *testing.T) {
	calc := NewCalculator(zerolog.Nop())

	_, err := calc.FromTerminal(nil, nil, 100, 1, 0)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))

	_, err = calc.FromTerminal([]float64{1}, nil, 0, 1, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))

	_, err = calc.FromTerminal([]float64{1}, nil, 1, 0, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))

	_, err = calc.FromTerminal([]float64{1, 2}, []float64{0.1}, 1, 1, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))

	_, err = calc.Calculate(nil, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))
}

func TestTailRisk(t *testing.T) {
	sorted := []float64{-5, -1, 0, 2, 4}
	v, cv, ok := TailRisk(sorted, 0.75)
	require.True(t, ok)
	// p=0.25 → position 1 → -1
	assert.Equal(t, -1.0, v)
	assert.Equal(t, -3.0, cv)
}

func TestCalculate_QuantileMonotonicity(t *testing.T) {
	model := domain.MomentsModel{
		Assets:       []string{"EQ", "BOND"},
		Mu:           []float64{0.08, 0.05},
		Sigma:        [][]float64{{0.04, 0.01}, {0.01, 0.02}},
		RiskFreeRate: 0.02,
		RiskAversion: 3,
	}
	calc := NewCalculator(zerolog.Nop())

	for _, seed := range []uint64{1, 2, 3, 4, 5} {
		ens, err := simulation.NewSimulator(2, zerolog.Nop()).Simulate(context.Background(), simulation.Input{
			Model:          model,
			Weights:        []float64{0.6, 0.4},
			InitialCapital: 1000,
			Config:         domain.SimulationConfig{Paths: 2000, Steps: 24, Horizon: 2}.Seeded(seed),
		})
		require.NoError(t, err)

		report, err := calc.Calculate(ens, model.RiskFreeRate)
		require.NoError(t, err)

		assert.LessOrEqual(t, report.VaR99, report.VaR95, "seed %d", seed)
		assert.LessOrEqual(t, report.VaR95, report.MeanTerminal, "seed %d", seed)
		assert.LessOrEqual(t, report.CVaR99, report.CVaR95, "seed %d", seed)
		assert.LessOrEqual(t, report.CVaR95, report.VaR95, "seed %d", seed)
		assert.GreaterOrEqual(t, report.CVaR95Loss, report.VaR95Loss, "seed %d", seed)
		assert.LessOrEqual(t, report.MeanMaxDrawdown, report.WorstMaxDrawdown)
		assert.GreaterOrEqual(t, report.ProbLoss, report.ProbCatastrophic)
		assert.False(t, math.IsNaN(report.Sharpe))
	}
}

func TestCalculate_CarriesSimulationFallbacks(t *testing.T) {
	ens := &simulation.Ensemble{
		InitialCapital: 100,
		Horizon:        1,
		Terminal:       []float64{90, 100, 110},
		MaxDrawdowns:   []float64{0.1, 0.05, 0},
		Fallbacks:      domain.Fallbacks{domain.FallbackCovarianceRegularized},
	}
	report, err := NewCalculator(zerolog.Nop()).Calculate(ens, 0)
	require.NoError(t, err)
	assert.True(t, report.Fallbacks.Has(domain.FallbackCovarianceRegularized))
	assert.Equal(t, domain.Fallbacks{domain.FallbackCovarianceRegularized}, ens.Fallbacks)
}
