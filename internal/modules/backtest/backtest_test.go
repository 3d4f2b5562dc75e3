package backtest

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/simulation"
)

func TestKupiec(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		breaches   int
		confidence float64
		wantLR     float64
		reject     bool
	}{
		{"exact coverage", 1000, 50, 0.95, 0, false},
		{"double rate n=500", 500, 50, 0.95, 2 * (50*math.Log(2) + 450*math.Log(0.9/0.95)), true},
		{"double rate n=250", 250, 25, 0.95, 2 * (25*math.Log(2) + 225*math.Log(0.9/0.95)), true},
		{"no breaches", 100, 0, 0.99, -200 * math.Log(0.99), false},
		{"all breaches", 10, 10, 0.95, -20 * math.Log(0.05), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr, p := Kupiec(tt.n, tt.breaches, tt.confidence)
			assert.InDelta(t, tt.wantLR, lr, 1e-9)
			assert.Equal(t, tt.reject, lr > CriticalValue(1))
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
		})
	}

	lr, p := Kupiec(1000, 50, 0.95)
	assert.Less(t, lr, 1e-9)
	assert.Greater(t, p, 0.5)

	lr, _ = Kupiec(500, 50, 0.95)
	assert.InDelta(t, 20.65, lr, 0.01)
}

func TestCriticalValue(t *testing.T) {
	assert.InDelta(t, 3.841458820694124, CriticalValue(1), 1e-6)
	assert.InDelta(t, 5.991464547107979, CriticalValue(2), 1e-6)
}

func periodicSeries(n, every int) []float64 {
	series := make([]float64, n)
	for i := range series {
		series[i] = 0.01
		if i%every == 0 {
			series[i] = -0.05
		}
	}
	return series
}

func TestValidate_CalibratedThreshold(t *testing.T) {
	res, err := NewValidator(zerolog.Nop()).Validate(periodicSeries(1000, 20), -0.02, 0.95, SourceProvided)
	require.NoError(t, err)

	assert.Equal(t, 1000, res.Observations)
	assert.Equal(t, 50, res.Breaches)
	assert.InDelta(t, 0.05, res.BreachRate, 1e-15)
	assert.InDelta(t, 0.05, res.ExpectedRate, 1e-12)
	assert.Len(t, res.BreachIndices, 50)
	assert.Equal(t, 20, res.BreachIndices[1])
	assert.False(t, res.RejectH0)
	assert.Greater(t, res.PValue, 0.5)
	assert.Equal(t, VerdictAdequate, res.Verdict)
	assert.Equal(t, 0, res.Independence.N11)
}

func TestValidate_UnderestimatedRisk(t *testing.T) {
	res, err := NewValidator(zerolog.Nop()).Validate(periodicSeries(1000, 10), -0.02, 0.95, SourceProvided)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Breaches)
	assert.True(t, res.RejectH0)
	assert.Equal(t, VerdictUnderestimates, res.Verdict)
}

func TestValidate_OverestimatedRisk(t *testing.T) {
	series := make([]float64, 1000)
	res, err := NewValidator(zerolog.Nop()).Validate(series, -0.02, 0.95, SourceProvided)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Breaches)
	assert.InDelta(t, -2000*math.Log(0.95), res.LRStatistic, 1e-9)
	assert.True(t, res.RejectH0)
	assert.Equal(t, VerdictOverestimates, res.Verdict)
	assert.Empty(t, res.BreachIndices)
}

func TestValidate_BreachesStrictlyBelowThreshold(t *testing.T) {
	res, err := NewValidator(zerolog.Nop()).Validate([]float64{-0.02, -0.0200001, 0}, -0.02, 0.95, SourceProvided)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.BreachIndices)
}

func TestValidate_ClusteredBreachesFailIndependence(t *testing.T) {
	series := make([]float64, 1000)
	for i := 950; i < 1000; i++ {
		series[i] = -0.05
	}
	res, err := NewValidator(zerolog.Nop()).Validate(series, -0.02, 0.95, SourceProvided)
	require.NoError(t, err)

	assert.False(t, res.RejectH0)
	assert.Equal(t, 49, res.Independence.N11)
	assert.Equal(t, 1, res.Independence.N01)
	assert.Equal(t, 0, res.Independence.N10)
	assert.True(t, res.Independence.RejectIndependence)
	assert.True(t, res.Independence.RejectConditionalCoverage)
	assert.InDelta(t, res.LRStatistic+res.Independence.LRIndependence, res.Independence.LRConditionalCoverage, 1e-12)
}

func TestValidate_Errors(t *testing.T) {
	v := NewValidator(zerolog.Nop())

	_, err := v.Validate(nil, -0.02, 0.95, SourceProvided)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))

	for _, c := range []float64{0, 1, -0.5, math.NaN()} {
		_, err = v.Validate([]float64{1}, -0.02, c, SourceProvided)
		assert.True(t, errors.Is(err, domain.ErrInvalidParameter))
	}

	_, err = v.Validate([]float64{1}, math.NaN(), 0.95, SourceProvided)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))

	_, err = v.Validate([]float64{math.NaN()}, -0.02, 0.95, SourceProvided)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))
}

func TestHistoricalAndMonteCarloVaR(t *testing.T) {
	reference := make([]float64, 100)
	for i := range reference {
		reference[i] = float64(i+1) / 100
	}
	h, err := HistoricalVaR(reference, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 0.0595, h, 1e-12)

	ens := &simulation.Ensemble{InitialCapital: 100, Terminal: []float64{90, 95, 100, 105, 110}}
	mc, err := MonteCarloVaR(ens, 0.75)
	require.NoError(t, err)
	assert.InDelta(t, -0.05, mc, 1e-12)

	_, err = HistoricalVaR(nil, 0.95)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
	_, err = MonteCarloVaR(nil, 0.95)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestCompare_SideBySide(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	draw := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = 0.01 * rng.NormFloat64()
		}
		return out
	}
	reference := draw(2000)
	evaluation := draw(500)

	terminal := make([]float64, 5000)
	for i, r := range draw(5000) {
		terminal[i] = 100 * (1 + r)
	}
	ens := &simulation.Ensemble{InitialCapital: 100, Terminal: terminal}

	cmp, err := NewValidator(zerolog.Nop()).Compare(evaluation, reference, ens, 0.95)
	require.NoError(t, err)

	assert.Equal(t, SourceHistorical, cmp.Historical.Source)
	assert.Equal(t, SourceMonteCarlo, cmp.MonteCarlo.Source)
	assert.Equal(t, 500, cmp.Historical.Observations)
	assert.Equal(t, 500, cmp.MonteCarlo.Observations)
	assert.InDelta(t, -0.01645, cmp.Historical.Threshold, 0.002)
	assert.InDelta(t, -0.01645, cmp.MonteCarlo.Threshold, 0.002)
	assert.Contains(t, []Source{SourceHistorical, SourceMonteCarlo}, cmp.Closer)
}
