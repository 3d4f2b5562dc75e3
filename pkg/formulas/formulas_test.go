package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{"minimum", 0, 1},
		{"maximum", 1, 5},
		{"median", 0.5, 3},
		{"interpolated quarter", 0.25, 2},
		{"interpolated 10th", 0.1, 1.4},
		{"below range clamps", -0.2, 1},
		{"above range clamps", 1.3, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Percentile(sorted, tt.p), 1e-12)
		})
	}
}

func TestPercentile_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Percentile(nil, 0.5))
}

func TestQuantile_DoesNotMutateInput(t *testing.T) {
	data := []float64{5, 1, 4, 2, 3}
	q := Quantile(data, 0.5)

	assert.Equal(t, 3.0, q)
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, data)
}

func TestTailMean(t *testing.T) {
	sorted := []float64{-3, -1, 0, 2, 4}

	mean, ok := TailMean(sorted, -1)
	assert.True(t, ok)
	assert.InDelta(t, -2.0, mean, 1e-12)

	mean, ok = TailMean(sorted, -5)
	assert.False(t, ok, "empty tail falls back to the threshold")
	assert.Equal(t, -5.0, mean)
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name string
		path []float64
		want float64
	}{
		{"monotone up", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 80, 120}, 0.2},
		{"later deeper dip", []float64{100, 120, 90, 130, 65}, 0.5},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.path), 1e-12)
		})
	}
}

func TestMeanStd_Population(t *testing.T) {
	mean, std := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-12)
	assert.InDelta(t, 2.0, std, 1e-12)
}

func TestMinMaxAndFractionBelow(t *testing.T) {
	data := []float64{3, -1, 7, 2}
	lo, hi := MinMax(data)
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 7.0, hi)
	lo, hi = MinMax(nil)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 0.0, hi)
	assert.InDelta(t, 0.5, FractionBelow(data, 2.5), 1e-12)
	assert.Equal(t, 0.0, FractionBelow(nil, 1))
}

func TestAnnualizedReturn(t *testing.T) {
	assert.InDelta(t, 0.1, AnnualizedReturn(100, 121, 2), 1e-12)
	assert.Equal(t, 0.0, AnnualizedReturn(0, 121, 2))
	assert.Equal(t, -1.0, AnnualizedReturn(100, 0, 1))
}

func TestChiSquared(t *testing.T) {
	// 95% critical value of chi-square with one degree of freedom.
	assert.InDelta(t, 3.841458820694124, ChiSquaredCritical(0.95, 1), 1e-6)
	assert.InDelta(t, 0.05, ChiSquaredPValue(3.841458820694124, 1), 1e-6)
	assert.Equal(t, 1.0, ChiSquaredPValue(0, 1))
	assert.True(t, math.IsNaN(ChiSquaredPValue(math.NaN(), 1)))
}
