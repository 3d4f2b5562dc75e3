package covariance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/sentinel-risk/internal/domain"
)

// SampleCovariance computes the (N−1) sample covariance of per-asset return columns.
// Every column must have the same length and at least two observations.
func SampleCovariance(columns [][]float64) ([][]float64, error) {
	n := len(columns)
	if n == 0 {
		return nil, fmt.Errorf("%w: no return columns", domain.ErrInvalidParameter)
	}

	length := len(columns[0])
	for i, col := range columns {
		if len(col) != length {
			return nil, fmt.Errorf("%w: inconsistent return lengths: expected %d, got %d for column %d",
				domain.ErrInvalidParameter, length, len(col), i)
		}
	}
	if length < 2 {
		return nil, fmt.Errorf("%w: need at least 2 observations, got %d", domain.ErrInsufficientData, length)
	}

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := stat.Covariance(columns[i], columns[j], nil)
			cov[i][j] = c
			cov[j][i] = c
		}
	}
	return cov, nil
}

// LedoitWolfShrink shrinks a sample covariance towards a constant-covariance target
// (average variance on the diagonal, average covariance elsewhere). The intensity is
// estimated from the dispersion of the sample entries and capped at 0.5.
// It returns the shrunk matrix and the intensity used.
func LedoitWolfShrink(sample [][]float64) ([][]float64, float64, error) {
	n := len(sample)
	if n == 0 {
		return nil, 0, fmt.Errorf("%w: empty covariance matrix", domain.ErrInvalidParameter)
	}
	if n == 1 {
		return Clone(sample), 0, nil
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sample[i][i]
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sample[i][j]
			}
		}
	}
	avgVar /= float64(n)
	avgCov /= float64(n * (n - 1))

	target := func(i, j int) float64 {
		if i == j {
			return avgVar
		}
		if avgVar > 0 {
			return avgCov
		}
		return 0
	}

	intensity := 0.2
	if n > 2 && avgVar > 0 {
		var sumSqDiff, sum, sumSq float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				d := sample[i][j] - target(i, j)
				sumSqDiff += d * d
				sum += sample[i][j]
				sumSq += sample[i][j] * sample[i][j]
			}
		}
		count := float64(n * n)
		meanSqDiff := sumSqDiff / count
		mean := sum / count
		variance := sumSq/count - mean*mean
		if variance > 0 && meanSqDiff > 0 {
			intensity = math.Min(0.5, math.Max(0, variance/(variance+meanSqDiff)))
		}
	}

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = (1-intensity)*sample[i][j] + intensity*target(i, j)
		}
	}
	return out, intensity, nil
}

// EstimateOptions controls EstimateMoments.
type EstimateOptions struct {
	// PeriodsPerYear annualizes per-period means and covariances (252 for daily data).
	PeriodsPerYear float64
	RiskFreeRate   float64
	RiskAversion   float64
	Shrink         bool
}

// EstimateMoments builds an annualized MomentsModel from per-period return columns,
// one column per asset in assets order.
func EstimateMoments(assets []string, columns [][]float64, opts EstimateOptions) (domain.MomentsModel, error) {
	if len(assets) != len(columns) {
		return domain.MomentsModel{}, fmt.Errorf("%w: %d assets but %d return columns",
			domain.ErrInvalidParameter, len(assets), len(columns))
	}
	if !(opts.PeriodsPerYear > 0) {
		return domain.MomentsModel{}, fmt.Errorf("%w: periods per year must be > 0", domain.ErrInvalidParameter)
	}

	cov, err := SampleCovariance(columns)
	if err != nil {
		return domain.MomentsModel{}, err
	}
	if opts.Shrink {
		if cov, _, err = LedoitWolfShrink(cov); err != nil {
			return domain.MomentsModel{}, err
		}
	}

	mu := make([]float64, len(columns))
	for i, col := range columns {
		mu[i] = stat.Mean(col, nil) * opts.PeriodsPerYear
	}

	model := domain.MomentsModel{
		Assets:       append([]string(nil), assets...),
		Mu:           mu,
		Sigma:        Scale(cov, opts.PeriodsPerYear),
		RiskFreeRate: opts.RiskFreeRate,
		RiskAversion: opts.RiskAversion,
	}
	if err := model.Validate(); err != nil {
		return domain.MomentsModel{}, err
	}
	return model, nil
}
