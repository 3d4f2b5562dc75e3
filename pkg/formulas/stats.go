// Package formulas holds the pure numeric helpers shared by the risk modules.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// MeanStd returns the mean and population standard deviation in one pass over gonum/stat.
func MeanStd(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(data, nil)
}

// MinMax returns the smallest and largest values.
func MinMax(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	return floats.Min(data), floats.Max(data)
}

// FractionBelow returns the share of values strictly below threshold.
func FractionBelow(data []float64, threshold float64) float64 {
	if len(data) == 0 {
		return 0
	}
	count := 0
	for _, v := range data {
		if v < threshold {
			count++
		}
	}
	return float64(count) / float64(len(data))
}

// AnnualizedReturn converts a growth multiple over horizon years into a compound annual rate.
// Formula: (end/start)^(1/years) - 1
func AnnualizedReturn(start, end, years float64) float64 {
	if start <= 0 || years <= 0 {
		return 0
	}
	ratio := end / start
	if ratio <= 0 {
		return -1
	}
	return math.Pow(ratio, 1/years) - 1
}
