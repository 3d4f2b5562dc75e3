package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ChiSquaredPValue returns P(X > stat) for X ~ χ²(dof).
func ChiSquaredPValue(stat float64, dof float64) float64 {
	if math.IsNaN(stat) {
		return math.NaN()
	}
	if stat <= 0 {
		return 1
	}
	return distuv.ChiSquared{K: dof}.Survival(stat)
}

// ChiSquaredCritical returns the χ²(dof) quantile at the given probability (e.g. 0.95).
func ChiSquaredCritical(prob float64, dof float64) float64 {
	return distuv.ChiSquared{K: dof}.Quantile(prob)
}
