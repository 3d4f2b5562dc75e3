package backtest

import (
	"math"

	"github.com/aristath/sentinel-risk/pkg/formulas"
)

// significance is the test size used for every reject decision.
const significance = 0.05

// CriticalValue returns the χ² critical value at 95% for dof degrees of freedom.
func CriticalValue(dof float64) float64 {
	return formulas.ChiSquaredCritical(1-significance, dof)
}

// Kupiec returns the proportion-of-failures likelihood-ratio statistic and its χ²₁
// p-value for breaches out of n observations at the given VaR confidence.
func Kupiec(n, breaches int, confidence float64) (lr, pValue float64) {
	if n <= 0 {
		return 0, 1
	}
	expected := 1 - confidence
	nf := float64(n)

	switch breaches {
	case 0:
		lr = -2 * nf * math.Log(confidence)
	case n:
		lr = -2 * nf * math.Log(expected)
	default:
		x := float64(breaches)
		rate := x / nf
		lr = 2 * (x*math.Log(rate/expected) + (nf-x)*math.Log((1-rate)/(1-expected)))
	}

	lr = math.Max(lr, 0)
	return lr, formulas.ChiSquaredPValue(lr, 1)
}

// Independence holds Christoffersen's first-order Markov test of breach clustering
// and the joint conditional-coverage test.
type Independence struct {
	N00 int `json:"n00"`
	N01 int `json:"n01"`
	N10 int `json:"n10"`
	N11 int `json:"n11"`

	LRIndependence     float64 `json:"lr_independence"`
	PValueIndependence float64 `json:"p_value_independence"`
	RejectIndependence bool    `json:"reject_independence"`

	LRConditionalCoverage     float64 `json:"lr_conditional_coverage"`
	PValueConditionalCoverage float64 `json:"p_value_conditional_coverage"`
	RejectConditionalCoverage bool    `json:"reject_conditional_coverage"`
}

// Christoffersen computes the independence test over the breach indicator sequence
// and combines it with the Kupiec statistic lrUC into the conditional-coverage test.
func Christoffersen(hits []bool, lrUC float64) Independence {
	var ind Independence
	for i := 1; i < len(hits); i++ {
		switch {
		case !hits[i-1] && !hits[i]:
			ind.N00++
		case !hits[i-1] && hits[i]:
			ind.N01++
		case hits[i-1] && !hits[i]:
			ind.N10++
		default:
			ind.N11++
		}
	}

	n00, n01 := float64(ind.N00), float64(ind.N01)
	n10, n11 := float64(ind.N10), float64(ind.N11)
	total := n00 + n01 + n10 + n11

	if total > 0 {
		pi := (n01 + n11) / total
		pi01 := safeRatio(n01, n00+n01)
		pi11 := safeRatio(n11, n10+n11)

		restricted := xlogy(n00+n10, 1-pi) + xlogy(n01+n11, pi)
		unrestricted := xlogy(n00, 1-pi01) + xlogy(n01, pi01) + xlogy(n10, 1-pi11) + xlogy(n11, pi11)
		ind.LRIndependence = math.Max(-2*(restricted-unrestricted), 0)
	}

	ind.PValueIndependence = formulas.ChiSquaredPValue(ind.LRIndependence, 1)
	ind.RejectIndependence = ind.LRIndependence > CriticalValue(1)

	ind.LRConditionalCoverage = lrUC + ind.LRIndependence
	ind.PValueConditionalCoverage = formulas.ChiSquaredPValue(ind.LRConditionalCoverage, 2)
	ind.RejectConditionalCoverage = ind.LRConditionalCoverage > CriticalValue(2)
	return ind
}

func safeRatio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// xlogy returns x·ln(y) with 0·ln(0) = 0.
func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}
