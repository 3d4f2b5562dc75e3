package formulas

import (
	"math"
	"sort"
)

// SortedCopy returns an ascending copy of data, leaving the input untouched.
func SortedCopy(data []float64) []float64 {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return sorted
}

// Percentile returns the p-quantile (p in [0,1]) of ascending data using linear
// interpolation between closest ranks, position = p*(n-1).
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Quantile sorts a copy of data and returns its p-quantile.
func Quantile(data []float64, p float64) float64 {
	return Percentile(SortedCopy(data), p)
}

// TailMean returns the mean of ascending data at or below threshold. The second return
// value is false when no observation falls in the tail; the threshold itself is then returned.
func TailMean(sorted []float64, threshold float64) (float64, bool) {
	sum := 0.0
	count := 0
	for _, v := range sorted {
		if v > threshold {
			break
		}
		sum += v
		count++
	}
	if count == 0 {
		return threshold, false
	}
	return sum / float64(count), true
}
