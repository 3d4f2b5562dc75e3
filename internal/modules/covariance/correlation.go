package covariance

import "math"

// Correlation decomposes Σ = D·C·D with D = diag(√Σᵢᵢ). Zero-variance assets get a
// unit diagonal and zero off-diagonal correlations.
func Correlation(sigma [][]float64) ([]float64, [][]float64) {
	n := len(sigma)
	std := make([]float64, n)
	for i := 0; i < n; i++ {
		if sigma[i][i] > 0 {
			std[i] = math.Sqrt(sigma[i][i])
		}
	}

	corr := make([][]float64, n)
	for i := 0; i < n; i++ {
		corr[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			switch {
			case i == j:
				corr[i][j] = 1
			case std[i] > 0 && std[j] > 0:
				corr[i][j] = sigma[i][j] / (std[i] * std[j])
			}
		}
	}
	return std, corr
}

// FromCorrelation rebuilds Σ = D·C·D.
func FromCorrelation(std []float64, corr [][]float64) [][]float64 {
	n := len(std)
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = std[i] * corr[i][j] * std[j]
		}
	}
	return out
}

// Pair is a pair of assets whose absolute correlation reached a threshold.
type Pair struct {
	Asset1      string  `json:"asset1"`
	Asset2      string  `json:"asset2"`
	Correlation float64 `json:"correlation"`
}

// HighCorrelations lists asset pairs with |ρ| >= threshold, in upper-triangle order.
func HighCorrelations(sigma [][]float64, assets []string, threshold float64) []Pair {
	if len(sigma) == 0 || len(assets) != len(sigma) {
		return []Pair{}
	}

	std, corr := Correlation(sigma)
	pairs := make([]Pair, 0)
	for i := 0; i < len(sigma); i++ {
		for j := i + 1; j < len(sigma); j++ {
			if std[i] == 0 || std[j] == 0 {
				continue
			}
			if math.Abs(corr[i][j]) >= threshold {
				pairs = append(pairs, Pair{Asset1: assets[i], Asset2: assets[j], Correlation: corr[i][j]})
			}
		}
	}
	return pairs
}
