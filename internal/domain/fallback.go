package domain

// Fallback names a numerical fallback taken while producing a result. Every result
// record lists the fallbacks it used so callers can tell when a figure is approximate.
type Fallback string

const (
	FallbackPseudoInverse         Fallback = "pseudo_inverse"
	FallbackCovarianceRegularized Fallback = "covariance_regularized"
	FallbackEigenvalueClipped     Fallback = "eigenvalue_clipped"
	FallbackEqualWeights          Fallback = "equal_weights"
	FallbackLeverageScaled        Fallback = "leverage_scaled"
	FallbackZeroVolatility        Fallback = "zero_volatility"
	FallbackEmpiricalTail         Fallback = "empirical_tail"
	FallbackEmptyTail             Fallback = "empty_tail"
	FallbackPathsAbsorbed         Fallback = "paths_absorbed"
	FallbackTailUnavailable       Fallback = "tail_unavailable"
)

// Fallbacks is an ordered, de-duplicated set of fallback markers.
type Fallbacks []Fallback

// Add appends f if it is not already present.
func (fs Fallbacks) Add(f Fallback) Fallbacks {
	if fs.Has(f) {
		return fs
	}
	return append(fs, f)
}

// Merge appends every marker of other not already present.
func (fs Fallbacks) Merge(other Fallbacks) Fallbacks {
	for _, f := range other {
		fs = fs.Add(f)
	}
	return fs
}

// Has reports whether f was recorded.
func (fs Fallbacks) Has(f Fallback) bool {
	for _, existing := range fs {
		if existing == f {
			return true
		}
	}
	return false
}
