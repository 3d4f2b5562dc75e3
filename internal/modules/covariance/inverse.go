package covariance

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// conditionLimit is the condition number above which the exact inverse is not trusted.
const conditionLimit = 1e12

// Inverse returns Σ⁻¹, falling back to the SVD pseudo-inverse when Σ is singular or
// ill-conditioned. It never fails; the boolean reports whether the fallback was used.
func Inverse(sigma [][]float64) ([][]float64, bool) {
	n := len(sigma)
	if n == 0 {
		return [][]float64{}, false
	}

	a := ToDense(sigma)
	if !HasNonFinite(sigma) {
		var inv mat.Dense
		if err := inv.Inverse(a); err == nil && mat.Cond(a, 2) < conditionLimit {
			return FromMatrix(&inv), false
		}
	}

	return FromMatrix(PseudoInverse(a)), true
}

// PseudoInverse computes the Moore-Penrose inverse via SVD, discarding singular
// values below max(r,c)·ε·σmax.
func PseudoInverse(a mat.Matrix) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(c, r, nil)

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return out
	}

	values := svd.Values(nil)
	if len(values) == 0 || math.IsNaN(values[0]) {
		return out
	}
	cutoff := float64(max(r, c)) * 2.220446049250313e-16 * values[0]

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	k := len(values)
	inv := mat.NewDiagDense(k, nil)
	for i, s := range values {
		if s > cutoff {
			inv.SetDiag(i, 1/s)
		}
	}

	var vs mat.Dense
	vs.Mul(&v, inv)
	out.Mul(&vs, u.T())
	return out
}
