// Package covariance holds the linear algebra the risk pipeline needs around a
// covariance matrix: PSD repair, Cholesky factoring with regularization,
// (pseudo-)inversion, correlation decomposition and estimation from return series.
package covariance

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ToDense copies a square [][]float64 into a gonum dense matrix.
func ToDense(a [][]float64) *mat.Dense {
	n := len(a)
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d.Set(i, j, a[i][j])
		}
	}
	return d
}

// ToSym copies a square [][]float64 into a SymDense, averaging a[i][j] and a[j][i].
func ToSym(a [][]float64) *mat.SymDense {
	n := len(a)
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a[i][j]+a[j][i]))
		}
	}
	return s
}

// FromMatrix converts any gonum matrix to [][]float64.
func FromMatrix(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// Clone deep-copies a matrix.
func Clone(a [][]float64) [][]float64 {
	out := make([][]float64, len(a))
	for i, row := range a {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Symmetrize returns (A + Aᵗ)/2.
func Symmetrize(a [][]float64) [][]float64 {
	return FromMatrix(ToSym(a))
}

// Scale returns k·A.
func Scale(a [][]float64, k float64) [][]float64 {
	out := Clone(a)
	for i := range out {
		for j := range out[i] {
			out[i][j] *= k
		}
	}
	return out
}

// AddRidge returns A + eps·I.
func AddRidge(a [][]float64, eps float64) [][]float64 {
	out := Clone(a)
	for i := range out {
		out[i][i] += eps
	}
	return out
}

// HasNonFinite reports whether any entry is NaN or ±Inf.
func HasNonFinite(a [][]float64) bool {
	for _, row := range a {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// Frobenius returns the Frobenius norm of A.
func Frobenius(a [][]float64) float64 {
	if len(a) == 0 {
		return 0
	}
	return mat.Norm(ToDense(a), 2)
}

// Sub returns A − B.
func Sub(a, b [][]float64) [][]float64 {
	out := Clone(a)
	for i := range out {
		for j := range out[i] {
			out[i][j] -= b[i][j]
		}
	}
	return out
}

// QuadForm returns wᵗ·A·w.
func QuadForm(a [][]float64, w []float64) float64 {
	if len(w) == 0 {
		return 0
	}
	v := mat.NewVecDense(len(w), append([]float64(nil), w...))
	return mat.Inner(v, ToDense(a), v)
}

// MulVec returns A·w.
func MulVec(a [][]float64, w []float64) []float64 {
	var out mat.VecDense
	out.MulVec(ToDense(a), mat.NewVecDense(len(w), append([]float64(nil), w...)))
	return out.RawVector().Data
}
