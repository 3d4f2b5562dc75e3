package covariance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/sentinel-risk/internal/domain"
)

const (
	// MinRidge is the smallest ε added to the diagonal when regularizing.
	MinRidge = 1e-6
	// maxRegularizationAttempts bounds the ε·10 escalation before giving up.
	maxRegularizationAttempts = 4
	// PSDTolerance is the eigenvalue tolerance used for PSD checks.
	PSDTolerance = 1e-9
)

// Eigen returns the eigenvalues (ascending) and eigenvectors of the symmetrized matrix.
func Eigen(a [][]float64) ([]float64, *mat.Dense, error) {
	if HasNonFinite(a) {
		return nil, nil, fmt.Errorf("%w: matrix contains NaN or Inf", domain.ErrNumericalInstability)
	}
	var es mat.EigenSym
	if ok := es.Factorize(ToSym(a), true); !ok {
		return nil, nil, fmt.Errorf("%w: eigen decomposition did not converge", domain.ErrNumericalInstability)
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	return es.Values(nil), &vecs, nil
}

// MinEigenvalue returns the smallest eigenvalue of the symmetrized matrix.
func MinEigenvalue(a [][]float64) (float64, error) {
	if len(a) == 0 {
		return 0, nil
	}
	vals, _, err := Eigen(a)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// IsPSD reports whether every eigenvalue is ≥ −tol.
func IsPSD(a [][]float64, tol float64) bool {
	minEig, err := MinEigenvalue(a)
	if err != nil {
		return false
	}
	return minEig >= -tol
}

// ClipEigenvalues raises every eigenvalue below floor to floor and rebuilds
// V·diag(λ)·Vᵗ, symmetrized. The boolean reports whether any eigenvalue moved.
func ClipEigenvalues(a [][]float64, floor float64) ([][]float64, bool, error) {
	vals, vecs, err := Eigen(a)
	if err != nil {
		return nil, false, err
	}

	clipped := false
	for i, v := range vals {
		if v < floor {
			vals[i] = floor
			clipped = true
		}
	}
	if !clipped {
		return Symmetrize(a), false, nil
	}

	n := len(vals)
	var scaled mat.Dense
	scaled.Scale(1, vecs)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			scaled.Set(i, j, scaled.At(i, j)*vals[j])
		}
	}
	var rebuilt mat.Dense
	rebuilt.Mul(&scaled, vecs.T())
	return Symmetrize(FromMatrix(&rebuilt)), true, nil
}

// Factor is a Cholesky factorization Σ = L·Lᵗ of a (possibly regularized) covariance.
type Factor struct {
	// Sigma is the matrix that was actually factorized.
	Sigma       [][]float64
	Regularized bool
	Epsilon     float64

	n     int
	lower []float64 // row-major n×n, zero above the diagonal
}

// Dim returns the factor dimension.
func (f *Factor) Dim() int {
	return f.n
}

// Correlate writes L·z into dst. dst and z must have length Dim() and must not alias.
func (f *Factor) Correlate(dst, z []float64) {
	n := f.n
	for i := 0; i < n; i++ {
		row := f.lower[i*n : i*n+i+1]
		s := 0.0
		for k, l := range row {
			s += l * z[k]
		}
		dst[i] = s
	}
}

// Factorize computes the Cholesky factor of sigma. When sigma is not positive
// definite it adds ε·I with ε = max(1e-6, 10·|λmin|) and retries, growing ε tenfold
// per attempt. Only matrices that cannot be repaired return ErrNumericalInstability.
func Factorize(sigma [][]float64) (*Factor, error) {
	n := len(sigma)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty covariance matrix", domain.ErrInvalidParameter)
	}
	if HasNonFinite(sigma) {
		return nil, fmt.Errorf("%w: covariance contains NaN or Inf", domain.ErrNumericalInstability)
	}

	sym := Symmetrize(sigma)
	if f, ok := cholesky(sym); ok {
		return f, nil
	}

	minEig, err := MinEigenvalue(sym)
	if err != nil {
		return nil, err
	}
	eps := math.Max(MinRidge, 10*math.Abs(minEig))
	for attempt := 0; attempt < maxRegularizationAttempts; attempt++ {
		candidate := AddRidge(sym, eps)
		if f, ok := cholesky(candidate); ok {
			f.Regularized = true
			f.Epsilon = eps
			return f, nil
		}
		eps *= 10
	}

	return nil, fmt.Errorf("%w: covariance not factorizable after regularization (min eigenvalue %g)",
		domain.ErrNumericalInstability, minEig)
}

func cholesky(sym [][]float64) (*Factor, bool) {
	var chol mat.Cholesky
	if ok := chol.Factorize(ToSym(sym)); !ok {
		return nil, false
	}
	var l mat.TriDense
	chol.LTo(&l)

	n := len(sym)
	lower := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			v := l.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, false
			}
			lower[i*n+j] = v
		}
	}
	return &Factor{Sigma: sym, n: n, lower: lower}, true
}
