package utils

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Scalar admits the two field types the dense direct solver is used with:
// real operators and the complex DFT-like matrices of the harmonic balance
// method share one elimination routine.
type Scalar interface {
	~float64 | ~complex128
}

func magnitude[T Scalar](v T) float64 {
	switch x := any(v).(type) {
	case float64:
		return math.Abs(x)
	case complex128:
		return cmplx.Abs(x)
	}
	return 0
}

// GaussSolve solves A·x = b in place using Gauss elimination with partial
// pivoting. A is row-major n×n and is destroyed; b is overwritten with x.
func GaussSolve[T Scalar](n int, A []T, b []T) {
	if len(A) != n*n || len(b) != n {
		panic(fmt.Errorf("GaussSolve: dimension mismatch, n=%d len(A)=%d len(b)=%d",
			n, len(A), len(b)))
	}
	for col := 0; col < n-1; col++ {
		// Partial pivot: swap in the row with the largest magnitude entry
		pivRow := col
		pivMag := magnitude(A[col*n+col])
		for row := col + 1; row < n; row++ {
			if m := magnitude(A[row*n+col]); m > pivMag {
				pivMag, pivRow = m, row
			}
		}
		if pivMag == 0 {
			panic(fmt.Errorf("GaussSolve: singular matrix at column %d", col))
		}
		if pivRow != col {
			for j := 0; j < n; j++ {
				A[col*n+j], A[pivRow*n+j] = A[pivRow*n+j], A[col*n+j]
			}
			b[col], b[pivRow] = b[pivRow], b[col]
		}
		for row := col + 1; row < n; row++ {
			w := A[row*n+col] / A[col*n+col]
			if w == 0 {
				continue
			}
			for j := col; j < n; j++ {
				A[row*n+j] -= w * A[col*n+j]
			}
			b[row] -= w * b[col]
		}
	}
	if magnitude(A[(n-1)*n+(n-1)]) == 0 {
		panic(fmt.Errorf("GaussSolve: singular matrix at column %d", n-1))
	}
	// Back substitution
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for j := row + 1; j < n; j++ {
			sum -= A[row*n+j] * b[j]
		}
		b[row] = sum / A[row*n+row]
	}
}

// GaussInvert returns the inverse of the row-major n×n matrix A, computed
// column by column with GaussSolve. A is left untouched.
func GaussInvert[T Scalar](n int, A []T) (Ainv []T) {
	Ainv = make([]T, n*n)
	scratch := make([]T, n*n)
	col := make([]T, n)
	for j := 0; j < n; j++ {
		copy(scratch, A)
		for i := range col {
			col[i] = 0
		}
		col[j] = 1
		GaussSolve(n, scratch, col)
		for i := 0; i < n; i++ {
			Ainv[i*n+j] = col[i]
		}
	}
	return
}
