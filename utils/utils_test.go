package utils

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionMap(t *testing.T) {
	{ // Test bucket balance - max imbalance of one item
		for n := 16; n < 2000; n++ {
			pm := NewPartitionMap(8, n)
			total := 0
			minDim, maxDim := n, 0
			for b := 0; b < pm.ParallelDegree; b++ {
				d := pm.GetBucketDimension(b)
				total += d
				if d < minDim {
					minDim = d
				}
				if d > maxDim {
					maxDim = d
				}
			}
			assert.Equal(t, n, total)
			assert.True(t, maxDim-minDim <= 1)
		}
	}
	{ // Test bucket probe - every index lands in exactly its containing bucket
		for maxIndex := 10; maxIndex < 500; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				b, min, max := pm.GetBucket(k)
				assert.True(t, b >= 0)
				assert.True(t, k >= min && k < max)
			}
		}
	}
	{ // Test local/global index round trip
		pm := NewPartitionMap(4, 100)
		for g := 0; g < 100; g++ {
			l, b := pm.GetLocalIndex(g)
			assert.Equal(t, g, pm.GetGlobalIndex(l, b))
		}
	}
}

func TestDynBuffer(t *testing.T) {
	{ // Test grow-never-shrink capacity
		db := NewDynBuffer[float64](8)
		db.Resize(32)
		assert.Equal(t, 32, db.Len())
		cap32 := db.Capacity()
		db.Resize(4)
		assert.Equal(t, 4, db.Len())
		assert.Equal(t, cap32, db.Capacity())
		db.Resize(16)
		assert.Equal(t, cap32, db.Capacity())
	}
	{ // Test Add/Cells
		db := NewDynBuffer[float64](0)
		for i := 0; i < 10; i++ {
			db.Add(float64(i))
		}
		assert.Equal(t, 10, db.Len())
		assert.Equal(t, 3., db.Cells()[3])
	}
}

func TestGaussSolve(t *testing.T) {
	{ // Test real system with pivoting required
		A := []float64{
			0, 2, 1,
			1, 1, 1,
			2, 0, 1,
		}
		b := []float64{7, 6, 5}
		GaussSolve(3, A, b)
		// x = [1, 2, 3]
		assert.InDelta(t, 1, b[0], 1.e-12)
		assert.InDelta(t, 2, b[1], 1.e-12)
		assert.InDelta(t, 3, b[2], 1.e-12)
	}
	{ // Test complex system
		A := []complex128{
			complex(1, 1), 0,
			0, complex(0, 2),
		}
		b := []complex128{complex(2, 2), complex(0, 4)}
		GaussSolve(2, A, b)
		assert.True(t, cmplx.Abs(b[0]-2) < 1.e-12)
		assert.True(t, cmplx.Abs(b[1]-2) < 1.e-12)
	}
	{ // Test singular matrix panics
		A := []float64{1, 2, 2, 4}
		b := []float64{1, 2}
		assert.Panics(t, func() { GaussSolve(2, A, b) })
	}
}

func TestGaussInvert(t *testing.T) {
	{ // Test A * Ainv = I, real
		A := []float64{4, 7, 2, 6}
		Ainv := GaussInvert(2, A)
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				var sum float64
				for k := 0; k < 2; k++ {
					sum += A[i*2+k] * Ainv[k*2+j]
				}
				want := 0.
				if i == j {
					want = 1
				}
				assert.InDelta(t, want, sum, 1.e-12)
			}
		}
		// Source matrix untouched
		assert.Equal(t, []float64{4, 7, 2, 6}, A)
	}
	{ // Test complex inverse of a DFT-like matrix
		n := 3
		E := make([]complex128, n*n)
		for i := 0; i < n; i++ {
			for k := 0; k < n; k++ {
				E[i*n+k] = cmplx.Exp(complex(0, 2*math.Pi*float64(i*k)/float64(n)))
			}
		}
		Einv := GaussInvert(n, E)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				var sum complex128
				for k := 0; k < n; k++ {
					sum += E[i*n+k] * Einv[k*n+j]
				}
				want := complex(0, 0)
				if i == j {
					want = 1
				}
				assert.True(t, cmplx.Abs(sum-want) < 1.e-12)
			}
		}
	}
}
