package transfer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Interpolator maps donor boundary values onto target boundary points. The
// coefficient table is rebuilt whenever either side moves; Interpolate then
// applies it to any number of payloads.
type Interpolator interface {
	SetTransferCoeff(donorCoords, targetCoords []float64, nDim int) error
	Interpolate(donorVals []float64, nVal int) (targetVals []float64)
	NTargets() int
}

// coeffTable is the shared sparse-weight representation: each target point
// holds donor indices and weights summing to one.
type coeffTable struct {
	donors  [][]int
	weights [][]float64
}

func (c *coeffTable) NTargets() int { return len(c.donors) }

func (c *coeffTable) Interpolate(donorVals []float64, nVal int) (targetVals []float64) {
	targetVals = make([]float64, c.NTargets()*nVal)
	for t := range c.donors {
		for k, d := range c.donors[t] {
			w := c.weights[t][k]
			for v := 0; v < nVal; v++ {
				targetVals[t*nVal+v] += w * donorVals[d*nVal+v]
			}
		}
	}
	return
}

func dist2(a, b []float64, ai, bi, nDim int) (r2 float64) {
	for d := 0; d < nDim; d++ {
		dx := a[ai*nDim+d] - b[bi*nDim+d]
		r2 += dx * dx
	}
	return
}

// NearestNeighbor assigns each target point the value of its closest donor.
type NearestNeighbor struct{ coeffTable }

func NewNearestNeighbor() *NearestNeighbor { return &NearestNeighbor{} }

func (nn *NearestNeighbor) SetTransferCoeff(donorCoords, targetCoords []float64, nDim int) error {
	var (
		nDonor  = len(donorCoords) / nDim
		nTarget = len(targetCoords) / nDim
	)
	if nDonor == 0 {
		return fmt.Errorf("interpolation: empty donor side")
	}
	nn.donors = make([][]int, nTarget)
	nn.weights = make([][]float64, nTarget)
	for t := 0; t < nTarget; t++ {
		best, bestR2 := 0, math.Inf(1)
		for d := 0; d < nDonor; d++ {
			if r2 := dist2(targetCoords, donorCoords, t, d, nDim); r2 < bestR2 {
				best, bestR2 = d, r2
			}
		}
		nn.donors[t] = []int{best}
		nn.weights[t] = []float64{1}
	}
	return nil
}

// Isoparametric blends the nDim+1 nearest donors with inverse-distance
// weights, a point-cloud stand-in for element-local isoparametric
// coordinates.
type Isoparametric struct{ coeffTable }

func NewIsoparametric() *Isoparametric { return &Isoparametric{} }

func (ip *Isoparametric) SetTransferCoeff(donorCoords, targetCoords []float64, nDim int) error {
	var (
		nDonor  = len(donorCoords) / nDim
		nTarget = len(targetCoords) / nDim
		nBlend  = nDim + 1
	)
	if nDonor == 0 {
		return fmt.Errorf("interpolation: empty donor side")
	}
	if nBlend > nDonor {
		nBlend = nDonor
	}
	ip.donors = make([][]int, nTarget)
	ip.weights = make([][]float64, nTarget)
	for t := 0; t < nTarget; t++ {
		idx, r2 := nearestK(targetCoords, donorCoords, t, nDim, nDonor, nBlend)
		var (
			ws  = make([]float64, nBlend)
			sum float64
		)
		for k := 0; k < nBlend; k++ {
			ws[k] = 1 / (math.Sqrt(r2[k]) + 1e-12)
			sum += ws[k]
		}
		for k := range ws {
			ws[k] /= sum
		}
		ip.donors[t] = idx
		ip.weights[t] = ws
	}
	return nil
}

// nearestK returns the k nearest donor indices to target point t, with
// their squared distances, by selection over the donor set.
func nearestK(targetCoords, donorCoords []float64, t, nDim, nDonor, k int) (idx []int, r2 []float64) {
	idx = make([]int, 0, k)
	r2 = make([]float64, 0, k)
	taken := make([]bool, nDonor)
	for len(idx) < k {
		best, bestR2 := -1, math.Inf(1)
		for d := 0; d < nDonor; d++ {
			if taken[d] {
				continue
			}
			if rr := dist2(targetCoords, donorCoords, t, d, nDim); rr < bestR2 {
				best, bestR2 = d, rr
			}
		}
		taken[best] = true
		idx = append(idx, best)
		r2 = append(r2, bestR2)
	}
	return
}

// SlidingAverage is the weighted-average interpolation for sliding and
// mixing-plane interfaces: all donors within the support radius contribute
// with distance weights, giving a smooth transfer as the sides rotate past
// each other.
type SlidingAverage struct {
	coeffTable
	Radius float64
}

func NewSlidingAverage() *SlidingAverage { return &SlidingAverage{} }

func (sa *SlidingAverage) SetTransferCoeff(donorCoords, targetCoords []float64, nDim int) error {
	var (
		nDonor  = len(donorCoords) / nDim
		nTarget = len(targetCoords) / nDim
	)
	if nDonor == 0 {
		return fmt.Errorf("interpolation: empty donor side")
	}
	radius := sa.Radius
	if radius == 0 {
		radius = supportRadius(donorCoords, nDim, nDonor)
	}
	sa.donors = make([][]int, nTarget)
	sa.weights = make([][]float64, nTarget)
	for t := 0; t < nTarget; t++ {
		var (
			idx []int
			ws  []float64
			sum float64
		)
		for d := 0; d < nDonor; d++ {
			r := math.Sqrt(dist2(targetCoords, donorCoords, t, d, nDim))
			if r > radius {
				continue
			}
			w := 1 - r/radius
			idx = append(idx, d)
			ws = append(ws, w)
			sum += w
		}
		if len(idx) == 0 {
			// Nothing in range: fall back to the nearest donor so the
			// transfer never drops a target point.
			best, _ := nearestK(targetCoords, donorCoords, t, nDim, nDonor, 1)
			idx, ws, sum = best, []float64{1}, 1
		}
		for k := range ws {
			ws[k] /= sum
		}
		sa.donors[t] = idx
		sa.weights[t] = ws
	}
	return nil
}

// supportRadius estimates twice the mean nearest-donor spacing.
func supportRadius(donorCoords []float64, nDim, nDonor int) float64 {
	if nDonor < 2 {
		return 1
	}
	var sum float64
	for d := 0; d < nDonor; d++ {
		best := math.Inf(1)
		for e := 0; e < nDonor; e++ {
			if e == d {
				continue
			}
			if r2 := dist2(donorCoords, donorCoords, d, e, nDim); r2 < best {
				best = r2
			}
		}
		sum += math.Sqrt(best)
	}
	return 2 * sum / float64(nDonor)
}

// RadialBasis solves the dense RBF system (Wendland C2 kernel plus linear
// polynomial) for the donor side and evaluates it at the targets.
type RadialBasis struct {
	coeffTable
	Radius float64
}

func NewRadialBasis() *RadialBasis { return &RadialBasis{} }

func wendlandC2(r, radius float64) float64 {
	x := r / radius
	if x >= 1 {
		return 0
	}
	om := 1 - x
	return om * om * om * om * (4*x + 1)
}

func (rb *RadialBasis) SetTransferCoeff(donorCoords, targetCoords []float64, nDim int) error {
	var (
		nDonor  = len(donorCoords) / nDim
		nTarget = len(targetCoords) / nDim
		nPoly   = nDim + 1
		n       = nDonor + nPoly
	)
	if nDonor == 0 {
		return fmt.Errorf("interpolation: empty donor side")
	}
	radius := rb.Radius
	if radius == 0 {
		radius = 4 * supportRadius(donorCoords, nDim, nDonor)
	}
	// Assemble [Phi P; P^T 0] and invert once; the target weights are rows
	// of A_target * inv(M) restricted to the donor block.
	m := mat.NewDense(n, n, nil)
	for i := 0; i < nDonor; i++ {
		for j := 0; j < nDonor; j++ {
			r := math.Sqrt(dist2(donorCoords, donorCoords, i, j, nDim))
			m.Set(i, j, wendlandC2(r, radius))
		}
		m.Set(i, nDonor, 1)
		m.Set(nDonor, i, 1)
		for d := 0; d < nDim; d++ {
			m.Set(i, nDonor+1+d, donorCoords[i*nDim+d])
			m.Set(nDonor+1+d, i, donorCoords[i*nDim+d])
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return fmt.Errorf("interpolation: RBF system singular: %w", err)
	}
	rb.donors = make([][]int, nTarget)
	rb.weights = make([][]float64, nTarget)
	row := make([]float64, n)
	for t := 0; t < nTarget; t++ {
		for j := 0; j < nDonor; j++ {
			r := math.Sqrt(dist2(targetCoords, donorCoords, t, j, nDim))
			row[j] = wendlandC2(r, radius)
		}
		row[nDonor] = 1
		for d := 0; d < nDim; d++ {
			row[nDonor+1+d] = targetCoords[t*nDim+d]
		}
		var (
			idx []int
			ws  []float64
		)
		for j := 0; j < nDonor; j++ {
			var w float64
			for k := 0; k < n; k++ {
				w += row[k] * inv.At(k, j)
			}
			if w != 0 {
				idx = append(idx, j)
				ws = append(ws, w)
			}
		}
		rb.donors[t] = idx
		rb.weights[t] = ws
	}
	return nil
}

// ConservativeMirror transposes another interpolator's coefficient table so
// that donor-side integrals are conserved: the forward map distributes
// displacements, the mirror gathers tractions with the same weights.
type ConservativeMirror struct {
	Forward Interpolator
	nDonor  int
	table   coeffTable
}

func NewConservativeMirror(forward Interpolator) *ConservativeMirror {
	return &ConservativeMirror{Forward: forward}
}

func (cm *ConservativeMirror) SetTransferCoeff(donorCoords, targetCoords []float64, nDim int) error {
	// The forward map runs target→donor; our donors are its targets.
	if err := cm.Forward.SetTransferCoeff(targetCoords, donorCoords, nDim); err != nil {
		return err
	}
	var (
		fwd     = forwardTable(cm.Forward)
		nTarget = len(targetCoords) / nDim
	)
	cm.nDonor = len(donorCoords) / nDim
	cm.table.donors = make([][]int, nTarget)
	cm.table.weights = make([][]float64, nTarget)
	for d := range fwd.donors {
		for k, t := range fwd.donors[d] {
			cm.table.donors[t] = append(cm.table.donors[t], d)
			cm.table.weights[t] = append(cm.table.weights[t], fwd.weights[d][k])
		}
	}
	return nil
}

func (cm *ConservativeMirror) Interpolate(donorVals []float64, nVal int) []float64 {
	return cm.table.Interpolate(donorVals, nVal)
}

func (cm *ConservativeMirror) NTargets() int { return cm.table.NTargets() }

// forwardTable extracts the coefficient table of a concrete interpolator.
func forwardTable(in Interpolator) *coeffTable {
	switch v := in.(type) {
	case *NearestNeighbor:
		return &v.coeffTable
	case *Isoparametric:
		return &v.coeffTable
	case *SlidingAverage:
		return &v.coeffTable
	case *RadialBasis:
		return &v.coeffTable
	}
	panic(fmt.Errorf("transfer: interpolator %T cannot be mirrored", in))
}
