package solver

import (
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/types"
	"github.com/notargets/mzflow/utils"
)

// skipPeriodicNeighbor reports whether the (iPoint, jPoint) neighbor pair
// crosses a periodic seam. Edge-difference accumulations (Green-Gauss,
// least squares, undivided Laplacian, pressure sensor) skip these pairs;
// the periodic rounds supply the missing contributions with the correct
// rotation, so counting the local edge too would double the seam.
func skipPeriodicNeighbor(geo interface{ OnPeriodicBoundary(int) bool }, iPoint, jPoint int) bool {
	return geo.OnPeriodicBoundary(iPoint) && geo.OnPeriodicBoundary(jPoint)
}

// ComputeGradientsGG accumulates Green-Gauss gradients of the conservative
// variables: edge-midpoint fluxes into both endpoints, a periodic
// accumulation round, then division by the periodic-consistent volume and
// a halo refresh.
func (b *Base) ComputeGradientsGG() {
	var (
		f    = b.F
		geo  = b.Geo
		nVar = f.NVar
		nDim = geo.NDim
	)
	for i := range f.Grad {
		f.Grad[i] = 0
	}
	for _, e := range geo.Edges {
		i, j := e[0], e[1]
		if skipPeriodicNeighbor(geo, i, j) {
			continue
		}
		for v := 0; v < nVar; v++ {
			avg := 0.5 * (f.Sol[i*nVar+v] + f.Sol[j*nVar+v])
			for d := 0; d < nDim; d++ {
				area := geo.Coord(j, d) - geo.Coord(i, d)
				if i < geo.NPointDomain {
					f.Grad[(i*nVar+v)*nDim+d] += avg * area
				}
				if j < geo.NPointDomain {
					f.Grad[(j*nVar+v)*nDim+d] -= avg * area
				}
			}
		}
	}
	if geo.NPeriodicMarkers > 0 {
		b.Periodic.Initiate(types.PeriodicSolGG)
		b.Periodic.Complete(types.PeriodicSolGG)
	}
	for i := 0; i < geo.NPointDomain; i++ {
		for v := 0; v < nVar; v++ {
			for d := 0; d < nDim; d++ {
				f.Grad[(i*nVar+v)*nDim+d] /= f.Vol[i]
			}
		}
	}
	b.Halo.Initiate(types.SolutionGradient)
	b.Halo.Complete(types.SolutionGradient)
}

// ComputeGradientsLS accumulates the weighted-least-squares normal matrix
// and right-hand side per point, folds both across periodic seams, solves
// the small per-point system, and refreshes halos. weighted selects
// inverse-distance weighting.
func (b *Base) ComputeGradientsLS(weighted bool) {
	var (
		f    = b.F
		geo  = b.Geo
		nVar = f.NVar
		nDim = geo.NDim
	)
	for i := range f.LSMatrix {
		f.LSMatrix[i] = 0
	}
	for i := range f.LSRhs {
		f.LSRhs[i] = 0
	}
	for _, e := range geo.Edges {
		b.accumulateLSPair(e[0], e[1], weighted)
		b.accumulateLSPair(e[1], e[0], weighted)
	}
	if geo.NPeriodicMarkers > 0 {
		kind := types.PeriodicSolLS
		if !weighted {
			kind = types.PeriodicSolULS
		}
		b.Periodic.Initiate(kind)
		b.Periodic.Complete(kind)
	}
	mat := make([]float64, nDim*nDim)
	rhs := make([]float64, nDim)
	for i := 0; i < geo.NPointDomain; i++ {
		for v := 0; v < nVar; v++ {
			copy(mat, f.LSMatrix[i*nDim*nDim:(i+1)*nDim*nDim])
			blk := f.LSRhsAt(i)
			for d := 0; d < nDim; d++ {
				rhs[d] = blk[v*nDim+d]
			}
			utils.GaussSolve(nDim, mat, rhs)
			for d := 0; d < nDim; d++ {
				f.Grad[(i*nVar+v)*nDim+d] = rhs[d]
			}
		}
	}
	b.Halo.Initiate(types.SolutionGradient)
	b.Halo.Complete(types.SolutionGradient)
}

func (b *Base) accumulateLSPair(iPoint, jPoint int, weighted bool) {
	var (
		f    = b.F
		geo  = b.Geo
		nVar = f.NVar
		nDim = geo.NDim
	)
	if iPoint >= geo.NPointDomain || skipPeriodicNeighbor(geo, iPoint, jPoint) {
		return
	}
	var (
		dx     = make([]float64, nDim)
		weight = 1.0
	)
	for d := 0; d < nDim; d++ {
		dx[d] = geo.Coord(jPoint, d) - geo.Coord(iPoint, d)
	}
	if weighted {
		var r2 float64
		for d := 0; d < nDim; d++ {
			r2 += dx[d] * dx[d]
		}
		if r2 > 0 {
			weight = 1.0 / r2
		}
	}
	for r := 0; r < nDim; r++ {
		for c := 0; c < nDim; c++ {
			f.LSMatrix[(iPoint*nDim+r)*nDim+c] += weight * dx[r] * dx[c]
		}
	}
	blk := f.LSRhsAt(iPoint)
	for v := 0; v < nVar; v++ {
		du := f.Sol[jPoint*nVar+v] - f.Sol[iPoint*nVar+v]
		for d := 0; d < nDim; d++ {
			blk[v*nDim+d] += weight * dx[d] * du
		}
	}
}

// ComputeGradients dispatches to the configured gradient method.
func (b *Base) ComputeGradients() {
	if b.Cfg.GradientKind == config.WeightedLeastSquares {
		b.ComputeGradientsLS(true)
		return
	}
	b.ComputeGradientsGG()
}

// ComputeUndividedLaplacian accumulates the undivided Laplacian used by the
// centered-scheme artificial dissipation, with its own periodic round.
func (b *Base) ComputeUndividedLaplacian() {
	var (
		f    = b.F
		geo  = b.Geo
		nVar = f.NVar
	)
	for i := range f.UndLapl {
		f.UndLapl[i] = 0
	}
	for _, e := range geo.Edges {
		i, j := e[0], e[1]
		if skipPeriodicNeighbor(geo, i, j) {
			continue
		}
		for v := 0; v < nVar; v++ {
			diff := f.Sol[j*nVar+v] - f.Sol[i*nVar+v]
			if i < geo.NPointDomain {
				f.UndLapl[i*nVar+v] += diff
			}
			if j < geo.NPointDomain {
				f.UndLapl[j*nVar+v] -= diff
			}
		}
	}
	if geo.NPeriodicMarkers > 0 {
		b.Periodic.Initiate(types.PeriodicLaplacian)
		b.Periodic.Complete(types.PeriodicLaplacian)
	}
	b.Halo.Initiate(types.UndividedLaplacian)
	b.Halo.Complete(types.UndividedLaplacian)
}

// ComputePressureSensor accumulates the switch sensor numerator and
// denominator per point, folds them across periodic seams, then forms the
// ratio and refreshes halos.
func (b *Base) ComputePressureSensor(pressure func(iPoint int) float64) {
	var (
		f   = b.F
		geo = b.Geo
	)
	for i := 0; i < f.NPoint; i++ {
		f.SensNum[i] = 0
		f.SensDenom[i] = 0
	}
	for _, e := range geo.Edges {
		i, j := e[0], e[1]
		if skipPeriodicNeighbor(geo, i, j) {
			continue
		}
		pi, pj := pressure(i), pressure(j)
		if i < geo.NPointDomain {
			f.SensNum[i] += pj - pi
			f.SensDenom[i] += pj + pi
		}
		if j < geo.NPointDomain {
			f.SensNum[j] += pi - pj
			f.SensDenom[j] += pi + pj
		}
	}
	if geo.NPeriodicMarkers > 0 {
		b.Periodic.Initiate(types.PeriodicSensor)
		b.Periodic.Complete(types.PeriodicSensor)
	}
	for i := 0; i < geo.NPointDomain; i++ {
		denom := f.SensDenom[i]
		if denom == 0 {
			f.Sensor[i] = 0
			continue
		}
		s := f.SensNum[i] / denom
		if s < 0 {
			s = -s
		}
		f.Sensor[i] = s
	}
	b.Halo.Initiate(types.PressureSensor)
	b.Halo.Complete(types.PressureSensor)
}

// ComputeMaxEigenvalue accumulates the convective spectral radius per point
// and folds it across periodic seams.
func (b *Base) ComputeMaxEigenvalue() {
	var (
		f   = b.F
		geo = b.Geo
	)
	for i := 0; i < f.NPoint; i++ {
		f.MaxEig[i] = 0
	}
	for _, e := range geo.Edges {
		i, j := e[0], e[1]
		if skipPeriodicNeighbor(geo, i, j) {
			continue
		}
		var area float64
		for d := 0; d < geo.NDim; d++ {
			dx := geo.Coord(j, d) - geo.Coord(i, d)
			area += dx * dx
		}
		lambda := b.Wave * area
		if i < geo.NPointDomain {
			f.MaxEig[i] += lambda
		}
		if j < geo.NPointDomain {
			f.MaxEig[j] += lambda
		}
	}
	if geo.NPeriodicMarkers > 0 {
		b.Periodic.Initiate(types.PeriodicMaxEig)
		b.Periodic.Complete(types.PeriodicMaxEig)
	}
	b.Halo.Initiate(types.MaxEigenvalue)
	b.Halo.Complete(types.MaxEigenvalue)
}
