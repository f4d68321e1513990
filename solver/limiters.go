package solver

import (
	"math"

	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/types"
)

// ComputeLimiters runs the two-phase slope limiter: per-point solution
// min/max bounds over the edge neighborhood (with a periodic min/max
// round), then the limiter value per point (with a periodic min round so
// both faces of a seam agree on the most restrictive value), then a halo
// refresh.
func (b *Base) ComputeLimiters() {
	if b.Cfg.LimiterKind == config.NoLimiter {
		for i := range b.F.Limiter {
			b.F.Limiter[i] = 1
		}
		return
	}
	b.computeSolutionBounds()
	b.computeLimiterValues()
}

func (b *Base) computeSolutionBounds() {
	var (
		f    = b.F
		geo  = b.Geo
		nVar = f.NVar
	)
	for i := 0; i < f.NPoint; i++ {
		for v := 0; v < nVar; v++ {
			f.SolMin[i*nVar+v] = f.Sol[i*nVar+v]
			f.SolMax[i*nVar+v] = f.Sol[i*nVar+v]
		}
	}
	for _, e := range geo.Edges {
		i, j := e[0], e[1]
		if skipPeriodicNeighbor(geo, i, j) {
			continue
		}
		for v := 0; v < nVar; v++ {
			si, sj := f.Sol[i*nVar+v], f.Sol[j*nVar+v]
			if sj < f.SolMin[i*nVar+v] {
				f.SolMin[i*nVar+v] = sj
			}
			if sj > f.SolMax[i*nVar+v] {
				f.SolMax[i*nVar+v] = sj
			}
			if si < f.SolMin[j*nVar+v] {
				f.SolMin[j*nVar+v] = si
			}
			if si > f.SolMax[j*nVar+v] {
				f.SolMax[j*nVar+v] = si
			}
		}
	}
	if geo.NPeriodicMarkers > 0 {
		b.Periodic.Initiate(types.PeriodicLimSolMinMax)
		b.Periodic.Complete(types.PeriodicLimSolMinMax)
	}
}

func (b *Base) computeLimiterValues() {
	var (
		f     = b.F
		geo   = b.Geo
		nVar  = f.NVar
		nDim  = geo.NDim
		kappa = b.Cfg.VenkatKappa
		venk  = b.Cfg.LimiterKind == config.Venkatakrishnan
	)
	for i := range f.Limiter {
		f.Limiter[i] = 1
	}
	for _, e := range geo.Edges {
		i, j := e[0], e[1]
		for v := 0; v < nVar; v++ {
			b.limitEndpoint(i, j, v, nDim, kappa, venk)
			b.limitEndpoint(j, i, v, nDim, kappa, venk)
		}
	}
	if geo.NPeriodicMarkers > 0 {
		b.Periodic.Initiate(types.PeriodicLimSolValue)
		b.Periodic.Complete(types.PeriodicLimSolValue)
	}
	b.Halo.Initiate(types.SolutionLimiter)
	b.Halo.Complete(types.SolutionLimiter)
}

// limitEndpoint updates the limiter of iPoint for the face toward jPoint.
func (b *Base) limitEndpoint(iPoint, jPoint, iVar, nDim int, kappa float64, venk bool) {
	var (
		f    = b.F
		geo  = b.Geo
		nVar = f.NVar
	)
	if iPoint >= geo.NPointDomain {
		return
	}
	var proj float64
	for d := 0; d < nDim; d++ {
		dx := 0.5 * (geo.Coord(jPoint, d) - geo.Coord(iPoint, d))
		proj += dx * f.Grad[(iPoint*nVar+iVar)*nDim+d]
	}
	if proj == 0 {
		return
	}
	var (
		idx  = iPoint*nVar + iVar
		dMax = f.SolMax[idx] - f.Sol[idx]
		dMin = f.SolMin[idx] - f.Sol[idx]
		du   float64
	)
	if proj > 0 {
		du = dMax
	} else {
		du = dMin
	}
	var phi float64
	if venk {
		// Venkatakrishnan's smooth limiter with eps^2 scaled by the local
		// control volume.
		eps2 := math.Pow(kappa, 3) * f.Vol[iPoint]
		y := du / proj
		phi = (y*y + 2*y + eps2) / (y*y + y + 2 + eps2)
	} else {
		phi = du / proj
		if phi > 1 {
			phi = 1
		}
	}
	if phi < f.Limiter[idx] {
		f.Limiter[idx] = phi
	}
}
