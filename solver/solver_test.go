package solver

import (
	"path/filepath"
	"testing"

	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/restart"
	"github.com/notargets/mzflow/types"
	"github.com/stretchr/testify/assert"
)

func testZone(overrides ...func(*config.Zone)) *config.Zone {
	z := &config.Zone{Solver: "EULER"}
	for _, fn := range overrides {
		fn(z)
	}
	z.Finalize()
	return z
}

func boxBase(nVar, nPrim int, z *config.Zone) *Base {
	g := geometry.NewBoxMesh(5, 5).Partition(1)[0]
	return NewBase(types.FlowSlot, z, g, comms.NewGroup(1)[0], nVar, nPrim)
}

// setLinearField fills the solution with u_v = (v+2)*x + (v+3)*y.
func setLinearField(b *Base) {
	var (
		f    = b.F
		nVar = f.NVar
	)
	for i := 0; i < f.NPoint; i++ {
		x, y := b.Geo.Coord(i, 0), b.Geo.Coord(i, 1)
		for v := 0; v < nVar; v++ {
			f.Sol[i*nVar+v] = float64(v+2)*x + float64(v+3)*y
		}
	}
}

func TestGradients(t *testing.T) {
	const (
		nVar  = 2
		nPrim = 4
	)
	{ // Test Green-Gauss is exact for linear fields at interior points
		b := boxBase(nVar, nPrim, testZone())
		setLinearField(b)
		b.ComputeGradientsGG()
		for i := 0; i < b.Geo.NPointDomain; i++ {
			if len(b.Geo.Neighbors[i]) != 4 {
				continue // boundary closure is one-sided
			}
			for v := 0; v < nVar; v++ {
				assert.InDelta(t, float64(v+2), b.F.GradAt(i, v, 0), 1.e-12)
				assert.InDelta(t, float64(v+3), b.F.GradAt(i, v, 1), 1.e-12)
			}
		}
	}
	{ // Test weighted least squares is exact for linear fields everywhere
		b := boxBase(nVar, nPrim, testZone())
		setLinearField(b)
		b.ComputeGradientsLS(true)
		for i := 0; i < b.Geo.NPointDomain; i++ {
			for v := 0; v < nVar; v++ {
				assert.InDelta(t, float64(v+2), b.F.GradAt(i, v, 0), 1.e-10)
				assert.InDelta(t, float64(v+3), b.F.GradAt(i, v, 1), 1.e-10)
			}
		}
	}
	{ // Test unweighted least squares agrees on linear fields
		b := boxBase(nVar, nPrim, testZone())
		setLinearField(b)
		b.ComputeGradientsLS(false)
		for i := 0; i < b.Geo.NPointDomain; i++ {
			assert.InDelta(t, 2, b.F.GradAt(i, 0, 0), 1.e-10)
		}
	}
	{ // Test the dispatch honors the configured method
		b := boxBase(nVar, nPrim, testZone(func(z *config.Zone) {
			z.Gradient = "WEIGHTED_LEAST_SQUARES"
		}))
		setLinearField(b)
		b.ComputeGradients()
		assert.InDelta(t, 2, b.F.GradAt(6, 0, 0), 1.e-10)
	}
	{ // Test undivided Laplacian vanishes on linear interior data
		b := boxBase(nVar, nPrim, testZone())
		setLinearField(b)
		b.ComputeUndividedLaplacian()
		for i := 0; i < b.Geo.NPointDomain; i++ {
			if len(b.Geo.Neighbors[i]) != 4 {
				continue
			}
			for v := 0; v < nVar; v++ {
				assert.InDelta(t, 0, b.F.UndLapl[i*nVar+v], 1.e-12)
			}
		}
	}
}

func TestLimiters(t *testing.T) {
	const (
		nVar  = 2
		nPrim = 4
	)
	{ // Test NoLimiter sets every coefficient to one
		b := boxBase(nVar, nPrim, testZone())
		b.ComputeLimiters()
		for _, phi := range b.F.Limiter {
			assert.Equal(t, 1., phi)
		}
	}
	{ // Test Barth-Jespersen coefficients stay in [0, 1] and pass smooth data
		b := boxBase(nVar, nPrim, testZone(func(z *config.Zone) {
			z.Limiter = "BARTH_JESPERSEN"
		}))
		setLinearField(b)
		b.ComputeGradientsLS(true)
		b.ComputeLimiters()
		for i := 0; i < b.Geo.NPointDomain; i++ {
			for v := 0; v < nVar; v++ {
				phi := b.F.Limiter[i*nVar+v]
				assert.True(t, phi >= 0 && phi <= 1)
				if len(b.Geo.Neighbors[i]) == 4 {
					// Linear data is representable: no limiting inside
					assert.InDelta(t, 1, phi, 1.e-10)
				}
			}
		}
	}
	{ // Test Venkatakrishnan clips at a discontinuity
		b := boxBase(nVar, nPrim, testZone(func(z *config.Zone) {
			z.Limiter = "VENKATAKRISHNAN"
		}))
		f := b.F
		for i := 0; i < f.NPoint; i++ {
			v := 0.
			if b.Geo.Coord(i, 0) >= 2 {
				v = 100
			}
			for k := 0; k < nVar; k++ {
				f.Sol[i*nVar+k] = v
			}
		}
		b.ComputeGradientsLS(true)
		b.ComputeLimiters()
		clipped := false
		for i := 0; i < b.Geo.NPointDomain; i++ {
			phi := f.Limiter[i*nVar]
			assert.True(t, phi >= 0 && phi <= 1.0+1.e-12)
			if phi < 0.9 {
				clipped = true
			}
		}
		assert.True(t, clipped)
	}
}

func TestResidualNorms(t *testing.T) {
	const (
		nVar  = 2
		nPrim = 4
	)
	{ // Test RMS reduction and convergence verdict
		b := boxBase(nVar, nPrim, testZone(func(z *config.Zone) { z.ConvTol = -3 }))
		for i := range b.F.Residual {
			b.F.Residual[i] = 1.e-5
		}
		b.SetResidualNorms()
		assert.InDelta(t, 1.e-5, b.ResidualRMS(0), 1.e-18)
		assert.Equal(t, b.ResInit[0], b.ResNorm[0])
		assert.True(t, b.Converged()) // log10(1e-5) < -3
	}
	{ // Test non-converged verdict above the threshold
		b := boxBase(nVar, nPrim, testZone(func(z *config.Zone) { z.ConvTol = -8 }))
		for i := range b.F.Residual {
			b.F.Residual[i] = 1.e-5
		}
		b.SetResidualNorms()
		assert.False(t, b.Converged())
	}
	{ // Test divergence aborts
		b := boxBase(nVar, nPrim, testZone())
		for i := range b.F.Residual {
			b.F.Residual[i] = 1.e12
		}
		assert.Panics(t, func() { b.SetResidualNorms() })
	}
	{ // Test log residual floor for a zeroed residual
		assert.Equal(t, -20., LogResidual(0))
		assert.InDelta(t, -6, LogResidual(1.e-6), 1.e-12)
	}
}

func TestAdaptCFL(t *testing.T) {
	pump := func(b *Base, rms float64) {
		for i := range b.F.Residual {
			b.F.Residual[i] = rms
		}
		b.SetResidualNorms()
		b.AdaptCFL()
	}
	{ // Test CFL grows on falling residuals, shrinks on rising ones
		b := boxBase(2, 4, testZone(func(z *config.Zone) {
			z.CFLAdapt = true
			z.CFL = 1.0
		}))
		pump(b, 1.e-2) // first sample only seeds the history
		assert.Equal(t, 1.0, b.Cfg.CFL)
		pump(b, 1.e-3)
		assert.InDelta(t, 1.1, b.Cfg.CFL, 1.e-12)
		pump(b, 1.e-1)
		assert.InDelta(t, 0.55, b.Cfg.CFL, 1.e-12)
	}
	{ // Test clamping to the configured bounds
		b := boxBase(2, 4, testZone(func(z *config.Zone) {
			z.CFLAdapt = true
			z.CFL = 0.15
			z.CFLMin = 0.1
			z.CFLMax = 0.2
		}))
		pump(b, 1.e-2)
		for k := 0; k < 10; k++ {
			pump(b, 1.e-3) // falling: grows, capped at CFLMax
		}
		assert.Equal(t, 0.2, b.Cfg.CFL)
	}
	{ // Test adaptation disabled leaves CFL alone
		b := boxBase(2, 4, testZone(func(z *config.Zone) { z.CFL = 3 }))
		pump(b, 1.e-2)
		pump(b, 1.e-3)
		assert.Equal(t, 3., b.Cfg.CFL)
	}
}

func TestFlow(t *testing.T) {
	newFlow := func(z *config.Zone) *Flow {
		g := geometry.NewBoxMesh(4, 4).Partition(1)[0]
		return NewFlow(z, g, comms.NewGroup(1)[0])
	}
	{ // Test freestream initialization and the perfect-gas pressure
		s := newFlow(testZone())
		s.SetInitialCondition()
		assert.Equal(t, 4, s.NVar()) // nDim+2
		assert.Equal(t, 1., s.F.Sol[0])
		// p = 0.4*(2.5 - (0.25+0.25)/2) = 0.9
		assert.InDelta(t, 0.9, s.Pressure(0), 1.e-12)
	}
	{ // Test restart initialization through a written file
		dir := t.TempDir()
		fn := filepath.Join(dir, "restart.csv")
		g := geometry.NewBoxMesh(4, 4).Partition(1)[0]
		rec := &restart.Record{
			Fields: []string{"x", "y", "c0", "c1", "c2", "c3"},
		}
		for p := 0; p < 16; p++ {
			rec.Data = append(rec.Data, 0, 0,
				float64(p), float64(p)+0.1, float64(p)+0.2, float64(p)+0.3)
		}
		assert.NoError(t, restart.Write(fn, rec, false))
		z := testZone(func(z *config.Zone) {
			z.Restart = true
			z.RestartFile = fn
		})
		s := NewFlow(z, g, comms.NewGroup(1)[0])
		s.SetInitialCondition()
		for i := 0; i < g.NPointDomain; i++ {
			assert.InDelta(t, float64(g.GlobalIndex[i]), s.F.Sol[i*4], 1.e-12)
		}
	}
	{ // Test centered scheme preprocess fills sensor support
		s := newFlow(testZone()) // default JST is centered
		s.SetInitialCondition()
		s.Preprocess(0)
		for i := 0; i < s.Geo.NPointDomain; i++ {
			assert.True(t, s.F.MaxEig[i] > 0)
			assert.Equal(t, 0., s.F.Sensor[i]) // uniform flow, no switch
		}
	}
	{ // Test time step scales with CFL over spectral radius
		s := newFlow(testZone(func(z *config.Zone) { z.CFL = 2 }))
		s.SetInitialCondition()
		s.ComputeMaxEigenvalue()
		s.SetTimeStep()
		for i := 0; i < s.Geo.NPointDomain; i++ {
			assert.InDelta(t, 2*s.F.Vol[i]/s.F.MaxEig[i], s.F.TimeStep[i], 1.e-10)
		}
	}
}
