package iteration

import (
	"testing"

	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/solver"
	"github.com/notargets/mzflow/types"
	"github.com/stretchr/testify/assert"
)

func zone(name string, overrides ...func(*config.Zone)) *config.Zone {
	z := &config.Zone{Solver: name}
	for _, fn := range overrides {
		fn(z)
	}
	z.Finalize()
	return z
}

// countStep is an integrator stub counting its invocations.
type countStep struct{ n int }

func (c *countStep) Step(iter int) { c.n++ }

// scripted is an iteration stub recording the protocol calls.
type scripted struct {
	pre, it, upd, post int
	ok                 bool
}

func (s *scripted) Preprocess(iter int) { s.pre++ }
func (s *scripted) Iterate(iter int)    { s.it++ }
func (s *scripted) Update(iter int)     { s.upd++ }
func (s *scripted) Postprocess(iter int) bool {
	s.post++
	return s.ok
}

func TestFluid(t *testing.T) {
	{ // Test the flow and lagged turbulence integrators run InnerIter times
		var (
			flow = &countStep{}
			turb = &countStep{}
			z    = zone("RANS", func(z *config.Zone) { z.InnerIter = 3 })
		)
		it := NewFluid(z, flow, turb, &solver.Container{})
		it.Iterate(0)
		assert.Equal(t, 3, flow.n)
		assert.Equal(t, 3, turb.n)
	}
	{ // Test a zone without turbulence closure
		flow := &countStep{}
		it := NewFluid(zone("EULER"), flow, nil, &solver.Container{})
		it.Iterate(0)
		assert.Equal(t, 1, flow.n)
	}
	{ // Test update and convergence delegate to the occupied slots
		var (
			z = zone("EULER")
			g = geometry.NewBoxMesh(4, 4).Partition(1)[0]
			s = solver.NewFlow(z, g, comms.NewGroup(1)[0])
			c = &solver.Container{}
		)
		c[types.FlowSlot] = s
		it := NewFluid(z, &countStep{}, nil, c)
		assert.False(t, it.Postprocess(0)) // no norms set yet
		s.SetInitialCondition()
		s.SetResidualNorms() // zero residual: converged
		assert.True(t, it.Postprocess(0))
		s.F.Sol[0] = 42
		it.Update(0)
		assert.Equal(t, 42., s.F.TimeN[0])
	}
}

func TestTurbo(t *testing.T) {
	{ // Test the ramp laws re-evaluate before every outer iteration
		z := zone("RANS", func(z *config.Zone) {
			z.Turbo.Enabled = true
			z.Turbo.RotationRamp = config.RampSpec{
				Enabled: true, Initial: 100, Final: 500, FinalIter: 10,
			}
			z.Turbo.OutletRamp = config.RampSpec{
				Enabled: true, Initial: 1, Final: 2, FinalIter: 4,
			}
		})
		it := NewTurbo(NewFluid(z, &countStep{}, nil, &solver.Container{}))
		it.Preprocess(0)
		assert.Equal(t, 100., it.RotationRate)
		assert.Equal(t, 1., it.OutletValue)
		it.Preprocess(5)
		assert.Equal(t, 300., it.RotationRate)
		assert.Equal(t, 2., it.OutletValue) // outlet ramp already finished
		it.Preprocess(50)
		assert.Equal(t, 500., it.RotationRate)
	}
}

func TestFEA(t *testing.T) {
	var (
		z  = zone("ELASTICITY", func(z *config.Zone) { z.InnerIter = 2 })
		g  = geometry.NewBoxMesh(3, 3).Partition(1)[0]
		st = solver.NewStructural(z, g, comms.NewGroup(1)[0])
	)
	{ // Test displacement prediction extrapolates the time history
		for i := range st.F.TimeN {
			st.F.TimeN[i] = 2
			st.F.TimeN1[i] = 0.5
		}
		it := NewFEA(z, &countStep{}, st)
		it.Preprocess(0)
		for i := 0; i < g.NPointDomain*st.NVar(); i++ {
			assert.Equal(t, 3.5, st.F.SolPred[i])
		}
	}
	{ // Test the inner loop honors the configured count
		integ := &countStep{}
		it := NewFEA(z, integ, st)
		it.Iterate(0)
		assert.Equal(t, 2, integ.n)
	}
}

func TestHarmonicBalance(t *testing.T) {
	{ // Test all instances advance in lockstep, then the operator applies
		var (
			a, b    = &scripted{ok: true}, &scripted{ok: true}
			applied = 0
			hb      = NewHarmonicBalance(zone("EULER"), []Iteration{a, b})
		)
		hb.ApplyOperator = func() { applied++ }
		hb.Preprocess(0)
		hb.Iterate(0)
		hb.Update(0)
		for _, s := range []*scripted{a, b} {
			assert.Equal(t, 1, s.pre)
			assert.Equal(t, 1, s.it)
			assert.Equal(t, 1, s.upd)
		}
		assert.Equal(t, 1, applied)
		assert.True(t, hb.Postprocess(0))
		b.ok = false
		assert.False(t, hb.Postprocess(0))
	}
	{ // Test iterating before the operator is installed
		hb := NewHarmonicBalance(zone("EULER"), []Iteration{&scripted{}})
		assert.NotPanics(t, func() { hb.Iterate(0) })
	}
}

func TestDiscAdj(t *testing.T) {
	var (
		z      = zone("EULER")
		g      = geometry.NewBoxMesh(3, 3).Partition(1)[0]
		comm   = comms.NewGroup(1)[0]
		direct = solver.NewFlow(z, g, comm)
		adj    = solver.NewDiscAdjoint(types.AdjFlowSlot, z, g, comm, direct)
	)
	{ // Test the fixed-point residual measures the latest sweep update
		adj.SetInitialCondition()
		sweeps := 0
		it := NewDiscAdj(z, adj, func() {
			sweeps++
			for i := range adj.F.Sol {
				adj.F.Sol[i] = 2
			}
		})
		it.Iterate(0)
		assert.Equal(t, 1, sweeps)
		for i := 0; i < g.NPointDomain*adj.NVar(); i++ {
			assert.Equal(t, 2., adj.F.Residual[i])
		}
		it.Iterate(1) // stationary now
		for i := 0; i < g.NPointDomain*adj.NVar(); i++ {
			assert.Equal(t, 0., adj.F.Residual[i])
		}
	}
	{ // Test an unbound reverse sweep aborts
		it := NewDiscAdj(z, adj, nil)
		assert.Panics(t, func() { it.Iterate(0) })
	}
}
