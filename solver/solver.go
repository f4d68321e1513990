// Package solver implements the per-(zone, instance, grid level, equation
// system) solution owners: residual assembly, gradient and limiter kernels,
// time-step computation, implicit relaxation, and participation in the halo
// and periodic communication protocols.
package solver

import (
	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/numerics"
	"github.com/notargets/mzflow/types"
)

// Solver is the behavior the integration and iteration layers drive. Every
// concrete solver embeds *Base, which supplies most of it.
type Solver interface {
	Slot() types.SolverSlot
	NVar() int
	Fields() *comms.Fields
	Geometry() *geometry.Geometry

	// Preprocess refreshes gradients, limiters and scheme support
	// quantities for the current state, including all halo and periodic
	// rounds they require.
	Preprocess(iter int)

	// AssembleResidual evaluates the configured terms over the owned
	// edge range of the worker context.
	AssembleResidual(reg *numerics.Registry, level int, ctx *numerics.WorkerContext)

	SetTimeStep()
	Iterate()
	Update()
	SetResidualNorms()
	ResidualRMS(iVar int) float64
	Converged() bool

	SetInitialCondition()
	InitiateComms(kind types.QuantityKind)
	CompleteComms(kind types.QuantityKind)
}

// Container is the fixed-size equation-system slot array of one grid level.
type Container [types.MaxSolverSlots]Solver

// Active returns the occupied slots in slot order.
func (c *Container) Active() (active []Solver) {
	for _, s := range c {
		if s != nil {
			active = append(active, s)
		}
	}
	return
}

// DOFCount sums degrees of freedom per point across occupied slots.
func (c *Container) DOFCount() (n int) {
	for _, s := range c {
		if s != nil {
			n += s.NVar()
		}
	}
	return
}
