// Package iteration holds the per-zone outer-iteration strategies: the
// protocol every zone runs each outer step (preprocess, inner iterations,
// history update, convergence postprocess) specialized by physics.
package iteration

import (
	"fmt"

	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/integration"
	"github.com/notargets/mzflow/solver"
)

// Iteration is the strategy one zone instance runs each outer iteration.
type Iteration interface {
	Preprocess(iter int)
	Iterate(iter int)
	Update(iter int)
	// Postprocess reports whether the zone converged this outer iteration.
	Postprocess(iter int) bool
}

// Fluid is the mean-flow strategy: the flow integrator, then the
// turbulence integrator lagged one inner step behind, for the configured
// inner iteration count.
type Fluid struct {
	Cfg     *config.Zone
	Flow    integration.Integrator
	Turb    integration.Integrator
	Solvers *solver.Container
}

func NewFluid(cfg *config.Zone, flow, turb integration.Integrator,
	solvers *solver.Container) *Fluid {
	return &Fluid{Cfg: cfg, Flow: flow, Turb: turb, Solvers: solvers}
}

func (it *Fluid) Preprocess(iter int) {}

func (it *Fluid) Iterate(iter int) {
	for k := 0; k < it.Cfg.InnerIter; k++ {
		it.Flow.Step(iter)
		if it.Turb != nil {
			it.Turb.Step(iter)
		}
	}
}

func (it *Fluid) Update(iter int) {
	for _, s := range it.Solvers.Active() {
		s.Update()
	}
}

func (it *Fluid) Postprocess(iter int) bool {
	for _, s := range it.Solvers.Active() {
		if !s.Converged() {
			return false
		}
	}
	return true
}

// Turbo wraps the fluid strategy with the rotation and outlet-pressure
// ramps: each outer iteration re-evaluates both ramp laws before the flow
// iterates, so the machine spins up over FinalIter outer steps and runs at
// exactly the final value afterwards.
type Turbo struct {
	*Fluid
	// Current ramp values, exposed for the history output.
	RotationRate float64
	OutletValue  float64
}

func NewTurbo(fluid *Fluid) *Turbo { return &Turbo{Fluid: fluid} }

func (it *Turbo) Preprocess(iter int) {
	it.RotationRate = it.Cfg.Turbo.RotationRamp.Value(iter)
	it.OutletValue = it.Cfg.Turbo.OutletRamp.Value(iter)
	it.Fluid.Preprocess(iter)
}

// FEA is the structural strategy: displacement prediction, the structural
// integrator, then the predictor update for the next coupling round.
type FEA struct {
	Cfg        *config.Zone
	Structural integration.Integrator
	Solver     *solver.Structural
}

func NewFEA(cfg *config.Zone, integ integration.Integrator, s *solver.Structural) *FEA {
	return &FEA{Cfg: cfg, Structural: integ, Solver: s}
}

func (it *FEA) Preprocess(iter int) {
	it.Solver.PredictDisplacements()
}

func (it *FEA) Iterate(iter int) {
	for k := 0; k < it.Cfg.InnerIter; k++ {
		it.Structural.Step(iter)
	}
}

func (it *FEA) Update(iter int) {
	it.Solver.Update()
}

func (it *FEA) Postprocess(iter int) bool {
	return it.Solver.Converged()
}

// HarmonicBalance iterates all time instances of one zone in lockstep and
// couples them through the spectral operator source term after each pass.
type HarmonicBalance struct {
	Cfg       *config.Zone
	Instances []Iteration
	// ApplyOperator adds the spectral time-derivative source coupling the
	// instances; the driver installs it after building the operator.
	ApplyOperator func()
}

func NewHarmonicBalance(cfg *config.Zone, instances []Iteration) *HarmonicBalance {
	return &HarmonicBalance{Cfg: cfg, Instances: instances}
}

func (it *HarmonicBalance) Preprocess(iter int) {
	for _, inst := range it.Instances {
		inst.Preprocess(iter)
	}
}

func (it *HarmonicBalance) Iterate(iter int) {
	for _, inst := range it.Instances {
		inst.Iterate(iter)
	}
	if it.ApplyOperator != nil {
		it.ApplyOperator()
	}
}

func (it *HarmonicBalance) Update(iter int) {
	for _, inst := range it.Instances {
		inst.Update(iter)
	}
}

func (it *HarmonicBalance) Postprocess(iter int) bool {
	for _, inst := range it.Instances {
		if !inst.Postprocess(iter) {
			return false
		}
	}
	return true
}

// DiscAdj drives the adjoint fixed point of one zone: each outer iteration
// re-seeds from the recorded tape and sweeps, for the configured count per
// recording kind.
type DiscAdj struct {
	Cfg    *config.Zone
	Solver *solver.DiscAdjoint
	// Sweep performs one seeded reverse sweep; the driver binds it to the
	// recording state machine.
	Sweep func()
	nDone int
}

func NewDiscAdj(cfg *config.Zone, s *solver.DiscAdjoint, sweep func()) *DiscAdj {
	return &DiscAdj{Cfg: cfg, Solver: s, Sweep: sweep}
}

func (it *DiscAdj) Preprocess(iter int) {}

func (it *DiscAdj) Iterate(iter int) {
	if it.Sweep == nil {
		panic(fmt.Errorf("DiscAdj: no reverse sweep bound for zone [%s]",
			it.Cfg.SolverKind.Print()))
	}
	it.Sweep()
	it.Solver.Iterate()
	it.nDone++
}

func (it *DiscAdj) Update(iter int) {
	it.Solver.Update()
}

func (it *DiscAdj) Postprocess(iter int) bool {
	return it.Solver.Converged()
}
