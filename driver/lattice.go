// Package driver owns the top-level orchestration: per-rank construction of
// the zone/instance/level container lattice, the outer iteration loops of
// the problem variants, and the strictly reversed teardown.
package driver

import (
	"fmt"

	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/integration"
	"github.com/notargets/mzflow/iteration"
	"github.com/notargets/mzflow/numerics"
	"github.com/notargets/mzflow/solver"
)

// Phase labels one stage of the construction protocol. Construction runs
// the phases in declaration order; teardown releases them in exact reverse.
type Phase uint8

const (
	InputPhase Phase = iota
	OutputPhase
	GeometricalPhase
	SolverPhase
	NumericsPhase
	IntegrationPhase
	IterationPhase
	DynamicMeshPhase
	StaticMeshPhase
	InterfacePhase
	RestartPhase
	TurboPhase
	NPhases
)

var phaseNames = [NPhases]string{
	"Input", "Output", "Geometrical", "Solver", "Numerics", "Integration",
	"Iteration", "DynamicMesh", "StaticMesh", "Interface", "Restart",
	"Turbomachinery",
}

func (p Phase) Print() string {
	if p < NPhases {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", p)
}

// instKey addresses one (zone, time instance) pair.
type instKey struct{ Zone, Inst int }

// levelKey addresses one (zone, time instance, grid level) triple.
type levelKey struct{ Zone, Inst, Level int }

// Lattice is the container arena of one rank: every geometry, solver
// container, numerics registry, integrator and iteration strategy the
// driver builds, addressable by its lattice coordinates, with an
// allocation ledger that teardown must balance exactly.
type Lattice struct {
	Geos        map[levelKey]*geometry.Geometry
	Solvers     map[levelKey]*solver.Container
	Numerics    map[instKey]*numerics.Registry
	Integrators map[instKey]integration.Integrator
	Iterations  map[instKey]iteration.Iteration

	nAlloc, nFree map[Phase]int
	built         []Phase // phases completed, in construction order
}

func NewLattice() *Lattice {
	return &Lattice{
		Geos:        make(map[levelKey]*geometry.Geometry),
		Solvers:     make(map[levelKey]*solver.Container),
		Numerics:    make(map[instKey]*numerics.Registry),
		Integrators: make(map[instKey]integration.Integrator),
		Iterations:  make(map[instKey]iteration.Iteration),
		nAlloc:      make(map[Phase]int),
		nFree:       make(map[Phase]int),
	}
}

func (l *Lattice) record(p Phase, n int)  { l.nAlloc[p] += n }
func (l *Lattice) release(p Phase, n int) { l.nFree[p] += n }

// BeginPhase appends the phase to the construction ledger, enforcing the
// protocol order.
func (l *Lattice) BeginPhase(p Phase) {
	if n := len(l.built); n > 0 && l.built[n-1] >= p {
		panic(fmt.Errorf("driver: phase %s constructed after %s",
			p.Print(), l.built[n-1].Print()))
	}
	l.built = append(l.built, p)
}

// BuiltPhases returns the completed construction phases in order.
func (l *Lattice) BuiltPhases() []Phase { return l.built }

// Balanced reports whether every allocation has been released, per phase.
func (l *Lattice) Balanced() bool {
	for p, n := range l.nAlloc {
		if l.nFree[p] != n {
			return false
		}
	}
	return true
}

// Imbalance describes the first unbalanced phase for diagnostics.
func (l *Lattice) Imbalance() string {
	for p := Phase(0); p < NPhases; p++ {
		if l.nAlloc[p] != l.nFree[p] {
			return fmt.Sprintf("%s: %d allocated, %d freed",
				p.Print(), l.nAlloc[p], l.nFree[p])
		}
	}
	return ""
}

func (l *Lattice) SetGeometry(zone, inst, level int, g *geometry.Geometry) {
	l.Geos[levelKey{zone, inst, level}] = g
	l.record(GeometricalPhase, 1)
}

func (l *Lattice) Geometry(zone, inst, level int) *geometry.Geometry {
	return l.Geos[levelKey{zone, inst, level}]
}

// NLevels is the effective grid level count of a zone instance, derived
// from what geometry construction actually delivered rather than the
// configured depth.
func (l *Lattice) NLevels(zone, inst int) (n int) {
	for l.Geometry(zone, inst, n) != nil {
		n++
	}
	return
}

func (l *Lattice) SetSolvers(zone, inst, level int, c *solver.Container) {
	l.Solvers[levelKey{zone, inst, level}] = c
	l.record(SolverPhase, len(c.Active()))
}

func (l *Lattice) SolverContainer(zone, inst, level int) *solver.Container {
	return l.Solvers[levelKey{zone, inst, level}]
}

func (l *Lattice) SetNumerics(zone, inst int, r *numerics.Registry) {
	l.Numerics[instKey{zone, inst}] = r
	l.record(NumericsPhase, r.NRegistered())
}

func (l *Lattice) SetIntegrator(zone, inst int, ig integration.Integrator) {
	l.Integrators[instKey{zone, inst}] = ig
	l.record(IntegrationPhase, 1)
}

func (l *Lattice) SetIteration(zone, inst int, it iteration.Iteration) {
	l.Iterations[instKey{zone, inst}] = it
	l.record(IterationPhase, 1)
}

// Teardown releases the lattice in reverse phase order and balances the
// ledger. The release order mirrors construction exactly: iteration
// strategies first, geometry last.
func (l *Lattice) Teardown() {
	for i := len(l.built) - 1; i >= 0; i-- {
		switch l.built[i] {
		case IterationPhase:
			l.release(IterationPhase, len(l.Iterations))
			l.Iterations = make(map[instKey]iteration.Iteration)
		case IntegrationPhase:
			l.release(IntegrationPhase, len(l.Integrators))
			l.Integrators = make(map[instKey]integration.Integrator)
		case NumericsPhase:
			for key, r := range l.Numerics {
				l.release(NumericsPhase, r.NRegistered())
				r.Clear()
				delete(l.Numerics, key)
			}
		case SolverPhase:
			for key, c := range l.Solvers {
				l.release(SolverPhase, len(c.Active()))
				delete(l.Solvers, key)
			}
		case GeometricalPhase:
			l.release(GeometricalPhase, len(l.Geos))
			l.Geos = make(map[levelKey]*geometry.Geometry)
		}
	}
	l.built = l.built[:0]
}
