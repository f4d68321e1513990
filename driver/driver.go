package driver

import (
	"fmt"

	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/integration"
	"github.com/notargets/mzflow/iteration"
	"github.com/notargets/mzflow/numerics"
	"github.com/notargets/mzflow/output"
	"github.com/notargets/mzflow/solver"
	"github.com/notargets/mzflow/transfer"
	"github.com/notargets/mzflow/types"
)

// Driver is one rank's view of the whole multizone problem: the container
// lattice, the per-zone iteration strategies, the interface matrix, and
// the outer loop. Variants embed it and override the loop body.
type Driver struct {
	Cfg  *config.Driver
	Rank int
	Comm *comms.Communicator
	Lat  *Lattice

	// Hierarchies[iZone] is the partitioned level stack of the zone's mesh,
	// shared read-only by all ranks.
	Hierarchies []*geometry.Hierarchy

	Histories []*output.History
	Matrix    [][]types.InterfaceKind
	Ifaces    []*transfer.Interface

	CurrentIter int
	stopFile    bool
}

func New(cfg *config.Driver, hierarchies []*geometry.Hierarchy,
	comm *comms.Communicator) *Driver {
	return &Driver{
		Cfg:         cfg,
		Rank:        comm.Rank(),
		Comm:        comm,
		Lat:         NewLattice(),
		Hierarchies: hierarchies,
	}
}

// Setup runs the construction protocol. The phase order is fixed; the
// lattice ledger records it and teardown replays it in reverse.
func (d *Driver) Setup() (err error) {
	d.Lat.BeginPhase(InputPhase)
	d.Lat.record(InputPhase, d.Cfg.NZones())

	d.Lat.BeginPhase(OutputPhase)
	for iZone, z := range d.Cfg.Zones {
		d.Histories = append(d.Histories, output.NewHistory(d.Rank, iZone, z))
	}
	d.Lat.record(OutputPhase, len(d.Histories))

	d.Lat.BeginPhase(GeometricalPhase)
	for iZone, z := range d.Cfg.Zones {
		h := d.Hierarchies[iZone]
		for inst := 0; inst < z.NInstances(); inst++ {
			for lvl := 0; lvl < h.NLevels(); lvl++ {
				d.Lat.SetGeometry(iZone, inst, lvl, h.Levels[lvl][d.Rank])
			}
		}
	}

	d.Lat.BeginPhase(SolverPhase)
	for iZone, z := range d.Cfg.Zones {
		for inst := 0; inst < z.NInstances(); inst++ {
			nLvl := d.Lat.NLevels(iZone, inst)
			for lvl := 0; lvl < nLvl; lvl++ {
				c, buildErr := d.buildSolvers(z, d.Lat.Geometry(iZone, inst, lvl))
				if buildErr != nil {
					return buildErr
				}
				d.Lat.SetSolvers(iZone, inst, lvl, c)
			}
		}
	}

	d.Lat.BeginPhase(NumericsPhase)
	for iZone, z := range d.Cfg.Zones {
		for inst := 0; inst < z.NInstances(); inst++ {
			d.Lat.SetNumerics(iZone, inst, d.buildNumerics(z, iZone, inst))
		}
	}

	d.Lat.BeginPhase(IntegrationPhase)
	for iZone, z := range d.Cfg.Zones {
		for inst := 0; inst < z.NInstances(); inst++ {
			d.Lat.SetIntegrator(iZone, inst, d.buildIntegrator(z, iZone, inst))
		}
	}

	d.Lat.BeginPhase(IterationPhase)
	for iZone, z := range d.Cfg.Zones {
		for inst := 0; inst < z.NInstances(); inst++ {
			d.Lat.SetIteration(iZone, inst, d.buildIteration(z, iZone, inst))
		}
	}

	d.Lat.BeginPhase(DynamicMeshPhase)
	for iZone, z := range d.Cfg.Zones {
		if !z.DeformingMesh {
			continue
		}
		for inst := 0; inst < z.NInstances(); inst++ {
			c := d.Lat.SolverContainer(iZone, inst, 0)
			if ms, ok := c[types.MeshSlot].(*solver.MeshDeform); ok && d.Cfg.TimeDomain {
				ms.Dt = d.Cfg.TimeStep
			}
		}
	}

	d.Lat.BeginPhase(StaticMeshPhase)
	for iZone, z := range d.Cfg.Zones {
		if z.RotatingFrame {
			d.setRotatingFrameVelocities(iZone, z)
		}
	}

	d.Lat.BeginPhase(InterfacePhase)
	if d.Matrix, d.Ifaces, err = transfer.Preprocess(d.Cfg, d.Comm, d.ownsMarkers); err != nil {
		return err
	}
	d.Lat.record(InterfacePhase, len(d.Ifaces))

	d.Lat.BeginPhase(RestartPhase)
	for iZone, z := range d.Cfg.Zones {
		for inst := 0; inst < z.NInstances(); inst++ {
			nLvl := d.Lat.NLevels(iZone, inst)
			for lvl := 0; lvl < nLvl; lvl++ {
				for _, s := range d.Lat.SolverContainer(iZone, inst, lvl).Active() {
					s.SetInitialCondition()
				}
			}
		}
	}

	d.Lat.BeginPhase(TurboPhase)
	for _, z := range d.Cfg.Zones {
		if z.Turbo.Enabled {
			d.Lat.record(TurboPhase, 1)
		}
	}

	if d.Rank == 0 {
		d.Cfg.Print()
	}
	return nil
}

// buildSolvers populates the slot container a zone's physics asks for.
func (d *Driver) buildSolvers(z *config.Zone, geo *geometry.Geometry) (*solver.Container, error) {
	c := &solver.Container{}
	kind := z.SolverKind
	direct := kind.DirectEquivalent()
	switch {
	case direct.IsFlow():
		flow := solver.NewFlow(z, geo, d.Comm)
		c[types.FlowSlot] = flow
		if direct == config.RANS && geo.MGLevel == 0 {
			c[types.TurbSlot] = solver.NewTurb(z, geo, d.Comm)
		}
		if kind.IsAdjoint() {
			c[types.AdjFlowSlot] = solver.NewDiscAdjoint(types.AdjFlowSlot, z, geo, d.Comm, flow)
			if c[types.TurbSlot] != nil {
				c[types.AdjTurbSlot] = solver.NewDiscAdjoint(types.AdjTurbSlot, z, geo, d.Comm,
					c[types.TurbSlot])
			}
		}
	case direct.IsStructural():
		st := solver.NewStructural(z, geo, d.Comm)
		c[types.StructuralSlot] = st
		if kind.IsAdjoint() {
			c[types.AdjFlowSlot] = solver.NewDiscAdjoint(types.AdjFlowSlot, z, geo, d.Comm, st)
		}
	case direct == config.HeatEquation:
		c[types.HeatSlot] = solver.NewFlow(z, geo, d.Comm) // scalar transport reuse
	default:
		return nil, fmt.Errorf("driver: no solver for kind [%s]", kind.Print())
	}
	if z.DeformingMesh && geo.MGLevel == 0 {
		c[types.MeshSlot] = solver.NewMeshDeform(z, geo, d.Comm)
	}
	return c, nil
}

// buildNumerics registers the flux evaluators each occupied slot needs on
// each level: one replica per worker.
func (d *Driver) buildNumerics(z *config.Zone, iZone, inst int) *numerics.Registry {
	nLvl := d.Lat.NLevels(iZone, inst)
	reg := numerics.NewRegistry(nLvl, d.Cfg.NThreads)
	for lvl := 0; lvl < nLvl; lvl++ {
		for _, s := range d.Lat.SolverContainer(iZone, inst, lvl).Active() {
			slot := s.Slot()
			if z.SchemeKind.IsCentered() {
				reg.Register(lvl, slot, numerics.ConvTerm, func() numerics.Numerics {
					return &numerics.ScalarCentered{Wave: 1, Eps: 0.5}
				})
			} else {
				reg.Register(lvl, slot, numerics.ConvTerm, func() numerics.Numerics {
					return &numerics.ScalarUpwind{Wave: 1}
				})
			}
			reg.Register(lvl, slot, numerics.SourceFirstTerm, func() numerics.Numerics {
				return numerics.NullSource{}
			})
		}
	}
	return reg
}

// buildIntegrator selects the space/time integration of one zone instance.
func (d *Driver) buildIntegrator(z *config.Zone, iZone, inst int) integration.Integrator {
	var (
		nLvl = d.Lat.NLevels(iZone, inst)
		reg  = d.Lat.Numerics[instKey{iZone, inst}]
	)
	switch {
	case z.SolverKind.IsStructural():
		c := d.Lat.SolverContainer(iZone, inst, 0)
		return integration.NewStructural(c[types.StructuralSlot], reg, d.Cfg.NThreads)
	case z.SolverKind.IsFEM():
		c := d.Lat.SolverContainer(iZone, inst, 0)
		return integration.NewFEMDG(c[types.FlowSlot], reg, d.Cfg.NThreads)
	case nLvl > 1:
		solvers := make([]solver.Solver, nLvl)
		parents := make([][]int, nLvl-1)
		for lvl := 0; lvl < nLvl; lvl++ {
			solvers[lvl] = d.primarySolver(iZone, inst, lvl)
			if lvl < nLvl-1 {
				parents[lvl] = d.Hierarchies[iZone].Parent[lvl][d.Rank]
			}
		}
		return integration.NewMultigrid(solvers, parents, reg, d.Cfg.NThreads)
	default:
		return integration.NewSingleGrid(
			[]solver.Solver{d.primarySolver(iZone, inst, 0)}, reg, d.Cfg.NThreads)
	}
}

// primarySolver is the slot the integrator drives directly.
func (d *Driver) primarySolver(iZone, inst, lvl int) solver.Solver {
	c := d.Lat.SolverContainer(iZone, inst, lvl)
	for _, slot := range []types.SolverSlot{types.FlowSlot, types.StructuralSlot,
		types.HeatSlot} {
		if c[slot] != nil {
			return c[slot]
		}
	}
	panic(fmt.Errorf("driver: zone %d has no primary solver", iZone))
}

// buildIteration selects the outer-iteration strategy of one zone instance.
func (d *Driver) buildIteration(z *config.Zone, iZone, inst int) iteration.Iteration {
	var (
		integ = d.Lat.Integrators[instKey{iZone, inst}]
		c     = d.Lat.SolverContainer(iZone, inst, 0)
	)
	switch {
	case z.SolverKind.IsStructural():
		st := c[types.StructuralSlot].(*solver.Structural)
		return iteration.NewFEA(z, integ, st)
	case z.Turbo.Enabled:
		return iteration.NewTurbo(iteration.NewFluid(z, integ, d.turbIntegrator(iZone, inst), c))
	default:
		return iteration.NewFluid(z, integ, d.turbIntegrator(iZone, inst), c)
	}
}

// turbIntegrator wraps the turbulence slot in its own single-grid loop; the
// closure equations never run on coarse levels.
func (d *Driver) turbIntegrator(iZone, inst int) integration.Integrator {
	c := d.Lat.SolverContainer(iZone, inst, 0)
	if c[types.TurbSlot] == nil {
		return nil
	}
	return integration.NewSingleGrid([]solver.Solver{c[types.TurbSlot]},
		d.Lat.Numerics[instKey{iZone, inst}], d.Cfg.NThreads)
}

// setRotatingFrameVelocities fills the grid velocities from the rigid
// rotation rate; on a static mesh this never changes again.
func (d *Driver) setRotatingFrameVelocities(iZone int, z *config.Zone) {
	for inst := 0; inst < z.NInstances(); inst++ {
		nLvl := d.Lat.NLevels(iZone, inst)
		for lvl := 0; lvl < nLvl; lvl++ {
			var (
				geo  = d.Lat.Geometry(iZone, inst, lvl)
				s    = d.primarySolver(iZone, inst, lvl)
				f    = s.Fields()
				nDim = geo.NDim
			)
			for i := 0; i < geo.NPoint; i++ {
				// v = omega x r, reduced to the z-rotation component in 2D
				x := geo.Coord(i, 0)
				y := geo.Coord(i, 1)
				f.GridVel[i*nDim] = -z.RotationRate[2] * y
				f.GridVel[i*nDim+1] = z.RotationRate[2] * x
			}
		}
	}
}

// ownsMarkers reports whether this rank holds any point of the named
// interface markers of a zone. Marker point sets live on the fine level.
func (d *Driver) ownsMarkers(iZone int, markers []string) bool {
	// Interface markers are tracked through the mesh marker sets captured
	// at partition time; a zone with no local points owns nothing.
	geo := d.Lat.Geometry(iZone, 0, 0)
	return geo != nil && geo.NPointDomain > 0 && len(markers) > 0
}

// checkRuntimeOverride lets rank 0 read the runtime file and broadcasts the
// verdict, so every rank stops on the same iteration.
func (d *Driver) checkRuntimeOverride(iter int) (stop bool, maxIter int) {
	maxIter = d.Cfg.OuterIter
	var payload [2]float64
	if d.Rank == 0 {
		var ov config.RuntimeOverride
		if config.ReadRuntime(d.Cfg.RuntimeFile, &ov) {
			if ov.Stop {
				payload[0] = 1
			}
			if ov.CurrentIter > 0 {
				payload[1] = float64(ov.CurrentIter)
			}
		}
	}
	out := d.Comm.Broadcast(0, payload[:])
	if out[1] > 0 {
		maxIter = int(out[1])
	}
	return out[0] > 0, maxIter
}

// Run executes the outer loop of a direct (fluid or structural) multizone
// problem: per-zone strategies in zone order, interface transfers after
// each zone advances, global convergence by all-zones AND across ranks.
func (d *Driver) Run() (err error) {
	if d.Cfg.DryRun {
		if d.Rank == 0 {
			fmt.Printf("Dry run requested: construction checked, no iterations.\n")
		}
		return nil
	}
	maxIter := d.Cfg.OuterIter
	for iter := d.CurrentIter; iter < maxIter; iter++ {
		var stop bool
		if stop, maxIter = d.checkRuntimeOverride(iter); stop {
			if d.Rank == 0 {
				fmt.Printf("Stop requested through runtime file at iteration %d.\n", iter)
			}
			break
		}
		converged := d.step(iter)
		d.CurrentIter = iter + 1
		if d.Comm.AllTrue(converged) {
			if d.Rank == 0 {
				fmt.Printf("All zones converged at outer iteration %d.\n", iter)
			}
			break
		}
	}
	return nil
}

// step advances every zone one outer iteration and runs the transfers.
func (d *Driver) step(iter int) (converged bool) {
	converged = true
	for iZone, z := range d.Cfg.Zones {
		for inst := 0; inst < z.NInstances(); inst++ {
			it := d.Lat.Iterations[instKey{iZone, inst}]
			it.Preprocess(iter)
			it.Iterate(iter)
			it.Update(iter)
			if !it.Postprocess(iter) {
				converged = false
			}
		}
		d.Histories[iZone].Write(iter, d.Lat.SolverContainer(iZone, 0, 0))
		d.runTransfersFrom(iZone)
	}
	return
}

// runTransfersFrom broadcasts every interface whose donor just advanced.
func (d *Driver) runTransfersFrom(iDonor int) {
	for _, ifc := range d.Ifaces {
		if ifc.DonorZone != iDonor {
			continue
		}
		d.transferInterface(ifc)
	}
}

// transferInterface moves one payload donor→target. The payload selection
// follows the interface kind; coordinates come from the fine grids.
func (d *Driver) transferInterface(ifc *transfer.Interface) {
	var (
		donor  = d.primarySolver(ifc.DonorZone, 0, 0)
		target = d.primarySolver(ifc.TargetZone, 0, 0)
		dg     = donor.Geometry()
		tg     = target.Geometry()
		df     = donor.Fields()
	)
	switch ifc.Kind {
	case types.FlowTraction:
		st := target.(*solver.Structural)
		vals, err := ifc.Broadcast(ownedCoords(dg), ownedVals(df.Residual, df.NVar, dg),
			dg.NDim, df.NVar, ownedCoords(tg))
		if err != nil {
			panic(fmt.Errorf("driver: %s transfer: %w", ifc.Kind.Print(), err))
		}
		n := copyLen(vals, st.Tractions)
		copy(st.Tractions[:n], vals[:n])
	case types.BoundaryDisplacements:
		tf := target.Fields()
		vals, err := ifc.Broadcast(ownedCoords(dg), ownedVals(df.Sol, df.NVar, dg),
			dg.NDim, df.NVar, ownedCoords(tg))
		if err != nil {
			panic(fmt.Errorf("driver: %s transfer: %w", ifc.Kind.Print(), err))
		}
		n := copyLen(vals, tf.Disp)
		copy(tf.Disp[:n], vals[:n])
	default:
		tf := target.Fields()
		vals, err := ifc.Broadcast(ownedCoords(dg), ownedVals(df.Sol, df.NVar, dg),
			dg.NDim, df.NVar, ownedCoords(tg))
		if err != nil {
			panic(fmt.Errorf("driver: %s transfer: %w", ifc.Kind.Print(), err))
		}
		n := copyLen(vals, tf.Sol)
		copy(tf.Sol[:n], vals[:n])
	}
	target.InitiateComms(types.Solution)
	target.CompleteComms(types.Solution)
}

func ownedCoords(g *geometry.Geometry) []float64 {
	return g.Coords[:g.NPointDomain*g.NDim]
}

func ownedVals(vals []float64, nVal int, g *geometry.Geometry) []float64 {
	return vals[:g.NPointDomain*nVal]
}

func copyLen(a, b []float64) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}

// Teardown releases the lattice in reverse construction order and verifies
// the allocation ledger balances.
func (d *Driver) Teardown() {
	d.Lat.release(TurboPhase, d.Lat.nAlloc[TurboPhase])
	d.Lat.release(RestartPhase, d.Lat.nAlloc[RestartPhase])
	d.Lat.release(InterfacePhase, len(d.Ifaces))
	d.Ifaces = nil
	d.Lat.Teardown()
	d.Lat.release(OutputPhase, len(d.Histories))
	d.Histories = nil
	d.Lat.release(InputPhase, d.Lat.nAlloc[InputPhase])
	if !d.Lat.Balanced() {
		panic(fmt.Errorf("driver: teardown ledger unbalanced: %s", d.Lat.Imbalance()))
	}
}
