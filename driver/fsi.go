package driver

import (
	"fmt"

	"github.com/notargets/mzflow/ad"
	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/iteration"
	"github.com/notargets/mzflow/solver"
	"github.com/notargets/mzflow/types"
)

// DiscAdjFSI couples the adjoint flow and adjoint structural zones with a
// Block-Gauss-Seidel outer loop. Each block records its own variable set
// on the tape; the recording state machine guarantees one passive replay
// between kinds so a stale graph never seeds a sweep.
type DiscAdjFSI struct {
	*Driver
	SM *ad.StateMachine

	FlowZone, StructZone int

	// Running convergence defaults per recording kind. The residual
	// threshold comparison for the two primary kinds is intentionally
	// inactive; the flags keep whatever the previous sweep left.
	kindConverged map[ad.RecordingKind]bool

	// adjIters drives the per-zone adjoint fixed point; the reverse sweep
	// closure is rebound to the active tape before each block.
	adjIters map[int]*iteration.DiscAdj
}

func NewDiscAdjFSI(cfg *config.Driver, hierarchies []*geometry.Hierarchy,
	comm *comms.Communicator) *DiscAdjFSI {
	return &DiscAdjFSI{
		Driver:        New(cfg, hierarchies, comm),
		SM:            ad.NewStateMachine(),
		FlowZone:      -1,
		StructZone:    -1,
		kindConverged: make(map[ad.RecordingKind]bool),
	}
}

func (d *DiscAdjFSI) Setup() (err error) {
	if err = d.Driver.Setup(); err != nil {
		return
	}
	for iZone, z := range d.Cfg.Zones {
		direct := z.SolverKind.DirectEquivalent()
		switch {
		case direct.IsFlow():
			d.FlowZone = iZone
		case direct.IsStructural():
			d.StructZone = iZone
		}
	}
	if d.FlowZone < 0 || d.StructZone < 0 {
		return fmt.Errorf("driver: adjoint FSI needs one flow and one structural zone")
	}
	d.adjIters = map[int]*iteration.DiscAdj{
		d.FlowZone: iteration.NewDiscAdj(d.Cfg.Zones[d.FlowZone],
			d.adjointSolver(d.FlowZone), nil),
		d.StructZone: iteration.NewDiscAdj(d.Cfg.Zones[d.StructZone],
			d.adjointSolver(d.StructZone), nil),
	}
	return nil
}

// adjointSolver returns the adjoint wrapper of a zone's primary slot.
func (d *DiscAdjFSI) adjointSolver(iZone int) *solver.DiscAdjoint {
	c := d.Lat.SolverContainer(iZone, 0, 0)
	if adj, ok := c[types.AdjFlowSlot].(*solver.DiscAdjoint); ok {
		return adj
	}
	panic(fmt.Errorf("driver: zone %d has no adjoint solver", iZone))
}

// blockZone maps a recording kind onto the zone whose variables it records.
func (d *DiscAdjFSI) blockZone(kind ad.RecordingKind) int {
	switch kind {
	case ad.FlowConsVars, ad.FlowCrossTerm, ad.MeshCoords, ad.GeometryCrossTerm:
		return d.FlowZone
	default:
		return d.StructZone
	}
}

// subIterations is the sweep count configured per recording kind.
func (d *DiscAdjFSI) subIterations(kind ad.RecordingKind) int {
	z := d.Cfg.Zones[d.blockZone(kind)]
	if n, ok := z.AdjointIterations[kind.Print()]; ok && n > 0 {
		return n
	}
	return 1
}

// passiveReplay runs one unrecorded direct iteration of the block's zone,
// rebuilding internal variable numbering after a tape reset.
func (d *DiscAdjFSI) passiveReplay(iZone int) func() {
	return func() {
		it := d.Lat.Iterations[instKey{iZone, 0}]
		it.Preprocess(d.CurrentIter)
		it.Iterate(d.CurrentIter)
	}
}

// recordPass registers the block's variables as tape leaves, runs one
// recorded direct evaluation of the objective, and registers the output.
func (d *DiscAdjFSI) recordPass(adj *solver.DiscAdjoint) (obj *ad.Var, pass func(t *ad.Tape)) {
	obj = new(ad.Var)
	pass = func(t *ad.Tape) {
		adj.RegisterVariables(t)
		// Objective stand-in: the volume-weighted sum of the recorded
		// state, which gives every input a nonzero adjoint path.
		var (
			f   = adj.Direct.Fields()
			acc ad.Var
		)
		for i, v := range adj.Vars {
			w := t.Scale(f.Vol[i/f.NVar], v)
			if i == 0 {
				acc = w
				continue
			}
			acc = t.Add(acc, w)
		}
		t.RegisterOutput(acc)
		*obj = acc
	}
	return
}

// iterateBlock runs one BGS block: record the kind, then drive the zone's
// adjoint fixed point for the configured sweep count.
func (d *DiscAdjFSI) iterateBlock(kind ad.RecordingKind) {
	var (
		iZone     = d.blockZone(kind)
		adj       = d.adjointSolver(iZone)
		it        = d.adjIters[iZone]
		obj, pass = d.recordPass(adj)
	)
	d.SM.SetRecording(kind, d.passiveReplay(iZone), pass)
	it.Sweep = func() { adj.SeedAndSweep(d.SM.Tape, *obj) }
	for k := 0; k < d.subIterations(kind); k++ {
		it.Iterate(d.CurrentIter)
	}
	adj.SetResidualNorms()
	d.kindConverged[kind] = d.blockConverged(kind, adj)
}

// blockConverged evaluates the per-kind convergence verdict. For the two
// primary kinds the residual-threshold comparison is inactive and the
// previous verdict carries through unchanged; the remaining kinds apply
// the mixed relative/absolute criterion against the first recorded norm.
func (d *DiscAdjFSI) blockConverged(kind ad.RecordingKind, adj *solver.DiscAdjoint) bool {
	switch kind {
	case ad.FlowConsVars, ad.FeaDispVars:
		return d.kindConverged[kind]
	}
	return bgsBlockConverged(adj.ResidualRMS(0), adj.ResInit[0],
		d.Cfg.BGSRelTol, d.Cfg.BGSAbsTol)
}

// bgsBlockConverged is the mixed BGS criterion: an absolute floor on the
// RMS residual, or a drop below relTol relative to the first recorded norm.
func bgsBlockConverged(rms, init, relTol, absTol float64) bool {
	if rms < absTol {
		return true
	}
	return init > 0 && rms/init < relTol
}

// bgsConverged sums the local verdicts across ranks and compares against
// the rank count, so a single undecided rank keeps the loop alive.
func (d *DiscAdjFSI) bgsConverged() bool {
	local := d.kindConverged[ad.FlowCrossTerm] && d.kindConverged[ad.FeaCrossTerm]
	vote := 0.0
	if local {
		vote = 1
	}
	return int(d.Comm.AllReduceScalar(vote, comms.OpSum)) == d.Comm.Size()
}

// Run executes the BGS outer loop: flow block, mesh coordinates,
// structural block, then the cross terms, until the coupled adjoint
// converges or the budget runs out.
func (d *DiscAdjFSI) Run() error {
	if d.Cfg.DryRun {
		return d.Driver.Run()
	}
	maxIter := d.Cfg.OuterIter
	for iter := d.CurrentIter; iter < maxIter; iter++ {
		var stop bool
		if stop, maxIter = d.checkRuntimeOverride(iter); stop {
			break
		}
		d.iterateBlock(ad.FlowConsVars)
		d.iterateBlock(ad.MeshCoords)
		d.iterateBlock(ad.FeaDispVars)
		d.iterateBlock(ad.FlowCrossTerm)
		d.iterateBlock(ad.FeaCrossTerm)
		d.iterateBlock(ad.GeometryCrossTerm)
		d.CurrentIter = iter + 1
		if d.Rank == 0 {
			fmt.Printf("BGS %4d: flow rms %9.4f  structure rms %9.4f\n", iter,
				solver.LogResidual(d.adjointSolver(d.FlowZone).ResidualRMS(0)),
				solver.LogResidual(d.adjointSolver(d.StructZone).ResidualRMS(0)))
		}
		if d.bgsConverged() {
			break
		}
	}
	d.SM.Clear()
	return nil
}
