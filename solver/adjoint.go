package solver

import (
	"github.com/notargets/mzflow/ad"
	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/types"
)

// DiscAdjoint wraps a direct solver and drives the tape: one recorded
// direct iteration per recording kind, adjoint seeding from the objective,
// a reverse sweep, and extraction of the adjoint state. The wrapped direct
// solver keeps owning the primal state.
type DiscAdjoint struct {
	*Base
	Direct Solver
	Vars   []ad.Var
}

func NewDiscAdjoint(slot types.SolverSlot, cfg *config.Zone, geo *geometry.Geometry,
	comm *comms.Communicator, direct Solver) (s *DiscAdjoint) {
	s = &DiscAdjoint{
		Base:   NewBase(slot, cfg, geo, comm, direct.NVar(), direct.NVar()),
		Direct: direct,
	}
	s.PreprocessPeriodicGeometry()
	return
}

func (s *DiscAdjoint) SetInitialCondition() {
	for i := range s.F.Sol {
		s.F.Sol[i] = 0
	}
	copy(s.F.SolOld, s.F.Sol)
}

func (s *DiscAdjoint) Preprocess(iter int) {}

// RegisterVariables puts the direct solver's owned state on the tape as
// inputs and returns the handles in point-major order.
func (s *DiscAdjoint) RegisterVariables(t *ad.Tape) {
	var (
		df   = s.Direct.Fields()
		nVar = df.NVar
		nOwn = s.Geo.NPointDomain
	)
	s.Vars = s.Vars[:0]
	for i := 0; i < nOwn*nVar; i++ {
		v := t.NewVar(df.Sol[i])
		t.RegisterInput(v)
		s.Vars = append(s.Vars, v)
	}
}

// SeedAndSweep seeds the recorded objective output with unit adjoint, runs
// the reverse sweep, and gathers the input adjoints as the new adjoint
// state.
func (s *DiscAdjoint) SeedAndSweep(t *ad.Tape, objective ad.Var) {
	t.SetDerivative(objective, 1)
	t.ComputeAdjoint()
	for i, v := range s.Vars {
		s.F.Sol[i] = t.GetDerivative(v)
	}
	t.ClearAdjoints()
	s.Halo.Initiate(types.Solution)
	s.Halo.Complete(types.Solution)
}

// Iterate measures the fixed-point update of the latest sweep and rolls
// the history forward.
func (s *DiscAdjoint) Iterate() {
	var f = s.F
	for i := 0; i < s.Geo.NPointDomain*f.NVar; i++ {
		f.Residual[i] = f.Sol[i] - f.SolOld[i]
	}
	copy(f.SolOld, f.Sol)
}

var _ Solver = (*DiscAdjoint)(nil)
