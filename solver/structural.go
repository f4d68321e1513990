package solver

import (
	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/types"
)

// Structural solves the elasticity equations: nDim displacement components
// per point. It additionally maintains the predictor state used by the
// partitioned FSI coupling and exposes the FEA-specific halo kinds.
type Structural struct {
	*Base
	// Tractions received from a coupled flow zone, set by the transfer
	// layer before Iterate.
	Tractions []float64 // NPoint*NDim
}

func NewStructural(cfg *config.Zone, geo *geometry.Geometry, comm *comms.Communicator) (s *Structural) {
	nVar := geo.NDim
	s = &Structural{Base: NewBase(types.StructuralSlot, cfg, geo, comm, nVar, nVar)}
	s.Tractions = make([]float64, geo.NPoint*geo.NDim)
	s.PreprocessPeriodicGeometry()
	return
}

func (s *Structural) SetInitialCondition() {
	for i := range s.F.Sol {
		s.F.Sol[i] = 0
	}
	copy(s.F.SolOld, s.F.Sol)
	copy(s.F.SolPred, s.F.Sol)
	copy(s.F.TimeN, s.F.Sol)
	copy(s.F.TimeN1, s.F.Sol)
}

func (s *Structural) Preprocess(iter int) {
	s.ComputeMaxEigenvalue()
	s.ComputeGradients()
}

// Iterate relaxes the displacements toward a traction-balanced state and
// ships the FEA solution kind, which carries velocity and acceleration
// history alongside the displacement.
func (s *Structural) Iterate() {
	var (
		f    = s.F
		nVar = f.NVar
	)
	copy(f.SolOld, f.Sol)
	const relax = 0.5
	for i := 0; i < s.Geo.NPointDomain; i++ {
		for d := 0; d < nVar; d++ {
			idx := i*nVar + d
			f.Sol[idx] = f.SolOld[idx] + relax*(s.Tractions[idx]-f.Residual[idx])*f.TimeStep[i]
		}
	}
	s.Halo.Initiate(types.SolutionFEA)
	s.Halo.Complete(types.SolutionFEA)
}

// PredictDisplacements extrapolates the next coupling state from the time
// history and publishes it through the predictor halo kind. The FSI outer
// loop uses the prediction as the transfer source for the first BGS sweep.
func (s *Structural) PredictDisplacements() {
	var f = s.F
	for i := range f.SolPred {
		f.SolPred[i] = 2*f.TimeN[i] - f.TimeN1[i]
	}
	s.Halo.Initiate(types.SolutionPredictor)
	s.Halo.Complete(types.SolutionPredictor)
}

// RelaxDisplacements blends the new solution with the previous coupling
// iterate (fixed-relaxation Aitken stand-in) and reports the max change.
func (s *Structural) RelaxDisplacements(omega float64) (maxDelta float64) {
	var f = s.F
	for i := range f.Sol {
		delta := f.Sol[i] - f.SolPred[i]
		f.Sol[i] = f.SolPred[i] + omega*delta
		if delta < 0 {
			delta = -delta
		}
		if delta > maxDelta {
			maxDelta = delta
		}
	}
	return
}

var _ Solver = (*Structural)(nil)
var _ Solver = (*Flow)(nil)
var _ Solver = (*Turb)(nil)
