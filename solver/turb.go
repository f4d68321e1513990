package solver

import (
	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/types"
)

// Turb solves the RANS closure equations: one variable for
// Spalart-Allmaras, two for SST. Its halo traffic bundles the eddy
// viscosity with the turbulence state so neighbors never see a stale
// viscosity against a fresh state.
type Turb struct {
	*Base
}

func NewTurb(cfg *config.Zone, geo *geometry.Geometry, comm *comms.Communicator) (s *Turb) {
	nVar := 1
	if cfg.Turbulence == config.MenterSST {
		nVar = 2
	}
	s = &Turb{Base: NewBase(types.TurbSlot, cfg, geo, comm, nVar, nVar)}
	s.PreprocessPeriodicGeometry()
	return
}

func (s *Turb) SetInitialCondition() {
	var (
		f    = s.F
		nVar = f.NVar
	)
	for i := 0; i < f.NPoint; i++ {
		f.Sol[i*nVar] = 3.0 // freestream nu_tilde / k
		if nVar > 1 {
			f.Sol[i*nVar+1] = 1.0 // omega
		}
		f.Eddy[i] = s.eddyViscosity(i)
	}
	copy(f.SolOld, f.Sol)
	copy(f.TimeN, f.Sol)
	copy(f.TimeN1, f.Sol)
}

func (s *Turb) eddyViscosity(iPoint int) float64 {
	nu := s.F.Sol[iPoint*s.F.NVar]
	if nu < 0 {
		return 0
	}
	return nu
}

func (s *Turb) Preprocess(iter int) {
	s.ComputeMaxEigenvalue()
	s.ComputeGradients()
	if s.Cfg.LimiterKind != config.NoLimiter {
		s.ComputeLimiters()
	}
}

// Update refreshes the eddy viscosity from the converged turbulence state
// and ships state and viscosity together.
func (s *Turb) Update() {
	for i := 0; i < s.Geo.NPointDomain; i++ {
		s.F.Eddy[i] = s.eddyViscosity(i)
	}
	s.Halo.Initiate(types.SolutionEddy)
	s.Halo.Complete(types.SolutionEddy)
	s.Base.Update()
}
