package solver

import (
	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/types"
)

// MeshDeform propagates boundary displacements into the volume mesh with a
// pseudo-elastic smoothing and maintains the grid velocities the flow
// equations need on a deforming mesh.
type MeshDeform struct {
	*Base
	// Dt is the physical time step used for grid velocities; the driver
	// sets it on unsteady problems.
	Dt        float64
	refCoords []float64
}

func NewMeshDeform(cfg *config.Zone, geo *geometry.Geometry, comm *comms.Communicator) (s *MeshDeform) {
	nVar := geo.NDim
	s = &MeshDeform{Base: NewBase(types.MeshSlot, cfg, geo, comm, nVar, nVar), Dt: 1}
	s.refCoords = make([]float64, len(geo.Coords))
	copy(s.refCoords, geo.Coords)
	s.PreprocessPeriodicGeometry()
	return
}

func (s *MeshDeform) SetInitialCondition() {
	for i := range s.F.Disp {
		s.F.Disp[i] = 0
	}
	for i := range s.F.GridVel {
		s.F.GridVel[i] = 0
	}
}

func (s *MeshDeform) Preprocess(iter int) {}

// SetBoundaryDisplacements installs the displacements the transfer layer
// interpolated onto this zone's coupling boundary.
func (s *MeshDeform) SetBoundaryDisplacements(iPoint int, disp []float64) {
	copy(s.F.Disp[iPoint*s.Geo.NDim:(iPoint+1)*s.Geo.NDim], disp)
}

// Iterate smooths the boundary displacements into the interior with
// neighbor-averaging sweeps, refreshing halos between sweeps so the
// smoothing front crosses partition boundaries.
func (s *MeshDeform) Iterate() {
	var (
		f    = s.F
		geo  = s.Geo
		nDim = geo.NDim
	)
	const nSweeps = 5
	for sweep := 0; sweep < nSweeps; sweep++ {
		for i := 0; i < geo.NPointDomain; i++ {
			if geo.PointMarker[i] >= 0 {
				continue // boundary values are fixed
			}
			nbrs := geo.Neighbors[i]
			if len(nbrs) == 0 {
				continue
			}
			for d := 0; d < nDim; d++ {
				var sum float64
				for _, j := range nbrs {
					sum += f.Disp[j*nDim+d]
				}
				f.Disp[i*nDim+d] = sum / float64(len(nbrs))
			}
		}
		s.Halo.Initiate(types.MeshDisplacements)
		s.Halo.Complete(types.MeshDisplacements)
	}
}

// Update moves the coordinates, derives grid velocities by backward
// difference over the physical time step, and ships both.
func (s *MeshDeform) Update() {
	var (
		f    = s.F
		geo  = s.Geo
		nDim = geo.NDim
		dt   = s.Dt
	)
	for i := 0; i < geo.NPoint; i++ {
		for d := 0; d < nDim; d++ {
			idx := i*nDim + d
			newCoord := s.refCoords[idx] + f.Disp[idx]
			f.GridVel[idx] = (newCoord - f.Coords[idx]) / (dt + 1.e-30)
			f.Coords[idx] = newCoord
			geo.Coords[idx] = newCoord
		}
	}
	s.Halo.Initiate(types.Coordinates)
	s.Halo.Complete(types.Coordinates)
	s.Halo.Initiate(types.GridVelocity)
	s.Halo.Complete(types.GridVelocity)
	s.Base.Update()
}

var _ Solver = (*MeshDeform)(nil)
