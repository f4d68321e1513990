// Package transfer couples zones across shared boundary interfaces:
// classification of what a (donor, target) pair exchanges, donor→target
// interpolation, and the per-outer-iteration broadcast of interface data.
package transfer

import (
	"fmt"

	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/types"
)

// Classify determines what, if anything, flows from donor to target. The
// decision depends only on the zone physics and indices, so every rank
// reaches the same answer without communication.
func Classify(iDonor, iTarget int, donor, target *config.Zone,
	shareInterface bool) types.InterfaceKind {
	if iDonor == iTarget {
		return types.ZonesAreEqual
	}
	if !shareInterface {
		return types.NoCommonInterface
	}
	var (
		dk = donor.SolverKind
		tk = target.SolverKind
	)
	switch {
	case dk.IsFlow() && tk.IsStructural():
		return types.FlowTraction
	case dk.IsStructural() && (tk.IsFlow() || tk == config.HeatEquation):
		return types.BoundaryDisplacements
	case dk.IsFlow() && tk == config.HeatEquation:
		return types.ConjugateHeatFS
	case dk == config.HeatEquation && tk.IsFlow():
		return types.ConjugateHeatSF
	case dk.IsFlow() && tk.IsFlow() && donor.Turbo.Enabled && target.Turbo.Enabled:
		return types.MixingPlaneTransfer
	case dk.IsFlow() && tk.IsFlow() && (donor.DeformingMesh || target.DeformingMesh ||
		donor.RotatingFrame || target.RotatingFrame):
		return types.SlidingInterfaceTransfer
	case dk.IsFlow() && tk.IsFlow():
		return types.ConservativeVariables
	}
	return types.NoCommonInterface
}

// sharedMarkers returns the interface marker names the two zones both name.
func sharedMarkers(donor, target *config.Zone) (shared []string) {
	for _, d := range donor.Markers.Interface {
		for _, t := range target.Markers.Interface {
			if d == t {
				shared = append(shared, d)
			}
		}
	}
	return
}

// Interface is one directed coupling between two zones.
type Interface struct {
	DonorZone, TargetZone int
	Kind                  types.InterfaceKind
	Markers               []string
	Interp                Interpolator
}

// Preprocess builds the interface matrix of a multizone problem. Whether a
// marker pair is populated is a global property: a rank holding none of the
// interface points must still participate in the coupled iteration, so the
// local ownership votes are reduced across the communicator before any pair
// is dismissed.
func Preprocess(cfg *config.Driver, comm *comms.Communicator,
	localOwnership func(iZone int, markers []string) bool) (matrix [][]types.InterfaceKind, ifaces []*Interface, err error) {
	nZones := cfg.NZones()
	matrix = make([][]types.InterfaceKind, nZones)
	for i := range matrix {
		matrix[i] = make([]types.InterfaceKind, nZones)
	}
	for iDonor := 0; iDonor < nZones; iDonor++ {
		for iTarget := 0; iTarget < nZones; iTarget++ {
			var (
				donor  = cfg.Zones[iDonor]
				target = cfg.Zones[iTarget]
				shared = sharedMarkers(donor, target)
			)
			populated := len(shared) > 0
			if populated && comm != nil {
				// Global consensus: the pair exists if ANY rank owns points
				// of the shared markers on either side.
				vote := 0.0
				if localOwnership(iDonor, shared) || localOwnership(iTarget, shared) {
					vote = 1
				}
				populated = comm.AllReduceScalar(vote, comms.OpSum) > 0
			}
			kind := Classify(iDonor, iTarget, donor, target, populated)
			matrix[iDonor][iTarget] = kind
			if kind == types.ZonesAreEqual || kind == types.NoCommonInterface {
				continue
			}
			var interp Interpolator
			if interp, err = newInterpolatorFor(iDonor, iTarget, donor, target, kind); err != nil {
				return nil, nil, err
			}
			ifaces = append(ifaces, &Interface{
				DonorZone:  iDonor,
				TargetZone: iTarget,
				Kind:       kind,
				Markers:    shared,
				Interp:     interp,
			})
		}
	}
	return
}

// newInterpolatorFor instantiates the interpolation the pair's physics
// asks for, enforcing the conservative-mirror ordering rule: the mirror
// reuses the transposed structural map, so it is only legal when the
// target is the structural zone and that zone is constructed after zone 0.
func newInterpolatorFor(iDonor, iTarget int, donor, target *config.Zone,
	kind types.InterfaceKind) (Interpolator, error) {
	switch kind {
	case types.SlidingInterfaceTransfer, types.MixingPlaneTransfer:
		return NewSlidingAverage(), nil
	case types.FlowTraction:
		if target.SolverKind.IsStructural() && iTarget > 0 {
			return NewConservativeMirror(NewNearestNeighbor()), nil
		}
		return nil, fmt.Errorf(
			"transfer: conservative interpolation requires the structural zone "+
				"as target with zone index > 0, got donor %d target %d", iDonor, iTarget)
	case types.BoundaryDisplacements:
		return NewIsoparametric(), nil
	default:
		return NewNearestNeighbor(), nil
	}
}

// Broadcast runs one donor→target transfer of the interface payload.
func (ifc *Interface) Broadcast(donorCoords, donorVals []float64, nDim, nVal int,
	targetCoords []float64) (targetVals []float64, err error) {
	if err = ifc.Interp.SetTransferCoeff(donorCoords, targetCoords, nDim); err != nil {
		return
	}
	return ifc.Interp.Interpolate(donorVals, nVal), nil
}
