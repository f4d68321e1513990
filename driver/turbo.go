package driver

import (
	"fmt"

	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/iteration"
	"github.com/notargets/mzflow/types"
)

// Turbomachinery extends the fluid driver with row-to-row coupling: the
// mixing-plane averages move between zones before each iterate, the
// rotation and outlet ramps re-evaluate every outer iteration, and the
// per-zone performance numbers aggregate into zone 0 for reporting.
type Turbomachinery struct {
	*Driver
	// Performance[iZone] is the zone's mass-flow-like figure this outer
	// iteration, reduced across ranks.
	Performance []float64
}

func NewTurbomachinery(cfg *config.Driver, hierarchies []*geometry.Hierarchy,
	comm *comms.Communicator) *Turbomachinery {
	return &Turbomachinery{Driver: New(cfg, hierarchies, comm)}
}

func (d *Turbomachinery) Setup() (err error) {
	if err = d.Driver.Setup(); err != nil {
		return
	}
	d.Performance = make([]float64, d.Cfg.NZones())
	return nil
}

// Run is the turbomachinery outer loop: mixing-plane transfers first, the
// ramped per-zone iterations second, performance aggregation last.
func (d *Turbomachinery) Run() error {
	if d.Cfg.DryRun {
		return d.Driver.Run()
	}
	maxIter := d.Cfg.OuterIter
	for iter := d.CurrentIter; iter < maxIter; iter++ {
		var stop bool
		if stop, maxIter = d.checkRuntimeOverride(iter); stop {
			break
		}
		d.runMixingPlaneTransfers()
		converged := true
		rampUpdated := false
		for iZone, z := range d.Cfg.Zones {
			it := d.Lat.Iterations[instKey{iZone, 0}]
			it.Preprocess(iter)
			if tb, ok := it.(*iteration.Turbo); ok && iter <= z.Turbo.RotationRamp.FinalIter {
				rampUpdated = true
				d.applyRotationRate(iZone, tb.RotationRate)
			}
			it.Iterate(iter)
			it.Update(iter)
			if !it.Postprocess(iter) {
				converged = false
			}
			d.Histories[iZone].Write(iter, d.Lat.SolverContainer(iZone, 0, 0))
		}
		d.aggregatePerformance()
		if rampUpdated {
			// Averages computed under the previous rotation rate are stale.
			d.runMixingPlaneTransfers()
		}
		d.CurrentIter = iter + 1
		if d.Comm.AllTrue(converged) {
			break
		}
	}
	return nil
}

// runMixingPlaneTransfers broadcasts every mixing-plane interface.
func (d *Turbomachinery) runMixingPlaneTransfers() {
	for _, ifc := range d.Ifaces {
		if ifc.Kind != types.MixingPlaneTransfer {
			continue
		}
		d.transferInterface(ifc)
	}
}

// applyRotationRate refreshes the rigid grid velocities of one zone after
// a ramp update.
func (d *Turbomachinery) applyRotationRate(iZone int, rate float64) {
	z := *d.Cfg.Zones[iZone]
	z.RotationRate[2] = rate
	d.setRotatingFrameVelocities(iZone, &z)
}

// aggregatePerformance reduces each zone's figure across ranks and gathers
// the per-zone values where zone 0's reporting can see them.
func (d *Turbomachinery) aggregatePerformance() {
	for iZone := range d.Cfg.Zones {
		var (
			s     = d.primarySolver(iZone, 0, 0)
			f     = s.Fields()
			nVar  = s.NVar()
			local float64
		)
		for i := 0; i < s.Geometry().NPointDomain; i++ {
			local += f.Sol[i*nVar] * f.Vol[i] // density-weighted volume sum
		}
		d.Performance[iZone] = d.Comm.AllReduceScalar(local, comms.OpSum)
	}
	if d.Rank == 0 && d.CurrentIter%10 == 0 {
		fmt.Printf("Turbo performance:")
		for iZone, p := range d.Performance {
			fmt.Printf("  zone %d: %.6e", iZone, p)
		}
		fmt.Printf("\n")
	}
}
