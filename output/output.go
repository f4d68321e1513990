// Package output writes the convergence history and the volume solution.
// Only rank 0 prints; the norms it prints are already cross-rank reduced,
// so every rank would print identical lines.
package output

import (
	"fmt"

	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/restart"
	"github.com/notargets/mzflow/solver"
)

// History prints the per-outer-iteration convergence table of one zone.
type History struct {
	Rank     int
	ZoneID   int
	Cfg      *config.Zone
	interval int
	header   bool
}

func NewHistory(rank, zoneID int, cfg *config.Zone) *History {
	return &History{Rank: rank, ZoneID: zoneID, Cfg: cfg, interval: 10}
}

// Write emits one history line; the header reprints every interval lines.
func (h *History) Write(iter int, solvers *solver.Container) {
	if h.Rank != 0 {
		return
	}
	if !h.header || iter%(h.interval*10) == 0 {
		fmt.Printf("Zone %d [%s]: iter", h.ZoneID, h.Cfg.SolverKind.Print())
		for _, s := range solvers.Active() {
			for v := 0; v < s.NVar(); v++ {
				fmt.Printf("  rms[%s:%d]", s.Slot().Print(), v)
			}
		}
		fmt.Printf("  CFL\n")
		h.header = true
	}
	fmt.Printf("Zone %d [%s]: %4d", h.ZoneID, h.Cfg.SolverKind.Print(), iter)
	for _, s := range solvers.Active() {
		for v := 0; v < s.NVar(); v++ {
			fmt.Printf("  %9.4f", solver.LogResidual(s.ResidualRMS(v)))
		}
	}
	fmt.Printf("  %.3g\n", h.Cfg.CFL)
}

// VolumeFields assembles the restart record of one zone's fine-level flow
// state on this rank's owned points: coordinates first, then the
// conservative variables.
func VolumeFields(s solver.Solver) *restart.Record {
	var (
		geo    = s.Geometry()
		f      = s.Fields()
		nDim   = geo.NDim
		nVar   = f.NVar
		coords = []string{"x", "y", "z"}
		rec    = &restart.Record{}
	)
	for d := 0; d < nDim; d++ {
		rec.Fields = append(rec.Fields, coords[d])
	}
	for v := 0; v < nVar; v++ {
		rec.Fields = append(rec.Fields, fmt.Sprintf("Conservative_%d", v+1))
	}
	for i := 0; i < geo.NPointDomain; i++ {
		for d := 0; d < nDim; d++ {
			rec.Data = append(rec.Data, geo.Coord(i, d))
		}
		rec.Data = append(rec.Data, f.Sol[i*nVar:(i+1)*nVar]...)
	}
	return rec
}

// WriteVolume stores the zone solution in the configured restart framing.
func WriteVolume(fileName string, s solver.Solver, iter int, binary bool) error {
	rec := VolumeFields(s)
	rec.Iter = iter
	return restart.Write(fileName, rec, binary)
}
