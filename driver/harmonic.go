package driver

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/iteration"
	"github.com/notargets/mzflow/utils"
)

// HarmonicBalance runs the time-spectral variant: every zone carries
// nInst phase-sampled instances advanced in lockstep and coupled through
// the spectral differentiation operator D after each inner pass.
type HarmonicBalance struct {
	*Driver
	// Operators[iZone] is the nInst×nInst spectral operator of the zone.
	Operators [][]float64
	// Strategies[iZone] advances the zone's instances in lockstep and
	// injects the spectral source after each pass.
	Strategies []*iteration.HarmonicBalance
}

func NewHarmonicBalance(cfg *config.Driver, hierarchies []*geometry.Hierarchy,
	comm *comms.Communicator) *HarmonicBalance {
	return &HarmonicBalance{Driver: New(cfg, hierarchies, comm)}
}

func (d *HarmonicBalance) Setup() (err error) {
	if err = d.Driver.Setup(); err != nil {
		return
	}
	d.Operators = make([][]float64, d.Cfg.NZones())
	for iZone, z := range d.Cfg.Zones {
		if z.HB.TimeInstances < 2 {
			continue
		}
		if d.Operators[iZone], err = ComputeHBOperator(
			z.HB.TimeInstances, z.HB.Period, z.HB.Frequencies); err != nil {
			return fmt.Errorf("driver: zone %d: %w", iZone, err)
		}
		if z.HB.Precondition {
			d.Operators[iZone] = StabilizeHarmonicBalance(
				z.HB.TimeInstances, d.Operators[iZone], z.CFL)
		}
	}
	d.Strategies = make([]*iteration.HarmonicBalance, d.Cfg.NZones())
	for iZone, z := range d.Cfg.Zones {
		insts := make([]iteration.Iteration, z.NInstances())
		for inst := range insts {
			insts[inst] = d.Lat.Iterations[instKey{iZone, inst}]
		}
		hb := iteration.NewHarmonicBalance(z, insts)
		iz := iZone
		hb.ApplyOperator = func() { d.applyHBSource(iz) }
		d.Strategies[iZone] = hb
	}
	return nil
}

// ComputeHBOperator builds the real spectral operator D = Re(E Ω E⁻¹) for
// nInst instances sampled uniformly over one period: E is the harmonic
// evaluation matrix at the sample times, Ω the diagonal of iω per mode.
// The construction is fully deterministic, so repeated calls with the same
// arguments produce identical matrices.
func ComputeHBOperator(nInst int, period float64, freqs []float64) (D []float64, err error) {
	if nInst < 2 {
		return nil, fmt.Errorf("harmonic balance: need at least 2 instances, have %d", nInst)
	}
	if period <= 0 {
		return nil, fmt.Errorf("harmonic balance: period must be positive, have %g", period)
	}
	if len(freqs) == 0 {
		freqs = defaultFrequencies(nInst, period)
	}
	if len(freqs) != nInst {
		return nil, fmt.Errorf("harmonic balance: %d frequencies for %d instances",
			len(freqs), nInst)
	}
	var (
		e     = make([]complex128, nInst*nInst)
		omega = make([]complex128, nInst*nInst)
	)
	for i := 0; i < nInst; i++ {
		t := float64(i) * period / float64(nInst)
		for k := 0; k < nInst; k++ {
			e[i*nInst+k] = cmplx.Exp(complex(0, freqs[k]*t))
		}
		omega[i*nInst+i] = complex(0, freqs[i])
	}
	eInv := utils.GaussInvert(nInst, e)
	// D = E Ω E⁻¹, row by row
	D = make([]float64, nInst*nInst)
	for i := 0; i < nInst; i++ {
		for j := 0; j < nInst; j++ {
			var sum complex128
			for k := 0; k < nInst; k++ {
				sum += e[i*nInst+k] * omega[k*nInst+k] * eInv[k*nInst+j]
			}
			D[i*nInst+j] = real(sum)
		}
	}
	return D, nil
}

// defaultFrequencies is the symmetric harmonic set -N..N scaled by the
// fundamental, for odd nInst; even counts drop the highest positive mode.
func defaultFrequencies(nInst int, period float64) (freqs []float64) {
	var (
		omega0 = 2 * math.Pi / period
		half   = nInst / 2
	)
	freqs = make([]float64, nInst)
	for k := 0; k < nInst; k++ {
		freqs[k] = float64(k-half) * omega0
	}
	return
}

// StabilizeHarmonicBalance preconditions the operator with
// (I + δD)⁻¹ D over the reals, bounding the source term the operator
// injects when the pseudo-time step is large.
func StabilizeHarmonicBalance(nInst int, D []float64, delta float64) []float64 {
	m := make([]float64, nInst*nInst)
	for i := 0; i < nInst; i++ {
		for j := 0; j < nInst; j++ {
			m[i*nInst+j] = delta * D[i*nInst+j]
		}
		m[i*nInst+i] += 1
	}
	mInv := utils.GaussInvert(nInst, m)
	out := make([]float64, nInst*nInst)
	for i := 0; i < nInst; i++ {
		for j := 0; j < nInst; j++ {
			var sum float64
			for k := 0; k < nInst; k++ {
				sum += mInv[i*nInst+k] * D[k*nInst+j]
			}
			out[i*nInst+j] = sum
		}
	}
	return out
}

// applyHBSource adds the spectral coupling to every instance's residual:
// R_i += V · Σ_k D[i][k] u_k, evaluated on owned points.
func (d *HarmonicBalance) applyHBSource(iZone int) {
	var (
		z     = d.Cfg.Zones[iZone]
		nInst = z.HB.TimeInstances
		D     = d.Operators[iZone]
	)
	if D == nil {
		return
	}
	ref := d.primarySolver(iZone, 0, 0)
	var (
		nVar = ref.NVar()
		nOwn = ref.Geometry().NPointDomain
	)
	for i := 0; i < nInst; i++ {
		fi := d.primarySolver(iZone, i, 0).Fields()
		for k := 0; k < nInst; k++ {
			dik := D[i*nInst+k]
			if dik == 0 {
				continue
			}
			fk := d.primarySolver(iZone, k, 0).Fields()
			for p := 0; p < nOwn; p++ {
				for v := 0; v < nVar; v++ {
					fi.Residual[p*nVar+v] += fi.Vol[p] * dik * fk.Sol[p*nVar+v]
				}
			}
		}
	}
}

// Run overrides the fluid loop to drive every zone through its spectral
// strategy, which interleaves the operator source between the instance
// passes and the updates.
func (d *HarmonicBalance) Run() error {
	if d.Cfg.DryRun {
		return d.Driver.Run()
	}
	maxIter := d.Cfg.OuterIter
	for iter := d.CurrentIter; iter < maxIter; iter++ {
		var stop bool
		if stop, maxIter = d.checkRuntimeOverride(iter); stop {
			break
		}
		converged := true
		for iZone := range d.Cfg.Zones {
			hb := d.Strategies[iZone]
			hb.Preprocess(iter)
			hb.Iterate(iter)
			hb.Update(iter)
			if !hb.Postprocess(iter) {
				converged = false
			}
			d.Histories[iZone].Write(iter, d.Lat.SolverContainer(iZone, 0, 0))
			d.runTransfersFrom(iZone)
		}
		d.CurrentIter = iter + 1
		if d.Comm.AllTrue(converged) {
			break
		}
	}
	return nil
}
