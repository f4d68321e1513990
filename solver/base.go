package solver

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"

	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/numerics"
	"github.com/notargets/mzflow/types"
)

const divergenceThreshold = 1.e10

// Base carries the state and kernels shared by every equation system. A
// Base owns its Fields exclusively; the comms exchanges mutate Fields only
// on its behalf.
type Base struct {
	SlotID types.SolverSlot
	Cfg    *config.Zone
	Geo    *geometry.Geometry
	Comm   *comms.Communicator

	F        *comms.Fields
	Halo     *comms.HaloExchange
	Periodic *comms.PeriodicExchange

	// Implicit system: one block row per owned point
	Jac      *sparse.DOK
	slaveRow []bool

	Wave float64 // characteristic wave speed for time-step estimates

	ResNorm   []float64 // RMS residual per variable, cross-rank reduced
	ResInit   []float64
	converged bool
	nNormSets int
	lastNorm  float64
}

func NewBase(slot types.SolverSlot, cfg *config.Zone, geo *geometry.Geometry,
	comm *comms.Communicator, nVar, nPrim int) (b *Base) {
	b = &Base{
		SlotID: slot,
		Cfg:    cfg,
		Geo:    geo,
		Comm:   comm,
		Wave:   1,
	}
	b.F = comms.NewFields(geo.NPoint, nVar, nPrim, geo.NDim)
	b.Halo = comms.NewHaloExchange(comm, geo, b.F)
	b.Periodic = comms.NewPeriodicExchange(comm, geo, b.F)
	n := geo.NPointDomain * nVar
	b.Jac = sparse.NewDOK(n, n)
	b.slaveRow = make([]bool, geo.NPointDomain)
	b.ResNorm = make([]float64, nVar)
	b.ResInit = make([]float64, nVar)
	copy(b.F.Coords, geo.Coords)
	for i := 0; i < geo.NPoint; i++ {
		b.F.Vol[i] = geo.Volume[i]
		b.F.NNeighbors[i] = float64(len(geo.Neighbors[i]))
	}
	for i := 0; i < geo.NPointDomain; i++ {
		if m := geo.PointMarker[i]; m >= 0 && geo.IsSlaveMarker(m) {
			b.slaveRow[i] = true
		}
	}
	return
}

func (b *Base) Slot() types.SolverSlot         { return b.SlotID }
func (b *Base) NVar() int                      { return b.F.NVar }
func (b *Base) Fields() *comms.Fields          { return b.F }
func (b *Base) Geometry() *geometry.Geometry   { return b.Geo }
func (b *Base) Converged() bool                { return b.converged }
func (b *Base) ResidualRMS(iVar int) float64   { return b.ResNorm[iVar] }

func (b *Base) InitiateComms(kind types.QuantityKind) { b.Halo.Initiate(kind) }
func (b *Base) CompleteComms(kind types.QuantityKind) { b.Halo.Complete(kind) }

// PreprocessPeriodicGeometry folds the control volumes and neighbor counts
// across periodic pairs once, right after construction, so both faces of a
// pair agree on the metric of their shared physical point.
func (b *Base) PreprocessPeriodicGeometry() {
	if b.Geo.NPeriodicMarkers == 0 {
		return
	}
	b.Periodic.Initiate(types.PeriodicVolume)
	b.Periodic.Complete(types.PeriodicVolume)
	b.Periodic.Initiate(types.PeriodicNeighbors)
	b.Periodic.Complete(types.PeriodicNeighbors)
}

// SetInitialCondition applies a uniform unit state; concrete solvers
// override with physics-specific initializations.
func (b *Base) SetInitialCondition() {
	for i := range b.F.Sol {
		b.F.Sol[i] = 1
	}
	copy(b.F.SolOld, b.F.Sol)
	copy(b.F.TimeN, b.F.Sol)
	copy(b.F.TimeN1, b.F.Sol)
}

// SetTimeStep computes the local (pseudo-)time step from the CFL number,
// the periodic-consistent control volume and the accumulated spectral
// radius.
func (b *Base) SetTimeStep() {
	var (
		f   = b.F
		cfl = b.Cfg.CFL
	)
	for i := 0; i < b.Geo.NPointDomain; i++ {
		lambda := f.MaxEig[i]
		if lambda <= 0 {
			lambda = b.Wave * f.NNeighbors[i]
		}
		f.TimeStep[i] = cfl * f.Vol[i] / (lambda + 1.e-10)
	}
}

// AssembleResidual runs the edge loop over this worker's edge range,
// invoking the configured convective and source terms and accumulating the
// implicit Jacobian when the zone runs implicit.
func (b *Base) AssembleResidual(reg *numerics.Registry, level int,
	ctx *numerics.WorkerContext) {
	var (
		f     = b.F
		nVar  = f.NVar
		geo   = b.Geo
		conv  = reg.Get(level, b.SlotID, numerics.ConvTerm, ctx)
		srcA  = reg.Get(level, b.SlotID, numerics.SourceFirstTerm, ctx)
		nEdge = len(geo.Edges)
		res   = f.Residual
	)
	if ctx.Residual != nil {
		res = ctx.Residual
	} else {
		for i := range res {
			res[i] = 0
		}
	}
	if conv == nil {
		return
	}
	var (
		chunk      = (nEdge + ctx.NWorkers - 1) / ctx.NWorkers
		begin, end = ctx.Worker * chunk, (ctx.Worker + 1) * chunk
		normal     = make([]float64, geo.NDim)
	)
	if end > nEdge {
		end = nEdge
	}
	for e := begin; e < end; e++ {
		var (
			i, j = geo.Edges[e][0], geo.Edges[e][1]
			ui   = f.Sol[i*nVar : (i+1)*nVar]
			uj   = f.Sol[j*nVar : (j+1)*nVar]
		)
		for d := 0; d < geo.NDim; d++ {
			normal[d] = geo.Coord(j, d) - geo.Coord(i, d)
		}
		conv.ComputeResidual(ui, uj, normal, ctx.Flux)
		for v := 0; v < nVar; v++ {
			if i < geo.NPointDomain {
				res[i*nVar+v] += ctx.Flux[v]
			}
			if j < geo.NPointDomain {
				res[j*nVar+v] -= ctx.Flux[v]
			}
		}
	}
	if srcA != nil {
		for i := ctx.Worker; i < geo.NPointDomain; i += ctx.NWorkers {
			ui := f.Sol[i*nVar : (i+1)*nVar]
			srcA.ComputeResidual(ui, ui, normal, ctx.Flux)
			for v := 0; v < nVar; v++ {
				res[i*nVar+v] += ctx.Flux[v] * f.Vol[i]
			}
		}
	}
	// The Jacobian matrix is shared state; worker 0 fills it for the whole
	// edge set while the others assemble their residual chunks.
	if b.Cfg.Implicit && ctx.Worker == 0 {
		for _, e := range geo.Edges {
			b.addEdgeJacobian(e[0], e[1])
		}
	}
}

// addEdgeJacobian accumulates the scalar upwind Jacobian blocks of one
// edge into the implicit matrix.
func (b *Base) addEdgeJacobian(i, j int) {
	var (
		nVar = b.F.NVar
		a    = b.Wave
		absA = math.Abs(a)
		dII  = 0.5 * (a + absA)
		dIJ  = 0.5 * (a - absA)
	)
	for v := 0; v < nVar; v++ {
		if i < b.Geo.NPointDomain && !b.slaveRow[i] {
			ri := i*nVar + v
			b.Jac.Set(ri, ri, b.Jac.At(ri, ri)+dII)
			if j < b.Geo.NPointDomain {
				b.Jac.Set(ri, j*nVar+v, b.Jac.At(ri, j*nVar+v)+dIJ)
			}
		}
		if j < b.Geo.NPointDomain && !b.slaveRow[j] {
			rj := j*nVar + v
			b.Jac.Set(rj, rj, b.Jac.At(rj, rj)+dII)
			if i < b.Geo.NPointDomain {
				b.Jac.Set(rj, i*nVar+v, b.Jac.At(rj, i*nVar+v)+dIJ)
			}
		}
	}
}

// ExplicitUpdate advances the solution one forward-Euler step with the
// local time step, then synchronizes halos and accumulates residual,
// time-step and Jacobian contributions across periodic seams.
func (b *Base) ExplicitUpdate() {
	var (
		f    = b.F
		nVar = f.NVar
	)
	if b.Geo.NPeriodicMarkers > 0 {
		b.Periodic.Initiate(types.PeriodicResidual)
		b.Periodic.Complete(types.PeriodicResidual)
	}
	for i := 0; i < b.Geo.NPointDomain; i++ {
		dtOverVol := f.TimeStep[i] / f.Vol[i]
		for v := 0; v < nVar; v++ {
			f.Sol[i*nVar+v] = f.SolOld[i*nVar+v] - dtOverVol*f.Residual[i*nVar+v]
		}
	}
	b.Halo.Initiate(types.Solution)
	b.Halo.Complete(types.Solution)
}

// ImplicitUpdate performs the backward-Euler relaxation: diagonal
// augmentation by vol/dt, slave-row masking for periodic seams, Jacobi
// sweeps with halo refresh, the periodic master/slave overwrite, and the
// final state update.
func (b *Base) ImplicitUpdate() {
	var (
		f    = b.F
		nVar = f.NVar
		nOwn = b.Geo.NPointDomain
	)
	if b.Geo.NPeriodicMarkers > 0 {
		b.Periodic.Initiate(types.PeriodicResidual)
		b.Periodic.Complete(types.PeriodicResidual)
	}
	for i := 0; i < nOwn; i++ {
		diag := f.Vol[i] / (f.TimeStep[i] + 1.e-30)
		for v := 0; v < nVar; v++ {
			r := i*nVar + v
			if b.slaveRow[i] {
				// Slave rows solve the identity; the master's equation is
				// the one that carries both faces' physics.
				b.Jac.Set(r, r, 1)
				continue
			}
			b.Jac.Set(r, r, b.Jac.At(r, r)+diag)
		}
	}
	for i := range f.LinSysSol {
		f.LinSysSol[i] = 0
	}
	const nSweeps = 10
	csr := b.Jac.ToCSR()
	for sweep := 0; sweep < nSweeps; sweep++ {
		ax := make([]float64, nOwn*nVar)
		csr.DoNonZero(func(r, c int, v float64) {
			ax[r] += v * f.LinSysSol[c]
		})
		for i := 0; i < nOwn; i++ {
			for v := 0; v < nVar; v++ {
				r := i*nVar + v
				if b.slaveRow[i] {
					continue
				}
				d := csr.At(r, r)
				if d == 0 {
					continue
				}
				f.LinSysSol[r] += (-f.Residual[r] - ax[r]) / d
			}
		}
		b.Halo.Initiate(types.SolutionMatrix)
		b.Halo.Complete(types.SolutionMatrix)
	}
	if b.Geo.NPeriodicMarkers > 0 {
		b.Periodic.Initiate(types.PeriodicImplicit)
		b.Periodic.Complete(types.PeriodicImplicit)
	}
	for i := 0; i < nOwn; i++ {
		for v := 0; v < nVar; v++ {
			f.Sol[i*nVar+v] = f.SolOld[i*nVar+v] + f.LinSysSol[i*nVar+v]
		}
	}
	b.resetJacobian()
	b.Halo.Initiate(types.Solution)
	b.Halo.Complete(types.Solution)
}

func (b *Base) resetJacobian() {
	n := b.Geo.NPointDomain * b.F.NVar
	b.Jac = sparse.NewDOK(n, n)
}

// Iterate performs one pseudo-time step of the zone's configured kind.
func (b *Base) Iterate() {
	copy(b.F.SolOld, b.F.Sol)
	if b.Cfg.Implicit {
		b.ImplicitUpdate()
		return
	}
	b.ExplicitUpdate()
}

// Update commits the dual-time history levels.
func (b *Base) Update() {
	copy(b.F.TimeN1, b.F.TimeN)
	copy(b.F.TimeN, b.F.Sol)
}

// SetResidualNorms reduces the RMS residual across ranks and performs the
// divergence check. NaN or runaway norms abort the run on every rank.
func (b *Base) SetResidualNorms() {
	var (
		f     = b.F
		nVar  = f.NVar
		local = make([]float64, nVar+1)
	)
	for i := 0; i < b.Geo.NPointDomain; i++ {
		for v := 0; v < nVar; v++ {
			r := f.Residual[i*nVar+v]
			local[v] += r * r
		}
	}
	local[nVar] = float64(b.Geo.NPointDomain)
	global := b.Comm.AllReduce(local, comms.OpSum)
	nTotal := global[nVar]
	b.converged = true
	for v := 0; v < nVar; v++ {
		rms := math.Sqrt(global[v] / nTotal)
		if math.IsNaN(rms) || rms > divergenceThreshold {
			panic(fmt.Errorf("SetResidualNorms: %s solver diverged, RMS[%d] = %e",
				b.SlotID.Print(), v, rms))
		}
		b.ResNorm[v] = rms
		if b.nNormSets == 0 {
			b.ResInit[v] = rms
		}
		if LogResidual(rms) > b.Cfg.ConvTol {
			b.converged = false
		}
	}
	b.nNormSets++
}

// LogResidual maps an RMS residual onto the log10 scale used by the
// convergence monitors, clamping away from -inf for zero residuals.
func LogResidual(rms float64) float64 {
	if rms <= 0 {
		return -20
	}
	return math.Log10(rms)
}
