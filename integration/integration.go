// Package integration drives the space and time integration of one
// equation system across its grid levels: the single-grid relaxation, the
// multigrid cycle built on it, and the structural and FEM-DG variants.
package integration

import (
	"sync"

	"github.com/notargets/mzflow/numerics"
	"github.com/notargets/mzflow/solver"
)

// Integrator advances one equation system one inner iteration.
type Integrator interface {
	// Step runs one inner iteration at the given outer iteration count.
	Step(iter int)
}

// SingleGrid performs one relaxation on the fine grid: preprocess, parallel
// residual assembly across workers, local time step, and the configured
// explicit or implicit update.
type SingleGrid struct {
	Solvers  []solver.Solver // one per grid level, fine first
	Registry *numerics.Registry
	NWorkers int
}

func NewSingleGrid(solvers []solver.Solver, reg *numerics.Registry, nWorkers int) *SingleGrid {
	if nWorkers < 1 {
		nWorkers = 1
	}
	return &SingleGrid{Solvers: solvers, Registry: reg, NWorkers: nWorkers}
}

// relax runs one smoothing iteration of the level's solver.
func (sg *SingleGrid) relax(level, iter int) {
	s := sg.Solvers[level]
	s.Preprocess(iter)
	sg.assemble(level)
	s.SetTimeStep()
	s.Iterate()
}

// assemble fans the edge loop out over the worker pool. Each worker
// accumulates into a private buffer; the reduction into the solver's
// residual happens after the join.
func (sg *SingleGrid) assemble(level int) {
	var (
		s  = sg.Solvers[level]
		f  = s.Fields()
		wg sync.WaitGroup
	)
	if sg.NWorkers == 1 {
		s.AssembleResidual(sg.Registry, level,
			numerics.NewWorkerContext(0, 1, s.NVar()))
		return
	}
	ctxs := make([]*numerics.WorkerContext, sg.NWorkers)
	for w := 0; w < sg.NWorkers; w++ {
		ctxs[w] = numerics.NewWorkerContext(w, sg.NWorkers, s.NVar())
		ctxs[w].Residual = make([]float64, len(f.Residual))
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			s.AssembleResidual(sg.Registry, level, ctxs[w])
		}(w)
	}
	wg.Wait()
	for i := range f.Residual {
		f.Residual[i] = 0
	}
	for _, ctx := range ctxs {
		for i, r := range ctx.Residual {
			f.Residual[i] += r
		}
	}
}

func (sg *SingleGrid) Step(iter int) {
	sg.relax(0, iter)
	sg.Solvers[0].SetResidualNorms()
}

// Multigrid runs a V-cycle over the level hierarchy: smooth, restrict the
// state to the next coarser level, recurse, prolongate the correction back.
// The hierarchy depth is whatever geometry construction delivered; a
// configured depth the coarsening could not reach is simply absent here.
type Multigrid struct {
	*SingleGrid
	// Parent[l][i] is the level-l+1 point containing level-l point i.
	Parent [][]int
}

func NewMultigrid(solvers []solver.Solver, parent [][]int,
	reg *numerics.Registry, nWorkers int) *Multigrid {
	return &Multigrid{
		SingleGrid: NewSingleGrid(solvers, reg, nWorkers),
		Parent:     parent,
	}
}

// NLevels is the effective level count, derived from the solvers actually
// constructed.
func (mg *Multigrid) NLevels() int { return len(mg.Solvers) }

func (mg *Multigrid) Step(iter int) {
	mg.cycle(0, iter)
	mg.Solvers[0].SetResidualNorms()
}

func (mg *Multigrid) cycle(level, iter int) {
	mg.relax(level, iter)
	if level+1 >= mg.NLevels() {
		return
	}
	mg.restrict(level)
	mg.cycle(level+1, iter)
	mg.prolongate(level)
	mg.relax(level, iter)
}

// restrict volume-averages the fine state into the coarse points and
// snapshots it so prolongation can form the coarse-grid correction.
func (mg *Multigrid) restrict(level int) {
	var (
		fine, coarse = mg.Solvers[level], mg.Solvers[level+1]
		ff, cf       = fine.Fields(), coarse.Fields()
		nVar         = ff.NVar
		parent       = mg.Parent[level]
	)
	for i := range cf.Sol {
		cf.Sol[i] = 0
	}
	vol := make([]float64, cf.NPoint)
	for i := 0; i < fine.Geometry().NPointDomain; i++ {
		p := parent[i]
		if p < 0 {
			continue
		}
		for v := 0; v < nVar; v++ {
			cf.Sol[p*nVar+v] += ff.Sol[i*nVar+v] * ff.Vol[i]
		}
		vol[p] += ff.Vol[i]
	}
	for p := 0; p < coarse.Geometry().NPointDomain; p++ {
		if vol[p] == 0 {
			continue
		}
		for v := 0; v < nVar; v++ {
			cf.Sol[p*nVar+v] /= vol[p]
		}
	}
	copy(cf.SolOld, cf.Sol)
}

// prolongate adds the coarse-grid correction (new minus restricted state)
// back onto the fine points.
func (mg *Multigrid) prolongate(level int) {
	var (
		fine, coarse = mg.Solvers[level], mg.Solvers[level+1]
		ff, cf       = fine.Fields(), coarse.Fields()
		nVar         = ff.NVar
		parent       = mg.Parent[level]
	)
	for i := 0; i < fine.Geometry().NPointDomain; i++ {
		p := parent[i]
		if p < 0 {
			continue
		}
		for v := 0; v < nVar; v++ {
			ff.Sol[i*nVar+v] += cf.Sol[p*nVar+v] - cf.SolOld[p*nVar+v]
		}
	}
}

// Structural integrates the elasticity system: a fixed number of Newton
// relaxations on a single grid.
type Structural struct {
	*SingleGrid
	NRelax int
}

func NewStructural(s solver.Solver, reg *numerics.Registry, nWorkers int) *Structural {
	return &Structural{
		SingleGrid: NewSingleGrid([]solver.Solver{s}, reg, nWorkers),
		NRelax:     1,
	}
}

func (st *Structural) Step(iter int) {
	for k := 0; k < st.NRelax; k++ {
		st.relax(0, iter)
	}
	st.Solvers[0].SetResidualNorms()
}

// FEMDG integrates the high-order FEM-DG flow discretization. It reuses
// the single-grid relaxation; the DG-specific terms live behind the
// numerics registry, so the loop shape is identical.
type FEMDG struct {
	*SingleGrid
}

func NewFEMDG(s solver.Solver, reg *numerics.Registry, nWorkers int) *FEMDG {
	return &FEMDG{SingleGrid: NewSingleGrid([]solver.Solver{s}, reg, nWorkers)}
}

func (fd *FEMDG) Step(iter int) {
	fd.relax(0, iter)
	fd.Solvers[0].SetResidualNorms()
}
