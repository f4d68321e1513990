// Package numerics holds the opaque per-term flux/source evaluators and the
// registry that owns one instance per (grid level, equation slot, term,
// worker). The concrete schemes are leaves; the core only invokes them
// through the Numerics interface during residual assembly.
package numerics

import (
	"fmt"
	"math"

	"github.com/notargets/mzflow/types"
)

// Term is the discretization slot a numerics object occupies.
type Term uint8

const (
	ConvTerm Term = iota
	ViscTerm
	SourceFirstTerm
	SourceSecondTerm
	ConvBoundTerm
	ViscBoundTerm
	MatFeaTerm // FEA material model slot
	NTerms
)

var termNames = [NTerms]string{
	"Convective", "Viscous", "SourceFirst", "SourceSecond",
	"ConvBoundary", "ViscBoundary", "MaterialFEA",
}

func (tm Term) Print() string {
	if tm < NTerms {
		return termNames[tm]
	}
	return fmt.Sprintf("Term(%d)", tm)
}

// Numerics evaluates one term on one edge: states ui/uj on either side,
// the edge normal (area-weighted), the resulting flux. Implementations
// must be safe for single-worker use only; the registry replicates one
// instance per worker so concurrent assembly never shares state.
type Numerics interface {
	ComputeResidual(ui, uj, normal, flux []float64)
}

// WorkerContext carries a worker's identity and scratch storage through
// residual assembly, replacing any global thread-indexed state. When more
// than one worker assembles concurrently each carries a private Residual
// accumulator; the integrator reduces them after the join, so no two
// workers ever write the same array.
type WorkerContext struct {
	Worker   int
	NWorkers int
	Flux     []float64 // scratch, nVar
	Residual []float64 // private accumulator, nil for single-worker runs
}

func NewWorkerContext(worker, nWorkers, nVar int) *WorkerContext {
	return &WorkerContext{Worker: worker, NWorkers: nWorkers, Flux: make([]float64, nVar)}
}

// Registry owns the numerics lattice for one zone instance. Indexing is
// (level, slot, term, worker) flattened into one arena slice.
type Registry struct {
	nLevels, nWorkers int
	arena             []Numerics
}

func NewRegistry(nLevels, nWorkers int) *Registry {
	return &Registry{
		nLevels:  nLevels,
		nWorkers: nWorkers,
		arena:    make([]Numerics, nLevels*int(types.MaxSolverSlots)*int(NTerms)*nWorkers),
	}
}

func (r *Registry) index(level int, slot types.SolverSlot, term Term, worker int) int {
	return ((level*int(types.MaxSolverSlots)+int(slot))*int(NTerms)+int(term))*r.nWorkers + worker
}

// Register instantiates the factory once per worker for the given slot.
func (r *Registry) Register(level int, slot types.SolverSlot, term Term,
	factory func() Numerics) {
	for w := 0; w < r.nWorkers; w++ {
		r.arena[r.index(level, slot, term, w)] = factory()
	}
}

// Get returns the worker-local numerics instance, or nil when the term slot
// is unoccupied at this level.
func (r *Registry) Get(level int, slot types.SolverSlot, term Term,
	ctx *WorkerContext) Numerics {
	return r.arena[r.index(level, slot, term, ctx.Worker)]
}

// NRegistered counts the occupied (level, slot, term) triples; worker
// replicas count once.
func (r *Registry) NRegistered() (n int) {
	for i, num := range r.arena {
		if num != nil && i%r.nWorkers == 0 {
			n++
		}
	}
	return
}

// Clear drops every instance; the driver teardown calls this before the
// solvers are released.
func (r *Registry) Clear() {
	for i := range r.arena {
		r.arena[i] = nil
	}
}

// ScalarUpwind is the default convective evaluator: a per-variable upwind
// flux with constant wave speed. It stands in wherever a configuration
// selects an upwind family scheme without a dedicated implementation.
type ScalarUpwind struct {
	Wave float64
}

func (s *ScalarUpwind) ComputeResidual(ui, uj, normal, flux []float64) {
	var area float64
	for _, n := range normal {
		area += n * n
	}
	area = math.Sqrt(area)
	a := s.Wave * area
	abs := a
	if abs < 0 {
		abs = -abs
	}
	for v := range flux {
		flux[v] = 0.5*a*(ui[v]+uj[v]) - 0.5*abs*(uj[v]-ui[v])
	}
}

// ScalarCentered is the default centered evaluator with a fixed artificial
// dissipation coefficient.
type ScalarCentered struct {
	Wave float64
	Eps  float64
}

func (s *ScalarCentered) ComputeResidual(ui, uj, normal, flux []float64) {
	var area float64
	for _, n := range normal {
		area += n * n
	}
	area = math.Sqrt(area)
	for v := range flux {
		flux[v] = 0.5*s.Wave*area*(ui[v]+uj[v]) - s.Eps*(uj[v]-ui[v])
	}
}

// NullSource is a source term contributing nothing; it occupies source
// slots so assembly loops stay branch-free.
type NullSource struct{}

func (NullSource) ComputeResidual(ui, uj, normal, flux []float64) {
	for v := range flux {
		flux[v] = 0
	}
}
