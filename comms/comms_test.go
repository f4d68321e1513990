package comms

import (
	"math"
	"sync"
	"testing"

	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/types"
	"github.com/stretchr/testify/assert"
)

// runRanks drives one goroutine per rank through body, SPMD style.
func runRanks(n int, body func(rank int, c *Communicator)) {
	var (
		comms = NewGroup(n)
		wg    sync.WaitGroup
	)
	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			body(r, comms[r])
		}(r)
	}
	wg.Wait()
}

func TestCollectives(t *testing.T) {
	{ // Test AllReduce sum/min/max over 4 ranks
		runRanks(4, func(rank int, c *Communicator) {
			vals := []float64{float64(rank), float64(-rank)}
			sum := c.AllReduce(vals, OpSum)
			assert.Equal(t, []float64{6, -6}, sum)
			min := c.AllReduce(vals, OpMin)
			assert.Equal(t, []float64{0, -3}, min)
			max := c.AllReduce(vals, OpMax)
			assert.Equal(t, []float64{3, 0}, max)
		})
	}
	{ // Test AllGather returns contributions indexed by rank
		runRanks(3, func(rank int, c *Communicator) {
			all := c.AllGather([]float64{float64(rank * 100)})
			for r := 0; r < 3; r++ {
				assert.Equal(t, float64(r*100), all[r][0])
			}
		})
	}
	{ // Test Broadcast distributes root's data
		runRanks(3, func(rank int, c *Communicator) {
			data := []float64{float64(rank), float64(rank)}
			got := c.Broadcast(1, data)
			assert.Equal(t, []float64{1, 1}, got)
		})
	}
	{ // Test AllTrue / AnyTrue
		runRanks(4, func(rank int, c *Communicator) {
			assert.True(t, c.AllTrue(true))
			assert.False(t, c.AllTrue(rank != 2))
			assert.True(t, c.AnyTrue(rank == 2))
			assert.False(t, c.AnyTrue(false))
		})
	}
	{ // Test reductions are bitwise identical across ranks
		results := make([]float64, 4)
		runRanks(4, func(rank int, c *Communicator) {
			results[rank] = c.AllReduceScalar(0.1*float64(rank+1), OpSum)
		})
		for r := 1; r < 4; r++ {
			assert.Equal(t, results[0], results[r])
		}
	}
}

func TestPointToPoint(t *testing.T) {
	{ // Test send/recv pair with arrival-order completion
		runRanks(2, func(rank int, c *Communicator) {
			if rank == 0 {
				a := []float64{1, 2, 3}
				b := []float64{4, 5}
				reqs := []*Request{c.Isend(1, 7, a), c.Isend(1, 8, b)}
				c.WaitAll(reqs)
				return
			}
			reqs := []*Request{c.Irecv(0, 8), c.Irecv(0, 7)}
			seen := map[int]bool{}
			for n := 0; n < 2; n++ {
				i := c.WaitAny(reqs)
				assert.False(t, seen[i])
				seen[i] = true
			}
			assert.Equal(t, []float64{4, 5}, reqs[0].Data)
			assert.Equal(t, []float64{1, 2, 3}, reqs[1].Data)
		})
	}
	{ // Test messages with unmatched tags are buffered, not dropped
		runRanks(2, func(rank int, c *Communicator) {
			if rank == 0 {
				c.Wait(c.Isend(1, 50, []float64{50}))
				c.Wait(c.Isend(1, 51, []float64{51}))
				return
			}
			// Complete tag 51 first; tag 50 likely lands before it
			r51 := c.Irecv(0, 51)
			c.Wait(r51)
			assert.Equal(t, []float64{51}, r51.Data)
			r50 := c.Irecv(0, 50)
			c.Wait(r50)
			assert.Equal(t, []float64{50}, r50.Data)
		})
	}
}

// haloFixture partitions a small box mesh and builds per-rank fields with
// owned points initialized and halo points zeroed.
func haloFixture(nRanks, nVar, nPrim int) (geoms []*geometry.Geometry, fields []*Fields) {
	m := geometry.NewBoxMesh(4, 4)
	geoms = m.Partition(nRanks)
	fields = make([]*Fields, nRanks)
	for r, g := range geoms {
		fields[r] = NewFields(g.NPoint, nVar, nPrim, g.NDim)
	}
	return
}

func TestHaloExchange(t *testing.T) {
	const (
		nVar  = 4
		nPrim = 6
	)
	{ // Test Solution exchange delivers owner values to every halo copy
		geoms, fields := haloFixture(2, nVar, nPrim)
		runRanks(2, func(rank int, c *Communicator) {
			g, f := geoms[rank], fields[rank]
			for i := 0; i < g.NPointDomain; i++ {
				for v := 0; v < nVar; v++ {
					f.Sol[i*nVar+v] = float64(g.GlobalIndex[i]*10 + v)
				}
			}
			h := NewHaloExchange(c, g, f)
			h.Initiate(types.Solution)
			h.Complete(types.Solution)
			for i := 0; i < g.NPoint; i++ {
				for v := 0; v < nVar; v++ {
					assert.Equal(t, float64(g.GlobalIndex[i]*10+v), f.Sol[i*nVar+v])
				}
			}
		})
	}
	{ // Test scalar kind (MaxEigenvalue) round
		geoms, fields := haloFixture(2, nVar, nPrim)
		runRanks(2, func(rank int, c *Communicator) {
			g, f := geoms[rank], fields[rank]
			for i := 0; i < g.NPointDomain; i++ {
				f.MaxEig[i] = float64(g.GlobalIndex[i]) + 0.5
			}
			h := NewHaloExchange(c, g, f)
			h.Initiate(types.MaxEigenvalue)
			h.Complete(types.MaxEigenvalue)
			for i := 0; i < g.NPoint; i++ {
				assert.Equal(t, float64(g.GlobalIndex[i])+0.5, f.MaxEig[i])
			}
		})
	}
	{ // Test gradient kind carries nVar*nDim per point
		geoms, fields := haloFixture(3, nVar, nPrim)
		runRanks(3, func(rank int, c *Communicator) {
			g, f := geoms[rank], fields[rank]
			nDim := g.NDim
			for i := 0; i < g.NPointDomain; i++ {
				for k := 0; k < nVar*nDim; k++ {
					f.Grad[i*nVar*nDim+k] = float64(g.GlobalIndex[i]*100 + k)
				}
			}
			h := NewHaloExchange(c, g, f)
			h.Initiate(types.SolutionGradient)
			h.Complete(types.SolutionGradient)
			for i := 0; i < g.NPoint; i++ {
				for k := 0; k < nVar*nDim; k++ {
					assert.Equal(t, float64(g.GlobalIndex[i]*100+k), f.Grad[i*nVar*nDim+k])
				}
			}
		})
	}
	{ // Test Complete without Initiate panics
		geoms, fields := haloFixture(1, nVar, nPrim)
		h := NewHaloExchange(NewGroup(1)[0], geoms[0], fields[0])
		assert.Panics(t, func() { h.Complete(types.Solution) })
	}
	{ // Test overlapping rounds of the same exchange panic
		geoms, fields := haloFixture(1, nVar, nPrim)
		h := NewHaloExchange(NewGroup(1)[0], geoms[0], fields[0])
		h.Initiate(types.Solution)
		assert.Panics(t, func() { h.Initiate(types.MaxEigenvalue) })
	}
}

func periodicLineFixture(nRanks, nPoints, nVar, nPrim int) (geoms []*geometry.Geometry, fields []*Fields) {
	m := geometry.NewLineMesh(nPoints, true)
	geoms = m.Partition(nRanks)
	fields = make([]*Fields, nRanks)
	for r, g := range geoms {
		fields[r] = NewFields(g.NPoint, nVar, nPrim, g.NDim)
	}
	return
}

func TestPeriodicExchange(t *testing.T) {
	const (
		nPoints = 8
		nVar    = 3
		nPrim   = 5
	)
	{ // Test PeriodicVolume accumulates across the seam, pairwise symmetric
		geoms, fields := periodicLineFixture(2, nPoints, nVar, nPrim)
		runRanks(2, func(rank int, c *Communicator) {
			g, f := geoms[rank], fields[rank]
			for i := 0; i < g.NPoint; i++ {
				f.Vol[i] = g.Volume[i]
			}
			pe := NewPeriodicExchange(c, g, f)
			pe.Initiate(types.PeriodicVolume)
			pe.Complete(types.PeriodicVolume)
			for i := 0; i < g.NPointDomain; i++ {
				want := 1.
				if g.OnPeriodicBoundary(i) {
					want = 2 // own volume plus the image point's
				}
				assert.Equal(t, want, f.Vol[i])
			}
		})
	}
	{ // Test PeriodicNeighbors matches volumes: both faces see the same total
		geoms, fields := periodicLineFixture(2, nPoints, nVar, nPrim)
		totals := make([]float64, 2)
		runRanks(2, func(rank int, c *Communicator) {
			g, f := geoms[rank], fields[rank]
			for i := 0; i < g.NPointDomain; i++ {
				f.NNeighbors[i] = float64(len(g.Neighbors[i]))
			}
			pe := NewPeriodicExchange(c, g, f)
			pe.Initiate(types.PeriodicNeighbors)
			pe.Complete(types.PeriodicNeighbors)
			for i := 0; i < g.NPointDomain; i++ {
				if g.OnPeriodicBoundary(i) {
					totals[rank] = f.NNeighbors[i]
				}
			}
		})
		assert.Equal(t, totals[0], totals[1])
	}
	{ // Test PeriodicImplicit overwrites only the slave face
		geoms, fields := periodicLineFixture(2, nPoints, nVar, nPrim)
		runRanks(2, func(rank int, c *Communicator) {
			g, f := geoms[rank], fields[rank]
			for i := 0; i < g.NPointDomain; i++ {
				for v := 0; v < nVar; v++ {
					f.LinSysSol[i*nVar+v] = float64(g.GlobalIndex[i]*10 + v)
				}
			}
			pe := NewPeriodicExchange(c, g, f)
			pe.Initiate(types.PeriodicImplicit)
			pe.Complete(types.PeriodicImplicit)
			for i := 0; i < g.NPointDomain; i++ {
				switch g.GlobalIndex[i] {
				case 0: // master face keeps its own solve
					for v := 0; v < nVar; v++ {
						assert.Equal(t, float64(v), f.LinSysSol[i*nVar+v])
					}
				case nPoints - 1: // slave face is a bit-copy of the master
					for v := 0; v < nVar; v++ {
						assert.Equal(t, float64(v), f.LinSysSol[i*nVar+v])
					}
				}
			}
		})
	}
	{ // Test single-rank periodic self-exchange
		geoms, fields := periodicLineFixture(1, nPoints, nVar, nPrim)
		g, f := geoms[0], fields[0]
		for i := 0; i < g.NPoint; i++ {
			f.Vol[i] = 1
		}
		pe := NewPeriodicExchange(NewGroup(1)[0], g, f)
		pe.Initiate(types.PeriodicVolume)
		pe.Complete(types.PeriodicVolume)
		assert.Equal(t, 2., f.Vol[0])
		assert.Equal(t, 2., f.Vol[nPoints-1])
		assert.Equal(t, 1., f.Vol[1])
	}
	{ // Test rotated periodic pair delivers momentum in the receiving frame
		// A 90-degree wedge of four points: the theta=0 face (marker 0)
		// pairs with the theta=90 face (marker 1) through a z-rotation.
		m := &geometry.Mesh{
			NDim:    2,
			NPoints: 4,
			Coords: []float64{
				1, 0,
				math.Cos(math.Pi / 6), math.Sin(math.Pi / 6),
				math.Cos(math.Pi / 3), math.Sin(math.Pi / 3),
				0, 1,
			},
			Volume:   []float64{1, 1, 1, 1},
			Edges:    [][2]int{{0, 1}, {1, 2}, {2, 3}},
			NPerMark: 2,
			Transform: []*geometry.Transform{
				geometry.NewTransform([3]float64{}, [3]float64{0, 0, 90}, [3]float64{}),
				geometry.NewTransform([3]float64{}, [3]float64{0, 0, -90}, [3]float64{}),
			},
			Periodic: []geometry.PeriodicPair{
				{Marker: 0, PointA: 0, PointB: 3},
				{Marker: 1, PointA: 3, PointB: 0},
			},
		}
		g := m.Partition(1)[0]
		f := NewFields(g.NPoint, nVar, nPrim, g.NDim)
		copy(f.Residual[0:nVar], []float64{1, 2, 0})
		copy(f.Residual[3*nVar:4*nVar], []float64{10, 0, 3})
		f.TimeStep[0], f.TimeStep[3] = 0.25, 0.75
		pe := NewPeriodicExchange(NewGroup(1)[0], g, f)
		pe.Initiate(types.PeriodicResidual)
		pe.Complete(types.PeriodicResidual)
		// theta=0 face: the image's y-momentum arrives as +x momentum
		assert.InDeltaSlice(t, []float64{11, 5, 0}, f.Residual[0:nVar], 1.e-12)
		// theta=90 face: the image's x-momentum arrives as +y momentum
		assert.InDeltaSlice(t, []float64{11, 0, 5}, f.Residual[3*nVar:4*nVar], 1.e-12)
		// Interior points see nothing
		assert.Equal(t, make([]float64, 2*nVar), f.Residual[nVar:3*nVar])
		// The pairing stays symmetric: identical scalar components and
		// time steps, equal momentum magnitude on both faces
		assert.Equal(t, f.Residual[0], f.Residual[3*nVar])
		assert.Equal(t, 1., f.TimeStep[0])
		assert.Equal(t, 1., f.TimeStep[3])
		assert.InDelta(t, math.Hypot(f.Residual[1], f.Residual[2]),
			math.Hypot(f.Residual[3*nVar+1], f.Residual[3*nVar+2]), 1.e-12)
	}
	{ // Test PeriodicLimSolMinMax takes component-wise min/max
		geoms, fields := periodicLineFixture(1, nPoints, nVar, nPrim)
		g, f := geoms[0], fields[0]
		for i := 0; i < g.NPoint; i++ {
			for v := 0; v < nVar; v++ {
				f.SolMin[i*nVar+v] = float64(g.GlobalIndex[i])
				f.SolMax[i*nVar+v] = float64(g.GlobalIndex[i])
			}
		}
		pe := NewPeriodicExchange(NewGroup(1)[0], g, f)
		pe.Initiate(types.PeriodicLimSolMinMax)
		pe.Complete(types.PeriodicLimSolMinMax)
		// The two faces now share bounds spanning both original values
		for _, i := range []int{0, nPoints - 1} {
			assert.Equal(t, 0., f.SolMin[i*nVar])
			assert.Equal(t, float64(nPoints-1), f.SolMax[i*nVar])
		}
	}
}
