package geometry

import "fmt"

// P2PPattern is the precomputed point-to-point communication table of one
// partition: which owned points are packed for which neighbor rank, and
// which local halo points incoming messages unpack into. Message i for a
// neighbor covers points SendPoint[SendOffset[i]:SendOffset[i+1]]. The
// table is static for the life of a non-adaptive mesh.
type P2PPattern struct {
	SendRank   []int
	SendOffset []int // len(SendRank)+1
	SendPoint  []int // local owned point indices
	RecvRank   []int
	RecvOffset []int
	RecvPoint  []int // local halo point indices
}

func (p *P2PPattern) NSends() int { return len(p.SendRank) }
func (p *P2PPattern) NRecvs() int { return len(p.RecvRank) }

// MaxSendCount returns the largest per-message point count, used to size
// communication buffers.
func (p *P2PPattern) MaxSendCount() (max int) {
	for i := range p.SendRank {
		if n := p.SendOffset[i+1] - p.SendOffset[i]; n > max {
			max = n
		}
	}
	return
}

// PeriodicPattern is the periodic-boundary analogue of P2PPattern. Every
// entry additionally carries the periodic marker index selecting the rigid
// transform applied in-flight. Send and recv entries for a counterpart rank
// are ordered identically (by marker, then by the receiver point's global
// index), so packing order on one side is unpacking order on the other.
type PeriodicPattern struct {
	SendRank   []int
	SendOffset []int
	SendPoint  []int // local donor point indices
	SendMarker []int
	RecvRank   []int
	RecvOffset []int
	RecvPoint  []int // local receiver point indices
	RecvMarker []int
}

func (p *PeriodicPattern) NSends() int { return len(p.SendRank) }
func (p *PeriodicPattern) NRecvs() int { return len(p.RecvRank) }

// Geometry is one partition's view of one multigrid level of one zone's
// mesh: owned points first, halo copies of off-partition neighbors after.
type Geometry struct {
	NDim         int
	NPointDomain int // owned
	NPoint       int // owned + halo
	MGLevel      int

	GlobalIndex []int
	Coords      []float64 // NPoint*NDim
	Volume      []float64
	Edges       [][2]int // local indices; at least one end owned
	Neighbors   [][]int

	// Periodic metadata
	NPeriodicMarkers int
	Transforms       []*Transform
	PointMarker      []int // periodic marker per point, -1 if none

	P2P      *P2PPattern
	Periodic *PeriodicPattern
}

func (g *Geometry) GetNPoint() int       { return g.NPoint }
func (g *Geometry) GetNPointDomain() int { return g.NPointDomain }
func (g *Geometry) GetNDim() int         { return g.NDim }

// Coord returns the iDim coordinate of local point iPoint.
func (g *Geometry) Coord(iPoint, iDim int) float64 {
	return g.Coords[iPoint*g.NDim+iDim]
}

// OnPeriodicBoundary reports whether the local point lies on any periodic
// marker; such neighbors are excluded from differencing accumulations to
// avoid double counting across the seam.
func (g *Geometry) OnPeriodicBoundary(iPoint int) bool {
	return g.PointMarker[iPoint] >= 0
}

// MarkerTransform returns the rigid transform of periodic marker iMarker.
func (g *Geometry) MarkerTransform(iMarker int) *Transform {
	if iMarker < 0 || iMarker >= len(g.Transforms) {
		panic(fmt.Errorf("MarkerTransform: periodic marker %d out of range [0,%d)",
			iMarker, len(g.Transforms)))
	}
	return g.Transforms[iMarker]
}

// IsSlaveMarker reports whether the periodic marker is the second face of
// its pair; the implicit periodic synchronization overwrites only slave
// points from their masters.
func (g *Geometry) IsSlaveMarker(iMarker int) bool {
	return iMarker >= g.NPeriodicMarkers/2
}

func (g *Geometry) buildNeighbors() {
	g.Neighbors = make([][]int, g.NPoint)
	for _, e := range g.Edges {
		g.Neighbors[e[0]] = append(g.Neighbors[e[0]], e[1])
		g.Neighbors[e[1]] = append(g.Neighbors[e[1]], e[0])
	}
}
