package geometry

// NewDummyGeometry builds the stand-in geometry used for dry runs: a
// handful of points, no halo, empty communication patterns. It lets the
// full driver construction and teardown protocol execute without a mesh.
func NewDummyGeometry(nDim int) (g *Geometry) {
	const nPoints = 8
	g = &Geometry{
		NDim:         nDim,
		NPointDomain: nPoints,
		NPoint:       nPoints,
		GlobalIndex:  make([]int, nPoints),
		Coords:       make([]float64, nPoints*nDim),
		Volume:       make([]float64, nPoints),
		PointMarker:  make([]int, nPoints),
		P2P:          &P2PPattern{SendOffset: []int{0}, RecvOffset: []int{0}},
		Periodic:     &PeriodicPattern{SendOffset: []int{0}, RecvOffset: []int{0}},
	}
	for i := 0; i < nPoints; i++ {
		g.GlobalIndex[i] = i
		g.Coords[i*nDim] = float64(i)
		g.Volume[i] = 1
		g.PointMarker[i] = -1
	}
	for i := 0; i+1 < nPoints; i++ {
		g.Edges = append(g.Edges, [2]int{i, i + 1})
	}
	g.buildNeighbors()
	return
}
