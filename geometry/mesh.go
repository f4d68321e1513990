package geometry

import (
	"fmt"
	"sort"
)

// MeshMarker is a named boundary point set on the global mesh.
type MeshMarker struct {
	Name   string
	Points []int // global point indices
}

// PeriodicPair records one precomputed point correspondence across a
// periodic marker pair: PointA on marker Marker matches PointB (its donor)
// on the complementary marker after the marker's rigid transform.
type PeriodicPair struct {
	Marker int
	PointA int
	PointB int
}

// Mesh is the global (pre-partitioning) mesh description handed to the
// driver by the mesh provider: points, the edge graph of the dual mesh,
// boundary markers, and periodic correspondences. Element connectivity and
// control-volume metrics are resolved by the provider; the core only needs
// the point/edge view.
type Mesh struct {
	NDim      int
	NPoints   int
	Coords    []float64 // NPoints*NDim
	Volume    []float64 // dual control volume per point
	Edges     [][2]int
	Markers   []MeshMarker
	Periodic  []PeriodicPair
	NPerMark  int // number of periodic markers; pair (i, i+NPerMark/2)
	Transform []*Transform
}

// adjacency builds the point adjacency lists from the edge graph.
func (m *Mesh) adjacency() (adj [][]int) {
	adj = make([][]int, m.NPoints)
	for _, e := range m.Edges {
		adj[e[0]] = append(adj[e[0]], e[1])
		adj[e[1]] = append(adj[e[1]], e[0])
	}
	for i := range adj {
		sort.Ints(adj[i])
	}
	return
}

// ReorderRCM renumbers the mesh points with the Reverse-Cuthill-McKee
// ordering to reduce the matrix bandwidth of edge-based assembly. Returns
// the permutation perm where perm[old] = new.
func (m *Mesh) ReorderRCM() (perm []int) {
	var (
		adj     = m.adjacency()
		visited = make([]bool, m.NPoints)
		order   = make([]int, 0, m.NPoints)
	)
	degree := func(p int) int { return len(adj[p]) }
	for len(order) < m.NPoints {
		// Seed each component with its minimum-degree unvisited point
		seed, seedDeg := -1, m.NPoints+1
		for p := 0; p < m.NPoints; p++ {
			if !visited[p] && degree(p) < seedDeg {
				seed, seedDeg = p, degree(p)
			}
		}
		queue := []int{seed}
		visited[seed] = true
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			order = append(order, p)
			nbrs := make([]int, 0, len(adj[p]))
			for _, q := range adj[p] {
				if !visited[q] {
					visited[q] = true
					nbrs = append(nbrs, q)
				}
			}
			sort.Slice(nbrs, func(i, j int) bool { return degree(nbrs[i]) < degree(nbrs[j]) })
			queue = append(queue, nbrs...)
		}
	}
	// Reverse the Cuthill-McKee order
	perm = make([]int, m.NPoints)
	for newIdx, old := range order {
		perm[old] = m.NPoints - 1 - newIdx
	}
	m.applyPermutation(perm)
	return
}

func (m *Mesh) applyPermutation(perm []int) {
	var (
		coords = make([]float64, len(m.Coords))
		volume []float64
	)
	if m.Volume != nil {
		volume = make([]float64, len(m.Volume))
	}
	for old := 0; old < m.NPoints; old++ {
		copy(coords[perm[old]*m.NDim:(perm[old]+1)*m.NDim],
			m.Coords[old*m.NDim:(old+1)*m.NDim])
		if volume != nil {
			volume[perm[old]] = m.Volume[old]
		}
	}
	m.Coords = coords
	if volume != nil {
		m.Volume = volume
	}
	for i := range m.Edges {
		m.Edges[i][0] = perm[m.Edges[i][0]]
		m.Edges[i][1] = perm[m.Edges[i][1]]
	}
	for i := range m.Markers {
		for j := range m.Markers[i].Points {
			m.Markers[i].Points[j] = perm[m.Markers[i].Points[j]]
		}
	}
	for i := range m.Periodic {
		m.Periodic[i].PointA = perm[m.Periodic[i].PointA]
		m.Periodic[i].PointB = perm[m.Periodic[i].PointB]
	}
}

// NewLineMesh builds a 1D chain of nPoints unit-spaced points, optionally
// closed periodically through marker pair (0, 1). Useful for dry runs and
// as the smallest mesh that exercises every communication path.
func NewLineMesh(nPoints int, periodic bool) (m *Mesh) {
	if nPoints < 2 {
		panic(fmt.Errorf("NewLineMesh: need at least 2 points, have %d", nPoints))
	}
	m = &Mesh{
		NDim:    1,
		NPoints: nPoints,
		Coords:  make([]float64, nPoints),
		Volume:  make([]float64, nPoints),
	}
	for i := 0; i < nPoints; i++ {
		m.Coords[i] = float64(i)
		m.Volume[i] = 1
	}
	for i := 0; i+1 < nPoints; i++ {
		m.Edges = append(m.Edges, [2]int{i, i + 1})
	}
	m.Markers = []MeshMarker{
		{Name: "left", Points: []int{0}},
		{Name: "right", Points: []int{nPoints - 1}},
	}
	if periodic {
		m.NPerMark = 2
		m.Transform = []*Transform{
			NewTransform([3]float64{}, [3]float64{}, [3]float64{float64(nPoints), 0, 0}),
			NewTransform([3]float64{}, [3]float64{}, [3]float64{-float64(nPoints), 0, 0}),
		}
		m.Periodic = []PeriodicPair{
			{Marker: 0, PointA: 0, PointB: nPoints - 1},
			{Marker: 1, PointA: nPoints - 1, PointB: 0},
		}
	}
	return
}

// NewBoxMesh builds an nx x ny structured quad mesh with unit spacing.
// Marker layout: 0=xmin, 1=xmax, 2=ymin, 3=ymax.
func NewBoxMesh(nx, ny int) (m *Mesh) {
	if nx < 2 || ny < 2 {
		panic(fmt.Errorf("NewBoxMesh: need at least 2x2 points, have %dx%d", nx, ny))
	}
	m = &Mesh{
		NDim:    2,
		NPoints: nx * ny,
		Coords:  make([]float64, 2*nx*ny),
		Volume:  make([]float64, nx*ny),
	}
	id := func(i, j int) int { return i + nx*j }
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			m.Coords[2*id(i, j)] = float64(i)
			m.Coords[2*id(i, j)+1] = float64(j)
			m.Volume[id(i, j)] = 1
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			if i+1 < nx {
				m.Edges = append(m.Edges, [2]int{id(i, j), id(i + 1, j)})
			}
			if j+1 < ny {
				m.Edges = append(m.Edges, [2]int{id(i, j), id(i, j + 1)})
			}
		}
	}
	var xmin, xmax, ymin, ymax []int
	for j := 0; j < ny; j++ {
		xmin = append(xmin, id(0, j))
		xmax = append(xmax, id(nx-1, j))
	}
	for i := 0; i < nx; i++ {
		ymin = append(ymin, id(i, 0))
		ymax = append(ymax, id(i, ny-1))
	}
	m.Markers = []MeshMarker{
		{Name: "xmin", Points: xmin},
		{Name: "xmax", Points: xmax},
		{Name: "ymin", Points: ymin},
		{Name: "ymax", Points: ymax},
	}
	return
}

// MakePeriodicY closes a box mesh periodically in y through marker pair
// (ymin, ymax), with translation ty mapping ymin onto ymax.
func (m *Mesh) MakePeriodicY(ty float64) {
	var ymin, ymax *MeshMarker
	for i := range m.Markers {
		switch m.Markers[i].Name {
		case "ymin":
			ymin = &m.Markers[i]
		case "ymax":
			ymax = &m.Markers[i]
		}
	}
	if ymin == nil || ymax == nil || len(ymin.Points) != len(ymax.Points) {
		panic(fmt.Errorf("MakePeriodicY: mesh has no matching ymin/ymax markers"))
	}
	m.NPerMark = 2
	m.Transform = []*Transform{
		NewTransform([3]float64{}, [3]float64{}, [3]float64{0, ty, 0}),
		NewTransform([3]float64{}, [3]float64{}, [3]float64{0, -ty, 0}),
	}
	for i := range ymin.Points {
		m.Periodic = append(m.Periodic,
			PeriodicPair{Marker: 0, PointA: ymin.Points[i], PointB: ymax.Points[i]},
			PeriodicPair{Marker: 1, PointA: ymax.Points[i], PointB: ymin.Points[i]})
	}
}
