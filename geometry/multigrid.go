package geometry

import "sort"

// minCoarsePoints is the agglomeration floor: a coarse level smaller than
// this cannot support a useful smoothing pass and is not built.
const minCoarsePoints = 4

// Coarsen agglomerates point pairs along edges (greedy, ascending index) to
// produce the next multigrid level, returning ok=false when the mesh is too
// small to coarsen further. Periodic pairs survive only when both faces map
// onto distinct coarse points.
func (m *Mesh) Coarsen() (coarse *Mesh, parent []int, ok bool) {
	if m.NPoints < 2*minCoarsePoints {
		return nil, nil, false
	}
	var (
		merged = make([]int, m.NPoints) // coarse index per fine point, -1 pending
		adj    = m.adjacency()
		nc     int
	)
	for i := range merged {
		merged[i] = -1
	}
	for p := 0; p < m.NPoints; p++ {
		if merged[p] >= 0 {
			continue
		}
		merged[p] = nc
		for _, q := range adj[p] {
			if merged[q] < 0 {
				merged[q] = nc
				break
			}
		}
		nc++
	}
	if nc >= m.NPoints || nc < minCoarsePoints {
		return nil, nil, false
	}
	coarse = &Mesh{
		NDim:      m.NDim,
		NPoints:   nc,
		Coords:    make([]float64, nc*m.NDim),
		Volume:    make([]float64, nc),
		NPerMark:  m.NPerMark,
		Transform: m.Transform,
	}
	counts := make([]int, nc)
	for p := 0; p < m.NPoints; p++ {
		c := merged[p]
		counts[c]++
		for d := 0; d < m.NDim; d++ {
			coarse.Coords[c*m.NDim+d] += m.Coords[p*m.NDim+d]
		}
		if m.Volume != nil {
			coarse.Volume[c] += m.Volume[p]
		}
	}
	for c := 0; c < nc; c++ {
		for d := 0; d < m.NDim; d++ {
			coarse.Coords[c*m.NDim+d] /= float64(counts[c])
		}
	}
	// Induced edges, deduplicated
	seen := make(map[[2]int]bool)
	for _, e := range m.Edges {
		a, b := merged[e[0]], merged[e[1]]
		if a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		if !seen[[2]int{a, b}] {
			seen[[2]int{a, b}] = true
			coarse.Edges = append(coarse.Edges, [2]int{a, b})
		}
	}
	sort.Slice(coarse.Edges, func(i, j int) bool {
		if coarse.Edges[i][0] != coarse.Edges[j][0] {
			return coarse.Edges[i][0] < coarse.Edges[j][0]
		}
		return coarse.Edges[i][1] < coarse.Edges[j][1]
	})
	for _, mk := range m.Markers {
		cm := MeshMarker{Name: mk.Name}
		dup := make(map[int]bool)
		for _, p := range mk.Points {
			if c := merged[p]; !dup[c] {
				dup[c] = true
				cm.Points = append(cm.Points, c)
			}
		}
		coarse.Markers = append(coarse.Markers, cm)
	}
	dupPer := make(map[[2]int]bool)
	for _, pp := range m.Periodic {
		a, b := merged[pp.PointA], merged[pp.PointB]
		if a == b || dupPer[[2]int{pp.Marker, a}] {
			continue
		}
		dupPer[[2]int{pp.Marker, a}] = true
		coarse.Periodic = append(coarse.Periodic,
			PeriodicPair{Marker: pp.Marker, PointA: a, PointB: b})
	}
	return coarse, merged, true
}

// Hierarchy is a partitioned multigrid level stack. Levels[l][r] is rank
// r's view of level l; Parent[l][r][i] is the rank-local coarse point
// containing fine local point i on the next level, or -1 when the coarse
// point landed outside rank r's extended (owned+halo) set.
type Hierarchy struct {
	Levels [][]*Geometry
	Parent [][][]int
}

// NLevels is the effective level count. A configured depth the
// agglomeration could not reach is simply absent.
func (h *Hierarchy) NLevels() int { return len(h.Levels) }

// BuildMGHierarchy builds up to nLevels+1 mesh levels (level 0 is the fine
// mesh) and partitions each across nRanks. If agglomeration cannot produce
// a requested level the hierarchy is silently truncated; callers read the
// effective level count from the result.
func BuildMGHierarchy(m *Mesh, nLevels, nRanks int) (h *Hierarchy) {
	h = &Hierarchy{}
	h.Levels = append(h.Levels, m.Partition(nRanks))
	fine := m
	for lvl := 1; lvl <= nLevels; lvl++ {
		coarse, parent, ok := fine.Coarsen()
		if !ok {
			break
		}
		geoms := coarse.Partition(nRanks)
		for _, g := range geoms {
			g.MGLevel = lvl
		}
		h.Parent = append(h.Parent,
			localParentMaps(h.Levels[lvl-1], geoms, parent))
		h.Levels = append(h.Levels, geoms)
		fine = coarse
	}
	return
}

// localParentMaps rewrites the global fine→coarse map into rank-local
// indices on both sides.
func localParentMaps(fine, coarse []*Geometry, parent []int) (local [][]int) {
	local = make([][]int, len(fine))
	for r := range fine {
		coarseLocal := make(map[int]int, coarse[r].NPoint)
		for i, g := range coarse[r].GlobalIndex {
			coarseLocal[g] = i
		}
		local[r] = make([]int, fine[r].NPoint)
		for i, g := range fine[r].GlobalIndex {
			if c, ok := coarseLocal[parent[g]]; ok {
				local[r][i] = c
			} else {
				local[r][i] = -1
			}
		}
	}
	return
}
