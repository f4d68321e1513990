package geometry

import (
	"sort"

	"github.com/notargets/mzflow/utils"
)

// Partition decomposes the global mesh into nRanks contiguous point ranges
// and builds, for every rank, the local geometry with halo points and both
// communication pattern tables. Rank r owns the global points in bucket r
// of a balanced 1D partition map.
func (m *Mesh) Partition(nRanks int) (geoms []*Geometry) {
	var (
		pm    = utils.NewPartitionMap(nRanks, m.NPoints)
		owner = make([]int, m.NPoints)
	)
	for g := 0; g < m.NPoints; g++ {
		owner[g], _, _ = pm.GetBucket(g)
	}

	// haloOf[r] collects the global indices rank r needs copies of,
	// i.e. off-rank ends of edges with one owned end.
	haloOf := make([]map[int]bool, nRanks)
	for r := range haloOf {
		haloOf[r] = make(map[int]bool)
	}
	for _, e := range m.Edges {
		ra, rb := owner[e[0]], owner[e[1]]
		if ra != rb {
			haloOf[ra][e[1]] = true
			haloOf[rb][e[0]] = true
		}
	}

	geoms = make([]*Geometry, nRanks)
	localOf := make([]map[int]int, nRanks) // global -> local per rank
	for r := 0; r < nRanks; r++ {
		geoms[r], localOf[r] = m.buildLocal(r, pm, owner, haloOf[r])
	}
	m.buildP2PPatterns(geoms, localOf, owner, haloOf)
	m.buildPeriodicPatterns(geoms, localOf, owner)
	return
}

func (m *Mesh) buildLocal(rank int, pm *utils.PartitionMap, owner []int,
	halo map[int]bool) (g *Geometry, local map[int]int) {
	var (
		min, max = pm.GetBucketRange(rank)
		nOwned   = max - min
	)
	haloList := make([]int, 0, len(halo))
	for gl := range halo {
		haloList = append(haloList, gl)
	}
	// Halo points ordered by (owning rank, global index) for determinism
	sort.Slice(haloList, func(i, j int) bool {
		if owner[haloList[i]] != owner[haloList[j]] {
			return owner[haloList[i]] < owner[haloList[j]]
		}
		return haloList[i] < haloList[j]
	})
	g = &Geometry{
		NDim:             m.NDim,
		NPointDomain:     nOwned,
		NPoint:           nOwned + len(haloList),
		NPeriodicMarkers: m.NPerMark,
		Transforms:       m.Transform,
	}
	local = make(map[int]int, g.NPoint)
	g.GlobalIndex = make([]int, g.NPoint)
	for i := 0; i < nOwned; i++ {
		g.GlobalIndex[i] = min + i
		local[min+i] = i
	}
	for i, gl := range haloList {
		g.GlobalIndex[nOwned+i] = gl
		local[gl] = nOwned + i
	}
	g.Coords = make([]float64, g.NPoint*m.NDim)
	g.Volume = make([]float64, g.NPoint)
	for i, gl := range g.GlobalIndex {
		copy(g.Coords[i*m.NDim:(i+1)*m.NDim], m.Coords[gl*m.NDim:(gl+1)*m.NDim])
		if m.Volume != nil {
			g.Volume[i] = m.Volume[gl]
		}
	}
	for _, e := range m.Edges {
		la, inA := local[e[0]]
		lb, inB := local[e[1]]
		if !inA || !inB {
			continue
		}
		if owner[e[0]] != rank && owner[e[1]] != rank {
			continue // halo-halo edges are assembled by their owners
		}
		g.Edges = append(g.Edges, [2]int{la, lb})
	}
	g.buildNeighbors()
	g.PointMarker = make([]int, g.NPoint)
	for i := range g.PointMarker {
		g.PointMarker[i] = -1
	}
	for _, pp := range m.Periodic {
		if l, ok := local[pp.PointA]; ok {
			g.PointMarker[l] = pp.Marker
		}
	}
	return
}

func (m *Mesh) buildP2PPatterns(geoms []*Geometry, localOf []map[int]int,
	owner []int, haloOf []map[int]bool) {
	nRanks := len(geoms)
	for r := 0; r < nRanks; r++ {
		p := &P2PPattern{SendOffset: []int{0}, RecvOffset: []int{0}}
		// Receives: this rank's halo points, grouped by owning rank. The
		// halo list is already ordered by (owner, global index).
		g := geoms[r]
		for i := g.NPointDomain; i < g.NPoint; i++ {
			src := owner[g.GlobalIndex[i]]
			if n := len(p.RecvRank); n == 0 || p.RecvRank[n-1] != src {
				p.RecvRank = append(p.RecvRank, src)
				p.RecvOffset = append(p.RecvOffset, p.RecvOffset[len(p.RecvOffset)-1])
			}
			p.RecvPoint = append(p.RecvPoint, i)
			p.RecvOffset[len(p.RecvOffset)-1]++
		}
		// Sends: for every other rank holding halo copies of this rank's
		// points, pack those points in ascending global order (matching
		// the receiver's halo ordering).
		for dst := 0; dst < nRanks; dst++ {
			if dst == r {
				continue
			}
			var sendGlobals []int
			for gl := range haloOf[dst] {
				if owner[gl] == r {
					sendGlobals = append(sendGlobals, gl)
				}
			}
			if len(sendGlobals) == 0 {
				continue
			}
			sort.Ints(sendGlobals)
			p.SendRank = append(p.SendRank, dst)
			for _, gl := range sendGlobals {
				p.SendPoint = append(p.SendPoint, localOf[r][gl])
			}
			p.SendOffset = append(p.SendOffset, len(p.SendPoint))
		}
		geoms[r].P2P = p
	}
}

type periodicEntry struct {
	marker       int
	globalA      int // receiver point, the ordering key
	donorLocal   int
	receiveLocal int
}

func (m *Mesh) buildPeriodicPatterns(geoms []*Geometry, localOf []map[int]int,
	owner []int) {
	nRanks := len(geoms)
	// sends[src][dst] and recvs[dst][src] hold matching entry lists.
	sends := make([]map[int][]periodicEntry, nRanks)
	recvs := make([]map[int][]periodicEntry, nRanks)
	for r := 0; r < nRanks; r++ {
		sends[r] = make(map[int][]periodicEntry)
		recvs[r] = make(map[int][]periodicEntry)
	}
	for _, pp := range m.Periodic {
		ra, rb := owner[pp.PointA], owner[pp.PointB]
		e := periodicEntry{marker: pp.Marker, globalA: pp.PointA}
		e.donorLocal = localOf[rb][pp.PointB]
		e.receiveLocal = localOf[ra][pp.PointA]
		sends[rb][ra] = append(sends[rb][ra], e)
		recvs[ra][rb] = append(recvs[ra][rb], e)
	}
	orderEntries := func(es []periodicEntry) {
		sort.Slice(es, func(i, j int) bool {
			if es[i].marker != es[j].marker {
				return es[i].marker < es[j].marker
			}
			return es[i].globalA < es[j].globalA
		})
	}
	for r := 0; r < nRanks; r++ {
		p := &PeriodicPattern{SendOffset: []int{0}, RecvOffset: []int{0}}
		for dst := 0; dst < nRanks; dst++ {
			es := sends[r][dst]
			if len(es) == 0 {
				continue
			}
			orderEntries(es)
			p.SendRank = append(p.SendRank, dst)
			for _, e := range es {
				p.SendPoint = append(p.SendPoint, e.donorLocal)
				p.SendMarker = append(p.SendMarker, e.marker)
			}
			p.SendOffset = append(p.SendOffset, len(p.SendPoint))
		}
		for src := 0; src < nRanks; src++ {
			es := recvs[r][src]
			if len(es) == 0 {
				continue
			}
			orderEntries(es)
			p.RecvRank = append(p.RecvRank, src)
			for _, e := range es {
				p.RecvPoint = append(p.RecvPoint, e.receiveLocal)
				p.RecvMarker = append(p.RecvMarker, e.marker)
			}
			p.RecvOffset = append(p.RecvOffset, len(p.RecvPoint))
		}
		geoms[r].Periodic = p
	}
}
