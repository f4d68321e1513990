package geometry

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransform(t *testing.T) {
	{ // Test 90 degree rotation about z
		tr := NewTransform([3]float64{}, [3]float64{0, 0, 90}, [3]float64{})
		v := []float64{1, 0}
		tr.RotateVector(v, 2)
		assert.InDelta(t, 0, v[0], 1.e-14)
		assert.InDelta(t, -1, v[1], 1.e-14)
	}
	{ // Test inverse undoes the rotation
		tr := NewTransform([3]float64{}, [3]float64{10, 20, 30}, [3]float64{1, 2, 3})
		ti := tr.Inverse()
		v := []float64{0.3, -0.7, 1.1}
		want := append([]float64(nil), v...)
		tr.RotateVector(v, 3)
		ti.RotateVector(v, 3)
		for i := range v {
			assert.InDelta(t, want[i], v[i], 1.e-14)
		}
	}
	{ // Test point map: rotate about center, then translate
		tr := NewTransform([3]float64{1, 1, 0}, [3]float64{0, 0, 90}, [3]float64{5, 0, 0})
		x := []float64{2, 1}
		tr.ApplyToPoint(x, 2)
		assert.InDelta(t, 6, x[0], 1.e-14) // rotates to (1,0), shifts center+trans
		assert.InDelta(t, 0, x[1], 1.e-14)
	}
	{ // Test identity
		v := []float64{3, 4, 5}
		Identity().RotateVector(v, 3)
		assert.Equal(t, []float64{3, 4, 5}, v)
	}
}

func TestReorderRCM(t *testing.T) {
	{ // Test permutation validity and edge preservation
		m := NewBoxMesh(5, 5)
		nEdges := len(m.Edges)
		sumVol := 0.
		for _, v := range m.Volume {
			sumVol += v
		}
		perm := m.ReorderRCM()
		assert.Equal(t, m.NPoints, len(perm))
		seen := make([]bool, m.NPoints)
		for _, p := range perm {
			assert.False(t, seen[p])
			seen[p] = true
		}
		assert.Equal(t, nEdges, len(m.Edges))
		got := 0.
		for _, v := range m.Volume {
			got += v
		}
		assert.Equal(t, sumVol, got)
	}
	{ // Test bandwidth does not grow on a chain mesh
		m := NewLineMesh(16, false)
		bandwidth := func(m *Mesh) (bw int) {
			for _, e := range m.Edges {
				d := e[0] - e[1]
				if d < 0 {
					d = -d
				}
				if d > bw {
					bw = d
				}
			}
			return
		}
		before := bandwidth(m)
		m.ReorderRCM()
		assert.True(t, bandwidth(m) <= before)
	}
}

func TestPartition(t *testing.T) {
	{ // Test owned point counts and halo consistency
		m := NewBoxMesh(6, 6)
		geoms := m.Partition(3)
		nOwned := 0
		for _, g := range geoms {
			nOwned += g.NPointDomain
			assert.True(t, g.NPoint >= g.NPointDomain)
		}
		assert.Equal(t, m.NPoints, nOwned)
	}
	{ // Test send/recv tables are mirror images between rank pairs
		m := NewBoxMesh(6, 6)
		geoms := m.Partition(2)
		p0, p1 := geoms[0].P2P, geoms[1].P2P
		assert.Equal(t, p0.NSends(), p1.NRecvs())
		assert.Equal(t, p0.NRecvs(), p1.NSends())
		// Message lengths agree pairwise
		for i := range p0.SendRank {
			assert.Equal(t, 1, p0.SendRank[i])
			sendLen := p0.SendOffset[i+1] - p0.SendOffset[i]
			recvLen := p1.RecvOffset[i+1] - p1.RecvOffset[i]
			assert.Equal(t, sendLen, recvLen)
		}
		// Global identity of packed points matches the receiver's halo order
		for i := range p0.SendRank {
			for k := p0.SendOffset[i]; k < p0.SendOffset[i+1]; k++ {
				sendGlobal := geoms[0].GlobalIndex[p0.SendPoint[k]]
				recvGlobal := geoms[1].GlobalIndex[p1.RecvPoint[k]]
				assert.Equal(t, sendGlobal, recvGlobal)
			}
		}
	}
	{ // Test halo points carry owner coordinates
		m := NewBoxMesh(4, 4)
		for _, g := range m.Partition(2) {
			for i := 0; i < g.NPoint; i++ {
				gl := g.GlobalIndex[i]
				for d := 0; d < g.NDim; d++ {
					assert.Equal(t, m.Coords[gl*g.NDim+d], g.Coord(i, d))
				}
			}
		}
	}
	{ // Test periodic pattern symmetry on a closed line
		m := NewLineMesh(10, true)
		geoms := m.Partition(2)
		nSent, nRecv := 0, 0
		for _, g := range geoms {
			nSent += len(g.Periodic.SendPoint)
			nRecv += len(g.Periodic.RecvPoint)
		}
		assert.Equal(t, len(m.Periodic), nSent)
		assert.Equal(t, nSent, nRecv)
		// Receive points are owned, markers tagged on both faces
		for _, g := range geoms {
			for _, p := range g.Periodic.RecvPoint {
				assert.True(t, p < g.NPointDomain)
				assert.True(t, g.OnPeriodicBoundary(p))
			}
		}
	}
	{ // Test slave marker split
		m := NewLineMesh(10, true)
		g := m.Partition(1)[0]
		assert.False(t, g.IsSlaveMarker(0))
		assert.True(t, g.IsSlaveMarker(1))
	}
}

func TestMultigrid(t *testing.T) {
	{ // Test coarsening conserves total volume
		m := NewBoxMesh(8, 8)
		coarse, parent, ok := m.Coarsen()
		assert.True(t, ok)
		assert.True(t, coarse.NPoints < m.NPoints)
		assert.Equal(t, m.NPoints, len(parent))
		fineVol, coarseVol := 0., 0.
		for _, v := range m.Volume {
			fineVol += v
		}
		for _, v := range coarse.Volume {
			coarseVol += v
		}
		assert.InDelta(t, fineVol, coarseVol, 1.e-12)
		for _, p := range parent {
			assert.True(t, p >= 0 && p < coarse.NPoints)
		}
	}
	{ // Test tiny meshes refuse to coarsen
		m := NewLineMesh(4, false)
		_, _, ok := m.Coarsen()
		assert.False(t, ok)
	}
	{ // Test hierarchy truncates silently when agglomeration bottoms out
		m := NewLineMesh(16, false)
		h := BuildMGHierarchy(m, 10, 2)
		assert.True(t, h.NLevels() < 11)
		assert.True(t, h.NLevels() >= 2)
		assert.Equal(t, h.NLevels()-1, len(h.Parent))
		// Every level is partitioned across both ranks
		for _, lvl := range h.Levels {
			assert.Equal(t, 2, len(lvl))
		}
	}
	{ // Test local parent maps address valid coarse points or -1
		m := NewBoxMesh(8, 8)
		h := BuildMGHierarchy(m, 2, 2)
		for l := 0; l+1 < h.NLevels(); l++ {
			for r := 0; r < 2; r++ {
				fine, coarse := h.Levels[l][r], h.Levels[l+1][r]
				assert.Equal(t, fine.NPoint, len(h.Parent[l][r]))
				ownedWithParent := 0
				for i, c := range h.Parent[l][r] {
					assert.True(t, c >= -1 && c < coarse.NPoint)
					if i < fine.NPointDomain && c >= 0 {
						ownedWithParent++
					}
				}
				// Owned fine points overwhelmingly resolve to local parents
				assert.True(t, ownedWithParent > 0)
			}
		}
	}
}

func TestReadSU2Mesh(t *testing.T) {
	meshText := `% test square, two triangles
NDIME= 2
NELEM= 2
5 0 1 2 0
5 0 2 3 1
NPOIN= 4
0.0 0.0 0
1.0 0.0 1
1.0 1.0 2
0.0 1.0 3
NMARK= 2
MARKER_TAG= lower
MARKER_ELEMS= 1
3 0 1
MARKER_TAG= left
MARKER_ELEMS= 1
3 0 3
`
	{ // Test triangle mesh load
		fn := filepath.Join(t.TempDir(), "square.su2")
		assert.NoError(t, os.WriteFile(fn, []byte(meshText), 0644))
		m, err := ReadSU2Mesh(fn)
		assert.NoError(t, err)
		assert.Equal(t, 2, m.NDim)
		assert.Equal(t, 4, m.NPoints)
		// Two triangles sharing diagonal 0-2: 5 unique edges
		assert.Equal(t, 5, len(m.Edges))
		assert.Equal(t, 1., m.Coords[2*2]) // point 2 is (1,1)
		assert.Equal(t, 1., m.Coords[2*2+1])
		assert.Equal(t, 2, len(m.Markers))
		assert.Equal(t, "lower", m.Markers[0].Name)
		assert.Equal(t, []int{0, 1}, m.Markers[0].Points)
		assert.Equal(t, []int{0, 3}, m.Markers[1].Points)
	}
	{ // Test 3D meshes are rejected
		fn := filepath.Join(t.TempDir(), "bad.su2")
		assert.NoError(t, os.WriteFile(fn, []byte("NDIME= 3\n"), 0644))
		_, err := ReadSU2Mesh(fn)
		assert.Error(t, err)
	}
	{ // Test missing file reports an error rather than panicking
		_, err := ReadSU2Mesh("no-such-mesh.su2")
		assert.Error(t, err)
	}
	{ // Test malformed element section surfaces as an error
		fn := filepath.Join(t.TempDir(), "broken.su2")
		body := "NDIME= 2\nNELEM= 1\n17 0 1 2 0\n"
		assert.NoError(t, os.WriteFile(fn, []byte(body), 0644))
		_, err := ReadSU2Mesh(fn)
		assert.Error(t, err)
	}
}

func TestMakePeriodicY(t *testing.T) {
	{ // Test box pairing of y extremes
		m := NewBoxMesh(4, 3)
		m.MakePeriodicY(3)
		assert.Equal(t, 2, m.NPerMark)
		assert.Equal(t, 8, len(m.Periodic)) // 4 pairs each direction
		for _, pp := range m.Periodic {
			ya := m.Coords[2*pp.PointA+1]
			yb := m.Coords[2*pp.PointB+1]
			assert.Equal(t, 2., math.Abs(ya-yb))
		}
	}
}
