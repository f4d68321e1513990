package output

import (
	"path/filepath"
	"testing"

	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/restart"
	"github.com/notargets/mzflow/solver"
	"github.com/notargets/mzflow/types"
	"github.com/stretchr/testify/assert"
)

func flowFixture() (*config.Zone, *geometry.Geometry, *solver.Flow) {
	z := &config.Zone{Solver: "EULER"}
	z.Finalize()
	g := geometry.NewBoxMesh(3, 3).Partition(1)[0]
	s := solver.NewFlow(z, g, comms.NewGroup(1)[0])
	s.SetInitialCondition()
	return z, g, s
}

func TestHistory(t *testing.T) {
	{ // Test only rank 0 prints
		z, _, s := flowFixture()
		c := &solver.Container{}
		c[types.FlowSlot] = s
		h := NewHistory(1, 0, z)
		h.Write(0, c)
		assert.False(t, h.header)
	}
	{ // Test the header prints once on the first line
		z, _, s := flowFixture()
		c := &solver.Container{}
		c[types.FlowSlot] = s
		h := NewHistory(0, 0, z)
		h.Write(0, c)
		assert.True(t, h.header)
		h.Write(1, c)
		assert.True(t, h.header)
	}
}

func TestVolumeFields(t *testing.T) {
	{ // Test record layout: coordinates first, then the conservative state
		_, g, s := flowFixture()
		rec := VolumeFields(s)
		assert.Equal(t, []string{"x", "y",
			"Conservative_1", "Conservative_2", "Conservative_3", "Conservative_4"},
			rec.Fields)
		assert.Equal(t, g.NPointDomain, rec.NPoints())
		nCol := len(rec.Fields)
		nVar := s.NVar()
		for i := 0; i < g.NPointDomain; i++ {
			assert.Equal(t, g.Coord(i, 0), rec.Data[i*nCol])
			assert.Equal(t, g.Coord(i, 1), rec.Data[i*nCol+1])
			for v := 0; v < nVar; v++ {
				assert.Equal(t, s.F.Sol[i*nVar+v], rec.Data[i*nCol+2+v])
			}
		}
	}
	{ // Test the volume write round trip through the binary framing
		_, g, s := flowFixture()
		fn := filepath.Join(t.TempDir(), "volume.dat")
		assert.NoError(t, WriteVolume(fn, s, 7, true))
		got, err := restart.Read(fn, true)
		assert.NoError(t, err)
		assert.Equal(t, 7, got.Iter)
		assert.Equal(t, g.NPointDomain, got.NPoints())
		assert.Equal(t, VolumeFields(s).Data, got.Data)
	}
}
