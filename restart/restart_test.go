package restart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/mzflow/geometry"
	"github.com/stretchr/testify/assert"
)

func sampleRecord() *Record {
	return &Record{
		Fields: []string{"x", "y", "Conservative_0", "Conservative_1"},
		Data: []float64{
			0, 0, 1.25, -3.5,
			1, 0, 2.25, 0.125,
			0, 1, 3.25, 1.e-12,
		},
		Iter: 42,
	}
}

func TestReadWrite(t *testing.T) {
	{ // Test ASCII round trip
		fn := filepath.Join(t.TempDir(), "restart.csv")
		rec := sampleRecord()
		assert.NoError(t, Write(fn, rec, false))
		got, err := Read(fn, false)
		assert.NoError(t, err)
		assert.Equal(t, rec.Fields, got.Fields)
		assert.Equal(t, 3, got.NPoints())
		for i := range rec.Data {
			assert.InDelta(t, rec.Data[i], got.Data[i], 1.e-18)
		}
	}
	{ // Test binary round trip preserves data exactly and the iteration
		fn := filepath.Join(t.TempDir(), "restart.dat")
		rec := sampleRecord()
		assert.NoError(t, Write(fn, rec, true))
		got, err := Read(fn, true)
		assert.NoError(t, err)
		assert.Equal(t, rec.Fields, got.Fields)
		assert.Equal(t, rec.Data, got.Data)
		assert.Equal(t, 42, got.Iter)
	}
	{ // Test binary file opened as ASCII is rejected
		fn := filepath.Join(t.TempDir(), "restart.dat")
		assert.NoError(t, Write(fn, sampleRecord(), true))
		_, err := Read(fn, false)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "binary file opened as ASCII")
	}
	{ // Test ASCII file opened as binary is rejected
		fn := filepath.Join(t.TempDir(), "restart.csv")
		assert.NoError(t, Write(fn, sampleRecord(), false))
		_, err := Read(fn, true)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ASCII file opened as binary")
	}
	{ // Test ragged ASCII rows are rejected
		fn := filepath.Join(t.TempDir(), "bad.csv")
		body := "\"x\",\"Conservative_0\"\n0.0,1.0\n0.5\n"
		assert.NoError(t, os.WriteFile(fn, []byte(body), 0644))
		_, err := Read(fn, false)
		assert.Error(t, err)
	}
	{ // Test empty file
		fn := filepath.Join(t.TempDir(), "empty.csv")
		assert.NoError(t, os.WriteFile(fn, nil, 0644))
		_, err := Read(fn, false)
		assert.Error(t, err)
	}
	{ // Test field names longer than the fixed record are truncated, not corrupted
		fn := filepath.Join(t.TempDir(), "long.dat")
		long := "Conservative_with_a_very_long_field_name_indeed"
		rec := &Record{Fields: []string{long}, Data: []float64{1, 2}}
		assert.NoError(t, Write(fn, rec, true))
		got, err := Read(fn, true)
		assert.NoError(t, err)
		assert.Equal(t, long[:fieldNameLen-1], got.Fields[0])
		assert.Equal(t, []float64{1, 2}, got.Data)
	}
}

func TestScatter(t *testing.T) {
	{ // Test coordinate columns are skipped and global indices resolved
		rec := sampleRecord()
		out := make([]float64, 2*2)
		assert.NoError(t, rec.Scatter([]int{2, 0}, 2, out))
		assert.Equal(t, []float64{3.25, 1.e-12, 1.25, -3.5}, out)
	}
	{ // Test too few solution fields
		rec := sampleRecord()
		out := make([]float64, 2*3)
		assert.Error(t, rec.Scatter([]int{0, 1}, 3, out))
	}
	{ // Test out-of-table global index
		rec := sampleRecord()
		out := make([]float64, 2)
		assert.Error(t, rec.Scatter([]int{5}, 2, out))
	}
}

func TestInletProfile(t *testing.T) {
	writeProfile := func(t *testing.T) string {
		fn := filepath.Join(t.TempDir(), "inlet.csv")
		rec := &Record{
			Fields: []string{"x", "y", "Density", "Velocity"},
			Data: []float64{
				0, 0, 1.0, 0.5,
				1, 0, 1.1, 0.6,
			},
		}
		assert.NoError(t, Write(fn, rec, false))
		return fn
	}
	{ // Test load and state access
		p, err := ReadInletProfile(writeProfile(t), 2)
		assert.NoError(t, err)
		assert.Equal(t, 2, p.NPoints())
		assert.Equal(t, []float64{1.1, 0.6}, p.State(1))
	}
	{ // Test matching against mesh points within tolerance
		p, err := ReadInletProfile(writeProfile(t), 2)
		assert.NoError(t, err)
		m := geometry.NewBoxMesh(3, 3)
		g := m.Partition(1)[0]
		assert.True(t, p.Matches(0, g, 1.e-6))  // (0,0) is a mesh point
		assert.True(t, p.Matches(1, g, 1.e-6))  // (1,0) is a mesh point
		assert.False(t, p.Matches(0, &geometry.Geometry{}, 1.e-6))
	}
	{ // Test a profile with only coordinates is rejected
		fn := filepath.Join(t.TempDir(), "coords.csv")
		rec := &Record{Fields: []string{"x", "y"}, Data: []float64{0, 0}}
		assert.NoError(t, Write(fn, rec, false))
		_, err := ReadInletProfile(fn, 2)
		assert.Error(t, err)
	}
}
