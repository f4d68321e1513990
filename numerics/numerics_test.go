package numerics

import (
	"testing"

	"github.com/notargets/mzflow/types"
	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	{ // Test worker replication: one instance per worker, never shared
		reg := NewRegistry(2, 3)
		reg.Register(0, types.FlowSlot, ConvTerm, func() Numerics {
			return &ScalarUpwind{Wave: 1}
		})
		assert.Equal(t, 1, reg.NRegistered())
		var seen []Numerics
		for w := 0; w < 3; w++ {
			n := reg.Get(0, types.FlowSlot, ConvTerm, &WorkerContext{Worker: w})
			assert.NotNil(t, n)
			for _, prev := range seen {
				assert.False(t, prev == n)
			}
			seen = append(seen, n)
		}
	}
	{ // Test unoccupied slots return nil and Clear empties the arena
		reg := NewRegistry(1, 2)
		ctx := &WorkerContext{Worker: 0}
		assert.Nil(t, reg.Get(0, types.TurbSlot, ViscTerm, ctx))
		reg.Register(0, types.TurbSlot, ViscTerm, func() Numerics { return NullSource{} })
		assert.NotNil(t, reg.Get(0, types.TurbSlot, ViscTerm, ctx))
		reg.Clear()
		assert.Nil(t, reg.Get(0, types.TurbSlot, ViscTerm, ctx))
		assert.Equal(t, 0, reg.NRegistered())
	}
}

func TestSchemes(t *testing.T) {
	normal := []float64{3, 4} // area 5
	{ // Test upwind takes the left state for a positive wave
		var (
			s    = &ScalarUpwind{Wave: 2}
			flux = make([]float64, 1)
		)
		s.ComputeResidual([]float64{1.5}, []float64{-7}, normal, flux)
		assert.InDelta(t, 2*5*1.5, flux[0], 1.e-12)
	}
	{ // Test upwind takes the right state for a negative wave
		var (
			s    = &ScalarUpwind{Wave: -2}
			flux = make([]float64, 1)
		)
		s.ComputeResidual([]float64{1.5}, []float64{-7}, normal, flux)
		assert.InDelta(t, -2*5*-7, flux[0], 1.e-12)
	}
	{ // Test centered flux is the average plus dissipation
		var (
			s    = &ScalarCentered{Wave: 1, Eps: 0.5}
			flux = make([]float64, 1)
		)
		s.ComputeResidual([]float64{2}, []float64{4}, normal, flux)
		assert.InDelta(t, 0.5*5*6-0.5*2, flux[0], 1.e-12)
	}
	{ // Test the null source contributes nothing
		flux := []float64{9, 9}
		NullSource{}.ComputeResidual(nil, nil, nil, flux)
		assert.Equal(t, []float64{0, 0}, flux)
	}
}
