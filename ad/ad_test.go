package ad

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTape(t *testing.T) {
	{ // Test adjoint of f = (a+b)*a, df/da = 2a+b, df/db = a
		tape := NewTape()
		a := tape.NewVar(3)
		b := tape.NewVar(5)
		tape.RegisterInput(a)
		tape.RegisterInput(b)
		tape.StartRecording()
		s := tape.Add(a, b)
		f := tape.Mul(s, a)
		tape.StopRecording()
		tape.RegisterOutput(f)
		assert.Equal(t, 24., tape.Value(f))
		tape.SetDerivative(f, 1)
		tape.ComputeAdjoint()
		assert.Equal(t, 11., tape.GetDerivative(a)) // 2*3+5
		assert.Equal(t, 3., tape.GetDerivative(b))
	}
	{ // Test passive constants: f = 2*a + 7
		tape := NewTape()
		a := tape.NewVar(4)
		tape.StartRecording()
		f := tape.AddConst(tape.Scale(2, a), 7)
		tape.StopRecording()
		assert.Equal(t, 15., tape.Value(f))
		tape.SetDerivative(f, 1)
		tape.ComputeAdjoint()
		assert.Equal(t, 2., tape.GetDerivative(a))
	}
	{ // Test re-sweep after ClearAdjoints gives identical derivatives
		tape := NewTape()
		a := tape.NewVar(2)
		tape.StartRecording()
		f := tape.Mul(a, a)
		tape.StopRecording()
		tape.SetDerivative(f, 1)
		tape.ComputeAdjoint()
		first := tape.GetDerivative(a)
		tape.ClearAdjoints()
		tape.SetDerivative(f, 1)
		tape.ComputeAdjoint()
		assert.Equal(t, first, tape.GetDerivative(a))
		assert.Equal(t, 4., first)
		assert.Equal(t, 2, tape.NAdjointSweeps)
	}
	{ // Test operations outside recording stay off the graph
		tape := NewTape()
		a := tape.NewVar(3)
		f := tape.Mul(a, a) // not recorded
		tape.SetDerivative(f, 1)
		tape.ComputeAdjoint()
		assert.Equal(t, 9., tape.Value(f))
		assert.Equal(t, 0., tape.GetDerivative(a))
	}
	{ // Test lifecycle misuse panics
		tape := NewTape()
		tape.StartRecording()
		assert.Panics(t, func() { tape.StartRecording() })
		assert.Panics(t, func() { tape.ComputeAdjoint() })
		tape.StopRecording()
		assert.Panics(t, func() { tape.StopRecording() })
	}
}

func TestStateMachine(t *testing.T) {
	record := func(tape *Tape) {
		a := tape.NewVar(1)
		tape.RegisterInput(a)
		tape.RegisterOutput(tape.Scale(2, a))
	}
	{ // Test switching kinds pays exactly one passive replay
		sm := NewStateMachine()
		replays := 0
		passive := func() { replays++ }
		sm.SetRecording(FlowConsVars, passive, record)
		assert.Equal(t, 0, replays) // first recording from idle, no replay
		sm.SetRecording(FeaDispVars, passive, record)
		assert.Equal(t, 1, replays)
		assert.Equal(t, 1, sm.NPassiveReplays)
		assert.Equal(t, 2, sm.NTransitions)
		assert.Equal(t, FeaDispVars, sm.Current())
	}
	{ // Test re-recording the same kind never replays
		sm := NewStateMachine()
		replays := 0
		passive := func() { replays++ }
		for i := 0; i < 3; i++ {
			sm.SetRecording(FlowCrossTerm, passive, record)
		}
		assert.Equal(t, 0, replays)
		assert.Equal(t, 3, sm.NTransitions)
	}
	{ // Test tape is stopped and registered after every transition
		sm := NewStateMachine()
		sm.SetRecording(GeometryCrossTerm, func() {}, record)
		assert.False(t, sm.Tape.IsRecording())
		assert.Equal(t, 1, len(sm.Tape.Inputs()))
		assert.Equal(t, 1, len(sm.Tape.Outputs()))
	}
	{ // Test SetRecording while the tape is recording panics
		sm := NewStateMachine()
		sm.Tape.StartRecording()
		assert.Panics(t, func() {
			sm.SetRecording(FlowConsVars, func() {}, record)
		})
	}
	{ // Test Clear returns to idle; next recording needs no replay
		sm := NewStateMachine()
		sm.SetRecording(FlowConsVars, func() {}, record)
		sm.Clear()
		assert.Equal(t, NoRecording, sm.Current())
		replays := 0
		sm.SetRecording(FeaDispVars, func() { replays++ }, record)
		assert.Equal(t, 0, replays)
	}
}
