// Package ad provides the reverse-mode automatic-differentiation tape used
// by the discrete-adjoint drivers, plus the state machine governing which
// recording kind may be active. The tape is process-wide single-writer:
// recording must be stopped before the reverse sweep runs.
package ad

import "fmt"

// Var is a handle to one scalar on the tape.
type Var int

type op struct {
	result   Var
	args     [2]Var
	partials [2]float64
	nArgs    int
}

// Tape is the computational graph captured during a recorded forward pass.
// Counters on the lifecycle methods exist so coupling drivers can be
// audited for correct interleaving of reset, record and adjoint phases.
type Tape struct {
	vals      []float64
	adj       []float64
	ops       []op
	inputs    []Var
	outputs   []Var
	recording bool

	NStarts, NStops, NResets, NAdjointSweeps int
}

func NewTape() *Tape {
	return &Tape{}
}

// NewVar places a value on the tape and returns its handle.
func (t *Tape) NewVar(value float64) Var {
	t.vals = append(t.vals, value)
	t.adj = append(t.adj, 0)
	return Var(len(t.vals) - 1)
}

func (t *Tape) Value(v Var) float64 { return t.vals[v] }

func (t *Tape) SetValue(v Var, value float64) { t.vals[v] = value }

// StartRecording begins capturing operations. Starting while already
// recording is a sequencing bug in the caller.
func (t *Tape) StartRecording() {
	if t.recording {
		panic(fmt.Errorf("Tape: StartRecording while already recording"))
	}
	t.recording = true
	t.NStarts++
}

func (t *Tape) StopRecording() {
	if !t.recording {
		panic(fmt.Errorf("Tape: StopRecording while not recording"))
	}
	t.recording = false
	t.NStops++
}

func (t *Tape) IsRecording() bool { return t.recording }

// Reset discards the graph and every registration, keeping nothing but the
// lifecycle counters. Required before a new recording kind can begin.
func (t *Tape) Reset() {
	t.vals = t.vals[:0]
	t.adj = t.adj[:0]
	t.ops = t.ops[:0]
	t.inputs = t.inputs[:0]
	t.outputs = t.outputs[:0]
	t.recording = false
	t.NResets++
}

// RegisterInput marks v as a tape leaf whose adjoint will be extracted.
func (t *Tape) RegisterInput(v Var) {
	t.inputs = append(t.inputs, v)
}

// RegisterOutput marks v as a tape root that adjoint seeds attach to.
func (t *Tape) RegisterOutput(v Var) {
	t.outputs = append(t.outputs, v)
}

func (t *Tape) Inputs() []Var  { return t.inputs }
func (t *Tape) Outputs() []Var { return t.outputs }

func (t *Tape) record(o op) Var {
	r := t.NewVar(0)
	if t.recording {
		o.result = r
		t.ops = append(t.ops, o)
	}
	return r
}

// Add records r = a + b.
func (t *Tape) Add(a, b Var) Var {
	r := t.record(op{args: [2]Var{a, b}, partials: [2]float64{1, 1}, nArgs: 2})
	t.vals[r] = t.vals[a] + t.vals[b]
	return r
}

// Sub records r = a - b.
func (t *Tape) Sub(a, b Var) Var {
	r := t.record(op{args: [2]Var{a, b}, partials: [2]float64{1, -1}, nArgs: 2})
	t.vals[r] = t.vals[a] - t.vals[b]
	return r
}

// Mul records r = a * b.
func (t *Tape) Mul(a, b Var) Var {
	r := t.record(op{args: [2]Var{a, b}, partials: [2]float64{0, 0}, nArgs: 2})
	if t.recording {
		t.ops[len(t.ops)-1].partials = [2]float64{t.vals[b], t.vals[a]}
	}
	t.vals[r] = t.vals[a] * t.vals[b]
	return r
}

// Scale records r = c * a for a passive constant c.
func (t *Tape) Scale(c float64, a Var) Var {
	r := t.record(op{args: [2]Var{a}, partials: [2]float64{c}, nArgs: 1})
	t.vals[r] = c * t.vals[a]
	return r
}

// AddConst records r = a + c for a passive constant c.
func (t *Tape) AddConst(a Var, c float64) Var {
	r := t.record(op{args: [2]Var{a}, partials: [2]float64{1}, nArgs: 1})
	t.vals[r] = t.vals[a] + c
	return r
}

// SetDerivative seeds the adjoint of a registered output.
func (t *Tape) SetDerivative(v Var, seed float64) {
	t.adj[v] = seed
}

// GetDerivative extracts the accumulated adjoint of a variable, normally a
// registered input after ComputeAdjoint.
func (t *Tape) GetDerivative(v Var) float64 {
	return t.adj[v]
}

// ComputeAdjoint runs the reverse sweep over the recorded graph,
// propagating output seeds back to the inputs. Recording must be stopped.
func (t *Tape) ComputeAdjoint() {
	if t.recording {
		panic(fmt.Errorf("Tape: ComputeAdjoint while recording"))
	}
	for i := len(t.ops) - 1; i >= 0; i-- {
		o := t.ops[i]
		a := t.adj[o.result]
		if a == 0 {
			continue
		}
		for k := 0; k < o.nArgs; k++ {
			t.adj[o.args[k]] += o.partials[k] * a
		}
	}
	t.NAdjointSweeps++
}

// ClearAdjoints zeroes every adjoint accumulator while keeping the tape, so
// the same graph can be swept again with fresh seeds.
func (t *Tape) ClearAdjoints() {
	for i := range t.adj {
		t.adj[i] = 0
	}
}
