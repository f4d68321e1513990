package ad

import "fmt"

// RecordingKind identifies which set of variables is registered as tape
// leaves during a recorded direct pass of the coupled adjoint solver.
type RecordingKind uint8

const (
	NoRecording RecordingKind = iota
	FlowConsVars
	MeshCoords
	FeaDispVars
	FlowCrossTerm
	FeaCrossTerm
	GeometryCrossTerm
	AllVariables
)

var recordingKindNames = map[RecordingKind]string{
	NoRecording:       "NoRecording",
	FlowConsVars:      "FlowConsVars",
	MeshCoords:        "MeshCoords",
	FeaDispVars:       "FeaDispVars",
	FlowCrossTerm:     "FlowCrossTerm",
	FeaCrossTerm:      "FeaCrossTerm",
	GeometryCrossTerm: "GeometryCrossTerm",
	AllVariables:      "AllVariables",
}

func (rk RecordingKind) Print() string {
	if s, ok := recordingKindNames[rk]; ok {
		return s
	}
	return fmt.Sprintf("RecordingKind(%d)", rk)
}

// StateMachine enforces the tape lifecycle across recording kinds: at most
// one kind is active at a time, and switching kinds requires discarding the
// previous graph and replaying one passive (unrecorded) direct iteration so
// internal variable indices are rebuilt before the next active recording.
type StateMachine struct {
	Tape    *Tape
	current RecordingKind

	NPassiveReplays int
	NTransitions    int
}

func NewStateMachine() *StateMachine {
	return &StateMachine{Tape: NewTape()}
}

func (sm *StateMachine) Current() RecordingKind { return sm.current }

// needsReplay is the transition table: any switch away from an active kind
// pays one reset-and-replay.
func (sm *StateMachine) needsReplay(to RecordingKind) bool {
	return sm.current != NoRecording && sm.current != to
}

// SetRecording moves the machine to a new recording kind. passiveReplay is
// one unrecorded direct iteration; recordPass registers the kind's inputs
// and outputs and performs exactly one recorded direct iteration.
func (sm *StateMachine) SetRecording(to RecordingKind,
	passiveReplay func(), recordPass func(t *Tape)) {
	if sm.Tape.IsRecording() {
		panic(fmt.Errorf("StateMachine: SetRecording(%s) while tape is recording %s",
			to.Print(), sm.current.Print()))
	}
	if sm.needsReplay(to) {
		sm.Tape.Reset()
		passiveReplay()
		sm.NPassiveReplays++
	}
	sm.Tape.Reset()
	sm.Tape.StartRecording()
	recordPass(sm.Tape)
	sm.Tape.StopRecording()
	sm.current = to
	sm.NTransitions++
}

// Clear returns the machine to the idle state, discarding the tape.
func (sm *StateMachine) Clear() {
	sm.Tape.Reset()
	sm.current = NoRecording
}
