package types

import "fmt"

// QuantityKind selects the per-point payload exchanged by a point-to-point
// halo communication round. The count of float64 values per point is a pure
// function of the kind and the owning solver's nVar/nDim (see CountPerPoint).
type QuantityKind uint8

const (
	Solution QuantityKind = iota
	SolutionOld
	SolutionGradient
	SolutionGradReconstruction
	SolutionLimiter
	SolutionEddy // solution plus eddy viscosity
	SolutionFEA
	SolutionPredictor
	SolutionMatrix
	PrimitiveGradient
	PrimitiveGradReconstruction
	PrimitiveLimiter
	UndividedLaplacian
	MaxEigenvalue
	PressureSensor
	AuxVarGradient
	Coordinates
	GridVelocity
	MeshDisplacements
	SolutionTimeN
	SolutionTimeN1
)

var quantityKindNames = map[QuantityKind]string{
	Solution:                    "Solution",
	SolutionOld:                 "SolutionOld",
	SolutionGradient:            "SolutionGradient",
	SolutionGradReconstruction:  "SolutionGradReconstruction",
	SolutionLimiter:             "SolutionLimiter",
	SolutionEddy:                "SolutionEddy",
	SolutionFEA:                 "SolutionFEA",
	SolutionPredictor:           "SolutionPredictor",
	SolutionMatrix:              "SolutionMatrix",
	PrimitiveGradient:           "PrimitiveGradient",
	PrimitiveGradReconstruction: "PrimitiveGradReconstruction",
	PrimitiveLimiter:            "PrimitiveLimiter",
	UndividedLaplacian:          "UndividedLaplacian",
	MaxEigenvalue:               "MaxEigenvalue",
	PressureSensor:              "PressureSensor",
	AuxVarGradient:              "AuxVarGradient",
	Coordinates:                 "Coordinates",
	GridVelocity:                "GridVelocity",
	MeshDisplacements:           "MeshDisplacements",
	SolutionTimeN:               "SolutionTimeN",
	SolutionTimeN1:              "SolutionTimeN1",
}

func (qk QuantityKind) Print() string {
	if s, ok := quantityKindNames[qk]; ok {
		return s
	}
	return fmt.Sprintf("QuantityKind(%d)", qk)
}

// CountPerPoint returns the number of float64 values packed per point for a
// kind, given the solver's variable count nVar, primitive count nPrim and
// spatial dimension nDim.
func (qk QuantityKind) CountPerPoint(nVar, nPrim, nDim int) (count int) {
	switch qk {
	case Solution, SolutionOld, SolutionFEA, SolutionPredictor, SolutionMatrix,
		SolutionTimeN, SolutionTimeN1:
		count = nVar
	case SolutionEddy:
		count = nVar + 1
	case SolutionLimiter, UndividedLaplacian:
		count = nVar
	case SolutionGradient:
		count = nVar * nDim
	case SolutionGradReconstruction:
		count = nVar * nDim * 2
	case PrimitiveGradient:
		count = nPrim * nDim
	case PrimitiveGradReconstruction:
		count = nPrim * nDim * 2
	case PrimitiveLimiter:
		count = nPrim
	case MaxEigenvalue, PressureSensor:
		count = 1
	case AuxVarGradient:
		count = nDim
	case Coordinates, GridVelocity, MeshDisplacements:
		count = nDim
	default:
		panic(fmt.Errorf("CountPerPoint: unhandled quantity kind %s", qk.Print()))
	}
	return
}

// RotatesVector reports whether the kind carries momentum-like vector
// components that must be rotated across periodic boundaries.
func (qk QuantityKind) RotatesVector() bool {
	switch qk {
	case Coordinates, GridVelocity, MeshDisplacements:
		return true
	}
	return false
}

// PeriodicKind selects one of the periodic pack/unpack/accumulate rules.
type PeriodicKind uint8

const (
	PeriodicNone PeriodicKind = iota
	PeriodicVolume
	PeriodicNeighbors
	PeriodicResidual
	PeriodicImplicit
	PeriodicLaplacian
	PeriodicMaxEig
	PeriodicSensor
	PeriodicSolGG // Green-Gauss partial gradient, conservative vars
	PeriodicPrimGG
	PeriodicSolLS // weighted least-squares normal matrix + RHS
	PeriodicSolULS
	PeriodicPrimLS
	PeriodicPrimULS
	PeriodicLimSolMinMax // solution min/max bounds for limiting
	PeriodicLimSolValue  // limiter coefficient, min-accumulated
	PeriodicLimPrimMinMax
	PeriodicLimPrimValue
)

var periodicKindNames = map[PeriodicKind]string{
	PeriodicNone:          "PeriodicNone",
	PeriodicVolume:        "PeriodicVolume",
	PeriodicNeighbors:     "PeriodicNeighbors",
	PeriodicResidual:      "PeriodicResidual",
	PeriodicImplicit:      "PeriodicImplicit",
	PeriodicLaplacian:     "PeriodicLaplacian",
	PeriodicMaxEig:        "PeriodicMaxEig",
	PeriodicSensor:        "PeriodicSensor",
	PeriodicSolGG:         "PeriodicSolGG",
	PeriodicPrimGG:        "PeriodicPrimGG",
	PeriodicSolLS:         "PeriodicSolLS",
	PeriodicSolULS:        "PeriodicSolULS",
	PeriodicPrimLS:        "PeriodicPrimLS",
	PeriodicPrimULS:       "PeriodicPrimULS",
	PeriodicLimSolMinMax:  "PeriodicLimSolMinMax",
	PeriodicLimSolValue:   "PeriodicLimSolValue",
	PeriodicLimPrimMinMax: "PeriodicLimPrimMinMax",
	PeriodicLimPrimValue:  "PeriodicLimPrimValue",
}

func (pk PeriodicKind) Print() string {
	if s, ok := periodicKindNames[pk]; ok {
		return s
	}
	return fmt.Sprintf("PeriodicKind(%d)", pk)
}

// SolverSlot is a logical equation-system identity used to index the
// fixed-size per-grid-level solver array. At most one concrete solver
// occupies a slot at a given (zone, instance, grid level).
type SolverSlot uint8

const (
	FlowSlot SolverSlot = iota
	TurbSlot
	TransitionSlot
	HeatSlot
	RadiationSlot
	StructuralSlot
	MeshSlot
	AdjFlowSlot
	AdjTurbSlot
	TemplateSlot
	MaxSolverSlots // array dimension, not a slot
)

var solverSlotNames = [MaxSolverSlots]string{
	"Flow", "Turb", "Transition", "Heat", "Radiation",
	"Structural", "Mesh", "AdjFlow", "AdjTurb", "Template",
}

func (ss SolverSlot) Print() string {
	if ss < MaxSolverSlots {
		return solverSlotNames[ss]
	}
	return fmt.Sprintf("SolverSlot(%d)", ss)
}

// InterfaceKind classifies the (donor, target) zone pair relationship
// established during interface preprocessing.
type InterfaceKind int8

const (
	NoCommonInterface InterfaceKind = iota
	ZonesAreEqual
	FlowTraction
	BoundaryDisplacements
	StructuralDisplacementsLegacy
	ConservativeVariables
	MixingPlaneTransfer
	SlidingInterfaceTransfer
	ConjugateHeatFS
	ConjugateHeatSF
)

var interfaceKindNames = map[InterfaceKind]string{
	NoCommonInterface:             "NoCommonInterface",
	ZonesAreEqual:                 "ZonesAreEqual",
	FlowTraction:                  "FlowTraction",
	BoundaryDisplacements:         "BoundaryDisplacements",
	StructuralDisplacementsLegacy: "StructuralDisplacementsLegacy",
	ConservativeVariables:         "ConservativeVariables",
	MixingPlaneTransfer:           "MixingPlaneTransfer",
	SlidingInterfaceTransfer:      "SlidingInterfaceTransfer",
	ConjugateHeatFS:               "ConjugateHeatFS",
	ConjugateHeatSF:               "ConjugateHeatSF",
}

func (ik InterfaceKind) Print() string {
	if s, ok := interfaceKindNames[ik]; ok {
		return s
	}
	return fmt.Sprintf("InterfaceKind(%d)", ik)
}
