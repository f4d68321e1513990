package config

import (
	"fmt"
	"strings"
)

// SolverKind is the per-zone physics selection from the input deck.
type SolverKind uint8

const (
	NoSolver SolverKind = iota
	Euler
	NavierStokes
	RANS
	HeatEquation
	Elasticity
	FEMEuler
	FEMNavierStokes
	DiscAdjEuler
	DiscAdjNavierStokes
	DiscAdjRANS
	DiscAdjElasticity
)

var solverKindLabels = map[string]SolverKind{
	"NONE":                  NoSolver,
	"EULER":                 Euler,
	"NAVIER_STOKES":         NavierStokes,
	"RANS":                  RANS,
	"HEAT_EQUATION":         HeatEquation,
	"ELASTICITY":            Elasticity,
	"FEM_EULER":             FEMEuler,
	"FEM_NAVIER_STOKES":     FEMNavierStokes,
	"DISC_ADJ_EULER":        DiscAdjEuler,
	"DISC_ADJ_NAVIERSTOKES": DiscAdjNavierStokes,
	"DISC_ADJ_RANS":         DiscAdjRANS,
	"DISC_ADJ_FEM":          DiscAdjElasticity,
}

func NewSolverKind(label string) (sk SolverKind) {
	var ok bool
	if sk, ok = solverKindLabels[strings.ToUpper(label)]; !ok {
		panic(fmt.Errorf("NewSolverKind: unable to use solver named [%s]", label))
	}
	return
}

func (sk SolverKind) Print() string {
	for label, kind := range solverKindLabels {
		if kind == sk {
			return label
		}
	}
	return fmt.Sprintf("SolverKind(%d)", sk)
}

// IsFlow reports whether the kind carries a (direct) flow equation set.
func (sk SolverKind) IsFlow() bool {
	switch sk {
	case Euler, NavierStokes, RANS, FEMEuler, FEMNavierStokes:
		return true
	}
	return false
}

// IsStructural reports whether the kind solves the elasticity equations.
func (sk SolverKind) IsStructural() bool {
	return sk == Elasticity || sk == DiscAdjElasticity
}

// IsAdjoint reports whether the kind is a discrete-adjoint variant.
func (sk SolverKind) IsAdjoint() bool {
	switch sk {
	case DiscAdjEuler, DiscAdjNavierStokes, DiscAdjRANS, DiscAdjElasticity:
		return true
	}
	return false
}

// IsFEM reports whether the kind uses the FEM-DG discretization family.
func (sk SolverKind) IsFEM() bool {
	return sk == FEMEuler || sk == FEMNavierStokes
}

// DirectEquivalent maps an adjoint kind to the direct kind whose recording
// pass it differentiates.
func (sk SolverKind) DirectEquivalent() SolverKind {
	switch sk {
	case DiscAdjEuler:
		return Euler
	case DiscAdjNavierStokes:
		return NavierStokes
	case DiscAdjRANS:
		return RANS
	case DiscAdjElasticity:
		return Elasticity
	}
	return sk
}

// TurbulenceModel selects the RANS closure.
type TurbulenceModel uint8

const (
	NoTurbModel TurbulenceModel = iota
	SpalartAllmaras
	MenterSST
)

func NewTurbulenceModel(label string) TurbulenceModel {
	switch strings.ToUpper(label) {
	case "", "NONE":
		return NoTurbModel
	case "SA":
		return SpalartAllmaras
	case "SST":
		return MenterSST
	}
	panic(fmt.Errorf("NewTurbulenceModel: unable to use turbulence model [%s]", label))
}

// GradientMethod selects how spatial gradients are reconstructed.
type GradientMethod uint8

const (
	GreenGauss GradientMethod = iota
	WeightedLeastSquares
)

func NewGradientMethod(label string) GradientMethod {
	switch strings.ToUpper(label) {
	case "", "GREEN_GAUSS":
		return GreenGauss
	case "WEIGHTED_LEAST_SQUARES":
		return WeightedLeastSquares
	}
	panic(fmt.Errorf("NewGradientMethod: unable to use gradient method [%s]", label))
}

// LimiterKind selects the slope limiter.
type LimiterKind uint8

const (
	NoLimiter LimiterKind = iota
	Venkatakrishnan
	BarthJespersen
)

func NewLimiterKind(label string) LimiterKind {
	switch strings.ToUpper(label) {
	case "", "NONE":
		return NoLimiter
	case "VENKATAKRISHNAN":
		return Venkatakrishnan
	case "BARTH_JESPERSEN":
		return BarthJespersen
	}
	panic(fmt.Errorf("NewLimiterKind: unable to use limiter [%s]", label))
}

// ConvectiveScheme selects the convective flux discretization. The concrete
// flux functions live behind the numerics registry; the scheme label only
// keys the registry lookup.
type ConvectiveScheme uint8

const (
	SchemeJST ConvectiveScheme = iota
	SchemeLaxFriedrich
	SchemeRoe
	SchemeAUSM
	SchemeHLLC
)

func NewConvectiveScheme(label string) ConvectiveScheme {
	switch strings.ToUpper(label) {
	case "", "JST":
		return SchemeJST
	case "LAX-FRIEDRICH", "LAX":
		return SchemeLaxFriedrich
	case "ROE":
		return SchemeRoe
	case "AUSM":
		return SchemeAUSM
	case "HLLC":
		return SchemeHLLC
	}
	panic(fmt.Errorf("NewConvectiveScheme: unable to use convective scheme [%s]", label))
}

// IsCentered reports whether the scheme needs artificial-dissipation
// support quantities (undivided Laplacian, pressure sensor, max eigenvalue).
func (cs ConvectiveScheme) IsCentered() bool {
	return cs == SchemeJST || cs == SchemeLaxFriedrich
}

// InterpolatorKind selects the donor→target boundary interpolation.
type InterpolatorKind uint8

const (
	NearestNeighbor InterpolatorKind = iota
	Isoparametric
	SlidingWeightedAverage
	RadialBasisFunction
	ConservativeMirror // reuse of the transposed structural map
)

func NewInterpolatorKind(label string) InterpolatorKind {
	switch strings.ToUpper(label) {
	case "", "NEAREST_NEIGHBOR":
		return NearestNeighbor
	case "ISOPARAMETRIC":
		return Isoparametric
	case "WEIGHTED_AVERAGE":
		return SlidingWeightedAverage
	case "RADIAL_BASIS_FUNCTION":
		return RadialBasisFunction
	case "CONSERVATIVE":
		return ConservativeMirror
	}
	panic(fmt.Errorf("NewInterpolatorKind: unable to use interpolator [%s]", label))
}
