package comms

// Fields is the per-point solution state a solver owns and the halo layers
// read and write. All arrays are flat with the point index outermost; every
// array covers owned points and halo points. Exactly one solver instance
// owns a Fields value; the comms layer mutates it only on that solver's
// behalf during unpack.
type Fields struct {
	NPoint, NVar, NPrim, NDim int

	Sol     []float64 // NPoint*NVar
	SolOld  []float64
	SolPred []float64
	TimeN   []float64
	TimeN1  []float64
	Eddy    []float64 // NPoint

	Grad        []float64 // NPoint*NVar*NDim
	GradRec     []float64
	PrimGrad    []float64 // NPoint*NPrim*NDim
	PrimGradRec []float64
	AuxGrad     []float64 // NPoint*NDim

	Limiter     []float64 // NPoint*NVar
	PrimLimiter []float64 // NPoint*NPrim
	SolMin      []float64
	SolMax      []float64
	PrimMin     []float64
	PrimMax     []float64

	UndLapl   []float64 // NPoint*NVar
	MaxEig    []float64 // NPoint
	Sensor    []float64 // NPoint
	SensNum   []float64 // NPoint, pressure sensor numerator
	SensDenom []float64 // NPoint, pressure sensor denominator

	Residual   []float64 // NPoint*NVar
	TimeStep   []float64 // NPoint
	JacDiag    []float64 // NPoint*NVar*NVar
	LinSysSol  []float64 // NPoint*NVar

	Vol        []float64 // NPoint, periodic-accumulated control volume
	NNeighbors []float64 // NPoint, periodic-accumulated neighbor count

	Coords  []float64 // NPoint*NDim
	GridVel []float64
	Disp    []float64

	// Least-squares gradient workspace: per-point normal matrix and RHS.
	// The RHS is sized for the larger of the conservative and primitive
	// variable counts so both gradient passes share it.
	LSMatrix []float64 // NPoint*NDim*NDim
	LSRhs    []float64 // NPoint*max(NVar,NPrim)*NDim
}

func NewFields(nPoint, nVar, nPrim, nDim int) (f *Fields) {
	f = &Fields{NPoint: nPoint, NVar: nVar, NPrim: nPrim, NDim: nDim}
	f.Sol = make([]float64, nPoint*nVar)
	f.SolOld = make([]float64, nPoint*nVar)
	f.SolPred = make([]float64, nPoint*nVar)
	f.TimeN = make([]float64, nPoint*nVar)
	f.TimeN1 = make([]float64, nPoint*nVar)
	f.Eddy = make([]float64, nPoint)
	f.Grad = make([]float64, nPoint*nVar*nDim)
	f.GradRec = make([]float64, nPoint*nVar*nDim)
	f.PrimGrad = make([]float64, nPoint*nPrim*nDim)
	f.PrimGradRec = make([]float64, nPoint*nPrim*nDim)
	f.AuxGrad = make([]float64, nPoint*nDim)
	f.Limiter = make([]float64, nPoint*nVar)
	f.PrimLimiter = make([]float64, nPoint*nPrim)
	f.SolMin = make([]float64, nPoint*nVar)
	f.SolMax = make([]float64, nPoint*nVar)
	f.PrimMin = make([]float64, nPoint*nPrim)
	f.PrimMax = make([]float64, nPoint*nPrim)
	f.UndLapl = make([]float64, nPoint*nVar)
	f.MaxEig = make([]float64, nPoint)
	f.Sensor = make([]float64, nPoint)
	f.SensNum = make([]float64, nPoint)
	f.SensDenom = make([]float64, nPoint)
	f.Residual = make([]float64, nPoint*nVar)
	f.TimeStep = make([]float64, nPoint)
	f.JacDiag = make([]float64, nPoint*nVar*nVar)
	f.LinSysSol = make([]float64, nPoint*nVar)
	f.Vol = make([]float64, nPoint)
	f.NNeighbors = make([]float64, nPoint)
	f.Coords = make([]float64, nPoint*nDim)
	f.GridVel = make([]float64, nPoint*nDim)
	f.Disp = make([]float64, nPoint*nDim)
	f.LSMatrix = make([]float64, nPoint*nDim*nDim)
	maxVP := nVar
	if nPrim > maxVP {
		maxVP = nPrim
	}
	f.LSRhs = make([]float64, nPoint*maxVP*nDim)
	return
}

// Value accessors used by the numerical kernels. Writers index the flat
// arrays directly.

func (f *Fields) SolAt(iPoint, iVar int) float64 {
	return f.Sol[iPoint*f.NVar+iVar]
}

func (f *Fields) SetSolAt(iPoint, iVar int, v float64) {
	f.Sol[iPoint*f.NVar+iVar] = v
}

func (f *Fields) GradAt(iPoint, iVar, iDim int) float64 {
	return f.Grad[(iPoint*f.NVar+iVar)*f.NDim+iDim]
}

func (f *Fields) PrimGradAt(iPoint, iVar, iDim int) float64 {
	return f.PrimGrad[(iPoint*f.NPrim+iVar)*f.NDim+iDim]
}

// LSRhsAt returns the least-squares RHS block of one point.
func (f *Fields) LSRhsAt(iPoint int) []float64 {
	stride := len(f.LSRhs) / f.NPoint
	return f.LSRhs[iPoint*stride : (iPoint+1)*stride]
}
