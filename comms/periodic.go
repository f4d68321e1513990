package comms

import (
	"fmt"

	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/types"
	"github.com/notargets/mzflow/utils"
)

// PeriodicExchange accumulates contributions across periodic marker pairs
// so that a point on one face and its image on the other behave as a single
// physical point. Payloads are transformed in-flight: momentum-like
// components are rotated by the receiving marker's 3x3 rotation matrix
// (2D problems use the top-left 2x2 block). The combinator applied on
// receipt is kind-specific: pure addition for volumes, neighbor counts,
// Laplacians, gradients and least-squares accumulations; component-wise
// min/max for limiter bounds; overwrite restricted to slave markers for
// the implicit solution synchronization.
type PeriodicExchange struct {
	Comm *Communicator
	Geo  *geometry.Geometry
	F    *Fields

	sendBufs   []*utils.DynBuffer[float64]
	recvReqs   []*Request
	sendReqs   []*Request
	activeKind types.PeriodicKind
	inFlight   bool
}

func NewPeriodicExchange(comm *Communicator, geo *geometry.Geometry, f *Fields) (p *PeriodicExchange) {
	p = &PeriodicExchange{Comm: comm, Geo: geo, F: f}
	p.sendBufs = make([]*utils.DynBuffer[float64], geo.Periodic.NSends())
	for i := range p.sendBufs {
		p.sendBufs[i] = utils.NewDynBuffer[float64](0)
	}
	return
}

// CountPerPoint returns the periodic wire-format size for a kind.
func PeriodicCountPerPoint(kind types.PeriodicKind, nVar, nPrim, nDim int) (count int) {
	switch kind {
	case types.PeriodicVolume, types.PeriodicNeighbors, types.PeriodicMaxEig:
		count = 1
	case types.PeriodicSensor:
		count = 2 // numerator, denominator
	case types.PeriodicResidual:
		count = nVar + 1 + nVar*nVar // residual, time step, diagonal Jacobian block
	case types.PeriodicImplicit:
		count = nVar
	case types.PeriodicLaplacian:
		count = nVar
	case types.PeriodicSolGG:
		count = nVar * nDim
	case types.PeriodicPrimGG:
		count = nPrim * nDim
	case types.PeriodicSolLS, types.PeriodicSolULS:
		count = nDim*nDim + nVar*nDim
	case types.PeriodicPrimLS, types.PeriodicPrimULS:
		count = nDim*nDim + nPrim*nDim
	case types.PeriodicLimSolMinMax:
		count = 2 * nVar
	case types.PeriodicLimSolValue:
		count = nVar
	case types.PeriodicLimPrimMinMax:
		count = 2 * nPrim
	case types.PeriodicLimPrimValue:
		count = nPrim
	default:
		panic(fmt.Errorf("PeriodicCountPerPoint: unhandled kind %s", kind.Print()))
	}
	return
}

// Initiate packs and posts the periodic messages for a kind, receives
// posted first.
func (p *PeriodicExchange) Initiate(kind types.PeriodicKind) {
	if p.inFlight {
		panic(fmt.Errorf("PeriodicExchange: Initiate(%s) while %s still in flight",
			kind.Print(), p.activeKind.Print()))
	}
	var (
		pat = p.Geo.Periodic
		cnt = PeriodicCountPerPoint(kind, p.F.NVar, p.F.NPrim, p.F.NDim)
		tag = periodicTagBase + int(kind)
	)
	p.recvReqs = p.recvReqs[:0]
	for i := 0; i < pat.NRecvs(); i++ {
		p.recvReqs = append(p.recvReqs, p.Comm.Irecv(pat.RecvRank[i], tag))
	}
	p.sendReqs = p.sendReqs[:0]
	for i := 0; i < pat.NSends(); i++ {
		var (
			begin, end = pat.SendOffset[i], pat.SendOffset[i+1]
			buf        = p.sendBufs[i]
		)
		buf.Resize((end - begin) * cnt)
		cells := buf.Cells()
		for j, k := 0, begin; k < end; j, k = j+1, k+1 {
			p.packEntry(kind, pat.SendPoint[k], pat.SendMarker[k], cells[j*cnt:(j+1)*cnt])
		}
		p.sendReqs = append(p.sendReqs, p.Comm.Isend(pat.SendRank[i], tag, cells))
	}
	p.activeKind = kind
	p.inFlight = true
}

// Complete unpacks the periodic messages in arrival order, applying the
// kind's combinator, then drains the sends.
func (p *PeriodicExchange) Complete(kind types.PeriodicKind) {
	if !p.inFlight || kind != p.activeKind {
		panic(fmt.Errorf("PeriodicExchange: Complete(%s) without matching Initiate",
			kind.Print()))
	}
	var (
		pat = p.Geo.Periodic
		cnt = PeriodicCountPerPoint(kind, p.F.NVar, p.F.NPrim, p.F.NDim)
	)
	for n := 0; n < pat.NRecvs(); n++ {
		i := p.Comm.WaitAny(p.recvReqs)
		var (
			begin, end = pat.RecvOffset[i], pat.RecvOffset[i+1]
			data       = p.recvReqs[i].Data
		)
		if len(data) != (end-begin)*cnt {
			panic(fmt.Errorf("PeriodicExchange: message from rank %d has %d values, want %d",
				pat.RecvRank[i], len(data), (end-begin)*cnt))
		}
		for j, k := 0, begin; k < end; j, k = j+1, k+1 {
			p.unpackEntry(kind, pat.RecvPoint[k], pat.RecvMarker[k], data[j*cnt:(j+1)*cnt])
		}
	}
	p.Comm.WaitAll(p.sendReqs)
	p.inFlight = false
}

// rotateMomentum rotates the momentum-like block at components [1, nDim]
// of a variable vector, when the vector has one.
func (p *PeriodicExchange) rotateMomentum(t *geometry.Transform, v []float64) {
	nDim := p.F.NDim
	if len(v) <= nDim {
		return
	}
	t.RotateVector(v[1:1+nDim], nDim)
}

// rotateTensor applies M' = R·M·Rᵀ to the row-major nDim x nDim block.
func (p *PeriodicExchange) rotateTensor(t *geometry.Transform, m []float64) {
	var (
		nDim = p.F.NDim
		tmp  [9]float64
	)
	// tmp = R·M
	for i := 0; i < nDim; i++ {
		for j := 0; j < nDim; j++ {
			var s float64
			for k := 0; k < nDim; k++ {
				s += t.RotMat[i][k] * m[k*nDim+j]
			}
			tmp[i*nDim+j] = s
		}
	}
	// M' = tmp·Rᵀ
	for i := 0; i < nDim; i++ {
		for j := 0; j < nDim; j++ {
			var s float64
			for k := 0; k < nDim; k++ {
				s += tmp[i*nDim+k] * t.RotMat[j][k]
			}
			m[i*nDim+j] = s
		}
	}
}

func (p *PeriodicExchange) packEntry(kind types.PeriodicKind, iPoint, iMarker int, out []float64) {
	var (
		f                 = p.F
		nVar, nPrim, nDim = f.NVar, f.NPrim, f.NDim
		t                 = p.Geo.MarkerTransform(iMarker)
	)
	switch kind {
	case types.PeriodicVolume:
		out[0] = f.Vol[iPoint]
	case types.PeriodicNeighbors:
		out[0] = f.NNeighbors[iPoint]
	case types.PeriodicMaxEig:
		out[0] = f.MaxEig[iPoint]
	case types.PeriodicSensor:
		out[0] = f.SensNum[iPoint]
		out[1] = f.SensDenom[iPoint]
	case types.PeriodicLaplacian:
		copy(out, f.UndLapl[iPoint*nVar:(iPoint+1)*nVar])
	case types.PeriodicResidual:
		copy(out[:nVar], f.Residual[iPoint*nVar:(iPoint+1)*nVar])
		p.rotateMomentum(t, out[:nVar])
		out[nVar] = f.TimeStep[iPoint]
		copy(out[nVar+1:], f.JacDiag[iPoint*nVar*nVar:(iPoint+1)*nVar*nVar])
	case types.PeriodicImplicit:
		copy(out, f.LinSysSol[iPoint*nVar:(iPoint+1)*nVar])
		p.rotateMomentum(t, out)
	case types.PeriodicSolGG:
		copy(out, f.Grad[iPoint*nVar*nDim:(iPoint+1)*nVar*nDim])
		for v := 0; v < nVar; v++ {
			t.RotateVector(out[v*nDim:(v+1)*nDim], nDim)
		}
	case types.PeriodicPrimGG:
		copy(out, f.PrimGrad[iPoint*nPrim*nDim:(iPoint+1)*nPrim*nDim])
		for v := 0; v < nPrim; v++ {
			t.RotateVector(out[v*nDim:(v+1)*nDim], nDim)
		}
	case types.PeriodicSolLS, types.PeriodicSolULS:
		copy(out[:nDim*nDim], f.LSMatrix[iPoint*nDim*nDim:(iPoint+1)*nDim*nDim])
		p.rotateTensor(t, out[:nDim*nDim])
		rhs := out[nDim*nDim:]
		copy(rhs, f.LSRhsAt(iPoint)[:nVar*nDim])
		for v := 0; v < nVar; v++ {
			t.RotateVector(rhs[v*nDim:(v+1)*nDim], nDim)
		}
	case types.PeriodicPrimLS, types.PeriodicPrimULS:
		copy(out[:nDim*nDim], f.LSMatrix[iPoint*nDim*nDim:(iPoint+1)*nDim*nDim])
		p.rotateTensor(t, out[:nDim*nDim])
		rhs := out[nDim*nDim:]
		copy(rhs, f.LSRhsAt(iPoint)[:nPrim*nDim])
		for v := 0; v < nPrim; v++ {
			t.RotateVector(rhs[v*nDim:(v+1)*nDim], nDim)
		}
	case types.PeriodicLimSolMinMax:
		copy(out[:nVar], f.SolMin[iPoint*nVar:(iPoint+1)*nVar])
		copy(out[nVar:], f.SolMax[iPoint*nVar:(iPoint+1)*nVar])
		p.rotateMomentum(t, out[:nVar])
		p.rotateMomentum(t, out[nVar:])
	case types.PeriodicLimSolValue:
		copy(out, f.Limiter[iPoint*nVar:(iPoint+1)*nVar])
		p.rotateMomentum(t, out)
	case types.PeriodicLimPrimMinMax:
		copy(out[:nPrim], f.PrimMin[iPoint*nPrim:(iPoint+1)*nPrim])
		copy(out[nPrim:], f.PrimMax[iPoint*nPrim:(iPoint+1)*nPrim])
		p.rotateMomentum(t, out[:nPrim])
		p.rotateMomentum(t, out[nPrim:])
	case types.PeriodicLimPrimValue:
		copy(out, f.PrimLimiter[iPoint*nPrim:(iPoint+1)*nPrim])
		p.rotateMomentum(t, out)
	default:
		panic(fmt.Errorf("PeriodicExchange: pack of unhandled kind %s", kind.Print()))
	}
}

func (p *PeriodicExchange) unpackEntry(kind types.PeriodicKind, iPoint, iMarker int, in []float64) {
	var (
		f                 = p.F
		nVar, nPrim, nDim = f.NVar, f.NPrim, f.NDim
	)
	addInto := func(dst []float64) {
		for i := range in[:len(dst)] {
			dst[i] += in[i]
		}
	}
	minInto := func(dst, src []float64) {
		for i := range dst {
			if src[i] < dst[i] {
				dst[i] = src[i]
			}
		}
	}
	maxInto := func(dst, src []float64) {
		for i := range dst {
			if src[i] > dst[i] {
				dst[i] = src[i]
			}
		}
	}
	switch kind {
	case types.PeriodicVolume:
		f.Vol[iPoint] += in[0]
	case types.PeriodicNeighbors:
		f.NNeighbors[iPoint] += in[0]
	case types.PeriodicMaxEig:
		f.MaxEig[iPoint] += in[0]
	case types.PeriodicSensor:
		f.SensNum[iPoint] += in[0]
		f.SensDenom[iPoint] += in[1]
	case types.PeriodicLaplacian:
		addInto(f.UndLapl[iPoint*nVar : (iPoint+1)*nVar])
	case types.PeriodicResidual:
		for v := 0; v < nVar; v++ {
			f.Residual[iPoint*nVar+v] += in[v]
		}
		f.TimeStep[iPoint] += in[nVar]
		for v := 0; v < nVar*nVar; v++ {
			f.JacDiag[iPoint*nVar*nVar+v] += in[nVar+1+v]
		}
	case types.PeriodicImplicit:
		// Overwrite, not accumulate, and only on the slave face: the
		// master's equation is the one actually solved.
		if p.Geo.IsSlaveMarker(iMarker) {
			copy(f.LinSysSol[iPoint*nVar:(iPoint+1)*nVar], in)
		}
	case types.PeriodicSolGG:
		addInto(f.Grad[iPoint*nVar*nDim : (iPoint+1)*nVar*nDim])
	case types.PeriodicPrimGG:
		addInto(f.PrimGrad[iPoint*nPrim*nDim : (iPoint+1)*nPrim*nDim])
	case types.PeriodicSolLS, types.PeriodicSolULS:
		addInto(f.LSMatrix[iPoint*nDim*nDim : (iPoint+1)*nDim*nDim])
		rhs := f.LSRhsAt(iPoint)[:nVar*nDim]
		for i := range rhs {
			rhs[i] += in[nDim*nDim+i]
		}
	case types.PeriodicPrimLS, types.PeriodicPrimULS:
		addInto(f.LSMatrix[iPoint*nDim*nDim : (iPoint+1)*nDim*nDim])
		rhs := f.LSRhsAt(iPoint)[:nPrim*nDim]
		for i := range rhs {
			rhs[i] += in[nDim*nDim+i]
		}
	case types.PeriodicLimSolMinMax:
		minInto(f.SolMin[iPoint*nVar:(iPoint+1)*nVar], in[:nVar])
		maxInto(f.SolMax[iPoint*nVar:(iPoint+1)*nVar], in[nVar:])
	case types.PeriodicLimSolValue:
		minInto(f.Limiter[iPoint*nVar:(iPoint+1)*nVar], in)
	case types.PeriodicLimPrimMinMax:
		minInto(f.PrimMin[iPoint*nPrim:(iPoint+1)*nPrim], in[:nPrim])
		maxInto(f.PrimMax[iPoint*nPrim:(iPoint+1)*nPrim], in[nPrim:])
	case types.PeriodicLimPrimValue:
		minInto(f.PrimLimiter[iPoint*nPrim:(iPoint+1)*nPrim], in)
	default:
		panic(fmt.Errorf("PeriodicExchange: unpack of unhandled kind %s", kind.Print()))
	}
}
