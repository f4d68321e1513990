package comms

import (
	"fmt"

	"github.com/notargets/mzflow/geometry"
	"github.com/notargets/mzflow/types"
	"github.com/notargets/mzflow/utils"
)

// Tag bases keep point-to-point and periodic traffic for different
// quantity kinds from cross-matching when rounds overlap.
const (
	p2pTagBase      = 100
	periodicTagBase = 1000
)

// HaloExchange synchronizes one quantity kind between owned points and the
// ghost copies held by neighbor ranks. The protocol is: post all receives,
// pack and post all sends, then complete receives in arrival order and
// finally drain the sends (whose buffers must stay valid until handoff).
type HaloExchange struct {
	Comm *Communicator
	Geo  *geometry.Geometry
	F    *Fields

	sendBufs   []*utils.DynBuffer[float64]
	recvReqs   []*Request
	sendReqs   []*Request
	activeKind types.QuantityKind
	inFlight   bool
}

func NewHaloExchange(comm *Communicator, geo *geometry.Geometry, f *Fields) (h *HaloExchange) {
	h = &HaloExchange{Comm: comm, Geo: geo, F: f}
	h.sendBufs = make([]*utils.DynBuffer[float64], geo.P2P.NSends())
	for i := range h.sendBufs {
		h.sendBufs[i] = utils.NewDynBuffer[float64](0)
	}
	return
}

// Initiate posts the non-blocking receives first, then packs and posts the
// sends for the given quantity kind. Send buffers grow on demand and are
// never shrunk.
func (h *HaloExchange) Initiate(kind types.QuantityKind) {
	if h.inFlight {
		panic(fmt.Errorf("HaloExchange: Initiate(%s) while %s still in flight",
			kind.Print(), h.activeKind.Print()))
	}
	var (
		p   = h.Geo.P2P
		cnt = kind.CountPerPoint(h.F.NVar, h.F.NPrim, h.F.NDim)
		tag = p2pTagBase + int(kind)
	)
	h.recvReqs = h.recvReqs[:0]
	for i := 0; i < p.NRecvs(); i++ {
		h.recvReqs = append(h.recvReqs, h.Comm.Irecv(p.RecvRank[i], tag))
	}
	h.sendReqs = h.sendReqs[:0]
	for i := 0; i < p.NSends(); i++ {
		var (
			begin, end = p.SendOffset[i], p.SendOffset[i+1]
			buf        = h.sendBufs[i]
		)
		buf.Resize((end - begin) * cnt)
		cells := buf.Cells()
		for j, k := 0, begin; k < end; j, k = j+1, k+1 {
			h.packPoint(kind, p.SendPoint[k], cells[j*cnt:(j+1)*cnt])
		}
		h.sendReqs = append(h.sendReqs, h.Comm.Isend(p.SendRank[i], tag, cells))
	}
	h.activeKind = kind
	h.inFlight = true
}

// Complete waits for the receives in arrival order, unpacking each message
// into the local halo points as it lands, then waits for all sends.
func (h *HaloExchange) Complete(kind types.QuantityKind) {
	if !h.inFlight || kind != h.activeKind {
		panic(fmt.Errorf("HaloExchange: Complete(%s) without matching Initiate",
			kind.Print()))
	}
	var (
		p   = h.Geo.P2P
		cnt = kind.CountPerPoint(h.F.NVar, h.F.NPrim, h.F.NDim)
	)
	for n := 0; n < p.NRecvs(); n++ {
		i := h.Comm.WaitAny(h.recvReqs)
		var (
			begin, end = p.RecvOffset[i], p.RecvOffset[i+1]
			data       = h.recvReqs[i].Data
		)
		if len(data) != (end-begin)*cnt {
			panic(fmt.Errorf("HaloExchange: message from rank %d has %d values, want %d",
				p.RecvRank[i], len(data), (end-begin)*cnt))
		}
		for j, k := 0, begin; k < end; j, k = j+1, k+1 {
			h.unpackPoint(kind, p.RecvPoint[k], data[j*cnt:(j+1)*cnt])
		}
	}
	// Send buffers may be reused only after every handoff completes
	h.Comm.WaitAll(h.sendReqs)
	h.inFlight = false
}

func (h *HaloExchange) packPoint(kind types.QuantityKind, iPoint int, out []float64) {
	var (
		f                 = h.F
		nVar, nPrim, nDim = f.NVar, f.NPrim, f.NDim
	)
	switch kind {
	case types.Solution:
		copy(out, f.Sol[iPoint*nVar:(iPoint+1)*nVar])
	case types.SolutionOld:
		copy(out, f.SolOld[iPoint*nVar:(iPoint+1)*nVar])
	case types.SolutionFEA:
		copy(out, f.Sol[iPoint*nVar:(iPoint+1)*nVar])
	case types.SolutionPredictor:
		copy(out, f.SolPred[iPoint*nVar:(iPoint+1)*nVar])
	case types.SolutionMatrix:
		copy(out, f.LinSysSol[iPoint*nVar:(iPoint+1)*nVar])
	case types.SolutionTimeN:
		copy(out, f.TimeN[iPoint*nVar:(iPoint+1)*nVar])
	case types.SolutionTimeN1:
		copy(out, f.TimeN1[iPoint*nVar:(iPoint+1)*nVar])
	case types.SolutionEddy:
		copy(out, f.Sol[iPoint*nVar:(iPoint+1)*nVar])
		out[nVar] = f.Eddy[iPoint]
	case types.SolutionLimiter:
		copy(out, f.Limiter[iPoint*nVar:(iPoint+1)*nVar])
	case types.PrimitiveLimiter:
		copy(out, f.PrimLimiter[iPoint*nPrim:(iPoint+1)*nPrim])
	case types.UndividedLaplacian:
		copy(out, f.UndLapl[iPoint*nVar:(iPoint+1)*nVar])
	case types.SolutionGradient:
		copy(out, f.Grad[iPoint*nVar*nDim:(iPoint+1)*nVar*nDim])
	case types.SolutionGradReconstruction:
		copy(out[:nVar*nDim], f.Grad[iPoint*nVar*nDim:(iPoint+1)*nVar*nDim])
		copy(out[nVar*nDim:], f.GradRec[iPoint*nVar*nDim:(iPoint+1)*nVar*nDim])
	case types.PrimitiveGradient:
		copy(out, f.PrimGrad[iPoint*nPrim*nDim:(iPoint+1)*nPrim*nDim])
	case types.PrimitiveGradReconstruction:
		copy(out[:nPrim*nDim], f.PrimGrad[iPoint*nPrim*nDim:(iPoint+1)*nPrim*nDim])
		copy(out[nPrim*nDim:], f.PrimGradRec[iPoint*nPrim*nDim:(iPoint+1)*nPrim*nDim])
	case types.MaxEigenvalue:
		out[0] = f.MaxEig[iPoint]
	case types.PressureSensor:
		out[0] = f.Sensor[iPoint]
	case types.AuxVarGradient:
		copy(out, f.AuxGrad[iPoint*nDim:(iPoint+1)*nDim])
	case types.Coordinates:
		copy(out, f.Coords[iPoint*nDim:(iPoint+1)*nDim])
	case types.GridVelocity:
		copy(out, f.GridVel[iPoint*nDim:(iPoint+1)*nDim])
	case types.MeshDisplacements:
		copy(out, f.Disp[iPoint*nDim:(iPoint+1)*nDim])
	default:
		panic(fmt.Errorf("HaloExchange: pack of unhandled kind %s", kind.Print()))
	}
}

func (h *HaloExchange) unpackPoint(kind types.QuantityKind, iPoint int, in []float64) {
	var (
		f                 = h.F
		nVar, nPrim, nDim = f.NVar, f.NPrim, f.NDim
	)
	switch kind {
	case types.Solution:
		copy(f.Sol[iPoint*nVar:(iPoint+1)*nVar], in)
	case types.SolutionOld:
		copy(f.SolOld[iPoint*nVar:(iPoint+1)*nVar], in)
	case types.SolutionFEA:
		copy(f.Sol[iPoint*nVar:(iPoint+1)*nVar], in)
	case types.SolutionPredictor:
		copy(f.SolPred[iPoint*nVar:(iPoint+1)*nVar], in)
	case types.SolutionMatrix:
		copy(f.LinSysSol[iPoint*nVar:(iPoint+1)*nVar], in)
	case types.SolutionTimeN:
		copy(f.TimeN[iPoint*nVar:(iPoint+1)*nVar], in)
	case types.SolutionTimeN1:
		copy(f.TimeN1[iPoint*nVar:(iPoint+1)*nVar], in)
	case types.SolutionEddy:
		copy(f.Sol[iPoint*nVar:(iPoint+1)*nVar], in[:nVar])
		f.Eddy[iPoint] = in[nVar]
	case types.SolutionLimiter:
		copy(f.Limiter[iPoint*nVar:(iPoint+1)*nVar], in)
	case types.PrimitiveLimiter:
		copy(f.PrimLimiter[iPoint*nPrim:(iPoint+1)*nPrim], in)
	case types.UndividedLaplacian:
		copy(f.UndLapl[iPoint*nVar:(iPoint+1)*nVar], in)
	case types.SolutionGradient:
		copy(f.Grad[iPoint*nVar*nDim:(iPoint+1)*nVar*nDim], in)
	case types.SolutionGradReconstruction:
		copy(f.Grad[iPoint*nVar*nDim:(iPoint+1)*nVar*nDim], in[:nVar*nDim])
		copy(f.GradRec[iPoint*nVar*nDim:(iPoint+1)*nVar*nDim], in[nVar*nDim:])
	case types.PrimitiveGradient:
		copy(f.PrimGrad[iPoint*nPrim*nDim:(iPoint+1)*nPrim*nDim], in)
	case types.PrimitiveGradReconstruction:
		copy(f.PrimGrad[iPoint*nPrim*nDim:(iPoint+1)*nPrim*nDim], in[:nPrim*nDim])
		copy(f.PrimGradRec[iPoint*nPrim*nDim:(iPoint+1)*nPrim*nDim], in[nPrim*nDim:])
	case types.MaxEigenvalue:
		f.MaxEig[iPoint] = in[0]
	case types.PressureSensor:
		f.Sensor[iPoint] = in[0]
	case types.AuxVarGradient:
		copy(f.AuxGrad[iPoint*nDim:(iPoint+1)*nDim], in)
	case types.Coordinates:
		copy(f.Coords[iPoint*nDim:(iPoint+1)*nDim], in)
	case types.GridVelocity:
		copy(f.GridVel[iPoint*nDim:(iPoint+1)*nDim], in)
	case types.MeshDisplacements:
		copy(f.Disp[iPoint*nDim:(iPoint+1)*nDim], in)
	default:
		panic(fmt.Errorf("HaloExchange: unpack of unhandled kind %s", kind.Print()))
	}
}
