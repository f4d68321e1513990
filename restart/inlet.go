package restart

import (
	"fmt"
	"math"

	"github.com/notargets/mzflow/geometry"
)

// InletProfile is a file-provided table of inlet states keyed by position.
// The first nDim columns are coordinates; the remainder is the prescribed
// state at that location.
type InletProfile struct {
	NDim   int
	Fields []string
	Data   []float64
}

// ReadInletProfile loads a profile from a CSV restart-format table.
func ReadInletProfile(fileName string, nDim int) (p *InletProfile, err error) {
	var rec *Record
	if rec, err = Read(fileName, false); err != nil {
		return
	}
	if len(rec.Fields) <= nDim {
		return nil, fmt.Errorf("inlet profile: %d columns, need more than %d coordinates",
			len(rec.Fields), nDim)
	}
	return &InletProfile{NDim: nDim, Fields: rec.Fields, Data: rec.Data}, nil
}

func (p *InletProfile) NPoints() int {
	return len(p.Data) / len(p.Fields)
}

// Matches reports whether profile point ip lies within tol of some local
// mesh point.
func (p *InletProfile) Matches(ip int, geo *geometry.Geometry, tol float64) bool {
	nFields := len(p.Fields)
	for i := 0; i < geo.NPoint; i++ {
		var r2 float64
		for d := 0; d < p.NDim; d++ {
			dx := geo.Coord(i, d) - p.Data[ip*nFields+d]
			r2 += dx * dx
		}
		if math.Sqrt(r2) <= tol {
			return true
		}
	}
	return false
}

// State returns the non-coordinate columns of profile point ip.
func (p *InletProfile) State(ip int) []float64 {
	nFields := len(p.Fields)
	return p.Data[ip*nFields+p.NDim : (ip+1)*nFields]
}
