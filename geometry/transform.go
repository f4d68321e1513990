package geometry

import "math"

// Transform is the rigid transform relating the two faces of a periodic
// marker pair: a rotation about Center (Euler angles applied x, then y,
// then z) followed by a translation. Geometry precomputes the 3x3 rotation
// matrix once; the comms layer applies it to momentum-like payload
// components in-flight. 2D problems use the top-left 2x2 block.
type Transform struct {
	Center      [3]float64
	Translation [3]float64
	RotMat      [3][3]float64
}

// NewTransform builds the rotation matrix from Euler angles in degrees.
func NewTransform(center, anglesDeg, translation [3]float64) (t *Transform) {
	var (
		d2r        = math.Pi / 180.
		th, ph, ps = anglesDeg[0] * d2r, anglesDeg[1] * d2r, anglesDeg[2] * d2r
	)
	cosT, sinT := math.Cos(th), math.Sin(th)
	cosP, sinP := math.Cos(ph), math.Sin(ph)
	cosS, sinS := math.Cos(ps), math.Sin(ps)
	t = &Transform{Center: center, Translation: translation}
	t.RotMat = [3][3]float64{
		{cosP * cosS, cosT*sinS + sinT*sinP*cosS, sinT*sinS - cosT*sinP*cosS},
		{-cosP * sinS, cosT*cosS - sinT*sinP*sinS, sinT*cosS + cosT*sinP*sinS},
		{sinP, -sinT * cosP, cosT * cosP},
	}
	return
}

// Identity returns the no-op transform.
func Identity() *Transform {
	t := &Transform{}
	t.RotMat = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	return t
}

// RotateVector rotates the first nDim components of v in place.
func (t *Transform) RotateVector(v []float64, nDim int) {
	var r [3]float64
	for i := 0; i < nDim; i++ {
		for j := 0; j < nDim; j++ {
			r[i] += t.RotMat[i][j] * v[j]
		}
	}
	copy(v[:nDim], r[:nDim])
}

// ApplyToPoint maps a coordinate through the full rigid transform:
// rotate about Center, then translate.
func (t *Transform) ApplyToPoint(x []float64, nDim int) {
	var shifted [3]float64
	for i := 0; i < nDim; i++ {
		shifted[i] = x[i] - t.Center[i]
	}
	t.RotateVector(shifted[:], nDim)
	for i := 0; i < nDim; i++ {
		x[i] = shifted[i] + t.Center[i] + t.Translation[i]
	}
}

// Inverse returns the transform mapping the partner face back, using the
// rotation matrix transpose and negated translation.
func (t *Transform) Inverse() (ti *Transform) {
	ti = &Transform{Center: t.Center}
	for i := 0; i < 3; i++ {
		ti.Translation[i] = -t.Translation[i]
		for j := 0; j < 3; j++ {
			ti.RotMat[i][j] = t.RotMat[j][i]
		}
	}
	return
}
