// Package particle implements the magnetic-dipole forward model and the
// particle filter that couples finger positions to the residual field it
// predicts.
package particle

import "math"

// Vector3 is a small float vector local to this package.
type Vector3 struct{ X, Y, Z float64 }

func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector3) Scale(k float64) Vector3 { return Vector3{v.X * k, v.Y * k, v.Z * k} }
func (v Vector3) Dot(o Vector3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vector3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// muOver4Pi is µ0/4π in SI units (T·m/A), the physical constant spec.md
// §9 mandates over the source's arbitrary scaling factor.
const muOver4Pi = 1e-7

// minRadiusMM is the singularity guard of spec.md §4.9: positions closer
// than this to the sensor are clamped to avoid a divide-by-near-zero.
const minRadiusMM = 1.0

// DipoleConfig is one finger's dipole moment in A·m², plus an optional
// fixed offset from the tracked position to the physical magnet.
type DipoleConfig struct {
	MomentAm2    Vector3
	TipOffsetMM  Vector3
}

// DefaultDipoles returns the five-finger default configuration: moments
// alternate polarity along z, a common layout for distinguishing adjacent
// fingers' fields.
func DefaultDipoles() [5]DipoleConfig {
	var d [5]DipoleConfig
	for i := range d {
		polarity := 1.0
		if i%2 == 1 {
			polarity = -1
		}
		d[i] = DipoleConfig{MomentAm2: Vector3{0, 0, polarity * 0.01}}
	}
	return d
}

// PredictField evaluates the dipole equation B = (µ0/4π)[3(m·r̂)r̂ - m]/|r|³
// for a magnet at positionMM (sensor at the origin) with moment
// momentAm2, returning the field at the sensor in microtesla.
func PredictField(positionMM Vector3, momentAm2 Vector3) Vector3 {
	r := positionMM.Scale(-1)
	posMeters := r.Scale(1e-3)
	dist := posMeters.Norm()

	var rHat Vector3
	if dist > 0 {
		rHat = posMeters.Scale(1 / dist)
	}
	if dist < minRadiusMM*1e-3 {
		dist = minRadiusMM * 1e-3
	}

	mDotR := momentAm2.Dot(rHat)
	numerator := rHat.Scale(3 * mDotR).Sub(momentAm2)
	fieldTesla := numerator.Scale(muOver4Pi / (dist * dist * dist))
	return fieldTesla.Scale(1e6) // tesla -> microtesla
}

// PredictTotalField sums the dipole contribution of every finger
// position against its configured moment.
func PredictTotalField(positionsMM [5]Vector3, dipoles [5]DipoleConfig) Vector3 {
	var total Vector3
	for i := range positionsMM {
		total = total.Add(PredictField(positionsMM[i], dipoles[i].MomentAm2))
	}
	return total
}
