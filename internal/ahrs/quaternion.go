package ahrs

import "math"

// Quaternion follows the Hamilton convention (w, x, y, z) and is kept
// unit-norm by the caller after every update.
type Quaternion struct {
	W, X, Y, Z float64
}

// Identity is the zero-rotation quaternion.
func Identity() Quaternion { return Quaternion{W: 1} }

// Norm returns the Euclidean length of q.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalized returns q scaled to unit length. If q is degenerate (zero
// norm or non-finite), Identity is returned so callers never propagate
// a NaN quaternion through Normalized alone — NaN detection for the
// caller-visible fatal condition happens explicitly in the AHRS update
// step (Update6D/Update9D).
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Identity()
	}
	recip := invSqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	return Quaternion{q.W * recip, q.X * recip, q.Y * recip, q.Z * recip}
}

// IsNaN reports whether any component of q is NaN.
func (q Quaternion) IsNaN() bool {
	return math.IsNaN(q.W) || math.IsNaN(q.X) || math.IsNaN(q.Y) || math.IsNaN(q.Z)
}

// EulerAngles holds roll/pitch/yaw in degrees.
type EulerAngles struct {
	Roll, Pitch, Yaw float64
}

// Euler converts q to roll/pitch/yaw in degrees using the conventions of
// spec.md §4.4.
func Euler(q Quaternion) EulerAngles {
	w, x, y, z := q.W, q.X, q.Y, q.Z

	roll := math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	sinp := 2 * (w*y - z*x)
	sinp = clip(sinp, -1, 1)
	pitch := math.Asin(sinp)

	yaw := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	const rad2deg = 180 / math.Pi
	return EulerAngles{
		Roll:  roll * rad2deg,
		Pitch: pitch * rad2deg,
		Yaw:   yaw * rad2deg,
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// rotateWorldToBody rotates v from the world frame into the body frame
// described by q, i.e. v_body = R(q) * v_world where R(q) is the rotation
// matrix corresponding to a world-to-sensor orientation quaternion.
func rotateWorldToBody(q Quaternion, v vec3) vec3 {
	w, x, y, z := q.W, q.X, q.Y, q.Z

	r00 := 1 - 2*(y*y+z*z)
	r01 := 2 * (x*y + w*z)
	r02 := 2 * (x*z - w*y)

	r10 := 2 * (x*y - w*z)
	r11 := 1 - 2*(x*x+z*z)
	r12 := 2 * (y*z + w*x)

	r20 := 2 * (x*z + w*y)
	r21 := 2 * (y*z - w*x)
	r22 := 1 - 2*(x*x+y*y)

	return vec3{
		x: r00*v.x + r01*v.y + r02*v.z,
		y: r10*v.x + r11*v.y + r12*v.z,
		z: r20*v.x + r21*v.y + r22*v.z,
	}
}

type vec3 struct{ x, y, z float64 }

func (v vec3) norm() float64 { return math.Sqrt(v.x*v.x + v.y*v.y + v.z*v.z) }

func invSqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return 1 / math.Sqrt(x)
}
