package ahrs

import (
	"errors"
	"math"

	"github.com/wristcuff/fingertrace/internal/geomag"
)

// ErrNaN is returned when an update would drive the quaternion non-finite.
// The caller must treat this as fatal and call Reset before further use.
var ErrNaN = errors.New("ahrs: quaternion update produced NaN, reset required")

// DefaultBeta is the Madgwick gain used when gyro bias is trusted.
const DefaultBeta = 0.05

// UntrustedBiasBeta is used while the gyro bias estimator has not yet
// converged (spec.md §6 madgwick.beta override).
const UntrustedBiasBeta = 0.1

const epsilon = 1e-6

// Vector3 is a small float vector local to this package, avoiding an
// import cycle with the pipeline package that consumes it.
type Vector3 struct{ X, Y, Z float64 }

func (v Vector3) norm() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// AHRS fuses accelerometer, gyroscope and (optionally) magnetometer
// samples into a unit quaternion via the Madgwick gradient-descent filter.
// The quaternion is the only state; everything else is derived per call.
type AHRS struct {
	q    Quaternion
	Beta float64
}

// New returns an AHRS at the identity orientation with the given gain.
func New(beta float64) *AHRS {
	return &AHRS{q: Identity(), Beta: beta}
}

// Reset returns the filter to identity orientation, as required after a
// fatal NaN condition or an explicit session reset.
func (a *AHRS) Reset() { a.q = Identity() }

// Quaternion returns the current orientation estimate.
func (a *AHRS) Quaternion() Quaternion { return a.q }

// InitFromAccel synthesizes an initial quaternion from a single gravity
// reading: roll and pitch come from the accelerometer, yaw starts at zero.
func (a *AHRS) InitFromAccel(accelG Vector3) {
	n := accelG.norm()
	if n < epsilon {
		a.q = Identity()
		return
	}
	ax, ay, az := accelG.X/n, accelG.Y/n, accelG.Z/n

	roll := math.Atan2(ay, az)
	pitch := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)

	a.q = Quaternion{
		W: cr*cp,
		X: sr*cp,
		Y: cr*sp,
		Z: -sr * sp,
	}.Normalized()
}

// Update6D performs one accel+gyro Madgwick step. gyroDps and biasDps are
// in degrees/second; accelG is in g. dt is seconds.
func (a *AHRS) Update6D(gyroDps, biasDps, accelG Vector3, dt float64) error {
	return a.update(gyroDps, biasDps, accelG, Vector3{}, false, 0, dt)
}

// Update9D performs one accel+gyro+mag Madgwick step with the 9-DOF
// gradient term. magTrust scales the effective beta per spec.md §4.4.
// If |mag| is below epsilon, this falls back to the 6-DOF path.
func (a *AHRS) Update9D(gyroDps, biasDps, accelG, magUT Vector3, magTrust, dt float64) error {
	if magUT.norm() < epsilon || magTrust <= 0.01 {
		return a.Update6D(gyroDps, biasDps, accelG, dt)
	}
	return a.update(gyroDps, biasDps, accelG, magUT, true, magTrust, dt)
}

const deg2rad = math.Pi / 180

func (a *AHRS) update(gyroDps, biasDps, accelG, magUT Vector3, useMag bool, magTrust, dt float64) error {
	q0, q1, q2, q3 := a.q.W, a.q.X, a.q.Y, a.q.Z

	gx := (gyroDps.X - biasDps.X) * deg2rad
	gy := (gyroDps.Y - biasDps.Y) * deg2rad
	gz := (gyroDps.Z - biasDps.Z) * deg2rad

	// Rate of change of quaternion from gyroscope.
	qDot1 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot2 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot3 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot4 := 0.5 * (q0*gz + q1*gy - q2*gx)

	beta := a.Beta
	ax, ay, az := accelG.X, accelG.Y, accelG.Z
	an := math.Sqrt(ax*ax + ay*ay + az*az)

	if an >= epsilon {
		ax, ay, az = ax/an, ay/an, az/an

		var s0, s1, s2, s3 float64

		if useMag {
			beta = a.Beta * (1 + magTrust)

			mx, my, mz := magUT.X, magUT.Y, magUT.Z
			mn := math.Sqrt(mx*mx + my*my + mz*mz)
			mx, my, mz = mx/mn, my/mn, mz/mn

			// Reference direction of Earth's magnetic field, rotated by
			// the current orientation estimate (Madgwick 2010, eq. 46).
			_2q0mx := 2 * q0 * mx
			_2q0my := 2 * q0 * my
			_2q0mz := 2 * q0 * mz
			_2q1mx := 2 * q1 * mx
			_2q0 := 2 * q0
			_2q1 := 2 * q1
			_2q2 := 2 * q2
			_2q3 := 2 * q3
			q0q0 := q0 * q0
			q0q1 := q0 * q1
			q0q2 := q0 * q2
			q0q3 := q0 * q3
			q1q1 := q1 * q1
			q1q2 := q1 * q2
			q1q3 := q1 * q3
			q2q2 := q2 * q2
			q2q3 := q2 * q3
			q3q3 := q3 * q3

			hx := mx*q0q0 - _2q0my*q3 + _2q0mz*q2 + mx*q1q1 + _2q1*my*q2 + _2q1*mz*q3 - mx*q2q2 - mx*q3q3
			hy := _2q0mx*q3 + my*q0q0 - _2q0mz*q1 + _2q1mx*q2 - my*q1q1 + my*q2q2 + _2q2*mz*q3 - my*q3q3
			_2bx := math.Sqrt(hx*hx + hy*hy)
			_2bz := -_2q0mx*q2 + _2q0my*q1 + mz*q0q0 + _2q1mx*q3 - mz*q1q1 + _2q2*my*q3 - mz*q2q2 + mz*q3q3
			_4bx := 2 * _2bx
			_4bz := 2 * _2bz

			// Gradient descent algorithm corrective step.
			s0 = -_2q2*(2*(q1q3-q0q2)-ax) + _2q1*(2*(q0q1+q2q3)-ay) -
				_2bz*q2*(_2bx*(0.5-q2q2-q3q3)+_2bz*(q1q3-q0q2)-mx) +
				(-_2bx*q3+_2bz*q1)*(_2bx*(q1q2-q0q3)+_2bz*(q0q1+q2q3)-my) +
				_2bx*q2*(_2bx*(q0q2+q1q3)+_2bz*(0.5-q1q1-q2q2)-mz)
			s1 = _2q3*(2*(q1q3-q0q2)-ax) + _2q0*(2*(q0q1+q2q3)-ay) -
				4*q1*(1-2*(q1q1+q2q2)-az) +
				_2bz*q3*(_2bx*(0.5-q2q2-q3q3)+_2bz*(q1q3-q0q2)-mx) +
				(_2bx*q2+_2bz*q0)*(_2bx*(q1q2-q0q3)+_2bz*(q0q1+q2q3)-my) +
				(_2bx*q3-_4bz*q1)*(_2bx*(q0q2+q1q3)+_2bz*(0.5-q1q1-q2q2)-mz)
			s2 = -_2q0*(2*(q1q3-q0q2)-ax) + _2q3*(2*(q0q1+q2q3)-ay) -
				4*q2*(1-2*(q1q1+q2q2)-az) +
				(-_4bx*q2-_2bz*q0)*(_2bx*(0.5-q2q2-q3q3)+_2bz*(q1q3-q0q2)-mx) +
				(_2bx*q1+_2bz*q3)*(_2bx*(q1q2-q0q3)+_2bz*(q0q1+q2q3)-my) +
				(_2bx*q0-_4bz*q2)*(_2bx*(q0q2+q1q3)+_2bz*(0.5-q1q1-q2q2)-mz)
			s3 = _2q1*(2*(q1q3-q0q2)-ax) + _2q2*(2*(q0q1+q2q3)-ay) +
				(-_4bx*q3+_2bz*q1)*(_2bx*(0.5-q2q2-q3q3)+_2bz*(q1q3-q0q2)-mx) +
				(-_2bx*q0+_2bz*q2)*(_2bx*(q1q2-q0q3)+_2bz*(q0q1+q2q3)-my) +
				_2bx*q1*(_2bx*(q0q2+q1q3)+_2bz*(0.5-q1q1-q2q2)-mz)
		} else {
			_2q0 := 2 * q0
			_2q1 := 2 * q1
			_2q2 := 2 * q2
			_2q3 := 2 * q3
			_4q0 := 4 * q0
			_4q1 := 4 * q1
			_4q2 := 4 * q2
			_8q1 := 8 * q1
			_8q2 := 8 * q2
			q0q0 := q0 * q0
			q1q1 := q1 * q1
			q2q2 := q2 * q2
			q3q3 := q3 * q3

			s0 = _4q0*q2q2 + _2q2*ax + _4q0*q1q1 - _2q1*ay
			s1 = _4q1*q3q3 - _2q3*ax + 4*q0q0*q1 - _2q0*ay - _4q1 + _8q1*q1q1 + _8q1*q2q2 + _4q1*az
			s2 = 4*q0q0*q2 + _2q0*ax + _4q2*q3q3 - _2q3*ay - _4q2 + _8q2*q1q1 + _8q2*q2q2 + _4q2*az
			s3 = 4*q1q1*q3 - _2q1*ax + 4*q2q2*q3 - _2q2*ay
		}

		sNorm := math.Sqrt(s0*s0 + s1*s1 + s2*s2 + s3*s3)
		if sNorm >= epsilon {
			s0, s1, s2, s3 = s0/sNorm, s1/sNorm, s2/sNorm, s3/sNorm
			qDot1 -= beta * s0
			qDot2 -= beta * s1
			qDot3 -= beta * s2
			qDot4 -= beta * s3
		}
	}

	q0 += qDot1 * dt
	q1 += qDot2 * dt
	q2 += qDot3 * dt
	q3 += qDot4 * dt

	next := Quaternion{q0, q1, q2, q3}
	if next.IsNaN() {
		return ErrNaN
	}
	a.q = next.Normalized()
	if a.q.IsNaN() {
		return ErrNaN
	}
	return nil
}

// ExpectedField rotates the geomagnetic reference from world into device
// frame and adds the supplied hard-iron offset, giving the field the
// magnetometer should read in the absence of local anomalies. ok is false
// when ref is the zero value (no reference established yet).
func (a *AHRS) ExpectedField(ref geomag.Reference, hardIronUT Vector3) (Vector3, bool) {
	if ref == (geomag.Reference{}) {
		return Vector3{}, false
	}
	world := vec3{x: ref.Horizontal, y: 0, z: ref.Vertical}
	body := rotateWorldToBody(a.q, world)
	return Vector3{
		X: body.x + hardIronUT.X,
		Y: body.y + hardIronUT.Y,
		Z: body.z + hardIronUT.Z,
	}, true
}
