package kalman

import "math"

// FingerConfig holds the per-finger 6-DOF filter's noise parameters
// (spec.md §4.8: Q = qI6, R = rI3).
type FingerConfig struct {
	ProcessNoise     float64 // q
	MeasurementNoise float64 // r
}

// DefaultFingerConfig is a reasonable starting point for millimeter-scale
// position tracking at a few tens of Hz.
var DefaultFingerConfig = FingerConfig{ProcessNoise: 0.5, MeasurementNoise: 4.0}

// mat6 is a dense 6x6 matrix, row-major.
type mat6 [6][6]float64

// Finger is a single 6-DOF constant-velocity Kalman filter tracking one
// finger's position and velocity in mm and mm/s.
type Finger struct {
	x           [6]float64 // x, y, z, vx, vy, vz
	p           mat6
	q           float64
	r           float64
	Initialized bool
}

// NewFinger returns an uninitialized Finger filter.
func NewFinger(cfg FingerConfig) *Finger {
	return &Finger{q: cfg.ProcessNoise, r: cfg.MeasurementNoise}
}

// Initialize seeds position at pos with zero velocity and an identity
// covariance scaled generously to reflect initial uncertainty.
func (f *Finger) Initialize(pos [3]float64) {
	f.x = [6]float64{pos[0], pos[1], pos[2], 0, 0, 0}
	var p mat6
	for i := 0; i < 6; i++ {
		p[i][i] = 100
	}
	f.p = p
	f.Initialized = true
}

// Predict advances the state by dt under the constant-velocity model.
func (f *Finger) Predict(dt float64) {
	F := identity6()
	F[0][3], F[1][4], F[2][5] = dt, dt, dt

	f.x = mulVec(F, f.x)

	ft := transpose6(F)
	f.p = addMat(mulMat(mulMat(F, f.p), ft), processNoise(f.q))
	f.symmetrize()
}

// Update folds a position measurement into the filter.
func (f *Finger) Update(pos [3]float64) {
	// H selects position: z = H x, H = [I3 | 0].
	innovation := [3]float64{
		pos[0] - f.x[0],
		pos[1] - f.x[1],
		pos[2] - f.x[2],
	}

	// S = H P Hᵀ + R, the top-left 3x3 block of P plus rI3.
	var s [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s[i][j] = f.p[i][j]
		}
		s[i][i] += f.r
	}

	sInv := invert3(s)

	// K = P Hᵀ S^-1: the first three columns of P, times sInv, giving a
	// 6x3 gain.
	var k [6][3]float64
	for i := 0; i < 6; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for l := 0; l < 3; l++ {
				sum += f.p[i][l] * sInv[l][j]
			}
			k[i][j] = sum
		}
	}

	for i := 0; i < 6; i++ {
		var delta float64
		for j := 0; j < 3; j++ {
			delta += k[i][j] * innovation[j]
		}
		f.x[i] += delta
	}

	// P = (I - K H) P. K H has nonzero columns only in its first three
	// columns (H's structure), so apply it as P -= K * P[:3].
	var kp mat6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			var sum float64
			for l := 0; l < 3; l++ {
				sum += k[i][l] * f.p[l][j]
			}
			kp[i][j] = sum
		}
	}
	f.p = subMat(f.p, kp)
	f.symmetrize()
}

// Position returns the current position estimate in mm.
func (f *Finger) Position() [3]float64 { return [3]float64{f.x[0], f.x[1], f.x[2]} }

// Velocity returns the current velocity estimate in mm/s.
func (f *Finger) Velocity() [3]float64 { return [3]float64{f.x[3], f.x[4], f.x[5]} }

// symmetrize enforces P = (P + Pᵀ)/2 after every update, per spec.md §5.
func (f *Finger) symmetrize() {
	var out mat6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			out[i][j] = (f.p[i][j] + f.p[j][i]) / 2
		}
	}
	f.p = out
}

// Bank is five independent Finger filters, one per finger.
type Bank [5]*Finger

// NewBank returns a Bank with all five fingers configured identically.
func NewBank(cfg FingerConfig) *Bank {
	var b Bank
	for i := range b {
		b[i] = NewFinger(cfg)
	}
	return &b
}

func identity6() mat6 {
	var m mat6
	for i := 0; i < 6; i++ {
		m[i][i] = 1
	}
	return m
}

func processNoise(q float64) mat6 {
	var m mat6
	for i := 0; i < 6; i++ {
		m[i][i] = q
	}
	return m
}

func mulMat(a, b mat6) mat6 {
	var out mat6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			var sum float64
			for k := 0; k < 6; k++ {
				sum += a[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

func mulVec(a mat6, v [6]float64) [6]float64 {
	var out [6]float64
	for i := 0; i < 6; i++ {
		var sum float64
		for j := 0; j < 6; j++ {
			sum += a[i][j] * v[j]
		}
		out[i] = sum
	}
	return out
}

func transpose6(a mat6) mat6 {
	var out mat6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			out[j][i] = a[i][j]
		}
	}
	return out
}

func addMat(a, b mat6) mat6 {
	var out mat6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			out[i][j] = a[i][j] + b[i][j]
		}
	}
	return out
}

func subMat(a, b mat6) mat6 {
	var out mat6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			out[i][j] = a[i][j] - b[i][j]
		}
	}
	return out
}

// singularGuard is the minimum determinant magnitude below which invert3
// returns the identity rather than a numerically unstable inverse
// (spec.md §4.8).
const singularGuard = 1e-10

// invert3 computes the closed-form cofactor inverse of a 3x3 matrix,
// returning the identity if the matrix is singular within singularGuard.
func invert3(m [3][3]float64) [3][3]float64 {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])

	if math.Abs(det) < singularGuard {
		return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}

	invDet := 1 / det
	var out [3][3]float64
	out[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) * invDet
	out[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * invDet
	out[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * invDet
	out[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) * invDet
	out[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * invDet
	out[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * invDet
	out[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) * invDet
	out[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * invDet
	out[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * invDet
	return out
}
