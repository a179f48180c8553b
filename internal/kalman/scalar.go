// Package kalman implements the scalar per-axis smoother (pipeline stage
// 8) and the six-DOF constant-velocity filter bank used to track the
// five fingers.
package kalman

import "sync"

// Config holds the scalar filter's tunable noise parameters.
type Config struct {
	ProcessNoise     float64
	MeasurementNoise float64
	InitialCovariance float64
}

// DefaultConfig matches spec.md §6's configurable-but-unspecified Q/R
// defaults: small process noise (the residual changes slowly between
// samples) and a measurement noise sized to raw sensor jitter.
var DefaultConfig = Config{ProcessNoise: 0.01, MeasurementNoise: 1.0, InitialCovariance: 1.0}

// Scalar is a 1D Kalman filter over a single scalar measurement stream.
type Scalar struct {
	mu sync.Mutex

	x float64 // state estimate
	p float64 // estimate covariance
	q float64 // process noise
	r float64 // measurement noise

	initialized bool
}

// NewScalar returns a Scalar filter configured with cfg.
func NewScalar(cfg Config) *Scalar {
	return &Scalar{p: cfg.InitialCovariance, q: cfg.ProcessNoise, r: cfg.MeasurementNoise}
}

// Update folds one measurement into the filter and returns the smoothed
// estimate.
func (s *Scalar) Update(measurement float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		s.x = measurement
		s.initialized = true
		return s.x
	}

	// Predict.
	pPred := s.p + s.q

	// Update.
	k := pPred / (pPred + s.r)
	s.x = s.x + k*(measurement-s.x)
	s.p = (1 - k) * pPred

	return s.x
}

// Reset clears the filter back to an uninitialized state.
func (s *Scalar) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x, s.p, s.initialized = 0, 0, false
}

// Vector3Filter runs three independent Scalar filters, one per axis, for
// smoothing the residual's x/y/z components (spec.md §4.7).
type Vector3Filter struct {
	X, Y, Z *Scalar
}

// NewVector3Filter returns a Vector3Filter with all three axes
// configured identically from cfg.
func NewVector3Filter(cfg Config) *Vector3Filter {
	return &Vector3Filter{X: NewScalar(cfg), Y: NewScalar(cfg), Z: NewScalar(cfg)}
}

// Update filters one Vector3 measurement componentwise.
func (f *Vector3Filter) Update(x, y, z float64) (fx, fy, fz float64) {
	return f.X.Update(x), f.Y.Update(y), f.Z.Update(z)
}

// Reset clears all three axis filters.
func (f *Vector3Filter) Reset() {
	f.X.Reset()
	f.Y.Reset()
	f.Z.Reset()
}
