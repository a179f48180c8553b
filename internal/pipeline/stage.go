// Package pipeline implements the eight-stage streaming telemetry cascade:
// unit conversion, motion detection, gyro bias tracking, AHRS fusion,
// magnetometer calibration, residual forming, magnet detection and
// per-axis Kalman smoothing. Each sample is processed to completion before
// the next is accepted; there is no inter-stage queue.
package pipeline

import (
	"math"

	"github.com/wristcuff/fingertrace/internal/ahrs"
	"github.com/wristcuff/fingertrace/internal/imu"
	"github.com/wristcuff/fingertrace/internal/magcal"
	"github.com/wristcuff/fingertrace/internal/magdetect"
)

// Kind discriminates the nine Stage variants. Downstream code should switch
// on Kind (or use the Has* predicates below) rather than probe for fields.
type Kind int

const (
	KindRaw Kind = iota
	KindConverted
	KindMotion
	KindBiased
	KindOriented
	KindCalibrated
	KindResidual
	KindDetected
	KindSmoothed
)

// Stage is the additive record that flows through the pipeline. Every
// later stage embeds everything an earlier stage produced; fields are
// grouped by the stage that introduces them so HasX predicates can test
// a single bool instead of probing for zero values.
type Stage struct {
	Kind Kind

	Raw imu.RawSample

	// Stage 1 — unit converter
	AccelG   Vector3
	GyroDps  Vector3
	MagUT    Vector3
	DtS      float64
	Warnings []string

	// Stage 2 — motion detector
	AccelStdLSB float64
	GyroStdLSB  float64
	IsMoving    bool

	// Stage 3 — gyro bias estimator
	GyroBiasDps Vector3
	BiasReady   bool

	// Stage 4 — AHRS
	Quaternion    ahrs.Quaternion
	Euler         ahrs.EulerAngles
	ExpectedField Vector3
	HasExpected   bool

	// Stage 5 — magnetometer calibrator
	Calibration magcal.State

	// Stage 6 — residual former
	Residual    Vector3
	ResidualMag float64

	// Stage 7 — magnet detector
	Detection magdetect.State

	// Stage 8 — Kalman smoother
	FilteredResidual Vector3
}

// Vector3 is a plain 3-component float vector shared across pipeline
// stages. It intentionally carries no methods beyond simple helpers —
// component math lives in the package that owns the semantics (ahrs,
// magcal, kalman, particle).
type Vector3 struct {
	X, Y, Z float64
}

func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector3) Scale(k float64) Vector3 {
	return Vector3{v.X * k, v.Y * k, v.Z * k}
}
func (v Vector3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// HasMotion reports whether the motion-detector fields are populated.
func (s Stage) HasMotion() bool { return s.Kind >= KindMotion }

// HasBias reports whether the gyro-bias fields are populated.
func (s Stage) HasBias() bool { return s.Kind >= KindBiased }

// HasOrientation reports whether quaternion/Euler fields are populated.
func (s Stage) HasOrientation() bool { return s.Kind >= KindOriented }

// HasCalibration reports whether the magnetometer calibration snapshot is populated.
func (s Stage) HasCalibration() bool { return s.Kind >= KindCalibrated }

// HasMagResidual reports whether the residual fields are populated.
func (s Stage) HasMagResidual() bool { return s.Kind >= KindResidual }

// HasDetection reports whether the magnet-detector fields are populated.
func (s Stage) HasDetection() bool { return s.Kind >= KindDetected }

// HasSmoothed reports whether the Kalman-smoothed residual is populated.
func (s Stage) HasSmoothed() bool { return s.Kind >= KindSmoothed }
