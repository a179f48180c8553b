package pipeline

import "github.com/wristcuff/fingertrace/internal/geomag"

// Config holds every tunable the pipeline's stages consult, matching the
// configuration keys of spec.md §6. internal/config loads these from a
// KEY=VALUE file for the ambient adapters; tests and library callers can
// build one directly.
type Config struct {
	SampleFreqHz float64

	MadgwickBeta          float64
	MadgwickUntrustedBeta float64
	MadgwickBiasAlpha     float64
	MagTrust              float64

	MotionWindow        int
	MotionAccelStdLSB   float64
	MotionGyroStdLSB    float64

	BiasCalibratedSamples int

	KalmanQ float64
	KalmanR float64

	MinStationarySamples int

	GeomagneticReference geomag.Reference
}

// DefaultConfig matches the literal defaults of spec.md §4 and §6.
var DefaultConfig = Config{
	SampleFreqHz: 26,

	MadgwickBeta:          0.05,
	MadgwickUntrustedBeta: 0.1,
	MadgwickBiasAlpha:     0.2,
	MagTrust:              1.0,

	MotionWindow:      10,
	MotionAccelStdLSB: 2000,
	MotionGyroStdLSB:  500,

	BiasCalibratedSamples: 50,

	KalmanQ: 0.01,
	KalmanR: 1.0,

	MinStationarySamples: 50,

	GeomagneticReference: geomag.Default,
}
