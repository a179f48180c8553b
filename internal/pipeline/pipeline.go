package pipeline

import (
	"errors"

	"github.com/wristcuff/fingertrace/internal/ahrs"
	"github.com/wristcuff/fingertrace/internal/geomag"
	"github.com/wristcuff/fingertrace/internal/imu"
	"github.com/wristcuff/fingertrace/internal/kalman"
	"github.com/wristcuff/fingertrace/internal/magcal"
	"github.com/wristcuff/fingertrace/internal/magdetect"
)

// ErrInvalidSample is returned when a raw sample cannot be processed at
// all (as opposed to merely carrying implausible-but-processable
// values, which ValidateRaw only warns about). Pipeline state is left
// unchanged when this is returned.
var ErrInvalidSample = errors.New("pipeline: invalid raw sample")

// Pipeline runs one sample at a time through all eight stages. It is not
// safe for concurrent use by multiple goroutines; callers that need
// concurrent sessions should construct one Pipeline per session.
type Pipeline struct {
	cfg Config

	motion *motionDetector
	bias   *gyroBiasEstimator
	ahrs   *ahrs.AHRS
	cal    *magcal.Calibrator
	detect *magdetect.Detector
	smooth *kalman.Vector3Filter

	haveLast     bool
	lastMs       uint32
	lastHardIron Vector3

	// SaveFn, if set, is wired into the calibrator's save callback
	// (spec.md §4.5 persistence). It is never invoked concurrently with
	// Process.
	SaveFn func(blob []byte)
}

// New returns a Pipeline configured with cfg. If the calibrator has a
// previously-saved blob, call LoadCalibration after New and before the
// first Process call.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		motion: newMotionDetector(cfg.MotionWindow),
		bias:   newGyroBiasEstimator(cfg.MadgwickBiasAlpha, cfg.BiasCalibratedSamples),
		ahrs:   ahrs.New(cfg.MadgwickBeta),
		cal:    magcal.New(cfg.MinStationarySamples),
		detect: magdetect.New(),
		smooth: kalman.NewVector3Filter(kalman.Config{
			ProcessNoise:      cfg.KalmanQ,
			MeasurementNoise:  cfg.KalmanR,
			InitialCovariance: 1,
		}),
	}
	p.cal.SaveFn = func(blob []byte) {
		if p.SaveFn != nil {
			p.SaveFn(blob)
		}
	}
	return p
}

// LoadCalibration restores a previously-saved calibration blob.
func (p *Pipeline) LoadCalibration(blob []byte) error {
	return p.cal.Load(blob)
}

// SaveCalibration serializes the current calibration state.
func (p *Pipeline) SaveCalibration() ([]byte, error) {
	return p.cal.Save()
}

// SetGeomagneticReference updates the Earth-field expectation stage 4/5
// use, replacing the session-default reference with one derived from a GPS
// fix's latitude (spec.md §4.11). Safe to call between Process calls only;
// Process itself is not safe for concurrent use.
func (p *Pipeline) SetGeomagneticReference(ref geomag.Reference) {
	p.cfg.GeomagneticReference = ref
}

// Reset clears all per-session stage state (motion window, gyro bias,
// AHRS quaternion, magnet-detector baseline, Kalman smoother). The
// magnetometer calibration is NOT cleared — it persists across session
// resets per spec.md §3.
func (p *Pipeline) Reset() {
	p.motion.reset()
	p.bias.reset()
	p.ahrs.Reset()
	p.detect.Reset()
	p.smooth.Reset()
	p.haveLast = false
}

// Process runs one raw sample through all eight stages.
func (p *Pipeline) Process(raw imu.RawSample) (Stage, error) {
	warnings := imu.ValidateRaw(raw)

	raw64 := [9]float64{
		float64(raw.Ax), float64(raw.Ay), float64(raw.Az),
		float64(raw.Gx), float64(raw.Gy), float64(raw.Gz),
		float64(raw.Mx), float64(raw.My), float64(raw.Mz),
	}
	accelG, gyroDps, magUT := convert(raw64)

	var deltaT float64
	if p.haveLast {
		deltaT = dt(raw.TimestampMs, p.lastMs)
	} else {
		deltaT = 1.0 / p.cfg.SampleFreqHz
	}
	p.lastMs = raw.TimestampMs
	p.haveLast = true

	s := Stage{
		Kind:     KindConverted,
		Raw:      raw,
		AccelG:   accelG,
		GyroDps:  gyroDps,
		MagUT:    magUT,
		DtS:      deltaT,
		Warnings: warnings,
	}

	// Stage 2 — motion detector runs on raw LSB magnitudes.
	accelMagLSB := magnitude3(raw64[0], raw64[1], raw64[2])
	gyroMagLSB := magnitude3(raw64[3], raw64[4], raw64[5])
	mr := p.motion.observe(accelMagLSB, gyroMagLSB, p.cfg.MotionAccelStdLSB, p.cfg.MotionGyroStdLSB)
	s.Kind = KindMotion
	s.AccelStdLSB = mr.accelStdLSB
	s.GyroStdLSB = mr.gyroStdLSB
	s.IsMoving = mr.isMoving

	// Stage 3 — gyro bias estimator.
	bias, calibrated := p.bias.observe(gyroDps, !mr.isMoving)
	s.Kind = KindBiased
	s.GyroBiasDps = bias
	s.BiasReady = calibrated

	// Stage 4 — AHRS.
	beta := p.cfg.MadgwickBeta
	if !calibrated {
		beta = p.cfg.MadgwickUntrustedBeta
	}
	p.ahrs.Beta = beta

	var updateErr error
	if magUT.Norm() > 1e-6 {
		updateErr = p.ahrs.Update9D(toAhrsV(gyroDps), toAhrsV(bias), toAhrsV(accelG), toAhrsV(magUT), p.cfg.MagTrust, deltaT)
	} else {
		updateErr = p.ahrs.Update6D(toAhrsV(gyroDps), toAhrsV(bias), toAhrsV(accelG), deltaT)
	}
	if updateErr != nil {
		return Stage{}, updateErr
	}

	s.Kind = KindOriented
	s.Quaternion = p.ahrs.Quaternion()
	s.Euler = ahrs.Euler(s.Quaternion)

	// The AHRS needs the calibrator's hard-iron estimate to predict the
	// expected device-frame field, but the calibrator needs that same
	// expected field to track meanResidual — a one-sample lag breaks the
	// cycle: we use the hard-iron estimate as of the previous sample,
	// which changes by only a small increment per sample.
	expectedField, hasExpected := p.ahrs.ExpectedField(p.cfg.GeomagneticReference, toAhrsV(p.lastHardIron))
	s.HasExpected = hasExpected
	if hasExpected {
		s.ExpectedField = fromAhrsV(expectedField)
	}

	// Stage 5 — magnetometer calibrator.
	calState := p.cal.Observe(magcalV(magUT), !mr.isMoving, magcalV(s.ExpectedField), hasExpected, deltaT)
	s.Kind = KindCalibrated
	s.Calibration = calState
	p.lastHardIron = Vector3(calState.HardIron)

	// Stage 6 — residual former: measured (already-aligned) field minus
	// the AHRS's expected device-frame field. Pure function, no state.
	if hasExpected {
		s.Residual = s.MagUT.Sub(s.ExpectedField)
		s.ResidualMag = magnitude3(s.Residual.X, s.Residual.Y, s.Residual.Z)
	}
	s.Kind = KindResidual

	// Stage 7 — magnet detector.
	s.Detection = p.detect.Observe(s.ResidualMag)
	s.Kind = KindDetected

	// Stage 8 — per-axis Kalman smoother.
	fx, fy, fz := p.smooth.Update(s.Residual.X, s.Residual.Y, s.Residual.Z)
	s.FilteredResidual = Vector3{X: fx, Y: fy, Z: fz}
	s.Kind = KindSmoothed

	return s, nil
}

func toAhrsV(v Vector3) ahrs.Vector3   { return ahrs.Vector3{X: v.X, Y: v.Y, Z: v.Z} }
func fromAhrsV(v ahrs.Vector3) Vector3 { return Vector3{X: v.X, Y: v.Y, Z: v.Z} }

func magcalV(v Vector3) magcal.Vector3 { return magcal.Vector3{X: v.X, Y: v.Y, Z: v.Z} }
