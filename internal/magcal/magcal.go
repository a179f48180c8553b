// Package magcal implements the online magnetometer calibrator: auto
// hard-iron estimation, diagonal soft-iron scaling, Earth-field magnitude
// estimation, a composite confidence score, and revision-counted
// persistence across sessions.
package magcal

import "math"

// Vector3 is a small float vector local to this package.
type Vector3 struct{ X, Y, Z float64 }

// FallbackEarthMagnitude is used for the hard-iron-readiness threshold
// before the Earth-field estimate itself is ready (spec.md §4.5).
const FallbackEarthMagnitude = 50.0

// DefaultMinStationarySamples is the default number of stationary samples
// the Earth-field estimator requires before it can become ready, used when
// New is called with a non-positive value.
const DefaultMinStationarySamples = 50

// State is the externally-visible snapshot of the calibrator.
type State struct {
	HardIron      Vector3
	SoftIronScale Vector3
	EarthMagnitude float64
	AxisRanges    Vector3

	AutoHardIronProgress float64
	AutoHardIronReady    bool
	Ready                bool
	HardIronCalibrated   bool
	SoftIronCalibrated   bool

	MeanResidual float64
	Confidence   float64
	TotalSamples uint64
}

// PersistError wraps a calibration load/save failure. Persistence errors
// are surfaced to the caller but never halt the pipeline — the online
// estimator re-learns from an empty state.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string { return "magcal: " + e.Op + ": " + e.Err.Error() }
func (e *PersistError) Unwrap() error { return e.Err }

type axisTracker struct {
	min, max float64
	seen     bool
}

func (t *axisTracker) observe(v float64) {
	if !t.seen {
		t.min, t.max, t.seen = v, v, true
		return
	}
	if v < t.min {
		t.min = v
	}
	if v > t.max {
		t.max = v
	}
}

func (t *axisTracker) rangeOf() float64 {
	if !t.seen {
		return 0
	}
	return t.max - t.min
}

func (t *axisTracker) mid() float64 {
	if !t.seen {
		return 0
	}
	return (t.min + t.max) / 2
}

// Calibrator accumulates raw magnetometer observations to estimate
// hard-iron offset, soft-iron scale, and the local Earth-field magnitude.
type Calibrator struct {
	axes [3]axisTracker

	minStationarySamples int

	earthMean   float64
	earthM2     float64 // running sum of squared deviation, for stddev
	earthCount  int

	meanResidual float64
	residualInit bool

	totalSamples uint64
	revision     uint64

	// SaveFn is invoked on the autoHardIronReady transition and then
	// every PersistIntervalS seconds thereafter. It is the caller-supplied
	// sink; the calibrator never blocks waiting on it.
	SaveFn func(blob []byte)

	timeSinceSaveS    float64
	wasAutoHardIronOK bool
}

// New returns a Calibrator with empty state. minStationarySamples is the
// number of stationary samples the Earth-field estimate requires before
// becoming ready (spec.md §6); a non-positive value falls back to
// DefaultMinStationarySamples.
func New(minStationarySamples int) *Calibrator {
	if minStationarySamples <= 0 {
		minStationarySamples = DefaultMinStationarySamples
	}
	return &Calibrator{minStationarySamples: minStationarySamples}
}

// PersistIntervalS is the periodic save cadence after the on-transition
// save, per spec.md §4.5.
const PersistIntervalS = 10.0

// Observe folds one raw (already unit-converted) magnetometer reading
// into the calibrator. isStationary comes from the motion detector and
// gates the Earth-field estimate. expectedDeviceField/hasExpected is the
// AHRS's current prediction, used to update meanResidual. dt advances the
// periodic-save timer.
func (c *Calibrator) Observe(measuredUT Vector3, isStationary bool, expectedDeviceField Vector3, hasExpected bool, dt float64) State {
	c.axes[0].observe(measuredUT.X)
	c.axes[1].observe(measuredUT.Y)
	c.axes[2].observe(measuredUT.Z)
	c.totalSamples++

	rangeX := c.axes[0].rangeOf()
	rangeY := c.axes[1].rangeOf()
	rangeZ := c.axes[2].rangeOf()

	earthRef := c.earthMagnitudeOrFallback()
	threshold := 1.5 * earthRef

	autoReady := threshold > 0 && rangeX >= threshold && rangeY >= threshold && rangeZ >= threshold
	minRange := math.Min(rangeX, math.Min(rangeY, rangeZ))
	progress := 0.0
	if threshold > 0 {
		progress = clip01(minRange / threshold)
	}

	hardIron := Vector3{c.axes[0].mid(), c.axes[1].mid(), c.axes[2].mid()}

	var softIron Vector3
	softIronCalibrated := false
	if autoReady && rangeX > 0 && rangeY > 0 && rangeZ > 0 {
		meanRange := (rangeX + rangeY + rangeZ) / 3
		softIron = Vector3{meanRange / rangeX, meanRange / rangeY, meanRange / rangeZ}
		softIronCalibrated = true
	} else {
		softIron = Vector3{1, 1, 1}
	}

	// A hard-iron estimate from near-zero axis range carries no real
	// information (min==max on the very first sample would otherwise
	// cancel the entire measured field). Only apply the running
	// hard-iron/soft-iron estimate once rotational coverage makes it
	// trustworthy; until then, use the raw measured field.
	appliedHardIron, appliedSoftIron := Vector3{}, Vector3{1, 1, 1}
	if autoReady {
		appliedHardIron, appliedSoftIron = hardIron, softIron
	}

	corrected := Vector3{
		X: (measuredUT.X - appliedHardIron.X) * appliedSoftIron.X,
		Y: (measuredUT.Y - appliedHardIron.Y) * appliedSoftIron.Y,
		Z: (measuredUT.Z - appliedHardIron.Z) * appliedSoftIron.Z,
	}

	if isStationary {
		c.accumulateEarthField(normOf(corrected))
	}

	earthReady := c.earthCount >= c.minStationarySamples && c.earthStdDev() < 0.1*c.earthMeanOrZero()

	if hasExpected {
		res := normOf(Vector3{
			X: corrected.X - expectedDeviceField.X,
			Y: corrected.Y - expectedDeviceField.Y,
			Z: corrected.Z - expectedDeviceField.Z,
		})
		const residualAlpha = 0.05
		if !c.residualInit {
			c.meanResidual = res
			c.residualInit = true
		} else {
			c.meanResidual += residualAlpha * (res - c.meanResidual)
		}
	}

	confidence := c.confidence(progress, earthReady)

	c.timeSinceSaveS += dt
	if autoReady && !c.wasAutoHardIronOK {
		c.emitSave(hardIron, softIron, earthReady)
	} else if autoReady && c.timeSinceSaveS >= PersistIntervalS {
		c.emitSave(hardIron, softIron, earthReady)
	}
	c.wasAutoHardIronOK = autoReady

	return State{
		HardIron:             hardIron,
		SoftIronScale:        softIron,
		EarthMagnitude:       c.earthMeanOrZero(),
		AxisRanges:           Vector3{rangeX, rangeY, rangeZ},
		AutoHardIronProgress: progress,
		AutoHardIronReady:    autoReady,
		Ready:                earthReady,
		HardIronCalibrated:   c.axes[0].seen && c.axes[1].seen && c.axes[2].seen,
		SoftIronCalibrated:   softIronCalibrated,
		MeanResidual:         c.meanResidual,
		Confidence:           confidence,
		TotalSamples:         c.totalSamples,
	}
}

// Apply transforms a raw magnetometer reading using the current
// hard-iron/soft-iron estimate. Idempotent given identical calibrator
// state, as required by spec.md §3.
func (c *Calibrator) Apply(measuredUT Vector3) Vector3 {
	hardIron := Vector3{c.axes[0].mid(), c.axes[1].mid(), c.axes[2].mid()}
	rangeX, rangeY, rangeZ := c.axes[0].rangeOf(), c.axes[1].rangeOf(), c.axes[2].rangeOf()
	soft := Vector3{1, 1, 1}
	if rangeX > 0 && rangeY > 0 && rangeZ > 0 {
		meanRange := (rangeX + rangeY + rangeZ) / 3
		soft = Vector3{meanRange / rangeX, meanRange / rangeY, meanRange / rangeZ}
	}
	return Vector3{
		X: (measuredUT.X - hardIron.X) * soft.X,
		Y: (measuredUT.Y - hardIron.Y) * soft.Y,
		Z: (measuredUT.Z - hardIron.Z) * soft.Z,
	}
}

func (c *Calibrator) earthMagnitudeOrFallback() float64 {
	if c.earthCount >= c.minStationarySamples {
		return c.earthMeanOrZero()
	}
	return FallbackEarthMagnitude
}

func (c *Calibrator) accumulateEarthField(magnitude float64) {
	c.earthCount++
	delta := magnitude - c.earthMean
	c.earthMean += delta / float64(c.earthCount)
	delta2 := magnitude - c.earthMean
	c.earthM2 += delta * delta2
}

func (c *Calibrator) earthMeanOrZero() float64 {
	if c.earthCount == 0 {
		return 0
	}
	return c.earthMean
}

func (c *Calibrator) earthStdDev() float64 {
	if c.earthCount < 2 {
		return math.Inf(1)
	}
	return math.Sqrt(c.earthM2 / float64(c.earthCount))
}

// confidence is a composite score from autoHardIronProgress, the ready
// flag, and an inverse function of meanResidual, per spec.md §4.5.
func (c *Calibrator) confidence(progress float64, ready bool) float64 {
	readyScore := 0.0
	if ready {
		readyScore = 1
	}
	residualScore := 1 / (1 + c.meanResidual/5)
	return clip01(0.4*progress + 0.3*readyScore + 0.3*residualScore)
}

func normOf(v Vector3) float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
