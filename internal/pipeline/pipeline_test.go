package pipeline

import (
	"math"
	"testing"

	"github.com/wristcuff/fingertrace/internal/imu"
)

// rawFromPhysical packs physical units back into raw LSB the way a
// simulated device would, inverting the Stage 1 conversions up to int16
// truncation (including the mx/my axis swap Stage 1 undoes).
func rawFromPhysical(accelG, gyroDps, magUT Vector3, tMs uint32) imu.RawSample {
	return imu.RawSample{
		Ax: int16(accelG.X * accelLSBPerG),
		Ay: int16(accelG.Y * accelLSBPerG),
		Az: int16(accelG.Z * accelLSBPerG),
		Gx: int16(gyroDps.X * gyroLSBPerDps),
		Gy: int16(gyroDps.Y * gyroLSBPerDps),
		Gz: int16(gyroDps.Z * gyroLSBPerDps),
		// Pack with axes pre-swapped so after Stage 1's swap the caller's
		// intended (X,Y) land where they expect.
		Mx:          int16(magUT.Y / magUTPerLSB),
		My:          int16(magUT.X / magUTPerLSB),
		Mz:          int16(magUT.Z / magUTPerLSB),
		TimestampMs: tMs,
	}
}

func TestStage1PreservesRawFields(t *testing.T) {
	p := New(DefaultConfig)
	raw := rawFromPhysical(Vector3{Z: 1}, Vector3{}, Vector3{X: 20, Z: 45}, 0)
	raw.Light, raw.HasLight = 200, true

	s, err := p.Process(raw)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if s.Raw != raw {
		t.Fatalf("raw field mutated: got %+v, want %+v", s.Raw, raw)
	}
}

func TestStationaryDarkRoom(t *testing.T) {
	p := New(DefaultConfig)

	var last Stage
	for i := 0; i < 1000; i++ {
		raw := rawFromPhysical(Vector3{Z: 1}, Vector3{}, Vector3{X: 20, Z: 45}, uint32(i*38))
		s, err := p.Process(raw)
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		last = s
	}

	if last.IsMoving {
		t.Fatal("expected isMoving=false throughout stationary stream")
	}
	if math.Abs(last.GyroBiasDps.X) > 0.01 || math.Abs(last.GyroBiasDps.Y) > 0.01 || math.Abs(last.GyroBiasDps.Z) > 0.01 {
		t.Fatalf("gyro bias = %+v, want within 0.01 dps of 0", last.GyroBiasDps)
	}
	if math.Abs(last.Euler.Roll) > 0.5 || math.Abs(last.Euler.Pitch) > 0.5 {
		t.Fatalf("euler = %+v, want roll/pitch near 0", last.Euler)
	}
	wantEarth := math.Sqrt(20*20 + 45*45)
	if math.Abs(last.Calibration.EarthMagnitude-wantEarth) > 1 {
		t.Fatalf("earthMagnitude = %v, want within 1 of %v", last.Calibration.EarthMagnitude, wantEarth)
	}
	if last.Detection.Status != 0 {
		t.Fatalf("detection status = %v, want none", last.Detection.Status)
	}
}

func TestDroppedSampleDtClamp(t *testing.T) {
	p := New(DefaultConfig)
	raw1 := rawFromPhysical(Vector3{Z: 1}, Vector3{}, Vector3{X: 20, Z: 45}, 0)
	if _, err := p.Process(raw1); err != nil {
		t.Fatalf("process: %v", err)
	}

	raw2 := rawFromPhysical(Vector3{Z: 1}, Vector3{}, Vector3{X: 20, Z: 45}, 40)
	s, err := p.Process(raw2)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if math.Abs(s.DtS-0.04) > 1e-9 {
		t.Fatalf("dt = %v, want 0.04 for a 40ms gap", s.DtS)
	}
	if s.Quaternion.IsNaN() {
		t.Fatal("quaternion went NaN across a dropped sample")
	}
}

func TestResetClearsSessionStateNotCalibration(t *testing.T) {
	p := New(DefaultConfig)
	for i := 0; i < 200; i++ {
		raw := rawFromPhysical(Vector3{Z: 1}, Vector3{}, Vector3{X: 20, Z: 45}, uint32(i*38))
		if _, err := p.Process(raw); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	before := p.cal.Observe(magcalV(Vector3{X: 20, Z: 45}), true, magcalV(Vector3{}), false, 0.02)

	p.Reset()

	after := p.cal.Observe(magcalV(Vector3{X: 20, Z: 45}), true, magcalV(Vector3{}), false, 0.02)
	if before.TotalSamples+1 != after.TotalSamples {
		t.Fatalf("calibration sample count reset unexpectedly: before=%d after=%d", before.TotalSamples, after.TotalSamples)
	}
}
