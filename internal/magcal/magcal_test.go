package magcal

import (
	"math"
	"testing"
)

// simulateRotation feeds a tumbling full 3-axis rotation under a constant
// Earth field magnitude plus a hard-iron offset, approximating spec.md's
// E2 boundary scenario: two independent rotation angles sweeping at
// different rates so each raw axis independently spans roughly +-E.
func simulateRotation(c *Calibrator, n int, earthUT, hardIron Vector3) State {
	e := earthUT.X
	if e == 0 {
		e = math.Sqrt(earthUT.X*earthUT.X + earthUT.Y*earthUT.Y + earthUT.Z*earthUT.Z)
	}
	var last State
	for i := 0; i < n; i++ {
		a1 := 2 * math.Pi * float64(i) / 97
		a2 := 2 * math.Pi * float64(i) / 131
		rotated := Vector3{
			X: e * math.Sin(a1),
			Y: e * math.Cos(a1) * math.Sin(a2),
			Z: e * math.Cos(a1) * math.Cos(a2),
		}
		measured := Vector3{
			X: rotated.X + hardIron.X,
			Y: rotated.Y + hardIron.Y,
			Z: rotated.Z + hardIron.Z,
		}
		last = c.Observe(measured, false, Vector3{}, false, 0.02)
	}
	return last
}

func TestHardIronRecovered(t *testing.T) {
	c := New(0)
	hardIron := Vector3{X: 5, Y: -3, Z: 8}
	earth := Vector3{X: 49, Y: 0, Z: 0}
	state := simulateRotation(c, 3000, earth, hardIron)

	if !state.AutoHardIronReady {
		t.Fatal("expected autoHardIronReady after full rotation coverage")
	}
	if math.Abs(state.HardIron.X-hardIron.X) > 1.0 ||
		math.Abs(state.HardIron.Y-hardIron.Y) > 1.0 ||
		math.Abs(state.HardIron.Z-hardIron.Z) > 1.0 {
		t.Fatalf("recovered hard iron = %+v, want near %+v", state.HardIron, hardIron)
	}
}

func TestAutoHardIronReadyRangeInvariant(t *testing.T) {
	c := New(0)
	state := simulateRotation(c, 3000, Vector3{X: 49}, Vector3{})
	if !state.AutoHardIronReady {
		t.Fatal("expected ready")
	}
	threshold := 1.5 * state.EarthMagnitude
	if state.EarthMagnitude == 0 {
		threshold = 1.5 * FallbackEarthMagnitude
	}
	if state.AxisRanges.X < threshold || state.AxisRanges.Y < threshold || state.AxisRanges.Z < threshold {
		t.Fatalf("ranges %+v below threshold %v despite ready=true", state.AxisRanges, threshold)
	}
}

func TestStationaryEarthFieldConverges(t *testing.T) {
	c := New(0)
	var state State
	for i := 0; i < 200; i++ {
		state = c.Observe(Vector3{X: 20, Y: 0, Z: 45}, true, Vector3{}, false, 0.02)
	}
	want := math.Sqrt(20*20 + 45*45)
	if !state.Ready {
		t.Fatal("expected ready after 200 stationary samples at constant field")
	}
	if math.Abs(state.EarthMagnitude-want) > 1 {
		t.Fatalf("earthMagnitude = %v, want within 1 of %v", state.EarthMagnitude, want)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	c := New(0)
	simulateRotation(c, 300, Vector3{X: 49}, Vector3{X: 5, Y: -3, Z: 8})

	blob, err := c.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	c2 := New(0)
	if err := c2.Load(blob); err != nil {
		t.Fatalf("load: %v", err)
	}

	s1 := c.Observe(Vector3{X: 1, Y: 2, Z: 3}, false, Vector3{}, false, 0.02)
	s2 := c2.Observe(Vector3{X: 1, Y: 2, Z: 3}, false, Vector3{}, false, 0.02)

	if s1.HardIron != s2.HardIron {
		t.Fatalf("hard iron mismatch after round trip: %+v vs %+v", s1.HardIron, s2.HardIron)
	}
}

func TestBlobRevisionOrdersSaves(t *testing.T) {
	c := New(0)
	b1, _ := c.Save()
	b2, _ := c.Save()

	r1, _ := BlobRevision(b1)
	r2, _ := BlobRevision(b2)
	if r2 <= r1 {
		t.Fatalf("expected monotonically increasing revisions, got %d then %d", r1, r2)
	}
}

func TestConfidenceBounded(t *testing.T) {
	c := New(0)
	state := simulateRotation(c, 300, Vector3{X: 49}, Vector3{})
	if state.Confidence < 0 || state.Confidence > 1 {
		t.Fatalf("confidence = %v, want in [0,1]", state.Confidence)
	}
}
