package ahrs

import (
	"math"
	"testing"

	"github.com/wristcuff/fingertrace/internal/geomag"
)

func TestQuaternionStaysUnitNorm(t *testing.T) {
	a := New(DefaultBeta)
	a.InitFromAccel(Vector3{X: 0, Y: 0, Z: 1})

	for i := 0; i < 500; i++ {
		if err := a.Update6D(Vector3{X: 1, Y: -1, Z: 0.5}, Vector3{}, Vector3{X: 0, Y: 0, Z: 1}, 0.02); err != nil {
			t.Fatalf("update: %v", err)
		}
		n := a.Quaternion().Norm()
		if math.Abs(n-1) > 1e-6 {
			t.Fatalf("sample %d: |q|=%v, want within 1e-6 of 1", i, n)
		}
	}
}

func TestStationaryStaysLevel(t *testing.T) {
	a := New(DefaultBeta)
	a.InitFromAccel(Vector3{X: 0, Y: 0, Z: 1})

	for i := 0; i < 1000; i++ {
		if err := a.Update9D(Vector3{}, Vector3{}, Vector3{X: 0, Y: 0, Z: 1}, Vector3{X: 20, Y: 0, Z: 45}, 1.0, 1.0/26); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	e := Euler(a.Quaternion())
	if math.Abs(e.Roll) > 0.5 || math.Abs(e.Pitch) > 0.5 {
		t.Fatalf("euler = %+v, want roll/pitch near 0", e)
	}
}

func TestUpdate6DFallsBackWhenMagZero(t *testing.T) {
	a := New(DefaultBeta)
	a.InitFromAccel(Vector3{X: 0, Y: 0, Z: 1})
	if err := a.Update9D(Vector3{X: 1}, Vector3{}, Vector3{X: 0, Y: 0, Z: 1}, Vector3{}, 1.0, 0.02); err != nil {
		t.Fatalf("update: %v", err)
	}
	if a.Quaternion().IsNaN() {
		t.Fatal("quaternion went NaN on zero-mag fallback")
	}
}

func TestZeroAccelSkipsCorrection(t *testing.T) {
	a := New(DefaultBeta)
	if err := a.Update6D(Vector3{X: 10, Y: 0, Z: 0}, Vector3{}, Vector3{}, 0.02); err != nil {
		t.Fatalf("update: %v", err)
	}
	if a.Quaternion().IsNaN() {
		t.Fatal("quaternion went NaN with zero accel")
	}
}

func TestExpectedFieldRequiresReference(t *testing.T) {
	a := New(DefaultBeta)
	_, ok := a.ExpectedField(geomag.Reference{}, Vector3{})
	if ok {
		t.Fatal("expected ok=false for zero-value reference")
	}
}

func TestEulerConventions(t *testing.T) {
	e := Euler(Identity())
	if e.Roll != 0 || e.Pitch != 0 || e.Yaw != 0 {
		t.Fatalf("identity quaternion euler = %+v, want all zero", e)
	}
}
