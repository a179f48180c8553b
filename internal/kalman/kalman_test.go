package kalman

import (
	"math"
	"testing"
)

func TestScalarConvergesToConstant(t *testing.T) {
	s := NewScalar(Config{ProcessNoise: 0.001, MeasurementNoise: 1.0, InitialCovariance: 1.0})
	var out float64
	for i := 0; i < 200; i++ {
		out = s.Update(5.0)
	}
	if math.Abs(out-5.0) > 0.1 {
		t.Fatalf("filtered = %v, want near 5.0", out)
	}
}

func TestScalarSmoothsNoise(t *testing.T) {
	s := NewScalar(DefaultConfig)
	measurements := []float64{5, 4.9, 5.2, 4.8, 5.1, 5.0, 4.95, 5.05}
	var last float64
	for _, m := range measurements {
		last = s.Update(m)
	}
	if math.Abs(last-5.0) > 0.5 {
		t.Fatalf("filtered = %v, want close to the noisy mean of ~5", last)
	}
}

func TestFingerPredictAdvancesConstantVelocity(t *testing.T) {
	f := NewFinger(DefaultFingerConfig)
	f.Initialize([3]float64{0, 0, 0})
	f.x[3] = 10 // vx = 10 mm/s

	f.Predict(1.0)
	pos := f.Position()
	if math.Abs(pos[0]-10) > 1e-9 {
		t.Fatalf("x = %v, want 10 after 1s at 10mm/s", pos[0])
	}
}

func TestFingerUpdateConvergesToMeasurement(t *testing.T) {
	f := NewFinger(FingerConfig{ProcessNoise: 0.1, MeasurementNoise: 1.0})
	f.Initialize([3]float64{0, 0, 0})

	target := [3]float64{50, -20, 30}
	for i := 0; i < 50; i++ {
		f.Predict(0.02)
		f.Update(target)
	}
	pos := f.Position()
	for i, want := range target {
		if math.Abs(pos[i]-want) > 1 {
			t.Fatalf("pos[%d] = %v, want near %v", i, pos[i], want)
		}
	}
}

func TestFingerCovarianceStaysSymmetric(t *testing.T) {
	f := NewFinger(DefaultFingerConfig)
	f.Initialize([3]float64{0, 0, 0})
	f.Predict(0.02)
	f.Update([3]float64{1, 2, 3})

	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			if math.Abs(f.p[i][j]-f.p[j][i]) > 1e-9 {
				t.Fatalf("p[%d][%d]=%v, p[%d][%d]=%v, want symmetric", i, j, f.p[i][j], j, i, f.p[j][i])
			}
		}
	}
}

func TestInvert3SingularGuard(t *testing.T) {
	singular := [3][3]float64{{1, 2, 3}, {2, 4, 6}, {1, 1, 1}}
	inv := invert3(singular)
	identity := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if inv != identity {
		t.Fatalf("invert3(singular) = %+v, want identity", inv)
	}
}

func TestInvert3RoundTrip(t *testing.T) {
	m := [3][3]float64{{2, 0, 0}, {0, 3, 0}, {0, 0, 4}}
	inv := invert3(m)
	want := [3][3]float64{{0.5, 0, 0}, {0, 1.0 / 3, 0}, {0, 0, 0.25}}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(inv[i][j]-want[i][j]) > 1e-9 {
				t.Fatalf("invert3 = %+v, want %+v", inv, want)
			}
		}
	}
}

func TestBankHasFiveIndependentFingers(t *testing.T) {
	b := NewBank(DefaultFingerConfig)
	b[0].Initialize([3]float64{1, 0, 0})
	b[1].Initialize([3]float64{0, 1, 0})

	if b[0].Position()[0] != 1 {
		t.Fatal("finger 0 position not set")
	}
	if b[1].Position()[1] != 1 {
		t.Fatal("finger 1 position not set")
	}
	if b[2].Initialized {
		t.Fatal("finger 2 should remain uninitialized")
	}
}
