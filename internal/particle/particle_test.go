package particle

import (
	"math"
	"testing"
)

func TestDipoleFieldSingularityGuard(t *testing.T) {
	field := PredictField(Vector3{X: 0, Y: 0, Z: 0.0001}, Vector3{X: 0, Y: 0, Z: 0.01})
	if math.IsNaN(field.X) || math.IsNaN(field.Y) || math.IsNaN(field.Z) || math.IsInf(field.Norm(), 0) {
		t.Fatalf("field = %+v at near-zero radius, want finite (singularity guard)", field)
	}
}

func TestDipoleFieldFallsOffWithCube(t *testing.T) {
	moment := Vector3{X: 0, Y: 0, Z: 0.01}
	near := PredictField(Vector3{X: 0, Y: 0, Z: 30}, moment)
	far := PredictField(Vector3{X: 0, Y: 0, Z: 60}, moment)

	ratio := near.Norm() / far.Norm()
	if math.Abs(ratio-8) > 0.5 {
		t.Fatalf("doubling distance changed field by factor %v, want ~8 (inverse cube)", ratio)
	}
}

func TestWeightsSumToOneAfterUpdate(t *testing.T) {
	dipoles := DefaultDipoles()
	f := New(DefaultConfig, dipoles, 42)
	f.Initialize(ExtendedHandPose())

	f.Predict(0.02)
	f.Update(Vector3{X: 1, Y: 0, Z: 0})

	sum := f.WeightSum()
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("weight sum = %v, want within 1e-9 of 1", sum)
	}
	for i, w := range f.weights {
		if w < 0 {
			t.Fatalf("weight[%d] = %v, want >= 0", i, w)
		}
	}
}

func TestResampleTriggersOnDegenerateWeights(t *testing.T) {
	cfg := DefaultConfig
	cfg.NumParticles = 100
	dipoles := DefaultDipoles()
	f := New(cfg, dipoles, 7)
	f.Initialize(ExtendedHandPose())

	// A sharply localized observation makes most particles' predicted
	// fields poor matches, collapsing most likelihoods toward zero.
	observed := PredictField(Vector3{X: 0, Y: 60, Z: -30}, dipoles[0].MomentAm2)

	resampled := false
	for i := 0; i < 20; i++ {
		f.Predict(0.02)
		f.Update(observed)
		if f.LastResampled {
			resampled = true
		}
	}
	if !resampled {
		t.Fatal("expected at least one resample as the weights degenerated")
	}
	if math.Abs(f.WeightSum()-1) > 1e-9 {
		t.Fatalf("weight sum after several updates = %v, want 1", f.WeightSum())
	}
}

func TestUpdatePanicsOnInvalidWeight(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on NaN weight")
		}
	}()

	f := New(DefaultConfig, DefaultDipoles(), 1)
	f.Initialize(ExtendedHandPose())
	f.weights[0] = math.NaN()
	f.Update(Vector3{X: 1})
}

func TestEstimateTracksTrueSinglePosition(t *testing.T) {
	cfg := DefaultConfig
	cfg.NumParticles = 500
	dipoles := DefaultDipoles()
	f := New(cfg, dipoles, 99)

	truth := ExtendedHandPose()
	truth[0] = Vector3{X: 0, Y: 60, Z: -30}
	f.Initialize(truth)

	for i := 0; i < 100; i++ {
		f.Predict(0.02)
		observed := PredictTotalField(truth, dipoles)
		f.Update(observed)
	}

	est := f.Estimate()
	d := est[0].Sub(truth[0])
	if d.Norm() > 5 {
		t.Fatalf("estimated position = %+v, want within 5mm of %+v", est[0], truth[0])
	}
}

func TestFlexionFractionSpansExtendedToFlexed(t *testing.T) {
	extended := ExtendedHandPose()[0]
	flexed := FlexedHandPose()[0]

	if f := FlexionFraction(extended, extended, flexed); f != 0 {
		t.Fatalf("flexion at extended reference = %v, want 0", f)
	}
	if f := FlexionFraction(flexed, extended, flexed); f != 1 {
		t.Fatalf("flexion at flexed reference = %v, want 1", f)
	}

	beyond := flexed.Add(flexed.Sub(extended))
	if f := FlexionFraction(beyond, extended, flexed); f != 1 {
		t.Fatalf("flexion beyond flexed reference = %v, want clamped to 1", f)
	}
}
