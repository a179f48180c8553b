package magdetect

import "testing"

func TestStatusForcedNoneBeforeBaseline(t *testing.T) {
	d := New()
	var last State
	for i := 0; i < BaselineSamples-1; i++ {
		last = d.Observe(2.0)
	}
	if last.Status != StatusNone || last.BaselineEstablished {
		t.Fatalf("state = %+v, want none/not established before baseline samples", last)
	}
}

func TestApproachClimbsLadder(t *testing.T) {
	d := New()
	for i := 0; i < BaselineSamples+10; i++ {
		d.Observe(2.0)
	}

	var statuses []Status
	for i := 0; i < 50; i++ {
		deviation := 2.0 + float64(i)*4.0 // ramps 2 -> 198 uT over 50 samples
		s := d.Observe(deviation)
		if len(statuses) == 0 || statuses[len(statuses)-1] != s.Status {
			statuses = append(statuses, s.Status)
		}
	}

	if len(statuses) < 4 {
		t.Fatalf("expected ladder to climb through all 4 levels, saw %v", statuses)
	}
	if statuses[0] != StatusNone || statuses[len(statuses)-1] != StatusConfirmed {
		t.Fatalf("status sequence = %v, want to start none and end confirmed", statuses)
	}
}

func TestHysteresisPreventsChatter(t *testing.T) {
	d := New()
	for i := 0; i < BaselineSamples+10; i++ {
		d.Observe(2.0)
	}
	// Push well past the "possible" enter threshold so the ladder
	// climbs, then hover in the enter/exit hysteresis band — it should
	// not bounce back down to none.
	var s State
	for i := 0; i < 30; i++ {
		s = d.Observe(40.0)
		if s.Status == StatusPossible {
			break
		}
	}
	if s.Status != StatusPossible {
		t.Fatalf("status = %v, want possible after sustained high deviation", s.Status)
	}

	for i := 0; i < 5; i++ {
		s = d.Observe(2.0 + 12.0) // keeps deviation near 12, between exit(10) and enter(15)
		if s.Status != StatusPossible {
			t.Fatalf("status = %v, want possible to persist in hysteresis band", s.Status)
		}
	}
}

func TestConfidenceBounded(t *testing.T) {
	d := New()
	var last State
	for i := 0; i < BaselineSamples+200; i++ {
		last = d.Observe(50.0)
	}
	if last.Confidence < 0 || last.Confidence > 1 {
		t.Fatalf("confidence = %v, want in [0,1]", last.Confidence)
	}
}

func TestResetClearsState(t *testing.T) {
	d := New()
	for i := 0; i < BaselineSamples+10; i++ {
		d.Observe(200.0)
	}
	d.Reset()
	s := d.Observe(2.0)
	if s.BaselineEstablished {
		t.Fatal("expected baseline not established immediately after reset")
	}
}
