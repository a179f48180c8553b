package imu

import "testing"

func TestFrameRoundTrip(t *testing.T) {
	s := RawSample{
		Ax: 100, Ay: -200, Az: 8192,
		Gx: 10, Gy: -10, Gz: 5,
		Mx: 300, My: -150, Mz: 50,
		TimestampMs: 123456,
		Mode:        2,
		Context:     5,
		Grip:        true,
		HasLight:    true,
		Light:       200,
		HasBatt:     true,
		Battery:     80,
	}

	raw := EncodeFrame(s, 22)
	got, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got != s {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, s)
	}
}

func TestDecodeFrameBadMagic(t *testing.T) {
	raw := EncodeFrame(RawSample{}, 0)
	raw[0] = 0x00
	if _, err := DecodeFrame(raw); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecodeFrameWrongSize(t *testing.T) {
	if _, err := DecodeFrame(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short frame")
	}
}

func TestControlFrameRoundTrip(t *testing.T) {
	payload := []byte(`{"ok":true}`)
	raw := EncodeControlFrame(ControlCalibration, payload)

	frame, n, err := DecodeControlFrame(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d, want %d", n, len(raw))
	}
	if frame.Type != ControlCalibration {
		t.Fatalf("type = %s, want CAL", frame.Type)
	}
	if string(frame.Payload) != string(payload) {
		t.Fatalf("payload = %q, want %q", frame.Payload, payload)
	}
}

func TestControlFrameConcatenated(t *testing.T) {
	a := EncodeControlFrame(ControlMode, []byte("1"))
	b := EncodeControlFrame(ControlMark, []byte("hello"))
	buf := append(append([]byte{}, a...), b...)

	f1, n1, err := DecodeControlFrame(buf)
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if f1.Type != ControlMode {
		t.Fatalf("first type = %s", f1.Type)
	}

	f2, _, err := DecodeControlFrame(buf[n1:])
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if f2.Type != ControlMark || string(f2.Payload) != "hello" {
		t.Fatalf("second frame = %+v", f2)
	}
}
