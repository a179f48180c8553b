package pipeline

// LSM6DS3/MMC5603NJ conversion constants, spec.md §4.1.
const (
	accelLSBPerG   = 8192.0
	gyroLSBPerDps  = 114.28
	magUTPerLSB    = 100.0 / 1024.0
)

// convert implements Stage 1's unit conversion: LSB -> physical units and
// the mx/my axis swap. The clamped dt derivation is the separate dt below.
func convert(raw64 [9]float64) (accelG, gyroDps, magUT Vector3) {
	accelG = Vector3{
		X: raw64[0] / accelLSBPerG,
		Y: raw64[1] / accelLSBPerG,
		Z: raw64[2] / accelLSBPerG,
	}
	gyroDps = Vector3{
		X: raw64[3] / gyroLSBPerDps,
		Y: raw64[4] / gyroLSBPerDps,
		Z: raw64[5] / gyroLSBPerDps,
	}
	// The magnetometer's native X/Y are transposed relative to the
	// accel/gyro package axes; swap once here so every later stage sees
	// an already-aligned right-handed frame.
	mx := raw64[7] * magUTPerLSB
	my := raw64[6] * magUTPerLSB
	mz := raw64[8] * magUTPerLSB
	magUT = Vector3{X: mx, Y: my, Z: mz}
	return
}

// dt clamps the inter-sample interval to [1ms, 1s], guarding against
// dropped samples and clock jumps (spec.md §4.1).
func dt(nowMs, prevMs uint32) float64 {
	deltaMs := float64(nowMs - prevMs)
	seconds := deltaMs / 1000
	if seconds < 0.001 {
		return 0.001
	}
	if seconds > 1.0 {
		return 1.0
	}
	return seconds
}
