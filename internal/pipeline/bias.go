package pipeline

// gyroBiasEstimator implements Stage 3: while stationary, EMA-tracks
// per-axis gyro bias in deg/s, with a calibrated flag that latches true
// after K stationary samples.
type gyroBiasEstimator struct {
	alpha             float64
	calibratedSamples int

	bias    Vector3
	seen    int
}

func newGyroBiasEstimator(alpha float64, calibratedSamples int) *gyroBiasEstimator {
	return &gyroBiasEstimator{alpha: alpha, calibratedSamples: calibratedSamples}
}

func (g *gyroBiasEstimator) observe(gyroDps Vector3, isStationary bool) (bias Vector3, calibrated bool) {
	if isStationary {
		g.bias.X += g.alpha * (gyroDps.X - g.bias.X)
		g.bias.Y += g.alpha * (gyroDps.Y - g.bias.Y)
		g.bias.Z += g.alpha * (gyroDps.Z - g.bias.Z)
		g.seen++
	}
	return g.bias, g.seen >= g.calibratedSamples
}

func (g *gyroBiasEstimator) reset() {
	g.bias = Vector3{}
	g.seen = 0
}
