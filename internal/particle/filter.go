package particle

import (
	"fmt"
	"log"
	"math"
	"math/rand"
)

// FingerState is one finger's position and velocity hypothesis, in mm
// and mm/s.
type FingerState struct {
	Pos Vector3
	Vel Vector3
}

// Particle is a weighted hypothesis over all five fingers' states.
type Particle struct {
	Fingers [5]FingerState
}

// Config holds the particle filter's tunable parameters (spec.md §6).
type Config struct {
	NumParticles      int
	PositionNoiseMM   float64
	VelocityNoiseMMS  float64
	ResampleThreshold float64// fraction of N; resample when N_eff < threshold*N
	MeasurementSigmaUT float64
}

// DefaultConfig matches spec.md §6's defaults.
var DefaultConfig = Config{
	NumParticles:       500,
	PositionNoiseMM:    2,
	VelocityNoiseMMS:   5,
	ResampleThreshold:  0.5,
	MeasurementSigmaUT: 10,
}

// Filter is a particle filter over five 3-D finger positions, weighted
// by the magnetic dipole forward model's likelihood against the observed
// residual field.
type Filter struct {
	cfg      Config
	dipoles  [5]DipoleConfig
	particles []Particle
	weights   []float64
	rng       *rand.Rand

	// LastResampled reports whether the most recent Update call
	// triggered a resample, exposed for health monitoring and tests.
	LastResampled bool
}

// New returns a Filter configured with cfg and dipoles, with no
// particles until Initialize is called.
func New(cfg Config, dipoles [5]DipoleConfig, seed int64) *Filter {
	return &Filter{
		cfg:     cfg,
		dipoles: dipoles,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Initialize seeds all particles around initialPose, drawing positions
// from N(initialPose, 5*positionNoise) and velocities from
// N(0, velocityNoise), per spec.md §4.9.
func (f *Filter) Initialize(initialPose [5]Vector3) {
	n := f.cfg.NumParticles
	f.particles = make([]Particle, n)
	f.weights = make([]float64, n)

	posSigma := 5 * f.cfg.PositionNoiseMM
	velSigma := f.cfg.VelocityNoiseMMS

	for i := 0; i < n; i++ {
		var p Particle
		for j := 0; j < 5; j++ {
			p.Fingers[j] = FingerState{
				Pos: Vector3{
					X: initialPose[j].X + f.rng.NormFloat64()*posSigma,
					Y: initialPose[j].Y + f.rng.NormFloat64()*posSigma,
					Z: initialPose[j].Z + f.rng.NormFloat64()*posSigma,
				},
				Vel: Vector3{
					X: f.rng.NormFloat64() * velSigma,
					Y: f.rng.NormFloat64() * velSigma,
					Z: f.rng.NormFloat64() * velSigma,
				},
			}
		}
		f.particles[i] = p
		f.weights[i] = 1.0 / float64(n)
	}
}

// Predict advances every particle by dt under a constant-velocity model
// plus process noise: position by velocity*dt + N(0, positionNoise),
// velocity jittered by N(0, velocityNoise*dt).
func (f *Filter) Predict(dt float64) {
	posNoise := f.cfg.PositionNoiseMM
	velNoise := f.cfg.VelocityNoiseMMS * dt

	for i := range f.particles {
		for j := 0; j < 5; j++ {
			fs := &f.particles[i].Fingers[j]
			fs.Pos.X += fs.Vel.X*dt + f.rng.NormFloat64()*posNoise
			fs.Pos.Y += fs.Vel.Y*dt + f.rng.NormFloat64()*posNoise
			fs.Pos.Z += fs.Vel.Z*dt + f.rng.NormFloat64()*posNoise
			fs.Vel.X += f.rng.NormFloat64() * velNoise
			fs.Vel.Y += f.rng.NormFloat64() * velNoise
			fs.Vel.Z += f.rng.NormFloat64() * velNoise
		}
	}
}

// Update weighs each particle by its dipole-model likelihood against the
// observed residual field, normalizes, and resamples if the effective
// sample size has degenerated below threshold*N. Negative or NaN weights
// are a programming error per spec.md §4.9 and panic rather than recover.
func (f *Filter) Update(observedUT Vector3) {
	sigma := f.cfg.MeasurementSigmaUT
	denom := 2 * sigma * sigma

	var positions [5]Vector3
	sum := 0.0
	for i := range f.particles {
		for j := 0; j < 5; j++ {
			positions[j] = f.particles[i].Fingers[j].Pos
		}
		predicted := PredictTotalField(positions, f.dipoles)
		diff := observedUT.Sub(predicted)
		sqErr := diff.Dot(diff)
		likelihood := math.Exp(-sqErr / denom)

		w := f.weights[i] * likelihood
		if math.IsNaN(w) || w < 0 {
			panic(fmt.Sprintf("particle: invalid weight %v at particle %d", w, i))
		}
		f.weights[i] = w
		sum += w
	}

	if sum <= 0 || math.IsNaN(sum) {
		log.Printf("particle: all weights underflowed, resetting to uniform")
		f.resetUniform()
	} else {
		for i := range f.weights {
			f.weights[i] /= sum
		}
	}

	f.LastResampled = false
	if f.effectiveSampleSize() < f.cfg.ResampleThreshold*float64(len(f.particles)) {
		f.systematicResample()
		f.LastResampled = true
	}
}

func (f *Filter) resetUniform() {
	n := len(f.weights)
	for i := range f.weights {
		f.weights[i] = 1.0 / float64(n)
	}
}

func (f *Filter) effectiveSampleSize() float64 {
	sumSq := 0.0
	for _, w := range f.weights {
		sumSq += w * w
	}
	if sumSq == 0 {
		return 0
	}
	return 1.0 / sumSq
}

// systematicResample performs low-variance resampling: cumulative-sum
// weights, draw one uniform offset, walk u+k/N picking the particle
// whose cumulative bin contains it. Resets all weights to 1/N.
func (f *Filter) systematicResample() {
	n := len(f.particles)
	cumulative := make([]float64, n)
	acc := 0.0
	for i, w := range f.weights {
		acc += w
		cumulative[i] = acc
	}

	u0 := f.rng.Float64() / float64(n)
	out := make([]Particle, n)
	j := 0
	for k := 0; k < n; k++ {
		u := u0 + float64(k)/float64(n)
		for j < n-1 && cumulative[j] < u {
			j++
		}
		out[k] = f.particles[j]
	}
	f.particles = out
	f.resetUniform()
}

// Estimate returns the weighted mean position of each finger across all
// particles.
func (f *Filter) Estimate() [5]Vector3 {
	var out [5]Vector3
	for j := 0; j < 5; j++ {
		var mean Vector3
		for i, w := range f.weights {
			mean = mean.Add(f.particles[i].Fingers[j].Pos.Scale(w))
		}
		out[j] = mean
	}
	return out
}

// Diversity returns the weighted position standard deviation of each
// finger across all particles, for health monitoring.
func (f *Filter) Diversity() [5]float64 {
	mean := f.Estimate()
	var out [5]float64
	for j := 0; j < 5; j++ {
		var variance float64
		for i, w := range f.weights {
			d := f.particles[i].Fingers[j].Pos.Sub(mean[j])
			variance += w * d.Dot(d)
		}
		out[j] = math.Sqrt(variance)
	}
	return out
}

// WeightSum returns the current sum of particle weights, exposed so
// tests can assert the spec.md §8 invariant directly.
func (f *Filter) WeightSum() float64 {
	sum := 0.0
	for _, w := range f.weights {
		sum += w
	}
	return sum
}

// Reset clears the filter back to the uninitialized state.
func (f *Filter) Reset() {
	f.particles = nil
	f.weights = nil
	f.LastResampled = false
}
