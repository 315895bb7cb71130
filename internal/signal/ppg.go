package signal

import (
	"math"
	"math/rand"
)

// PPGSim generates a synthetic (non-clinical) photoplethysmogram at fs Hz:
// a harmonic pulse shape, respiratory amplitude modulation, stress-driven
// motion artefacts and sensor noise.
type PPGSim struct {
	fs     float64
	hrBPM  float64
	stress float64
	noise  bool

	n     int
	phase float64
	rng   *rand.Rand
}

// NewPPGSim fs=100 typical; hrBPM is clamped to [40,180] and stress to [0,1].
func NewPPGSim(fs, hrBPM, stress float64, noise bool, seed int64) *PPGSim {
	return &PPGSim{
		fs:     fs,
		hrBPM:  clamp(hrBPM, 40, 180),
		stress: clamp(stress, 0, 1),
		noise:  noise,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// HR is the (clamped) pulse rate being simulated.
func (s *PPGSim) HR() float64 { return s.hrBPM }

// Stress is the (clamped) stress level driving artefacts.
func (s *PPGSim) Stress() float64 { return s.stress }

// Next returns the next sample and advances time.
func (s *PPGSim) Next() float64 {
	t := float64(s.n) / s.fs
	s.n++

	s.phase += s.hrBPM / 60.0 / s.fs
	if s.phase >= 1.0 {
		s.phase -= 1.0
	}
	theta := 2 * math.Pi * s.phase

	// fundamental + augmentation harmonic - dicrotic notch
	pulse := math.Sin(theta) + 0.35*math.Sin(2*theta) - 0.15*math.Sin(3*theta)

	respHz := 0.15 + 0.25*s.stress
	pulse *= 1.0 + 0.1*math.Sin(2*math.Pi*respHz*t)

	motionHz := 0.2 + 0.4*s.stress
	pulse += 0.6*s.stress*math.Sin(2*math.Pi*motionHz*t) + 0.05*s.stress*s.rng.NormFloat64()

	if s.noise {
		pulse += 0.02 * (1 + s.stress) * s.rng.NormFloat64()
	}
	return pulse
}

// Simulate returns the next duration seconds of signal.
func (s *PPGSim) Simulate(duration float64) []float64 {
	n := int(s.fs * duration)
	if n < 0 {
		n = 0
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Next()
	}
	return out
}

// NominalHR is the beat rate a subject is expected to show at a given stress
// level; it sizes the beat-yield quality estimate.
func NominalHR(stress float64) float64 {
	return 75 + 45*clamp(stress, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
