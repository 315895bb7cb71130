package analysis

// BeatTracker estimates an instantaneous pulse rate from a live sample stream
// by timing upward threshold crossings. It is coarse next to windowed HRV
// analysis and only meant for live display and logging.
type BeatTracker struct {
	fs         float64
	threshold  float64
	refractory int

	n           int
	lastBeat    int
	lastValue   float64
	initialized bool
}

// NewBeatTracker tracks a signal sampled at fs Hz. Crossings closer than
// refractorySec to the previous beat are ignored.
func NewBeatTracker(fs, threshold, refractorySec float64) *BeatTracker {
	return &BeatTracker{
		fs:         fs,
		threshold:  threshold,
		refractory: int(refractorySec * fs),
		lastBeat:   -1,
	}
}

// Push consumes one sample and reports the rate in bpm when it completes a
// beat-to-beat interval.
func (b *BeatTracker) Push(v float64) (float64, bool) {
	i := b.n
	b.n++

	if !b.initialized {
		b.initialized = true
		b.lastValue = v
		return 0, false
	}

	rising := b.lastValue < b.threshold && v >= b.threshold
	b.lastValue = v
	if !rising {
		return 0, false
	}
	if b.lastBeat >= 0 && i-b.lastBeat <= b.refractory {
		return 0, false
	}

	prev := b.lastBeat
	b.lastBeat = i
	if prev < 0 {
		return 0, false
	}
	return 60 * b.fs / float64(i-prev), true
}
