package analysis

import "math"

const (
	minQuality = 0.1
	maxQuality = 1.0
)

// Quality scores detection confidence as the share of expected beats that
// were found. It never drops below 0.1.
func Quality(peakCount int, durationSec, nominalHR float64) float64 {
	expected := durationSec * nominalHR / 60
	if !(expected > 0) {
		return minQuality
	}
	return math.Max(minQuality, math.Min(maxQuality, float64(peakCount)/expected))
}
