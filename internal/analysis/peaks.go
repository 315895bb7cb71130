package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// PeakConfig holds systolic peak acceptance thresholds on the z-scored signal.
type PeakConfig struct {
	MinHeight     float64 `yaml:"min_height"`
	MinProminence float64 `yaml:"min_prominence"`
	// MinSpacingSec caps the detectable rate: 0.4 s is 150 bpm.
	MinSpacingSec float64 `yaml:"min_spacing_sec"`
}

func DefaultPeaks() PeakConfig {
	return PeakConfig{MinHeight: 0.3, MinProminence: 0.6, MinSpacingSec: 0.4}
}

// DetectPeaks returns the sample indices of systolic peaks in a conditioned
// signal sampled at fs Hz. The result is strictly increasing and may be empty.
func DetectPeaks(x []float64, fs int, cfg PeakConfig) []int {
	if len(x) < 3 || fs <= 0 {
		return []int{}
	}

	z := zscore(x)
	peaks := localMaxima(z)

	kept := peaks[:0]
	for _, p := range peaks {
		if z[p] >= cfg.MinHeight {
			kept = append(kept, p)
		}
	}
	peaks = kept

	peaks = selectByDistance(z, peaks, int(float64(fs)*cfg.MinSpacingSec))

	kept = peaks[:0]
	for _, p := range peaks {
		if prominence(z, p) >= cfg.MinProminence {
			kept = append(kept, p)
		}
	}
	return kept
}

func zscore(x []float64) []float64 {
	mean, std := stat.PopMeanStdDev(x, nil)
	z := make([]float64, len(x))
	for i, v := range x {
		z[i] = (v - mean) / (std + 1e-8)
	}
	return z
}

// localMaxima finds strict local maxima; a flat top resolves to its middle
// sample (rounded down).
func localMaxima(x []float64) []int {
	peaks := make([]int, 0, len(x)/8)
	last := len(x) - 1
	i := 1
	for i < last {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < last && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				peaks = append(peaks, (i+ahead-1)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

// selectByDistance drops peaks closer than distance samples to a taller one.
func selectByDistance(x []float64, peaks []int, distance int) []int {
	if distance <= 1 || len(peaks) < 2 {
		return peaks
	}

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] < x[peaks[order[b]]]
	})

	// tallest first; among equal heights the later peak wins
	for o := len(order) - 1; o >= 0; o-- {
		j := order[o]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, len(peaks))
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// prominence is the peak height above the higher of the two lowest points
// reachable before a taller sample (or the signal edge) on each side.
func prominence(x []float64, p int) float64 {
	leftMin := x[p]
	for i := p - 1; i >= 0 && x[i] <= x[p]; i-- {
		leftMin = math.Min(leftMin, x[i])
	}
	rightMin := x[p]
	for i := p + 1; i < len(x) && x[i] <= x[p]; i++ {
		rightMin = math.Min(rightMin, x[i])
	}
	return x[p] - math.Max(leftMin, rightMin)
}
