package analysis

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MinPeaks is the smallest beat count HRV is defined for.
const MinPeaks = 6

// ErrInsufficientPeaks marks a window with too few beats for HRV. Callers
// must not feed anything derived from it into the stress agent.
var ErrInsufficientPeaks = errors.New("insufficient peaks for hrv")

const (
	// spectralMinIBI is the interval count below which the LF/HF ratio falls
	// back to the variability heuristic.
	spectralMinIBI = 10

	// heuristicGain scales std(IBI) in the short-series LF/HF approximation.
	// Empirical; tune against labelled data before trusting it.
	heuristicGain = 15.0

	// degenerateRatio is reported when the HF band carries no power.
	degenerateRatio = 6.0

	resampleHz = 4.0
	maxSegment = 64
)

// HRV is the per-window heart rate variability summary.
type HRV struct {
	HeartRate float64 `json:"heart_rate"`
	RMSSD     float64 `json:"rmssd"`
	LFHF      float64 `json:"lf_hf"`
	Beats     int     `json:"beats"`
	// Spectral is false when LF/HF came from the short-series heuristic.
	Spectral bool `json:"spectral"`
	// Degenerate is set when HF power was zero and LF/HF was defaulted.
	Degenerate bool `json:"degenerate"`
}

// AnalyzeHRV derives heart rate, RMSSD and LF/HF from peak sample indices at
// fs Hz. Fewer than MinPeaks peaks yields ErrInsufficientPeaks.
func AnalyzeHRV(peaks []int, fs int) (HRV, error) {
	if len(peaks) < MinPeaks || fs <= 0 {
		return HRV{}, ErrInsufficientPeaks
	}

	ibi := make([]float64, len(peaks)-1)
	for i := range ibi {
		ibi[i] = float64(peaks[i+1]-peaks[i]) / float64(fs)
	}

	mean, std := stat.PopMeanStdDev(ibi, nil)
	hrv := HRV{
		HeartRate: round(60/mean, 1),
		RMSSD:     round(rmssd(ibi)*1000, 1),
		Beats:     len(peaks),
	}

	if len(ibi) < spectralMinIBI {
		hrv.LFHF = round(1+heuristicGain*std, 2)
		return hrv, nil
	}

	times := make([]float64, len(ibi))
	for i := range ibi {
		times[i] = float64(peaks[i+1]) / float64(fs)
	}
	grid := resample(times, ibi, resampleHz)
	segment := len(ibi)
	if segment > maxSegment {
		segment = maxSegment
	}

	freqs, pxx := welch(grid, resampleHz, segment)
	lf := bandPower(freqs, pxx, func(f float64) bool { return f >= 0.04 && f < 0.15 })
	hf := bandPower(freqs, pxx, func(f float64) bool { return f >= 0.15 && f <= 0.4 })

	hrv.Spectral = true
	if hf > 0 {
		hrv.LFHF = round(lf/(hf+1e-8), 2)
	} else {
		hrv.LFHF = degenerateRatio
		hrv.Degenerate = true
	}
	return hrv, nil
}

func rmssd(ibi []float64) float64 {
	if len(ibi) < 2 {
		return 0
	}
	d := make([]float64, len(ibi)-1)
	floats.SubTo(d, ibi[1:], ibi[:len(ibi)-1])
	return math.Sqrt(floats.Dot(d, d) / float64(len(d)))
}

// round is half-to-even at the given number of decimals.
func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.RoundToEven(v*p) / p
}
