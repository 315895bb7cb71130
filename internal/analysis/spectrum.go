package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// resample linearly interpolates (t, v) onto a uniform grid at hz starting at
// t[0]. t must be increasing.
func resample(t, v []float64, hz float64) []float64 {
	if len(t) == 0 {
		return nil
	}
	span := t[len(t)-1] - t[0]
	n := int(math.Floor(span*hz)) + 1
	out := make([]float64, n)

	j := 0
	for i := range out {
		at := t[0] + float64(i)/hz
		for j < len(t)-2 && t[j+1] < at {
			j++
		}
		if j+1 >= len(t) {
			out[i] = v[j]
			continue
		}
		dt := t[j+1] - t[j]
		if dt <= 0 {
			out[i] = v[j]
			continue
		}
		frac := (at - t[j]) / dt
		out[i] = v[j] + frac*(v[j+1]-v[j])
	}
	return out
}

// welch estimates a one-sided power spectral density with a periodic Hann
// window, 50% overlap and per-segment mean removal, averaging the segment
// periodograms.
func welch(x []float64, fs float64, nperseg int) (freqs, pxx []float64) {
	if nperseg > len(x) {
		nperseg = len(x)
	}
	if nperseg < 2 {
		return nil, nil
	}
	step := nperseg - nperseg/2
	segments := (len(x)-nperseg)/step + 1

	window := make([]float64, nperseg)
	var wss float64
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(nperseg))
		wss += window[i] * window[i]
	}
	scale := 1 / (fs * wss)

	fft := fourier.NewFFT(nperseg)
	bins := nperseg/2 + 1
	pxx = make([]float64, bins)
	seg := make([]float64, nperseg)
	var coeffs []complex128

	for s := 0; s < segments; s++ {
		chunk := x[s*step : s*step+nperseg]
		mean := stat.Mean(chunk, nil)
		for i, v := range chunk {
			seg[i] = (v - mean) * window[i]
		}
		coeffs = fft.Coefficients(coeffs, seg)
		for k, c := range coeffs {
			p := cmplx.Abs(c)
			p *= p * scale
			if k != 0 && !(nperseg%2 == 0 && k == bins-1) {
				p *= 2
			}
			pxx[k] += p
		}
	}

	freqs = make([]float64, bins)
	for k := range pxx {
		pxx[k] /= float64(segments)
		freqs[k] = float64(k) * fs / float64(nperseg)
	}
	return freqs, pxx
}

// bandPower integrates pxx over the bins selected by in with the trapezoid
// rule. A band holding a single bin integrates to zero.
func bandPower(freqs, pxx []float64, in func(float64) bool) float64 {
	var total float64
	prev := -1
	for k, f := range freqs {
		if !in(f) {
			continue
		}
		if prev >= 0 {
			total += (pxx[prev] + pxx[k]) / 2 * (freqs[k] - freqs[prev])
		}
		prev = k
	}
	return total
}
