package signal

import (
	"math"
	"math/cmplx"
)

// FilterConfig describes the band-pass applied before peak detection.
type FilterConfig struct {
	Order  int     `yaml:"order"`
	LowHz  float64 `yaml:"low_hz"`
	HighHz float64 `yaml:"high_hz"`
}

// DefaultFilter is a 4th order 0.5-8 Hz band-pass, wide enough for pulse
// morphology and narrow enough to drop baseline wander.
func DefaultFilter() FilterConfig {
	return FilterConfig{Order: 4, LowHz: 0.5, HighHz: 8}
}

// Section is one biquad: b0 b1 b2 / a0 a1 a2 with a0 == 1.
type Section [6]float64

// DesignBandpass returns the second-order sections of a digital Butterworth
// band-pass with the given prototype order. low and high are normalised to
// Nyquist and must satisfy 0 < low < high < 1. The result has `order`
// sections (the band-pass doubles the prototype order).
func DesignBandpass(order int, low, high float64) ([]Section, bool) {
	if order < 1 || !(low > 0 && low < high && high < 1) {
		return nil, false
	}

	// analog prototype poles on the unit circle, left half plane
	proto := make([]complex128, order)
	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		proto[k] = cmplx.Exp(complex(0, theta))
	}

	// pre-warp the band edges for the bilinear transform (fs = 2)
	const fs2 = 4.0
	wl := fs2 * math.Tan(math.Pi*low/2)
	wh := fs2 * math.Tan(math.Pi*high/2)
	bw := wh - wl
	wo2 := complex(wl*wh, 0)

	// low-pass -> band-pass: every prototype pole splits in two, and `order`
	// zeros appear at the origin.
	poles := make([]complex128, 0, 2*order)
	for _, p := range proto {
		pl := p * complex(bw/2, 0)
		root := cmplx.Sqrt(pl*pl - wo2)
		poles = append(poles, pl+root, pl-root)
	}
	gain := math.Pow(bw, float64(order))

	// bilinear transform: s-plane zeros at 0 map to z = 1, the excess degree
	// lands on z = -1.
	num := complex(math.Pow(fs2, float64(order)), 0)
	den := complex(1, 0)
	digital := make([]complex128, len(poles))
	for i, p := range poles {
		digital[i] = (complex(fs2, 0) + p) / (complex(fs2, 0) - p)
		den *= complex(fs2, 0) - p
	}
	gain *= real(num / den)

	sections := pairPoles(digital)
	for i := range sections {
		// each section carries one zero at +1 and one at -1: 1 - z^-2
		sections[i][0], sections[i][1], sections[i][2] = 1, 0, -1
	}
	if len(sections) > 0 {
		sections[0][0] *= gain
		sections[0][2] *= gain
	}
	return sections, true
}

// pairPoles groups conjugate pairs (and leftover real poles, two at a time)
// into denominator biquads.
func pairPoles(poles []complex128) []Section {
	const eps = 1e-12
	var sections []Section
	var reals []float64
	for _, p := range poles {
		switch {
		case imag(p) > eps:
			sections = append(sections, Section{0, 0, 0, 1, -2 * real(p), real(p)*real(p) + imag(p)*imag(p)})
		case imag(p) >= -eps:
			reals = append(reals, real(p))
		}
	}
	for i := 0; i+1 < len(reals); i += 2 {
		a, b := reals[i], reals[i+1]
		sections = append(sections, Section{0, 0, 0, 1, -(a + b), a * b})
	}
	return sections
}

// Condition band-passes x sampled at fs Hz with zero phase. Inputs shorter
// than one second, non-finite inputs and unrealisable band edges come back
// as an unmodified copy.
func Condition(x []float64, fs int, cfg FilterConfig) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	if fs <= 0 || len(x) < fs || !finite(x) {
		return out
	}

	nyq := float64(fs) / 2
	sos, ok := DesignBandpass(cfg.Order, cfg.LowHz/nyq, cfg.HighHz/nyq)
	if !ok {
		return out
	}
	return FiltFilt(sos, x)
}

// FiltFilt runs the cascade forward then backward over an odd extension of x,
// starting each pass from the steady-state response to its edge value.
func FiltFilt(sos []Section, x []float64) []float64 {
	n := len(x)
	if n == 0 || len(sos) == 0 {
		out := make([]float64, n)
		copy(out, x)
		return out
	}

	pad := 3 * (2*len(sos) + 1)
	if pad > n-1 {
		pad = n - 1
	}

	ext := make([]float64, 0, n+2*pad)
	for i := pad; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-pad; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}

	zi := steadyState(sos)

	y := sosfilt(sos, ext, zi, ext[0])
	reverse(y)
	y = sosfilt(sos, y, zi, y[0])
	reverse(y)

	out := make([]float64, n)
	copy(out, y[pad:pad+n])
	return out
}

// steadyState returns per-section initial conditions for a unit step input.
func steadyState(sos []Section) [][2]float64 {
	zi := make([][2]float64, len(sos))
	scale := 1.0
	for i, s := range sos {
		b0, b1, b2, a1, a2 := s[0], s[1], s[2], s[4], s[5]
		r0 := b1 - a1*b0
		r1 := b2 - a2*b0
		z0 := (r0 + r1) / (1 + a1 + a2)
		zi[i] = [2]float64{scale * z0, scale * (r1 - a2*z0)}
		scale *= (b0 + b1 + b2) / (1 + a1 + a2)
	}
	return zi
}

// sosfilt is a transposed direct form II cascade with initial state zi*x0.
func sosfilt(sos []Section, x []float64, zi [][2]float64, x0 float64) []float64 {
	y := make([]float64, len(x))
	copy(y, x)
	for i, s := range sos {
		z0, z1 := zi[i][0]*x0, zi[i][1]*x0
		for j, v := range y {
			out := s[0]*v + z0
			z0 = s[1]*v - s[4]*out + z1
			z1 = s[2]*v - s[5]*out
			y[j] = out
		}
	}
	return y
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
