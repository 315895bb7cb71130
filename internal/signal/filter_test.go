package signal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(fs, hz, seconds float64) []float64 {
	out := make([]float64, int(fs*seconds))
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * hz * float64(i) / fs)
	}
	return out
}

// amplitude of the central half, away from edge transients
func centreAmplitude(x []float64) float64 {
	var peak float64
	for _, v := range x[len(x)/4 : 3*len(x)/4] {
		peak = math.Max(peak, math.Abs(v))
	}
	return peak
}

func TestDesignBandpass_SectionsAndStability(t *testing.T) {
	for order := 1; order <= 6; order++ {
		sos, ok := DesignBandpass(order, 0.01, 0.16)
		require.True(t, ok)
		assert.Len(t, sos, order, "order %d", order)
		for i, s := range sos {
			assert.Equal(t, 1.0, s[3])
			a1, a2 := s[4], s[5]
			// both roots of z^2 + a1 z + a2 inside the unit circle
			assert.Less(t, a2, 1.0, "order %d section %d", order, i)
			assert.Less(t, math.Abs(a1), 1+a2, "order %d section %d", order, i)
		}
	}
}

func TestDesignBandpass_RejectsBadBand(t *testing.T) {
	for _, tc := range []struct {
		name      string
		order     int
		low, high float64
	}{
		{"zero order", 0, 0.1, 0.2},
		{"inverted", 4, 0.3, 0.2},
		{"above nyquist", 4, 0.1, 1.2},
		{"zero low edge", 4, 0, 0.2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := DesignBandpass(tc.order, tc.low, tc.high)
			assert.False(t, ok)
		})
	}
}

func TestCondition_PassbandAndStopband(t *testing.T) {
	const fs = 100
	cfg := DefaultFilter()

	pass := Condition(sine(fs, 2, 20), fs, cfg)
	assert.InDelta(t, 1.0, centreAmplitude(pass), 0.02)

	drift := Condition(sine(fs, 0.1, 40), fs, cfg)
	assert.Less(t, centreAmplitude(drift), 0.05)

	hum := Condition(sine(fs, 40, 20), fs, cfg)
	assert.Less(t, centreAmplitude(hum), 0.01)
}

func TestCondition_PreservesLength(t *testing.T) {
	x := sine(100, 1.2, 7.3)
	assert.Len(t, Condition(x, 100, DefaultFilter()), len(x))
}

func TestCondition_ZeroPhase(t *testing.T) {
	const fs = 100
	x := sine(fs, 1.5, 20)
	y := Condition(x, fs, DefaultFilter())

	// a zero-phase filter keeps the crest where it was
	mid := len(x) / 2
	best := mid
	for i := mid - 30; i <= mid+30; i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	bestY := best
	for i := best - 5; i <= best+5; i++ {
		if y[i] > y[bestY] {
			bestY = i
		}
	}
	assert.Equal(t, best, bestY)
}

func TestCondition_PassThrough(t *testing.T) {
	short := []float64{1, 2, 3, 4, 5}
	out := Condition(short, 100, DefaultFilter())
	assert.Equal(t, short, out)
	out[0] = 99
	assert.Equal(t, 1.0, short[0], "result must not alias the input")

	bad := sine(100, 2, 2)
	bad[10] = math.NaN()
	assert.True(t, math.IsNaN(Condition(bad, 100, DefaultFilter())[10]))

	x := sine(100, 2, 2)
	assert.Equal(t, x, Condition(x, 100, FilterConfig{Order: 4, LowHz: 8, HighHz: 0.5}))
}

func TestCondition_ZeroSignalStaysZero(t *testing.T) {
	out := Condition(make([]float64, 500), 100, DefaultFilter())
	for _, v := range out {
		assert.Zero(t, v)
	}
}

func TestFiltFilt_Empty(t *testing.T) {
	sos, ok := DesignBandpass(4, 0.01, 0.16)
	require.True(t, ok)
	assert.Empty(t, FiltFilt(sos, nil))
}
