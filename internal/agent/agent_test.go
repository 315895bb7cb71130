package agent

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(t *testing.T, g Gender, day int) State {
	t.Helper()
	s, err := NewState(g, day)
	require.NoError(t, err)
	return s
}

func TestEstimateStress_Saturates(t *testing.T) {
	s := newState(t, Male, 1)

	stress, next, err := EstimateStress(s, Reading{HR: 100, RMSSD: 10, LFHF: 5, Quality: 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, stress)
	assert.InDelta(t, 77.0, next.BaselineHR, 1e-9)
	assert.InDelta(t, 42.2, next.BaselineRMSSD, 1e-9)

	// the input state is a value and stays untouched
	assert.Equal(t, InitialBaselineHR, s.BaselineHR)
}

func TestEstimateStress_AtBaselineIsCalm(t *testing.T) {
	s := newState(t, Male, 1)
	stress, _, err := EstimateStress(s, Reading{HR: 75, RMSSD: 45, LFHF: 1, Quality: 1})
	require.NoError(t, err)
	assert.Zero(t, stress)

	// a low LF/HF ratio pulls the raw score negative, which clamps to zero
	stress, _, err = EstimateStress(s, Reading{HR: 75, RMSSD: 45, LFHF: 0.2, Quality: 1})
	require.NoError(t, err)
	assert.Zero(t, stress)
}

func TestEstimateStress_ScaledByQuality(t *testing.T) {
	s := newState(t, Male, 1)
	r := Reading{HR: 87.5, RMSSD: 45, LFHF: 1}

	r.Quality = 1
	full, _, err := EstimateStress(s, r)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, full, 1e-9)

	r.Quality = 0.5
	half, _, err := EstimateStress(s, r)
	require.NoError(t, err)
	assert.InDelta(t, 0.125, half, 1e-9)

	r.Quality = 3
	over, _, err := EstimateStress(s, r)
	require.NoError(t, err)
	assert.InDelta(t, full, over, 1e-12)
}

func TestEstimateStress_CyclePhase(t *testing.T) {
	r := Reading{HR: 87.5, RMSSD: 45, LFHF: 1, Quality: 1}
	at := func(day int) float64 {
		stress, _, err := EstimateStress(newState(t, Female, day), r)
		require.NoError(t, err)
		return stress
	}

	assert.InDelta(t, 0.325, at(3), 1e-9)
	assert.InDelta(t, 0.25, at(10), 1e-9)
	assert.InDelta(t, 0.1625, at(15), 1e-9)
	assert.InDelta(t, 0.275, at(20), 1e-9)
	assert.Less(t, at(15), at(10))

	male, _, err := EstimateStress(newState(t, Male, 15), r)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, male, 1e-9)
}

func TestEstimateStress_FemaleStaysInRange(t *testing.T) {
	s := newState(t, Female, 2)
	stress, _, err := EstimateStress(s, Reading{HR: 140, RMSSD: 5, LFHF: 9, Quality: 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, stress)
}

func TestEstimateStress_BaselineConverges(t *testing.T) {
	s := newState(t, Male, 1)
	r := Reading{HR: 60, RMSSD: 80, LFHF: 1, Quality: 1}

	prevHR, prevRMSSD := s.BaselineHR, s.BaselineRMSSD
	for i := 0; i < 200; i++ {
		var err error
		_, s, err = EstimateStress(s, r)
		require.NoError(t, err)
		assert.Less(t, s.BaselineHR, prevHR)
		assert.Greater(t, s.BaselineRMSSD, prevRMSSD)
		assert.Greater(t, s.BaselineHR, 60.0)
		assert.Less(t, s.BaselineRMSSD, 80.0)
		prevHR, prevRMSSD = s.BaselineHR, s.BaselineRMSSD
	}
	assert.InDelta(t, 60, s.BaselineHR, 0.01)
	assert.InDelta(t, 80, s.BaselineRMSSD, 0.01)
}

func TestEstimateStress_BaselineFloor(t *testing.T) {
	s := newState(t, Male, 1)
	r := Reading{HR: 1e-9, RMSSD: 0, LFHF: 1, Quality: 1}
	for i := 0; i < 1000; i++ {
		var err error
		_, s, err = EstimateStress(s, r)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, s.BaselineHR, minBaseline)
	assert.GreaterOrEqual(t, s.BaselineRMSSD, minBaseline)
	assert.NoError(t, s.Validate())
}

func TestEstimateStress_RejectsBadInput(t *testing.T) {
	s := newState(t, Male, 1)
	for _, r := range []Reading{
		{HR: math.NaN(), RMSSD: 40, LFHF: 1, Quality: 1},
		{HR: 70, RMSSD: math.Inf(1), LFHF: 1, Quality: 1},
		{HR: 0, RMSSD: 40, LFHF: 1, Quality: 1},
		{HR: 70, RMSSD: -1, LFHF: 1, Quality: 1},
	} {
		_, next, err := EstimateStress(s, r)
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, s, next)
	}

	_, _, err := EstimateStress(State{}, Reading{HR: 70, RMSSD: 40, LFHF: 1, Quality: 1})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEstimateStress_ReportsFirstBadField(t *testing.T) {
	s := newState(t, Male, 1)
	bad := Reading{HR: math.NaN(), RMSSD: math.NaN(), LFHF: math.Inf(1), Quality: math.NaN()}
	for i := 0; i < 20; i++ {
		_, _, err := EstimateStress(s, bad)
		require.ErrorIs(t, err, ErrInvalidState)
		assert.Contains(t, err.Error(), "hr is not finite")
	}

	_, _, err := EstimateStress(s, Reading{HR: 70, RMSSD: 40, LFHF: math.NaN(), Quality: math.NaN()})
	assert.Contains(t, err.Error(), "lf_hf is not finite")
}

func TestDecide_HighStress(t *testing.T) {
	d, s := Decide(newState(t, Male, 1), 0.8)
	assert.Equal(t, ModeHighStress, d.Mode)
	assert.Equal(t, PowerFull, d.Power)
	assert.InDelta(t, 0.8, d.MeanStress, 1e-12)
	assert.Equal(t, 1, s.History.Len())
	assert.Zero(t, s.Anomaly)
}

func TestDecide_AnomalyBuildsToAlert(t *testing.T) {
	s := newState(t, Male, 1)
	for i := 0; i < 6; i++ {
		_, s = Decide(s, 0)
	}
	assert.Zero(t, s.Anomaly)

	var d Decision
	wantAnomaly := []float64{0.3, 0.6, 0.9}
	for i, want := range wantAnomaly {
		d, s = Decide(s, 1)
		assert.InDelta(t, want, s.Anomaly, 1e-9, "spike %d", i)
	}
	assert.Equal(t, ModeAlert, d.Mode)
	assert.Equal(t, PowerFull, d.Power)

	// calm windows decay it again
	_, s = Decide(s, 0)
	assert.InDelta(t, 0.81, s.Anomaly, 1e-9)
}

func TestDecide_NoAnomalyDuringWarmup(t *testing.T) {
	s := newState(t, Male, 1)
	_, s = Decide(s, 0)
	_, s = Decide(s, 1)
	assert.Zero(t, s.Anomaly)
}

func TestDecide_AnomalyBounded(t *testing.T) {
	s := newState(t, Male, 1)
	for i := 0; i < 200; i++ {
		stress := 0.0
		if i%3 == 0 {
			stress = 1
		}
		_, s = Decide(s, stress)
		assert.GreaterOrEqual(t, s.Anomaly, 0.0)
		assert.LessOrEqual(t, s.Anomaly, 1.0)
		assert.LessOrEqual(t, s.History.Len(), HistoryCapacity)
	}
}

func TestDecide_ClampsStress(t *testing.T) {
	_, s := Decide(newState(t, Male, 1), 7)
	assert.Equal(t, []float64{1}, s.History.Values())
	_, s = Decide(s, math.NaN())
	assert.Equal(t, []float64{1, 0}, s.History.Values())
}

func TestCycleFactor(t *testing.T) {
	for _, tc := range []struct {
		g    Gender
		day  int
		want float64
	}{
		{Male, 15, 1},
		{Female, 1, 0.7},
		{Female, 5, 0.7},
		{Female, 6, 1},
		{Female, 13, 1},
		{Female, 14, 1.35},
		{Female, 16, 1.35},
		{Female, 17, 0.9},
		{Female, 28, 0.9},
	} {
		assert.Equal(t, tc.want, CycleFactor(tc.g, tc.day), "%s day %d", tc.g, tc.day)
	}
}
