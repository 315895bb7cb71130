// Package agent turns per-window HRV readings into a stress score and an
// operating decision while adapting to the subject's own baselines.
//
// The agent is a set of pure transitions over State. Applying them to the
// same session concurrently is a caller bug: both the baseline EMA and the
// anomaly accumulator depend on order.
package agent

import (
	"fmt"
	"math"
)

const (
	// emaKeep is the weight of the previous baseline in each update.
	emaKeep = 0.92

	hrScale    = 25.0
	rmssdScale = 35.0
	lfhfScale  = 4.0

	weightHR    = 0.5
	weightRMSSD = 0.35
	weightFreq  = 0.15

	anomalyWarmup = 5
	anomalyJump   = 0.3
	anomalyStep   = 0.3
	anomalyDecay  = 0.9

	// minBaseline keeps baselines strictly positive under a long run of
	// zero readings.
	minBaseline = 1e-3
)

// Reading is one window's worth of HRV input.
type Reading struct {
	HR      float64
	RMSSD   float64
	LFHF    float64
	Quality float64
}

func (r Reading) validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"hr", r.HR},
		{"rmssd", r.RMSSD},
		{"lf_hf", r.LFHF},
		{"quality", r.Quality},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidState, f.name)
		}
	}
	if r.HR <= 0 || r.RMSSD < 0 {
		return fmt.Errorf("%w: hr %.1f rmssd %.1f", ErrInvalidState, r.HR, r.RMSSD)
	}
	return nil
}

// CycleFactor is the menstrual-phase reactivity factor; 1 for male subjects.
func CycleFactor(g Gender, day int) float64 {
	if g != Female {
		return 1.0
	}
	switch {
	case day <= 5:
		return 0.7
	case day <= 13:
		return 1.0
	case day <= 16:
		return 1.35
	default:
		return 0.9
	}
}

// EstimateStress scores a reading against the current baselines and returns
// the score together with the state after the baseline update. History and
// anomaly are left untouched.
func EstimateStress(s State, r Reading) (float64, State, error) {
	if err := s.Validate(); err != nil {
		return 0, s, err
	}
	if err := r.validate(); err != nil {
		return 0, s, err
	}

	hrDev := math.Max(0, (r.HR-s.BaselineHR)/hrScale)
	hrvDev := math.Max(0, (s.BaselineRMSSD-r.RMSSD)/rmssdScale)
	freqDev := math.Min(1, (r.LFHF-1)/lfhfScale)

	raw := weightHR*hrDev + weightRMSSD*hrvDev + weightFreq*freqDev
	stress := clamp01(raw * clamp01(r.Quality))

	if s.Gender == Female {
		// amplifies low-reactivity phases, damps the ovulatory window
		stress = clamp01(stress * (2 - CycleFactor(s.Gender, s.CycleDay)))
	}

	s.BaselineHR = math.Max(minBaseline, emaKeep*s.BaselineHR+(1-emaKeep)*r.HR)
	s.BaselineRMSSD = math.Max(minBaseline, emaKeep*s.BaselineRMSSD+(1-emaKeep)*r.RMSSD)

	return stress, s, nil
}

// Decision is the agent's output for one window.
type Decision struct {
	MeanStress float64      `json:"mean_stress"`
	Mode       Mode         `json:"mode"`
	Power      PowerProfile `json:"power_profile"`
}

// Decide records stress in the history, updates the anomaly accumulator and
// classifies the smoothed stress level.
func Decide(s State, stress float64) (Decision, State) {
	stress = clamp01(stress)
	s.History = s.History.Push(stress)
	mean := s.History.Mean()

	if s.History.Len() > anomalyWarmup && stress > mean+anomalyJump {
		s.Anomaly = math.Min(1, s.Anomaly+anomalyStep)
	} else {
		s.Anomaly *= anomalyDecay
	}
	s.Anomaly = clamp01(s.Anomaly)

	mode, power := Classify(mean, s.Anomaly)
	return Decision{MeanStress: mean, Mode: mode, Power: power}, s
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
