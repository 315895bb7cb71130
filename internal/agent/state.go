package agent

import (
	"errors"
	"fmt"
	"strings"
)

type Gender string

const (
	Male   Gender = "M"
	Female Gender = "F"
)

// ParseGender accepts M/F in any case, plus the spelled-out words.
func ParseGender(s string) (Gender, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M", "MALE":
		return Male, nil
	case "F", "FEMALE":
		return Female, nil
	}
	return "", fmt.Errorf("unknown gender %q", s)
}

const (
	InitialBaselineHR    = 75.0
	InitialBaselineRMSSD = 45.0

	MinCycleDay = 1
	MaxCycleDay = 28
)

var ErrInvalidState = errors.New("invalid agent state")

// State is everything the agent remembers about one subject during a
// session. Transitions take a State and return a new one.
type State struct {
	BaselineHR    float64 `json:"baseline_hr"`
	BaselineRMSSD float64 `json:"baseline_rmssd"`
	History       History `json:"stress_history"`
	Anomaly       float64 `json:"anomaly"`
	Gender        Gender  `json:"gender"`
	CycleDay      int     `json:"cycle_day"`
}

// NewState starts a session with population baselines.
func NewState(gender Gender, cycleDay int) (State, error) {
	s := State{
		BaselineHR:    InitialBaselineHR,
		BaselineRMSSD: InitialBaselineRMSSD,
		Gender:        gender,
		CycleDay:      cycleDay,
	}
	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

// Validate checks the invariants a restored or hand-built State must hold.
func (s State) Validate() error {
	switch {
	case s.Gender != Male && s.Gender != Female:
		return fmt.Errorf("%w: gender %q", ErrInvalidState, s.Gender)
	case s.CycleDay < MinCycleDay || s.CycleDay > MaxCycleDay:
		return fmt.Errorf("%w: cycle day %d outside [%d,%d]", ErrInvalidState, s.CycleDay, MinCycleDay, MaxCycleDay)
	case !(s.BaselineHR > 0) || !(s.BaselineRMSSD > 0):
		return fmt.Errorf("%w: baselines must be positive", ErrInvalidState)
	case !unit(s.Anomaly):
		return fmt.Errorf("%w: anomaly %.3f outside [0,1]", ErrInvalidState, s.Anomaly)
	}
	for i, v := range s.History.Values() {
		if !unit(v) {
			return fmt.Errorf("%w: stress history entry %d is %v, outside [0,1]", ErrInvalidState, i, v)
		}
	}
	return nil
}

// WithCycleDay moves the subject to another day of the cycle.
func (s State) WithCycleDay(day int) (State, error) {
	s.CycleDay = day
	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}
