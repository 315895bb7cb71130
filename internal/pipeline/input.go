package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/kivara1314/kivara/internal/agent"
)

const (
	DefaultFs        = 100
	DefaultNominalHR = 75.0
)

var (
	// ErrInvalidSignal rejects empty or non-finite waveforms.
	ErrInvalidSignal = errors.New("invalid signal")
	// ErrInvalidInput wraps field validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

var validate = validator.New()

// Input is one waveform window for one subject.
type Input struct {
	SessionID string       `json:"session_id" validate:"required,max=128"`
	Signal    []float64    `json:"signal"`
	Fs        int          `json:"fs" validate:"gt=0,lte=10000"`
	Gender    agent.Gender `json:"gender" validate:"oneof=M F"`
	CycleDay  int          `json:"cycle_day" validate:"min=1,max=28"`
	// NominalHR is the beat rate the window is expected to contain; it sizes
	// the quality estimate.
	NominalHR float64 `json:"nominal_hr" validate:"gt=0,lte=250"`
}

// WithDefaults fills unset optional fields: 100 Hz, male, cycle day 1,
// nominal 75 bpm.
func (in Input) WithDefaults() Input {
	if in.Fs == 0 {
		in.Fs = DefaultFs
	}
	if in.Gender == "" {
		in.Gender = agent.Male
	} else if g, err := agent.ParseGender(string(in.Gender)); err == nil {
		in.Gender = g
	}
	if in.CycleDay == 0 {
		in.CycleDay = agent.MinCycleDay
	}
	if in.NominalHR == 0 {
		in.NominalHR = DefaultNominalHR
	}
	return in
}

// Validate checks the waveform first, then the remaining fields.
func (in Input) Validate() error {
	if len(in.Signal) == 0 {
		return fmt.Errorf("%w: empty waveform", ErrInvalidSignal)
	}
	for i, v := range in.Signal {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: sample %d is not finite", ErrInvalidSignal, i)
		}
	}
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// DurationSec is the window length in seconds.
func (in Input) DurationSec() float64 {
	if in.Fs <= 0 {
		return 0
	}
	return float64(len(in.Signal)) / float64(in.Fs)
}
