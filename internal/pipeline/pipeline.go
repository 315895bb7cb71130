// Package pipeline wires conditioning, beat detection, HRV analysis and the
// stress agent into a single per-window operation.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kivara1314/kivara/internal/agent"
	"github.com/kivara1314/kivara/internal/analysis"
	"github.com/kivara1314/kivara/internal/metrics"
	"github.com/kivara1314/kivara/internal/session"
	"github.com/kivara1314/kivara/internal/signal"
)

type Status string

const (
	StatusOK           Status = "ok"
	StatusInsufficient Status = "insufficient_data"
)

// Result is the decision record for one window. Numeric HRV and stress
// fields are absent when Status is insufficient_data.
type Result struct {
	SessionID string   `json:"session_id"`
	Status    Status   `json:"status"`
	HeartRate *float64 `json:"heart_rate"`
	RMSSD     *float64 `json:"rmssd"`
	LFHF      *float64 `json:"lf_hf"`
	// Stress is the smoothed (history mean) score the mode is derived from.
	Stress       *float64           `json:"stress,omitempty"`
	WindowStress *float64           `json:"window_stress,omitempty"`
	Quality      float64            `json:"quality"`
	Mode         agent.Mode         `json:"mode,omitempty"`
	Power        agent.PowerProfile `json:"power_profile,omitempty"`
	Anomaly      float64            `json:"anomaly"`
	Beats        int                `json:"beats"`
	Degenerate   bool               `json:"degenerate_spectrum,omitempty"`
	Trace        *Trace             `json:"trace,omitempty"`
}

// Trace carries the intermediate series a display needs.
type Trace struct {
	Fs          int       `json:"fs"`
	Raw         []float64 `json:"raw"`
	Conditioned []float64 `json:"conditioned"`
	Peaks       []int     `json:"peaks"`
}

type Config struct {
	Filter  signal.FilterConfig
	Peaks   analysis.PeakConfig
	Workers int
	// Trace attaches intermediate series to every result.
	Trace bool
}

func DefaultConfig() Config {
	return Config{
		Filter:  signal.DefaultFilter(),
		Peaks:   analysis.DefaultPeaks(),
		Workers: 4,
	}
}

// Processor runs windows through the pipeline against per-session agent
// state.
type Processor struct {
	cfg      Config
	sessions *session.Store
	logger   *slog.Logger
}

func NewProcessor(cfg Config, sessions *session.Store, logger *slog.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{cfg: cfg, sessions: sessions, logger: logger.With("component", "pipeline")}
}

func (p *Processor) Sessions() *session.Store { return p.sessions }

// Process analyses one window and, when enough beats were found, advances
// the session's agent state. An insufficient window leaves the state alone.
func (p *Processor) Process(in Input) (Result, error) {
	in = in.WithDefaults()
	if err := in.Validate(); err != nil {
		if errors.Is(err, ErrInvalidSignal) {
			metrics.InvalidSignals.Inc()
		}
		return Result{}, err
	}

	start := time.Now()
	conditioned := signal.Condition(in.Signal, in.Fs, p.cfg.Filter)
	observe("condition", start)

	start = time.Now()
	peaks := analysis.DetectPeaks(conditioned, in.Fs, p.cfg.Peaks)
	observe("detect", start)
	metrics.PeaksDetected.Observe(float64(len(peaks)))

	quality := analysis.Quality(len(peaks), in.DurationSec(), in.NominalHR)
	res := Result{
		SessionID: in.SessionID,
		Quality:   quality,
		Beats:     len(peaks),
	}
	if p.cfg.Trace {
		res.Trace = &Trace{Fs: in.Fs, Raw: in.Signal, Conditioned: conditioned, Peaks: peaks}
	}

	start = time.Now()
	hrv, err := analysis.AnalyzeHRV(peaks, in.Fs)
	observe("hrv", start)
	if errors.Is(err, analysis.ErrInsufficientPeaks) {
		res.Status = StatusInsufficient
		metrics.WaveformsProcessed.WithLabelValues(string(res.Status)).Inc()
		p.logger.Warn("not enough beats for hrv",
			"session_id", in.SessionID,
			"beats", len(peaks),
			"duration_sec", in.DurationSec(),
		)
		return res, nil
	}
	if err != nil {
		return Result{}, err
	}
	if hrv.Degenerate {
		metrics.DegenerateSpectra.Inc()
	}

	reading := agent.Reading{HR: hrv.HeartRate, RMSSD: hrv.RMSSD, LFHF: hrv.LFHF, Quality: quality}
	var (
		windowStress float64
		decision     agent.Decision
	)
	start = time.Now()
	state, err := p.sessions.Update(in.SessionID, in.Gender, in.CycleDay, func(s agent.State) (agent.State, error) {
		if s.Gender != in.Gender {
			return s, fmt.Errorf("%w: session opened as %s, window sent as %s", agent.ErrInvalidState, s.Gender, in.Gender)
		}
		if s.CycleDay != in.CycleDay {
			var err error
			if s, err = s.WithCycleDay(in.CycleDay); err != nil {
				return s, err
			}
		}
		stress, next, err := agent.EstimateStress(s, reading)
		if err != nil {
			return s, err
		}
		windowStress = stress
		decision, next = agent.Decide(next, stress)
		return next, nil
	})
	observe("agent", start)
	if err != nil {
		return Result{}, fmt.Errorf("advance session %s: %w", in.SessionID, err)
	}

	res.Status = StatusOK
	res.HeartRate = ptr(hrv.HeartRate)
	res.RMSSD = ptr(hrv.RMSSD)
	res.LFHF = ptr(hrv.LFHF)
	res.Stress = ptr(decision.MeanStress)
	res.WindowStress = ptr(windowStress)
	res.Mode = decision.Mode
	res.Power = decision.Power
	res.Anomaly = state.Anomaly
	res.Degenerate = hrv.Degenerate

	metrics.WaveformsProcessed.WithLabelValues(string(res.Status)).Inc()
	metrics.Decisions.WithLabelValues(string(decision.Mode)).Inc()
	metrics.ActiveSessions.Set(float64(p.sessions.Len()))

	p.logger.Debug("window processed",
		"session_id", in.SessionID,
		"heart_rate", hrv.HeartRate,
		"rmssd", hrv.RMSSD,
		"lf_hf", hrv.LFHF,
		"quality", quality,
		"stress", decision.MeanStress,
		"mode", decision.Mode,
	)
	return res, nil
}

func observe(stage string, start time.Time) {
	metrics.StageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func ptr(v float64) *float64 { return &v }
