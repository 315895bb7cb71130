package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kivara1314/kivara/internal/agent"
	"github.com/kivara1314/kivara/internal/config"
	"github.com/kivara1314/kivara/internal/pipeline"
	"github.com/kivara1314/kivara/internal/session"
	"github.com/kivara1314/kivara/internal/signal"
)

type analyzeOptions struct {
	file      string
	fs        int
	gender    string
	cycleDay  int
	nominalHR float64
	window    time.Duration
	trace     bool
	verbose   bool

	simulate bool
	sim      simulateOptions
}

func newAnalyzeCmd() *cobra.Command {
	opts := analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Estimate stress from a PPG waveform, one JSON record per window",
		Long: "Reads a single-column or (t,value) CSV waveform, splits it into windows and\n" +
			"runs every window through the pipeline against one session, so baselines and\n" +
			"the stress history evolve across windows. Filter and peak settings come from\n" +
			"KIVARA_CONFIG and the FILTER_* / PEAK_* environment variables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.file, "file", "-", "CSV waveform path, - for stdin")
	f.IntVar(&opts.fs, "fs", pipeline.DefaultFs, "sampling rate Hz")
	f.StringVar(&opts.gender, "gender", "M", "subject gender M|F")
	f.IntVar(&opts.cycleDay, "cycle-day", 1, "menstrual cycle day [1,28]")
	f.Float64Var(&opts.nominalHR, "nominal-hr", 0, "expected beat rate for quality scoring (default derived from --stress when simulating, else 75)")
	f.DurationVar(&opts.window, "window", 0, "window length; 0 analyses the whole signal at once")
	f.BoolVar(&opts.trace, "trace", false, "include conditioned series and peak indices")
	f.BoolVar(&opts.verbose, "verbose", false, "debug logging on stderr")
	f.BoolVar(&opts.simulate, "simulate", false, "analyse a synthetic waveform instead of --file")
	f.DurationVar(&opts.sim.duration, "duration", 60*time.Second, "simulated signal length")
	f.Float64Var(&opts.sim.hr, "hr", 72, "simulated heart rate bpm")
	f.Float64Var(&opts.sim.stress, "stress", 0.4, "simulated stress level [0,1]")
	f.Int64Var(&opts.sim.seed, "seed", 1, "simulation noise seed")
	return cmd
}

func runAnalyze(stdin io.Reader, stdout, stderr io.Writer, opts analyzeOptions) error {
	gender, err := agent.ParseGender(opts.gender)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var samples []float64
	nominal := opts.nominalHR
	if opts.simulate {
		sim := signal.NewPPGSim(float64(opts.fs), opts.sim.hr, opts.sim.stress, true, opts.sim.seed)
		samples = sim.Simulate(opts.sim.duration.Seconds())
		if nominal == 0 {
			nominal = signal.NominalHR(sim.Stress())
		}
	} else {
		in := stdin
		if opts.file != "-" {
			fh, err := os.Open(opts.file)
			if err != nil {
				return err
			}
			defer fh.Close()
			in = fh
		}
		if samples, err = readWaveform(in); err != nil {
			return err
		}
	}

	if len(samples) == 0 {
		return fmt.Errorf("%w: no samples read", pipeline.ErrInvalidSignal)
	}

	conf, err := config.Load()
	if err != nil {
		return err
	}
	cfg := conf.PipelineOptions()
	cfg.Trace = cfg.Trace || opts.trace
	proc := pipeline.NewProcessor(cfg, session.NewStore(0), logger)
	sessionID := uuid.NewString()

	windowLen := len(samples)
	if opts.window > 0 {
		windowLen = int(opts.window.Seconds() * float64(opts.fs))
	}
	if windowLen <= 0 {
		return fmt.Errorf("window of %s holds no samples at %d Hz", opts.window, opts.fs)
	}

	enc := json.NewEncoder(stdout)
	for start := 0; start < len(samples); start += windowLen {
		end := min(start+windowLen, len(samples))
		res, err := proc.Process(pipeline.Input{
			SessionID: sessionID,
			Signal:    samples[start:end],
			Fs:        opts.fs,
			Gender:    gender,
			CycleDay:  opts.cycleDay,
			NominalHR: nominal,
		})
		if err != nil {
			return fmt.Errorf("window at sample %d: %w", start, err)
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}

// readWaveform takes the last column of every row; a non-numeric first row
// is treated as a header.
func readWaveform(r io.Reader) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []float64
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[len(rec)-1]), 64)
		if err != nil {
			if row == 0 {
				continue
			}
			return nil, fmt.Errorf("row %d: %w", row+1, err)
		}
		out = append(out, v)
	}
}
