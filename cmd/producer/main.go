package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	osSignal "os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kivara1314/kivara/internal/agent"
	"github.com/kivara1314/kivara/internal/analysis"
	"github.com/kivara1314/kivara/internal/config"
	"github.com/kivara1314/kivara/internal/signal"
	"github.com/kivara1314/kivara/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	var (
		subject  = flag.String("subject", cfg.NATS.WaveSubject, "wave subject")
		session  = flag.String("session", "", "session id (random when empty)")
		fs       = flag.Int("fs", 100, "sampling rate Hz")
		hr       = flag.Float64("hr", 72, "heart rate bpm")
		stress   = flag.Float64("stress", 0.4, "simulated stress level [0,1]")
		gender   = flag.String("gender", "M", "subject gender M|F")
		cycleDay = flag.Int("cycle-day", 1, "menstrual cycle day [1,28]")
		window   = flag.Duration("window", 60*time.Second, "analysis window length")
		hop      = flag.Duration("hop", 10*time.Second, "time between published windows")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "noise seed")
		realtime = flag.Bool("realtime", true, "pace samples at fs instead of publishing as fast as possible")
	)
	flag.Parse()

	g, err := agent.ParseGender(*gender)
	if err != nil {
		logger.Error("invalid gender", "error", err)
		os.Exit(1)
	}
	if *session == "" {
		*session = uuid.NewString()
	}

	nc, err := stream.Connect(cfg.NATS.URL, "kivara-producer")
	if err != nil {
		logger.Error("nats connect", "error", err)
		os.Exit(1)
	}
	defer nc.Drain()

	sim := signal.NewPPGSim(float64(*fs), *hr, *stress, true, *seed)
	tracker := analysis.NewBeatTracker(float64(*fs), 0.6, 0.25)
	var liveBPM float64

	ctx, cancel := osSignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	windowLen := int(window.Seconds() * float64(*fs))
	hopLen := int(hop.Seconds() * float64(*fs))
	if windowLen < *fs || hopLen < 1 || hopLen > windowLen {
		logger.Error("window must be >= 1s and hop within (0, window]", "window", *window, "hop", *hop)
		os.Exit(1)
	}

	batch := stream.WaveBatch{
		SessionID: *session,
		Fs:        *fs,
		Gender:    string(g),
		CycleDay:  *cycleDay,
		NominalHR: signal.NominalHR(sim.Stress()),
	}

	logger.Info("producer started",
		"session_id", *session,
		"subject", *subject,
		"hr", sim.HR(),
		"stress", sim.Stress(),
		"window", *window,
		"hop", *hop,
	)

	period := time.Second / time.Duration(*fs)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	buffer := make([]float64, 0, windowLen)
	sinceLast := 0

	for {
		if *realtime {
			select {
			case <-ctx.Done():
				logger.Info("producer stopping", "session_id", *session, "windows", batch.Seq)
				return
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			logger.Info("producer stopping", "session_id", *session, "windows", batch.Seq)
			return
		}

		v := sim.Next()
		if bpm, ok := tracker.Push(v); ok {
			liveBPM = bpm
		}
		buffer = append(buffer, v)
		sinceLast++

		if len(buffer) < windowLen || sinceLast < hopLen {
			continue
		}

		batch.Samples = buffer
		if err := nc.PublishMsg(batch.Encode(*subject)); err != nil {
			logger.Warn("publish failed", "session_id", *session, "seq", batch.Seq, "error", err)
		} else {
			logger.Debug("window published", "session_id", *session, "seq", batch.Seq, "live_bpm", liveBPM)
		}
		batch.Seq++
		sinceLast = 0

		// slide: keep the newest window-hop samples
		keep := buffer[hopLen:]
		next := make([]float64, len(keep), windowLen)
		copy(next, keep)
		buffer = next
	}
}
