package main

import (
	"context"
	"errors"
	"flag"
	"hash/fnv"
	"log/slog"
	"net/http"
	"os"
	osSignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kivara1314/kivara/internal/config"
	"github.com/kivara1314/kivara/internal/metrics"
	"github.com/kivara1314/kivara/internal/pipeline"
	"github.com/kivara1314/kivara/internal/session"
	"github.com/kivara1314/kivara/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var (
		in    = flag.String("in", cfg.NATS.WaveSubject, "input subject")
		out   = flag.String("out", cfg.NATS.DecisionSubject, "output subject")
		trace = flag.Bool("trace", cfg.Pipeline.Trace, "attach conditioned series and peaks to results")
	)
	flag.Parse()
	cfg.Pipeline.Trace = *trace

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, *in, *out, logger); err != nil {
		logger.Error("processor failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, in, out string, logger *slog.Logger) error {
	nc, err := stream.Connect(cfg.NATS.URL, "kivara-processor")
	if err != nil {
		return err
	}
	defer nc.Drain()

	store := session.NewStore(cfg.Pipeline.SessionTTL)
	proc := pipeline.NewProcessor(cfg.PipelineOptions(), store, logger)

	ctx, cancel := osSignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// one queue per worker; a session always hashes to the same worker so its
	// windows are applied in arrival order
	queues := make([]chan stream.WaveBatch, cfg.Pipeline.Workers)
	for i := range queues {
		queues[i] = make(chan stream.WaveBatch, cfg.Pipeline.QueueSize)
	}

	sub, err := nc.Subscribe(in, func(msg *nats.Msg) {
		metrics.MessagesReceived.WithLabelValues(msg.Subject).Inc()
		batch, err := stream.DecodeWave(msg)
		if err != nil {
			metrics.DecodeErrors.Inc()
			logger.Warn("dropping wave message", "error", err)
			return
		}
		// never block the subscription: a full queue sheds the batch so one
		// slow worker cannot stall every session
		w, ok := enqueue(queues, batch)
		if !ok {
			metrics.BatchesDropped.WithLabelValues(strconv.Itoa(w)).Inc()
			logger.Warn("worker queue full, dropping window",
				"session_id", batch.SessionID,
				"seq", batch.Seq,
				"worker", w,
			)
			return
		}
		metrics.QueueDepth.WithLabelValues(strconv.Itoa(w)).Set(float64(len(queues[w])))
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	g, gctx := errgroup.WithContext(ctx)

	for i, q := range queues {
		worker, q := strconv.Itoa(i), q
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case batch := <-q:
					metrics.QueueDepth.WithLabelValues(worker).Set(float64(len(q)))
					res, err := proc.Process(batch.Input())
					if err != nil {
						logger.Warn("window rejected",
							"session_id", batch.SessionID,
							"seq", batch.Seq,
							"error", err,
						)
						continue
					}
					if err := stream.PublishResult(nc, out, res); err != nil {
						logger.Warn("publish result", "session_id", batch.SessionID, "error", err)
					}
				}
			}
		})
	}

	g.Go(func() error {
		if cfg.Pipeline.SweepInterval <= 0 {
			return nil
		}
		ticker := time.NewTicker(cfg.Pipeline.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				expired := store.Sweep()
				if len(expired) > 0 {
					metrics.SessionsExpired.Add(float64(len(expired)))
					logger.Info("expired idle sessions", "count", len(expired), "session_ids", expired)
				}
				metrics.ActiveSessions.Set(float64(store.Len()))
			}
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !nc.IsConnected() {
			http.Error(w, "nats disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("processor running",
		"in", in,
		"out", out,
		"workers", cfg.Pipeline.Workers,
		"metrics_addr", cfg.Server.MetricsAddr,
	)
	return g.Wait()
}

// enqueue hands batch to its session's worker without blocking and reports
// the worker index and whether the batch was accepted.
func enqueue(queues []chan stream.WaveBatch, batch stream.WaveBatch) (int, bool) {
	w := shard(batch.SessionID, len(queues))
	select {
	case queues[w] <- batch:
		return w, true
	default:
		return w, false
	}
}

func shard(sessionID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(n))
}
