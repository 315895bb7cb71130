package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline
	WaveformsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kivara",
		Subsystem: "pipeline",
		Name:      "waveforms_processed_total",
		Help:      "Waveform windows processed, by outcome status",
	}, []string{"status"})

	InvalidSignals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kivara",
		Subsystem: "pipeline",
		Name:      "invalid_signals_total",
		Help:      "Waveform windows rejected before conditioning",
	})

	DegenerateSpectra = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kivara",
		Subsystem: "pipeline",
		Name:      "degenerate_spectra_total",
		Help:      "HRV windows whose HF band carried no power",
	})

	StageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kivara",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Per-stage processing duration",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}, []string{"stage"})

	PeaksDetected = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kivara",
		Subsystem: "pipeline",
		Name:      "peaks_per_window",
		Help:      "Systolic peaks found per waveform window",
		Buckets:   prometheus.LinearBuckets(0, 10, 12),
	})

	// Agent
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kivara",
		Subsystem: "agent",
		Name:      "decisions_total",
		Help:      "Agent decisions, by mode",
	}, []string{"mode"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kivara",
		Subsystem: "agent",
		Name:      "active_sessions",
		Help:      "Sessions currently holding agent state",
	})

	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kivara",
		Subsystem: "agent",
		Name:      "sessions_expired_total",
		Help:      "Sessions dropped after going idle",
	})

	// Transport
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kivara",
		Subsystem: "stream",
		Name:      "messages_received_total",
		Help:      "NATS messages received, by subject",
	}, []string{"subject"})

	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kivara",
		Subsystem: "stream",
		Name:      "decode_errors_total",
		Help:      "Waveform messages that failed to decode",
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kivara",
		Subsystem: "stream",
		Name:      "worker_queue_depth",
		Help:      "Pending waveform batches per processor worker",
	}, []string{"worker"})

	BatchesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kivara",
		Subsystem: "stream",
		Name:      "batches_dropped_total",
		Help:      "Waveform batches shed because their worker queue was full",
	}, []string{"worker"})

	// Presentation
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kivara",
		Subsystem: "server",
		Name:      "websocket_clients",
		Help:      "Connected websocket clients",
	})

	MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kivara",
		Subsystem: "server",
		Name:      "messages_relayed_total",
		Help:      "Messages broadcast to websocket clients, by kind",
	}, []string{"kind"})
)
