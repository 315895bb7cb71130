package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kivara1314/kivara/internal/analysis"
	"github.com/kivara1314/kivara/internal/pipeline"
	"github.com/kivara1314/kivara/internal/signal"
)

type Config struct {
	NATS     NATSConfig          `yaml:"nats"`
	Server   ServerConfig        `yaml:"server"`
	Pipeline PipelineConfig      `yaml:"pipeline"`
	Filter   signal.FilterConfig `yaml:"filter"`
	Peaks    analysis.PeakConfig `yaml:"peaks"`
	Log      LogConfig           `yaml:"log"`
}

type NATSConfig struct {
	URL             string `yaml:"url"`
	WaveSubject     string `yaml:"wave_subject"`
	DecisionSubject string `yaml:"decision_subject"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Trace         bool          `yaml:"trace"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:             "nats://127.0.0.1:4222",
			WaveSubject:     "ppg.wave",
			DecisionSubject: "ppg.decision",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9090",
		},
		Pipeline: PipelineConfig{
			Workers:       4,
			QueueSize:     64,
			SessionTTL:    30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Filter: signal.DefaultFilter(),
		Peaks:  analysis.DefaultPeaks(),
		Log:    LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// KIVARA_CONFIG (if set) and environment overrides, in that order.
func Load() (*Config, error) {
	cfg := defaults()

	if path := getEnv("KIVARA_CONFIG", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.WaveSubject = getEnv("NATS_WAVE_SUBJECT", cfg.NATS.WaveSubject)
	cfg.NATS.DecisionSubject = getEnv("NATS_DECISION_SUBJECT", cfg.NATS.DecisionSubject)
	cfg.Server.Addr = getEnv("HTTP_ADDR", cfg.Server.Addr)
	cfg.Server.MetricsAddr = getEnv("METRICS_ADDR", cfg.Server.MetricsAddr)
	cfg.Pipeline.Workers = getEnvInt("PIPELINE_WORKERS", cfg.Pipeline.Workers)
	cfg.Pipeline.QueueSize = getEnvInt("PIPELINE_QUEUE_SIZE", cfg.Pipeline.QueueSize)
	cfg.Pipeline.SessionTTL = getEnvDuration("SESSION_TTL", cfg.Pipeline.SessionTTL)
	cfg.Pipeline.SweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", cfg.Pipeline.SweepInterval)
	cfg.Pipeline.Trace = getEnvBool("PIPELINE_TRACE", cfg.Pipeline.Trace)
	cfg.Filter.Order = getEnvInt("FILTER_ORDER", cfg.Filter.Order)
	cfg.Filter.LowHz = getEnvFloat("FILTER_LOW_HZ", cfg.Filter.LowHz)
	cfg.Filter.HighHz = getEnvFloat("FILTER_HIGH_HZ", cfg.Filter.HighHz)
	cfg.Peaks.MinHeight = getEnvFloat("PEAK_MIN_HEIGHT", cfg.Peaks.MinHeight)
	cfg.Peaks.MinProminence = getEnvFloat("PEAK_MIN_PROMINENCE", cfg.Peaks.MinProminence)
	cfg.Peaks.MinSpacingSec = getEnvFloat("PEAK_MIN_SPACING_SEC", cfg.Peaks.MinSpacingSec)
	cfg.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", cfg.Log.Level))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required")
	}
	if c.NATS.WaveSubject == "" || c.NATS.DecisionSubject == "" {
		return fmt.Errorf("wave and decision subjects are required")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be >= 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("PIPELINE_QUEUE_SIZE must be >= 1, got %d", c.Pipeline.QueueSize)
	}
	if c.Filter.Order < 1 || c.Filter.Order > 10 {
		return fmt.Errorf("FILTER_ORDER must be in [1,10], got %d", c.Filter.Order)
	}
	if !(c.Filter.LowHz > 0 && c.Filter.LowHz < c.Filter.HighHz) {
		return fmt.Errorf("filter band %.2f-%.2f Hz is not a valid band", c.Filter.LowHz, c.Filter.HighHz)
	}
	if c.Peaks.MinSpacingSec <= 0 {
		return fmt.Errorf("PEAK_MIN_SPACING_SEC must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown LOG_LEVEL %q", c.Log.Level)
	}
	return nil
}

// PipelineOptions projects the analysis settings onto the pipeline.
func (c *Config) PipelineOptions() pipeline.Config {
	return pipeline.Config{
		Filter:  c.Filter,
		Peaks:   c.Peaks,
		Workers: c.Pipeline.Workers,
		Trace:   c.Pipeline.Trace,
	}
}

// NewLogger returns a JSON slog logger at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
