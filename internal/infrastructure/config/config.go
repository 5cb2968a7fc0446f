package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SPECTRA"

// Limits enforced by Validate.
const (
	MinSampleRate = 1
	MaxSampleRate = 384000
	MinWindow     = 2
	MaxWindow     = 65536
	MinQueueDepth = 2
)

var ErrInvalid = errors.New("config: invalid")

// Config holds all application configuration.
type Config struct {
	Capture  CaptureConfig  `toml:"capture"`
	Queue    QueueConfig    `toml:"queue"`
	Analyzer AnalyzerConfig `toml:"analyzer"`
	Display  DisplayConfig  `toml:"display"`
	Watchdog WatchdogConfig `toml:"watchdog"`
	Server   ServerConfig   `toml:"server"`
	Logging  LogConfig      `toml:"logging"`
}

// CaptureConfig selects and paces the sample source.
type CaptureConfig struct {
	Source     string   `toml:"source" split_words:"true"`
	SampleRate int      `toml:"sample_rate" split_words:"true"`
	Window     int      `toml:"window" split_words:"true"`
	Periods    int      `toml:"periods" split_words:"true"`
	Timeout    Duration `toml:"timeout" split_words:"true"`
}

// QueueConfig sizes both inter-stage queues.
type QueueConfig struct {
	Depth   int      `toml:"depth" split_words:"true"`
	Timeout Duration `toml:"timeout" split_words:"true"`
}

// AnalyzerConfig controls the spectral transform.
type AnalyzerConfig struct {
	Window string `toml:"window" split_words:"true"` // "hann" or "rectangular"
}

// DisplayConfig controls the consumer refresh cadence.
type DisplayConfig struct {
	Refresh Duration `toml:"refresh" split_words:"true"`
}

// WatchdogConfig controls queue health polling.
type WatchdogConfig struct {
	Interval    Duration `toml:"interval" split_words:"true"`
	MaxHoldTime Duration `toml:"max_hold_time" split_words:"true"`
}

// ServerConfig holds HTTP server configuration. An empty Listen disables it.
type ServerConfig struct {
	Listen      string   `toml:"listen" split_words:"true"`
	StreamLimit float64  `toml:"stream_limit" split_words:"true"`
	StreamBurst int      `toml:"stream_burst" split_words:"true"`
	CORSOrigins []string `toml:"cors_origins" envconfig:"CORS_ORIGINS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level         string   `toml:"level" split_words:"true"`
	Development   bool     `toml:"development" envconfig:"DEV"`
	Async         bool     `toml:"async" split_words:"true"`
	FlushInterval Duration `toml:"flush_interval" split_words:"true"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Source:     "sine",
			SampleRate: 48000,
			Window:     1024,
			Periods:    3,
			Timeout:    Duration(100 * time.Millisecond),
		},
		Queue: QueueConfig{
			Depth:   8,
			Timeout: Duration(100 * time.Millisecond),
		},
		Analyzer: AnalyzerConfig{
			Window: "hann",
		},
		Display: DisplayConfig{
			Refresh: Duration(10 * time.Millisecond),
		},
		Watchdog: WatchdogConfig{
			Interval:    Duration(time.Second),
			MaxHoldTime: Duration(500 * time.Millisecond),
		},
		Server: ServerConfig{
			Listen:      "127.0.0.1:8080",
			StreamLimit: 10,
			StreamBurst: 20,
			CORSOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level:         "info",
			Development:   false,
			Async:         true,
			FlushInterval: Duration(100 * time.Millisecond),
		},
	}
}

// Load starts from Default, applies the TOML file at path when path is not
// empty, then applies SPECTRA_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the TOML document at path onto cfg. Keys missing from the
// file keep their current values; unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(strings.TrimSpace(c.Capture.Source) != "", "capture source is empty")
	check(c.Capture.SampleRate >= MinSampleRate && c.Capture.SampleRate <= MaxSampleRate,
		"sample rate %d outside [%d, %d]", c.Capture.SampleRate, MinSampleRate, MaxSampleRate)
	check(c.Capture.Window >= MinWindow && c.Capture.Window <= MaxWindow,
		"window %d outside [%d, %d]", c.Capture.Window, MinWindow, MaxWindow)
	check(c.Capture.Periods > 0, "capture periods %d must be positive", c.Capture.Periods)
	check(c.Capture.Timeout > 0, "capture timeout must be positive")
	check(c.Queue.Depth >= MinQueueDepth, "queue depth %d below %d", c.Queue.Depth, MinQueueDepth)
	check(c.Queue.Timeout > 0, "queue timeout must be positive")
	check(c.Analyzer.Window == "hann" || c.Analyzer.Window == "rectangular",
		"analyzer window %q is not hann or rectangular", c.Analyzer.Window)
	check(c.Display.Refresh > 0, "display refresh must be positive")
	check(c.Watchdog.Interval > 0, "watchdog interval must be positive")
	check(c.Watchdog.MaxHoldTime > 0, "watchdog max hold time must be positive")
	check(c.Server.StreamLimit > 0, "stream limit must be positive")
	check(c.Server.StreamBurst > 0, "stream burst %d must be positive", c.Server.StreamBurst)

	return errs
}

// Duration is a time.Duration that reads and writes strings like "100ms" in
// TOML and environment variables.
type Duration time.Duration

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
