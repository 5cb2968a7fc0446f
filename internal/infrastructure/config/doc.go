// Package config provides 12-factor configuration management for spectra.
//
// Values are layered: Default, then an optional TOML file, then environment
// variables. Command-line flags are applied last by the CLI.
//
// Configuration Sections:
//   - Capture: sample source, sampling rate, analysis window, device pacing
//   - Queue: depth and bounded-wait timeout of both inter-stage queues
//   - Analyzer: window function applied before the transform
//   - Display: consumer refresh cadence
//   - Watchdog: poll interval and latency threshold
//   - Server: HTTP listen address, stream admission, CORS
//   - Logging: level, output format, asynchronous flushing
//
// Example Usage:
//
//	cfg, err := config.Load("spectra.toml")
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Environment Variables:
//   - SPECTRA_CAPTURE_SOURCE, SPECTRA_CAPTURE_SAMPLE_RATE, SPECTRA_CAPTURE_WINDOW
//   - SPECTRA_QUEUE_DEPTH, SPECTRA_QUEUE_TIMEOUT
//   - SPECTRA_WATCHDOG_INTERVAL, SPECTRA_WATCHDOG_MAX_HOLD_TIME
//   - SPECTRA_SERVER_LISTEN, SPECTRA_SERVER_CORS_ORIGINS
//   - SPECTRA_LOGGING_LEVEL, SPECTRA_LOGGING_DEV
package config
