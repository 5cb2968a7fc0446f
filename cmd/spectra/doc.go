// Package main is the entry point for spectra, a real-time spectrum
// analyzer.
//
// Architecture:
//
//	capture device → capture → samples → fft → spectra → display → HTTP/WebSocket
//
// Configuration, lowest precedence first:
//   - Built-in defaults
//   - TOML file (--config)
//   - Environment variables (SPECTRA_*)
//   - CLI flags
//
// Usage:
//
//	# 1 kHz test tone at 48 kHz, 1024-point window, HTTP on 127.0.0.1:8080
//	spectra run
//
//	# Two tones, no HTTP surface
//	spectra run --source sine:440,3000 --rate 16000 --window 512 --listen ""
//
//	# List capture sources
//	spectra sources
//
// Exit status:
//   - 0: clean shutdown on signal
//   - 1: a stage failed while running
//   - 2: invalid arguments or configuration
//   - 3: a stage failed to initialize
//   - 4: a stage failed to start
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
