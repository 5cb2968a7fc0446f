// Package http provides the HTTP handlers for the spectrum surface.
//
// Endpoints:
//   - Info: /
//   - Health: /health (503 while any stage is not running)
//   - Spectrum: /spectrum (latest frame, 204 before the first one)
//   - Stream: /stream (WebSocket, one frame per display update)
//   - Sources: /sources
//   - Metrics: /metrics/json (summary; Prometheus text is served separately)
//
// Frames are encoded with sonic; everything else goes through gin's JSON
// renderer.
//
// Example Usage:
//
//	handlers := http.NewHandlers(p, p.Display(), metrics, logger, origins)
//	router.GET("/spectrum", handlers.Spectrum)
//	router.GET("/stream", handlers.Stream)
package http
