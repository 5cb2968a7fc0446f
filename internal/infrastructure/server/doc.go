// Package server assembles the gin engine in front of a running pipeline.
//
// Middleware order:
//  1. Panic recovery
//  2. Request tracing (trace and span IDs in headers and context)
//  3. Request metrics
//  4. CORS
//
// Routes:
//   - GET /, /health, /spectrum, /sources, /metrics/json (per-IP rate limit)
//   - GET /stream (global admission rate limit)
//   - GET /metrics (Prometheus text format)
//
// Example Usage:
//
//	srv := server.NewServer(cfg, p, logger)
//	go srv.Run()
//	defer srv.Shutdown(ctx)
package server
