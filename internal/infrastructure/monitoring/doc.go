/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the
pipeline, tracking queue health, stage drops, device overruns, the HTTP
surface and process uptime. Every collector lives in a registry owned by
Metrics rather than the global default registry.

# Features

- Queue metrics fed by the watchdog (producer timeouts, hold time, length)
- Stage drop counters and initialization timings
- Capture device overruns
- HTTP request metrics (latency, throughput)
- Spectrum stream client metrics
- Go runtime, process and uptime metrics

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Feed watchdog samples into queue gauges
	wd := watchdog.New(cfg, logger, metrics)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time stage initialization
	timer := monitoring.NewTimer(metrics, "capture")
	// ... initialize ...
	timer.Stop("success")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
