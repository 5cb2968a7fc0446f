/*
Package tracing records one span per HTTP request and logs it from a
background collector.

# Overview

Every request gets a trace ID, taken from the X-Trace-ID header when the
caller supplies a valid one and generated otherwise, and a fresh span ID.
Both are echoed in the response headers and stored in the request context
so handlers can attach them to their own log lines.

# Usage

	tracer := tracing.New("spectra", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// In a handler
	logger.Info("client connected", tracing.Fields(c.Request.Context())...)

# Performance

Spans are handed to the collector through a buffered channel. When the
buffer is full the span is dropped and a warning is logged; request
handling never waits on logging.
*/
package tracing
