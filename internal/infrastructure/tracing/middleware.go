package tracing

import (
	"context"

	"github.com/GriffinCanCode/spectra/internal/shared/id"
	"github.com/gin-gonic/gin"
)

// Header names used for trace propagation.
const (
	TraceHeader = "X-Trace-ID"
	SpanHeader  = "X-Span-ID"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader(TraceHeader); incoming != "" && id.IsValid(incoming) {
			ctx = context.WithValue(ctx, traceIDKey, TraceID(incoming))
		}

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, name)
		span.Method = c.Request.Method
		span.Path = c.Request.URL.Path
		span.ClientIP = c.ClientIP()

		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, string(span.TraceID))
		c.Header(SpanHeader, string(span.SpanID))

		c.Next()

		if len(c.Errors) > 0 {
			span.Error = c.Errors.Last()
		}
		span.Finish(c.Writer.Status())
		tracer.Submit(span)
	}
}
