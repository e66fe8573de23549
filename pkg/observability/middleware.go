package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware creates a Gin middleware for automatic tracing
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// TraceHandler wraps a handler in its own span.
func TraceHandler(obs ObservabilityIface, handlerName string, handler gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := obs.StartSpan(c.Request.Context(), handlerName,
			trace.WithAttributes(
				AttrHTTPMethod.String(c.Request.Method),
				AttrHTTPRoute.String(c.FullPath()),
			),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		handler(c)

		span.SetAttributes(
			AttrHTTPStatusCode.Int(c.Writer.Status()),
			attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
		)
		if c.Writer.Status() >= 400 {
			span.SetStatus(codes.Error, "HTTP error")
		}
	}
}
