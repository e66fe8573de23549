package mockapi

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/milan604/apiclient/pkg/logger"
)

const headerRequestID = "X-Request-ID"

// requestIDMiddleware accepts an incoming X-Request-ID or generates one, and
// echoes it on the response.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set(string(logger.RequestIDKey), reqID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey, reqID))
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}

// accessLogMiddleware logs each request after completion.
func accessLogMiddleware(l logger.LogManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		entry := l.With(
			"log_type", "access",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		switch {
		case status >= 500:
			entry.ErrorFCtx(c.Request.Context(), "mock api request")
		case status >= 400:
			entry.WarnFCtx(c.Request.Context(), "mock api request")
		default:
			entry.DebugFCtx(c.Request.Context(), "mock api request")
		}
	}
}

func recoveryMiddleware(l logger.LogManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				l.With("log_type", "panic", "path", c.Request.URL.Path).
					ErrorF("panic recovered: %v\n%s", r, string(debug.Stack()))
				c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
