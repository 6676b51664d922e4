package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/railzway-checkout/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const HeaderCorrelationID = "X-Correlation-Id"

// GinMiddleware attaches a correlation id to the request and logs its outcome.
func GinMiddleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := c.Request.Context()
		if incoming := strings.TrimSpace(c.GetHeader(HeaderCorrelationID)); incoming != "" {
			ctx = correlation.ContextWithCorrelationID(ctx, incoming)
		}
		ctx, cid := correlation.EnsureCorrelationID(ctx)
		c.Header(HeaderCorrelationID, cid)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if code := c.GetString("error_code"); code != "" {
			fields = append(fields, zap.String("error_code", code))
		}

		log := WithContext(c.Request.Context(), base)
		if status >= http.StatusInternalServerError {
			log.Error("http_request", fields...)
			return
		}
		log.Info("http_request", fields...)
	}
}
