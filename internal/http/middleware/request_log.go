package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/rollup-backend/internal/http/response"
	"github.com/yungbote/rollup-backend/internal/pkg/ctxutil"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

// RequestLogger logs one line per request once handlers have run. Errors written
// through the response package add their code, pipeline stage and identity key.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		td := ctxutil.GetTraceData(c.Request.Context())
		caller := ctxutil.GetCaller(c.Request.Context())

		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if st := c.Param("source_type"); st != "" {
			fields = append(fields, "source_type", st)
			if coll := strings.TrimSpace(c.Query("collection")); coll != "" {
				fields = append(fields, "collection", coll)
			}
		}
		if apiErr, ok := response.ErrorFromContext(c); ok {
			fields = append(fields, "error_code", apiErr.Code, "error", apiErr.Message)
			if apiErr.Stage != "" {
				fields = append(fields, "stage", apiErr.Stage)
			}
			if apiErr.IdentityKey != "" {
				fields = append(fields, "identity_key", apiErr.IdentityKey, "upserted", apiErr.Upserted)
			}
		}
		if td != nil {
			if td.TraceID != "" {
				fields = append(fields, "trace_id", td.TraceID)
			}
			if td.RequestID != "" {
				fields = append(fields, "request_id", td.RequestID)
			}
		}
		if caller != nil && caller.Subject != "" {
			fields = append(fields, "caller", caller.Subject)
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		case path == "/healthcheck" || path == "/metrics":
			log.Debug("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
