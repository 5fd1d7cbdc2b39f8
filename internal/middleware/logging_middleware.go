package middleware

import (
	"time"

	"github.com/annel0/plotmines/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger снабжает каждый HTTP-запрос trace-ID и пишет краткие логи.
type RequestLogger struct {
	log *logging.Logger
}

// NewRequestLogger пишет в log; nil - глобальный логгер
func NewRequestLogger(log *logging.Logger) *RequestLogger {
	if log == nil {
		log = logging.Default()
	}
	return &RequestLogger{log: log}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// trace-id из OpenTelemetry, если span уже создан otelgin
		span := trace.SpanFromContext(c.Request.Context())
		var traceID string
		if span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		} else {
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Header("X-Trace-ID", traceID)

		start := time.Now()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		rl.log.Debug("[HTTP] ▶ %s %s ip=%s trace=%s", method, path, c.ClientIP(), traceID)

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		if status >= 500 {
			rl.log.Error("[HTTP] ◀ %s %s %d %s trace=%s errors=%s", method, path, status, latency, traceID, c.Errors.String())
			return
		}
		rl.log.Info("[HTTP] ◀ %s %s %d %s trace=%s", method, path, status, latency, traceID)
	}
}
