package server

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestMeta tags every response with a request ID and processing
// time, and writes one structured access log line per request.
func requestMeta(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Writer = &timedWriter{ResponseWriter: c.Writer, start: start}

		c.Next()

		logger.Info("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", durationMS(time.Since(start)),
		)
	}
}

// timedWriter stamps X-Process-Time-ms just before the first byte is
// written, since headers cannot change afterwards.
type timedWriter struct {
	gin.ResponseWriter
	start   time.Time
	stamped bool
}

func (w *timedWriter) WriteHeader(code int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(code)
}

func (w *timedWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

func (w *timedWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

func (w *timedWriter) stamp() {
	if w.stamped || w.Written() {
		return
	}
	w.stamped = true
	w.Header().Set("X-Process-Time-ms",
		strconv.FormatFloat(durationMS(time.Since(w.start)), 'f', 2, 64))
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
