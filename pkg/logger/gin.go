package logger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-Id"

const maxRequestIDLen = 128

// Middleware tags each request with a request id, attaches a logger carrying it to the request
// context, and writes one "request" record when the handler chain returns.
// Server errors and handler errors are logged at Error, everything else at Info.
func Middleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := requestID(c.GetHeader(RequestIDHeader))
		c.Header(RequestIDHeader, rid)

		l := base.With(slog.String("request_id", rid))
		c.Request = c.Request.WithContext(WithContext(c.Request.Context(), l))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", route),
			slog.Int("status", status),
			slog.Int("bytes", c.Writer.Size()),
			slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
		}

		level := slog.LevelInfo
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
			level = slog.LevelError
		} else if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		l.LogAttrs(c.Request.Context(), level, "request", attrs...)
	}
}

// FromGin is FromContext for the request behind c.
func FromGin(c *gin.Context) *slog.Logger {
	if c.Request == nil {
		return slog.Default()
	}
	return FromContext(c.Request.Context())
}

// requestID keeps a caller-supplied id when it is short printable ASCII, otherwise mints one.
func requestID(v string) string {
	if v == "" || len(v) > maxRequestIDLen {
		return uuid.NewString()
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x21 || v[i] > 0x7e {
			return uuid.NewString()
		}
	}
	return v
}
