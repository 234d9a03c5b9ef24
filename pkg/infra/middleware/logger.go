package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	ctxlog "github.com/kart-io/megaservice/pkg/infra/logger"
)

// DefaultSkipPaths 默认不记录访问日志的路径。
var DefaultSkipPaths = []string{"/healthz", "/readyz", "/metrics"}

// Logger returns an access log middleware. Requests whose path is in
// skipPaths are not logged; nil means DefaultSkipPaths.
func Logger(skipPaths ...string) gin.HandlerFunc {
	if skipPaths == nil {
		skipPaths = DefaultSkipPaths
	}
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"latency", latency.String(),
			"latency_ms", latency.Milliseconds(),
			"bytes", c.Writer.Size(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		log := ctxlog.GetLogger(c.Request.Context())
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Errorw("HTTP Request", fields...)
		case status >= 400:
			log.Warnw("HTTP Request", fields...)
		default:
			log.Infow("HTTP Request", fields...)
		}
	}
}
