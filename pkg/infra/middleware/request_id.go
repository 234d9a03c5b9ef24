package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	ctxlog "github.com/kart-io/megaservice/pkg/infra/logger"
	"github.com/kart-io/megaservice/pkg/utils/response"
)

// HeaderXRequestID is the header name for request ID.
const HeaderXRequestID = response.HeaderXRequestID

// maxRequestIDLen 上游传入的请求 ID 超过该长度时重新生成。
const maxRequestIDLen = 128

// RequestIDConfig defines the config for RequestID middleware.
type RequestIDConfig struct {
	// Header is the header name to use for request ID.
	Header string
	// Generator generates request ids. Defaults to ULID.
	Generator func() string
}

// RequestID returns a middleware that assigns every request an id, reusing
// the one sent by the client when present.
func RequestID() gin.HandlerFunc {
	return RequestIDWithConfig(RequestIDConfig{})
}

// RequestIDWithConfig returns a RequestID middleware with custom config.
func RequestIDWithConfig(config RequestIDConfig) gin.HandlerFunc {
	if config.Header == "" {
		config.Header = HeaderXRequestID
	}
	if config.Generator == nil {
		config.Generator = func() string { return ulid.Make().String() }
	}

	return func(c *gin.Context) {
		id := c.GetHeader(config.Header)
		if id == "" || len(id) > maxRequestIDLen {
			id = config.Generator()
		}

		c.Header(config.Header, id)
		c.Request = c.Request.WithContext(ctxlog.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// GetRequestID returns the request id of the current request.
func GetRequestID(c *gin.Context) string {
	return ctxlog.RequestID(c.Request.Context())
}
