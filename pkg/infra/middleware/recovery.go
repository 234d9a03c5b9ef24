package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	errno "github.com/kart-io/megaservice/pkg/errors"
	ctxlog "github.com/kart-io/megaservice/pkg/infra/logger"
	"github.com/kart-io/megaservice/pkg/utils/response"
)

// Recovery returns a middleware that turns panics into an ErrPanic envelope.
// When the response has already started (an SSE stream for instance) the
// connection is only aborted.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			ctxlog.GetLogger(c.Request.Context()).Errorw("Panic recovered",
				"panic", fmt.Sprint(r),
				"path", c.Request.URL.Path,
				"stack", string(debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Fail(c, errno.ErrPanic.WithMessage(fmt.Sprintf("panic: %v", r)))
		}()
		c.Next()
	}
}
