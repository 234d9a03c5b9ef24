package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	errno "github.com/kart-io/megaservice/pkg/errors"
	"github.com/kart-io/megaservice/pkg/validator"
)

// HeaderXRequestID is the header carrying the request id.
const HeaderXRequestID = "X-Request-ID"

// requestID 读取请求 ID 中间件写入的响应头。
func requestID(c *gin.Context) string {
	return c.Writer.Header().Get(HeaderXRequestID)
}

// Lang picks the message language from the Accept-Language header.
func Lang(c *gin.Context) string {
	if al := c.GetHeader("Accept-Language"); len(al) >= 2 && al[:2] == "zh" {
		return "zh"
	}
	return "en"
}

// OK writes a success envelope.
func OK(c *gin.Context, data any) {
	resp := Success(data).WithRequestID(requestID(c))
	c.JSON(resp.HTTPStatus(), resp)
}

// OKWithMessage writes a success envelope with a custom message.
func OKWithMessage(c *gin.Context, message string, data any) {
	resp := Success(data).WithRequestID(requestID(c))
	resp.Message = message
	c.JSON(resp.HTTPStatus(), resp)
}

// Fail writes an error envelope. Errors that are not an Errno (or do not
// map onto one) become ErrInternal.
func Fail(c *gin.Context, err error) {
	e := errno.FromError(err)
	resp := ErrWithLang(e, Lang(c)).WithRequestID(requestID(c))
	_ = c.Error(err)
	c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
}

// FailWithBind writes a 400 envelope for a binding or validation failure.
// Validation failures carry the translated field errors in data.
func FailWithBind(c *gin.Context, err error) {
	if !validator.IsValidationError(err) {
		Fail(c, errno.ErrInvalidParam.WithMessage("invalid request body: "+err.Error()))
		return
	}

	lang := Lang(c)
	verrs := validator.Global().Translate(err, lang)
	resp := ErrWithLang(errno.ErrValidationFailed, lang).WithRequestID(requestID(c))
	resp.HTTPCode = http.StatusBadRequest
	resp.Message = verrs.First()
	resp.Data = verrs.ByField()
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}
