package response

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errno "github.com/kart-io/megaservice/pkg/errors"
	"github.com/kart-io/megaservice/pkg/utils/json"
	"github.com/kart-io/megaservice/pkg/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.InstallGinBinding(validator.Global())
}

func serve(t *testing.T, h gin.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	r := gin.New()
	r.Any("/x", func(c *gin.Context) {
		c.Header(HeaderXRequestID, "req-42")
		h(c)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestOK(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		OK(c, gin.H{"conversation_id": "abc"})
	}, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, "req-42", body.RequestID)
	assert.Equal(t, map[string]any{"conversation_id": "abc"}, body.Data)
}

func TestFail(t *testing.T) {
	t.Run("errno", func(t *testing.T) {
		w, body := serve(t, func(c *gin.Context) {
			Fail(c, errno.ErrConversationNotFound)
		}, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, errno.ErrConversationNotFound.Code, body.Code)
		assert.Equal(t, "req-42", body.RequestID)
	})

	t.Run("wrapped errno in chinese", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
		w, body := serve(t, func(c *gin.Context) {
			Fail(c, fmt.Errorf("delete: %w", errno.ErrMissingDBName))
		}, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "缺少 db_name 参数", body.Message)
	})

	t.Run("plain error", func(t *testing.T) {
		w, body := serve(t, func(c *gin.Context) {
			Fail(c, fmt.Errorf("boom"))
		}, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, errno.ErrInternal.Code, body.Code)
	})
}

type newConversationRequest struct {
	DBName string `json:"db_name" binding:"required,db_name"`
}

func TestFailWithBind(t *testing.T) {
	bind := func(c *gin.Context) {
		var req newConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			FailWithBind(c, err)
			return
		}
		OK(c, req)
	}

	t.Run("validation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w, body := serve(t, bind, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errno.ErrValidationFailed.Code, body.Code)
		assert.Equal(t, "db_name is a required field", body.Message)
		assert.Contains(t, body.Data, "db_name")
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"db_name":`))
		req.Header.Set("Content-Type", "application/json")
		w, body := serve(t, bind, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errno.ErrInvalidParam.Code, body.Code)
	})

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"db_name":"rag_db"}`))
		req.Header.Set("Content-Type", "application/json")
		w, _ := serve(t, bind, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
