package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/megaservice/internal/megaservice/biz"
	"github.com/kart-io/megaservice/internal/model"
	"github.com/kart-io/megaservice/pkg/utils/response"
)

// CircularHandler 处理通函元数据请求。
type CircularHandler struct {
	svc biz.CircularService
}

// NewCircularHandler 创建通函处理器。
func NewCircularHandler(svc biz.CircularService) *CircularHandler {
	return &CircularHandler{svc: svc}
}

// Update 设置书签或关联会话。
func (h *CircularHandler) Update(c *gin.Context) {
	var req model.CircularUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithBind(c, err)
		return
	}
	if err := h.svc.Update(c.Request.Context(), &req); err != nil {
		response.Fail(c, err)
		return
	}
	response.OKWithMessage(c, "circular updated", gin.H{"circular_id": req.CircularID})
}

// Get 按查询参数返回已加书签的通函、单个通函详情或全部通函。
func (h *CircularHandler) Get(c *gin.Context) {
	var q model.CircularQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.FailWithBind(c, err)
		return
	}

	ctx := c.Request.Context()
	switch {
	case q.Bookmark:
		list, err := h.svc.List(ctx, true)
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, list)
	case q.CircularID != "":
		detail, err := h.svc.Detail(ctx, q.CircularID)
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, detail)
	default:
		list, err := h.svc.List(ctx, false)
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, list)
	}
}
