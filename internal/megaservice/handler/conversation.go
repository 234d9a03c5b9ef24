package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/megaservice/internal/megaservice/biz"
	"github.com/kart-io/megaservice/internal/megaservice/metrics"
	"github.com/kart-io/megaservice/internal/model"
	ctxlog "github.com/kart-io/megaservice/pkg/infra/logger"
	"github.com/kart-io/megaservice/pkg/utils/response"
)

// ConversationHandler 处理会话相关请求。
type ConversationHandler struct {
	svc     biz.ConversationService
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewConversationHandler 创建会话处理器。
func NewConversationHandler(svc biz.ConversationService, m *metrics.Metrics) *ConversationHandler {
	return &ConversationHandler{svc: svc, metrics: m, now: time.Now}
}

// New 创建会话。
func (h *ConversationHandler) New(c *gin.Context) {
	var req model.NewConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithBind(c, err)
		return
	}

	id, err := h.svc.Create(c.Request.Context(), req.DBName)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, model.NewConversationResponse{ConversationID: id})
}

// Chat 在会话中提问。流式回答在发送完毕后写入会话历史。
func (h *ConversationHandler) Chat(c *gin.Context) {
	var req model.ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithBind(c, err)
		return
	}

	ctx := c.Request.Context()
	out, err := h.svc.Chat(ctx, c.Param("id"), &req)
	if err != nil {
		response.Fail(c, err)
		return
	}

	if !out.Answer.Streaming() {
		response.OK(c, model.ConversationResponse{
			ConversationID: out.ConversationID,
			Answer:         out.Answer.Text,
			Sources:        out.Sources,
		})
		return
	}

	w := newSSEWriter(c, h.now())
	text, err := w.Drain(ctx, out.Answer.Stream, out.Answer.Sources)
	h.metrics.RecordStreamEvents(w.Events())
	if err != nil {
		logger.Warnw("streamed conversation turn not saved", append(ctxlog.Fields(ctx),
			"conversation_id", out.ConversationID, "error", err.Error())...)
		return
	}
	h.svc.SaveTurnAsync(req.DBName, out.ConversationID, req.Question, text, biz.NormalizeSources(out.Answer.Sources))
}

// Get 返回会话历史。
func (h *ConversationHandler) Get(c *gin.Context) {
	var q model.ConversationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.FailWithBind(c, err)
		return
	}

	conv, err := h.svc.History(c.Request.Context(), q.DBName, c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, conv)
}

// Delete 删除会话。
func (h *ConversationHandler) Delete(c *gin.Context) {
	var q model.ConversationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.FailWithBind(c, err)
		return
	}

	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), q.DBName, id); err != nil {
		response.Fail(c, err)
		return
	}
	response.OKWithMessage(c, "conversation deleted", model.NewConversationResponse{ConversationID: id})
}

// List 分页列出会话。
func (h *ConversationHandler) List(c *gin.Context) {
	var q model.ListConversationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.FailWithBind(c, err)
		return
	}

	list, err := h.svc.List(c.Request.Context(), q.DBName, q.Limit, q.Skip)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, list)
}
