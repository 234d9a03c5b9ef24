// Package handler megaservice 的 HTTP 处理器。
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/megaservice/internal/megaservice/biz"
	"github.com/kart-io/megaservice/internal/megaservice/metrics"
	"github.com/kart-io/megaservice/internal/model"
	"github.com/kart-io/megaservice/internal/pkg/orchestrator"
	errno "github.com/kart-io/megaservice/pkg/errors"
	"github.com/kart-io/megaservice/pkg/llm/openai"
	"github.com/kart-io/megaservice/pkg/utils/response"
)

// ChatQnAHandler 处理 /v1/chatqna 请求。
type ChatQnAHandler struct {
	svc     biz.ChatQnAService
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewChatQnAHandler 创建 ChatQnA 处理器。
func NewChatQnAHandler(svc biz.ChatQnAService, m *metrics.Metrics) *ChatQnAHandler {
	return &ChatQnAHandler{svc: svc, metrics: m, now: time.Now}
}

// ChatQnA 非流式时返回 OpenAI 兼容的 chat.completion 响应，流式时返回 SSE。
func (h *ChatQnAHandler) ChatQnA(c *gin.Context) {
	var req model.ChatQnARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithBind(c, err)
		return
	}
	if req.Messages.IsEmpty() {
		response.Fail(c, errno.ErrInvalidMessages.WithMessage("messages is required"))
		return
	}

	ctx := c.Request.Context()
	ans, err := h.svc.Answer(ctx, &req)
	if err != nil {
		response.Fail(c, err)
		return
	}

	if ans.Streaming() {
		w := newSSEWriter(c, h.now())
		_, _ = w.Drain(ctx, ans.Stream, ans.Sources)
		h.metrics.RecordStreamEvents(w.Events())
		return
	}

	c.JSON(http.StatusOK, chatCompletion(ans, h.now()))
}

func chatCompletion(ans *biz.Answer, now time.Time) model.ChatQnAResponse {
	sources := ans.Sources
	if sources == nil {
		sources = []orchestrator.Document{}
	}
	return model.ChatQnAResponse{
		ChatCompletionResponse: openai.ChatCompletionResponse{
			ID:      completionID(),
			Object:  openai.ObjectChatCompletion,
			Created: now.Unix(),
			Model:   model.ChatQnAModel,
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.Message{Role: openai.RoleAssistant, Content: openai.TextContent(ans.Text)},
				FinishReason: finishReasonStop,
			}},
		},
		Sources: sources,
	}
}
