package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"

	"github.com/kart-io/megaservice/internal/model"
	"github.com/kart-io/megaservice/internal/pkg/orchestrator"
	errno "github.com/kart-io/megaservice/pkg/errors"
	ctxlog "github.com/kart-io/megaservice/pkg/infra/logger"
	"github.com/kart-io/megaservice/pkg/llm/openai"
	"github.com/kart-io/megaservice/pkg/utils/json"
)

const (
	sseData = "data: "
	sseDone = "data: [DONE]\n\n"

	finishReasonStop = "stop"
)

// completionID 生成 chat completion ID。
func completionID() string {
	return "chatcmpl-" + ulid.Make().String()
}

// sseWriter 将事件流写为 OpenAI chat.completion.chunk 格式的 SSE。
type sseWriter struct {
	c       *gin.Context
	id      string
	created int64
	events  int
}

func newSSEWriter(c *gin.Context, now time.Time) *sseWriter {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(200)

	return &sseWriter{c: c, id: completionID(), created: now.Unix()}
}

func (w *sseWriter) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.c.Writer.WriteString(sseData + string(b) + "\n\n"); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// Drain 逐词写出事件，结束时写出携带来源的结束分片与 [DONE]，返回完整回答。
// 中途失败时写出一个 error 事件并返回已发送的部分。
func (w *sseWriter) Drain(ctx context.Context, es *orchestrator.EventStream, sources []orchestrator.Document) (string, error) {
	var b strings.Builder
	for ev, err := range es.Events(ctx) {
		if err != nil {
			w.fail(ctx, err)
			return b.String(), errno.ErrStreamInterrupted.WithCause(err)
		}
		if ev.Done {
			break
		}
		b.WriteString(ev.Text)
		w.events++
		if err := w.write(model.ChatQnAChunk{
			ChatCompletionChunk: openai.NewChunk(w.id, model.ChatQnAModel, w.created, ev.Text),
		}); err != nil {
			return b.String(), errno.ErrStreamInterrupted.WithCause(err)
		}
	}

	if sources == nil {
		sources = []orchestrator.Document{}
	}
	if err := w.write(model.ChatQnAChunk{
		ChatCompletionChunk: openai.NewFinishChunk(w.id, model.ChatQnAModel, w.created, finishReasonStop),
		Sources:             sources,
	}); err != nil {
		return b.String(), errno.ErrStreamInterrupted.WithCause(err)
	}
	if _, err := w.c.Writer.WriteString(sseDone); err != nil {
		return b.String(), errno.ErrStreamInterrupted.WithCause(err)
	}
	w.c.Writer.Flush()
	return b.String(), nil
}

// Events 返回已写出的内容事件数。
func (w *sseWriter) Events() int { return w.events }

func (w *sseWriter) fail(ctx context.Context, err error) {
	logger.Errorw("stream interrupted", append(ctxlog.Fields(ctx), "events", w.events, "error", err.Error())...)

	e := errno.FromError(err)
	_, _ = w.c.Writer.WriteString("event: error\n")
	_ = w.write(gin.H{"code": e.Code, "message": e.Message("en")})
}
