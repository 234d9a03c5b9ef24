package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/kart-io/megaservice/internal/megaservice/metrics"
	"github.com/kart-io/megaservice/internal/model"
	"github.com/kart-io/megaservice/internal/pkg/orchestrator"
	ctxlog "github.com/kart-io/megaservice/pkg/infra/logger"
)

// Scheduler 执行一次编排请求，由 *orchestrator.Orchestrator 实现。
type Scheduler interface {
	Schedule(ctx context.Context, initial orchestrator.Payload, params orchestrator.SideParams) (*orchestrator.Result, error)
}

// Answer 一次问答的结果。流式时 Stream 非空，Text 为空，调用方负责消费 Stream。
type Answer struct {
	Text    string
	Sources []orchestrator.Document
	Stream  *orchestrator.EventStream
	Cached  bool
	Visited []string
}

// Streaming 判断是否为流式结果。
func (a *Answer) Streaming() bool { return a.Stream != nil }

// ChatQnAService ChatQnA 业务接口。
type ChatQnAService interface {
	Answer(ctx context.Context, req *model.ChatQnARequest) (*Answer, error)
}

type chatQnAService struct {
	scheduler Scheduler
	cache     *AnswerCache
	metrics   *metrics.Metrics
}

// NewChatQnAService 创建 ChatQnA 服务。cache 与 m 可以为 nil。
func NewChatQnAService(s Scheduler, cache *AnswerCache, m *metrics.Metrics) ChatQnAService {
	return &chatQnAService{scheduler: s, cache: cache, metrics: m}
}

// Answer 展平 messages 后交给编排器执行。非流式结果会查询并写入缓存。
func (s *chatQnAService) Answer(ctx context.Context, req *model.ChatQnARequest) (*Answer, error) {
	prompt, err := HandleMessage(req.Messages)
	if err != nil {
		return nil, err
	}
	params := SideParamsFrom(req)

	var key string
	if !params.LLM.Stream && s.cache != nil {
		key = s.cache.Key(prompt, params)
		if ans := s.cache.Get(ctx, key); ans != nil {
			s.metrics.RecordCache(true)
			return ans, nil
		}
		s.metrics.RecordCache(false)
	}

	res, err := s.scheduler.Schedule(ctx, orchestrator.TextPayload{Text: prompt}, params)
	s.metrics.RecordRequest("chatqna", err)
	if err != nil {
		logger.Errorw("chatqna schedule failed", append(ctxlog.Fields(ctx), "error", err.Error())...)
		return nil, err
	}

	ans := &Answer{Sources: res.Sources, Stream: res.Stream, Visited: res.Visited}
	if res.Stream != nil {
		return ans, nil
	}

	ans.Text = res.Text()
	if key != "" {
		s.cache.Set(ctx, key, ans)
	}
	logger.Infow("chatqna answered", append(ctxlog.Fields(ctx),
		"visited", res.Visited,
		"sources", len(res.Sources),
	)...)
	return ans, nil
}
