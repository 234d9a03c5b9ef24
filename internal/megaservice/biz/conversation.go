package biz

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kart-io/logger"

	"github.com/kart-io/megaservice/internal/megaservice/metrics"
	"github.com/kart-io/megaservice/internal/megaservice/store"
	"github.com/kart-io/megaservice/internal/model"
	errno "github.com/kart-io/megaservice/pkg/errors"
	ctxlog "github.com/kart-io/megaservice/pkg/infra/logger"
	"github.com/kart-io/megaservice/pkg/llm/openai"
)

// saveTimeout 后台持久化单轮会话的超时时间。
const saveTimeout = 10 * time.Second

// Submitter 后台任务执行器，由 *pool.Pool 实现。
type Submitter interface {
	Submit(task func()) error
}

// TemplateFunc 返回数据库对应的聊天模板，为空表示使用默认模板。
type TemplateFunc func(dbName string) string

// ConversationAnswer 会话问答结果。
type ConversationAnswer struct {
	ConversationID string
	Answer         *Answer
	Sources        []model.SourceInfo
}

// ConversationService 会话业务接口。
type ConversationService interface {
	Create(ctx context.Context, dbName string) (string, error)
	Chat(ctx context.Context, id string, req *model.ConversationRequest) (*ConversationAnswer, error)
	SaveTurnAsync(dbName, id, question, answer string, sources []model.SourceInfo)
	History(ctx context.Context, dbName, id string) (*model.Conversation, error)
	Delete(ctx context.Context, dbName, id string) error
	List(ctx context.Context, dbName string, limit, skip int) (*model.ConversationList, error)
}

type conversationService struct {
	store     store.Store
	chatqna   ChatQnAService
	templates TemplateFunc
	pool      Submitter
	metrics   *metrics.Metrics
	now       func() time.Time
}

// ConversationOption 会话服务选项。
type ConversationOption func(*conversationService)

// WithTemplates 设置按数据库选择聊天模板的函数。
func WithTemplates(f TemplateFunc) ConversationOption {
	return func(s *conversationService) { s.templates = f }
}

// WithSubmitter 设置流式会话的后台持久化执行器。
func WithSubmitter(p Submitter) ConversationOption {
	return func(s *conversationService) { s.pool = p }
}

// WithMetrics 设置指标收集。
func WithMetrics(m *metrics.Metrics) ConversationOption {
	return func(s *conversationService) { s.metrics = m }
}

// NewConversationService 创建会话服务。
func NewConversationService(st store.Store, chatqna ChatQnAService, opts ...ConversationOption) ConversationService {
	s := &conversationService{
		store:     st,
		chatqna:   chatqna,
		templates: func(string) string { return "" },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create 新建空会话并返回 UUID v4 会话 ID。
func (s *conversationService) Create(ctx context.Context, dbName string) (string, error) {
	if dbName == "" {
		return "", errno.ErrMissingDBName
	}

	now := s.now()
	conv := &model.Conversation{
		ConversationID: uuid.NewString(),
		CreatedAt:      now,
		LastUpdated:    now,
		History:        []model.Turn{},
	}
	if err := s.store.Create(ctx, dbName, conv); err != nil {
		return "", storeErr(err)
	}

	logger.Infow("conversation created", append(ctxlog.Fields(ctx), "db_name", dbName, "conversation_id", conv.ConversationID)...)
	return conv.ConversationID, nil
}

// Chat 以单条 user 消息调用 ChatQnA，k 与 top_n 均取 top_k。
// 非流式回答在返回前写入会话历史；流式回答由调用方在消费完后调用 SaveTurnAsync。
func (s *conversationService) Chat(ctx context.Context, id string, req *model.ConversationRequest) (*ConversationAnswer, error) {
	if req.ConversationID != "" {
		id = req.ConversationID
	}
	req.Complete()

	qna := &model.ChatQnARequest{
		Messages: model.Messages{List: []openai.Message{
			{Role: openai.RoleUser, Content: openai.TextContent(req.Question)},
		}},
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Stream:       req.Stream,
		K:            req.TopK,
		TopN:         req.TopK,
		ChatTemplate: s.templates(req.DBName),
	}

	ans, err := s.chatqna.Answer(ctx, qna)
	if err != nil {
		return nil, err
	}

	out := &ConversationAnswer{ConversationID: id, Answer: ans}
	if ans.Streaming() {
		return out, nil
	}

	out.Sources = NormalizeSources(ans.Sources)
	if err := s.saveTurn(ctx, req.DBName, id, req.Question, ans.Text, out.Sources); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveTurnAsync 在后台池中持久化一轮会话。池不可用时同步写入。
func (s *conversationService) SaveTurnAsync(dbName, id, question, answer string, sources []model.SourceInfo) {
	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := s.saveTurn(ctx, dbName, id, question, answer, sources); err != nil {
			logger.Errorw("failed to save streamed conversation turn",
				"db_name", dbName, "conversation_id", id, "error", err.Error())
		}
	}

	if s.pool != nil {
		err := s.pool.Submit(task)
		if err == nil {
			return
		}
		logger.Warnw("background pool rejected conversation save, saving inline",
			"conversation_id", id, "error", err.Error())
	}
	task()
}

func (s *conversationService) saveTurn(ctx context.Context, dbName, id, question, answer string, sources []model.SourceInfo) error {
	now := s.now()
	if sources == nil {
		sources = []model.SourceInfo{}
	}
	turn := model.Turn{Question: question, Answer: answer, Sources: sources, Timestamp: now}

	err := s.store.AppendTurn(ctx, dbName, id, turn, now)
	s.metrics.RecordTurnSaved(err)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// History 返回会话历史。
func (s *conversationService) History(ctx context.Context, dbName, id string) (*model.Conversation, error) {
	if dbName == "" {
		return nil, errno.ErrMissingDBName
	}
	conv, err := s.store.Get(ctx, dbName, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return conv, nil
}

// Delete 删除会话。
func (s *conversationService) Delete(ctx context.Context, dbName, id string) error {
	if dbName == "" {
		return errno.ErrMissingDBName
	}
	if err := s.store.Delete(ctx, dbName, id); err != nil {
		return storeErr(err)
	}
	logger.Infow("conversation deleted", append(ctxlog.Fields(ctx), "db_name", dbName, "conversation_id", id)...)
	return nil
}

// List 分页列出会话。
func (s *conversationService) List(ctx context.Context, dbName string, limit, skip int) (*model.ConversationList, error) {
	if dbName == "" {
		return nil, errno.ErrMissingDBName
	}
	convs, total, err := s.store.List(ctx, dbName, limit, skip)
	if err != nil {
		return nil, storeErr(err)
	}
	return &model.ConversationList{Total: total, Skip: skip, Limit: limit, Conversations: convs}, nil
}

func storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errno.ErrConversationNotFound
	}
	return errno.ErrDatabase.WithCause(err)
}
