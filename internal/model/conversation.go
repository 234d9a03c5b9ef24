package model

import "time"

// 会话请求默认值
const (
	DefaultConversationMaxTokens   = 1024
	DefaultConversationTemperature = 0.1
	DefaultConversationTopK        = 3
	DefaultListLimit               = 10
)

// NewConversationRequest 创建会话请求。
type NewConversationRequest struct {
	DBName string `json:"db_name" binding:"required,db_name"`
}

// NewConversationResponse 创建会话响应。
type NewConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// ConversationRequest 会话问答请求。
type ConversationRequest struct {
	Question       string  `json:"question" binding:"required"`
	DBName         string  `json:"db_name" binding:"required,db_name"`
	ConversationID string  `json:"conversation_id"`
	MaxTokens      int     `json:"max_tokens" binding:"gte=0"`
	Temperature    float64 `json:"temperature" binding:"gte=0"`
	TopK           int     `json:"top_k" binding:"gte=0"`
	Stream         bool    `json:"stream"`
}

// Complete 为零值参数填充默认值。
func (r *ConversationRequest) Complete() {
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultConversationMaxTokens
	}
	if r.Temperature == 0 {
		r.Temperature = DefaultConversationTemperature
	}
	if r.TopK == 0 {
		r.TopK = DefaultConversationTopK
	}
}

// SourceInfo 回答引用的来源。
type SourceInfo struct {
	Source         string  `json:"source" bson:"source"`
	Content        string  `json:"content" bson:"content"`
	RelevanceScore float64 `json:"relevance_score" bson:"relevance_score"`
}

// ConversationResponse 会话问答响应。
type ConversationResponse struct {
	ConversationID string       `json:"conversation_id"`
	Answer         string       `json:"answer"`
	Sources        []SourceInfo `json:"sources"`
}

// Turn 一轮问答。
type Turn struct {
	Question  string       `json:"question" bson:"question"`
	Answer    string       `json:"answer" bson:"answer"`
	Sources   []SourceInfo `json:"sources" bson:"sources"`
	Timestamp time.Time    `json:"timestamp" bson:"timestamp"`
}

// Conversation 持久化的会话记录。
type Conversation struct {
	ConversationID string    `json:"conversation_id" bson:"conversation_id"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	LastUpdated    time.Time `json:"last_updated" bson:"last_updated"`
	History        []Turn    `json:"history" bson:"history"`
}

// ConversationQuery 会话查询参数。
type ConversationQuery struct {
	DBName string `form:"db_name"`
}

// ListConversationsQuery 会话列表查询参数。
type ListConversationsQuery struct {
	DBName string `form:"db_name"`
	Limit  int    `form:"limit,default=10" binding:"gte=0"`
	Skip   int    `form:"skip" binding:"gte=0"`
}

// ConversationList 会话列表，按 last_updated 倒序。
type ConversationList struct {
	Total         int64          `json:"total"`
	Skip          int            `json:"skip"`
	Limit         int            `json:"limit"`
	Conversations []Conversation `json:"conversations"`
}
