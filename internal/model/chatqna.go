// Package model 定义 megaservice 对外接口的请求与响应结构。
package model

import (
	"bytes"
	"fmt"

	"github.com/kart-io/megaservice/internal/pkg/orchestrator"
	"github.com/kart-io/megaservice/pkg/llm/openai"
	"github.com/kart-io/megaservice/pkg/utils/json"
)

// ChatQnAModel 非流式响应中的模型名称。
const ChatQnAModel = "chatqna"

// Messages 兼容字符串与消息数组两种形式的 messages 字段。
type Messages struct {
	Prompt string
	List   []openai.Message
}

// IsList 判断是否为消息数组形式。
func (m Messages) IsList() bool { return m.List != nil }

// IsEmpty 判断是否未提供任何内容。
func (m Messages) IsEmpty() bool { return m.Prompt == "" && len(m.List) == 0 }

// MarshalJSON 实现 json.Marshaler。
func (m Messages) MarshalJSON() ([]byte, error) {
	if m.List != nil {
		return json.Marshal(m.List)
	}
	return json.Marshal(m.Prompt)
}

// UnmarshalJSON 实现 json.Unmarshaler。
func (m *Messages) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*m = Messages{}
		return nil
	case data[0] == '"':
		m.List = nil
		return json.Unmarshal(data, &m.Prompt)
	case data[0] == '[':
		m.Prompt = ""
		list := []openai.Message{}
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		m.List = list
		return nil
	}
	return fmt.Errorf("messages must be a string or an array of messages")
}

// ChatQnARequest /v1/chatqna 请求体：OpenAI 对话请求加上检索与重排参数。
// 数值参数为零值时使用默认值。
type ChatQnARequest struct {
	Model             string   `json:"model"`
	Messages          Messages `json:"messages"`
	MaxTokens         int      `json:"max_tokens" binding:"gte=0"`
	TopK              int      `json:"top_k" binding:"gte=0"`
	TopP              float64  `json:"top_p" binding:"gte=0,lte=1"`
	Temperature       float64  `json:"temperature" binding:"gte=0"`
	FrequencyPenalty  float64  `json:"frequency_penalty"`
	PresencePenalty   float64  `json:"presence_penalty"`
	RepetitionPenalty float64  `json:"repetition_penalty" binding:"gte=0"`
	Stream            bool     `json:"stream"`
	ChatTemplate      string   `json:"chat_template"`

	SearchType        string   `json:"search_type" binding:"search_type"`
	K                 int      `json:"k" binding:"gte=0"`
	DistanceThreshold *float64 `json:"distance_threshold"`
	FetchK            int      `json:"fetch_k" binding:"gte=0"`
	LambdaMult        float64  `json:"lambda_mult" binding:"gte=0,lte=1"`
	ScoreThreshold    float64  `json:"score_threshold"`

	TopN int `json:"top_n" binding:"gte=0"`
}

// ChatQnAResponse 非流式响应，在 OpenAI 响应上附加来源。
type ChatQnAResponse struct {
	openai.ChatCompletionResponse
	Sources []orchestrator.Document `json:"sources"`
}

// ChatQnAChunk 流式分片。结束分片携带来源。
type ChatQnAChunk struct {
	openai.ChatCompletionChunk
	Sources []orchestrator.Document `json:"sources,omitempty"`
}
