// Package openai 定义兼容 OpenAI /v1/chat/completions 的请求、响应与流式分片结构，
// 并提供 SSE 流的读取器。
package openai

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/kart-io/megaservice/pkg/utils/json"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// 对象类型
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)

// ContentPart 多模态消息中的一段内容。仅 text 类型参与提示词构造。
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL 图片引用。
type ImageURL struct {
	URL string `json:"url"`
}

// Content 消息内容，可以是字符串或内容片段数组。
type Content struct {
	Text  string
	Parts []ContentPart
}

// TextContent 构造纯文本内容。
func TextContent(s string) Content {
	return Content{Text: s}
}

// IsParts 判断内容是否为片段数组形式。
func (c Content) IsParts() bool { return c.Parts != nil }

// String 返回文本内容；片段数组形式下按换行拼接所有 text 片段。
func (c Content) String() string {
	if c.Parts == nil {
		return c.Text
	}
	texts := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// MarshalJSON 实现 json.Marshaler。
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON 实现 json.Unmarshaler。
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '"':
		c.Parts = nil
		return json.Unmarshal(data, &c.Text)
	case data[0] == '[':
		c.Text = ""
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		if parts == nil {
			parts = []ContentPart{}
		}
		c.Parts = parts
		return nil
	}
	return fmt.Errorf("openai: unsupported message content %s", string(data))
}

// Message 对话消息。
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// ChatCompletionRequest /v1/chat/completions 请求体。
type ChatCompletionRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	TopP             float64   `json:"top_p"`
	Temperature      float64   `json:"temperature"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	Stream           bool      `json:"stream"`
}

// ChatCompletionChoice 非流式响应中的候选。
type ChatCompletionChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage token 用量。
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse 非流式响应。
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// Delta 流式分片中的增量内容。
type Delta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// ChunkChoice 流式分片中的候选。
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// ChatCompletionChunk 流式响应分片（chat.completion.chunk）。
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}
