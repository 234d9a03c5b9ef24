package openai

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/kart-io/megaservice/pkg/utils/json"
)

const (
	streamingDataPrefix = "data:"
	streamingEndMsg     = "[DONE]"

	// FinishReasonEOSToken 部分推理服务在最后一个分片中使用的结束标记，该分片不携带内容。
	FinishReasonEOSToken = "eos_token"

	maxLineSize = 1 << 20
)

// Stream 读取 OpenAI 兼容的 SSE 响应，逐个返回 choices[0].delta.content。
//
// 规则：
//   - 仅处理 "data:" 开头的行，其余行（注释、event、空行）忽略
//   - "data: [DONE]" 表示流结束
//   - finish_reason 为 eos_token 的分片被跳过
//   - 无 content 的分片（如仅含 role）被跳过
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool

	closeOnce sync.Once
	closeErr  error
}

// NewStream 包装一个 SSE 响应体，调用方负责最终调用 Close。
func NewStream(body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Stream{body: body, scanner: sc}
}

// Recv 返回下一段文本内容。流结束时返回 io.EOF。
func (s *Stream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if !bytes.HasPrefix(line, []byte(streamingDataPrefix)) {
			continue
		}
		data := bytes.TrimSpace(line[len(streamingDataPrefix):])
		if string(data) == streamingEndMsg {
			s.done = true
			return "", io.EOF
		}

		content, ok, err := decodeChunk(data)
		if err != nil {
			return "", err
		}
		if ok {
			return content, nil
		}
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("openai: read stream: %w", err)
	}
	// 上游未发送 [DONE] 直接断开，按正常结束处理
	return "", io.EOF
}

func decodeChunk(data []byte) (string, bool, error) {
	var chunk ChatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, fmt.Errorf("openai: decode stream chunk %q: %w", truncate(data, 128), err)
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != nil && *choice.FinishReason == FinishReasonEOSToken {
		return "", false, nil
	}
	if choice.Delta.Content == nil {
		return "", false, nil
	}
	return *choice.Delta.Content, true, nil
}

// Close 关闭底层响应体，可重复调用。
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// NewChunk 构造一个携带增量内容的流式分片。
func NewChunk(id, model string, created int64, content string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      id,
		Object:  ObjectChatCompletionChunk,
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{{Delta: Delta{Content: &content}}},
	}
}

// NewFinishChunk 构造结束分片。
func NewFinishChunk(id, model string, created int64, reason string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      id,
		Object:  ObjectChatCompletionChunk,
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{{Delta: Delta{}, FinishReason: &reason}},
	}
}
