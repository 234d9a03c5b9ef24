package openai

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/megaservice/pkg/utils/json"
)

func drain(t *testing.T, s *Stream) []string {
	t.Helper()
	var out []string
	for {
		text, err := s.Recv()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, text)
	}
}

func TestStream_Recv(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`,
		``,
		`data: {"choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}`,
		``,
		`: keep-alive`,
		`data: {"choices":[{"index":0,"delta":{"content":" world"},"finish_reason":null}]}`,
		``,
		`data: {"choices":[{"index":0,"delta":{"content":"</s>"},"finish_reason":"eos_token"}]}`,
		``,
		`data: [DONE]`,
		``,
		`data: {"choices":[{"index":0,"delta":{"content":"ignored"}}]}`,
	}, "\n")

	s := NewStream(io.NopCloser(strings.NewReader(body)))
	defer func() { _ = s.Close() }()

	assert.Equal(t, []string{"Hello", " world"}, drain(t, s))

	// 结束后继续读取仍返回 EOF
	_, err := s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestStream_NoDoneMarker(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n"
	s := NewStream(io.NopCloser(strings.NewReader(body)))
	assert.Equal(t, []string{"a"}, drain(t, s))
}

func TestStream_MalformedChunk(t *testing.T) {
	s := NewStream(io.NopCloser(strings.NewReader("data: {not json}\n\n")))
	_, err := s.Recv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode stream chunk")
}

func TestContent_JSON(t *testing.T) {
	var msgs []Message
	raw := `[
		{"role":"system","content":"be brief"},
		{"role":"user","content":[{"type":"text","text":"line one"},{"type":"image_url","image_url":{"url":"http://x/y.png"}},{"type":"text","text":"line two"}]}
	]`
	require.NoError(t, json.Unmarshal([]byte(raw), &msgs))
	require.Len(t, msgs, 2)

	assert.False(t, msgs[0].Content.IsParts())
	assert.Equal(t, "be brief", msgs[0].Content.String())
	assert.True(t, msgs[1].Content.IsParts())
	assert.Equal(t, "line one\nline two", msgs[1].Content.String())

	b, err := json.Marshal(Message{Role: RoleUser, Content: TextContent("hi")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(b))
}

func TestNewChunk(t *testing.T) {
	b, err := json.Marshal(NewChunk("id-1", "chatqna", 1, "word "))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"id-1","object":"chat.completion.chunk","created":1,"model":"chatqna",
		"choices":[{"index":0,"delta":{"content":"word "},"finish_reason":null}]}`, string(b))

	b, err = json.Marshal(NewFinishChunk("id-1", "chatqna", 1, "stop"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"id-1","object":"chat.completion.chunk","created":1,"model":"chatqna",
		"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`, string(b))
}
