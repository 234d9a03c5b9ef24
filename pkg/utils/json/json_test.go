package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunk struct {
	Content string            `json:"content"`
	Score   float64           `json:"score,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func TestMarshalString_RoundTrip(t *testing.T) {
	// 提示词中包含 <、> 与 &，编码后必须能无损还原
	in := chunk{Content: "a < b && c > d", Meta: map[string]string{"source": "doc-1"}}
	s, err := MarshalString(in)
	require.NoError(t, err)

	var out chunk
	require.NoError(t, Unmarshal([]byte(s), &out))
	assert.Equal(t, in, out)
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(chunk{Content: "你好", Score: 0.5}))

	var got chunk
	require.NoError(t, NewDecoder(&buf).Decode(&got))
	assert.Equal(t, "你好", got.Content)
	assert.InDelta(t, 0.5, got.Score, 1e-9)
}

func TestUnmarshal_RawMessage(t *testing.T) {
	var v struct {
		Data RawMessage `json:"data"`
	}
	require.NoError(t, Unmarshal([]byte(`{"data":[1,2,3]}`), &v))
	assert.JSONEq(t, `[1,2,3]`, string(v.Data))
}
