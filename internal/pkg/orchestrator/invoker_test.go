package orchestrator

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errno "github.com/kart-io/megaservice/pkg/errors"
	"github.com/kart-io/megaservice/pkg/utils/httpclient"
	"github.com/kart-io/megaservice/pkg/utils/json"
)

// serverNode 创建指向测试服务器的节点。
func serverNode(t *testing.T, srv *httptest.Server, id string, kind NodeKind, endpoint string) ServiceNode {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return NewServiceNode(id, kind, Address{Host: host, Port: port, Endpoint: endpoint})
}

func TestHTTPInvoker_Embedding(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[[0.5,0.25]]`)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(httpclient.NewClient(5*time.Second, 0))
	node := serverNode(t, srv, "embedding", KindEmbedding, "/v1/embeddings")

	raw, err := inv.Invoke(context.Background(), node, EmbedRequest{Inputs: "hello"})
	require.NoError(t, err)
	assert.Equal(t, EmbedResponse{{0.5, 0.25}}, raw)
	assert.Equal(t, map[string]any{"inputs": "hello"}, got)
}

func TestHTTPInvoker_RetrieverFlattensParams(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"retrieved_docs":[{"id":"a","text":"alpha"}],"initial_query":"q"}`)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(httpclient.NewClient(5*time.Second, 0))
	node := serverNode(t, srv, "retriever", KindRetriever, "/v1/retrieval")

	raw, err := inv.Invoke(context.Background(), node, RetrieveRequest{
		Text:            "q",
		Embedding:       []float32{1},
		RetrieverParams: DefaultRetrieverParams(),
	})
	require.NoError(t, err)

	resp := raw.(RetrieveResponse)
	assert.Equal(t, "q", resp.InitialQuery)
	require.Len(t, resp.RetrievedDocs, 1)
	assert.Equal(t, "alpha", resp.RetrievedDocs[0].Text)

	assert.Equal(t, "q", got["text"])
	assert.Equal(t, "similarity", got["search_type"])
	assert.EqualValues(t, 4, got["k"])
}

func TestHTTPInvoker_RerankDropsMetadata(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `[{"index":1,"score":0.8}]`)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(httpclient.NewClient(5*time.Second, 0))
	node := serverNode(t, srv, "rerank", KindRerank, "/v1/reranking")

	raw, err := inv.Invoke(context.Background(), node, RerankRequest{
		Query:       "q",
		Texts:       []string{"a", "b"},
		DocMetadata: []Document{{ID: "a"}, {ID: "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, RerankResponse{{Index: 1, Score: 0.8}}, raw)
	assert.NotContains(t, got, "DocMetadata")
	assert.Len(t, got, 2)
}

func TestHTTPInvoker_StreamingGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hi \"}}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"there\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(httpclient.NewClient(5*time.Second, 0))
	node := serverNode(t, srv, "llm", KindGenerator, "/v1/chat/completions")

	req := ChatPayload{}
	req.Request.Stream = true
	raw, err := inv.Invoke(context.Background(), node, req)
	require.NoError(t, err)

	sp, ok := raw.(StreamPayload)
	require.True(t, ok)
	text, err := NewEventStream(sp.Stream).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
}

func TestHTTPInvoker_NonStreamingGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(httpclient.NewClient(5*time.Second, 0))
	node := serverNode(t, srv, "llm", KindGenerator, "/v1/chat/completions")

	raw, err := inv.Invoke(context.Background(), node, ChatPayload{})
	require.NoError(t, err)
	resp := raw.(ChatResponse)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content.String())
}

func TestHTTPInvoker_UnknownKindReturnsRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"any":"thing"}`)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(httpclient.NewClient(5*time.Second, 0))
	node := serverNode(t, srv, "join", KindAggregate, "/v1/join")

	raw, err := inv.Invoke(context.Background(), node, RawPayload{Data: json.RawMessage(`{"in":1}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"any":"thing"}`, string(raw.(RawPayload).Data))
}

func TestHTTPInvoker_StatusError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(httpclient.NewClient(5*time.Second, 0))
	node := serverNode(t, srv, "embedding", KindEmbedding, "/v1/embeddings")

	_, err := inv.Invoke(context.Background(), node, EmbedRequest{Inputs: "x"})
	var re *RemoteInvocationError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "embedding", re.NodeID)
	assert.Equal(t, http.StatusServiceUnavailable, re.StatusCode)
	assert.EqualValues(t, 1, calls.Load())

	// 错误码映射
	assert.Equal(t, errno.ErrRemoteInvocation.Code, errno.GetCode(err))
}

func TestHTTPInvoker_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	node := serverNode(t, srv, "embedding", KindEmbedding, "/v1/embeddings")
	srv.Close()

	inv := NewHTTPInvoker(httpclient.NewClient(time.Second, 0))
	_, err := inv.Invoke(context.Background(), node, EmbedRequest{Inputs: "x"})
	var re *RemoteInvocationError
	require.ErrorAs(t, err, &re)
	assert.Zero(t, re.StatusCode)
}
