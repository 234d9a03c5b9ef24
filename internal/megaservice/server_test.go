package megaservice

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheopts "github.com/kart-io/megaservice/pkg/options/cache"
	etcdopts "github.com/kart-io/megaservice/pkg/options/etcd"
	logopts "github.com/kart-io/megaservice/pkg/options/logger"
	megaopts "github.com/kart-io/megaservice/pkg/options/megaservice"
	mongoopts "github.com/kart-io/megaservice/pkg/options/mongodb"
	poolopts "github.com/kart-io/megaservice/pkg/options/pool"
	httpopts "github.com/kart-io/megaservice/pkg/options/server/http"
	tracingopts "github.com/kart-io/megaservice/pkg/options/tracing"
	"github.com/kart-io/megaservice/pkg/utils/json"
)

// upstream 模拟 embedding/retriever/rerank/llm 四个微服务。
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/embed", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[[0.1,0.2,0.3]]`)
	})
	mux.HandleFunc("/v1/retrieval", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"retrieved_docs":[{"id":"d1","text":"Paris is in France."},{"id":"d2","text":"Berlin is in Germany."}],"initial_query":"capital?"}`)
	})
	mux.HandleFunc("/rerank", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"index":0,"score":0.9},{"index":1,"score":0.1}]`)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stream bool `json:"stream"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if !body.Stream {
			_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Paris."}}]}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"It is \"}}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Paris.\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, up *httptest.Server) *Config {
	t.Helper()
	u, err := url.Parse(up.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	mega := megaopts.NewOptions()
	for _, n := range []*megaopts.NodeOptions{&mega.Embedding, &mega.Retriever, &mega.Rerank, &mega.LLM} {
		n.Host, n.Port = host, port
	}
	mega.InvokeTimeout = 5 * time.Second

	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = "127.0.0.1:0"

	mongo := mongoopts.NewOptions()
	mongo.Enabled = false

	return &Config{
		HTTPOptions:        httpOpts,
		LogOptions:         logopts.NewOptions(),
		MegaserviceOptions: mega,
		MongoOptions:       mongo,
		CacheOptions:       cacheopts.NewOptions(),
		TracingOptions:     tracingopts.NewOptions(),
		EtcdOptions:        etcdopts.NewOptions(),
		PoolOptions:        poolopts.NewOptions(),
	}
}

// startServer 启动服务并返回基础 URL。
func startServer(t *testing.T, cfg *Config) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	s, err := cfg.NewServer(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})

	require.Eventually(t, func() bool {
		return s.Addr() != cfg.HTTPOptions.Addr
	}, 5*time.Second, 10*time.Millisecond)
	return "http://" + s.Addr()
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer_ChatQnAEndToEnd(t *testing.T) {
	base := startServer(t, testConfig(t, upstream(t)))

	t.Run("non-stream", func(t *testing.T) {
		resp := post(t, base+"/v1/chatqna", `{"messages":"capital?","stream":false}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

		var out struct {
			Object  string `json:"object"`
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			Sources []struct {
				Source string `json:"source"`
			} `json:"sources"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, "chat.completion", out.Object)
		require.Len(t, out.Choices, 1)
		assert.Equal(t, "Paris.", out.Choices[0].Message.Content)
		// 默认 top_n 为 1，仅保留最高分文档
		require.Len(t, out.Sources, 1)
		assert.Equal(t, "d1", out.Sources[0].Source)
	})

	t.Run("stream", func(t *testing.T) {
		resp := post(t, base+"/v1/chatqna", `{"messages":"capital?","stream":true}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		body := string(raw)
		assert.Contains(t, body, `"content":"It "`)
		assert.Contains(t, body, `"content":"Paris."`)
		assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(base + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `megaservice_node_calls_total{kind="EMBEDDING",node="embedding",result="ok"}`)
	})

	t.Run("conversation routes disabled", func(t *testing.T) {
		resp, err := http.Get(base + "/conversations")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("readiness", func(t *testing.T) {
		resp, err := http.Get(base + "/readyz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestServer_UpstreamFailure(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(up.Close)

	base := startServer(t, testConfig(t, up))
	resp := post(t, base+"/v1/chatqna", `{"messages":"hi","stream":false}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestNewServer_InvalidTopology(t *testing.T) {
	cfg := testConfig(t, upstream(t))
	cfg.MegaserviceOptions.Topology = "ring"
	_, err := cfg.NewServer(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ring")
}
