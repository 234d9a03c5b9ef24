package http

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errno "github.com/kart-io/megaservice/pkg/errors"
	options "github.com/kart-io/megaservice/pkg/options/server/http"
	"github.com/kart-io/megaservice/pkg/utils/json"
	"github.com/kart-io/megaservice/pkg/utils/response"
)

func TestServer_StartServeStop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(options.NewOptions(options.WithAddr("127.0.0.1:0")))
	s.Engine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))
	base := "http://" + s.Addr()

	resp, err := http.Get(base + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	// 未注册路由返回 JSON 404
	resp, err = http.Get(base + "/missing")
	require.NoError(t, err)
	var env response.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errno.ErrRouteNotFound.Code, env.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_, err = http.Get(base + "/ping")
	assert.Error(t, err)
}

func TestServer_BindError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	first := NewServer(options.NewOptions(options.WithAddr("127.0.0.1:0")))
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Stop(context.Background()) }()

	second := NewServer(options.NewOptions(options.WithAddr(first.Addr())))
	assert.Error(t, second.Start(context.Background()))
	assert.NoError(t, second.Stop(context.Background()))
}
