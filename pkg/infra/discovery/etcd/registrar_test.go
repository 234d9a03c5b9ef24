package etcd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/megaservice/pkg/options/etcd"
)

func TestRegistrar_Keys(t *testing.T) {
	opts := options.NewOptions()
	opts.AdvertiseAddr = "http://10.0.0.5:9001"
	r := NewRegistrar("megaservice", opts)

	keys := r.Keys()
	require.Len(t, keys, 3)
	assert.Equal(t, opts.Rule, keys["traefik/http/routers/megaservice/rule"])
	assert.Equal(t, "megaservice", keys["traefik/http/routers/megaservice/service"])

	var url string
	for k, v := range keys {
		if strings.HasPrefix(k, "traefik/http/services/megaservice/loadbalancer/servers/") {
			url = v
			assert.True(t, strings.HasSuffix(k, "/url"))
		}
	}
	assert.Equal(t, "http://10.0.0.5:9001", url)

	// 同一地址生成相同实例 ID
	assert.Equal(t, keys, NewRegistrar("megaservice", opts).Keys())
}

func TestRegistrar_StopWithoutStart(t *testing.T) {
	r := NewRegistrar("megaservice", options.NewOptions())
	assert.Equal(t, "etcd-registrar", r.Name())
	assert.NoError(t, r.Stop(context.Background()))
}

func TestRegistrar_Local(t *testing.T) {
	opts := options.NewOptions()
	opts.AdvertiseAddr = "http://127.0.0.1:9001"
	opts.DialTimeout = time.Second
	opts.RequestTimeout = time.Second

	r := NewRegistrar("megaservice-test", opts)
	if err := r.Start(context.Background()); err != nil {
		t.Skipf("etcd not available: %v", err)
	}
	require.NoError(t, r.Stop(context.Background()))
}
