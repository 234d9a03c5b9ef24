package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	megaopts "github.com/kart-io/megaservice/pkg/options/megaservice"
)

func TestServerOptions_Defaults(t *testing.T) {
	o := NewServerOptions()
	require.NoError(t, o.Complete())
	require.NoError(t, o.Validate())

	assert.Equal(t, ":9001", o.HTTPOptions.Addr)
	assert.Equal(t, megaopts.TopologyRerank, o.MegaserviceOptions.Topology)
	assert.False(t, o.CacheOptions.Enabled)
	assert.False(t, o.EtcdOptions.Enabled)
}

func TestServerOptions_Flags(t *testing.T) {
	o := NewServerOptions()
	fss := o.Flags()

	fs := fss.FlagSet("megaservice")
	require.NoError(t, fs.Parse([]string{
		"--megaservice.topology=no-rerank",
		"--megaservice.llm.port=8008",
		"--megaservice.chat-templates=easy_circulars={context} {question}",
	}))
	assert.Equal(t, megaopts.TopologyNoRerank, o.MegaserviceOptions.Topology)
	assert.Equal(t, 8008, o.MegaserviceOptions.LLM.Port)
	assert.Equal(t, "{context} {question}", o.MegaserviceOptions.ChatTemplate("easy_circulars"))

	assert.NotNil(t, fss.FlagSet("http").Lookup("http.addr"))
	assert.NotNil(t, fss.FlagSet("cache").Lookup("cache.redis.host"))
}

func TestServerOptions_ValidateAggregates(t *testing.T) {
	o := NewServerOptions()
	o.MegaserviceOptions.Topology = "mesh"
	o.MegaserviceOptions.Parallelism = 0

	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "megaservice.topology")
	assert.Contains(t, err.Error(), "megaservice.parallelism")
}

func TestServerOptions_Config(t *testing.T) {
	o := NewServerOptions()
	cfg, err := o.Config()
	require.NoError(t, err)
	assert.Same(t, o.HTTPOptions, cfg.HTTPOptions)
	assert.Same(t, o.MegaserviceOptions, cfg.MegaserviceOptions)
}
