// Package options contains flags and options for initializing the megaservice.
package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	megasvc "github.com/kart-io/megaservice/internal/megaservice"
	cliflag "github.com/kart-io/megaservice/pkg/app/cliflag"
	"github.com/kart-io/megaservice/pkg/options"
	cacheopts "github.com/kart-io/megaservice/pkg/options/cache"
	etcdopts "github.com/kart-io/megaservice/pkg/options/etcd"
	logopts "github.com/kart-io/megaservice/pkg/options/logger"
	megaopts "github.com/kart-io/megaservice/pkg/options/megaservice"
	mongoopts "github.com/kart-io/megaservice/pkg/options/mongodb"
	poolopts "github.com/kart-io/megaservice/pkg/options/pool"
	httpopts "github.com/kart-io/megaservice/pkg/options/server/http"
	tracingopts "github.com/kart-io/megaservice/pkg/options/tracing"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// MegaserviceOptions contains the service graph configuration.
	MegaserviceOptions *megaopts.Options `json:"megaservice" mapstructure:"megaservice"`

	// MongoOptions contains the conversation store configuration.
	MongoOptions *mongoopts.Options `json:"mongodb" mapstructure:"mongodb"`

	// CacheOptions contains the answer cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// TracingOptions contains OpenTelemetry configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// EtcdOptions contains service registration configuration.
	EtcdOptions *etcdopts.Options `json:"etcd" mapstructure:"etcd"`

	// PoolOptions contains the background worker pool configuration.
	PoolOptions *poolopts.Options `json:"pool" mapstructure:"pool"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:        httpopts.NewOptions(),
		LogOptions:         logopts.NewOptions(),
		MegaserviceOptions: megaopts.NewOptions(),
		MongoOptions:       mongoopts.NewOptions(),
		CacheOptions:       cacheopts.NewOptions(),
		TracingOptions:     tracingopts.NewOptions(),
		EtcdOptions:        etcdopts.NewOptions(),
		PoolOptions:        poolopts.NewOptions(),
	}
}

func (o *ServerOptions) sections() []options.Section {
	return []options.Section{
		{Name: "http", Options: o.HTTPOptions},
		{Name: "log", Options: o.LogOptions},
		{Name: "megaservice", Options: o.MegaserviceOptions},
		{Name: "mongodb", Options: o.MongoOptions},
		{Name: "cache", Options: o.CacheOptions},
		{Name: "tracing", Options: o.TracingOptions},
		{Name: "etcd", Options: o.EtcdOptions},
		{Name: "pool", Options: o.PoolOptions},
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	for _, s := range o.sections() {
		s.Options.AddFlags(fss.FlagSet(s.Name))
	}
	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	return options.CompleteAll(o.sections()...)
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	return utilerrors.NewAggregate(options.ValidateAll(o.sections()...))
}

// Config builds a megaservice Config based on ServerOptions.
func (o *ServerOptions) Config() (*megasvc.Config, error) {
	return &megasvc.Config{
		HTTPOptions:        o.HTTPOptions,
		LogOptions:         o.LogOptions,
		MegaserviceOptions: o.MegaserviceOptions,
		MongoOptions:       o.MongoOptions,
		CacheOptions:       o.CacheOptions,
		TracingOptions:     o.TracingOptions,
		EtcdOptions:        o.EtcdOptions,
		PoolOptions:        o.PoolOptions,
	}, nil
}
