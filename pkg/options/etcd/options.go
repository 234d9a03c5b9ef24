// Package etcd provides etcd options for service registration.
package etcd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/megaservice/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// redactedPassword is the placeholder used when serializing passwords.
const redactedPassword = "[REDACTED]"

// Options defines configuration options for etcd registration.
type Options struct {
	// Enabled 是否向 etcd 注册服务（Traefik KV provider）。
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	Endpoints      []string      `json:"endpoints" mapstructure:"endpoints"`
	Username       string        `json:"username" mapstructure:"username"`
	Password       string        `json:"-" mapstructure:"password"`
	DialTimeout    time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
	RequestTimeout time.Duration `json:"request-timeout" mapstructure:"request-timeout"`
	LeaseTTL       int64         `json:"lease-ttl" mapstructure:"lease-ttl"`

	// AdvertiseAddr 注册到网关的后端地址，例如 http://10.0.0.5:9001。
	AdvertiseAddr string `json:"advertise-addr" mapstructure:"advertise-addr"`
	// Rule Traefik 路由规则。
	Rule string `json:"rule" mapstructure:"rule"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Endpoints:      []string{"127.0.0.1:2379"},
		DialTimeout:    5 * time.Second,
		RequestTimeout: 2 * time.Second,
		LeaseTTL:       10,
		Rule:           "PathPrefix(`/v1/chatqna`) || PathPrefix(`/conversation`)",
	}
}

// MarshalJSON implements json.Marshaler with password redaction.
func (o *Options) MarshalJSON() ([]byte, error) {
	type plain Options
	password := ""
	if o.Password != "" {
		password = redactedPassword
	}
	return json.Marshal(struct {
		*plain
		Password string `json:"password"`
	}{(*plain)(o), password})
}

// Complete reads the password from ETCD_PASSWORD when it is not set.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("ETCD_PASSWORD")
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	var errs []error
	if len(o.Endpoints) == 0 {
		errs = append(errs, fmt.Errorf("etcd.endpoints cannot be empty"))
	}
	if o.AdvertiseAddr == "" {
		errs = append(errs, fmt.Errorf("etcd.advertise-addr is required when registration is enabled"))
	}
	if o.LeaseTTL <= 0 {
		errs = append(errs, fmt.Errorf("etcd.lease-ttl must be positive"))
	}
	return errs
}

// AddFlags adds flags for etcd options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "etcd."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Register the service in etcd for the Traefik KV provider.")
	fs.StringSliceVar(&o.Endpoints, p+"endpoints", o.Endpoints, "Etcd endpoints.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Etcd username.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Etcd password (DEPRECATED: use ETCD_PASSWORD env var instead).")
	fs.DurationVar(&o.DialTimeout, p+"dial-timeout", o.DialTimeout, "Etcd dial timeout.")
	fs.DurationVar(&o.RequestTimeout, p+"request-timeout", o.RequestTimeout, "Etcd request timeout.")
	fs.Int64Var(&o.LeaseTTL, p+"lease-ttl", o.LeaseTTL, "Registration lease TTL in seconds.")
	fs.StringVar(&o.AdvertiseAddr, p+"advertise-addr", o.AdvertiseAddr, "Backend URL advertised to the gateway.")
	fs.StringVar(&o.Rule, p+"rule", o.Rule, "Traefik router rule.")
}
