// Package etcd registers the service in etcd for the Traefik KV provider.
package etcd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/kart-io/logger"
	clientv3 "go.etcd.io/etcd/client/v3"

	options "github.com/kart-io/megaservice/pkg/options/etcd"
)

// Registrar keeps the Traefik router and backend keys alive under a lease.
// It implements server.Runnable so it joins the server lifecycle.
type Registrar struct {
	opts        *options.Options
	serviceName string

	mu      sync.Mutex
	client  *clientv3.Client
	leaseID clientv3.LeaseID
	cancel  context.CancelFunc
}

// NewRegistrar creates a registrar for serviceName.
func NewRegistrar(serviceName string, opts *options.Options) *Registrar {
	return &Registrar{opts: opts, serviceName: serviceName}
}

// Name returns the runnable name.
func (r *Registrar) Name() string {
	return "etcd-registrar"
}

// Keys returns the Traefik KV pairs written for this instance.
//
//	traefik/http/routers/<name>/rule -> <rule>
//	traefik/http/routers/<name>/service -> <name>
//	traefik/http/services/<name>/loadbalancer/servers/<id>/url -> <addr>
func (r *Registrar) Keys() map[string]string {
	sum := sha256.Sum256([]byte(r.opts.AdvertiseAddr))
	instanceID := hex.EncodeToString(sum[:8])

	return map[string]string{
		fmt.Sprintf("traefik/http/routers/%s/rule", r.serviceName):                                    r.opts.Rule,
		fmt.Sprintf("traefik/http/routers/%s/service", r.serviceName):                                 r.serviceName,
		fmt.Sprintf("traefik/http/services/%s/loadbalancer/servers/%s/url", r.serviceName, instanceID): r.opts.AdvertiseAddr,
	}
}

// Start connects to etcd, grants a lease and writes the keys in one txn.
func (r *Registrar) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   r.opts.Endpoints,
		Username:    r.opts.Username,
		Password:    r.opts.Password,
		DialTimeout: r.opts.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create etcd client: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
	defer cancel()

	lease, err := client.Grant(reqCtx, r.opts.LeaseTTL)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to grant lease: %w", err)
	}

	ops := make([]clientv3.Op, 0, 3)
	for k, v := range r.Keys() {
		ops = append(ops, clientv3.OpPut(k, v, clientv3.WithLease(lease.ID)))
	}
	if _, err := client.Txn(reqCtx).Then(ops...).Commit(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to register service keys: %w", err)
	}

	kaCtx, kaCancel := context.WithCancel(context.WithoutCancel(ctx))
	ch, err := client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		kaCancel()
		_ = client.Close()
		return fmt.Errorf("failed to keep alive lease: %w", err)
	}
	go func() {
		for range ch {
		}
		if kaCtx.Err() == nil {
			logger.Warnw("etcd keepalive channel closed", "service", r.serviceName)
		}
	}()

	r.client = client
	r.leaseID = lease.ID
	r.cancel = kaCancel

	logger.Infow("Service registered to etcd for Traefik",
		"service", r.serviceName,
		"addr", r.opts.AdvertiseAddr,
		"rule", r.opts.Rule,
	)
	return nil
}

// Stop revokes the lease, removing the keys, and closes the client.
func (r *Registrar) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	r.cancel()

	_, err := r.client.Revoke(ctx, r.leaseID)
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	r.client = nil
	logger.Infow("Service deregistered from etcd", "service", r.serviceName)
	return err
}
