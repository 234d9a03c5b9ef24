package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// DefaultShutdownTimeout 默认优雅关闭超时。
const DefaultShutdownTimeout = 30 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithShutdownTimeout sets the graceful shutdown timeout used by Run.
func WithShutdownTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.shutdownTimeout = d
		}
	}
}

// WithServer adds a server to the manager.
func WithServer(s Runnable) Option {
	return func(m *Manager) {
		m.servers = append(m.servers, s)
	}
}

// Manager starts and stops a set of servers with a unified lifecycle.
type Manager struct {
	shutdownTimeout time.Duration
	servers         []Runnable

	mu      sync.Mutex
	started int
}

// NewManager creates a new server manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{shutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add adds a server to the manager. It must be called before Start.
func (m *Manager) Add(s Runnable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers = append(m.servers, s)
}

// Start starts all servers in the order they were added. If one of them
// fails, the servers already started are stopped.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started > 0 {
		return errors.New("server manager already started")
	}

	for i, s := range m.servers {
		if err := s.Start(ctx); err != nil {
			m.started = i
			stopErr := m.stopLocked(ctx)
			return errors.Join(fmt.Errorf("failed to start server %s: %w", s.Name(), err), stopErr)
		}
		logger.Infow("Server started", "name", s.Name())
	}
	m.started = len(m.servers)
	return nil
}

// Stop stops all started servers in reverse order.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	var errs []error
	for i := m.started - 1; i >= 0; i-- {
		s := m.servers[i]
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop server %s: %w", s.Name(), err))
			continue
		}
		logger.Infow("Server stopped", "name", s.Name())
	}
	m.started = 0
	return utilerrors.NewAggregate(errs)
}

// Run starts all servers, blocks until ctx is done and then shuts them down
// within the shutdown timeout.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.shutdownTimeout)
	defer cancel()
	return m.Stop(shutdownCtx)
}
