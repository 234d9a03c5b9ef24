// Package config watches the loaded config file and notifies subscribers
// when it changes.
package config

import (
	"fmt"
	"maps"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
	"github.com/spf13/viper"
)

// ChangeHandler 配置文件变更回调。返回错误只会被记录，不影响其他回调。
type ChangeHandler func(v *viper.Viper) error

// Reloadable 可在运行时接受新配置的组件。
type Reloadable interface {
	OnConfigChange(newConfig any) error
}

// Watcher 基于 viper/fsnotify 的配置文件监听器。
type Watcher struct {
	viper    *viper.Viper
	handlers map[string]ChangeHandler
	mu       sync.RWMutex
	watching bool
}

// NewWatcher creates a watcher for a viper instance that has already read
// its config file.
func NewWatcher(v *viper.Viper) *Watcher {
	return &Watcher{
		viper:    v,
		handlers: make(map[string]ChangeHandler),
	}
}

// Subscribe 注册回调，相同 id 覆盖旧回调。
func (w *Watcher) Subscribe(id string, handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[id] = handler
	logger.Debugw("Config watcher: handler subscribed", "handler", id)
}

// Unsubscribe 移除回调。
func (w *Watcher) Unsubscribe(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.handlers, id)
}

// Start begins watching. It is a no-op when no config file was loaded or
// the watcher is already running, and reports whether watching is active.
func (w *Watcher) Start() bool {
	if w.viper.ConfigFileUsed() == "" {
		logger.Info("Config watcher: no config file loaded, hot reload disabled")
		return false
	}

	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return true
	}
	w.watching = true
	w.mu.Unlock()

	w.viper.OnConfigChange(func(e fsnotify.Event) {
		w.dispatch(e.Name)
	})
	w.viper.WatchConfig()

	logger.Infow("Config watcher: started", "file", w.viper.ConfigFileUsed())
	return true
}

// dispatch 依次调用全部回调，回调执行期间不持有锁。
func (w *Watcher) dispatch(name string) {
	logger.Infow("Config file changed", "file", name)

	w.mu.RLock()
	handlers := maps.Clone(w.handlers)
	w.mu.RUnlock()

	for id, handler := range handlers {
		if err := handler(w.viper); err != nil {
			logger.Errorw("Config watcher: handler failed", "handler", id, "error", err.Error())
			continue
		}
		logger.Infow("Config watcher: change applied", "handler", id)
	}
}

// IsWatching 是否已开始监听。
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// HandlerCount 已注册的回调数量。
func (w *Watcher) HandlerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.handlers)
}

// ReloadHandler returns a ChangeHandler that decodes the section at key
// into a fresh T and hands it to the component.
func ReloadHandler[T any](component Reloadable, key string) ChangeHandler {
	return func(v *viper.Viper) error {
		var target T
		if err := v.UnmarshalKey(key, &target); err != nil {
			return fmt.Errorf("failed to unmarshal config key '%s': %w", key, err)
		}
		if err := component.OnConfigChange(target); err != nil {
			return fmt.Errorf("component rejected config change: %w", err)
		}
		return nil
	}
}
