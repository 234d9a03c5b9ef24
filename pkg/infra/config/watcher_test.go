package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder 记录收到的配置。
type recorder struct {
	mu   sync.Mutex
	got  []any
	fail bool
}

func (r *recorder) OnConfigChange(cfg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("rejected")
	}
	r.got = append(r.got, cfg)
	return nil
}

func (r *recorder) last() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return nil
	}
	return r.got[len(r.got)-1]
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestWatcher_SubscribeAndDispatch(t *testing.T) {
	w := NewWatcher(viper.New())

	var calls []string
	w.Subscribe("a", func(*viper.Viper) error {
		calls = append(calls, "a")
		return nil
	})
	w.Subscribe("b", func(*viper.Viper) error {
		calls = append(calls, "b")
		return errors.New("boom")
	})
	assert.Equal(t, 2, w.HandlerCount())

	// 一个回调失败不影响其他回调
	w.dispatch("x.yaml")
	assert.ElementsMatch(t, []string{"a", "b"}, calls)

	w.Unsubscribe("b")
	w.Unsubscribe("missing")
	assert.Equal(t, 1, w.HandlerCount())
}

func TestWatcher_StartWithoutConfigFile(t *testing.T) {
	w := NewWatcher(viper.New())
	assert.False(t, w.Start())
	assert.False(t, w.IsWatching())
}

func TestReloadHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "megaservice.yaml")
	writeConfig(t, path, "megaservice:\n  chat-templates:\n    kb1: \"{context} {question}\"\n")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	rec := &recorder{}
	h := ReloadHandler[map[string]string](rec, "megaservice.chat-templates")
	require.NoError(t, h(v))
	assert.Equal(t, map[string]string{"kb1": "{context} {question}"}, rec.last())

	rec.fail = true
	assert.ErrorContains(t, h(v), "rejected")
}

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "megaservice.yaml")
	writeConfig(t, path, "megaservice:\n  chat-templates:\n    kb1: old\n")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	rec := &recorder{}
	w := NewWatcher(v)
	w.Subscribe("templates", ReloadHandler[map[string]string](rec, "megaservice.chat-templates"))
	require.True(t, w.Start())
	assert.True(t, w.Start())

	// 等待 fsnotify 就绪后再修改文件
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, path, "megaservice:\n  chat-templates:\n    kb1: new\n")

	require.Eventually(t, func() bool {
		m, ok := rec.last().(map[string]string)
		return ok && m["kb1"] == "new"
	}, 5*time.Second, 20*time.Millisecond)
}
