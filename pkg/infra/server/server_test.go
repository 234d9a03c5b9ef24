package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder 记录启动与停止顺序。
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeServer struct {
	name     string
	rec      *recorder
	startErr error
	stopErr  error
}

func (s *fakeServer) Name() string { return s.name }

func (s *fakeServer) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.rec.add("start " + s.name)
	return nil
}

func (s *fakeServer) Stop(context.Context) error {
	s.rec.add("stop " + s.name)
	return s.stopErr
}

func TestManager_StartStopOrder(t *testing.T) {
	rec := &recorder{}
	m := NewManager(WithServer(&fakeServer{name: "a", rec: rec}))
	m.Add(&fakeServer{name: "b", rec: rec})

	require.NoError(t, m.Start(context.Background()))
	require.Error(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, rec.list())

	// 重复停止是空操作
	require.NoError(t, m.Stop(context.Background()))
	assert.Len(t, rec.list(), 4)
}

func TestManager_StartFailureRollsBack(t *testing.T) {
	rec := &recorder{}
	m := NewManager(
		WithServer(&fakeServer{name: "a", rec: rec}),
		WithServer(&fakeServer{name: "b", rec: rec, startErr: errors.New("address already in use")}),
		WithServer(&fakeServer{name: "c", rec: rec}),
	)

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start server b")
	assert.Equal(t, []string{"start a", "stop a"}, rec.list())
}

func TestManager_StopAggregatesErrors(t *testing.T) {
	rec := &recorder{}
	m := NewManager(
		WithServer(&fakeServer{name: "a", rec: rec, stopErr: errors.New("boom")}),
		WithServer(&fakeServer{name: "b", rec: rec}),
	)
	require.NoError(t, m.Start(context.Background()))

	err := m.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stop server a")
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, rec.list())
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	m := NewManager(WithServer(&fakeServer{name: "http", rec: rec}), WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.list()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"start http", "stop http"}, rec.list())
}
