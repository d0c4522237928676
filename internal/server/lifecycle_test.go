package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockService struct {
	started atomic.Bool
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
	startFn func() error

	order *[]string
	name  string
	mu    *sync.Mutex
}

func newMock(name string, order *[]string, mu *sync.Mutex) *mockService {
	return &mockService{done: make(chan struct{}), name: name, order: order, mu: mu}
}

func (m *mockService) Start() error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn()
	}
	<-m.done
	return nil
}

func (m *mockService) Stop() {
	m.stopped.Store(true)
	if m.order != nil {
		m.mu.Lock()
		*m.order = append(*m.order, m.name)
		m.mu.Unlock()
	}
	m.once.Do(func() { close(m.done) })
}

func waitStarted(t *testing.T, svcs ...*mockService) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range svcs {
			if !s.started.Load() {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func runAsync(lc *Lifecycle, ctx context.Context) chan error {
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	return done
}

func awaitRun(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
		return nil
	}
}

func TestLifecycle_CancelStopsServicesInReverseOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	lc := NewLifecycle(zaptest.NewLogger(t))
	svc1 := newMock("svc1", &order, &mu)
	svc2 := newMock("svc2", &order, &mu)
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(lc, ctx)
	waitStarted(t, svc1, svc2)

	cancel()
	assert.NoError(t, awaitRun(t, done))
	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
	assert.Equal(t, []string{"svc2", "svc1"}, order)
}

func TestLifecycle_FinishedServiceEndsRun(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	server := newMock("server", nil, nil)
	battle := &mockService{done: make(chan struct{}), startFn: func() error { return nil }}
	lc.Add("server", server)
	lc.Add("battle", battle)

	err := awaitRun(t, runAsync(lc, context.Background()))
	assert.NoError(t, err)
	assert.True(t, server.stopped.Load())
	assert.True(t, battle.stopped.Load())
}

func TestLifecycle_FailedServiceReturnsError(t *testing.T) {
	boom := errors.New("boom")
	lc := NewLifecycle(zaptest.NewLogger(t))
	other := newMock("other", nil, nil)
	failing := &mockService{done: make(chan struct{}), startFn: func() error { return boom }}
	lc.Add("other", other)
	lc.Add("failing", failing)

	err := awaitRun(t, runAsync(lc, context.Background()))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.True(t, other.stopped.Load())
}

func TestLifecycle_NoServicesReturnsOnCancel(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, awaitRun(t, runAsync(lc, ctx)))
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}

	err := svc.Start()
	assert.NoError(t, err)
	assert.True(t, started)

	svc.Stop()
	assert.True(t, stopped)
}

func TestFuncService_NilStopIsNoOp(t *testing.T) {
	svc := &FuncService{StartFn: func() error { return nil }}
	assert.NotPanics(t, svc.Stop)
}
