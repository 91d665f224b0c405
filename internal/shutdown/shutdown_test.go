package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{OverallTimeout: -1, PerHookTimeout: 0, SlowHookThreshold: time.Second}.withDefaults()

	assert.Equal(t, 30*time.Second, cfg.OverallTimeout)
	assert.Equal(t, 10*time.Second, cfg.PerHookTimeout)
	assert.Equal(t, time.Second, cfg.SlowHookThreshold)
}

func TestStages(t *testing.T) {
	hooks := []Hook{
		{Name: "telemetry", Priority: PriorityTelemetry},
		{Name: "processor", Priority: PriorityWorkers},
		{Name: "http", Priority: PriorityHTTPServer},
		{Name: "prober", Priority: PriorityWorkers},
		{Name: "queue", Priority: PriorityQueue},
	}
	groups := stages(hooks)

	require.Len(t, groups, 4)
	assert.Equal(t, "http", groups[0][0].Name)
	require.Len(t, groups[1], 2)
	assert.Equal(t, "processor", groups[1][0].Name)
	assert.Equal(t, "prober", groups[1][1].Name)
	assert.Equal(t, "queue", groups[2][0].Name)
	assert.Equal(t, "telemetry", groups[3][0].Name)

	assert.Equal(t, "telemetry", hooks[0].Name, "input order untouched")
	assert.Nil(t, stages(nil))
}

func TestManager_RunsInPriorityOrder(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) HookFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	m.Register("queue-flush", PriorityQueue, record("queue-flush"))
	m.Register("http-server", PriorityHTTPServer, record("http-server"))
	m.Register("log-output", PriorityTelemetry, record("log-output"))
	m.Register("processor", PriorityWorkers, record("processor"))

	require.NoError(t, m.Shutdown(context.Background()))

	assert.Equal(t, []string{"http-server", "processor", "queue-flush", "log-output"}, order)
	assert.Equal(t, StateShutdown, m.State())
	assert.Equal(t, 4, m.HookCount())
	select {
	case <-m.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestManager_ShutdownOnce(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	var calls atomic.Int32
	m.Register("hook", 10, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Shutdown(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestManager_CollectsErrors(t *testing.T) {
	m := NewManager(Config{PerHookTimeout: 20 * time.Millisecond}, nil)
	m.Register("failing", 80, func(context.Context) error { return errors.New("boom") })
	m.Register("panicking", 80, func(context.Context) error { panic("unexpected") })
	m.Register("slow", 70, func(ctx context.Context) error {
		<-time.After(time.Second)
		return nil
	})
	var lastRan atomic.Bool
	m.Register("last", 10, func(context.Context) error {
		lastRan.Store(true)
		return nil
	})

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook failing: boom")

	errs := m.Errors()
	require.Len(t, errs, 3)
	var timeouts, panics int
	for _, e := range errs {
		if IsTimeout(e) {
			timeouts++
		}
		if IsPanic(e) {
			panics++
		}
	}
	assert.Equal(t, 1, timeouts)
	assert.Equal(t, 1, panics)
	assert.True(t, lastRan.Load(), "failures must not stop later groups")
}

func TestManager_OverallTimeoutSkipsRemaining(t *testing.T) {
	m := NewManager(Config{OverallTimeout: 30 * time.Millisecond, PerHookTimeout: time.Second}, nil)
	m.Register("blocking", 90, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	var skipped atomic.Bool
	m.Register("after", 10, func(context.Context) error {
		skipped.Store(true)
		return nil
	})

	err := m.Shutdown(context.Background())

	assert.ErrorIs(t, err, ErrOverallTimeout)
	assert.False(t, skipped.Load())
}

func TestManager_ListenForSignals(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	var ran atomic.Bool
	m.Register("hook", 10, func(context.Context) error {
		ran.Store(true)
		return nil
	})

	done := m.ListenForSignals(context.Background(), syscall.SIGUSR1)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not triggered by signal")
	}
	assert.True(t, ran.Load())
}

func TestManager_ListenForSignals_ContextCancel(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := m.ListenForSignals(ctx)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not triggered by context cancel")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "shutting_down", StateShuttingDown.String())
	assert.Equal(t, "shutdown", StateShutdown.String())
	assert.Equal(t, "unknown", State(42).String())
}
