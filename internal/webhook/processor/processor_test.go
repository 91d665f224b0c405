package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/leadrelay/internal/storage"
	"github.com/bargom/leadrelay/internal/webhook/queue"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
)

type senderFunc func(ctx context.Context, req webhook.Request) (*webhook.Result, error)

func (f senderFunc) Send(ctx context.Context, req webhook.Request) (*webhook.Result, error) {
	return f(ctx, req)
}

func alwaysOK() senderFunc {
	return func(ctx context.Context, req webhook.Request) (*webhook.Result, error) {
		return &webhook.Result{Endpoint: req.Endpoint, StatusCode: http.StatusOK, Attempts: 1}, nil
	}
}

func alwaysFail() senderFunc {
	return func(ctx context.Context, req webhook.Request) (*webhook.Result, error) {
		return nil, &webhook.DeliveryError{Endpoint: req.Endpoint, Attempts: 3, Err: errors.New("HTTP 500")}
	}
}

type switchConn struct{ online atomic.Bool }

func (c *switchConn) Online() bool { return c.online.Load() }

func newQueue(t *testing.T, endpoints ...string) *queue.Store {
	t.Helper()
	q, err := queue.Open(context.Background(), storage.NewMemoryStore())
	require.NoError(t, err)
	for _, name := range endpoints {
		_, err := q.Enqueue(context.Background(), name, "https://"+name+".example/hook", json.RawMessage(`{}`))
		require.NoError(t, err)
	}
	return q
}

func TestDrain_RemovesDelivered(t *testing.T) {
	q := newQueue(t, "zapier", "pipedrive")
	var delivered []string

	p := New(alwaysOK(), q, WithHooks(Hooks{
		OnDelivered: func(item queue.Item, _ *webhook.Result) { delivered = append(delivered, item.EndpointName) },
	}))
	res := p.Drain(context.Background())

	assert.Empty(t, res.Skipped)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, []string{"zapier", "pipedrive"}, delivered)
}

func TestDrain_IncrementsAttemptsThenDrops(t *testing.T) {
	q := newQueue(t, "zapier")
	var dropped []queue.Item

	p := New(alwaysFail(), q, WithHooks(Hooks{
		OnDropped: func(item queue.Item, _ error) { dropped = append(dropped, item) },
	}))

	for pass := 1; pass <= 2; pass++ {
		res := p.Drain(context.Background())
		assert.Equal(t, 1, res.Failed)
		items := q.All()
		require.Len(t, items, 1)
		assert.Equal(t, pass, items[0].Attempts)
	}

	res := p.Drain(context.Background())
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 0, q.Len())
	require.Len(t, dropped, 1)
	assert.Equal(t, 2, dropped[0].Attempts)

	res = p.Drain(context.Background())
	assert.Equal(t, SkipEmpty, res.Skipped)
	assert.Equal(t, 0, q.Len())
}

func TestDrain_FailureDoesNotStopOtherItems(t *testing.T) {
	q := newQueue(t, "zapier", "pipedrive", "zapier")

	sender := senderFunc(func(ctx context.Context, req webhook.Request) (*webhook.Result, error) {
		if req.Endpoint == "pipedrive" {
			panic("exploding client")
		}
		return &webhook.Result{}, nil
	})

	p := New(sender, q)
	res := p.Drain(context.Background())

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Failed)

	items := q.All()
	require.Len(t, items, 1)
	assert.Equal(t, "pipedrive", items[0].EndpointName)
	assert.Equal(t, 1, items[0].Attempts)
}

func TestDrain_SnapshotExcludesItemsAddedDuringPass(t *testing.T) {
	q := newQueue(t, "zapier")
	var sent []string
	var once sync.Once

	sender := senderFunc(func(ctx context.Context, req webhook.Request) (*webhook.Result, error) {
		sent = append(sent, req.Endpoint)
		once.Do(func() {
			_, err := q.Enqueue(ctx, "pipedrive", "https://pipedrive.example/hook", json.RawMessage(`{}`))
			require.NoError(t, err)
		})
		return &webhook.Result{}, nil
	})

	p := New(sender, q)
	res := p.Drain(context.Background())

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, []string{"zapier"}, sent)

	items := q.All()
	require.Len(t, items, 1)
	assert.Equal(t, "pipedrive", items[0].EndpointName)
	assert.Equal(t, 0, items[0].Attempts)

	p.Drain(context.Background())
	assert.Equal(t, []string{"zapier", "pipedrive"}, sent)
	assert.Equal(t, 0, q.Len())
}

func TestDrain_SinglePassAtATime(t *testing.T) {
	q := newQueue(t, "zapier")
	entered := make(chan struct{})
	release := make(chan struct{})

	sender := senderFunc(func(ctx context.Context, req webhook.Request) (*webhook.Result, error) {
		close(entered)
		<-release
		return &webhook.Result{}, nil
	})

	p := New(sender, q)
	done := make(chan PassResult, 1)
	go func() { done <- p.Drain(context.Background()) }()

	<-entered
	assert.True(t, p.IsDraining())
	second := p.Drain(context.Background())
	assert.Equal(t, SkipBusy, second.Skipped)

	close(release)
	first := <-done
	assert.Equal(t, 1, first.Delivered)
	assert.False(t, p.IsDraining())
}

func TestDrain_SkipsWhenOffline(t *testing.T) {
	q := newQueue(t, "zapier")
	conn := &switchConn{}
	var calls int32

	sender := senderFunc(func(ctx context.Context, req webhook.Request) (*webhook.Result, error) {
		atomic.AddInt32(&calls, 1)
		return &webhook.Result{}, nil
	})

	var passes []PassResult
	p := New(sender, q, WithConnectivity(conn), WithHooks(Hooks{
		OnPass: func(r PassResult) { passes = append(passes, r) },
	}))

	assert.Equal(t, SkipOffline, p.Drain(context.Background()).Skipped)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, q.Len())

	conn.online.Store(true)
	assert.Equal(t, 1, p.Drain(context.Background()).Delivered)
	assert.Equal(t, 0, q.Len())

	require.Len(t, passes, 2)
	assert.Equal(t, SkipOffline, passes[0].Skipped)
	assert.Empty(t, passes[1].Skipped)
}

func TestDrain_CancelledContextKeepsRemainingItems(t *testing.T) {
	q := newQueue(t, "zapier", "pipedrive")
	ctx, cancel := context.WithCancel(context.Background())

	sender := senderFunc(func(c context.Context, req webhook.Request) (*webhook.Result, error) {
		cancel()
		return nil, &webhook.DeliveryError{Endpoint: req.Endpoint, Attempts: 1, Err: c.Err()}
	})

	res := New(sender, q).Drain(ctx)

	assert.Equal(t, 0, res.Processed)
	items := q.All()
	require.Len(t, items, 2)
	assert.Equal(t, 0, items[0].Attempts)
	assert.Equal(t, 0, items[1].Attempts)
}

func TestDrain_AlwaysFailingEndpointScenario(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := webhook.NewClient(webhook.Config{Timeout: time.Second},
		webhook.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }))

	q, err := queue.Open(context.Background(), storage.NewMemoryStore())
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), "zapier", server.URL, json.RawMessage(`{"lead_score":{"total":210,"grade":"A"}}`))
	require.NoError(t, err)

	New(client, q).Drain(context.Background())

	items := q.All()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)
}

func TestProcessor_StartStop(t *testing.T) {
	q := newQueue(t)
	p := New(alwaysOK(), q, WithConfig(Config{Interval: time.Hour, MaxAttempts: 3}))

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	require.NoError(t, p.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Stop(ctx))
}

func TestProcessor_ConnectivityRestoredTriggersDrain(t *testing.T) {
	q := newQueue(t, "zapier")
	p := New(alwaysOK(), q, WithConfig(Config{Interval: time.Hour}))

	p.ConnectivityRestored()
	assert.Equal(t, 1, q.Len(), "no pass while stopped")

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	p.ConnectivityRestored()
	assert.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestNew_Defaults(t *testing.T) {
	p := New(alwaysOK(), newQueue(t), WithConfig(Config{}))
	assert.Equal(t, 30*time.Second, p.config.Interval)
	assert.Equal(t, 3, p.config.MaxAttempts)
}
