package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/leadrelay/internal/analysis"
	"github.com/bargom/leadrelay/internal/assessment"
	"github.com/bargom/leadrelay/internal/storage"
	"github.com/bargom/leadrelay/internal/webhook/connectivity"
	"github.com/bargom/leadrelay/internal/webhook/dispatcher"
	"github.com/bargom/leadrelay/internal/webhook/endpoint"
	"github.com/bargom/leadrelay/internal/webhook/processor"
	"github.com/bargom/leadrelay/internal/webhook/queue"
	"github.com/bargom/leadrelay/pkg/integration/webhook"
)

var fixedTime = time.Date(2026, 3, 14, 9, 30, 0, 123000000, time.UTC)

type dispatchCall struct {
	payload json.RawMessage
	eps     []endpoint.Endpoint
}

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []dispatchCall
	release chan struct{}
	fail    bool
}

func (f *fakeDispatcher) DispatchAll(ctx context.Context, payload json.RawMessage, eps []endpoint.Endpoint) dispatcher.ResultSet {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.calls = append(f.calls, dispatchCall{payload: payload, eps: eps})
	f.mu.Unlock()

	rs := dispatcher.ResultSet{}
	for _, ep := range eps {
		if f.fail {
			rs[ep.Name] = dispatcher.Outcome{Error: "HTTP 500", Queued: ep.Critical()}
		} else {
			rs[ep.Name] = dispatcher.Outcome{Success: true}
		}
	}
	return rs
}

func (f *fakeDispatcher) Calls() []dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatchCall(nil), f.calls...)
}

type fakeAnalyzer struct{ res *analysis.Analysis }

func (f fakeAnalyzer) Analyze(context.Context, map[string]any, assessment.MaturityScore, analysis.Participant) *analysis.Analysis {
	return f.res
}

type fakeDrainer struct{ calls int32 }

func (f *fakeDrainer) Drain(context.Context) processor.PassResult {
	atomic.AddInt32(&f.calls, 1)
	return processor.PassResult{Processed: 1, Delivered: 1}
}

func newQueue(t *testing.T) *queue.Store {
	t.Helper()
	q, err := queue.Open(context.Background(), storage.NewMemoryStore(),
		queue.WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)
	return q
}

func newEndpoints(zapier string) *endpoint.Set {
	return endpoint.NewSet(endpoint.Defaults(map[string]string{
		endpoint.Zapier:    zapier,
		endpoint.Pipedrive: "http://pipedrive.test/hook",
	})...)
}

func newRelay(t *testing.T, d Dispatcher, sender Sender, opts ...Option) (*Relay, *queue.Store) {
	t.Helper()
	q := newQueue(t)
	opts = append([]Option{WithClock(func() time.Time { return fixedTime })}, opts...)
	return New(newEndpoints("http://zapier.test/hook"), d, sender, q, opts...), q
}

func sampleData() assessment.Data {
	return assessment.Data{
		Bedrijfsnaam: "Acme BV",
		Sector:       "machinebouw",
		Werknemers:   "51-250",
		Contact:      assessment.Contact{Naam: "Jan", Email: "jan@example.nl"},
		Duration:     240,
		Antwoorden:   map[string]any{"vraag1": float64(4)},
	}
}

func TestCompleteAssessment_DispatchesInBackground(t *testing.T) {
	d := &fakeDispatcher{release: make(chan struct{})}
	r, _ := newRelay(t, d, nil, WithBuilder(assessment.NewBuilder(
		assessment.WithClock(func() time.Time { return fixedTime }),
		assessment.WithSessionIDs(func(time.Time) string { return "fm_1_abc" }),
	)))

	p, err := r.CompleteAssessment(context.Background(), sampleData())
	require.NoError(t, err)
	assert.Equal(t, "fm_1_abc", p.Marketing.SessionID)
	// returned before the dispatch finished
	assert.Empty(t, d.Calls())

	close(d.release)
	require.NoError(t, r.Shutdown(context.Background()))

	calls := d.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].eps, 4)

	var sent assessment.Payload
	require.NoError(t, json.Unmarshal(calls[0].payload, &sent))
	assert.Equal(t, "Acme BV", sent.Bedrijf.Naam)
	assert.Equal(t, "fm_1_abc", sent.Marketing.SessionID)
}

func TestCompleteAssessment_OutlivesCancelledRequest(t *testing.T) {
	d := &fakeDispatcher{release: make(chan struct{})}
	r, _ := newRelay(t, d, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := r.CompleteAssessment(ctx, sampleData())
	require.NoError(t, err)
	cancel()

	close(d.release)
	require.NoError(t, r.Shutdown(context.Background()))
	assert.Len(t, d.Calls(), 1)
}

func TestCompleteAssessment_FailuresNeverSurface(t *testing.T) {
	r, _ := newRelay(t, &fakeDispatcher{fail: true}, nil)

	_, err := r.CompleteAssessment(context.Background(), sampleData())
	assert.NoError(t, err)
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestShutdown(t *testing.T) {
	d := &fakeDispatcher{release: make(chan struct{})}
	r, _ := newRelay(t, d, nil)

	_, err := r.CompleteAssessment(context.Background(), sampleData())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)

	_, err = r.CompleteAssessment(context.Background(), sampleData())
	assert.ErrorIs(t, err, ErrClosed)

	close(d.release)
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestAnalyzeAssessment_ForwardsZapierRecord(t *testing.T) {
	d := &fakeDispatcher{}
	report := &analysis.Analysis{
		Samenvatting:   "Solide basis",
		SterkePunten:   []string{"Snel", "Helder"},
		Verbeterpunten: []string{"Data"},
	}
	r, _ := newRelay(t, d, nil, WithAnalyzer(fakeAnalyzer{res: report}))

	p := analysis.Participant{Bedrijfsnaam: "Acme BV", Naam: "Jan", Email: "jan@example.nl", Telefoon: "0612345678"}
	res := r.AnalyzeAssessment(context.Background(), map[string]any{"vraag1": float64(4), "vraag2": float64(5)}, p)

	assert.Equal(t, 9, res.Score.RawScore)
	assert.Equal(t, 10, res.Score.MaxScore)
	assert.Equal(t, 90, res.Score.Percentage)
	assert.Equal(t, "Expert", res.Score.Level)
	assert.Same(t, report, res.Analysis)
	assert.Equal(t, "2026-03-14T09:30:00.123Z", res.Timestamp)

	calls := d.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].eps, 1)
	assert.Equal(t, endpoint.Zapier, calls[0].eps[0].Name)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(calls[0].payload, &rec))
	assert.Equal(t, "Acme BV", rec["bedrijfsnaam"])
	assert.Equal(t, "0612345678", rec["telefoon"])
	assert.Equal(t, float64(90), rec["totaal_score"])
	assert.Equal(t, "Expert", rec["niveau"])
	assert.Equal(t, float64(9), rec["raw_score"])
	assert.Equal(t, float64(10), rec["max_score"])
	assert.Equal(t, "Snel, Helder", rec["sterke_punten"])
	assert.Equal(t, "Data", rec["verbeterpunten"])
	assert.Equal(t, BackendSource, rec["source"])
}

func TestAnalyzeAssessment_FallbackWithoutAnalyzer(t *testing.T) {
	r, _ := newRelay(t, &fakeDispatcher{fail: true}, nil)

	res := r.AnalyzeAssessment(context.Background(), nil, analysis.Participant{Naam: "Jan", Email: "jan@example.nl"})
	assert.True(t, res.Analysis.Fallback)
	assert.Equal(t, "Starter", res.Score.Level)
}

func TestForwardAnalysis_ZapierNotConfigured(t *testing.T) {
	d := &fakeDispatcher{}
	r := New(newEndpoints(""), d, nil, newQueue(t))

	assert.Nil(t, r.ForwardAnalysis(context.Background(), AnalysisResult{}))
	assert.Empty(t, d.Calls())
}

func TestEndpoints(t *testing.T) {
	r, _ := newRelay(t, &fakeDispatcher{}, nil)

	eps := r.Endpoints()
	require.Len(t, eps, 4)
	assert.Equal(t, endpoint.Zapier, eps[0].Name)

	ep, err := r.SetEndpoint(endpoint.Email, "http://mail.test/hook")
	require.NoError(t, err)
	assert.Equal(t, 3, ep.Priority)

	got, ok := newLookup(r.Endpoints())[endpoint.Email]
	require.True(t, ok)
	assert.Equal(t, "http://mail.test/hook", got.URL)

	// mutating the returned slice does not leak into the relay
	eps[0].URL = "http://evil.test"
	assert.Equal(t, "http://zapier.test/hook", r.Endpoints()[0].URL)
}

func newLookup(eps []endpoint.Endpoint) map[string]endpoint.Endpoint {
	m := make(map[string]endpoint.Endpoint, len(eps))
	for _, ep := range eps {
		m[ep.Name] = ep
	}
	return m
}

func TestQueueStatusAndClear(t *testing.T) {
	mon := connectivity.NewMonitor(false, nil)
	r, q := newRelay(t, &fakeDispatcher{}, nil, WithConnectivity(mon))
	ctx := context.Background()

	st := r.QueueStatus()
	assert.Equal(t, 0, st.QueueLength)
	assert.False(t, st.IsOnline)
	assert.Nil(t, st.OldestItem)

	_, err := q.Enqueue(ctx, endpoint.Zapier, "http://zapier.test/hook", json.RawMessage(`{}`))
	require.NoError(t, err)

	st = r.QueueStatus()
	assert.Equal(t, 1, st.QueueLength)
	require.NotNil(t, st.OldestItem)
	assert.True(t, fixedTime.Equal(*st.OldestItem))

	out, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"queue_length":1,"is_online":false,"oldest_item":"2026-03-14T09:30:00.123Z"}`, string(out))

	require.NoError(t, r.ClearQueue(ctx))
	assert.Equal(t, 0, r.QueueStatus().QueueLength)
}

func TestTestEndpoint(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := webhook.NewClient(webhook.DefaultConfig())
	r := New(newEndpoints(srv.URL), &fakeDispatcher{}, client, newQueue(t),
		WithClock(func() time.Time { return fixedTime }))

	res, err := r.TestEndpoint(context.Background(), endpoint.Zapier)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, got["test"])
	assert.Equal(t, "zapier", got["endpoint"])
	assert.Equal(t, "2026-03-14T09:30:00.123Z", got["timestamp"])

	_, err = r.TestEndpoint(context.Background(), endpoint.Backup)
	assert.ErrorIs(t, err, webhook.ErrNotConfigured)

	_, err = r.TestEndpoint(context.Background(), "unknown")
	assert.ErrorIs(t, err, webhook.ErrNotConfigured)
}

func TestDrainAndConnectivity(t *testing.T) {
	r, _ := newRelay(t, &fakeDispatcher{}, nil)

	_, err := r.Drain(context.Background())
	assert.ErrorIs(t, err, ErrNoProcessor)
	assert.ErrorIs(t, r.SetOnline(false), ErrNoConnectivity)
	assert.True(t, r.Online())

	drainer := &fakeDrainer{}
	mon := connectivity.NewMonitor(true, nil)
	r, _ = newRelay(t, &fakeDispatcher{}, nil, WithDrainer(drainer), WithConnectivity(mon))

	res, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, int32(1), atomic.LoadInt32(&drainer.calls))

	require.NoError(t, r.SetOnline(false))
	assert.False(t, r.Online())
	assert.False(t, mon.Online())
}
