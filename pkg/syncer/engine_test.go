package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmoretti/lifeline/pkg/notify"
	"github.com/dmoretti/lifeline/pkg/queue"
	"github.com/dmoretti/lifeline/pkg/store/memory"
)

// remoteStub is a scriptable remote endpoint: it answers per-request
// statuses in order and records received bodies.
type remoteStub struct {
	mu       sync.Mutex
	statuses []int
	received []string
}

func (r *remoteStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body json.RawMessage
		_ = json.NewDecoder(req.Body).Decode(&body)

		r.mu.Lock()
		r.received = append(r.received, string(body))
		status := http.StatusOK
		if len(r.statuses) > 0 {
			status = r.statuses[0]
			r.statuses = r.statuses[1:]
		}
		r.mu.Unlock()

		w.WriteHeader(status)
	})
}

func (r *remoteStub) receivedBodies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.received...)
}

type captureNotifier struct {
	mu   sync.Mutex
	tags []string
}

func (c *captureNotifier) Notify(_ context.Context, n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = append(c.tags, n.Tag)
}

func newTestEngine(t *testing.T, remote *remoteStub) (*Engine, *queue.Queue, *captureNotifier) {
	t.Helper()

	server := httptest.NewServer(remote.handler())
	t.Cleanup(server.Close)

	q := queue.New(memory.New(), nil)
	notifier := &captureNotifier{}
	engine := New(Config{Endpoint: server.URL, Timeout: 2 * time.Second}, q, notifier, nil)
	return engine, q, notifier
}

func enqueue(t *testing.T, q *queue.Queue, payloads ...string) []int64 {
	t.Helper()
	var ids []int64
	for _, p := range payloads {
		id, err := q.Enqueue(context.Background(), json.RawMessage(p))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestDrainEmptyQueue(t *testing.T) {
	engine, _, _ := newTestEngine(t, &remoteStub{})

	report, err := engine.Drain(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, report.Delivered)
	assert.Zero(t, report.Remaining)
	assert.Empty(t, report.Results)
}

func TestDrainDeliversFIFO(t *testing.T) {
	remote := &remoteStub{}
	engine, q, _ := newTestEngine(t, remote)
	ctx := context.Background()

	enqueue(t, q, `{"n":1}`, `{"n":2}`, `{"n":3}`)

	report, err := engine.Drain(ctx, TriggerOnline)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Delivered)
	assert.Equal(t, 0, report.Remaining)

	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, remote.receivedBodies())

	entries, err := q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDrainStopsOnFirstFailure(t *testing.T) {
	// Five entries; delivery 4 is rejected.
	remote := &remoteStub{statuses: []int{200, 200, 200, 503}}
	engine, q, _ := newTestEngine(t, remote)
	ctx := context.Background()

	ids := enqueue(t, q, `{"n":1}`, `{"n":2}`, `{"n":3}`, `{"n":4}`, `{"n":5}`)

	report, err := engine.Drain(ctx, TriggerOnline)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Delivered)
	assert.Equal(t, 2, report.Remaining)

	// Entry 5 was never attempted.
	assert.Len(t, remote.receivedBodies(), 4)

	// Queue holds exactly entries 4 and 5 in original order.
	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids[3], entries[0].ID)
	assert.Equal(t, ids[4], entries[1].ID)
}

func TestSecondDrainFinishesTheJob(t *testing.T) {
	// Queue [A, B]: A succeeds, B fails; second drain delivers B.
	remote := &remoteStub{statuses: []int{200, 502}}
	engine, q, _ := newTestEngine(t, remote)
	ctx := context.Background()

	ids := enqueue(t, q, `{"alert":"A"}`, `{"alert":"B"}`)

	report, err := engine.Drain(ctx, TriggerOnline)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ids[1], entries[0].ID)

	report, err = engine.Drain(ctx, TriggerInterval)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)

	entries, err = q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDrainTransientNetworkFailure(t *testing.T) {
	q := queue.New(memory.New(), nil)
	// Endpoint nobody listens on.
	engine := New(Config{Endpoint: "http://127.0.0.1:1", Timeout: time.Second}, q, nil, nil)
	ctx := context.Background()

	enqueue(t, q, `{"n":1}`)

	report, err := engine.Drain(ctx, TriggerOnline)
	require.NoError(t, err)
	assert.Zero(t, report.Delivered)
	assert.Equal(t, 1, report.Remaining)
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Delivered)
	assert.Contains(t, report.Results[0].Error, "transient network")

	entries, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDrainNotifiesPerDelivery(t *testing.T) {
	remote := &remoteStub{}
	engine, q, notifier := newTestEngine(t, remote)

	ids := enqueue(t, q, `{"n":1}`, `{"n":2}`)

	_, err := engine.Drain(context.Background(), TriggerManual)
	require.NoError(t, err)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.tags, 2)
	assert.Contains(t, notifier.tags[0], "delivered")
	_ = ids
}

func TestConcurrentTriggerIsNoOp(t *testing.T) {
	blockCh := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-blockCh
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	q := queue.New(memory.New(), nil)
	engine := New(Config{Endpoint: server.URL, Timeout: 5 * time.Second}, q, nil, nil)
	ctx := context.Background()

	enqueue(t, q, `{"n":1}`)

	firstDone := make(chan Report, 1)
	go func() {
		report, _ := engine.Drain(ctx, TriggerOnline)
		firstDone <- report
	}()

	// Wait until the first drain is inside delivery, then trigger again.
	require.Eventually(t, func() bool {
		return engine.draining.Load()
	}, time.Second, 5*time.Millisecond)

	report, err := engine.Drain(ctx, TriggerManual)
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	close(blockCh)
	first := <-firstDone
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Delivered)
}

func TestRemoteRejectionError(t *testing.T) {
	err := &RemoteRejectionError{Status: 503}
	assert.True(t, IsRemoteRejection(err))
	assert.False(t, IsRemoteRejection(ErrTransientNetwork))
	assert.Contains(t, err.Error(), "503")
}
