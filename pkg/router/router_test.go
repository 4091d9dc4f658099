package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmoretti/lifeline/pkg/cache"
	"github.com/dmoretti/lifeline/pkg/queue"
	"github.com/dmoretti/lifeline/pkg/store/memory"
)

const deadUpstream = "http://127.0.0.1:1"

type fixture struct {
	router *Router
	cache  *cache.Manager
	queue  *queue.Queue
	store  *memory.Store
	hits   *atomic.Int64
}

// newFixture wires a router against a live upstream stub. Pass handler nil
// for a default 200 echo upstream.
func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()

	hits := &atomic.Int64{}
	if handler == nil {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("upstream body"))
		}
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return newFixtureAt(t, server.URL, hits)
}

// newOfflineFixture wires a router whose upstream refuses connections.
func newOfflineFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureAt(t, deadUpstream, &atomic.Int64{})
}

func newFixtureAt(t *testing.T, upstream string, hits *atomic.Int64) *fixture {
	t.Helper()

	target, err := url.Parse(upstream)
	require.NoError(t, err)

	s := memory.New()
	mgr := cache.NewManager(s, nil, "g1", "g1", nil)
	q := queue.New(s, nil)

	r := New(Config{
		Upstream:         target,
		CriticalPrefixes: []string{"/api/sos"},
		Timeout:          time.Second,
	}, mgr, q, nil, nil)

	return &fixture{router: r, cache: mgr, queue: q, store: s, hits: hits}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestClassify(t *testing.T) {
	f := newOfflineFixture(t)

	tests := []struct {
		method string
		path   string
		want   Class
	}{
		{http.MethodPost, "/api/sos", ClassCritical},
		{http.MethodPost, "/api/sos/cancel", ClassCritical},
		{http.MethodGet, "/api/sos/status", ClassCritical},
		{http.MethodGet, "/index.html", ClassStatic},
		{http.MethodHead, "/app.js", ClassStatic},
		{http.MethodPost, "/api/profile", ClassDeferred},
		{http.MethodDelete, "/api/contacts/3", ClassDeferred},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		assert.Equal(t, tc.want, f.router.Classify(req), "%s %s", tc.method, tc.path)
	}
}

func TestCacheFirstServesCachedEntry(t *testing.T) {
	f := newOfflineFixture(t)
	ctx := context.Background()

	identity := cache.Identity(http.MethodGet, "/index.html")
	require.NoError(t, f.cache.Put(ctx, identity, &cache.Entry{
		Status:      200,
		ContentType: "text/html",
		Body:        []byte("<h1>cached</h1>"),
	}))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/index.html", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>cached</h1>", rec.Body.String())
	assert.Equal(t, "hit", rec.Header().Get("X-Lifeline-Cache"))
}

func TestCacheFirstMissFetchesAndStores(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream body", rec.Body.String())
	assert.Equal(t, int64(1), f.hits.Load())

	// Second request is served from the dynamic tier without a round trip.
	rec = f.do(httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream body", rec.Body.String())
	assert.Equal(t, "hit", rec.Header().Get("X-Lifeline-Cache"))
	assert.Equal(t, int64(1), f.hits.Load())
}

func TestCacheFirstDoesNotStoreFailures(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Every request goes back to the network.
	f.do(httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, int64(2), f.hits.Load())
}

func TestOfflineNavigationGetsPlaceholderPage(t *testing.T) {
	f := newOfflineFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	rec := f.do(req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "offline")
}

func TestOfflineAssetGetsGatewayError(t *testing.T) {
	f := newOfflineFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/data.json", nil)
	req.Header.Set("Accept", "application/json")

	rec := f.do(req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "upstream unreachable", body["error"])
}

func TestCriticalOnlineRelaysUpstreamResponse(t *testing.T) {
	var received string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&raw)
		received = string(raw)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ack":true}`))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/sos", strings.NewReader(`{"lat":45.1,"lon":7.6}`))
	rec := f.do(req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"ack":true}`, rec.Body.String())
	assert.JSONEq(t, `{"lat":45.1,"lon":7.6}`, received)

	// Nothing queued on the happy path.
	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCriticalOfflineQueuesAndSynthesizes202(t *testing.T) {
	f := newOfflineFixture(t)
	ctx := context.Background()

	payload := `{"lat":45.1,"lon":7.6,"type":"sos"}`
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/sos", strings.NewReader(payload)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["queued"])
	assert.Equal(t, "accepted", body["status"])
	assert.NotZero(t, body["id"])

	entries, err := f.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, payload, string(entries[0].Payload))
	assert.Equal(t, int64(body["id"].(float64)), entries[0].ID)
}

func TestCriticalOfflineRejectsInvalidPayload(t *testing.T) {
	f := newOfflineFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/sos", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCriticalEnqueueFailureReturns503(t *testing.T) {
	f := newOfflineFixture(t)
	f.store.FailWith(errors.New("disk full"))

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/sos", strings.NewReader(`{"n":1}`)))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["queued"])
}

func TestDeferredRequestIsNotQueued(t *testing.T) {
	f := newOfflineFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader(`{"name":"x"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["deferred"])

	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOnlineHookFiresOnReconnect(t *testing.T) {
	f := newFixture(t, nil)

	var fired atomic.Int64
	f.router.OnOnline(func() { fired.Add(1) })

	// Force the offline edge with an unreachable upstream, then restore.
	f.router.offline.Store(true)

	f.do(httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, int64(1), fired.Load())

	// Staying online does not re-fire.
	f.do(httptest.NewRequest(http.MethodGet, "/ping2", nil))
	assert.Equal(t, int64(1), fired.Load())
}
