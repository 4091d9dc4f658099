// Package router classifies outbound requests and applies a caching
// strategy per class.
//
// Static assets are read-mostly and safe to serve stale, so they are
// cache-first. Critical endpoints (emergency alert submissions) must never
// be silently dropped, so they are network-first with the failure path
// converted into a durable queue append plus a synthesized 202 rather than
// an error to the caller. Everything else gets a deferred 202 without
// being queued.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dmoretti/lifeline/internal/logger"
	"github.com/dmoretti/lifeline/pkg/cache"
	"github.com/dmoretti/lifeline/pkg/notify"
	"github.com/dmoretti/lifeline/pkg/queue"
	"github.com/dmoretti/lifeline/pkg/store"
)

// Class is a request classification.
type Class string

const (
	ClassStatic   Class = "static"   // cache-first
	ClassCritical Class = "critical" // network-first, queue on failure
	ClassDeferred Class = "deferred" // synthesized 202, not queued
)

// Metrics receives gateway events. May be nil.
type Metrics interface {
	RecordRequest(class string, status int)
	RecordOfflineFallback()
}

// Config holds router configuration.
type Config struct {
	// Upstream is the origin base URL requests are forwarded to.
	Upstream *url.URL

	// CriticalPrefixes are path prefixes classified as critical
	// endpoints, e.g. "/api/sos".
	CriticalPrefixes []string

	// OfflinePage is the HTML document served when a page navigation
	// fails with no cache entry and no connectivity. Empty selects the
	// built-in page.
	OfflinePage string

	// Timeout bounds one upstream round trip. Default 10s.
	Timeout time.Duration
}

// Router is the gateway http.Handler.
type Router struct {
	cfg      Config
	cache    *cache.Manager
	queue    *queue.Queue
	notifier notify.Notifier
	metrics  Metrics
	client   *http.Client

	// onlineHook fires on the offline->online edge observed through
	// upstream round trips. Wired to the sync runner.
	onlineHook func()
	offline    atomic.Bool
}

// New creates a router.
func New(cfg Config, cacheMgr *cache.Manager, q *queue.Queue, notifier notify.Notifier, m Metrics) *Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Router{
		cfg:      cfg,
		cache:    cacheMgr,
		queue:    q,
		notifier: notifier,
		metrics:  m,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// OnOnline registers the hook fired when connectivity returns.
func (r *Router) OnOnline(hook func()) {
	r.onlineHook = hook
}

// Fetcher returns a cache.FetchFunc backed by this router's upstream
// client, for the install phase's static population.
func (r *Router) Fetcher() cache.FetchFunc {
	return func(ctx context.Context, asset string) (*cache.Entry, error) {
		target := r.resolveUpstream(asset)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &cache.Entry{
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}, nil
	}
}

// Classify returns the class for a request.
func (r *Router) Classify(req *http.Request) Class {
	for _, prefix := range r.cfg.CriticalPrefixes {
		if strings.HasPrefix(req.URL.Path, prefix) {
			return ClassCritical
		}
	}
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return ClassStatic
	}
	return ClassDeferred
}

// ServeHTTP dispatches the request to its class strategy.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	class := r.Classify(req)

	var status int
	switch class {
	case ClassCritical:
		status = r.networkFirst(w, req)
	case ClassStatic:
		status = r.cacheFirst(w, req)
	default:
		status = r.deferred(w)
	}

	if r.metrics != nil {
		r.metrics.RecordRequest(string(class), status)
	}
	logger.DebugCtx(req.Context(), "Request routed",
		logger.KeyMethod, req.Method,
		logger.KeyPath, req.URL.Path,
		logger.KeyClass, string(class),
		logger.KeyStatus, status)
}

// cacheFirst serves from cache when possible, otherwise fetches live and
// stores a copy of successful responses in the dynamic tier.
func (r *Router) cacheFirst(w http.ResponseWriter, req *http.Request) int {
	identity := cache.Identity(req.Method, req.URL.RequestURI())

	entry, err := r.cache.Get(req.Context(), identity)
	if err == nil {
		return writeEntry(w, entry, true)
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("Cache lookup failed, falling through to network",
			logger.KeyIdentity, identity, "error", err)
	}

	resp, err := r.forward(req, nil)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordOfflineFallback()
		}
		if expectsPage(req) {
			return r.offlinePage(w)
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": "upstream unreachable",
		})
		return http.StatusBadGateway
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": "upstream response truncated",
		})
		return http.StatusBadGateway
	}

	// Store a copy only for complete successful responses.
	if resp.StatusCode == http.StatusOK && req.Method == http.MethodGet {
		putErr := r.cache.Put(req.Context(), identity, &cache.Entry{
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		})
		if putErr != nil {
			// Serving beats caching; log and move on.
			logger.Warn("Failed to cache response", logger.KeyIdentity, identity, "error", putErr)
		}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
	return resp.StatusCode
}

// networkFirst forwards critical requests live; a transport failure turns
// into a durable enqueue and a synthesized accepted response.
func (r *Router) networkFirst(w http.ResponseWriter, req *http.Request) int {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable body"})
		return http.StatusBadRequest
	}

	resp, err := r.forward(req, body)
	if err == nil {
		defer func() { _ = resp.Body.Close() }()
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			respBody = nil
		}
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(respBody)
		return resp.StatusCode
	}

	// No connectivity: capture durably instead of failing the caller.
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "critical payload must be a JSON document",
		})
		return http.StatusBadRequest
	}

	id, enqErr := r.queue.Enqueue(req.Context(), body)
	if enqErr != nil {
		// Durable store down too; the caller must learn the alert was
		// not captured, never hang.
		logger.Error("Enqueue failed for critical request",
			logger.KeyPath, req.URL.Path, "error", enqErr)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"queued": false,
			"error":  "alert could not be captured",
		})
		return http.StatusServiceUnavailable
	}

	r.notifier.Notify(req.Context(), notify.Notification{
		Title:              "Emergency alert queued",
		Body:               "No connectivity. The alert is stored and will be delivered automatically.",
		Tag:                "lifeline-queued",
		RequireInteraction: true,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued": true,
		"id":     id,
		"status": "accepted",
	})
	return http.StatusAccepted
}

// deferred synthesizes an accepted response for requests that are neither
// static nor critical, without queuing anything.
func (r *Router) deferred(w http.ResponseWriter) int {
	writeJSON(w, http.StatusAccepted, map[string]any{
		"deferred": true,
		"status":   "accepted",
	})
	return http.StatusAccepted
}

// forward performs one upstream round trip, tracking the offline->online
// edge for the sync trigger.
func (r *Router) forward(req *http.Request, body []byte) (*http.Response, error) {
	target := r.resolveUpstream(req.URL.RequestURI())

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	out, err := http.NewRequestWithContext(req.Context(), req.Method, target, reader)
	if err != nil {
		return nil, err
	}
	copyHeaders(out.Header, req.Header)

	resp, err := r.client.Do(out)
	if err != nil {
		r.offline.Store(true)
		return nil, err
	}

	if r.offline.CompareAndSwap(true, false) && r.onlineHook != nil {
		logger.Info("Connectivity restored", logger.KeyUpstream, r.cfg.Upstream.String())
		r.onlineHook()
	}
	return resp, nil
}

func (r *Router) resolveUpstream(requestURI string) string {
	ref, err := url.Parse(requestURI)
	if err != nil {
		return r.cfg.Upstream.String()
	}
	return r.cfg.Upstream.ResolveReference(ref).String()
}

func (r *Router) offlinePage(w http.ResponseWriter) int {
	page := r.cfg.OfflinePage
	if page == "" {
		page = defaultOfflinePage
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = io.WriteString(w, page)
	return http.StatusServiceUnavailable
}

// expectsPage reports whether the request wants a full HTML page, which
// selects the offline placeholder over a JSON error.
func expectsPage(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func writeEntry(w http.ResponseWriter, entry *cache.Entry, fromCache bool) int {
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	if fromCache {
		w.Header().Set("X-Lifeline-Cache", "hit")
	}
	w.WriteHeader(entry.Status)
	_, _ = w.Write(entry.Body)
	return entry.Status
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		// Hop-by-hop headers stay local.
		if key == "Connection" || key == "Keep-Alive" || key == "Transfer-Encoding" {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

const defaultOfflinePage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Offline</title></head>
<body>
<h1>You are offline</h1>
<p>This page is not available without a connection. Emergency alerts
still work: they are stored on this device and delivered automatically
when connectivity returns.</p>
</body>
</html>
`
