// Package api serves the gateway's HTTP surface: the intercepted
// application traffic plus the local control endpoints.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmoretti/lifeline/internal/logger"
	"github.com/dmoretti/lifeline/pkg/lifecycle"
	"github.com/dmoretti/lifeline/pkg/metrics"
	"github.com/dmoretti/lifeline/pkg/queue"
	"github.com/dmoretti/lifeline/pkg/store"
	"github.com/dmoretti/lifeline/pkg/syncer"
)

// Deps carries the components the HTTP surface is wired to.
type Deps struct {
	// Gateway handles all traffic not claimed by a control endpoint.
	Gateway http.Handler

	// Store backs the health probes.
	Store store.Store

	// Queue is inspected by the control endpoints.
	Queue *queue.Queue

	// Lifecycle drives install/activate from the control channel.
	Lifecycle *lifecycle.Controller

	// Engine runs synchronous manual drains.
	Engine *syncer.Engine
}

// NewRouter creates and configures the chi router.
//
// The control surface lives under fixed local paths:
//   - GET  /health            - liveness probe
//   - GET  /health/ready      - readiness probe (checks the store)
//   - GET  /health/stores     - per-store health detail
//   - GET  /metrics           - Prometheus scrape endpoint
//   - GET  /control/status    - lifecycle state, generations, queue depth
//   - GET  /control/queue     - queued entries
//   - POST /control/sync      - run a drain now, returns the report
//   - POST /control/install   - install a new cache generation
//   - POST /control/activate  - activate the waiting generation
//   - POST /control/skip-waiting - install shortcut: activate immediately
//
// Everything else falls through to the gateway handler.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	health := &healthHandler{store: deps.Store}
	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
		r.Get("/stores", health.Stores)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	control := &controlHandler{
		queue:     deps.Queue,
		lifecycle: deps.Lifecycle,
		engine:    deps.Engine,
	}
	r.Route("/control", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/status", control.Status)
		r.Get("/queue", control.Queue)
		r.Post("/sync", control.Sync)
		r.Post("/install", control.Install)
		r.Post("/activate", control.Activate)
		r.Post("/skip-waiting", control.SkipWaiting)
	})

	// Everything else is application traffic.
	if deps.Gateway != nil {
		r.Handle("/*", deps.Gateway)
	}

	return r
}

// isLocalPath reports whether the request path belongs to the control
// surface rather than proxied application traffic.
func isLocalPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/") ||
		path == "/metrics" || strings.HasPrefix(path, "/control/")
}

// requestLogger logs requests using the internal logger.
//
// Control-surface requests complete at DEBUG to keep probe noise out of
// the logs; gateway traffic completes at INFO.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyStatus, ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDuration, duration.Milliseconds(),
		}

		if isLocalPath(r.URL.Path) {
			logger.Debug("Request completed", logArgs...)
		} else {
			logger.Info("Request completed", logArgs...)
		}
	})
}
