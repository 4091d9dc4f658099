package api

import (
	"errors"
	"net/http"

	"github.com/dmoretti/lifeline/internal/logger"
	"github.com/dmoretti/lifeline/pkg/lifecycle"
	"github.com/dmoretti/lifeline/pkg/queue"
	"github.com/dmoretti/lifeline/pkg/store"
	"github.com/dmoretti/lifeline/pkg/syncer"
)

// healthHandler serves the liveness and readiness probes.
type healthHandler struct {
	store store.Store
}

// Liveness reports that the process is up. It deliberately checks
// nothing else: a wedged store must not make the supervisor kill a
// process that is still capturing alerts into memory buffers.
func (h *healthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(nil))
}

// Readiness reports whether the durable store accepts operations.
func (h *healthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("store not configured"))
		return
	}
	if err := h.store.Healthcheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(nil))
}

// Stores reports the health of each backing store by name. There is one
// today; the shape leaves room for a split queue/cache store later.
func (h *healthHandler) Stores(w http.ResponseWriter, r *http.Request) {
	stores := map[string]string{}
	healthy := true

	if h.store == nil {
		stores["kv"] = "not configured"
		healthy = false
	} else if err := h.store.Healthcheck(r.Context()); err != nil {
		stores["kv"] = err.Error()
		healthy = false
	} else {
		stores["kv"] = "healthy"
	}

	if !healthy {
		resp := unhealthyResponse("one or more stores unhealthy")
		resp.Data = stores
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(stores))
}

// controlHandler serves the local control endpoints.
type controlHandler struct {
	queue     *queue.Queue
	lifecycle *lifecycle.Controller
	engine    *syncer.Engine
}

// statusData is the payload of GET /control/status.
type statusData struct {
	ActiveGeneration  string `json:"active_generation"`
	WaitingGeneration string `json:"waiting_generation,omitempty"`
	QueueDepth        int    `json:"queue_depth"`
}

// Status reports the lifecycle state and queue depth.
func (h *controlHandler) Status(w http.ResponseWriter, r *http.Request) {
	state := h.lifecycle.State()

	depth, err := h.queue.Len(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, okResponse(statusData{
		ActiveGeneration:  state.ActiveGeneration,
		WaitingGeneration: state.WaitingGeneration,
		QueueDepth:        depth,
	}))
}

// Queue lists the queued entries.
func (h *controlHandler) Queue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.queue.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(entries))
}

// Sync runs a drain immediately and returns the report.
func (h *controlHandler) Sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Drain(r.Context(), syncer.TriggerManual)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(report))
}

// Install populates a new cache generation. The generation waits until
// activated.
func (h *controlHandler) Install(w http.ResponseWriter, r *http.Request) {
	generation, err := h.lifecycle.Install(r.Context())
	if err != nil {
		logger.Error("Install via control channel failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]string{"generation": generation}))
}

// Activate promotes the waiting generation.
func (h *controlHandler) Activate(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Activate(r.Context()); err != nil {
		if errors.Is(err, lifecycle.ErrNoInstall) {
			writeJSON(w, http.StatusConflict, errorResponse(err.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(nil))
}

// SkipWaiting activates the waiting generation if one exists.
func (h *controlHandler) SkipWaiting(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.SkipWaiting(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(nil))
}
