package handlers

import (
	"net/http"
	"time"

	"github.com/cloudspool/cloudspool/pkg/blob"
	"github.com/cloudspool/cloudspool/pkg/store"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store    *store.Store
	uploader blob.Uploader
}

// NewHealthHandler creates a health handler. The uploader may be nil when
// the blob backend is not part of readiness.
func NewHealthHandler(st *store.Store, uploader blob.Uploader) *HealthHandler {
	return &HealthHandler{store: st, uploader: uploader}
}

// Liveness reports that the process is up. Always 200.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// Readiness reports whether the store and the blob backend are reachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, 2)
	healthy := true

	if err := h.store.Ping(r.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.uploader != nil {
		if err := h.uploader.Probe(r.Context()); err != nil {
			checks["blob"] = err.Error()
			healthy = false
		} else {
			checks["blob"] = "ok"
		}
	}

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Data:      checks,
		})
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      checks,
	})
}
