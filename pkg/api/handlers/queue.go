package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloudspool/cloudspool/pkg/store"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

// QueueHandler serves the /api/v1/queue resource: job listing, per-state
// counts, and the operator retry action.
type QueueHandler struct {
	store *store.Store
}

// NewQueueHandler creates a queue handler.
func NewQueueHandler(st *store.Store) *QueueHandler {
	return &QueueHandler{store: st}
}

// List handles GET /api/v1/queue?state=&limit=.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	var state models.JobState
	if s := r.URL.Query().Get("state"); s != "" {
		state = models.JobState(s)
		if !state.Valid() {
			BadRequest(w, "unknown job state: "+s)
			return
		}
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			BadRequest(w, "invalid limit: "+l)
			return
		}
		limit = n
	}

	jobs, err := h.store.ListJobs(r.Context(), state, limit)
	if err != nil {
		InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse(jobs))
}

// Stats handles GET /api/v1/queue/stats.
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountJobsByState(r.Context())
	if err != nil {
		InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse(counts))
}

// Get handles GET /api/v1/queue/{id}.
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			NotFound(w, "job not found")
			return
		}
		InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse(job))
}

// Retry handles POST /api/v1/queue/{id}/retry. Only failed jobs can be
// retried; the job returns to pending with a clean attempt counter.
func (h *QueueHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	if err := h.store.ResetJob(r.Context(), id, time.Now()); err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			NotFound(w, "no failed job with that id")
			return
		}
		InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, okResponse(map[string]any{"id": id, "state": models.JobPending}))
}

func (h *QueueHandler) jobID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		BadRequest(w, "invalid job id: "+raw)
		return 0, false
	}
	return uint(id), true
}
