package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloudspool/cloudspool/pkg/sources"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

// SourcesHandler serves the /api/v1/sources resource.
type SourcesHandler struct {
	sources *sources.Service
}

// NewSourcesHandler creates a sources handler.
func NewSourcesHandler(svc *sources.Service) *SourcesHandler {
	return &SourcesHandler{sources: svc}
}

// sourceRequest is the create/update payload.
type sourceRequest struct {
	Name              string `json:"name"`
	FolderPath        string `json:"folder_path"`
	ArchiveFolderPath string `json:"archive_folder_path"`
	FilePattern       string `json:"file_pattern"`
	Enabled           *bool  `json:"enabled"`
}

// List handles GET /api/v1/sources.
func (h *SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.sources.ListAll(r.Context())
	if err != nil {
		InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse(list))
}

// Get handles GET /api/v1/sources/{name}.
func (h *SourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	source, err := h.sources.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			NotFound(w, "source not found: "+name)
			return
		}
		InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse(source))
}

// Create handles POST /api/v1/sources.
func (h *SourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	source := &models.Source{
		Name:              req.Name,
		FolderPath:        req.FolderPath,
		ArchiveFolderPath: req.ArchiveFolderPath,
		FilePattern:       req.FilePattern,
		Enabled:           enabled,
	}

	if err := h.sources.Create(r.Context(), source); err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicateSource):
			Conflict(w, "source already exists: "+req.Name)
		default:
			BadRequest(w, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, okResponse(source))
}

// Update handles PUT /api/v1/sources/{name}. Any change marks the source for
// a watcher refresh on the next supervisor tick.
func (h *SourcesHandler) Update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	current, err := h.sources.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			NotFound(w, "source not found: "+name)
			return
		}
		InternalError(w, err.Error())
		return
	}

	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if req.FolderPath != "" {
		current.FolderPath = req.FolderPath
	}
	if req.ArchiveFolderPath != "" {
		current.ArchiveFolderPath = req.ArchiveFolderPath
	}
	if req.FilePattern != "" {
		current.FilePattern = req.FilePattern
	}
	if req.Enabled != nil {
		current.Enabled = *req.Enabled
	}
	current.NeedsRefresh = true

	if err := h.sources.Update(r.Context(), current); err != nil {
		BadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse(current))
}

// Delete handles DELETE /api/v1/sources/{name}.
func (h *SourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.sources.Delete(r.Context(), name); err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			NotFound(w, "source not found: "+name)
			return
		}
		InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /api/v1/sources/{name}/refresh. The watcher restarts
// on the next supervisor tick.
func (h *SourcesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.sources.RequestRefresh(r.Context(), name); err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			NotFound(w, "source not found: "+name)
			return
		}
		InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, okResponse(map[string]string{"source": name, "refresh": "requested"}))
}
