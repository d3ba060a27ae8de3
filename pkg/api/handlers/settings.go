package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloudspool/cloudspool/pkg/settings"
	"github.com/cloudspool/cloudspool/pkg/store"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

// SettingsHandler serves the /api/v1/settings resource. Reads go through the
// store directly so the list always reflects persisted state; writes go
// through the service so its cache is invalidated.
type SettingsHandler struct {
	store    *store.Store
	settings *settings.Service
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(st *store.Store, svc *settings.Service) *SettingsHandler {
	return &SettingsHandler{store: st, settings: svc}
}

type settingRequest struct {
	Value       string `json:"value"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// List handles GET /api/v1/settings.
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListSettings(r.Context())
	if err != nil {
		InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse(list))
}

// Get handles GET /api/v1/settings/{key}.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	setting, err := h.store.GetSetting(r.Context(), key)
	if err != nil {
		if errors.Is(err, models.ErrSettingNotFound) {
			NotFound(w, "setting not found: "+key)
			return
		}
		InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse(setting))
}

// Put handles PUT /api/v1/settings/{key}. Changes take effect on the next
// read after the settings cache expires, at most a few seconds.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := h.settings.Set(r.Context(), key, req.Value, req.Category, req.Description); err != nil {
		InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]string{"key": key, "value": req.Value}))
}
