package server

import (
	"io"
	"net/http"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// settingsView pairs the stored document with the values a run would use.
type settingsView struct {
	Settings  model.Settings `json:"settings"`
	Effective model.Settings `json:"effective"`
}

// HandleGetSettings handles GET /v1/settings.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.db.GetSettings(r.Context(), h.userIDFor(r))
	if err != nil {
		h.writeServiceError(w, r, "failed to load settings", err)
		return
	}
	writeJSON(w, r, http.StatusOK, settingsView{Settings: s, Effective: s.WithDefaults()})
}

// HandlePutSettings handles PUT /v1/settings. The body replaces the stored
// document; absent fields fall back to defaults at run time.
func (h *Handlers) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes))
	if err != nil {
		handleDecodeError(w, r, err)
		return
	}
	s, err := model.ParseSettings(raw)
	if err != nil {
		h.writeServiceError(w, r, "invalid settings", err)
		return
	}
	if err := h.db.PutSettings(r.Context(), h.userIDFor(r), s); err != nil {
		h.writeServiceError(w, r, "failed to save settings", err)
		return
	}
	writeJSON(w, r, http.StatusOK, settingsView{Settings: s, Effective: s.WithDefaults()})
}
