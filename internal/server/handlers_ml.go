package server

import (
	"net/http"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// HandlePutMLScores handles PUT /v1/ml/scores. An external trainer publishes
// one probability per dedupe key; later runs read them when ML is enabled.
func (h *Handlers) HandlePutMLScores(w http.ResponseWriter, r *http.Request) {
	var req model.MLScoresRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	n, err := h.db.UpsertMLScores(r.Context(), req.ModelID, req.Scores)
	if err != nil {
		h.writeServiceError(w, r, "failed to store scores", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"model_id": req.ModelID, "scored": n})
}

// HandleMLStatus handles GET /v1/ml/status.
func (h *Handlers) HandleMLStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.reviewSvc.MLStatus(r.Context(), h.userIDFor(r))
	if err != nil {
		h.writeServiceError(w, r, "failed to compute ml status", err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}
