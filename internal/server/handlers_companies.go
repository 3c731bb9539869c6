package server

import (
	"net/http"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// HandleListCompanies handles GET /v1/companies.
func (h *Handlers) HandleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.db.ListCompanies(r.Context(), h.userIDFor(r))
	if err != nil {
		h.writeServiceError(w, r, "failed to list companies", err)
		return
	}
	writeListJSON(w, r, model.PagedResult[model.Company]{
		Items: companies, Total: len(companies), Limit: len(companies),
	})
}

// HandleGetCompany handles GET /v1/companies/{id}.
func (h *Handlers) HandleGetCompany(w http.ResponseWriter, r *http.Request) {
	id, err := parseCompanyID(r)
	if err != nil {
		h.writeServiceError(w, r, "invalid company id", err)
		return
	}
	c, err := h.db.GetCompany(r.Context(), h.userIDFor(r), id)
	if err != nil {
		h.writeServiceError(w, r, "company", err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// HandleUpsertCompany handles POST /v1/companies. A company with the same
// name (case-insensitive) is merged instead of duplicated.
func (h *Handlers) HandleUpsertCompany(w http.ResponseWriter, r *http.Request) {
	var c model.Company
	if err := decodeJSON(w, r, &c, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	c.ID = 0
	c.UserID = h.userIDFor(r)
	saved, err := h.db.UpsertCompany(r.Context(), c)
	if err != nil {
		h.writeServiceError(w, r, "failed to save company", err)
		return
	}
	writeJSON(w, r, http.StatusOK, saved)
}

// HandleDeleteCompany handles DELETE /v1/companies/{id}.
func (h *Handlers) HandleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	id, err := parseCompanyID(r)
	if err != nil {
		h.writeServiceError(w, r, "invalid company id", err)
		return
	}
	if err := h.db.DeleteCompany(r.Context(), h.userIDFor(r), id); err != nil {
		h.writeServiceError(w, r, "company", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpsertSource handles PUT /v1/companies/{id}/sources.
func (h *Handlers) HandleUpsertSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseCompanyID(r)
	if err != nil {
		h.writeServiceError(w, r, "invalid company id", err)
		return
	}
	var src model.Source
	if err := decodeJSON(w, r, &src, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	c, err := h.db.UpsertSource(r.Context(), h.userIDFor(r), id, src)
	if err != nil {
		h.writeServiceError(w, r, "company", err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// HandleRemoveSource handles DELETE /v1/companies/{id}/sources?key=.
func (h *Handlers) HandleRemoveSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseCompanyID(r)
	if err != nil {
		h.writeServiceError(w, r, "invalid company id", err)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "key query parameter is required")
		return
	}
	c, err := h.db.RemoveSource(r.Context(), h.userIDFor(r), id, key)
	if err != nil {
		h.writeServiceError(w, r, "source", err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}
