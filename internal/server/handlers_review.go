package server

import (
	"net/http"
	"strconv"

	"github.com/ashita-ai/jobwatch/internal/model"
)

const feedbackEndpoint = "POST:/v1/feedback"

// HandleListInbox handles GET /v1/inbox.
//
// Query params: status (unreviewed|include|exclude|ignore|all), q,
// include_inactive, limit, offset.
func (h *Handlers) HandleListInbox(w http.ResponseWriter, r *http.Request) {
	status, err := model.ParseInboxStatus(r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, r, "invalid query", err)
		return
	}
	inactive, err := queryBool(r, "include_inactive")
	if err != nil {
		h.writeServiceError(w, r, "invalid query", err)
		return
	}
	f := model.InboxFilters{Status: status, Query: r.URL.Query().Get("q"), IncludeInactive: inactive}

	page, err := h.reviewSvc.Inbox(r.Context(), f, queryLimit(r, defaultQueryLimit), queryOffset(r))
	if err != nil {
		h.writeServiceError(w, r, "failed to list inbox", err)
		return
	}
	writeListJSON(w, r, page)
}

// HandleInboxStats handles GET /v1/inbox/stats.
func (h *Handlers) HandleInboxStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reviewSvc.InboxStats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "failed to count inbox", err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// HandleGetInboxRow handles GET /v1/inbox/{key}.
func (h *Handlers) HandleGetInboxRow(w http.ResponseWriter, r *http.Request) {
	row, err := h.reviewSvc.InboxRow(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeServiceError(w, r, "job", err)
		return
	}
	writeJSON(w, r, http.StatusOK, row)
}

// HandleListOverrides handles GET /v1/overrides.
func (h *Handlers) HandleListOverrides(w http.ResponseWriter, r *http.Request) {
	overrides, err := h.db.ListOverrides(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "failed to list overrides", err)
		return
	}
	writeListJSON(w, r, model.PagedResult[model.Override]{Items: overrides, Total: len(overrides), Limit: len(overrides)})
}

// HandleGetOverride handles GET /v1/overrides/{key}.
func (h *Handlers) HandleGetOverride(w http.ResponseWriter, r *http.Request) {
	ov, err := h.db.GetOverride(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeServiceError(w, r, "override", err)
		return
	}
	writeJSON(w, r, http.StatusOK, ov)
}

// HandleSetOverride handles PUT /v1/overrides/{key}. The override applies
// from the next run on; past audit entries are not rewritten.
func (h *Handlers) HandleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req model.SetOverrideRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	action, err := model.ParseOverrideAction(req.Action)
	if err != nil {
		h.writeServiceError(w, r, "invalid override", err)
		return
	}
	ov, err := h.db.SetOverride(r.Context(), r.PathValue("key"), action, req.Note)
	if err != nil {
		h.writeServiceError(w, r, "failed to set override", err)
		return
	}
	writeJSON(w, r, http.StatusOK, ov)
}

// HandleClearOverride handles DELETE /v1/overrides/{key}.
func (h *Handlers) HandleClearOverride(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.db.ClearOverride(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeServiceError(w, r, "failed to clear override", err)
		return
	}
	// Clearing an absent override succeeds; cleared tells the two cases apart.
	writeJSON(w, r, http.StatusOK, model.ClearOverrideResponse{DedupeKey: r.PathValue("key"), Cleared: cleared})
}

// HandleRecordFeedback handles POST /v1/feedback. Honours Idempotency-Key.
func (h *Handlers) HandleRecordFeedback(w http.ResponseWriter, r *http.Request) {
	var req model.FeedbackRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	label, err := model.ParseFeedbackLabel(req.Label)
	if err != nil {
		h.writeServiceError(w, r, "invalid feedback", err)
		return
	}

	idem, proceed := h.beginIdempotentWrite(w, r, feedbackEndpoint, req)
	if !proceed {
		return
	}
	fb, err := h.db.RecordFeedback(r.Context(), req.DedupeKey, label, req.ReasonCategory)
	if err != nil {
		h.clearIdempotentWrite(r, idem)
		h.writeServiceError(w, r, "failed to record feedback", err)
		return
	}
	h.completeIdempotentWrite(r, idem, http.StatusCreated, fb)
	writeJSON(w, r, http.StatusCreated, fb)
}

// HandleListFeedback handles GET /v1/feedback?key=. Without a key every
// label is listed, newest first.
func (h *Handlers) HandleListFeedback(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryLimit(r, defaultQueryLimit), queryOffset(r)
	rows, total, err := h.db.ListFeedback(r.Context(), r.URL.Query().Get("key"), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "failed to list feedback", err)
		return
	}
	writeListJSON(w, r, model.PagedResult[model.Feedback]{Items: rows, Total: total, Limit: limit, Offset: offset})
}

// HandleFeedbackStats handles GET /v1/feedback/stats?recent=N.
func (h *Handlers) HandleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.FeedbackStats(r.Context(), max(queryInt(r, "recent", 0), 0))
	if err != nil {
		h.writeServiceError(w, r, "failed to count feedback", err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// HandleDeleteFeedback handles DELETE /v1/feedback/{id}.
func (h *Handlers) HandleDeleteFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "id must be a positive integer")
		return
	}
	if err := h.db.DeleteFeedback(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "feedback", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
