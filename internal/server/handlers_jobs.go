package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ashita-ai/jobwatch/internal/engine"
	"github.com/ashita-ai/jobwatch/internal/model"
)

// HandleListJobs handles GET /v1/jobs.
//
// Query params: scope (new|all|settings), source, work_mode, h1b_only, q,
// limit, offset.
func (h *Handlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h1b, err := queryBool(r, "h1b_only")
	if err != nil {
		h.writeServiceError(w, r, "invalid query", err)
		return
	}
	f := model.JobFilters{
		Scope:    model.JobScope(q.Get("scope")),
		Source:   q.Get("source"),
		WorkMode: model.WorkMode(q.Get("work_mode")),
		H1BOnly:  h1b,
		Query:    q.Get("q"),
	}
	limit, offset := queryLimit(r, defaultQueryLimit), queryOffset(r)
	jobs, total, err := h.db.ListJobs(r.Context(), f, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "failed to list jobs", err)
		return
	}
	writeListJSON(w, r, model.PagedResult[model.JobRow]{Items: jobs, Total: total, Limit: limit, Offset: offset})
}

// HandleGetJob handles GET /v1/jobs/{key}.
func (h *Handlers) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.db.GetJob(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeServiceError(w, r, "job", err)
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

// HandleExplainJob handles GET /v1/jobs/{key}/explain.
func (h *Handlers) HandleExplainJob(w http.ResponseWriter, r *http.Request) {
	ex, err := h.reviewSvc.Explain(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeServiceError(w, r, "job", err)
		return
	}
	writeJSON(w, r, http.StatusOK, ex)
}

// auditView is an audit entry with its reasons rendered for people.
type auditView struct {
	model.AuditEntry
	Explanation []string `json:"explanation"`
}

// HandleListAudit handles GET /v1/audit and GET /v1/runs/{run_id}/audit.
// Without a run id the latest run is listed.
//
// Query params: outcome (all|included|excluded), q, limit, offset.
func (h *Handlers) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	var f model.AuditFilters
	if r.PathValue("run_id") != "" {
		runID, err := parseRunID(r)
		if err != nil {
			h.writeServiceError(w, r, "invalid run id", err)
			return
		}
		f.RunID = &runID
	}
	switch outcome := model.AuditOutcome(r.URL.Query().Get("outcome")); outcome {
	case "", model.AuditOutcomeAll, model.AuditOutcomeIncluded, model.AuditOutcomeExcluded:
		f.Outcome = outcome
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "outcome must be all, included or excluded")
		return
	}
	f.Query = r.URL.Query().Get("q")

	limit, offset := queryLimit(r, defaultQueryLimit), queryOffset(r)
	entries, total, runID, err := h.db.ListAudit(r.Context(), f, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "run", err)
		return
	}
	if runID != uuid.Nil {
		w.Header().Set("X-Run-ID", runID.String())
	}

	views := make([]auditView, len(entries))
	for i, e := range entries {
		views[i] = auditView{AuditEntry: e, Explanation: engine.HumanizeAll(e.Reasons)}
	}
	writeListJSON(w, r, model.PagedResult[auditView]{Items: views, Total: total, Limit: limit, Offset: offset})
}
