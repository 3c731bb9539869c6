package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/service/ingest"
	"github.com/ashita-ai/jobwatch/internal/storage"
)

const ingestEndpoint = "POST:/v1/runs/ingest"

// ingestRequest is the body of POST /v1/runs/ingest.
type ingestRequest struct {
	Batches []ingest.SourceBatch `json:"batches"`
}

// HandleTriggerRun handles POST /v1/runs. It fetches every tracked company
// and blocks until the run has finished.
func (h *Handlers) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	h.executeRun(w, r, ingest.RunInput{UserID: h.userIDFor(r)}, nil)
}

// HandleIngestRun handles POST /v1/runs/ingest. The pushed batches replace
// fetching for this run. Honours Idempotency-Key.
func (h *Handlers) HandleIngestRun(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Batches == nil {
		// An empty push is still a push; nil would fall back to fetching.
		req.Batches = []ingest.SourceBatch{}
	}

	idem, proceed := h.beginIdempotentWrite(w, r, ingestEndpoint, req)
	if !proceed {
		return
	}
	h.executeRun(w, r, ingest.RunInput{UserID: h.userIDFor(r), Batches: req.Batches}, idem)
}

func (h *Handlers) executeRun(w http.ResponseWriter, r *http.Request, in ingest.RunInput, idem *storage.RequestKey) {
	result, err := h.ingestSvc.Run(r.Context(), in)
	if err != nil && result.Run.RunID == uuid.Nil {
		h.clearIdempotentWrite(r, idem)
		h.writeServiceError(w, r, "run failed", err)
		return
	}
	if err != nil {
		// The run was recorded as failed or aborted; its ledger entry is the answer.
		h.logger.Warn("run finished with error", "run_id", result.Run.RunID, "status", result.Run.Status, "error", err)
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("jobwatch.run_id", result.Run.RunID.String()))

	h.completeIdempotentWrite(r, idem, http.StatusCreated, result)
	writeJSON(w, r, http.StatusCreated, result)
}

// HandleListRuns handles GET /v1/runs.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryLimit(r, defaultQueryLimit), queryOffset(r)
	runs, total, err := h.db.ListRuns(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, "failed to list runs", err)
		return
	}
	writeListJSON(w, r, model.PagedResult[model.Run]{Items: runs, Total: total, Limit: limit, Offset: offset})
}

// HandleLatestRun handles GET /v1/runs/latest.
func (h *Handlers) HandleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.db.LatestRun(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "run", err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleGetRun handles GET /v1/runs/{run_id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		h.writeServiceError(w, r, "invalid run id", err)
		return
	}
	run, err := h.db.GetRun(r.Context(), runID)
	if err != nil {
		h.writeServiceError(w, r, "run", err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleRunSettings handles GET /v1/runs/{run_id}/settings: the settings
// snapshot the run evaluated with.
func (h *Handlers) HandleRunSettings(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		h.writeServiceError(w, r, "invalid run id", err)
		return
	}
	s, err := h.db.GetRunSettings(r.Context(), runID)
	if err != nil {
		h.writeServiceError(w, r, "run", err)
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}

// HandleSettingsGroups handles GET /v1/runs/groups.
func (h *Handlers) HandleSettingsGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.db.ListSettingsGroups(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "failed to list settings groups", err)
		return
	}
	writeListJSON(w, r, model.PagedResult[model.SettingsGroup]{Items: groups, Total: len(groups), Limit: len(groups)})
}

// HandleRunEvents handles GET /v1/runs/events: a Server-Sent Events stream
// with one event per finished run.
func (h *Handlers) HandleRunEvents(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"SSE not available (LISTEN/NOTIFY not configured)")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Idle streams must outlive the server's WriteTimeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
