package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/jobwatch/internal/ctxutil"
	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/service/ingest"
	"github.com/ashita-ai/jobwatch/internal/storage"
)

func (s *Server) registerTools() {
	// jobwatch_inbox: the review queue.
	s.mcpServer.AddTool(
		mcplib.NewTool("jobwatch_inbox",
			mcplib.WithDescription(`List jobs in the review inbox.

WHEN TO USE: At the start of a review session, or to find a job by title,
company or location. Each row shows the latest verdict, any override and
the latest feedback label.

Call jobwatch_explain on a row before overriding it.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("status",
				mcplib.Description("Which rows to list"),
				mcplib.Enum("unreviewed", "include", "exclude", "ignore", "all"),
				mcplib.DefaultString("unreviewed"),
			),
			mcplib.WithString("query",
				mcplib.Description("Optional substring matched against title, company, location and key"),
			),
			mcplib.WithBoolean("include_inactive",
				mcplib.Description("Also list jobs not seen recently"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum rows to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(20),
			),
		),
		s.handleInbox,
	)

	// jobwatch_explain: why a job was included or excluded.
	s.mcpServer.AddTool(
		mcplib.NewTool("jobwatch_explain",
			mcplib.WithDescription(`Explain the latest decision for one job: every rule that fired,
the active override and the feedback history.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("dedupe_key",
				mcplib.Description("The job's dedupe key, as listed by jobwatch_inbox"),
				mcplib.Required(),
			),
		),
		s.handleExplain,
	)

	// jobwatch_override: pin or unpin a job's verdict.
	s.mcpServer.AddTool(
		mcplib.NewTool("jobwatch_override",
			mcplib.WithDescription(`Force a job to be included or excluded in every future run, or clear
an existing override. Past runs are not rewritten.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("dedupe_key",
				mcplib.Description("The job's dedupe key"),
				mcplib.Required(),
			),
			mcplib.WithString("action",
				mcplib.Description("include, exclude, or clear to remove the override"),
				mcplib.Enum("include", "exclude", "clear"),
				mcplib.Required(),
			),
			mcplib.WithString("note",
				mcplib.Description("Optional reminder of why the override exists"),
			),
		),
		s.handleOverride,
	)

	// jobwatch_feedback: label a job.
	s.mcpServer.AddTool(
		mcplib.NewTool("jobwatch_feedback",
			mcplib.WithDescription(`Record a review label for a job. Labels are append-only; the newest
one is the job's current label and all of them train the relevance model.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("dedupe_key",
				mcplib.Description("The job's dedupe key"),
				mcplib.Required(),
			),
			mcplib.WithString("label",
				mcplib.Description("Review label; applied counts as include"),
				mcplib.Enum("include", "exclude", "ignore", "applied"),
				mcplib.Required(),
			),
			mcplib.WithString("reason_category",
				mcplib.Description("Optional short category such as seniority, location or stack"),
			),
		),
		s.handleFeedback,
	)

	// jobwatch_run: start an ingestion run.
	s.mcpServer.AddTool(
		mcplib.NewTool("jobwatch_run",
			mcplib.WithDescription(`Fetch every tracked company now and evaluate the postings with the
current settings. Blocks until the run finishes and returns its stats.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
		),
		s.handleRun,
	)

	// jobwatch_runs: the run ledger.
	s.mcpServer.AddTool(
		mcplib.NewTool("jobwatch_runs",
			mcplib.WithDescription("List recent runs, newest first, with their stats and settings hash."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum runs to return"),
				mcplib.Min(1),
				mcplib.Max(50),
				mcplib.DefaultNumber(5),
			),
		),
		s.handleRuns,
	)

	// jobwatch_audit: every decision of one run.
	s.mcpServer.AddTool(
		mcplib.NewTool("jobwatch_audit",
			mcplib.WithDescription("List the decisions of a run with readable reasons. Defaults to the latest run."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id",
				mcplib.Description("Optional run id; omit for the latest run"),
			),
			mcplib.WithString("outcome",
				mcplib.Description("Filter by verdict"),
				mcplib.Enum("all", "included", "excluded"),
				mcplib.DefaultString("all"),
			),
			mcplib.WithString("query",
				mcplib.Description("Optional substring matched against title, company, location and key"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum entries to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(20),
			),
		),
		s.handleAudit,
	)
}

// toolError renders err for the caller. Validation and not-found errors are
// the caller's to fix; anything else is logged.
func (s *Server) toolError(op string, err error) *mcplib.CallToolResult {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return errorResult(err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return errorResult(op + ": not found")
	case errors.Is(err, ingest.ErrRunInProgress):
		return errorResult("a run is already in progress, try again when it finishes")
	default:
		s.logger.Error("mcp: "+op, "error", err)
		return errorResult(fmt.Sprintf("%s failed: %v", op, err))
	}
}

func (s *Server) handleInbox(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	status, err := model.ParseInboxStatus(request.GetString("status", ""))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	f := model.InboxFilters{
		Status:          status,
		Query:           request.GetString("query", ""),
		IncludeInactive: request.GetBool("include_inactive", false),
	}
	limit := min(max(request.GetInt("limit", 20), 1), 100)

	page, err := s.reviewSvc.Inbox(ctx, f, limit, 0)
	if err != nil {
		return s.toolError("inbox", err), nil
	}
	stats, err := s.reviewSvc.InboxStats(ctx)
	if err != nil {
		return s.toolError("inbox", err), nil
	}

	rows := make([]map[string]any, len(page.Items))
	for i, r := range page.Items {
		rows[i] = compactInboxRow(r)
	}
	return jsonResult(map[string]any{
		"summary":  generateInboxSummary(stats),
		"jobs":     rows,
		"total":    page.Total,
		"has_more": page.HasMore(),
	}), nil
}

func (s *Server) handleExplain(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key := request.GetString("dedupe_key", "")
	if key == "" {
		return errorResult("dedupe_key is required"), nil
	}
	ex, err := s.reviewSvc.Explain(ctx, key)
	if err != nil {
		return s.toolError("explain", err), nil
	}
	s.explained.Record(ctxutil.UserIDFromContext(ctx, s.userID), key)
	return jsonResult(compactExplanation(ex)), nil
}

func (s *Server) handleOverride(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key := request.GetString("dedupe_key", "")
	action := request.GetString("action", "")
	if key == "" || action == "" {
		return errorResult("dedupe_key and action are required"), nil
	}

	if action == "clear" {
		cleared, err := s.db.ClearOverride(ctx, key)
		if err != nil {
			return s.toolError("clear override", err), nil
		}
		return jsonResult(map[string]any{"dedupe_key": key, "cleared": cleared}), nil
	}

	parsed, err := model.ParseOverrideAction(action)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	ov, err := s.db.SetOverride(ctx, key, parsed, request.GetString("note", ""))
	if err != nil {
		return s.toolError("set override", err), nil
	}

	result := jsonResult(ov)
	// Advisory only; the override is already stored.
	if !s.explained.WasExplained(ctxutil.UserIDFromContext(ctx, s.userID), key) {
		result.Content = append(result.Content, mcplib.TextContent{
			Type: "text",
			Text: "NOTE: jobwatch_explain was not called for " + key + " before this override. " +
				"Check which rules fired first; a settings change may fix a whole class of jobs at once.",
		})
	}
	return result, nil
}

func (s *Server) handleFeedback(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key := request.GetString("dedupe_key", "")
	if key == "" {
		return errorResult("dedupe_key is required"), nil
	}
	label, err := model.ParseFeedbackLabel(request.GetString("label", ""))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	fb, err := s.db.RecordFeedback(ctx, key, label, request.GetString("reason_category", ""))
	if err != nil {
		return s.toolError("record feedback", err), nil
	}
	return jsonResult(fb), nil
}

func (s *Server) handleRun(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.ingestSvc == nil {
		return errorResult("runs are not available on this server"), nil
	}
	res, err := s.ingestSvc.Run(ctx, ingest.RunInput{UserID: ctxutil.UserIDFromContext(ctx, s.userID)})
	if err != nil && res.Run.RunID == uuid.Nil {
		return s.toolError("run", err), nil
	}
	out := map[string]any{
		"run_id":   res.Run.RunID,
		"status":   res.Run.Status,
		"stats":    res.Run.Stats,
		"new_keys": res.NewKeys,
	}
	if err != nil {
		out["error"] = err.Error()
	}
	return jsonResult(out), nil
}

func (s *Server) handleRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := min(max(request.GetInt("limit", 5), 1), 50)
	runs, total, err := s.db.ListRuns(ctx, limit, 0)
	if err != nil {
		return s.toolError("list runs", err), nil
	}
	return jsonResult(map[string]any{"runs": runs, "total": total}), nil
}

func (s *Server) handleAudit(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var f model.AuditFilters
	if raw := request.GetString("run_id", ""); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return errorResult("run_id must be a UUID"), nil
		}
		f.RunID = &id
	}
	switch outcome := model.AuditOutcome(request.GetString("outcome", "")); outcome {
	case "", model.AuditOutcomeAll, model.AuditOutcomeIncluded, model.AuditOutcomeExcluded:
		f.Outcome = outcome
	default:
		return errorResult("outcome must be all, included or excluded"), nil
	}
	f.Query = request.GetString("query", "")
	limit := min(max(request.GetInt("limit", 20), 1), 100)

	entries, total, runID, err := s.db.ListAudit(ctx, f, limit, 0)
	if err != nil {
		return s.toolError("audit", err), nil
	}
	rows := make([]map[string]any, len(entries))
	for i, e := range entries {
		rows[i] = compactAuditEntry(e)
	}
	return jsonResult(map[string]any{"run_id": runID, "decisions": rows, "total": total}), nil
}
