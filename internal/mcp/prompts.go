package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// triage-inbox: walk the unreviewed queue and label each job.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("triage-inbox",
			mcplib.WithPromptDescription("Work through the unreviewed jobs in the inbox and label each one"),
			mcplib.WithArgument("focus",
				mcplib.ArgumentDescription("Optional search text to narrow the queue (company, title or location)"),
			),
		),
		s.handleTriageInboxPrompt,
	)

	// review-job: decide what to do with a single job.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("review-job",
			mcplib.WithPromptDescription("Review one job: read why it was included or excluded, then label or override it"),
			mcplib.WithArgument("dedupe_key",
				mcplib.ArgumentDescription("The job's dedupe key, as listed by jobwatch_inbox"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleReviewJobPrompt,
	)

	// agent-setup: system prompt snippet describing the review workflow.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("agent-setup",
			mcplib.WithPromptDescription("System prompt snippet explaining the jobwatch review workflow (explain-before-override)"),
		),
		s.handleAgentSetupPrompt,
	)
}

func (s *Server) handleTriageInboxPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	focus := request.Params.Arguments["focus"]
	list := `CALL jobwatch_inbox with status="unreviewed".`
	description := "Triage the unreviewed inbox"
	if focus != "" {
		list = fmt.Sprintf(`CALL jobwatch_inbox with status="unreviewed" and query=%q.`, focus)
		description = fmt.Sprintf("Triage unreviewed jobs matching %q", focus)
	}

	return &mcplib.GetPromptResult{
		Description: description,
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Triage the job inbox:

1. %s

2. For each job, decide whether it is worth applying to. When the title
   alone is not enough, CALL jobwatch_explain with its dedupe_key to see
   which rules fired and the relevance probability.

3. LABEL it with jobwatch_feedback:
   - include: worth applying to
   - exclude: not a fit; set reason_category (seniority, location, stack, ...)
   - ignore: not a job posting, or a duplicate
   - applied: you already applied

4. Only use jobwatch_override when the rules got a job wrong and it should
   stay pinned in future runs. If many jobs are wrong for the same reason,
   say so instead: a settings change fixes them all at once.

5. When has_more is true, list the next page and continue.`, list),
				},
			},
		},
	}, nil
}

func (s *Server) handleReviewJobPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	key := request.Params.Arguments["dedupe_key"]
	if key == "" {
		return nil, fmt.Errorf("dedupe_key argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Review job %s", key),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review the job with dedupe_key=%q:

1. CALL jobwatch_explain with dedupe_key=%q.

2. READ the summary and reasons. Check whether the verdict matches the
   title, location and work mode, and whether an override already pins it.

3. RECORD your judgement with jobwatch_feedback (include, exclude, ignore
   or applied). Labels feed the relevance model, so be consistent.

4. If the verdict is wrong and should stay fixed in future runs, CALL
   jobwatch_override with action "include" or "exclude" and a short note.
   Use action "clear" to remove an override that no longer applies.`, key, key),
				},
			},
		},
	}, nil
}

func (s *Server) handleAgentSetupPrompt(_ context.Context, _ mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "jobwatch review workflow for AI agents",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You have access to jobwatch, which fetches job postings from company career
boards, filters them with the operator's settings and keeps every verdict in an
audit log. Your job is to help review what it found.

## The Pattern: Explain Before Override

Rules are the operator's intent. Before pinning a job with jobwatch_override,
call jobwatch_explain to see which rules fired. A wrong verdict usually means a
setting is off, and one settings change beats many overrides.

## Available Tools

- jobwatch_inbox: List jobs waiting for review (start here)
- jobwatch_explain: Show why a job was included or excluded
- jobwatch_feedback: Label a job include, exclude, ignore or applied
- jobwatch_override: Pin a job's verdict for future runs, or clear a pin
- jobwatch_run: Fetch all companies now and evaluate new postings
- jobwatch_runs: List recent runs and their stats
- jobwatch_audit: List every decision of a run

## Labels

- include: worth applying to
- exclude: not a fit (give a reason_category)
- ignore: noise, such as duplicates or non-job pages
- applied: already applied; counts as include for the relevance model`,
				},
			},
		},
	}, nil
}
