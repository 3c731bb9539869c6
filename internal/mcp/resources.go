package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/jobwatch/internal/storage"
)

const (
	latestRunURI   = "jobwatch://runs/latest"
	inboxStatsURI  = "jobwatch://inbox/stats"
	explainPrefix  = "jobwatch://jobs/"
	explainSuffix  = "/explain"
	explainPattern = explainPrefix + "{key}" + explainSuffix
)

func (s *Server) registerResources() {
	// jobwatch://runs/latest: the most recent run and its stats.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			latestRunURI,
			"Latest Run",
			mcplib.WithResourceDescription("The most recent ingestion run with its stats and settings hash"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleLatestRun,
	)

	// jobwatch://inbox/stats: review queue counters.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			inboxStatsURI,
			"Inbox Stats",
			mcplib.WithResourceDescription("Counts of active, unreviewed and labelled jobs in the inbox"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleInboxStats,
	)

	// jobwatch://jobs/{key}/explain: why one job was included or excluded.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			explainPattern,
			"Job Explanation",
			mcplib.WithTemplateDescription("Latest decision, override and feedback for one job; the key is URL-escaped"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleExplainResource,
	)
}

func (s *Server) handleLatestRun(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	run, err := s.db.LatestRun(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return jsonResource(latestRunURI, map[string]any{"run": nil})
	}
	if err != nil {
		return nil, fmt.Errorf("mcp: latest run: %w", err)
	}
	return jsonResource(latestRunURI, map[string]any{"run": run})
}

func (s *Server) handleInboxStats(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	stats, err := s.reviewSvc.InboxStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: inbox stats: %w", err)
	}
	return jsonResource(inboxStatsURI, map[string]any{
		"stats":   stats,
		"summary": generateInboxSummary(stats),
	})
}

func (s *Server) handleExplainResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	key, err := parseExplainURI(uri)
	if err != nil {
		return nil, err
	}
	ex, err := s.reviewSvc.Explain(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("mcp: explain %s: %w", key, err)
	}
	return jsonResource(uri, compactExplanation(ex))
}

// parseExplainURI extracts the dedupe key from jobwatch://jobs/{key}/explain.
// Keys contain colons, so clients may send them escaped.
func parseExplainURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, explainPrefix)
	if !ok {
		return "", fmt.Errorf("mcp: invalid explain URI: %s", uri)
	}
	raw, ok := strings.CutSuffix(rest, explainSuffix)
	if !ok {
		return "", fmt.Errorf("mcp: invalid explain URI: %s", uri)
	}
	key, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("mcp: invalid explain URI: %s: %w", uri, err)
	}
	if key == "" {
		return "", fmt.Errorf("mcp: empty dedupe key in %s", uri)
	}
	return key, nil
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
