// Package mcp implements the Model Context Protocol server for jobwatch.
//
// The MCP server exposes the review workflow of the HTTP API as MCP tools,
// resources and prompts, so an MCP-compatible assistant can triage the
// inbox, explain decisions and record overrides and feedback.
package mcp

import (
	"encoding/json"
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/jobwatch/internal/service/ingest"
	"github.com/ashita-ai/jobwatch/internal/service/review"
	"github.com/ashita-ai/jobwatch/internal/storage"
)

// explainWindow is how long an explain call counts as recent for the
// override nudge.
const explainWindow = 30 * time.Minute

// Server wraps the MCP server with jobwatch's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	db        *storage.DB
	ingestSvc *ingest.Service
	reviewSvc *review.Service
	logger    *slog.Logger
	userID    string
	explained *explainTracker
}

// New creates and configures a new MCP server with all resources, tools and
// prompts. userID is used when a request carries no claims.
func New(db *storage.DB, ingestSvc *ingest.Service, reviewSvc *review.Service, userID string, logger *slog.Logger, version string) *Server {
	s := &Server{
		db:        db,
		ingestSvc: ingestSvc,
		reviewSvc: reviewSvc,
		logger:    logger,
		userID:    userID,
		explained: newExplainTracker(explainWindow),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"jobwatch",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// jsonResult renders v as the text content of a tool result.
func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
