package mcp

import (
	"context"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promptText(t *testing.T, result *mcplib.GetPromptResult) string {
	t.Helper()
	require.NotEmpty(t, result.Messages, "expected at least one message")
	msg := result.Messages[0]
	assert.Equal(t, mcplib.RoleUser, msg.Role)
	tc, ok := msg.Content.(mcplib.TextContent)
	require.True(t, ok, "message content should be TextContent")
	return tc.Text
}

func TestTriageInboxPrompt(t *testing.T) {
	result, err := testServer.handleTriageInboxPrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{Name: "triage-inbox"},
	})
	require.NoError(t, err)
	text := promptText(t, result)
	assert.Contains(t, text, `status="unreviewed".`)
	assert.NotContains(t, text, "query=")
	assert.Contains(t, text, "jobwatch_feedback")
}

func TestTriageInboxPrompt_Focus(t *testing.T) {
	result, err := testServer.handleTriageInboxPrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      "triage-inbox",
			Arguments: map[string]string{"focus": "Berlin"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Description, "Berlin")
	assert.Contains(t, promptText(t, result), `query="Berlin"`)
}

func TestReviewJobPrompt(t *testing.T) {
	result, err := testServer.handleReviewJobPrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      "review-job",
			Arguments: map[string]string{"dedupe_key": "v1:abc"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Description, "v1:abc")
	text := promptText(t, result)
	assert.Contains(t, text, `jobwatch_explain with dedupe_key="v1:abc"`)
	assert.Contains(t, text, "jobwatch_override")
}

func TestReviewJobPrompt_MissingKey(t *testing.T) {
	_, err := testServer.handleReviewJobPrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{Name: "review-job", Arguments: map[string]string{}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedupe_key")
}

func TestAgentSetupPrompt(t *testing.T) {
	result, err := testServer.handleAgentSetupPrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{Name: "agent-setup"},
	})
	require.NoError(t, err)
	text := promptText(t, result)
	for _, tool := range []string{"jobwatch_inbox", "jobwatch_explain", "jobwatch_feedback", "jobwatch_override", "jobwatch_run", "jobwatch_runs", "jobwatch_audit"} {
		assert.Contains(t, text, tool)
	}
}
