package mcp

import (
	"context"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRehearsalPrompt(t *testing.T) {
	result, err := testServer.handlePlanRehearsalPrompt(context.Background(), mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      "plan-rehearsal",
			Arguments: map[string]string{"window_minutes": "15"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Messages)
	assert.Contains(t, result.Description, "15")

	msg := result.Messages[0]
	assert.Equal(t, mcplib.RoleUser, msg.Role)
	tc, ok := msg.Content.(mcplib.TextContent)
	require.True(t, ok, "message content should be TextContent")
	assert.Contains(t, tc.Text, "kumo_list_predictions")
	assert.Contains(t, tc.Text, "duration_minutes=15")
}

func TestPlanRehearsalPrompt_BadWindow(t *testing.T) {
	for _, window := range []string{"", "abc", "0", "-5"} {
		_, err := testServer.handlePlanRehearsalPrompt(context.Background(), mcplib.GetPromptRequest{
			Params: mcplib.GetPromptParams{
				Name:      "plan-rehearsal",
				Arguments: map[string]string{"window_minutes": window},
			},
		})
		require.Error(t, err, "window %q", window)
		assert.Contains(t, err.Error(), "window_minutes")
	}
}

func TestOperatorSetupPrompt(t *testing.T) {
	result, err := testServer.handleOperatorSetupPrompt(context.Background(), mcplib.GetPromptRequest{})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	tc, ok := result.Messages[0].Content.(mcplib.TextContent)
	require.True(t, ok)
	for _, tool := range []string{"kumo_start_run", "kumo_stop_run", "kumo_list_runs"} {
		assert.Contains(t, tc.Text, tool)
	}
}
