// Package mcp implements the Model Context Protocol server for Kumo.
//
// It exposes run control and prediction listing over MCP tools, resources
// and prompts, so an agent can rehearse a flight the same way an operator
// does through the HTTP API.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kumo/internal/service/playback"
	"github.com/ashita-ai/kumo/internal/service/predict"
)

// Server wraps the MCP server with Kumo's service layer.
type Server struct {
	mcpServer   *mcpserver.MCPServer
	scheduler   *playback.Scheduler
	predictions *predict.Service
	logger      *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools and
// prompts.
func New(scheduler *playback.Scheduler, predictions *predict.Service, logger *slog.Logger, version string) *Server {
	s := &Server{
		scheduler:   scheduler,
		predictions: predictions,
		logger:      logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kumo",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
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

const serverInstructions = `Kumo replays predicted high-altitude balloon flights as live telemetry.

Typical workflow:
1. kumo_list_predictions to find a prediction group id.
2. kumo_start_run with that id and a playback duration in minutes.
3. kumo_list_active_runs to watch progress; kumo_stop_run to end a run early.
4. kumo_list_runs for every run that has been recorded, including finished ones.`

// jsonResult marshals v as indented JSON text content.
func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
