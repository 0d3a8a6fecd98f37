package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	uriActiveRuns  = "kumo://runs/active"
	uriPredictions = "kumo://predictions"
)

func (s *Server) registerResources() {
	// kumo://runs/active: runs currently playing.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriActiveRuns,
			"Active Runs",
			mcplib.WithResourceDescription("Runs currently playing, summarised"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleActiveRuns,
	)

	// kumo://predictions: stored prediction groups.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriPredictions,
			"Predictions",
			mcplib.WithResourceDescription("Stored prediction groups, summarised"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePredictions,
	)

	// kumo://runs/{id}/samples: every recorded sample of one run.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"kumo://runs/{id}/samples",
			"Run Samples",
			mcplib.WithTemplateDescription("Recorded samples for a specific run"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleRunSamples,
	)
}

func (s *Server) handleActiveRuns(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	runs := s.scheduler.ListActive()
	out := make([]map[string]any, len(runs))
	for i, run := range runs {
		out[i] = compactRun(run)
	}
	return jsonResource(uriActiveRuns, out)
}

func (s *Server) handlePredictions(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	groups, err := s.predictions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: list predictions: %w", err)
	}
	out := make([]map[string]any, len(groups))
	for i, g := range groups {
		out[i] = compactGroup(g)
	}
	return jsonResource(uriPredictions, out)
}

func (s *Server) handleRunSamples(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	runID, ok := parseRunSamplesURI(uri)
	if !ok {
		return nil, fmt.Errorf("mcp: invalid run samples URI: %s", uri)
	}

	samples, err := s.scheduler.FetchSamples(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("mcp: run samples: %w", err)
	}

	return jsonResource(uri, map[string]any{
		"run_id":  runID,
		"samples": samples,
	})
}

// parseRunSamplesURI extracts the run id from kumo://runs/{id}/samples.
func parseRunSamplesURI(uri string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, "kumo://runs/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/samples")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
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
