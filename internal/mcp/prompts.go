package mcp

import (
	"context"
	"fmt"
	"strconv"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// plan-rehearsal: walk the agent through starting a timed replay.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("plan-rehearsal",
			mcplib.WithPromptDescription("Pick a prediction and replay it so the whole flight fits a rehearsal window"),
			mcplib.WithArgument("window_minutes",
				mcplib.ArgumentDescription("How long the rehearsal should last, in minutes"),
				mcplib.RequiredArgument(),
			),
		),
		s.handlePlanRehearsalPrompt,
	)

	// operator-setup: system prompt snippet describing the tools.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("operator-setup",
			mcplib.WithPromptDescription("System prompt snippet describing Kumo's replay tools"),
		),
		s.handleOperatorSetupPrompt,
	)
}

func (s *Server) handlePlanRehearsalPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	window := request.Params.Arguments["window_minutes"]
	if window == "" {
		return nil, fmt.Errorf("window_minutes argument is required")
	}
	minutes, err := strconv.ParseFloat(window, 64)
	if err != nil || minutes <= 0 {
		return nil, fmt.Errorf("window_minutes must be a positive number, got %q", window)
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Rehearse a flight in %s minutes", window),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Set up a %[1]s minute flight rehearsal:

1. CALL kumo_list_predictions. Prefer the most recent group unless the
   operator named a launch site. Note its flight_minutes.

2. CALL kumo_list_active_runs. If a run is already playing, ask before
   starting another; dashboards show every run at once.

3. CALL kumo_start_run with the chosen prediction_id and
   duration_minutes=%[1]s. Report the run id and the multiple (how many
   times faster than real time the flight will play).

4. If the operator asks to abort, CALL kumo_stop_run with the run id.`, strconv.FormatFloat(minutes, 'f', -1, 64)),
				},
			},
		},
	}, nil
}

func (s *Server) handleOperatorSetupPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "Kumo replay workflow for AI agents",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You have access to Kumo, a ground-station telemetry simulator for
high-altitude balloon flights. It turns a predicted trajectory into a stream
of realistic samples (position, atmosphere, velocity, battery voltage, signal
strength) and plays them back on a compressed clock.

## Available Tools

- kumo_list_predictions: stored prediction groups and their landing spread
- kumo_start_run: replay a prediction over a chosen number of minutes
- kumo_list_active_runs: runs currently playing
- kumo_stop_run: end a run early (already-emitted samples are kept)
- kumo_list_runs: every recorded run, including live serial captures

## Notes

- A run's samples are fixed when it starts. Restarting the same prediction
  gives a new run with freshly jittered values.
- Serial runs come from real hardware; they cannot be started or stopped here.`,
				},
			},
		},
	}, nil
}
