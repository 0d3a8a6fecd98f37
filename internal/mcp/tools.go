package mcp

import (
	"context"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kumo/internal/model"
	"github.com/ashita-ai/kumo/internal/service/playback"
	"github.com/ashita-ai/kumo/internal/service/synth"
)

func (s *Server) registerTools() {
	// kumo_start_run: synthesize and start playing a run.
	s.mcpServer.AddTool(
		mcplib.NewTool("kumo_start_run",
			mcplib.WithDescription(`Start replaying a predicted flight as live telemetry.

The first prediction in the group is compressed (or stretched) so the whole
flight plays in duration_minutes. Samples stream to every connected
dashboard as they are emitted.

WHAT YOU GET BACK: the run id, how many samples will play, the time
compression multiple, and the total playback time in milliseconds.

EXAMPLE: prediction_id="3f0c...", duration_minutes=10 replays a three-hour
flight in ten minutes (multiple 18.0).`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("prediction_id",
				mcplib.Description("Prediction group id from kumo_list_predictions"),
				mcplib.Required(),
			),
			mcplib.WithNumber("duration_minutes",
				mcplib.Description("Wall-clock playback duration in minutes"),
				mcplib.Required(),
				mcplib.Min(0),
				mcplib.Max(model.MaxDurationMinutes),
			),
			mcplib.WithNumber("start_time",
				mcplib.Description("Unix milliseconds stamped on the first sample. Defaults to now."),
				mcplib.Min(0),
			),
		),
		s.handleStartRun,
	)

	// kumo_stop_run: cancel a playing run.
	s.mcpServer.AddTool(
		mcplib.NewTool("kumo_stop_run",
			mcplib.WithDescription(`Stop a playing run. Samples already emitted stay recorded.
Stopping a run that has already finished is not an error.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("run_id",
				mcplib.Description("Run id from kumo_start_run or kumo_list_active_runs"),
				mcplib.Required(),
			),
		),
		s.handleStopRun,
	)

	// kumo_list_active_runs: runs currently playing.
	s.mcpServer.AddTool(
		mcplib.NewTool("kumo_list_active_runs",
			mcplib.WithDescription("List runs that are currently playing, oldest first."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleListActiveRuns,
	)

	// kumo_list_runs: every recorded run.
	s.mcpServer.AddTool(
		mcplib.NewTool("kumo_list_runs",
			mcplib.WithDescription("List every recorded run, simulated or received over serial, playing or finished."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum runs to return"),
				mcplib.Min(1),
				mcplib.Max(1000),
				mcplib.DefaultNumber(50),
			),
		),
		s.handleListRuns,
	)

	// kumo_list_predictions: stored prediction groups.
	s.mcpServer.AddTool(
		mcplib.NewTool("kumo_list_predictions",
			mcplib.WithDescription(`List stored prediction groups with their launch and landing points and
the spread of predicted landing distances in miles. Use an id from here with
kumo_start_run.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleListPredictions,
	)
}

func (s *Server) handleStartRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.StartRunRequest{
		PredictionID:    request.GetString("prediction_id", ""),
		DurationMinutes: request.GetFloat("duration_minutes", 0),
		StartTime:       int64(request.GetInt("start_time", 0)),
	}
	if err := req.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	run, err := s.scheduler.Start(ctx, req.PredictionID, req.DurationMinutes, req.StartTime)
	switch {
	case err == nil:
	case errors.Is(err, playback.ErrTrajectoryNotFound):
		return errorResult(fmt.Sprintf("prediction %s not found; call kumo_list_predictions", req.PredictionID)), nil
	case errors.Is(err, synth.ErrDegenerateTrajectory), errors.Is(err, synth.ErrEmptyTrajectory):
		return errorResult(fmt.Sprintf("prediction %s cannot be replayed: %v", req.PredictionID, err)), nil
	case errors.Is(err, playback.ErrTooManyRuns):
		return errorResult("too many runs are playing; stop one with kumo_stop_run first"), nil
	default:
		s.logger.Error("mcp: start run failed", "prediction_id", req.PredictionID, "error", err)
		return errorResult(fmt.Sprintf("failed to start run: %v", err)), nil
	}

	return jsonResult(compactRun(run))
}

func (s *Server) handleStopRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if runID == "" {
		return errorResult("run_id is required"), nil
	}
	return jsonResult(model.StopRunResponse{ID: runID, WasActive: s.scheduler.Stop(runID)})
}

func (s *Server) handleListActiveRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runs := s.scheduler.ListActive()
	out := make([]map[string]any, len(runs))
	for i, run := range runs {
		out[i] = compactRun(run)
	}
	return jsonResult(map[string]any{"runs": out, "total": len(out)})
}

func (s *Server) handleListRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", 50)
	headers, err := s.scheduler.ListPersisted(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	total := len(headers)
	if limit > 0 && len(headers) > limit {
		headers = headers[:limit]
	}
	return jsonResult(map[string]any{"runs": headers, "total": total})
}

func (s *Server) handleListPredictions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	groups, err := s.predictions.List(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to list predictions: %v", err)), nil
	}
	out := make([]map[string]any, len(groups))
	for i, g := range groups {
		out[i] = compactGroup(g)
	}
	return jsonResult(map[string]any{"predictions": out, "total": len(out)})
}
