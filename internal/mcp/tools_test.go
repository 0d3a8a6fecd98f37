package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kumo/internal/battery"
	"github.com/ashita-ai/kumo/internal/model"
	"github.com/ashita-ai/kumo/internal/service/playback"
	"github.com/ashita-ai/kumo/internal/service/predict"
	"github.com/ashita-ai/kumo/internal/service/synth"
	"github.com/ashita-ai/kumo/internal/storage"
	"github.com/ashita-ai/kumo/internal/testutil"
)

var (
	testStore     *storage.Store
	testScheduler *playback.Scheduler
	testPredict   *predict.Service
	testServer    *Server
)

func TestMain(m *testing.M) {
	os.Exit(setupAndRun(m))
}

func setupAndRun(m *testing.M) int {
	ctx := context.Background()
	logger := testutil.TestLogger()

	dir, err := os.MkdirTemp("", "kumo-mcp-test")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp test: temp dir: %v\n", err)
		return 1
	}
	defer func() { _ = os.RemoveAll(dir) }()

	kv, err := storage.OpenSQLite(ctx, filepath.Join(dir, "kumo.db"), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp test: open sqlite: %v\n", err)
		return 1
	}
	testStore = storage.New(kv, logger)
	defer testStore.Close(ctx)

	trajectories, err := storage.NewTrajectoryStore(testStore, storage.DefaultTrajectoryCacheSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp test: trajectory cache: %v\n", err)
		return 1
	}

	builder := synth.New(battery.Default(), synth.WithRandom(func() float64 { return 0.5 }))
	testScheduler = playback.New(builder, trajectories, testStore, nopSink{}, logger)
	defer func() { _ = testScheduler.Close(ctx) }()

	testPredict = predict.New(testStore, trajectories, nil, logger)
	testServer = New(testScheduler, testPredict, logger, "test")

	return m.Run()
}

type nopSink struct{}

func (nopSink) RunStarted(model.RunHeader)        {}
func (nopSink) Sample(string, model.SimDataPoint) {}
func (nopSink) RunEnded(string)                   {}

var launch = time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)

// importGroup stores a three-hour flight and returns its group id.
func importGroup(t *testing.T) string {
	t.Helper()
	pt := func(lat, alt float64, h int) model.PredictionAPIPoint {
		return model.PredictionAPIPoint{Latitude: lat, Longitude: 253.5, Altitude: alt, Datetime: launch.Add(time.Duration(h) * time.Hour)}
	}
	g, err := testPredict.Import(context.Background(), model.ImportPredictionsRequest{
		Responses: []model.PredictionRequestResponse{{
			Request: map[string]string{"profile": "standard_profile"},
			Response: model.PredictionAPIResponse{Prediction: []model.PredictionAPIStage{
				{Stage: "ascent", Trajectory: []model.PredictionAPIPoint{
					pt(35.0, 1500, 0), pt(35.1, 15000, 1), pt(35.2, 30000, 2),
				}},
				{Stage: "descent", Trajectory: []model.PredictionAPIPoint{pt(35.3, 1600, 3)}},
			}},
		}},
	})
	require.NoError(t, err)
	return g.ID
}

func callTool(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	}
}

// parseToolText returns the text of the first content block.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func decodeTool(t *testing.T, result *mcplib.CallToolResult, v any) {
	t.Helper()
	require.False(t, result.IsError, "unexpected tool error: %s", parseToolText(t, result))
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), v))
}

func TestStartRun_PlaysToCompletion(t *testing.T) {
	ctx := context.Background()
	groupID := importGroup(t)

	result, err := testServer.handleStartRun(ctx, callTool("kumo_start_run", map[string]any{
		"prediction_id":    groupID,
		"duration_minutes": 0.002,
		"start_time":       float64(1_700_000_000_000),
	}))
	require.NoError(t, err)

	var run map[string]any
	decodeTool(t, result, &run)
	runID, _ := run["id"].(string)
	require.NotEmpty(t, runID)
	assert.EqualValues(t, 1_700_000_000_000, run["start_time"])
	assert.EqualValues(t, 3, run["samples"])
	assert.Contains(t, run, "max_altitude_m")

	// Runs this short finish almost immediately.
	require.Eventually(t, func() bool {
		samples, err := testScheduler.FetchSamples(ctx, runID)
		return err == nil && len(samples) == 3 && testScheduler.ActiveCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	result, err = testServer.handleListRuns(ctx, callTool("kumo_list_runs", map[string]any{}))
	require.NoError(t, err)
	var listed struct {
		Runs  []model.RunHeader `json:"runs"`
		Total int               `json:"total"`
	}
	decodeTool(t, result, &listed)
	var found bool
	for _, h := range listed.Runs {
		if h.ID == runID {
			found = true
			assert.Equal(t, model.RunSourceSimulation, h.Source)
		}
	}
	assert.True(t, found, "run %s missing from kumo_list_runs", runID)
}

func TestStartRun_StopWhilePlaying(t *testing.T) {
	ctx := context.Background()
	groupID := importGroup(t)

	result, err := testServer.handleStartRun(ctx, callTool("kumo_start_run", map[string]any{
		"prediction_id":    groupID,
		"duration_minutes": 60.0,
	}))
	require.NoError(t, err)
	var run map[string]any
	decodeTool(t, result, &run)
	runID := run["id"].(string)

	result, err = testServer.handleListActiveRuns(ctx, callTool("kumo_list_active_runs", nil))
	require.NoError(t, err)
	var active struct {
		Runs []map[string]any `json:"runs"`
	}
	decodeTool(t, result, &active)
	ids := make([]string, 0, len(active.Runs))
	for _, r := range active.Runs {
		ids = append(ids, r["id"].(string))
	}
	assert.Contains(t, ids, runID)

	result, err = testServer.handleStopRun(ctx, callTool("kumo_stop_run", map[string]any{"run_id": runID}))
	require.NoError(t, err)
	var stopped model.StopRunResponse
	decodeTool(t, result, &stopped)
	assert.Equal(t, runID, stopped.ID)
	assert.True(t, stopped.WasActive)

	// Second stop is a no-op.
	result, err = testServer.handleStopRun(ctx, callTool("kumo_stop_run", map[string]any{"run_id": runID}))
	require.NoError(t, err)
	decodeTool(t, result, &stopped)
	assert.False(t, stopped.WasActive)
}

func TestStartRun_Errors(t *testing.T) {
	ctx := context.Background()
	groupID := importGroup(t)

	tests := []struct {
		name    string
		args    map[string]any
		wantMsg string
	}{
		{"missing prediction", map[string]any{"duration_minutes": 5.0}, "prediction_id"},
		{"zero duration", map[string]any{"prediction_id": groupID, "duration_minutes": 0.0}, "duration_minutes"},
		{"too long", map[string]any{"prediction_id": groupID, "duration_minutes": float64(model.MaxDurationMinutes + 1)}, "duration_minutes"},
		{"unknown prediction", map[string]any{"prediction_id": "does-not-exist", "duration_minutes": 5.0}, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := testServer.handleStartRun(ctx, callTool("kumo_start_run", tt.args))
			require.NoError(t, err, "tool failures are reported in the result")
			assert.True(t, result.IsError)
			assert.Contains(t, parseToolText(t, result), tt.wantMsg)
		})
	}
}

func TestStopRun_MissingID(t *testing.T) {
	result, err := testServer.handleStopRun(context.Background(), callTool("kumo_stop_run", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "run_id")
}

func TestListPredictions(t *testing.T) {
	ctx := context.Background()
	groupID := importGroup(t)

	result, err := testServer.handleListPredictions(ctx, callTool("kumo_list_predictions", nil))
	require.NoError(t, err)

	var listed struct {
		Predictions []map[string]any `json:"predictions"`
		Total       int              `json:"total"`
	}
	decodeTool(t, result, &listed)
	assert.Equal(t, len(listed.Predictions), listed.Total)

	var group map[string]any
	for _, g := range listed.Predictions {
		if g["id"] == groupID {
			group = g
		}
	}
	require.NotNil(t, group, "imported group missing")
	assert.EqualValues(t, 1, group["predictions"])
	assert.NotContains(t, group, "points", "point arrays are not listed")
	assert.Contains(t, group, "landing")
}

func TestListRuns_Limit(t *testing.T) {
	ctx := context.Background()
	groupID := importGroup(t)
	for range 2 {
		_, err := testScheduler.Start(ctx, groupID, 0.002, 0)
		require.NoError(t, err)
	}

	result, err := testServer.handleListRuns(ctx, callTool("kumo_list_runs", map[string]any{"limit": float64(1)}))
	require.NoError(t, err)
	var listed struct {
		Runs  []model.RunHeader `json:"runs"`
		Total int               `json:"total"`
	}
	decodeTool(t, result, &listed)
	assert.Len(t, listed.Runs, 1)
	assert.GreaterOrEqual(t, listed.Total, 2)
}

func TestToolsList_OverJSONRPC(t *testing.T) {
	msg := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp := testServer.MCPServer().HandleMessage(context.Background(), msg)
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range []string{
		"kumo_start_run", "kumo_stop_run", "kumo_list_active_runs", "kumo_list_runs", "kumo_list_predictions",
	} {
		assert.Contains(t, string(data), `"`+name+`"`)
	}
}
