package predict_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kumo/internal/model"
	"github.com/ashita-ai/kumo/internal/service/predict"
	"github.com/ashita-ai/kumo/internal/storage"
	"github.com/ashita-ai/kumo/internal/testutil"
)

var launch = time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)

func apiPoint(lat, lng, alt float64, offset time.Duration) model.PredictionAPIPoint {
	return model.PredictionAPIPoint{Latitude: lat, Longitude: lng, Altitude: alt, Datetime: launch.Add(offset)}
}

// response builds a two-stage predictor response that lands dLat degrees
// north of the launch site.
func response(dLat float64) model.PredictionRequestResponse {
	return model.PredictionRequestResponse{
		Request: map[string]string{"profile": "standard_profile"},
		Response: model.PredictionAPIResponse{Prediction: []model.PredictionAPIStage{
			{Stage: "ascent", Trajectory: []model.PredictionAPIPoint{
				apiPoint(35.0, 253.5, 1500, 0),
				apiPoint(35.0+dLat/2, 253.5, 30000, time.Hour),
			}},
			{Stage: "descent", Trajectory: []model.PredictionAPIPoint{
				apiPoint(35.0+dLat, 253.5, 1600, 2*time.Hour),
			}},
		}},
	}
}

func TestFromResponses_ConvertsLikeTheProcessor(t *testing.T) {
	g, err := predict.FromResponses([]model.PredictionRequestResponse{response(0.1)}, launch)
	require.NoError(t, err)
	require.Len(t, g.Predictions, 1)

	p := g.Predictions[0]
	assert.NotEmpty(t, g.ID)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "standard_profile", p.Request["profile"])

	// Three trajectory points plus the repeated ground point.
	require.Len(t, p.Points, 4)
	require.Len(t, p.Times, 3)
	assert.InDelta(t, -106.5, p.Points[0].Lng, 1e-9)
	assert.InDelta(t, 30000.0, p.Points[1].Alt, 1e-9)
	assert.Zero(t, p.Points[2].Alt, "landing point forced to ground")
	assert.Equal(t, p.Points[2], p.Points[3])
	assert.Equal(t, p.Points[0], p.StartPoint)
	assert.Equal(t, p.Points[3], p.EndPoint)

	// 0.1° of latitude is about 6.9 miles.
	assert.InDelta(t, 6.9, g.MinDistance, 0.05)
	assert.Equal(t, g.MinDistance, g.MaxDistance)

	traj, err := p.Trajectory()
	require.NoError(t, err)
	assert.Len(t, traj, 2)
}

func TestFromResponses_DistanceRange(t *testing.T) {
	g, err := predict.FromResponses([]model.PredictionRequestResponse{response(0.1), response(0.3), response(0.2)}, launch)
	require.NoError(t, err)
	assert.Len(t, g.Predictions, 3)
	assert.Less(t, g.MinDistance, g.MaxDistance)
	assert.InDelta(t, 20.7, g.MaxDistance, 0.1)
}

func TestFromResponses_RejectsShortTrajectory(t *testing.T) {
	rr := response(0.1)
	rr.Response.Prediction = rr.Response.Prediction[1:]
	_, err := predict.FromResponses([]model.PredictionRequestResponse{rr}, launch)
	assert.ErrorIs(t, err, predict.ErrInvalidPrediction)
}

type recorder struct {
	mu          sync.Mutex
	events      []model.Event
	invalidated []string
}

func (r *recorder) Publish(e model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Invalidate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, id)
}

func newService(t *testing.T) (*predict.Service, *recorder) {
	t.Helper()
	ctx := context.Background()
	kv, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "kumo.db"), testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close(ctx) })
	rec := &recorder{}
	return predict.New(storage.New(kv, testutil.TestLogger()), rec, rec, testutil.TestLogger()), rec
}

func TestService_ImportListDelete(t *testing.T) {
	ctx := context.Background()
	svc, rec := newService(t)

	g, err := svc.Import(ctx, model.ImportPredictionsRequest{Responses: []model.PredictionRequestResponse{response(0.1)}})
	require.NoError(t, err)

	require.Len(t, rec.events, 1)
	assert.Equal(t, model.EventPredictionAdded, rec.events[0].Type)

	got, err := svc.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Predictions[0].ID, got.Predictions[0].ID)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, g.ID))
	assert.Contains(t, rec.invalidated, g.ID)
	_, err = svc.Get(ctx, g.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, g.ID), storage.ErrNotFound)
}

func TestService_ImportGroupDirectly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	g, err := svc.Import(ctx, model.ImportPredictionsRequest{Group: &model.PredictionGroup{
		ID: "fixed",
		Predictions: []model.Prediction{{
			Points: []model.TrajectoryPoint{{Lat: 35, Lng: -106}, {Lat: 35.1, Lng: -106}},
			Times:  []time.Time{launch},
		}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "fixed", g.ID)
	assert.NotEmpty(t, g.Predictions[0].ID)
	assert.False(t, g.CreatedAt.IsZero())
	assert.Greater(t, g.MaxDistance, 0.0)
}

func TestService_ImportValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	cases := map[string]model.ImportPredictionsRequest{
		"empty": {},
		"both": {
			Group:     &model.PredictionGroup{Predictions: []model.Prediction{{Points: []model.TrajectoryPoint{{}}}}},
			Responses: []model.PredictionRequestResponse{response(0.1)},
		},
		"no predictions": {Group: &model.PredictionGroup{}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Import(ctx, req)
			assert.ErrorIs(t, err, predict.ErrInvalidPrediction)
		})
	}
}
