package mcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/kumo/internal/model"
)

func TestCompactRun(t *testing.T) {
	r := model.SimulationRun{
		ID:        "run-1",
		StartTime: 1000,
		Multiple:  18,
		WaitTimes: []int64{250, 250, 500},
		DataPoints: []model.SimDataPoint{
			{Position: model.TrajectoryPoint{Lat: 35.12345, Lng: -106.54321, Alt: 1500.4}},
			{Position: model.TrajectoryPoint{Lat: 35.2, Lng: -106.5, Alt: 30123.6}},
			{Position: model.TrajectoryPoint{Lat: 35.3, Lng: -106.4, Alt: 1600}},
		},
	}

	m := compactRun(r)

	assert.Equal(t, "run-1", m["id"])
	assert.Equal(t, 3, m["samples"])
	assert.Equal(t, int64(1000), m["playback_ms"])
	assert.Equal(t, 30124.0, m["max_altitude_m"])
	assert.Equal(t, model.TrajectoryPoint{Lat: 35.123, Lng: -106.543, Alt: 1500}, m["launch"])
	assert.Equal(t, model.TrajectoryPoint{Lat: 35.3, Lng: -106.4, Alt: 1600}, m["landing"])
	assert.NotContains(t, m, "data_points")
	assert.NotContains(t, m, "wait_times")
}

func TestCompactRun_Empty(t *testing.T) {
	m := compactRun(model.SimulationRun{ID: "empty"})
	assert.Equal(t, 0, m["samples"])
	assert.NotContains(t, m, "launch")
	assert.NotContains(t, m, "max_altitude_m")
}

func TestCompactGroup(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	g := model.PredictionGroup{
		ID:          "g-1",
		MinDistance: 6.8734,
		MaxDistance: 20.651,
		Predictions: []model.Prediction{{
			StartPoint: model.TrajectoryPoint{Lat: 35, Lng: -106.5, Alt: 1500},
			EndPoint:   model.TrajectoryPoint{Lat: 35.1, Lng: -106.5},
			Times:      []time.Time{t0, t0.Add(time.Hour), t0.Add(135 * time.Minute)},
		}},
	}

	m := compactGroup(g)

	assert.Equal(t, "g-1", m["id"])
	assert.Equal(t, 1, m["predictions"])
	assert.Equal(t, 6.9, m["min_distance_mi"])
	assert.Equal(t, 20.7, m["max_distance_mi"])
	assert.Equal(t, 135.0, m["flight_minutes"])
	assert.Equal(t, model.TrajectoryPoint{Lat: 35.1, Lng: -106.5}, m["landing"])
}
