package model

import (
	"fmt"
	"time"
)

// PredictionGroup is a set of flight-path predictions produced by one
// request (or one parameter sweep) against the external predictor.
type PredictionGroup struct {
	ID          string       `json:"id" msgpack:"id"`
	Predictions []Prediction `json:"predictions" msgpack:"predictions"`
	// MinDistance and MaxDistance are launch-to-landing distances in miles
	// across the group's predictions.
	MinDistance float64   `json:"min_distance" msgpack:"min_distance"`
	MaxDistance float64   `json:"max_distance" msgpack:"max_distance"`
	CreatedAt   time.Time `json:"created_at" msgpack:"created_at"`
}

// Prediction is one predicted flight path. Points carries a trailing
// ground-level point that has no matching entry in Times.
type Prediction struct {
	ID         string            `json:"id" msgpack:"id"`
	Request    map[string]string `json:"request,omitempty" msgpack:"request,omitempty"`
	Points     []TrajectoryPoint `json:"points" msgpack:"points"`
	Times      []time.Time       `json:"times" msgpack:"times"`
	StartPoint TrajectoryPoint   `json:"start_point" msgpack:"start_point"`
	EndPoint   TrajectoryPoint   `json:"end_point" msgpack:"end_point"`
}

// Trajectory pairs points with times after trimming the final element of
// each array, which upstream reserves for the synthetic ground point.
func (p Prediction) Trajectory() (Trajectory, error) {
	if len(p.Points) == 0 || len(p.Times) == 0 {
		return nil, fmt.Errorf("prediction %s: no points", p.ID)
	}
	points := p.Points[:len(p.Points)-1]
	times := p.Times[:len(p.Times)-1]
	n := min(len(points), len(times))
	out := make(Trajectory, n)
	for i := range n {
		out[i] = TrajectorySample{Point: points[i], Time: times[i]}
	}
	return out, nil
}

// PredictionAPIPoint is one trajectory point as returned by the predictor.
// Longitudes are in [0, 360).
type PredictionAPIPoint struct {
	Altitude  float64   `json:"altitude"`
	Datetime  time.Time `json:"datetime"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// PredictionAPIStage is the ascent or descent leg of a prediction.
type PredictionAPIStage struct {
	Stage      string               `json:"stage"`
	Trajectory []PredictionAPIPoint `json:"trajectory"`
}

// PredictionAPIResponse is the predictor's response body.
type PredictionAPIResponse struct {
	Prediction []PredictionAPIStage `json:"prediction"`
}

// PredictionRequestResponse pairs a predictor request with its response.
type PredictionRequestResponse struct {
	Request  map[string]string     `json:"request"`
	Response PredictionAPIResponse `json:"response"`
}
