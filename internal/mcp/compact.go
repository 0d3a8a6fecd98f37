package mcp

import (
	"math"

	"github.com/ashita-ai/kumo/internal/model"
)

// compactRun returns a minimal representation of a run for MCP responses.
// Samples and wait times are summarised; a full run can carry tens of
// thousands of points that an agent never reads.
func compactRun(r model.SimulationRun) map[string]any {
	m := map[string]any{
		"id":          r.ID,
		"start_time":  r.StartTime,
		"multiple":    r.Multiple,
		"samples":     len(r.DataPoints),
		"playback_ms": playbackMillis(r.WaitTimes),
	}
	if n := len(r.DataPoints); n > 0 {
		first, last := r.DataPoints[0], r.DataPoints[n-1]
		m["launch"] = round3(first.Position)
		m["landing"] = round3(last.Position)
		m["max_altitude_m"] = math.Round(maxAltitude(r.DataPoints))
	}
	return m
}

// compactGroup summarises a prediction group without its point arrays.
func compactGroup(g model.PredictionGroup) map[string]any {
	m := map[string]any{
		"id":              g.ID,
		"predictions":     len(g.Predictions),
		"min_distance_mi": round(g.MinDistance, 1),
		"max_distance_mi": round(g.MaxDistance, 1),
		"created_at":      g.CreatedAt,
	}
	if len(g.Predictions) > 0 {
		p := g.Predictions[0]
		m["launch"] = round3(p.StartPoint)
		m["landing"] = round3(p.EndPoint)
		if n := len(p.Times); n > 1 {
			m["flight_minutes"] = round(p.Times[n-1].Sub(p.Times[0]).Minutes(), 1)
		}
	}
	return m
}

func playbackMillis(waits []int64) int64 {
	var total int64
	for _, w := range waits {
		total += w
	}
	return total
}

func maxAltitude(points []model.SimDataPoint) float64 {
	hi := math.Inf(-1)
	for _, p := range points {
		hi = max(hi, p.Position.Alt)
	}
	return hi
}

// round3 trims a position to roughly 100 m of horizontal precision.
func round3(p model.TrajectoryPoint) model.TrajectoryPoint {
	return model.TrajectoryPoint{Lat: round(p.Lat, 3), Lng: round(p.Lng, 3), Alt: math.Round(p.Alt)}
}

func round(v float64, places int) float64 {
	f := math.Pow10(places)
	return math.Round(v*f) / f
}
