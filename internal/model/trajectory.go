package model

import "time"

// TrajectoryPoint is a single position fix. Alt is metres above sea level.
type TrajectoryPoint struct {
	Lat float64 `json:"lat" msgpack:"lat"`
	Lng float64 `json:"lng" msgpack:"lng"`
	Alt float64 `json:"alt" msgpack:"alt"`
}

// TrajectorySample pairs a position with its original (predicted) timestamp.
type TrajectorySample struct {
	Point TrajectoryPoint
	Time  time.Time
}

// Trajectory is an ordered sequence of samples with non-decreasing times.
type Trajectory []TrajectorySample
