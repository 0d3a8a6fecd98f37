package model

import (
	"fmt"
	"math"
	"time"
)

// Request limits.
const (
	MaxDurationMinutes     = 24 * 60
	MaxPredictionsPerGroup = 256
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeInvalidTrajectory = "INVALID_TRAJECTORY"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeUnavailable       = "UNAVAILABLE"
)

// StartRunRequest is the request body for POST /v1/runs.
type StartRunRequest struct {
	PredictionID    string  `json:"prediction_id"`
	DurationMinutes float64 `json:"duration_minutes"`
	// StartTime is the operator's wall-clock start in unix milliseconds.
	// Zero means "now".
	StartTime int64 `json:"start_time,omitempty"`
}

// Validate checks field presence and ranges.
func (r StartRunRequest) Validate() error {
	if r.PredictionID == "" {
		return fmt.Errorf("prediction_id is required")
	}
	if math.IsNaN(r.DurationMinutes) || r.DurationMinutes <= 0 {
		return fmt.Errorf("duration_minutes must be positive")
	}
	if r.DurationMinutes > MaxDurationMinutes {
		return fmt.Errorf("duration_minutes must not exceed %d", MaxDurationMinutes)
	}
	return nil
}

// StartRunResponse is returned by POST /v1/runs. Samples are not inlined;
// clients receive them over the event stream as playback proceeds.
type StartRunResponse struct {
	ID        string  `json:"id"`
	StartTime int64   `json:"start_time"`
	Multiple  float64 `json:"multiple"`
	Samples   int     `json:"samples"`
	WaitTimes []int64 `json:"wait_times"`
}

// ActiveRun summarises a playing run for GET /v1/runs/active.
type ActiveRun struct {
	ID        string  `json:"id"`
	StartTime int64   `json:"start_time"`
	Multiple  float64 `json:"multiple"`
	Samples   int     `json:"samples"`
}

// ImportPredictionsRequest is the body for POST /v1/predictions. Exactly one
// of Group or Responses must be set.
type ImportPredictionsRequest struct {
	Group     *PredictionGroup            `json:"group,omitempty"`
	Responses []PredictionRequestResponse `json:"responses,omitempty"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Store       string `json:"store"`
	ActiveRuns  int    `json:"active_runs"`
	Subscribers int    `json:"subscribers"`
	Uptime      int64  `json:"uptime_seconds"`
}

// SamplePage is a page of flat records from GET /v1/runs/{id}/samples?format=flat.
// Next is the index to pass as "from" for the following page, or -1 when
// the run has no more records.
type SamplePage struct {
	Records []TelemetryRecord `json:"records"`
	Next    int               `json:"next"`
}

// StopRunResponse is returned by POST /v1/runs/{id}/stop.
type StopRunResponse struct {
	ID string `json:"id"`
	// WasActive is false when the run had already finished or never existed.
	WasActive bool `json:"was_active"`
}
