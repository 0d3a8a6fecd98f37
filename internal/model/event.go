package model

// EventType names a message delivered to stream subscribers.
type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventSample          EventType = "sample"
	EventRunEnded        EventType = "run_ended"
	EventTelemetry       EventType = "telemetry"
	EventGroundPosition  EventType = "ground_position"
	EventPredictionAdded EventType = "prediction_added"
)

// Event is the envelope published to subscribers. Consumers dispatch on
// RunID, since samples from concurrent runs interleave on the same stream.
type Event struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id,omitempty"`
	Data  any       `json:"data,omitempty"`
}
