package kumo

import "net/http"

// StoreKind selects the key-value backend.
type StoreKind string

const (
	// StoreSQLite keeps everything in a single local file. It is the default.
	StoreSQLite StoreKind = "sqlite"
	// StorePostgres stores keys in a Postgres table, for deployments that
	// already run one.
	StorePostgres StoreKind = "postgres"
)

// EventType names a lifecycle or telemetry event.
type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventSample          EventType = "sample"
	EventRunEnded        EventType = "run_ended"
	EventTelemetry       EventType = "telemetry"
	EventGroundPosition  EventType = "ground_position"
	EventPredictionAdded EventType = "prediction_added"
)

// Event is the public form of an event published to dashboards.
// It carries no internal types; Data is the JSON-ready payload (a sample,
// a run header, a telemetry record, a ground position or a prediction
// group) and is nil for run_ended.
type Event struct {
	Type  EventType
	RunID string // empty for events not tied to a run
	Data  any
}

// Route is an additional handler mounted on the server's mux. Pattern uses
// net/http ServeMux syntax, e.g. "GET /v1/custom/{id}".
type Route struct {
	Pattern string
	Handler http.Handler
}
