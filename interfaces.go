package kumo

import (
	"context"
	"net/http"
)

// EventHook receives every event the server publishes.
// Multiple hooks may be registered via multiple WithEventHook calls.
// Hook methods run in goroutines; they must not block indefinitely.
// Failures are logged but never affect playback.
type EventHook interface {
	OnEvent(ctx context.Context, e Event) error
}

// Middleware wraps the API mux.
// Applied inside request ID, tracing and recovery, so it sees every routed
// request including /health. Multiple middlewares are applied in
// registration order (first-registered = outermost).
type Middleware func(http.Handler) http.Handler
