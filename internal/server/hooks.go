package server

import (
	"context"

	"github.com/ashita-ai/kumo/internal/model"
)

// EventHook receives every event published on the broker.
// Defined here (not in the root kumo package) to avoid a circular import:
// internal/server → kumo → internal/server would be a cycle.
// The root kumo package wraps kumo.EventHook into EventHook via an adapter.
//
// Hook methods are called asynchronously in goroutines. Implementations must not
// block indefinitely. Failures are logged and do not affect delivery to
// subscribers.
type EventHook interface {
	OnEvent(ctx context.Context, e model.Event) error
}
