package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kumo/internal/model"
	"github.com/ashita-ai/kumo/internal/telemetry"
)

// subscriberBuffer is the per-subscriber queue depth. A burst larger than
// this is dropped for that subscriber only.
const subscriberBuffer = 256

// message is one broker event, encoded once and shared by every transport.
type message struct {
	eventType model.EventType
	runID     string
	payload   []byte // JSON-encoded model.Event
}

// matches reports whether m passes a subscriber's run filter. Events with
// no run (ground_position, prediction_added) always pass.
func (m message) matches(runID string) bool {
	return runID == "" || m.runID == "" || m.runID == runID
}

// Broker fans run, telemetry and prediction events out to every connected
// SSE and WebSocket subscriber, and to registered hooks. It implements
// playback.Sink, so the scheduler delivers straight into it.
type Broker struct {
	logger *slog.Logger
	hooks  []EventHook

	mu          sync.RWMutex
	subscribers map[chan message]struct{}
	closed      bool

	dropped atomic.Int64
}

// NewBroker creates a Broker. Hooks are invoked asynchronously for every
// published event.
func NewBroker(logger *slog.Logger, hooks ...EventHook) *Broker {
	b := &Broker{
		logger:      logger,
		hooks:       hooks,
		subscribers: make(map[chan message]struct{}),
	}
	b.registerMetrics()
	return b
}

// RunStarted implements playback.Sink.
func (b *Broker) RunStarted(h model.RunHeader) {
	b.Publish(model.Event{Type: model.EventRunStarted, RunID: h.ID, Data: h})
}

// Sample implements playback.Sink.
func (b *Broker) Sample(runID string, p model.SimDataPoint) {
	b.Publish(model.Event{Type: model.EventSample, RunID: runID, Data: p})
}

// RunEnded implements playback.Sink.
func (b *Broker) RunEnded(runID string) {
	b.Publish(model.Event{Type: model.EventRunEnded, RunID: runID})
}

// Publish encodes e and delivers it to all subscribers without blocking.
func (b *Broker) Publish(e model.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("broker: encode event", "type", e.Type, "run_id", e.RunID, "error", err)
		return
	}
	b.broadcast(message{eventType: e.Type, runID: e.RunID, payload: payload})
	b.fireHooks(e)
}

// Subscribe returns a channel that receives every subsequent event.
// The caller must call Unsubscribe when done. The channel is closed by
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan message {
	ch := make(chan message, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Close disconnects every subscriber. Later subscriptions get a closed
// channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// SubscriberCount reports the number of connected subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// broadcast sends an event to all subscribers. Subscribers with a full
// buffer miss the event rather than stall the playback goroutines.
func (b *Broker) broadcast(m message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- m:
		default:
			b.dropped.Add(1)
		}
	}
}

// hookTimeout bounds a single hook call.
const hookTimeout = 10 * time.Second

func (b *Broker) fireHooks(e model.Event) {
	for _, hook := range b.hooks {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
			defer cancel()
			if err := hook.OnEvent(ctx, e); err != nil {
				b.logger.Warn("broker: event hook failed", "type", e.Type, "run_id", e.RunID, "error", err)
			}
		}()
	}
}

func (b *Broker) registerMetrics() {
	meter := telemetry.Meter("kumo/broker")
	_, _ = meter.Int64ObservableGauge("kumo.broker.subscribers",
		metric.WithDescription("Connected SSE and WebSocket subscribers"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(b.SubscriberCount()))
			return nil
		}),
	)
	_, _ = meter.Int64ObservableCounter("kumo.broker.dropped",
		metric.WithDescription("Events dropped for slow subscribers"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(b.dropped.Load())
			return nil
		}),
	)
}

// formatSSE formats a message as a Server-Sent Events frame.
func formatSSE(m message) []byte {
	// SSE format: "event: <type>\ndata: <payload>\n\n"
	out := make([]byte, 0, len(m.eventType)+len(m.payload)+16)
	out = append(out, "event: "...)
	out = append(out, m.eventType...)
	out = append(out, "\ndata: "...)
	out = append(out, m.payload...)
	return append(out, "\n\n"...)
}
