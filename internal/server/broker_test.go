package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ashita-ai/kumo/internal/model"
)

// testLogger returns a logger for tests that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func receive(t *testing.T, name string, ch chan message) message {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed", name)
		}
		return m
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("%s: timed out waiting for event", name)
	}
	return message{}
}

func TestBrokerFanOut(t *testing.T) {
	broker := NewBroker(testLogger())

	ch1 := broker.Subscribe()
	ch2 := broker.Subscribe()
	if n := broker.SubscriberCount(); n != 2 {
		t.Fatalf("SubscriberCount = %d, want 2", n)
	}

	broker.RunStarted(model.RunHeader{ID: "run-1", Multiple: 2})

	for name, ch := range map[string]chan message{"ch1": ch1, "ch2": ch2} {
		m := receive(t, name, ch)
		if m.eventType != model.EventRunStarted || m.runID != "run-1" {
			t.Errorf("%s: got %s/%s, want run_started/run-1", name, m.eventType, m.runID)
		}
	}

	// Unsubscribe ch1, publish again; only ch2 should receive.
	broker.Unsubscribe(ch1)
	if _, ok := <-ch1; ok {
		t.Error("ch1 should be closed after Unsubscribe")
	}
	broker.Sample("run-1", model.SimDataPoint{RunID: "run-1", Time: 42})

	m := receive(t, "ch2", ch2)
	var e struct {
		Type  model.EventType    `json:"type"`
		RunID string             `json:"run_id"`
		Data  model.SimDataPoint `json:"data"`
	}
	if err := json.Unmarshal(m.payload, &e); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if e.Type != model.EventSample || e.RunID != "run-1" || e.Data.Time != 42 {
		t.Errorf("payload = %+v, want sample for run-1 at 42", e)
	}

	broker.Unsubscribe(ch2)
	broker.Unsubscribe(ch2) // second call is a no-op
}

func TestFormatSSE(t *testing.T) {
	got := string(formatSSE(message{eventType: model.EventRunEnded, payload: []byte(`{"type":"run_ended","run_id":"r"}`)}))
	want := "event: run_ended\ndata: {\"type\":\"run_ended\",\"run_id\":\"r\"}\n\n"
	if got != want {
		t.Errorf("formatSSE: got %q, want %q", got, want)
	}
}

func TestMessageMatches(t *testing.T) {
	tests := []struct {
		msgRun, filter string
		want           bool
	}{
		{"a", "", true},
		{"a", "a", true},
		{"a", "b", false},
		{"", "b", true},
	}
	for _, tt := range tests {
		if got := (message{runID: tt.msgRun}).matches(tt.filter); got != tt.want {
			t.Errorf("message{run %q}.matches(%q) = %v, want %v", tt.msgRun, tt.filter, got, tt.want)
		}
	}
}

func TestBrokerSlowSubscriber(t *testing.T) {
	broker := NewBroker(testLogger())

	slow := broker.Subscribe()
	fast := broker.Subscribe()

	// Fill the slow subscriber's buffer, draining fast as we go.
	for i := range subscriberBuffer + 10 {
		broker.Sample("run-1", model.SimDataPoint{Time: int64(i)})
		<-fast
	}

	broker.RunEnded("run-1")
	if m := receive(t, "fast", fast); m.eventType != model.EventRunEnded {
		t.Errorf("fast: got %s, want run_ended", m.eventType)
	}
	if got := broker.dropped.Load(); got != 11 {
		t.Errorf("dropped = %d, want 11", got)
	}
	if got := len(slow); got != subscriberBuffer {
		t.Errorf("slow buffer = %d, want %d", got, subscriberBuffer)
	}

	broker.Unsubscribe(slow)
	broker.Unsubscribe(fast)
}

func TestBrokerClose(t *testing.T) {
	broker := NewBroker(testLogger())
	ch := broker.Subscribe()

	broker.Close()
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed by Close")
	}
	if n := broker.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount after Close = %d, want 0", n)
	}

	late := broker.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed immediately")
	}
	broker.Unsubscribe(late)

	// Publishing after Close must not panic.
	broker.Publish(model.Event{Type: model.EventPredictionAdded})
}

type recordingHook struct {
	mu     sync.Mutex
	events []model.Event
	done   chan struct{}
}

func (h *recordingHook) OnEvent(_ context.Context, e model.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	if len(h.events) == 2 {
		close(h.done)
	}
	return nil
}

func TestBrokerHooks(t *testing.T) {
	hook := &recordingHook{done: make(chan struct{})}
	broker := NewBroker(testLogger(), hook)

	broker.RunStarted(model.RunHeader{ID: "run-1"})
	broker.RunEnded("run-1")

	select {
	case <-hook.done:
	case <-time.After(time.Second):
		t.Fatal("hook did not receive both events")
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()
	seen := map[model.EventType]bool{}
	for _, e := range hook.events {
		seen[e.Type] = true
	}
	if !seen[model.EventRunStarted] || !seen[model.EventRunEnded] {
		t.Errorf("hook events = %+v, want run_started and run_ended", hook.events)
	}
}
