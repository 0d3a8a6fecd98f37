// Package playback owns the set of active simulation runs and drives their
// timed emission. Each run plays on its own goroutine, persists every sample
// it emits, and reports lifecycle events to a Sink.
package playback

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kumo/internal/model"
	"github.com/ashita-ai/kumo/internal/storage"
	"github.com/ashita-ai/kumo/internal/telemetry"
)

var (
	// ErrTrajectoryNotFound means the requested prediction is not stored.
	ErrTrajectoryNotFound = errors.New("playback: trajectory not found")
	// ErrUnknownRun means no persisted run has the given id.
	ErrUnknownRun = errors.New("playback: unknown run")
	// ErrTooManyRuns means the active-run limit is reached.
	ErrTooManyRuns = errors.New("playback: too many active runs")
	// ErrClosed means the scheduler has been shut down.
	ErrClosed = errors.New("playback: scheduler closed")
)

// Sink receives run lifecycle events. Calls are fire-and-forget and come
// from many playback goroutines at once, so implementations must be safe for
// concurrent use and must not block. Sink methods must not call Stop or
// Delete on the scheduler that invoked them.
type Sink interface {
	RunStarted(h model.RunHeader)
	Sample(runID string, p model.SimDataPoint)
	RunEnded(runID string)
}

// TrajectorySource resolves a prediction group id to a trimmed trajectory.
// A missing group is reported as storage.ErrNotFound.
type TrajectorySource interface {
	Get(ctx context.Context, groupID string) (model.Trajectory, error)
}

// Builder turns a trajectory into a complete run.
type Builder interface {
	Build(samples model.Trajectory, durationMinutes float64, runID string, startTime int64) (model.SimulationRun, error)
}

// RunStore is the persistence the scheduler writes through. *storage.Store
// satisfies it.
type RunStore interface {
	PutRunHeader(ctx context.Context, h model.RunHeader) error
	GetRunHeader(ctx context.Context, id string) (model.RunHeader, error)
	ListRunHeaders(ctx context.Context) ([]model.RunHeader, error)
	PutSample(ctx context.Context, runID string, index int, p model.SimDataPoint) error
	ListSamples(ctx context.Context, runID string) ([]model.SimDataPoint, error)
	DeleteRun(ctx context.Context, id string) (int64, error)
}

// handle is the active-table entry for one playing run.
type handle struct {
	run    model.SimulationRun
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns the active-run table.
type Scheduler struct {
	builder      Builder
	trajectories TrajectorySource
	store        RunStore
	sink         Sink
	logger       *slog.Logger
	maxActive    int
	newID        func() string
	now          func() time.Time

	// base parents every run context. Runs are not tied to the request
	// that started them.
	base       context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	active map[string]*handle
	closed bool

	runsStarted   metric.Int64Counter
	samplesSent   metric.Int64Counter
	persistErrors metric.Int64Counter
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxActive caps the number of concurrently playing runs. Zero means
// unlimited.
func WithMaxActive(n int) Option {
	return func(s *Scheduler) { s.maxActive = n }
}

// WithIDGenerator overrides run id generation (random UUIDs by default).
func WithIDGenerator(f func() string) Option {
	return func(s *Scheduler) { s.newID = f }
}

// WithClock overrides the clock used for a default start time.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler. Call Close to stop all runs.
func New(builder Builder, trajectories TrajectorySource, store RunStore, sink Sink, logger *slog.Logger, opts ...Option) *Scheduler {
	base, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		builder:      builder,
		trajectories: trajectories,
		store:        store,
		sink:         sink,
		logger:       logger,
		newID:        func() string { return uuid.NewString() },
		now:          time.Now,
		base:         base,
		cancelBase:   cancel,
		active:       make(map[string]*handle),
	}
	for _, o := range opts {
		o(s)
	}
	s.registerMetrics()
	return s
}

// Start builds a run from the stored trajectory of predictionID and begins
// playing it. startTime is unix milliseconds; zero means now. The returned
// run is owned by the scheduler and must not be modified.
func (s *Scheduler) Start(ctx context.Context, predictionID string, durationMinutes float64, startTime int64) (model.SimulationRun, error) {
	traj, err := s.trajectories.Get(ctx, predictionID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.SimulationRun{}, fmt.Errorf("%w: %s", ErrTrajectoryNotFound, predictionID)
	}
	if err != nil {
		return model.SimulationRun{}, fmt.Errorf("playback: load trajectory %s: %w", predictionID, err)
	}

	if startTime == 0 {
		startTime = s.now().UnixMilli()
	}
	id := s.newID()
	if err := storage.ValidateRunID(id); err != nil {
		return model.SimulationRun{}, fmt.Errorf("playback: %w", err)
	}
	run, err := s.builder.Build(traj, durationMinutes, id, startTime)
	if err != nil {
		return model.SimulationRun{}, err
	}

	h, err := s.register(run)
	if err != nil {
		return model.SimulationRun{}, err
	}

	header := run.Header()
	s.sink.RunStarted(header)
	if err := s.store.PutRunHeader(ctx, header); err != nil {
		s.removeIfPresent(h)
		h.cancel()
		close(h.done)
		s.wg.Done()
		s.sink.RunEnded(run.ID)
		return model.SimulationRun{}, fmt.Errorf("playback: persist run %s: %w", run.ID, err)
	}

	s.runsStarted.Add(ctx, 1)
	s.logger.Info("playback: run started",
		"run_id", run.ID,
		"prediction_id", predictionID,
		"samples", len(run.DataPoints),
		"duration_minutes", durationMinutes,
		"multiple", run.Multiple,
	)
	go s.play(h)
	return run, nil
}

// register inserts a handle into the active table. The WaitGroup slot is
// taken under the lock so Close never waits on a half-registered run.
func (s *Scheduler) register(run model.SimulationRun) (*handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.maxActive > 0 && len(s.active) >= s.maxActive {
		return nil, fmt.Errorf("%w (limit %d)", ErrTooManyRuns, s.maxActive)
	}
	if _, dup := s.active[run.ID]; dup {
		return nil, fmt.Errorf("playback: run %s already active", run.ID)
	}
	ctx, cancel := context.WithCancel(s.base)
	h := &handle{run: run, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	s.active[run.ID] = h
	s.wg.Add(1)
	return h, nil
}

// removeIfPresent deletes h from the active table if it is still the entry
// for its id. It reports whether this call did the removal.
func (s *Scheduler) removeIfPresent(h *handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.active[h.run.ID]; ok && cur == h {
		delete(s.active, h.run.ID)
		return true
	}
	return false
}

// Stop cancels a playing run and waits for its loop to exit, so no further
// samples of that run are delivered or persisted once Stop returns. Unknown
// or finished ids are ignored; the result reports whether the run was playing.
func (s *Scheduler) Stop(runID string) bool {
	s.mu.Lock()
	h := s.active[runID]
	s.mu.Unlock()
	if h == nil {
		return false
	}
	s.removeIfPresent(h)
	h.cancel()
	<-h.done
	s.logger.Info("playback: run stopped", "run_id", runID)
	return true
}

// ListActive returns a snapshot of the playing runs ordered by start time.
func (s *Scheduler) ListActive() []model.SimulationRun {
	s.mu.Lock()
	runs := make([]model.SimulationRun, 0, len(s.active))
	for _, h := range s.active {
		runs = append(runs, h.run)
	}
	s.mu.Unlock()

	slices.SortFunc(runs, func(a, b model.SimulationRun) int {
		return cmp.Or(cmp.Compare(a.StartTime, b.StartTime), strings.Compare(a.ID, b.ID))
	})
	return runs
}

// ActiveCount reports the number of playing runs.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// ListPersisted returns every stored run header.
func (s *Scheduler) ListPersisted(ctx context.Context) ([]model.RunHeader, error) {
	return s.store.ListRunHeaders(ctx)
}

// FetchSamples returns the persisted samples of a run in emission order.
func (s *Scheduler) FetchSamples(ctx context.Context, runID string) ([]model.SimDataPoint, error) {
	if _, err := s.store.GetRunHeader(ctx, runID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
		}
		return nil, err
	}
	return s.store.ListSamples(ctx, runID)
}

// Delete stops the run if it is playing and removes its header and samples.
func (s *Scheduler) Delete(ctx context.Context, runID string) error {
	s.Stop(runID)
	n, err := s.store.DeleteRun(ctx, runID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if err != nil {
		return err
	}
	s.logger.Info("playback: run deleted", "run_id", runID, "samples", n)
	return nil
}

// Close cancels every active run and waits for the playback goroutines to
// exit or for ctx to expire. Start fails with ErrClosed afterwards.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelBase()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("playback: close: %w", ctx.Err())
	}
}

func (s *Scheduler) registerMetrics() {
	meter := telemetry.Meter("kumo/playback")
	s.runsStarted, _ = meter.Int64Counter("kumo.runs.started",
		metric.WithDescription("Simulation runs started"),
	)
	s.samplesSent, _ = meter.Int64Counter("kumo.samples.emitted",
		metric.WithDescription("Samples delivered to the sink"),
	)
	s.persistErrors, _ = meter.Int64Counter("kumo.samples.persist_errors",
		metric.WithDescription("Samples that failed to persist"),
	)
	_, _ = meter.Int64ObservableGauge("kumo.runs.active",
		metric.WithDescription("Simulation runs currently playing"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(s.ActiveCount()))
			return nil
		}),
	)
}
