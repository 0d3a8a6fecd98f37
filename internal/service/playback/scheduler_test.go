package playback_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kumo/internal/battery"
	"github.com/ashita-ai/kumo/internal/model"
	"github.com/ashita-ai/kumo/internal/service/playback"
	"github.com/ashita-ai/kumo/internal/service/synth"
	"github.com/ashita-ai/kumo/internal/storage"
	"github.com/ashita-ai/kumo/internal/testutil"
)

var epoch = time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)

func ascent(offsets ...int64) model.Trajectory {
	traj := make(model.Trajectory, len(offsets))
	for i, off := range offsets {
		traj[i] = model.TrajectorySample{
			Point: model.TrajectoryPoint{Lat: 35 + float64(i)*0.01, Lng: -106, Alt: 1500 + float64(i)*1000},
			Time:  epoch.Add(time.Duration(off) * time.Millisecond),
		}
	}
	return traj
}

// ---- fakes ---------------------------------------------------------------

type trajectories map[string]model.Trajectory

func (t trajectories) Get(_ context.Context, id string) (model.Trajectory, error) {
	traj, ok := t[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return traj, nil
}

type memStore struct {
	mu         sync.Mutex
	headers    map[string]model.RunHeader
	samples    map[string]map[int]model.SimDataPoint
	failHeader bool
}

func newMemStore() *memStore {
	return &memStore{
		headers: make(map[string]model.RunHeader),
		samples: make(map[string]map[int]model.SimDataPoint),
	}
}

func (m *memStore) PutRunHeader(_ context.Context, h model.RunHeader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failHeader {
		return errors.New("disk full")
	}
	m.headers[h.ID] = h
	return nil
}

func (m *memStore) GetRunHeader(_ context.Context, id string) (model.RunHeader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.headers[id]
	if !ok {
		return model.RunHeader{}, storage.ErrNotFound
	}
	return h, nil
}

func (m *memStore) ListRunHeaders(_ context.Context) ([]model.RunHeader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RunHeader
	for _, h := range m.headers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) PutSample(_ context.Context, runID string, i int, p model.SimDataPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples[runID] == nil {
		m.samples[runID] = make(map[int]model.SimDataPoint)
	}
	m.samples[runID][i] = p
	return nil
}

func (m *memStore) ListSamples(_ context.Context, runID string) ([]model.SimDataPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := make([]int, 0, len(m.samples[runID]))
	for i := range m.samples[runID] {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]model.SimDataPoint, len(idx))
	for k, i := range idx {
		out[k] = m.samples[runID][i]
	}
	return out, nil
}

func (m *memStore) DeleteRun(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.headers[id]; !ok {
		return 0, storage.ErrNotFound
	}
	n := int64(len(m.samples[id]))
	delete(m.headers, id)
	delete(m.samples, id)
	return n, nil
}

func (m *memStore) sampleCount(runID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples[runID])
}

type recordingSink struct {
	mu      sync.Mutex
	started []string
	samples map[string][]model.SimDataPoint
	ended   []string
}

func newSink() *recordingSink {
	return &recordingSink{samples: make(map[string][]model.SimDataPoint)}
}

func (r *recordingSink) RunStarted(h model.RunHeader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, h.ID)
}

func (r *recordingSink) Sample(runID string, p model.SimDataPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[runID] = append(r.samples[runID], p)
}

func (r *recordingSink) RunEnded(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, runID)
}

func (r *recordingSink) count(runID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples[runID])
}

func (r *recordingSink) endedRuns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ended...)
}

type fixture struct {
	sched *playback.Scheduler
	store *memStore
	sink  *recordingSink
}

func newFixture(t *testing.T, opts ...playback.Option) fixture {
	t.Helper()
	f := fixture{store: newMemStore(), sink: newSink()}
	builder := synth.New(battery.Default(), synth.WithRandom(func() float64 { return 0 }))
	traj := trajectories{
		// 60 ms of playback at 0.001 min: three samples, no densification.
		"quick": ascent(0, 1_000, 2_000),
		// One minute of playback: ~250 ms between samples.
		"slow": ascent(0, 10_000, 20_000),
		"flat": ascent(5_000, 5_000),
	}
	f.sched = playback.New(builder, traj, f.store, f.sink, testutil.TestLogger(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.sched.Close(ctx)
	})
	return f
}

// ---- tests ---------------------------------------------------------------

func TestStart_PlaysToCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.sched.Start(ctx, "quick", 0.001, 0)
	require.NoError(t, err)
	require.Len(t, run.DataPoints, 3)

	require.Eventually(t, func() bool {
		return len(f.sink.endedRuns()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Empty(t, f.sched.ListActive())
	assert.Equal(t, 3, f.sink.count(run.ID))
	assert.Equal(t, []string{run.ID}, f.sink.started)

	samples, err := f.sched.FetchSamples(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	for i, p := range samples {
		assert.Equal(t, run.DataPoints[i], p)
	}

	headers, err := f.sched.ListPersisted(ctx)
	require.NoError(t, err)
	require.Len(t, headers, 1)
	assert.Equal(t, run.Header(), headers[0])
}

func TestStart_EmitsInOrder(t *testing.T) {
	f := newFixture(t)
	run, err := f.sched.Start(context.Background(), "quick", 0.001, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(f.sink.endedRuns()) == 1 }, 2*time.Second, 5*time.Millisecond)

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	got := f.sink.samples[run.ID]
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Time, got[i-1].Time)
	}
}

func TestStart_UnknownTrajectory(t *testing.T) {
	f := newFixture(t)
	_, err := f.sched.Start(context.Background(), "nope", 1, 0)
	assert.ErrorIs(t, err, playback.ErrTrajectoryNotFound)
	assert.Empty(t, f.sink.started)
}

func TestStart_DegenerateTrajectory(t *testing.T) {
	f := newFixture(t)
	_, err := f.sched.Start(context.Background(), "flat", 1, 0)
	assert.ErrorIs(t, err, synth.ErrDegenerateTrajectory)
	assert.Zero(t, f.sched.ActiveCount())
}

func TestStart_RejectsRunIDWithKeySeparator(t *testing.T) {
	f := newFixture(t, playback.WithIDGenerator(func() string { return "a_b" }))
	_, err := f.sched.Start(context.Background(), "quick", 0.001, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidRunID)
	assert.Zero(t, f.sched.ActiveCount())
	assert.Empty(t, f.sink.started)
}

func TestStart_HeaderPersistFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.store.failHeader = true

	_, err := f.sched.Start(context.Background(), "quick", 0.001, 0)
	require.Error(t, err)
	assert.Zero(t, f.sched.ActiveCount())
	assert.Len(t, f.sink.endedRuns(), 1)
}

func TestStart_DefaultStartTimeFromClock(t *testing.T) {
	f := newFixture(t, playback.WithClock(func() time.Time { return epoch }))
	run, err := f.sched.Start(context.Background(), "quick", 0.001, 0)
	require.NoError(t, err)
	assert.Equal(t, epoch.UnixMilli(), run.StartTime)

	run, err = f.sched.Start(context.Background(), "quick", 0.001, 77)
	require.NoError(t, err)
	assert.Equal(t, int64(77), run.StartTime)
}

func TestStop_MidPlaybackEmitsNothingFurther(t *testing.T) {
	f := newFixture(t)
	run, err := f.sched.Start(context.Background(), "slow", 1, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.sink.count(run.ID) >= 2 }, 3*time.Second, 5*time.Millisecond)
	f.sched.Stop(run.ID)
	k := f.sink.count(run.ID)
	persisted := f.store.sampleCount(run.ID)

	time.Sleep(700 * time.Millisecond)
	assert.Equal(t, k, f.sink.count(run.ID), "samples delivered after stop")
	assert.Equal(t, persisted, f.store.sampleCount(run.ID), "samples persisted after stop")
	assert.Equal(t, k, persisted)
	assert.Less(t, k, len(run.DataPoints))
	assert.Equal(t, []string{run.ID}, f.sink.endedRuns())
	assert.Empty(t, f.sched.ListActive())
}

func TestStop_IndependentRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.sched.Start(ctx, "slow", 1, 0)
	require.NoError(t, err)
	b, err := f.sched.Start(ctx, "slow", 1, 0)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
	require.Len(t, f.sched.ListActive(), 2)

	f.sched.Stop(a.ID)

	active := f.sched.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)

	before := f.sink.count(b.ID)
	require.Eventually(t, func() bool { return f.sink.count(b.ID) > before }, 3*time.Second, 5*time.Millisecond)
}

func TestStop_UnknownIsNoop(t *testing.T) {
	f := newFixture(t)
	run, err := f.sched.Start(context.Background(), "slow", 1, 0)
	require.NoError(t, err)

	assert.False(t, f.sched.Stop("does-not-exist"))
	assert.True(t, f.sched.Stop(run.ID))
	assert.False(t, f.sched.Stop(run.ID))

	assert.Equal(t, []string{run.ID}, f.sink.endedRuns(), "run ended reported once")
}

func TestStop_ConcurrentWithCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for range 8 {
		run, err := f.sched.Start(ctx, "quick", 0.001, 0)
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Go(func() { f.sched.Stop(id) })
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(f.sink.endedRuns()) == len(ids) }, 2*time.Second, 5*time.Millisecond)
	ended := f.sink.endedRuns()
	sort.Strings(ended)
	sort.Strings(ids)
	assert.Equal(t, ids, ended)
	assert.Zero(t, f.sched.ActiveCount())
}

func TestFetchSamplesAndDelete_UnknownRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sched.FetchSamples(ctx, "missing")
	assert.ErrorIs(t, err, playback.ErrUnknownRun)
	assert.ErrorIs(t, f.sched.Delete(ctx, "missing"), playback.ErrUnknownRun)
}

func TestDelete_StopsActiveRunAndRemovesData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.sched.Start(ctx, "slow", 1, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.store.sampleCount(run.ID) >= 1 }, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, f.sched.Delete(ctx, run.ID))
	assert.Zero(t, f.sched.ActiveCount())
	assert.Zero(t, f.store.sampleCount(run.ID))

	_, err = f.sched.FetchSamples(ctx, run.ID)
	assert.ErrorIs(t, err, playback.ErrUnknownRun)
}

func TestMaxActive(t *testing.T) {
	f := newFixture(t, playback.WithMaxActive(1))
	ctx := context.Background()

	_, err := f.sched.Start(ctx, "slow", 1, 0)
	require.NoError(t, err)
	_, err = f.sched.Start(ctx, "slow", 1, 0)
	assert.ErrorIs(t, err, playback.ErrTooManyRuns)
}

func TestIDGenerator(t *testing.T) {
	n := 0
	f := newFixture(t, playback.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}))
	run, err := f.sched.Start(context.Background(), "quick", 0.001, 0)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
}

func TestClose_CancelsRunsAndRejectsStarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.sched.Start(ctx, "slow", 1, 0)
	require.NoError(t, err)

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, f.sched.Close(closeCtx))

	assert.Zero(t, f.sched.ActiveCount())
	assert.Contains(t, f.sink.endedRuns(), run.ID)

	_, err = f.sched.Start(ctx, "quick", 0.001, 0)
	assert.ErrorIs(t, err, playback.ErrClosed)
}
