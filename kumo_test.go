package kumo_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kumo"
	"github.com/ashita-ai/kumo/internal/testutil"
)

const radio = "Data:4.10 85000 1450 21.5 21.0 14.0 14.2 40 35.0000 -106.0000 1500 2024-06-01T15:00:00Z\r\n" +
	"GS 35.01 -106.02 1490\r\n" +
	"Data:4.09 84000 1550 21.4 20.9 13.5 13.6 39 35.0010 -106.0000 1600 2024-06-01T15:00:10Z\r\n"

type recorder struct {
	mu     sync.Mutex
	events []kumo.Event
}

func (r *recorder) OnEvent(_ context.Context, e kumo.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count(t kumo.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newApp(t *testing.T, opts ...kumo.Option) *kumo.App {
	t.Helper()
	// Random port; no OTEL exporter.
	t.Setenv("KUMO_PORT", "0")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	base := []kumo.Option{
		kumo.WithStore(kumo.StoreSQLite, filepath.Join(t.TempDir(), "kumo.db")),
		kumo.WithLogger(testutil.TestLogger()),
		kumo.WithVersion("test"),
	}
	app, err := kumo.New(append(base, opts...)...)
	require.NoError(t, err)
	return app
}

func TestRun_SerialReaderAndHooks(t *testing.T) {
	rec := &recorder{}
	app := newApp(t,
		kumo.WithSerialReader(strings.NewReader(radio)),
		kumo.WithEventHook(rec),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		return rec.count(kumo.EventRunEnded) == 1
	}, 5*time.Second, 10*time.Millisecond, "serial run should end at EOF")
	assert.Equal(t, 1, rec.count(kumo.EventRunStarted))
	assert.Equal(t, 2, rec.count(kumo.EventTelemetry))
	assert.Equal(t, 1, rec.count(kumo.EventGroundPosition))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Shutdown after Run is a no-op.
	require.NoError(t, app.Shutdown(context.Background()))
}

func TestHandler_ExtensionPoints(t *testing.T) {
	app := newApp(t,
		kumo.WithExtraRoutes(kumo.Route{
			Pattern: "GET /v1/custom",
			Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("custom"))
			}),
		}),
		kumo.WithMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Station", "kumo")
				next.ServeHTTP(w, r)
			})
		}),
	)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/custom")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "kumo", resp.Header.Get("X-Station"))

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
	assert.Equal(t, "kumo", health.Header.Get("X-Station"))
}

func TestNew_RejectsUnknownStore(t *testing.T) {
	_, err := kumo.New(
		kumo.WithStore("etcd", "localhost:2379"),
		kumo.WithLogger(testutil.TestLogger()),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}

func TestHandler_ServesOpenAPI(t *testing.T) {
	app := newApp(t)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/openapi.yaml")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/v1/runs/{run_id}/samples")
}
