// Package kumo is the public API for embedding the Kumo telemetry server.
//
// Kumo turns balloon flight predictions into realistic ground-station
// telemetry and replays it on a compressed clock, alongside live telemetry
// read from the radio. Consumers construct and extend the server without
// forking it:
//
//	app, err := kumo.New(
//	    kumo.WithVersion(version),
//	    kumo.WithLogger(logger),
//	    kumo.WithEventHook(myRecorder{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*, never the other way around. Public
// types (Event, Route) have no internal imports; the adapters between the
// two sides live in this file.
package kumo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/kumo/api"
	"github.com/ashita-ai/kumo/internal/battery"
	"github.com/ashita-ai/kumo/internal/config"
	"github.com/ashita-ai/kumo/internal/mcp"
	"github.com/ashita-ai/kumo/internal/model"
	"github.com/ashita-ai/kumo/internal/ratelimit"
	"github.com/ashita-ai/kumo/internal/server"
	"github.com/ashita-ai/kumo/internal/service/ingest"
	"github.com/ashita-ai/kumo/internal/service/playback"
	"github.com/ashita-ai/kumo/internal/service/predict"
	"github.com/ashita-ai/kumo/internal/service/synth"
	"github.com/ashita-ai/kumo/internal/storage"
	"github.com/ashita-ai/kumo/internal/telemetry"
	"github.com/ashita-ai/kumo/migrations"
)

// App is the Kumo server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	store        *storage.Store
	scheduler    *playback.Scheduler
	broker       *server.Broker
	srv          *server.Server
	limiter      ratelimit.Limiter
	reader       *ingest.Reader
	serial       io.Reader // nil when no ground station is attached
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string

	shutdownOnce sync.Once
	shutdownErr  error
}

// New initialises the Kumo server. It opens the store, runs migrations,
// wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	switch o.storeKind {
	case "":
	case StoreSQLite:
		cfg.Store, cfg.SQLitePath = config.StoreSQLite, o.storeLocation
	case StorePostgres:
		cfg.Store, cfg.DatabaseURL = config.StorePostgres, o.storeLocation
	default:
		return nil, fmt.Errorf("unknown store kind %q", o.storeKind)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("kumo starting", "version", version, "port", cfg.Port, "store", cfg.Store)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Everything opened past this point is released by cleanup on error.
	var store *storage.Store
	cleanup := func() {
		if store != nil {
			store.Close(context.Background())
		}
		_ = otelShutdown(context.Background())
	}

	kv, err := openKV(context.Background(), cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	store = storage.New(kv, logger)

	curve := battery.Default()
	if cfg.BatteryCurvePath != "" {
		if curve, err = battery.Load(cfg.BatteryCurvePath); err != nil {
			cleanup()
			return nil, fmt.Errorf("battery curve: %w", err)
		}
		logger.Info("battery curve loaded", "path", cfg.BatteryCurvePath, "rows", curve.Len())
	}

	trajectories, err := storage.NewTrajectoryStore(store, cfg.TrajectoryCacheSize)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("trajectory cache: %w", err)
	}

	// Adapt public hooks to the broker's internal hook interface.
	hooks := make([]server.EventHook, len(o.eventHooks))
	for i, h := range o.eventHooks {
		hooks[i] = &eventHookAdapter{hook: h}
	}
	broker := server.NewBroker(logger, hooks...)

	scheduler := playback.New(synth.New(curve), trajectories, store, broker, logger,
		playback.WithMaxActive(cfg.MaxActiveRuns))
	predictions := predict.New(store, trajectories, broker, logger)
	mcpSrv := mcp.New(scheduler, predictions, logger, version)

	var limiter ratelimit.Limiter
	if cfg.RunStartRate > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RunStartRate, cfg.RunStartBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RunStartRate, "burst", cfg.RunStartBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	serial := o.serial
	if serial == nil && cfg.SerialDevice != "" {
		// The radio is configured for the right baud rate out of band; the
		// device is read as a plain character file.
		f, err := os.Open(cfg.SerialDevice)
		if err != nil {
			_ = limiter.Close()
			cleanup()
			return nil, fmt.Errorf("serial device: %w", err)
		}
		serial = f
		logger.Info("serial reader enabled", "device", cfg.SerialDevice)
	}

	routes := make([]server.Route, len(o.routes))
	for i, rt := range o.routes {
		routes[i] = server.Route{Pattern: rt.Pattern, Handler: rt.Handler}
	}
	middlewares := make([]func(http.Handler) http.Handler, len(o.middlewares))
	for i, mw := range o.middlewares {
		middlewares[i] = mw
	}

	srv := server.New(server.ServerConfig{
		Scheduler:           scheduler,
		Predictions:         predictions,
		Store:               store,
		Logger:              logger,
		Limiter:             limiter,
		Broker:              broker,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		DashboardFS:         o.dashboard,
		OpenAPISpec:         api.OpenAPISpec,
		ExtraRoutes:         routes,
		Middlewares:         middlewares,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		scheduler:    scheduler,
		broker:       broker,
		srv:          srv,
		limiter:      limiter,
		reader:       ingest.New(store, broker, logger),
		serial:       serial,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// openKV opens the configured backend. Postgres migrations run here; the
// SQLite schema is created on open.
func openKV(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.KV, error) {
	if cfg.Store == config.StoreSQLite {
		kv, err := storage.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		return kv, nil
	}

	db, err := storage.NewPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	db.RegisterPoolMetrics()
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}

// Handler returns the root HTTP handler, for tests and for mounting the
// API in another server.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the serial reader (if configured) and the HTTP server, then
// blocks until ctx is cancelled or the HTTP server fails. On return,
// Shutdown has been called; callers should not call it separately.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	serialDone := make(chan struct{})
	if a.serial != nil {
		g.Go(func() error {
			defer close(serialDone)
			// A lost radio link is logged, not fatal: simulated runs keep
			// playing without it.
			h, err := a.reader.Run(gctx, a.serial)
			if err != nil {
				a.logger.Error("serial reader stopped", "run_id", h.ID, "error", err)
			}
			return nil
		})
	} else {
		close(serialDone)
	}

	<-gctx.Done()
	// The reader writes its final run header on the way out; the store must
	// still be open.
	<-serialDone
	shutdownErr := a.Shutdown(context.Background())
	if err := g.Wait(); err != nil {
		return err
	}
	return shutdownErr
}

// Shutdown performs a phased graceful shutdown:
// (1) close the event broker so SSE and WebSocket streams end,
// (2) stop accepting HTTP requests and drain in-flight ones,
// (3) cancel playing runs and wait for their goroutines.
// It then closes the store and the OTEL providers. Later calls return the
// first call's result.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown(ctx)
	})
	return a.shutdownErr
}

func (a *App) shutdown(ctx context.Context) error {
	a.logger.Info("kumo shutting down")

	// Phase 1: long-lived streams.
	a.broker.Close()

	// Phase 2: HTTP drain.
	httpCtx, httpCancel := contextWithOptionalTimeout(ctx, a.cfg.ShutdownTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	// Phase 3: playback.
	var errs []error
	runCtx, runCancel := contextWithOptionalTimeout(ctx, a.cfg.ShutdownTimeout)
	if err := a.scheduler.Close(runCtx); err != nil {
		a.logger.Error("playback did not stop in time", "error", err, "active_runs", a.scheduler.ActiveCount())
		errs = append(errs, fmt.Errorf("playback shutdown: %w", err))
	}
	runCancel()

	// Cleanup.
	if c, ok := a.serial.(io.Closer); ok {
		_ = c.Close()
	}
	_ = a.limiter.Close()
	a.store.Close(context.Background())
	if err := a.otelShutdown(context.Background()); err != nil {
		a.logger.Warn("otel shutdown error", "error", err)
	}

	a.logger.Info("kumo stopped")
	return errors.Join(errs...)
}

// eventHookAdapter presents a public EventHook as the broker's hook.
type eventHookAdapter struct {
	hook EventHook
}

func (a *eventHookAdapter) OnEvent(ctx context.Context, e model.Event) error {
	return a.hook.OnEvent(ctx, toPublicEvent(e))
}

func toPublicEvent(e model.Event) Event {
	return Event{Type: EventType(e.Type), RunID: e.RunID, Data: e.Data}
}

func contextWithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
