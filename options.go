package kumo

import (
	"io"
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
type resolvedOptions struct {
	port          int
	storeKind     StoreKind
	storeLocation string
	logger        *slog.Logger
	version       string
	eventHooks    []EventHook
	routes        []Route
	middlewares   []Middleware
	serial        io.Reader
	dashboard     fs.FS
}

// WithPort overrides the TCP port from config (KUMO_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithStore overrides the store from config. location is a file path for
// StoreSQLite and a connection string for StorePostgres.
func WithStore(kind StoreKind, location string) Option {
	return func(o *resolvedOptions) {
		o.storeKind = kind
		o.storeLocation = location
	}
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEventHook registers a hook that receives every published event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}

// WithExtraRoutes mounts additional routes after the built-in API routes.
func WithExtraRoutes(routes ...Route) Option {
	return func(o *resolvedOptions) { o.routes = append(o.routes, routes...) }
}

// WithMiddleware registers an HTTP middleware around the API mux.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithSerialReader reads ground station telemetry from src instead of the
// device named by KUMO_SERIAL_DEVICE. If src is an io.Closer it is closed
// when the App stops.
func WithSerialReader(src io.Reader) Option {
	return func(o *resolvedOptions) { o.serial = src }
}

// WithDashboard serves a built dashboard at /. Paths that match no file
// fall back to index.html.
func WithDashboard(fsys fs.FS) Option {
	return func(o *resolvedOptions) { o.dashboard = fsys }
}
