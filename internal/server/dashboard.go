package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/ashita-ai/kumo/internal/model"
)

// dashboardHandler serves the ground station dashboard: static files from
// fsys with a fallback to index.html for client-side routes. API routes are
// registered on the mux first so they take priority.
type dashboardHandler struct {
	fsys   fs.FS
	static http.Handler
}

// newDashboardHandler creates an http.Handler that serves fsys as a
// single-page app. Build assets under /assets/ carry content hashes and get
// immutable cache headers; index.html is never cached.
func newDashboardHandler(fsys fs.FS) http.Handler {
	return &dashboardHandler{
		fsys:   fsys,
		static: http.FileServer(http.FS(fsys)),
	}
}

func (h *dashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Clean the path to prevent directory traversal.
	urlPath := path.Clean("/" + r.URL.Path)

	// API paths that reach here matched no route.
	if isAPIPath(urlPath) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "endpoint not found")
		return
	}

	if urlPath != "/" {
		name := strings.TrimPrefix(urlPath, "/")
		if st, err := fs.Stat(h.fsys, name); err == nil && !st.IsDir() {
			setCacheHeaders(w, urlPath)
			h.static.ServeHTTP(w, r)
			return
		}
	}

	// Unknown path: hand it to the client router.
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/"
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	h.static.ServeHTTP(w, r2)
}

// isAPIPath returns true if the path belongs to a known API prefix.
// Requests to these paths that reach the dashboard handler are genuine 404s.
func isAPIPath(p string) bool {
	return strings.HasPrefix(p, "/v1/") ||
		p == "/mcp" ||
		p == "/health"
}

// setCacheHeaders sets cache-control headers based on the file path.
func setCacheHeaders(w http.ResponseWriter, urlPath string) {
	if strings.HasPrefix(urlPath, "/assets/") {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
}
