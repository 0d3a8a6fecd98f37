package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ashita-ai/kumo/internal/model"
)

// exportPageSize is the number of records read from the store per page.
const exportPageSize = 100

// HandleExportRun handles GET /v1/runs/{run_id}/export.
// Streams the run's records as NDJSON (one flat record per line), page by
// page so long runs are never held in memory. ?compress=zstd wraps the
// stream in a zstd frame.
func (h *Handlers) HandleExportRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	header, err := h.store.GetRunHeader(r.Context(), runID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load run")
		return
	}

	compress := r.URL.Query().Get("compress")
	if compress != "" && compress != "zstd" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "compress must be zstd")
		return
	}

	// Filename with timestamp.
	filename := fmt.Sprintf("kumo-%s-%s.ndjson", runID, time.Now().UTC().Format("20060102-150405"))
	contentType := "application/x-ndjson"
	if compress == "zstd" {
		filename += ".zst"
		contentType = "application/zstd"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	var (
		out   io.Writer = w
		zw    *zstd.Encoder
		flush = func() {
			if flusher != nil {
				flusher.Flush()
			}
		}
	)
	if compress == "zstd" {
		zw, err = zstd.NewWriter(w)
		if err != nil {
			h.writeInternalError(w, r, "failed to start compression", err)
			return
		}
		defer func() { _ = zw.Close() }()
		out = zw
		flush = func() {
			_ = zw.Flush()
			if flusher != nil {
				flusher.Flush()
			}
		}
	}

	encoder := json.NewEncoder(out)
	exported := 0
	for from := 0; from >= 0; {
		records, next, err := h.store.RecordPage(r.Context(), header, from, exportPageSize)
		if err != nil {
			h.logger.Error("export failed", "run_id", runID, "error", err)
			if exported == 0 {
				writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "export failed")
			}
			return
		}
		for _, rec := range records {
			if err := encoder.Encode(rec); err != nil {
				return // Client disconnected.
			}
			exported++
		}
		flush()
		from = next
	}
	h.logger.Debug("run exported", "run_id", runID, "records", exported, "compress", compress)
}
