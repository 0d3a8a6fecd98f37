package server

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kumo/internal/model"
)

// HandleStartRun handles POST /v1/runs. The run is synthesized on the
// request path; samples follow over the event stream.
func (h *Handlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req model.StartRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("kumo.prediction_id", req.PredictionID),
		attribute.Float64("kumo.duration_minutes", req.DurationMinutes),
	)

	run, err := h.scheduler.Start(r.Context(), req.PredictionID, req.DurationMinutes, req.StartTime)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to start run")
		return
	}
	span.SetAttributes(attribute.String("kumo.run_id", run.ID))

	writeJSON(w, r, http.StatusCreated, model.StartRunResponse{
		ID:        run.ID,
		StartTime: run.StartTime,
		Multiple:  run.Multiple,
		Samples:   len(run.DataPoints),
		WaitTimes: run.WaitTimes,
	})
}

// HandleListRuns handles GET /v1/runs: every persisted run header, playing
// or not.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	headers, err := h.scheduler.ListPersisted(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list runs", err)
		return
	}
	writeJSON(w, r, http.StatusOK, headers)
}

// HandleListActiveRuns handles GET /v1/runs/active.
func (h *Handlers) HandleListActiveRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.scheduler.ListActive()
	out := make([]model.ActiveRun, len(runs))
	for i, run := range runs {
		out[i] = model.ActiveRun{
			ID:        run.ID,
			StartTime: run.StartTime,
			Multiple:  run.Multiple,
			Samples:   len(run.DataPoints),
		}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleRunSamples handles GET /v1/runs/{run_id}/samples.
//
// By default it returns the run's full simulated samples. With
// ?format=flat it returns a page of flat sensor records starting at ?from
// (default 0), at most ?limit long. Serial runs only have the flat form.
func (h *Handlers) HandleRunSamples(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	header, err := h.store.GetRunHeader(r.Context(), runID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load run")
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "full":
	case "flat":
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "format must be full or flat")
		return
	}

	if format == "flat" || header.Source == model.RunSourceSerial {
		from := max(queryInt(r, "from", 0), 0)
		records, next, err := h.store.RecordPage(r.Context(), header, from, queryLimit(r, maxQueryLimit))
		if err != nil {
			h.writeInternalError(w, r, "failed to read samples", err)
			return
		}
		writeJSON(w, r, http.StatusOK, model.SamplePage{Records: records, Next: next})
		return
	}

	samples, err := h.scheduler.FetchSamples(r.Context(), runID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to read samples")
		return
	}
	writeJSON(w, r, http.StatusOK, samples)
}

// HandleStopRun handles POST /v1/runs/{run_id}/stop. Stopping a run that is
// not playing succeeds with was_active=false.
func (h *Handlers) HandleStopRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	wasActive := h.scheduler.Stop(runID)
	writeJSON(w, r, http.StatusOK, model.StopRunResponse{ID: runID, WasActive: wasActive})
}

// HandleDeleteRun handles DELETE /v1/runs/{run_id}. A playing run is stopped
// first.
func (h *Handlers) HandleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if err := h.scheduler.Delete(r.Context(), runID); err != nil {
		h.writeServiceError(w, r, err, "failed to delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
