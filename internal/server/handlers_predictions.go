package server

import (
	"net/http"

	"github.com/ashita-ai/kumo/internal/model"
)

// HandleImportPredictions handles POST /v1/predictions. The body carries
// either a ready group or raw predictor responses.
func (h *Handlers) HandleImportPredictions(w http.ResponseWriter, r *http.Request) {
	var req model.ImportPredictionsRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	g, err := h.predictions.Import(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to import predictions")
		return
	}
	writeJSON(w, r, http.StatusCreated, g)
}

// HandleListPredictions handles GET /v1/predictions.
func (h *Handlers) HandleListPredictions(w http.ResponseWriter, r *http.Request) {
	groups, err := h.predictions.List(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list predictions", err)
		return
	}
	writeJSON(w, r, http.StatusOK, groups)
}

// HandleGetPrediction handles GET /v1/predictions/{id}.
func (h *Handlers) HandleGetPrediction(w http.ResponseWriter, r *http.Request) {
	g, err := h.predictions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load prediction")
		return
	}
	writeJSON(w, r, http.StatusOK, g)
}

// HandleDeletePrediction handles DELETE /v1/predictions/{id}. Runs already
// started from the group keep playing.
func (h *Handlers) HandleDeletePrediction(w http.ResponseWriter, r *http.Request) {
	if err := h.predictions.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err, "failed to delete prediction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
