package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MatchHandler serves the per-match analyses.
type MatchHandler struct {
	deps MatchDependencies
}

// NewMatchHandler creates a match handler.
func NewMatchHandler(deps MatchDependencies) *MatchHandler {
	return &MatchHandler{deps: deps}
}

// HandleForecast handles GET /v1/matches/{id}/forecast?months=N.
func (h *MatchHandler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	months, err := queryInt(r, "months", 0)
	if err != nil {
		writeError(w, WrapKind("api.forecast", ErrBadRequest, err))
		return
	}
	fc, err := h.deps.Forecast(r.Context(), chi.URLParam(r, "id"), months)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

// HandlePatterns handles GET /v1/matches/{id}/patterns?window_days=N.
func (h *MatchHandler) HandlePatterns(w http.ResponseWriter, r *http.Request) {
	window, err := queryInt(r, "window_days", 0)
	if err != nil {
		writeError(w, WrapKind("api.patterns", ErrBadRequest, err))
		return
	}
	report, err := h.deps.Patterns(r.Context(), chi.URLParam(r, "id"), window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleOptimization handles GET /v1/matches/{id}/optimization.
func (h *MatchHandler) HandleOptimization(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Optimize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
