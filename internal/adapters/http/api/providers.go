package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/matchloop/internal/domain/model"
)

var errIDMismatch = errors.New("body id does not match path")

// ProviderHandler manages profiles and provider performance.
type ProviderHandler struct {
	deps ProviderDependencies
}

// NewProviderHandler creates a provider handler.
func NewProviderHandler(deps ProviderDependencies) *ProviderHandler {
	return &ProviderHandler{deps: deps}
}

// HandlePerformance handles GET /v1/providers/{id}/performance?window_days=N.
func (h *ProviderHandler) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	window, err := queryInt(r, "window_days", 0)
	if err != nil {
		writeError(w, WrapKind("api.performance", ErrBadRequest, err))
		return
	}
	snap, err := h.deps.ScorePerformance(r.Context(), chi.URLParam(r, "id"), window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandlePutProvider handles PUT /v1/providers/{id}. An empty body id takes
// the path id.
func (h *ProviderHandler) HandlePutProvider(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_provider"
	var p model.ProviderProfile
	if !decode(w, r, op, &p) {
		return
	}
	id := chi.URLParam(r, "id")
	switch p.ID {
	case "":
		p.ID = id
	case id:
	default:
		writeError(w, WrapKind(op, ErrBadRequest, errIDMismatch))
		return
	}
	if err := h.deps.UpsertProvider(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandlePutClient handles PUT /v1/clients/{id}.
func (h *ProviderHandler) HandlePutClient(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_client"
	var c model.ClientProfile
	if !decode(w, r, op, &c) {
		return
	}
	id := chi.URLParam(r, "id")
	switch c.ID {
	case "":
		c.ID = id
	case id:
	default:
		writeError(w, WrapKind(op, ErrBadRequest, errIDMismatch))
		return
	}
	if err := h.deps.UpsertClient(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
