package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/matchloop/internal/domain/learning"
)

// LearningHandler triggers learning cycles and exposes the weights.
type LearningHandler struct {
	deps LearningDependencies
}

// NewLearningHandler creates a learning handler.
func NewLearningHandler(deps LearningDependencies) *LearningHandler {
	return &LearningHandler{deps: deps}
}

// HandleRun handles POST /v1/learning/run?force=bool. A cycle already in
// flight answers 409 with the skipped report.
func (h *LearningHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, WrapKind("api.learning_run", ErrBadRequest, errors.New("force must be a boolean")))
			return
		}
		force = v
	}
	report, err := h.deps.RunLearningCycle(r.Context(), force)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if report.Status == learning.StatusSkipped {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

// HandleWeights handles GET /v1/weights.
func (h *LearningHandler) HandleWeights(w http.ResponseWriter, r *http.Request) {
	ws, err := h.deps.Weights(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}
