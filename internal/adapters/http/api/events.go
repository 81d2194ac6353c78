package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/matchloop/internal/domain/model"
)

// EventDependencies accepts engagement observations.
type EventDependencies interface {
	RecordOutcome(ctx context.Context, o model.MatchOutcome) (model.MatchOutcome, error)
	AppendInteraction(ctx context.Context, i model.Interaction) (bool, error)
	AppendMilestone(ctx context.Context, m model.Milestone) (bool, error)
	RecentEvents(n int) []model.Event
}

const defaultEventsLimit = 20

// EventsHandler handles outcome, interaction and milestone writes.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostOutcome handles POST /v1/outcomes. Repeat reports overwrite.
func (h *EventsHandler) HandlePostOutcome(w http.ResponseWriter, r *http.Request) {
	var req model.MatchOutcome
	if !decode(w, r, "api.post_outcome", &req) {
		return
	}
	stored, err := h.deps.RecordOutcome(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// HandlePostInteraction handles POST /v1/interactions.
func (h *EventsHandler) HandlePostInteraction(w http.ResponseWriter, r *http.Request) {
	var req model.Interaction
	if !decode(w, r, "api.post_interaction", &req) {
		return
	}
	inserted, err := h.deps.AppendInteraction(r.Context(), req)
	writeAck(w, inserted, err)
}

// HandlePostMilestone handles POST /v1/milestones.
func (h *EventsHandler) HandlePostMilestone(w http.ResponseWriter, r *http.Request) {
	var req model.Milestone
	if !decode(w, r, "api.post_milestone", &req) {
		return
	}
	inserted, err := h.deps.AppendMilestone(r.Context(), req)
	writeAck(w, inserted, err)
}

// HandleGetEvents handles GET /v1/events?limit=N, newest first.
func (h *EventsHandler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "limit", defaultEventsLimit)
	if err != nil || n < 1 {
		if err == nil {
			err = errors.New("limit must be positive")
		}
		writeError(w, WrapKind("api.get_events", ErrBadRequest, err))
		return
	}
	events := h.deps.RecentEvents(n)
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// writeAck answers an append. A replayed id is acknowledged, not rejected.
func writeAck(w http.ResponseWriter, inserted bool, err error) {
	switch {
	case err != nil:
		writeError(w, err)
	case !inserted:
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
	default:
		writeJSON(w, http.StatusCreated, ackResponse{Status: "accepted"})
	}
}
