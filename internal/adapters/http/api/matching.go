package api

import (
	"errors"
	"net/http"

	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/internal/domain/recommend"
	"github.com/okian/matchloop/internal/domain/scoring"
)

var errClientMismatch = errors.New("client.id does not match client_id")

type recommendRequest struct {
	ClientID    string               `json:"client_id"`
	Client      *model.ClientProfile `json:"client"`
	Limit       int                  `json:"limit"`
	MinScore    float64              `json:"min_score"`
	ProviderIDs []string             `json:"provider_ids"`
	BypassCache bool                 `json:"bypass_cache"`
}

// MatchingHandler serves scoring and recommendations.
type MatchingHandler struct {
	deps MatchingDependencies
}

// NewMatchingHandler creates a matching handler.
func NewMatchingHandler(deps MatchingDependencies) *MatchingHandler {
	return &MatchingHandler{deps: deps}
}

// HandleScore handles POST /v1/score. Either side of the pair may be sent
// inline instead of by id.
func (h *MatchingHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	var pair scoring.Pair
	if !decode(w, r, "api.score", &pair) {
		return
	}
	res, err := h.deps.Score(r.Context(), pair)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRecommend handles POST /v1/recommendations. An inline client is
// ranked without touching the stored profile or the recommendation cache.
func (h *MatchingHandler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	const op = "api.recommend"
	var req recommendRequest
	if !decode(w, r, op, &req) {
		return
	}
	opts := recommend.Options{
		Limit:       req.Limit,
		MinScore:    req.MinScore,
		ProviderIDs: req.ProviderIDs,
		BypassCache: req.BypassCache,
	}

	var (
		list recommend.RankedList
		err  error
	)
	if req.Client != nil {
		c := *req.Client
		switch {
		case c.ID == "":
			c.ID = req.ClientID
		case req.ClientID != "" && c.ID != req.ClientID:
			writeError(w, WrapKind(op, ErrBadRequest, errClientMismatch))
			return
		}
		list, err = h.deps.RecommendFor(r.Context(), c, opts)
	} else {
		list, err = h.deps.Recommend(r.Context(), req.ClientID, opts)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
