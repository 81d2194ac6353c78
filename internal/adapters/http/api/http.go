// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/matchloop/internal/adapters/repository"
	"github.com/okian/matchloop/internal/domain/forecast"
	"github.com/okian/matchloop/internal/domain/learning"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/internal/domain/optimizer"
	"github.com/okian/matchloop/internal/domain/patterns"
	"github.com/okian/matchloop/internal/domain/recommend"
	"github.com/okian/matchloop/internal/domain/scoring"
	"github.com/okian/matchloop/internal/domain/types"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Each handler only sees the
// narrow slice it needs.
type Dependencies interface {
	MatchingDependencies
	LearningDependencies
	MatchDependencies
	ProviderDependencies
	EventDependencies
	LeaderboardDependencies
	RankDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Standing is a provider's leaderboard position.
type Standing = repository.Standing

// MatchingDependencies scores pairs and ranks providers.
type MatchingDependencies interface {
	Score(ctx context.Context, pair scoring.Pair) (scoring.Result, error)
	Recommend(ctx context.Context, clientID string, opts recommend.Options) (recommend.RankedList, error)
	RecommendFor(ctx context.Context, client model.ClientProfile, opts recommend.Options) (recommend.RankedList, error)
}

// LearningDependencies exposes the weight learner.
type LearningDependencies interface {
	RunLearningCycle(ctx context.Context, force bool) (learning.Report, error)
	Weights(ctx context.Context) ([]model.FactorWeight, error)
}

// MatchDependencies exposes per-match analyses.
type MatchDependencies interface {
	Forecast(ctx context.Context, matchID string, months int) (forecast.Forecast, error)
	Patterns(ctx context.Context, matchID string, windowDays int) (patterns.Report, error)
	Optimize(ctx context.Context, matchID string) (optimizer.Result, error)
}

// ProviderDependencies manages profiles and provider performance.
type ProviderDependencies interface {
	ScorePerformance(ctx context.Context, providerID string, windowDays int) (model.PerformanceSnapshot, error)
	UpsertProvider(ctx context.Context, p model.ProviderProfile) error
	UpsertClient(ctx context.Context, c model.ClientProfile) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	matchingHandler    *MatchingHandler
	learningHandler    *LearningHandler
	matchHandler       *MatchHandler
	providerHandler    *ProviderHandler
	eventsHandler      *EventsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		matchingHandler:    NewMatchingHandler(deps),
		learningHandler:    NewLearningHandler(deps),
		matchHandler:       NewMatchHandler(deps),
		providerHandler:    NewProviderHandler(deps),
		eventsHandler:      NewEventsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		rankHandler:        NewRankHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/score", s.matchingHandler.HandleScore)
		r.Post("/recommendations", s.matchingHandler.HandleRecommend)

		r.Post("/learning/run", s.learningHandler.HandleRun)
		r.Get("/weights", s.learningHandler.HandleWeights)

		r.Route("/matches/{id}", func(r chi.Router) {
			r.Get("/forecast", s.matchHandler.HandleForecast)
			r.Get("/patterns", s.matchHandler.HandlePatterns)
			r.Get("/optimization", s.matchHandler.HandleOptimization)
		})

		r.Put("/providers/{id}", s.providerHandler.HandlePutProvider)
		r.Get("/providers/{id}/performance", s.providerHandler.HandlePerformance)
		r.Get("/providers/{id}/rank", s.rankHandler.HandleGetRank)
		r.Put("/clients/{id}", s.providerHandler.HandlePutClient)
		r.Get("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)

		r.Post("/outcomes", s.eventsHandler.HandlePostOutcome)
		r.Post("/interactions", s.eventsHandler.HandlePostInteraction)
		r.Post("/milestones", s.eventsHandler.HandlePostMilestone)
		r.Get("/events", s.eventsHandler.HandleGetEvents)
	})
}

// Handler returns a router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v, reporting malformed input as a bad request.
func decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("invalid request body: %w", err)))
		return false
	}
	return true
}
