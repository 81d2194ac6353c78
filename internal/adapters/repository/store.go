// Package repository holds the Outcome Store implementations and the
// performance leaderboard.
package repository

import (
	"context"
	"time"

	"github.com/okian/matchloop/internal/domain/model"
)

// Store is the durable record of match outcomes, engagement history,
// factor weights, profiles and the derived views the engine rebuilds.
type Store interface {
	// RecordOutcome upserts by MatchID and returns the stored row.
	// CreatedAt of an existing row is preserved.
	RecordOutcome(ctx context.Context, o model.MatchOutcome) (model.MatchOutcome, error)
	GetOutcome(ctx context.Context, matchID string) (model.MatchOutcome, error)
	GetOutcomes(ctx context.Context, f model.OutcomeFilter) ([]model.MatchOutcome, error)
	CountOutcomes(ctx context.Context) (int, error)

	// AppendInteraction returns false when the id was already stored.
	AppendInteraction(ctx context.Context, i model.Interaction) (bool, error)
	// AppendMilestone returns false when the id was already stored.
	AppendMilestone(ctx context.Context, m model.Milestone) (bool, error)
	// GetInteractions returns interactions at or after since, oldest first.
	GetInteractions(ctx context.Context, matchID string, since time.Time) ([]model.Interaction, error)
	// GetMilestones returns milestones at or after since, oldest first.
	GetMilestones(ctx context.Context, matchID string, since time.Time) ([]model.Milestone, error)

	GetWeights(ctx context.Context) ([]model.FactorWeight, error)
	UpsertWeight(ctx context.Context, w model.FactorWeight) error
	// UpsertWeights writes every row or none.
	UpsertWeights(ctx context.Context, ws []model.FactorWeight) error

	GetProviderProfile(ctx context.Context, id string) (model.ProviderProfile, error)
	UpsertProviderProfile(ctx context.Context, p model.ProviderProfile) error
	ListProviders(ctx context.Context) ([]model.ProviderProfile, error)
	// ActiveProviders lists providers with an outcome updated at or after since.
	ActiveProviders(ctx context.Context, since time.Time) ([]string, error)
	GetClientProfile(ctx context.Context, id string) (model.ClientProfile, error)
	UpsertClientProfile(ctx context.Context, c model.ClientProfile) error

	SavePrediction(ctx context.Context, p model.EngagementPrediction) error
	GetPrediction(ctx context.Context, matchID string) (model.EngagementPrediction, error)
	ListPredictions(ctx context.Context, f model.PredictionFilter) ([]model.EngagementPrediction, error)

	SavePerformanceSnapshot(ctx context.Context, s model.PerformanceSnapshot) error
	GetPerformanceSnapshot(ctx context.Context, providerID string) (model.PerformanceSnapshot, error)

	Close() error
}
