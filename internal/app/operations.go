package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/internal/adapters/repository"
	"github.com/okian/matchloop/internal/domain/dedupe"
	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/forecast"
	"github.com/okian/matchloop/internal/domain/learning"
	"github.com/okian/matchloop/internal/domain/market"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/internal/domain/optimizer"
	"github.com/okian/matchloop/internal/domain/patterns"
	"github.com/okian/matchloop/internal/domain/performance"
	"github.com/okian/matchloop/internal/domain/recommend"
	"github.com/okian/matchloop/internal/domain/scoring"
	"github.com/okian/matchloop/internal/domain/types"
	"github.com/okian/matchloop/internal/scheduler"
	"github.com/okian/matchloop/pkg/logger"
	"github.com/okian/matchloop/pkg/metrics"
)

// Score computes the compatibility of a pair with the current learned
// weights. Inline profiles need not be stored.
func (s *Service) Score(ctx context.Context, pair scoring.Pair) (scoring.Result, error) {
	const op = "score"
	client, err := s.resolveClient(ctx, op, pair.ClientID, pair.Client)
	if err != nil {
		return scoring.Result{}, err
	}
	provider, err := s.resolveProvider(ctx, op, pair.ProviderID, pair.Provider)
	if err != nil {
		return scoring.Result{}, err
	}
	rows, err := s.store.GetWeights(ctx)
	if err != nil {
		return scoring.Result{}, fault.Store(op, err)
	}
	return s.scorer.Score(ctx, client, provider, model.NewWeightSet(rows))
}

// Recommend ranks providers for a stored client.
func (s *Service) Recommend(ctx context.Context, clientID string, opts recommend.Options) (recommend.RankedList, error) {
	const op = "recommend"
	if err := s.checkRecommendLimit(op, opts); err != nil {
		return recommend.RankedList{}, err
	}
	client, err := s.resolveClient(ctx, op, clientID, nil)
	if err != nil {
		return recommend.RankedList{}, err
	}
	return s.recommender.Recommend(ctx, client, opts)
}

// RecommendFor ranks providers for a client profile given inline. The list
// is not cached.
func (s *Service) RecommendFor(ctx context.Context, client model.ClientProfile, opts recommend.Options) (recommend.RankedList, error) {
	const op = "recommend"
	if err := s.checkRecommendLimit(op, opts); err != nil {
		return recommend.RankedList{}, err
	}
	c, err := s.resolveClient(ctx, op, "", &client)
	if err != nil {
		return recommend.RankedList{}, err
	}
	opts.Ephemeral = true
	return s.recommender.Recommend(ctx, c, opts)
}

func (s *Service) checkRecommendLimit(op string, opts recommend.Options) error {
	if opts.Limit > s.cfg.MaxRecommendationLimit {
		return fault.Validation(op, "limit must not exceed %d", s.cfg.MaxRecommendationLimit)
	}
	return nil
}

// resolveClient returns the inline profile when given, filling its id from
// id, and the stored profile otherwise.
func (s *Service) resolveClient(ctx context.Context, op, id string, inline *model.ClientProfile) (model.ClientProfile, error) {
	id = strings.TrimSpace(id)
	if inline == nil {
		if id == "" {
			return model.ClientProfile{}, fault.Validation(op, "client_id or client is required")
		}
		return s.store.GetClientProfile(ctx, id)
	}
	c := *inline
	switch {
	case strings.TrimSpace(c.ID) == "":
		c.ID = id
	case id != "" && id != c.ID:
		return model.ClientProfile{}, fault.Validation(op, "client_id %q does not match client.id %q", id, c.ID)
	}
	if err := c.Validate(); err != nil {
		return model.ClientProfile{}, err
	}
	return c, nil
}

func (s *Service) resolveProvider(ctx context.Context, op, id string, inline *model.ProviderProfile) (model.ProviderProfile, error) {
	id = strings.TrimSpace(id)
	if inline == nil {
		if id == "" {
			return model.ProviderProfile{}, fault.Validation(op, "provider_id or provider is required")
		}
		return s.store.GetProviderProfile(ctx, id)
	}
	p := *inline
	switch {
	case strings.TrimSpace(p.ID) == "":
		p.ID = id
	case id != "" && id != p.ID:
		return model.ProviderProfile{}, fault.Validation(op, "provider_id %q does not match provider.id %q", id, p.ID)
	}
	if err := p.Validate(); err != nil {
		return model.ProviderProfile{}, err
	}
	return p, nil
}

// RunLearningCycle runs one weight learning cycle. force runs it below the
// minimum sample size.
func (s *Service) RunLearningCycle(ctx context.Context, force bool) (learning.Report, error) {
	report, err := s.learner.RunCycle(ctx, force)
	if report.Status != learning.StatusSkipped {
		s.lastLearning.Store(&report)
	}
	return report, err
}

// Forecast projects a match's revenue over months (0 means the default).
func (s *Service) Forecast(ctx context.Context, matchID string, months int) (forecast.Forecast, error) {
	return s.forecaster.Forecast(ctx, matchID, forecast.Options{Months: months})
}

// Patterns analyzes a match's engagement over windowDays (0 means the default).
func (s *Service) Patterns(ctx context.Context, matchID string, windowDays int) (patterns.Report, error) {
	return s.analyzer.Analyze(ctx, matchID, patterns.Options{WindowDays: windowDays})
}

// ScorePerformance scores one provider over windowDays (0 means the configured window).
func (s *Service) ScorePerformance(ctx context.Context, providerID string, windowDays int) (model.PerformanceSnapshot, error) {
	if windowDays == 0 {
		windowDays = s.cfg.PerformanceWindowDays
	}
	return s.performance.Score(ctx, providerID, performance.Options{WindowDays: windowDays})
}

// ScoreAllPerformance runs the performance batch now.
func (s *Service) ScoreAllPerformance(ctx context.Context) (performance.BatchReport, error) {
	return s.performance.Batch(ctx)
}

// Optimize builds a match's optimization plan, executing immediate
// automated interventions when auto_execute is on.
func (s *Service) Optimize(ctx context.Context, matchID string) (optimizer.Result, error) {
	return s.optimizer.Optimize(ctx, matchID, optimizer.Options{AutoExecute: s.cfg.AutoExecute})
}

// OptimizeAll runs the optimizer batch now.
func (s *Service) OptimizeAll(ctx context.Context) (optimizer.BatchReport, error) {
	return s.optimizer.Batch(ctx, s.cfg.AutoExecute)
}

// RefreshMarket recomputes market signals now.
func (s *Service) RefreshMarket(ctx context.Context) (market.Snapshot, error) {
	return s.market.Refresh(ctx)
}

// RecordOutcome validates and upserts an outcome, then drops every cached
// view it could have changed.
func (s *Service) RecordOutcome(ctx context.Context, o model.MatchOutcome) (model.MatchOutcome, error) {
	if err := o.Validate(); err != nil {
		return model.MatchOutcome{}, err
	}
	stored, err := s.store.RecordOutcome(ctx, o)
	if err != nil {
		return model.MatchOutcome{}, err
	}
	metrics.RecordOutcome()
	s.invalidate(ctx,
		cache.Key("patterns", stored.MatchID, ""),
		cache.Key("forecast", stored.MatchID, ""),
		optimizer.CacheKey(stored.MatchID),
		cache.Key("performance", stored.ProviderID, ""),
		cache.Key("recommend", stored.ClientID, ""))

	payload := map[string]any{"determined": stored.Determined()}
	if stored.Determined() {
		payload["partnership_formed"] = *stored.PartnershipFormed
	}
	s.queue.Publish(ctx, model.Event{
		Type:       model.EventOutcomeRecorded,
		MatchID:    stored.MatchID,
		ProviderID: stored.ProviderID,
		ClientID:   stored.ClientID,
		Payload:    payload,
	})
	return stored, nil
}

// AppendInteraction stores an interaction once. It reports false when the
// id was already applied.
func (s *Service) AppendInteraction(ctx context.Context, i model.Interaction) (bool, error) {
	if err := i.Validate(); err != nil {
		return false, err
	}
	ok, err := s.appendOnce(ctx, dedupe.Key("interaction", i.ID), func() (bool, error) {
		return s.store.AppendInteraction(ctx, i)
	})
	if err != nil || !ok {
		return ok, err
	}
	metrics.RecordInteraction()
	s.invalidate(ctx, cache.Key("patterns", i.MatchID, ""), optimizer.CacheKey(i.MatchID))
	return true, nil
}

// AppendMilestone stores a milestone once. It reports false when the id
// was already applied.
func (s *Service) AppendMilestone(ctx context.Context, m model.Milestone) (bool, error) {
	if m.Stage == 0 {
		m.Stage = m.Type.Stage()
	}
	if err := m.Validate(); err != nil {
		return false, err
	}
	ok, err := s.appendOnce(ctx, dedupe.Key("milestone", m.ID), func() (bool, error) {
		return s.store.AppendMilestone(ctx, m)
	})
	if err != nil || !ok {
		return ok, err
	}
	metrics.RecordMilestone()
	s.invalidate(ctx, cache.Key("patterns", m.MatchID, ""), optimizer.CacheKey(m.MatchID))
	return true, nil
}

// appendOnce consults the deduper before writing and forgets the id again
// when the write fails so a retry can succeed.
func (s *Service) appendOnce(ctx context.Context, key string, write func() (bool, error)) (bool, error) {
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordDuplicateAppend()
		return false, nil
	}
	inserted, err := write()
	if err != nil {
		s.deduper.Unrecord(ctx, key)
		return false, err
	}
	if !inserted {
		metrics.RecordDuplicateAppend()
	}
	return inserted, nil
}

// UpsertProvider stores a provider profile.
func (s *Service) UpsertProvider(ctx context.Context, p model.ProviderProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.store.UpsertProviderProfile(ctx, p); err != nil {
		return fault.Store("upsert_provider", err)
	}
	s.invalidate(ctx, "recommend:")
	return nil
}

// UpsertClient stores a client profile.
func (s *Service) UpsertClient(ctx context.Context, c model.ClientProfile) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.store.UpsertClientProfile(ctx, c); err != nil {
		return fault.Store("upsert_client", err)
	}
	s.invalidate(ctx, cache.Key("recommend", c.ID, ""))
	return nil
}

// Weights returns the current factor weights, seeding the baselines on an
// empty store.
func (s *Service) Weights(ctx context.Context) ([]model.FactorWeight, error) {
	ws, err := s.store.GetWeights(ctx)
	if err != nil {
		return nil, fault.Store("get_weights", err)
	}
	if len(ws) > 0 {
		return ws, nil
	}
	seed := scoring.DefaultWeights(s.clock.Now())
	if err := s.store.UpsertWeights(ctx, seed); err != nil {
		return nil, fault.Store("seed_weights", err)
	}
	s.logger.Info(ctx, "seeded baseline weights", logger.Int("factors", len(seed)))
	return seed, nil
}

// Leaderboard returns the best providers by latest performance score.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]types.Entry, error) {
	if limit < 1 || limit > s.cfg.MaxLeaderboardLimit {
		return nil, fault.Validation("leaderboard", "limit must be within [1,%d]", s.cfg.MaxLeaderboardLimit)
	}
	return s.board.TopN(ctx, limit)
}

// ProviderRank returns a provider's position on the performance board.
func (s *Service) ProviderRank(ctx context.Context, providerID string) (repository.Standing, error) {
	if strings.TrimSpace(providerID) == "" {
		return repository.Standing{}, fault.Validation("provider_rank", "provider id is required")
	}
	return s.board.Rank(ctx, providerID)
}

// Stats summarizes engine state.
func (s *Service) Stats(ctx context.Context) (types.Stats, error) {
	outcomes, err := s.store.CountOutcomes(ctx)
	if err != nil {
		return types.Stats{}, fault.Store("stats", err)
	}
	providers, err := s.store.ListProviders(ctx)
	if err != nil {
		return types.Stats{}, fault.Store("stats", err)
	}
	ws, err := s.store.GetWeights(ctx)
	if err != nil {
		return types.Stats{}, fault.Store("stats", err)
	}

	st := types.Stats{
		Outcomes:        outcomes,
		Providers:       len(providers),
		RankedProviders: s.board.Count(ctx),
		QueueDepth:      s.queue.Len(ctx),
		QueueCapacity:   s.queue.Capacity(),
		Workers:         s.pool.Size(),
		DedupeEntries:   s.deduper.Size(),
		LearningRunning: s.loop.Running(TaskLearning),
		Weights:         make(map[string]float64, len(ws)),
		RecentEvents:    s.events.len(),
	}
	for _, w := range ws {
		st.Weights[w.Factor] = w.CurrentWeight
	}
	if last := s.lastLearning.Load(); last != nil {
		st.LastLearningRun = last.StartedAt.Format(time.RFC3339)
		st.LastLearningStatus = last.Status
	}
	for _, ts := range s.loop.State() {
		status := types.TaskStatus{
			Name:     ts.Name,
			Interval: ts.Interval,
			Running:  ts.Running,
			LastRun:  ts.LastRun,
			Runs:     ts.Runs,
			Skips:    ts.Skips,
		}
		if ts.LastErr != nil {
			status.LastError = ts.LastErr.Error()
		}
		st.Tasks = append(st.Tasks, status)
	}
	return st, nil
}

func (s *Service) invalidate(ctx context.Context, prefixes ...string) {
	for _, p := range prefixes {
		if _, err := s.cache.Invalidate(ctx, p); err != nil {
			metrics.RecordErrorByComponent("cache", "invalidate")
			s.logger.Warn(ctx, "cache invalidation failed", logger.String("prefix", p), logger.Error(err))
		}
	}
}

// Trigger runs a scheduled task now. It reports false when the task was
// already in flight.
func (s *Service) Trigger(ctx context.Context, task string) (bool, error) {
	ran, err := s.loop.Trigger(ctx, task)
	if errors.Is(err, scheduler.ErrUnknownTask) {
		return false, fault.Validation("trigger", "unknown task %q", task)
	}
	return ran, err
}
