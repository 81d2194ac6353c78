// Package performance scores providers on seven outcome and engagement
// dimensions and ranks them against their active peers.
package performance

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/internal/adapters/repository"
	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/pkg/logger"
	"github.com/okian/matchloop/pkg/metrics"
)

// Snapshot statuses.
const (
	StatusScored           = "scored"
	StatusInsufficientData = "insufficient_data"
)

const (
	DefaultWindowDays = 90
	day               = 24 * time.Hour
)

// Store is what the scorer reads and writes.
type Store interface {
	GetOutcomes(ctx context.Context, f model.OutcomeFilter) ([]model.MatchOutcome, error)
	GetInteractions(ctx context.Context, matchID string, since time.Time) ([]model.Interaction, error)
	GetMilestones(ctx context.Context, matchID string, since time.Time) ([]model.Milestone, error)
	GetProviderProfile(ctx context.Context, id string) (model.ProviderProfile, error)
	ActiveProviders(ctx context.Context, since time.Time) ([]string, error)
	SavePerformanceSnapshot(ctx context.Context, s model.PerformanceSnapshot) error
	GetPerformanceSnapshot(ctx context.Context, providerID string) (model.PerformanceSnapshot, error)
}

// Board ranks providers by overall score.
type Board interface {
	Upsert(ctx context.Context, providerID string, score float64, tier string, at time.Time) error
	Rank(ctx context.Context, providerID string) (repository.Standing, error)
	PruneBefore(ctx context.Context, cutoff time.Time) int
}

// Publisher emits fire-and-forget events.
type Publisher interface {
	Publish(ctx context.Context, e model.Event)
}

// Options tune one scoring.
type Options struct {
	WindowDays  int
	AsOf        time.Time
	BypassCache bool
}

// BatchReport summarises a scheduled scoring run.
type BatchReport struct {
	Providers    int           `json:"providers"`
	Scored       int           `json:"scored"`
	Insufficient int           `json:"insufficient"`
	Failed       int           `json:"failed"`
	Duration     time.Duration `json:"duration"`
}

// CacheKey is the cache key of a provider's snapshot over windowDays.
func CacheKey(providerID string, windowDays int) string {
	return cache.Key("performance", providerID, strconv.Itoa(windowDays))
}

// Scorer computes performance snapshots.
type Scorer struct {
	store       Store
	board       Board
	cache       cache.Cache
	ttl         time.Duration
	publisher   Publisher
	activeDays  int
	concurrency int
	now         func() time.Time
	logger      logger.Logger
}

// New constructs a Scorer. Without WithBoard it ranks on a private
// in-memory leaderboard.
func New(store Store, opts ...Option) *Scorer {
	s := &Scorer{
		store:       store,
		ttl:         30 * time.Minute,
		activeDays:  30,
		concurrency: 8,
		now:         time.Now,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.board == nil {
		s.board = repository.NewLeaderboard()
	}
	return s
}

// Score computes, ranks and persists providerID's snapshot. A provider
// without outcomes in the window gets an insufficient_data snapshot and is
// not ranked.
func (s *Scorer) Score(ctx context.Context, providerID string, opts Options) (model.PerformanceSnapshot, error) {
	const op = "score_performance"
	if strings.TrimSpace(providerID) == "" {
		return model.PerformanceSnapshot{}, fault.Validation(op, "provider id is required")
	}
	if opts.WindowDays < 0 {
		return model.PerformanceSnapshot{}, fault.Validation(op, "window_days must not be negative")
	}
	if opts.WindowDays == 0 {
		opts.WindowDays = DefaultWindowDays
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}

	key := CacheKey(providerID, opts.WindowDays)
	if s.cache != nil && !opts.BypassCache {
		if snap, ok, err := cache.GetJSON[model.PerformanceSnapshot](ctx, s.cache, key); err == nil && ok {
			return snap, nil
		}
	}

	since := asOf.Add(-time.Duration(opts.WindowDays) * day)
	outcomes, err := s.store.GetOutcomes(ctx, model.OutcomeFilter{ProviderID: providerID, Since: since})
	if err != nil {
		return model.PerformanceSnapshot{}, fault.Store(op, err)
	}

	snap := model.PerformanceSnapshot{
		ProviderID:   providerID,
		OutcomeCount: len(outcomes),
		Tier:         model.TierNew,
		ComputedAt:   asOf,
	}
	if len(outcomes) == 0 {
		snap.Status = StatusInsufficientData
		metrics.RecordPerformanceScored(StatusInsufficientData)
		if err := s.store.SavePerformanceSnapshot(ctx, snap); err != nil {
			return model.PerformanceSnapshot{}, fault.Store(op, err)
		}
		return snap, nil
	}

	history := make([]matchHistory, 0, len(outcomes))
	for _, o := range outcomes {
		in, err := s.store.GetInteractions(ctx, o.MatchID, since)
		if err != nil {
			return model.PerformanceSnapshot{}, fault.Store(op, err)
		}
		ms, err := s.store.GetMilestones(ctx, o.MatchID, since)
		if err != nil {
			return model.PerformanceSnapshot{}, fault.Store(op, err)
		}
		history = append(history, matchHistory{outcome: o, interactions: in, milestones: ms})
	}
	var profile *model.ProviderProfile
	p, err := s.store.GetProviderProfile(ctx, providerID)
	switch {
	case err == nil:
		profile = &p
	case !errors.Is(err, fault.ErrNotFound):
		return model.PerformanceSnapshot{}, fault.Store(op, err)
	}

	snap.Status = StatusScored
	snap.Dimensions, snap.OverallScore = Evaluate(observe(history, profile))
	snap.Tier = TierFor(snap.OverallScore)

	if err := s.board.Upsert(ctx, providerID, snap.OverallScore, string(snap.Tier), asOf); err != nil {
		return model.PerformanceSnapshot{}, err
	}
	s.board.PruneBefore(ctx, asOf.Add(-time.Duration(s.activeDays)*day))
	if err := s.applyStanding(ctx, &snap); err != nil {
		return model.PerformanceSnapshot{}, err
	}
	if err := s.store.SavePerformanceSnapshot(ctx, snap); err != nil {
		return model.PerformanceSnapshot{}, fault.Store(op, err)
	}

	metrics.RecordPerformanceScored(StatusScored)
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, snap, s.ttl); err != nil {
			s.logger.Warn(ctx, "performance cache write", logger.String("key", key), logger.Error(err))
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, model.Event{
			Type:       model.EventPerformanceScored,
			ProviderID: providerID,
			Payload: map[string]any{
				"overall_score": snap.OverallScore,
				"tier":          string(snap.Tier),
				"rank":          snap.Rank,
			},
		})
	}
	return snap, nil
}

func (s *Scorer) applyStanding(ctx context.Context, snap *model.PerformanceSnapshot) error {
	st, err := s.board.Rank(ctx, snap.ProviderID)
	if err != nil {
		return err
	}
	snap.Rank = st.Rank
	snap.Percentile = st.Percentile
	snap.PeerCount = st.PeerCount
	return nil
}

// Batch scores every provider with an outcome in the active window using
// bounded concurrency. A failing provider is logged and counted; it does not
// stop the batch. Ranks are refreshed once every provider is on the board.
func (s *Scorer) Batch(ctx context.Context) (BatchReport, error) {
	start := s.now()
	ids, err := s.store.ActiveProviders(ctx, start.Add(-time.Duration(s.activeDays)*day))
	if err != nil {
		return BatchReport{}, fault.Store("performance_batch", err)
	}

	var scored, insufficient, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			snap, err := s.Score(gctx, id, Options{AsOf: start, BypassCache: true})
			switch {
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				metrics.RecordErrorByComponent("performance", string(fault.KindOf(err)))
				s.logger.Error(gctx, "score provider", logger.String("provider_id", id), logger.Error(err))
			case snap.Status == StatusInsufficientData:
				insufficient.Add(1)
			default:
				scored.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchReport{}, err
	}

	// Scores computed early in the batch were ranked against a partial board.
	for _, id := range ids {
		snap, err := s.store.GetPerformanceSnapshot(ctx, id)
		if err != nil || snap.Status != StatusScored {
			continue
		}
		if err := s.applyStanding(ctx, &snap); err != nil {
			continue
		}
		if err := s.store.SavePerformanceSnapshot(ctx, snap); err != nil {
			s.logger.Warn(ctx, "save reranked snapshot", logger.String("provider_id", id), logger.Error(err))
		}
	}

	report := BatchReport{
		Providers:    len(ids),
		Scored:       int(scored.Load()),
		Insufficient: int(insufficient.Load()),
		Failed:       int(failed.Load()),
		Duration:     s.now().Sub(start),
	}
	s.logger.Info(ctx, "performance batch finished",
		logger.Int("providers", report.Providers),
		logger.Int("scored", report.Scored),
		logger.Int("failed", report.Failed),
		logger.Duration("took", report.Duration))
	return report, nil
}
