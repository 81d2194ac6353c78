// Package recommend ranks providers for a client by learned compatibility
// score adjusted for market, season and provider performance.
package recommend

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/internal/domain/scoring"
	"github.com/okian/matchloop/pkg/logger"
	"github.com/okian/matchloop/pkg/metrics"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// Store is what the recommender reads.
type Store interface {
	ListProviders(ctx context.Context) ([]model.ProviderProfile, error)
	GetProviderProfile(ctx context.Context, id string) (model.ProviderProfile, error)
	GetWeights(ctx context.Context) ([]model.FactorWeight, error)
	GetPerformanceSnapshot(ctx context.Context, providerID string) (model.PerformanceSnapshot, error)
}

// DemandSource supplies per-industry market demand.
type DemandSource interface {
	DemandIndex(industry string) float64
}

// Options tune one recommendation.
type Options struct {
	Limit    int
	MinScore float64
	// ProviderIDs restricts the candidate pool when set.
	ProviderIDs []string
	AsOf        time.Time
	BypassCache bool
	// Ephemeral lists are neither read from nor written to the cache. Used
	// for client profiles sent inline that may differ from the stored one.
	Ephemeral bool
}

// Candidate is one ranked provider.
type Candidate struct {
	Rank          int                    `json:"rank"`
	ProviderID    string                 `json:"provider_id"`
	BaseScore     float64                `json:"base_score"`
	AdjustedScore float64                `json:"adjusted_score"`
	Adjustments   Adjustments            `json:"adjustments"`
	Breakdown     []scoring.FactorResult `json:"breakdown"`
	Confidence    float64                `json:"confidence"`
	Explanations  []string               `json:"explanations"`
}

// RankedList is a client's recommendation.
type RankedList struct {
	ClientID       string      `json:"client_id"`
	Candidates     []Candidate `json:"candidates"`
	Evaluated      int         `json:"evaluated"`
	WeightsVersion time.Time   `json:"weights_version"`
	GeneratedAt    time.Time   `json:"generated_at"`
}

// CacheKey is the cache key of a recommendation; every key for a client
// shares the "recommend:{clientID}:" prefix.
func CacheKey(clientID string, opts Options) string {
	ids := append([]string(nil), opts.ProviderIDs...)
	sort.Strings(ids)
	return cache.Key("recommend", clientID,
		strconv.Itoa(opts.Limit),
		strconv.FormatFloat(opts.MinScore, 'f', -1, 64),
		opts.AsOf.Format("2006-01"),
		strings.Join(ids, ","))
}

// Recommender produces ranked provider lists.
type Recommender struct {
	store  Store
	scorer scoring.Scorer
	demand DemandSource
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

// New constructs a Recommender. Without WithDemand the market adjustment
// stays neutral.
func New(store Store, scorer scoring.Scorer, opts ...Option) *Recommender {
	r := &Recommender{
		store:  store,
		scorer: scorer,
		ttl:    30 * time.Minute,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recommend scores every candidate provider against client with the current
// learned weights and returns the best Limit by adjusted score.
func (r *Recommender) Recommend(ctx context.Context, client model.ClientProfile, opts Options) (RankedList, error) {
	const op = "recommend"
	if strings.TrimSpace(client.ID) == "" {
		return RankedList{}, fault.Validation(op, "client id is required")
	}
	switch {
	case opts.Limit < 0 || opts.Limit > MaxLimit:
		return RankedList{}, fault.Validation(op, "limit must be within [1,%d]", MaxLimit)
	case opts.Limit == 0:
		opts.Limit = DefaultLimit
	}
	if opts.MinScore < 0 || opts.MinScore > 100 {
		return RankedList{}, fault.Validation(op, "min_score must be within [0,100]")
	}
	if opts.AsOf.IsZero() {
		opts.AsOf = r.now()
	}

	key := CacheKey(client.ID, opts)
	useCache := r.cache != nil && !opts.Ephemeral
	if useCache && !opts.BypassCache {
		if list, ok, err := cache.GetJSON[RankedList](ctx, r.cache, key); err == nil && ok {
			metrics.RecordRecommendation()
			return list, nil
		}
	}

	providers, err := r.candidates(ctx, opts.ProviderIDs)
	if err != nil {
		return RankedList{}, err
	}
	rows, err := r.store.GetWeights(ctx)
	if err != nil {
		return RankedList{}, fault.Store(op, err)
	}
	weights := model.NewWeightSet(rows)

	demand := 1.0
	if r.demand != nil {
		demand = r.demand.DemandIndex(client.Industry)
	}

	list := RankedList{
		ClientID:       client.ID,
		Candidates:     make([]Candidate, 0, len(providers)),
		Evaluated:      len(providers),
		WeightsVersion: weights.Version(),
		GeneratedAt:    opts.AsOf,
	}
	for _, p := range providers {
		res, err := r.scorer.Score(ctx, client, p, weights)
		if err != nil {
			if ctx.Err() != nil {
				return RankedList{}, ctx.Err()
			}
			r.logger.Warn(ctx, "score candidate", logger.String("provider_id", p.ID), logger.Error(err))
			continue
		}
		tier, err := r.tier(ctx, p.ID)
		if err != nil {
			return RankedList{}, err
		}
		adj := adjustments(demand, p, tier, opts.AsOf)
		adjusted := min(100, res.TotalScore*adj.Combined())
		if adjusted < opts.MinScore {
			continue
		}
		list.Candidates = append(list.Candidates, Candidate{
			ProviderID:    p.ID,
			BaseScore:     res.TotalScore,
			AdjustedScore: adjusted,
			Adjustments:   adj,
			Breakdown:     res.Breakdown,
			Confidence:    res.Confidence,
			Explanations:  explain(res, adj, client.Industry, tier),
		})
	}

	sort.SliceStable(list.Candidates, func(i, j int) bool {
		a, b := list.Candidates[i], list.Candidates[j]
		if a.AdjustedScore != b.AdjustedScore {
			return a.AdjustedScore > b.AdjustedScore
		}
		return a.ProviderID < b.ProviderID
	})
	if len(list.Candidates) > opts.Limit {
		list.Candidates = list.Candidates[:opts.Limit]
	}
	for i := range list.Candidates {
		list.Candidates[i].Rank = i + 1
	}

	metrics.RecordRecommendation()
	if useCache {
		if err := cache.SetJSON(ctx, r.cache, key, list, r.ttl); err != nil {
			r.logger.Warn(ctx, "recommend cache write", logger.String("key", key), logger.Error(err))
		}
	}
	return list, nil
}

// candidates loads the pool. Unknown ids in an explicit list are skipped.
func (r *Recommender) candidates(ctx context.Context, ids []string) ([]model.ProviderProfile, error) {
	if len(ids) == 0 {
		ps, err := r.store.ListProviders(ctx)
		if err != nil {
			return nil, fault.Store("list_providers", err)
		}
		return ps, nil
	}
	out := make([]model.ProviderProfile, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p, err := r.store.GetProviderProfile(ctx, id)
		switch {
		case errors.Is(err, fault.ErrNotFound):
			r.logger.Debug(ctx, "unknown candidate", logger.String("provider_id", id))
		case err != nil:
			return nil, fault.Store("get_provider", err)
		default:
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *Recommender) tier(ctx context.Context, providerID string) (model.Tier, error) {
	snap, err := r.store.GetPerformanceSnapshot(ctx, providerID)
	switch {
	case errors.Is(err, fault.ErrNotFound):
		return model.TierNew, nil
	case err != nil:
		return "", fault.Store("get_performance", err)
	}
	return snap.Tier, nil
}
