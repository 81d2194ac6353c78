// Package patterns classifies the interaction and milestone history of a
// match and derives its engagement signals.
package patterns

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/pkg/logger"
)

const (
	DefaultWindowDays = 30
	MaxWindowDays     = 365
)

// Store is what the analyzer reads and writes.
type Store interface {
	GetInteractions(ctx context.Context, matchID string, since time.Time) ([]model.Interaction, error)
	GetMilestones(ctx context.Context, matchID string, since time.Time) ([]model.Milestone, error)
	GetOutcome(ctx context.Context, matchID string) (model.MatchOutcome, error)
	SavePrediction(ctx context.Context, p model.EngagementPrediction) error
}

// Options tune a single analysis.
type Options struct {
	WindowDays int
	// AsOf pins the analysis to a point in time. Pinned analyses ignore
	// later records and are never cached.
	AsOf        time.Time
	BypassCache bool
}

// Signals are the engagement figures derived from the sub-reports.
type Signals struct {
	EngagementScore        float64 `json:"engagement_score"`
	DropoutRisk            float64 `json:"dropout_risk"`
	PartnershipProbability float64 `json:"partnership_probability"`
	AvgResponseHours       float64 `json:"avg_response_hours"`
	EstimatedRevenue       float64 `json:"estimated_revenue"`
}

// Report is the full pattern analysis of one match.
type Report struct {
	MatchID            string    `json:"match_id"`
	WindowDays         int       `json:"window_days"`
	Interactions       int       `json:"interactions"`
	Milestones         int       `json:"milestones"`
	Frequency          SubReport `json:"frequency"`
	Timing             SubReport `json:"timing"`
	Quality            SubReport `json:"quality"`
	ResponseBalance    SubReport `json:"response_balance"`
	CommunicationStyle SubReport `json:"communication_style"`
	Momentum           SubReport `json:"momentum"`
	Progression        SubReport `json:"progression"`
	Signals            Signals   `json:"signals"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// CacheKey is the cache key of a match analysis over windowDays.
func CacheKey(matchID string, windowDays int) string {
	return cache.Key("patterns", matchID, strconv.Itoa(windowDays))
}

// Analyzer builds pattern reports and keeps engagement predictions current.
type Analyzer struct {
	store  Store
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

// New constructs an Analyzer.
func New(store Store, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:  store,
		ttl:    10 * time.Minute,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze classifies the match's history over the trailing window and
// persists the derived engagement prediction. An empty history is not an
// error: every sub-report reads insufficient_data.
func (a *Analyzer) Analyze(ctx context.Context, matchID string, opts Options) (Report, error) {
	const op = "analyze_patterns"
	if strings.TrimSpace(matchID) == "" {
		return Report{}, fault.Validation(op, "match id is required")
	}
	if opts.WindowDays < 0 || opts.WindowDays > MaxWindowDays {
		return Report{}, fault.Validation(op, "window_days must be within [0,%d]", MaxWindowDays)
	}
	if opts.WindowDays == 0 {
		opts.WindowDays = DefaultWindowDays
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = a.now()
	}

	key := CacheKey(matchID, opts.WindowDays)
	useCache := a.cache != nil && opts.AsOf.IsZero()
	if useCache && !opts.BypassCache {
		if r, ok, err := cache.GetJSON[Report](ctx, a.cache, key); err == nil && ok {
			return r, nil
		} else if err != nil {
			a.logger.Warn(ctx, "pattern cache read", logger.String("key", key), logger.Error(err))
		}
	}

	since := asOf.Add(-time.Duration(opts.WindowDays) * day)
	interactions, err := a.store.GetInteractions(ctx, matchID, since)
	if err != nil {
		return Report{}, fault.Store(op, err)
	}
	milestones, err := a.store.GetMilestones(ctx, matchID, time.Time{})
	if err != nil {
		return Report{}, fault.Store(op, err)
	}
	interactions = slices.DeleteFunc(interactions, func(in model.Interaction) bool { return in.OccurredAt.After(asOf) })
	milestones = slices.DeleteFunc(milestones, func(m model.Milestone) bool { return m.ReachedAt.After(asOf) })
	outcome, err := a.store.GetOutcome(ctx, matchID)
	if err != nil && !errors.Is(err, fault.ErrNotFound) {
		return Report{}, fault.Store(op, err)
	}

	sort.SliceStable(interactions, func(i, j int) bool {
		return interactions[i].OccurredAt.Before(interactions[j].OccurredAt)
	})
	r := Report{
		MatchID:            matchID,
		WindowDays:         opts.WindowDays,
		Interactions:       len(interactions),
		Milestones:         len(milestones),
		Frequency:          Frequency(interactions),
		Timing:             Timing(interactions),
		Quality:            Quality(interactions),
		ResponseBalance:    ResponseBalance(interactions),
		CommunicationStyle: CommunicationStyle(interactions),
		Momentum:           Momentum(interactions),
		Progression:        Milestones(milestones, asOf),
		GeneratedAt:        asOf,
	}
	r.Signals = Derive(r, interactions, milestones, outcome, asOf)

	pred := model.EngagementPrediction{
		MatchID:                matchID,
		ProviderID:             outcome.ProviderID,
		ClientID:               outcome.ClientID,
		EngagementScore:        r.Signals.EngagementScore,
		PartnershipProbability: r.Signals.PartnershipProbability,
		DropoutRisk:            r.Signals.DropoutRisk,
		EstimatedRevenue:       r.Signals.EstimatedRevenue,
		AvgResponseHours:       r.Signals.AvgResponseHours,
		Momentum:               r.Momentum.PatternType,
		UpdatedAt:              asOf,
	}
	if err := a.store.SavePrediction(ctx, pred); err != nil {
		return Report{}, fault.Store(op, err)
	}

	if useCache {
		if err := cache.SetJSON(ctx, a.cache, key, r, a.ttl); err != nil {
			a.logger.Warn(ctx, "pattern cache write", logger.String("key", key), logger.Error(err))
		}
	}
	a.logger.Debug(ctx, "patterns analyzed",
		logger.String("match_id", matchID),
		logger.Int("interactions", len(interactions)),
		logger.String("momentum", r.Momentum.PatternType))
	return r, nil
}

var momentumScore = map[string]float64{
	Accelerating: 1.0,
	Building:     0.85,
	Consistent:   0.65,
	Stable:       0.6,
	Declining:    0.2,
}

// Derive computes engagement signals from a report and its inputs.
func Derive(r Report, in []model.Interaction, ms []model.Milestone, o model.MatchOutcome, asOf time.Time) Signals {
	var s Signals

	frequency := 0.0
	if pw, ok := r.Frequency.Metrics["per_week"]; ok {
		frequency = math.Min(1, pw/5)
	} else if len(in) == 1 {
		frequency = 0.1
	}
	quality := 0.5
	if len(in) > 0 {
		sum := 0.0
		for _, x := range in {
			sum += x.QualityScore
		}
		quality = sum / float64(len(in))
	}
	momentum, ok := momentumScore[r.Momentum.PatternType]
	if !ok {
		momentum = 0.5
	}
	maxStage := 0
	for _, m := range ms {
		maxStage = max(maxStage, m.Type.Stage())
	}
	progress := float64(maxStage) / float64(len(model.MilestoneStages))

	responsiveness := 0.5
	if h, ok := r.Timing.Metrics["mean_response_hours"]; ok {
		s.AvgResponseHours = h
		responsiveness = math.Max(0, 1-h/48)
	} else {
		var sum float64
		var n int
		for _, x := range in {
			if x.ResponseTimeMinutes != nil {
				sum += *x.ResponseTimeMinutes / 60
				n++
			}
		}
		if n > 0 {
			s.AvgResponseHours = sum / float64(n)
			responsiveness = math.Max(0, 1-s.AvgResponseHours/48)
		}
	}

	s.EngagementScore = clamp(0.3*frequency+0.25*quality+0.2*momentum+0.15*progress+0.1*responsiveness, 0, 1)

	risk := 1 - s.EngagementScore
	if r.Momentum.PatternType == Declining {
		risk += 0.15
	}
	if n := len(in); n > 0 && asOf.Sub(in[n-1].OccurredAt) > 14*day {
		risk += 0.2
	} else if n == 0 {
		risk += 0.1
	}
	s.DropoutRisk = clamp(risk, 0, 1)

	switch {
	case o.Determined() && o.Succeeded():
		s.PartnershipProbability = 1
		s.DropoutRisk = 0
	case o.Determined():
		s.PartnershipProbability = 0
	default:
		p := 0.15 + 0.55*s.EngagementScore + 0.3*progress - 0.2*s.DropoutRisk
		if o.ContractSigned || maxStage >= model.MilestoneContractSigned.Stage() {
			p = math.Max(p, 0.9)
		}
		s.PartnershipProbability = clamp(p, 0.02, 0.98)
	}

	switch {
	case o.RevenueGenerated > 0:
		s.EstimatedRevenue = o.RevenueGenerated
	default:
		s.EstimatedRevenue = o.ProjectValue * s.PartnershipProbability
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
