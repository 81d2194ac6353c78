// Package market keeps per-industry demand indices and the revenue trend
// derived from recent outcomes. Reads are served from an immutable snapshot
// swapped in by Refresh.
package market

import (
	"context"
	"errors"
	"maps"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/forecast"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/pkg/logger"
)

const (
	minDemand = 0.9
	maxDemand = 1.1
	// demandSensitivity scales the gap between industry and overall success rates.
	demandSensitivity = 0.5
)

// Store is what a refresh reads.
type Store interface {
	GetOutcomes(ctx context.Context, f model.OutcomeFilter) ([]model.MatchOutcome, error)
	GetClientProfile(ctx context.Context, id string) (model.ClientProfile, error)
}

// Snapshot is one refresh's view of the market.
type Snapshot struct {
	DemandIndex        map[string]float64 `json:"demand_index"`
	IndustryOutcomes   map[string]int     `json:"industry_outcomes"`
	OverallSuccessRate float64            `json:"overall_success_rate"`
	RevenueTrend       float64            `json:"revenue_trend"`
	Outcomes           int                `json:"outcomes"`
	RefreshedAt        time.Time          `json:"refreshed_at"`
}

// Intelligence serves market signals to the forecaster and recommender.
type Intelligence struct {
	store       Store
	window      time.Duration
	minIndustry int
	now         func() time.Time
	logger      logger.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// New constructs an Intelligence with neutral signals until the first refresh.
func New(store Store, opts ...Option) *Intelligence {
	m := &Intelligence{
		store:       store,
		window:      180 * 24 * time.Hour,
		minIndustry: 5,
		now:         time.Now,
		logger:      logger.Nop(),
		snap:        Snapshot{RevenueTrend: forecast.DefaultTrend},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NormalizeIndustry is the key used for demand lookups.
func NormalizeIndustry(industry string) string {
	return strings.ToLower(strings.TrimSpace(industry))
}

// Refresh recomputes every signal from determined outcomes in the window.
func (m *Intelligence) Refresh(ctx context.Context) (Snapshot, error) {
	now := m.now()
	outcomes, err := m.store.GetOutcomes(ctx, model.OutcomeFilter{Since: now.Add(-m.window), OnlyDetermined: true})
	if err != nil {
		return Snapshot{}, fault.Store("market_refresh", err)
	}

	industries := make(map[string]string)
	type tally struct{ n, ok int }
	byIndustry := make(map[string]*tally)
	successes := 0
	half := now.Add(-m.window / 2)
	var recentRevenue, priorRevenue float64
	for _, o := range outcomes {
		if o.Succeeded() {
			successes++
			if o.UpdatedAt.Before(half) {
				priorRevenue += o.RevenueGenerated
			} else {
				recentRevenue += o.RevenueGenerated
			}
		}
		industry, seen := industries[o.ClientID]
		if !seen {
			c, err := m.store.GetClientProfile(ctx, o.ClientID)
			switch {
			case errors.Is(err, fault.ErrNotFound):
			case err != nil:
				return Snapshot{}, fault.Store("market_refresh", err)
			default:
				industry = NormalizeIndustry(c.Industry)
			}
			industries[o.ClientID] = industry
		}
		if industry == "" {
			continue
		}
		t := byIndustry[industry]
		if t == nil {
			t = &tally{}
			byIndustry[industry] = t
		}
		t.n++
		if o.Succeeded() {
			t.ok++
		}
	}

	snap := Snapshot{
		DemandIndex:      make(map[string]float64, len(byIndustry)),
		IndustryOutcomes: make(map[string]int, len(byIndustry)),
		Outcomes:         len(outcomes),
		RevenueTrend:     forecast.DefaultTrend,
		RefreshedAt:      now,
	}
	if len(outcomes) > 0 {
		snap.OverallSuccessRate = float64(successes) / float64(len(outcomes))
	}
	for industry, t := range byIndustry {
		snap.IndustryOutcomes[industry] = t.n
		idx := 1.0
		if t.n >= m.minIndustry {
			rate := float64(t.ok) / float64(t.n)
			idx = math.Max(minDemand, math.Min(maxDemand, 1+(rate-snap.OverallSuccessRate)*demandSensitivity))
		}
		snap.DemandIndex[industry] = idx
	}
	if priorRevenue > 0 && successes >= m.minIndustry {
		snap.RevenueTrend = forecast.Trend(recentRevenue / priorRevenue)
	}

	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()

	m.logger.Info(ctx, "market signals refreshed",
		logger.Int("outcomes", snap.Outcomes),
		logger.Int("industries", len(snap.DemandIndex)),
		logger.Float64("revenue_trend", snap.RevenueTrend))
	return cloneSnapshot(snap), nil
}

// DemandIndex returns the industry's demand multiplier, 1 when unknown.
func (m *Intelligence) DemandIndex(industry string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.snap.DemandIndex[NormalizeIndustry(industry)]; ok {
		return v
	}
	return 1
}

// RevenueTrend returns the market revenue multiplier.
func (m *Intelligence) RevenueTrend() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.RevenueTrend
}

// Snapshot returns a copy of the latest signals.
func (m *Intelligence) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSnapshot(m.snap)
}

func cloneSnapshot(s Snapshot) Snapshot {
	s.DemandIndex = maps.Clone(s.DemandIndex)
	s.IndustryOutcomes = maps.Clone(s.IndustryOutcomes)
	return s
}
