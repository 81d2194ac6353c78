package repository

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
)

// MemoryStore is an in-process Store. Values are copied on the way in and
// out so callers never share mutable state with the store.
type MemoryStore struct {
	opts storeOptions

	mu           sync.RWMutex
	outcomes     map[string]model.MatchOutcome
	interactions map[string][]model.Interaction
	milestones   map[string][]model.Milestone
	appended     map[string]struct{}
	weights      map[string]model.FactorWeight
	providers    map[string]model.ProviderProfile
	clients      map[string]model.ClientProfile
	predictions  map[string]model.EngagementPrediction
	snapshots    map[string]model.PerformanceSnapshot
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		opts:         o,
		outcomes:     make(map[string]model.MatchOutcome),
		interactions: make(map[string][]model.Interaction),
		milestones:   make(map[string][]model.Milestone),
		appended:     make(map[string]struct{}),
		weights:      make(map[string]model.FactorWeight),
		providers:    make(map[string]model.ProviderProfile),
		clients:      make(map[string]model.ClientProfile),
		predictions:  make(map[string]model.EngagementPrediction),
		snapshots:    make(map[string]model.PerformanceSnapshot),
	}
}

func (s *MemoryStore) RecordOutcome(_ context.Context, o model.MatchOutcome) (model.MatchOutcome, error) {
	now := s.opts.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	o = cloneOutcome(o)
	if prev, ok := s.outcomes[o.MatchID]; ok {
		o.CreatedAt = prev.CreatedAt
	} else if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	s.outcomes[o.MatchID] = o
	return cloneOutcome(o), nil
}

func (s *MemoryStore) GetOutcome(_ context.Context, matchID string) (model.MatchOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outcomes[matchID]
	if !ok {
		return model.MatchOutcome{}, fault.NotFound("get_outcome", "outcome", matchID)
	}
	return cloneOutcome(o), nil
}

func (s *MemoryStore) GetOutcomes(_ context.Context, f model.OutcomeFilter) ([]model.MatchOutcome, error) {
	s.mu.RLock()
	out := make([]model.MatchOutcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		if f.Matches(o) {
			out = append(out, cloneOutcome(o))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].MatchID < out[j].MatchID
	})
	return out, nil
}

func (s *MemoryStore) CountOutcomes(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outcomes), nil
}

func (s *MemoryStore) AppendInteraction(_ context.Context, i model.Interaction) (bool, error) {
	key := "interaction:" + i.ID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.appended[key]; dup {
		return false, nil
	}
	s.appended[key] = struct{}{}
	if i.ResponseTimeMinutes != nil {
		i.ResponseTimeMinutes = model.Float(*i.ResponseTimeMinutes)
	}
	s.interactions[i.MatchID] = append(s.interactions[i.MatchID], i)
	return true, nil
}

func (s *MemoryStore) AppendMilestone(_ context.Context, m model.Milestone) (bool, error) {
	key := "milestone:" + m.ID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.appended[key]; dup {
		return false, nil
	}
	s.appended[key] = struct{}{}
	s.milestones[m.MatchID] = append(s.milestones[m.MatchID], m)
	return true, nil
}

func (s *MemoryStore) GetInteractions(_ context.Context, matchID string, since time.Time) ([]model.Interaction, error) {
	s.mu.RLock()
	out := make([]model.Interaction, 0, len(s.interactions[matchID]))
	for _, i := range s.interactions[matchID] {
		if i.OccurredAt.Before(since) {
			continue
		}
		if i.ResponseTimeMinutes != nil {
			i.ResponseTimeMinutes = model.Float(*i.ResponseTimeMinutes)
		}
		out = append(out, i)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(a, b int) bool { return out[a].OccurredAt.Before(out[b].OccurredAt) })
	return out, nil
}

func (s *MemoryStore) GetMilestones(_ context.Context, matchID string, since time.Time) ([]model.Milestone, error) {
	s.mu.RLock()
	out := make([]model.Milestone, 0, len(s.milestones[matchID]))
	for _, m := range s.milestones[matchID] {
		if !m.ReachedAt.Before(since) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(a, b int) bool { return out[a].ReachedAt.Before(out[b].ReachedAt) })
	return out, nil
}

func (s *MemoryStore) GetWeights(_ context.Context) ([]model.FactorWeight, error) {
	s.mu.RLock()
	out := slices.Collect(maps.Values(s.weights))
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Factor < out[j].Factor })
	return out, nil
}

func (s *MemoryStore) UpsertWeight(ctx context.Context, w model.FactorWeight) error {
	return s.UpsertWeights(ctx, []model.FactorWeight{w})
}

// UpsertWeights validates every row before applying any of them.
func (s *MemoryStore) UpsertWeights(_ context.Context, ws []model.FactorWeight) error {
	for _, w := range ws {
		if w.Factor == "" {
			return fault.Validation("upsert_weights", "factor name is required")
		}
	}
	now := s.opts.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range ws {
		if w.UpdatedAt.IsZero() {
			w.UpdatedAt = now
		}
		s.weights[w.Factor] = w
	}
	return nil
}

func (s *MemoryStore) GetProviderProfile(_ context.Context, id string) (model.ProviderProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return model.ProviderProfile{}, fault.NotFound("get_provider", "provider", id)
	}
	return cloneProvider(p), nil
}

func (s *MemoryStore) UpsertProviderProfile(_ context.Context, p model.ProviderProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = cloneProvider(p)
	return nil
}

func (s *MemoryStore) ListProviders(_ context.Context) ([]model.ProviderProfile, error) {
	s.mu.RLock()
	out := make([]model.ProviderProfile, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, cloneProvider(p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ActiveProviders(_ context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	set := make(map[string]struct{})
	for _, o := range s.outcomes {
		if !o.UpdatedAt.Before(since) {
			set[o.ProviderID] = struct{}{}
		}
	}
	s.mu.RUnlock()

	return slices.Sorted(maps.Keys(set)), nil
}

func (s *MemoryStore) GetClientProfile(_ context.Context, id string) (model.ClientProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return model.ClientProfile{}, fault.NotFound("get_client", "client", id)
	}
	return cloneClient(c), nil
}

func (s *MemoryStore) UpsertClientProfile(_ context.Context, c model.ClientProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = cloneClient(c)
	return nil
}

func (s *MemoryStore) SavePrediction(_ context.Context, p model.EngagementPrediction) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.opts.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions[p.MatchID] = p
	return nil
}

func (s *MemoryStore) GetPrediction(_ context.Context, matchID string) (model.EngagementPrediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.predictions[matchID]
	if !ok {
		return model.EngagementPrediction{}, fault.NotFound("get_prediction", "prediction", matchID)
	}
	return p, nil
}

func (s *MemoryStore) ListPredictions(_ context.Context, f model.PredictionFilter) ([]model.EngagementPrediction, error) {
	s.mu.RLock()
	out := make([]model.EngagementPrediction, 0, len(s.predictions))
	for _, p := range s.predictions {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out, nil
}

func (s *MemoryStore) SavePerformanceSnapshot(_ context.Context, snap model.PerformanceSnapshot) error {
	snap.Dimensions = maps.Clone(snap.Dimensions)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ProviderID] = snap
	return nil
}

func (s *MemoryStore) GetPerformanceSnapshot(_ context.Context, providerID string) (model.PerformanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[providerID]
	if !ok {
		return model.PerformanceSnapshot{}, fault.NotFound("get_performance_snapshot", "snapshot", providerID)
	}
	snap.Dimensions = maps.Clone(snap.Dimensions)
	return snap, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func cloneOutcome(o model.MatchOutcome) model.MatchOutcome {
	if o.PartnershipFormed != nil {
		o.PartnershipFormed = model.Bool(*o.PartnershipFormed)
	}
	if o.ProviderSatisfaction != nil {
		o.ProviderSatisfaction = model.Float(*o.ProviderSatisfaction)
	}
	if o.ClientSatisfaction != nil {
		o.ClientSatisfaction = model.Float(*o.ClientSatisfaction)
	}
	o.FactorSnapshot = maps.Clone(o.FactorSnapshot)
	return o
}

func cloneProvider(p model.ProviderProfile) model.ProviderProfile {
	p.Specializations = slices.Clone(p.Specializations)
	p.PreferredBusinessSizes = slices.Clone(p.PreferredBusinessSizes)
	p.Services = slices.Clone(p.Services)
	p.CommunicationStyles = slices.Clone(p.CommunicationStyles)
	if p.YearsExperience != nil {
		p.YearsExperience = model.Int(*p.YearsExperience)
	}
	if p.AcceptingClients != nil {
		p.AcceptingClients = model.Bool(*p.AcceptingClients)
	}
	if p.CurrentCapacity != nil {
		p.CurrentCapacity = model.Int(*p.CurrentCapacity)
	}
	if p.Rating != nil {
		p.Rating = model.Float(*p.Rating)
	}
	if p.CompletedEngagements != nil {
		p.CompletedEngagements = model.Int(*p.CompletedEngagements)
	}
	return p
}

func cloneClient(c model.ClientProfile) model.ClientProfile {
	c.ServicesNeeded = slices.Clone(c.ServicesNeeded)
	if c.AnnualRevenue != nil {
		c.AnnualRevenue = model.Float(*c.AnnualRevenue)
	}
	return c
}
