// Package optimizer finds improvement opportunities on in-flight matches
// and prescribes, or executes, interventions for them.
package optimizer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/forecast"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/internal/domain/patterns"
	"github.com/okian/matchloop/pkg/logger"
	"github.com/okian/matchloop/pkg/metrics"
)

// Intervention statuses.
const (
	StatusRecommended = "recommended"
	StatusExecuted    = "executed"
	StatusFailed      = "failed"
)

// Default batch candidate window.
const (
	DefaultMinProbability = 0.4
	DefaultMaxProbability = 0.9
	DefaultRecency        = 7 * 24 * time.Hour
)

// Store is what the optimizer reads.
type Store interface {
	GetOutcome(ctx context.Context, matchID string) (model.MatchOutcome, error)
	GetClientProfile(ctx context.Context, id string) (model.ClientProfile, error)
	ListPredictions(ctx context.Context, f model.PredictionFilter) ([]model.EngagementPrediction, error)
}

// PatternSource analyzes a match's engagement history.
type PatternSource interface {
	Analyze(ctx context.Context, matchID string, opts patterns.Options) (patterns.Report, error)
}

// RevenueSource forecasts a match's revenue.
type RevenueSource interface {
	Forecast(ctx context.Context, matchID string, opts forecast.Options) (forecast.Forecast, error)
}

// Executor carries out an automated intervention.
type Executor interface {
	Execute(ctx context.Context, in Intervention) error
}

// Publisher emits fire-and-forget events.
type Publisher interface {
	Publish(ctx context.Context, e model.Event)
}

// Options tune one optimization.
type Options struct {
	BypassCache bool
	// AutoExecute runs immediate automated interventions through the Executor.
	AutoExecute bool
}

// Intervention is a strategy applied to one opportunity.
type Intervention struct {
	ID          string    `json:"id"`
	MatchID     string    `json:"match_id"`
	Opportunity string    `json:"opportunity"`
	Strategy    string    `json:"strategy"`
	Actions     []string  `json:"actions"`
	Automated   bool      `json:"automated"`
	Urgency     string    `json:"urgency"`
	Priority    float64   `json:"priority"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	ExecutedAt  time.Time `json:"executed_at,omitzero"`
}

// Result is the optimization plan of one match.
type Result struct {
	MatchID         string         `json:"match_id"`
	EngagementScore float64        `json:"engagement_score"`
	Opportunities   []Opportunity  `json:"opportunities"`
	Interventions   []Intervention `json:"interventions"`
	Executed        int            `json:"executed"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// BatchReport summarises a scheduled optimization run.
type BatchReport struct {
	Candidates    int           `json:"candidates"`
	Optimized     int           `json:"optimized"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	Opportunities int           `json:"opportunities"`
	Executed      int           `json:"executed"`
	Duration      time.Duration `json:"duration"`
}

// CacheKey is the cache key of a match's optimization plan.
func CacheKey(matchID string) string {
	return cache.Key("optimize", matchID)
}

// Optimizer builds optimization plans.
type Optimizer struct {
	store     Store
	patterns  PatternSource
	revenue   RevenueSource
	executor  Executor
	publisher Publisher
	cache     cache.Cache
	ttl       time.Duration
	minProb   float64
	maxProb   float64
	recency   time.Duration
	now       func() time.Time
	logger    logger.Logger
}

// New constructs an Optimizer. Without WithExecutor, automated
// interventions are announced as intervention_executed events.
func New(store Store, ps PatternSource, rs RevenueSource, opts ...Option) *Optimizer {
	o := &Optimizer{
		store:    store,
		patterns: ps,
		revenue:  rs,
		ttl:      5 * time.Minute,
		minProb:  DefaultMinProbability,
		maxProb:  DefaultMaxProbability,
		recency:  DefaultRecency,
		now:      time.Now,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.executor == nil {
		o.executor = &EventExecutor{publisher: o.publisher, now: o.now}
	}
	return o
}

// Optimize detects the match's opportunities, ranks them by priority and
// maps each to an intervention.
func (o *Optimizer) Optimize(ctx context.Context, matchID string, opts Options) (Result, error) {
	const op = "optimize"
	if strings.TrimSpace(matchID) == "" {
		return Result{}, fault.Validation(op, "match id is required")
	}

	key := CacheKey(matchID)
	if o.cache != nil && !opts.BypassCache {
		if res, ok, err := cache.GetJSON[Result](ctx, o.cache, key); err == nil && ok {
			return res, nil
		}
	}

	outcome, err := o.store.GetOutcome(ctx, matchID)
	if err != nil {
		return Result{}, err
	}
	asOf := o.now()
	report, err := o.patterns.Analyze(ctx, matchID, patterns.Options{AsOf: asOf, BypassCache: opts.BypassCache})
	if err != nil {
		return Result{}, err
	}
	fc, err := o.revenue.Forecast(ctx, matchID, forecast.Options{AsOf: asOf, BypassCache: opts.BypassCache})
	if err != nil {
		return Result{}, err
	}
	services := len(fc.Services)
	if client, err := o.store.GetClientProfile(ctx, outcome.ClientID); err == nil {
		services = max(services, len(client.ServicesNeeded))
	} else if !errors.Is(err, fault.ErrNotFound) {
		return Result{}, fault.Store(op, err)
	}

	opps := detect(ruleInput{report: report, forecast: fc, services: services})
	sort.SliceStable(opps, func(i, j int) bool { return opps[i].Priority > opps[j].Priority })

	res := Result{
		MatchID:         matchID,
		EngagementScore: report.Signals.EngagementScore,
		Opportunities:   opps,
		Interventions:   make([]Intervention, 0, len(opps)),
		GeneratedAt:     asOf,
	}
	for _, opp := range opps {
		metrics.RecordOpportunity(opp.Type)
		in := o.prescribe(matchID, opp)
		if opts.AutoExecute && in.Automated && in.Urgency == Immediate {
			o.execute(ctx, &in)
			if in.Status == StatusExecuted {
				res.Executed++
			}
		}
		res.Interventions = append(res.Interventions, in)
	}

	if o.cache != nil {
		if err := cache.SetJSON(ctx, o.cache, key, res, o.ttl); err != nil {
			o.logger.Warn(ctx, "optimize cache write", logger.String("key", key), logger.Error(err))
		}
	}
	if o.publisher != nil {
		o.publisher.Publish(ctx, model.Event{
			Type:       model.EventMatchOptimized,
			MatchID:    matchID,
			ProviderID: outcome.ProviderID,
			ClientID:   outcome.ClientID,
			Payload: map[string]any{
				"opportunities": len(res.Opportunities),
				"executed":      res.Executed,
			},
		})
	}
	return res, nil
}

func (o *Optimizer) prescribe(matchID string, opp Opportunity) Intervention {
	st := Strategies[opp.Type]
	return Intervention{
		ID:          uuid.NewString(),
		MatchID:     matchID,
		Opportunity: opp.Type,
		Strategy:    st.Name,
		Actions:     append([]string(nil), st.Actions...),
		Automated:   st.Automated,
		Urgency:     opp.Urgency,
		Priority:    opp.Priority,
		Status:      StatusRecommended,
	}
}

func (o *Optimizer) execute(ctx context.Context, in *Intervention) {
	if err := o.executor.Execute(ctx, *in); err != nil {
		in.Status = StatusFailed
		in.Error = err.Error()
		metrics.RecordErrorByComponent("optimizer", "intervention")
		o.logger.Warn(ctx, "intervention failed",
			logger.String("match_id", in.MatchID),
			logger.String("strategy", in.Strategy),
			logger.Error(err))
		return
	}
	in.Status = StatusExecuted
	in.ExecutedAt = o.now()
	metrics.RecordIntervention(in.Strategy)
}

// Batch optimizes every undetermined match whose prediction is recent and
// neither clearly won nor clearly lost. A failing match is logged and
// counted; it does not stop the batch.
func (o *Optimizer) Batch(ctx context.Context, autoExecute bool) (BatchReport, error) {
	start := o.now()
	preds, err := o.store.ListPredictions(ctx, model.PredictionFilter{
		MinProbability: o.minProb,
		MaxProbability: o.maxProb,
		UpdatedSince:   start.Add(-o.recency),
	})
	if err != nil {
		return BatchReport{}, fault.Store("optimize_batch", err)
	}

	report := BatchReport{Candidates: len(preds)}
	for _, p := range preds {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := o.store.GetOutcome(ctx, p.MatchID)
		if err == nil && outcome.Determined() {
			report.Skipped++
			continue
		}
		res, err := o.Optimize(ctx, p.MatchID, Options{BypassCache: true, AutoExecute: autoExecute})
		if err != nil {
			report.Failed++
			metrics.RecordErrorByComponent("optimizer", string(fault.KindOf(err)))
			o.logger.Error(ctx, "optimize match", logger.String("match_id", p.MatchID), logger.Error(err))
			continue
		}
		report.Optimized++
		report.Opportunities += len(res.Opportunities)
		report.Executed += res.Executed
	}
	report.Duration = o.now().Sub(start)

	o.logger.Info(ctx, "optimizer batch finished",
		logger.Int("candidates", report.Candidates),
		logger.Int("optimized", report.Optimized),
		logger.Int("failed", report.Failed),
		logger.Int("executed", report.Executed))
	return report, nil
}

// EventExecutor announces interventions on the event bus.
type EventExecutor struct {
	publisher Publisher
	now       func() time.Time
}

// NewEventExecutor constructs an EventExecutor.
func NewEventExecutor(p Publisher) *EventExecutor {
	return &EventExecutor{publisher: p, now: time.Now}
}

// Execute publishes intervention_executed. Without a publisher it is a no-op.
func (e *EventExecutor) Execute(ctx context.Context, in Intervention) error {
	if e.publisher == nil {
		return nil
	}
	e.publisher.Publish(ctx, model.Event{
		Type:       model.EventInterventionExecuted,
		MatchID:    in.MatchID,
		OccurredAt: e.now(),
		Payload: map[string]any{
			"intervention_id": in.ID,
			"opportunity":     in.Opportunity,
			"strategy":        in.Strategy,
			"actions":         in.Actions,
		},
	})
	return nil
}
