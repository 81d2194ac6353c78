// Package learning adjusts factor weights from observed partnership
// outcomes. A cycle correlates each factor with success, proposes a bounded
// nudge and persists every change in one batch.
package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/internal/adapters/lock"
	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/internal/domain/scoring"
	"github.com/okian/matchloop/pkg/logger"
	"github.com/okian/matchloop/pkg/metrics"
)

// Cycle statuses.
const (
	StatusSuccess          = "success"
	StatusInsufficientData = "insufficient_data"
	StatusSkipped          = "skipped"
	StatusFailed           = "failed"
)

// LockKey names the learning lock.
const LockKey = "learning-cycle"

// Store is the slice of the outcome store the learner reads and writes.
type Store interface {
	GetOutcomes(ctx context.Context, f model.OutcomeFilter) ([]model.MatchOutcome, error)
	GetWeights(ctx context.Context) ([]model.FactorWeight, error)
	UpsertWeights(ctx context.Context, ws []model.FactorWeight) error
	GetProviderProfile(ctx context.Context, id string) (model.ProviderProfile, error)
	GetClientProfile(ctx context.Context, id string) (model.ClientProfile, error)
}

// Publisher emits fire-and-forget events.
type Publisher interface {
	Publish(ctx context.Context, e model.Event)
}

// FactorAdjustment reports what the cycle decided for one factor.
type FactorAdjustment struct {
	Factor      string  `json:"factor"`
	Correlation float64 `json:"correlation"`
	Samples     int     `json:"samples"`
	OldWeight   float64 `json:"old_weight"`
	NewWeight   float64 `json:"new_weight"`
	Delta       float64 `json:"delta"`
	Applied     bool    `json:"applied"`
}

// Report summarises one learning cycle.
type Report struct {
	Status            string             `json:"status"`
	Stage             string             `json:"stage,omitempty"`
	Error             string             `json:"error,omitempty"`
	SampleSize        int                `json:"sample_size"`
	SkippedOutcomes   int                `json:"skipped_outcomes"`
	SuccessRate       float64            `json:"success_rate"`
	RecentSuccessRate float64            `json:"recent_success_rate"`
	Factors           []FactorAdjustment `json:"factors,omitempty"`
	Updated           int                `json:"updated"`
	SeparationBefore  float64            `json:"separation_before"`
	SeparationAfter   float64            `json:"separation_after"`
	StartedAt         time.Time          `json:"started_at"`
	Duration          time.Duration      `json:"duration"`
}

// Learner runs weight learning cycles. At most one cycle is in flight per
// Learner, and per lock key when a distributed Locker is configured.
type Learner struct {
	store     Store
	tunables  Tunables
	domain    map[string]Bounds
	cache     cache.Cache
	publisher Publisher
	locker    lock.Locker
	lockTTL   time.Duration
	now       func() time.Time
	logger    logger.Logger

	inFlight atomic.Bool
}

// New constructs a Learner over store.
func New(store Store, opts ...Option) *Learner {
	l := &Learner{
		store:    store,
		tunables: DefaultTunables(),
		domain:   DomainBounds,
		lockTTL:  10 * time.Minute,
		now:      time.Now,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Tunables returns the active settings.
func (l *Learner) Tunables() Tunables { return l.tunables }

// errStop ends a cycle early without marking it failed.
var errStop = errors.New("stop")

// cycle carries state between stages.
type cycle struct {
	force    bool
	now      time.Time
	outcomes []model.MatchOutcome
	// values holds the factor values of each usable outcome, aligned with success.
	values  []map[string]float64
	success []float64

	weights     model.WeightSet
	correlation map[string]float64
	samples     map[string]int
	proposed    map[string]float64
	report      *Report
}

type stage struct {
	name string
	run  func(ctx context.Context, c *cycle) error
}

func (l *Learner) stages() []stage {
	return []stage{
		{"analyze_performance", l.analyzePerformance},
		{"compute_correlations", l.computeCorrelations},
		{"propose_weights", l.proposeWeights},
		{"persist", l.persist},
		{"validate_improvement", l.validateImprovement},
	}
}

// RunCycle executes one learning cycle. force bypasses the minimum sample
// check. A concurrent call returns a skipped report. A stage error aborts the
// cycle before anything is written and is returned with a failed report.
func (l *Learner) RunCycle(ctx context.Context, force bool) (Report, error) {
	start := l.now()
	report := Report{StartedAt: start}

	if !l.inFlight.CompareAndSwap(false, true) {
		report.Status = StatusSkipped
		metrics.RecordLearningCycle(StatusSkipped)
		return report, nil
	}
	defer l.inFlight.Store(false)

	if l.locker != nil {
		release, ok, err := l.locker.TryAcquire(ctx, LockKey, l.lockTTL)
		if err != nil {
			report.Status = StatusFailed
			report.Error = err.Error()
			metrics.RecordLearningCycle(StatusFailed)
			return report, fault.Store("learning_lock", err)
		}
		if !ok {
			report.Status = StatusSkipped
			metrics.RecordLearningCycle(StatusSkipped)
			return report, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				l.logger.Warn(ctx, "release learning lock", logger.Error(err))
			}
		}()
	}

	c := &cycle{force: force, now: start, report: &report}
	var runErr error
	for _, s := range l.stages() {
		if err := ctx.Err(); err != nil {
			runErr = err
			report.Stage = s.name
			break
		}
		if err := s.run(ctx, c); err != nil {
			if errors.Is(err, errStop) {
				break
			}
			runErr = err
			report.Stage = s.name
			break
		}
	}

	report.Duration = l.now().Sub(start)
	if runErr != nil {
		report.Status = StatusFailed
		report.Error = runErr.Error()
		metrics.RecordLearningCycle(StatusFailed)
		metrics.RecordErrorByComponent("learning", string(fault.KindOf(runErr)))
		l.logger.Error(ctx, "learning cycle failed", logger.String("stage", report.Stage), logger.Error(runErr))
		return report, runErr
	}
	if report.Status == "" {
		report.Status = StatusSuccess
	}
	metrics.RecordLearningCycle(report.Status)
	l.logger.Info(ctx, "learning cycle finished",
		logger.String("status", report.Status),
		logger.Int("sample_size", report.SampleSize),
		logger.Int("updated", report.Updated),
		logger.Float64("separation_before", report.SeparationBefore),
		logger.Float64("separation_after", report.SeparationAfter),
		logger.Duration("took", report.Duration))
	return report, nil
}

func (l *Learner) analyzePerformance(ctx context.Context, c *cycle) error {
	outcomes, err := l.store.GetOutcomes(ctx, model.OutcomeFilter{
		Since:          c.now.Add(-l.tunables.Window),
		OnlyDetermined: true,
	})
	if err != nil {
		return fault.Store("learning_outcomes", err)
	}
	c.outcomes = outcomes
	c.report.SampleSize = len(outcomes)

	var successes, recent, recentSuccesses int
	recentSince := c.now.Add(-l.tunables.RecentWindow)
	for _, o := range outcomes {
		if o.Succeeded() {
			successes++
		}
		if !o.UpdatedAt.Before(recentSince) {
			recent++
			if o.Succeeded() {
				recentSuccesses++
			}
		}
	}
	if n := len(outcomes); n > 0 {
		c.report.SuccessRate = float64(successes) / float64(n)
	}
	c.report.RecentSuccessRate = c.report.SuccessRate
	if recent > 0 {
		c.report.RecentSuccessRate = float64(recentSuccesses) / float64(recent)
	}

	if len(outcomes) < l.tunables.MinSample && !c.force {
		c.report.Status = StatusInsufficientData
		l.logger.Info(ctx, "not enough outcomes to learn from",
			logger.Int("have", len(outcomes)), logger.Int("need", l.tunables.MinSample))
		return errStop
	}

	ws, err := l.store.GetWeights(ctx)
	if err != nil {
		return fault.Store("learning_weights", err)
	}
	c.weights = model.NewWeightSet(ws)
	for _, seed := range scoring.DefaultWeights(c.now) {
		if _, ok := c.weights[seed.Factor]; !ok {
			c.weights[seed.Factor] = seed
		}
	}
	return nil
}

// factorValues returns the outcome's factor values, recomputing missing ones
// from profiles. ok is false when values are missing and a profile is gone.
func (l *Learner) factorValues(ctx context.Context, o model.MatchOutcome) (map[string]float64, bool, error) {
	values := make(map[string]float64, len(scoring.Factors))
	missing := false
	for _, f := range scoring.Factors {
		v, ok := o.FactorSnapshot[f]
		if !ok {
			missing = true
			continue
		}
		values[f] = v
	}
	if !missing {
		return values, true, nil
	}

	provider, err := l.store.GetProviderProfile(ctx, o.ProviderID)
	if errors.Is(err, fault.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fault.Store("learning_provider", err)
	}
	client, err := l.store.GetClientProfile(ctx, o.ClientID)
	if errors.Is(err, fault.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fault.Store("learning_client", err)
	}
	for f, v := range scoring.Compute(client, provider, nil).Values() {
		if _, ok := values[f]; !ok {
			values[f] = v
		}
	}
	return values, true, nil
}

func (l *Learner) computeCorrelations(ctx context.Context, c *cycle) error {
	for _, o := range c.outcomes {
		values, ok, err := l.factorValues(ctx, o)
		if err != nil {
			return err
		}
		if !ok {
			c.report.SkippedOutcomes++
			continue
		}
		c.values = append(c.values, values)
		y := 0.0
		if o.Succeeded() {
			y = 1
		}
		c.success = append(c.success, y)
	}
	if c.report.SkippedOutcomes > 0 {
		l.logger.Warn(ctx, "outcomes skipped for missing profiles", logger.Int("skipped", c.report.SkippedOutcomes))
	}

	c.correlation = make(map[string]float64, len(scoring.Factors))
	c.samples = make(map[string]int, len(scoring.Factors))
	xs := make([]float64, len(c.values))
	for _, f := range scoring.Factors {
		for i, v := range c.values {
			xs[i] = v[f]
		}
		n := len(xs)
		c.samples[f] = n
		r := 0.0
		if n >= 2 {
			r = stat.Correlation(xs, c.success, nil)
		}
		if math.IsNaN(r) || math.IsInf(r, 0) {
			err := fault.Computation("correlation", fmt.Errorf("factor %s: correlation is %v over %d samples", f, r, n))
			metrics.RecordErrorByComponent("learning", string(fault.KindComputation))
			l.logger.Debug(ctx, "correlation undefined, using 0", logger.Error(err))
			r = 0
		}
		c.correlation[f] = r
		metrics.UpdateFactorCorrelation(f, r)
	}
	return nil
}

// proposeWeights runs every factor through Propose, so the persisted weights
// obey the same bounds the heuristic guarantees in isolation.
func (l *Learner) proposeWeights(_ context.Context, c *cycle) error {
	c.proposed = make(map[string]float64, len(scoring.Factors))
	for _, f := range scoring.Factors {
		c.proposed[f] = Propose(c.weights[f], c.correlation[f], c.samples[f], c.report.RecentSuccessRate, l.tunables, l.domain)
	}
	return nil
}

func (l *Learner) persist(ctx context.Context, c *cycle) error {
	confidence := math.Min(1, float64(len(c.values))/100)
	var rows []model.FactorWeight
	for _, f := range scoring.Factors {
		w := c.weights[f]
		next := c.proposed[f]
		adj := FactorAdjustment{
			Factor:      f,
			Correlation: c.correlation[f],
			Samples:     c.samples[f],
			OldWeight:   w.CurrentWeight,
			NewWeight:   next,
			Delta:       next - w.CurrentWeight,
		}
		if math.Abs(adj.Delta) > l.tunables.MinAppliedDelta {
			adj.Applied = true
			w.CurrentWeight = next
			w.SuccessCorrelation = c.correlation[f]
			w.ConfidenceScore = confidence
			w.SampleSize = c.samples[f]
			w.LearningIterations++
			w.UpdatedAt = c.now
			rows = append(rows, w)
		} else {
			adj.NewWeight = w.CurrentWeight
		}
		c.report.Factors = append(c.report.Factors, adj)
	}
	if len(rows) == 0 {
		return nil
	}

	if err := l.store.UpsertWeights(ctx, rows); err != nil {
		return fault.Store("learning_persist", err)
	}
	c.report.Updated = len(rows)
	for _, w := range rows {
		c.weights[w.Factor] = w
		metrics.RecordWeightUpdate(w.Factor, w.CurrentWeight)
		metrics.UpdateFactorWeight(w.Factor, w.CurrentWeight)
	}

	if l.cache != nil {
		removed, err := l.cache.Invalidate(ctx, "recommend:")
		if err != nil {
			l.logger.Warn(ctx, "invalidate recommendations", logger.Error(err))
		} else {
			l.logger.Debug(ctx, "recommendations invalidated", logger.Int("removed", removed))
		}
	}
	if l.publisher != nil {
		updated := make(map[string]any, len(rows))
		for _, w := range rows {
			updated[w.Factor] = w.CurrentWeight
		}
		l.publisher.Publish(ctx, model.Event{
			Type:    model.EventWeightsUpdated,
			Payload: map[string]any{"weights": updated, "sample_size": len(c.values)},
		})
	}
	return nil
}

// validateImprovement compares how far apart successes and failures score
// under the old and the new weights.
func (l *Learner) validateImprovement(ctx context.Context, c *cycle) error {
	before := make(model.WeightSet, len(c.report.Factors))
	for _, adj := range c.report.Factors {
		before[adj.Factor] = model.FactorWeight{Factor: adj.Factor, CurrentWeight: adj.OldWeight}
	}
	c.report.SeparationBefore = Separation(c.values, c.success, before)
	c.report.SeparationAfter = Separation(c.values, c.success, c.weights)
	if c.report.Updated > 0 && c.report.SeparationAfter < c.report.SeparationBefore {
		l.logger.Warn(ctx, "score separation decreased after update",
			logger.Float64("before", c.report.SeparationBefore),
			logger.Float64("after", c.report.SeparationAfter))
	}
	return nil
}

// Separation is the mean weighted score of successful outcomes minus that of
// failed ones. It is 0 unless both groups are present.
func Separation(values []map[string]float64, success []float64, weights model.WeightSet) float64 {
	var sumOK, sumFail float64
	var nOK, nFail int
	for i, v := range values {
		s := weightedScore(v, weights)
		if success[i] > 0 {
			sumOK += s
			nOK++
		} else {
			sumFail += s
			nFail++
		}
	}
	if nOK == 0 || nFail == 0 {
		return 0
	}
	return sumOK/float64(nOK) - sumFail/float64(nFail)
}

func weightedScore(values map[string]float64, weights model.WeightSet) float64 {
	var num, den float64
	for _, f := range scoring.Factors {
		v, ok := values[f]
		if !ok {
			continue
		}
		w := scoring.EffectiveWeight(weights, f)
		num += v * w
		den += w
	}
	if den == 0 {
		return 0
	}
	return 100 * num / den
}
