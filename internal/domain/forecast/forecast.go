// Package forecast projects the revenue a match is expected to generate.
package forecast

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/okian/matchloop/internal/adapters/cache"
	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/pkg/logger"
	"github.com/okian/matchloop/pkg/metrics"
)

const (
	DefaultMonths      = 12
	MaxMonths          = 60
	defaultProbability = 0.5

	baseSigma      = 0.15
	sigmaPerMissed = 0.05
	// trackedInputs is how many inputs can fall back to a default.
	trackedInputs = 5
)

// Store is what the forecaster reads.
type Store interface {
	GetOutcome(ctx context.Context, matchID string) (model.MatchOutcome, error)
	GetClientProfile(ctx context.Context, id string) (model.ClientProfile, error)
	GetPrediction(ctx context.Context, matchID string) (model.EngagementPrediction, error)
}

// TrendSource supplies the current market revenue trend.
type TrendSource interface {
	RevenueTrend() float64
}

// Options tune one forecast.
type Options struct {
	Months int
	// AsOf pins the forecast start. Pinned forecasts are never cached.
	AsOf        time.Time
	BypassCache bool
}

// Multipliers are the adjustments applied to the base rates.
type Multipliers struct {
	Complexity float64 `json:"complexity"`
	Size       float64 `json:"size"`
	Region     float64 `json:"region"`
	Seasonal   float64 `json:"seasonal"`
	Trend      float64 `json:"trend"`
	Combined   float64 `json:"combined"`
}

// MonthPoint is one month of projected revenue.
type MonthPoint struct {
	Month      string  `json:"month"`
	Revenue    float64 `json:"revenue"`
	Expected   float64 `json:"expected"`
	Cumulative float64 `json:"cumulative"`
}

// Forecast is the revenue outlook of one match.
type Forecast struct {
	MatchID         string       `json:"match_id"`
	Services        []string     `json:"services"`
	Probability     float64      `json:"probability"`
	Multipliers     Multipliers  `json:"multipliers"`
	AnnualProject   float64      `json:"annual_project"`
	AnnualOngoing   float64      `json:"annual_ongoing"`
	AnnualTotal     float64      `json:"annual_total"`
	ExpectedAnnual  float64      `json:"expected_annual"`
	MonthlyGrowth   float64      `json:"monthly_growth"`
	Monthly         []MonthPoint `json:"monthly"`
	Scenarios       []Scenario   `json:"scenarios"`
	Blended         float64      `json:"blended"`
	Bands           []Band       `json:"bands"`
	Sigma           float64      `json:"sigma"`
	DataQuality     float64      `json:"data_quality"`
	DefaultedInputs []string     `json:"defaulted_inputs,omitempty"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

// CacheKey is the cache key of a match forecast over months.
func CacheKey(matchID string, months int) string {
	return cache.Key("forecast", matchID, strconv.Itoa(months))
}

// Forecaster builds revenue forecasts.
type Forecaster struct {
	store     Store
	trend     TrendSource
	scenarios []Scenario
	cache     cache.Cache
	ttl       time.Duration
	now       func() time.Time
	logger    logger.Logger
}

// New constructs a Forecaster.
func New(store Store, opts ...Option) *Forecaster {
	f := &Forecaster{
		store:     store,
		scenarios: DefaultScenarios(),
		ttl:       15 * time.Minute,
		now:       time.Now,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forecast projects revenue for matchID.
func (f *Forecaster) Forecast(ctx context.Context, matchID string, opts Options) (Forecast, error) {
	const op = "forecast"
	if strings.TrimSpace(matchID) == "" {
		return Forecast{}, fault.Validation(op, "match id is required")
	}
	if opts.Months < 0 || opts.Months > MaxMonths {
		return Forecast{}, fault.Validation(op, "months must be within [0,%d]", MaxMonths)
	}
	if opts.Months == 0 {
		opts.Months = DefaultMonths
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = f.now()
	}

	key := CacheKey(matchID, opts.Months)
	useCache := f.cache != nil && opts.AsOf.IsZero()
	if useCache && !opts.BypassCache {
		if v, ok, err := cache.GetJSON[Forecast](ctx, f.cache, key); err == nil && ok {
			return v, nil
		}
	}

	outcome, err := f.store.GetOutcome(ctx, matchID)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return Forecast{}, err
		}
		return Forecast{}, fault.Store(op, err)
	}
	client, err := f.store.GetClientProfile(ctx, outcome.ClientID)
	if err != nil && !errors.Is(err, fault.ErrNotFound) {
		return Forecast{}, fault.Store(op, err)
	}
	probability, known, err := f.probability(ctx, outcome)
	if err != nil {
		return Forecast{}, fault.Store(op, err)
	}

	trend := DefaultTrend
	if f.trend != nil {
		trend = f.trend.RevenueTrend()
	}
	out := Project(matchID, client, probability, known, Trend(trend), asOf, opts.Months, f.scenarios)

	metrics.RecordForecast()
	if useCache {
		if err := cache.SetJSON(ctx, f.cache, key, out, f.ttl); err != nil {
			f.logger.Warn(ctx, "forecast cache write", logger.String("key", key), logger.Error(err))
		}
	}
	f.logger.Debug(ctx, "forecast computed",
		logger.String("match_id", matchID),
		logger.Float64("expected_annual", out.ExpectedAnnual),
		logger.Float64("data_quality", out.DataQuality))
	return out, nil
}

// probability prefers a decided outcome, then the engagement prediction.
func (f *Forecaster) probability(ctx context.Context, o model.MatchOutcome) (float64, bool, error) {
	if o.Determined() {
		if o.Succeeded() {
			return 1, true, nil
		}
		return 0, true, nil
	}
	p, err := f.store.GetPrediction(ctx, o.MatchID)
	if errors.Is(err, fault.ErrNotFound) {
		return defaultProbability, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return p.PartnershipProbability, true, nil
}

// Project is the pure computation behind Forecast.
func Project(matchID string, client model.ClientProfile, probability float64, probabilityKnown bool, trend float64, asOf time.Time, months int, scenarios []Scenario) Forecast {
	var defaulted []string

	var services []string
	for _, s := range client.ServicesNeeded {
		s = strings.ToLower(strings.TrimSpace(s))
		if _, ok := RateBands[s]; ok {
			services = append(services, s)
		}
	}
	if len(services) == 0 {
		services = append([]string(nil), DefaultServices...)
		defaulted = append(defaulted, "services")
	}
	size := client.BusinessSize
	if _, ok := sizeMultiplier[size]; !ok {
		size = model.SizeSmall
		defaulted = append(defaulted, "business_size")
	}
	complexity := client.Complexity
	if _, ok := complexityMultiplier[complexity]; !ok {
		complexity = model.ComplexityModerate
		defaulted = append(defaulted, "complexity")
	}
	if strings.TrimSpace(client.Province) == "" {
		defaulted = append(defaulted, "region")
	}
	if !probabilityKnown {
		defaulted = append(defaulted, "probability")
	}

	m := Multipliers{
		Complexity: complexityMultiplier[complexity],
		Size:       sizeMultiplier[size],
		Region:     RegionMultiplier(client.Province),
		Seasonal:   Seasonal(asOf.Month()),
		Trend:      trend,
	}
	m.Combined = m.Complexity * m.Size * m.Region * m.Seasonal * m.Trend

	var project, ongoing float64
	for _, s := range services {
		band := RateBands[s]
		if band.Kind == KindOngoing {
			ongoing += band.Mid()
		} else {
			project += band.Mid()
		}
	}
	out := Forecast{
		MatchID:         matchID,
		Services:        services,
		Probability:     probability,
		Multipliers:     m,
		AnnualProject:   project * m.Combined,
		AnnualOngoing:   ongoing * m.Combined,
		MonthlyGrowth:   math.Pow(trend, 1.0/12) - 1,
		DefaultedInputs: defaulted,
		GeneratedAt:     asOf,
	}
	out.AnnualTotal = out.AnnualProject + out.AnnualOngoing
	out.ExpectedAnnual = out.AnnualTotal * probability

	// Monthly figures re-season each month from the unseasoned annual base.
	monthlyBase := (project + ongoing) * m.Complexity * m.Size * m.Region * m.Trend / 12
	start := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	cumulative := 0.0
	for i := range months {
		month := start.AddDate(0, i, 0)
		revenue := monthlyBase * Seasonal(month.Month()) * math.Pow(1+out.MonthlyGrowth, float64(i))
		expected := revenue * probability
		cumulative += expected
		out.Monthly = append(out.Monthly, MonthPoint{
			Month:      month.Format("2006-01"),
			Revenue:    revenue,
			Expected:   expected,
			Cumulative: cumulative,
		})
	}

	for _, s := range scenarios {
		s.Revenue = out.ExpectedAnnual * s.Multiplier
		out.Blended += s.Probability * s.Revenue
		out.Scenarios = append(out.Scenarios, s)
	}

	out.Sigma = baseSigma + sigmaPerMissed*float64(len(defaulted))
	for _, c := range ConfidenceLevels {
		out.Bands = append(out.Bands, Band{
			Level: c.Level,
			Z:     c.Z,
			Lower: math.Max(0, out.ExpectedAnnual*(1-c.Z*out.Sigma)),
			Upper: out.ExpectedAnnual * (1 + c.Z*out.Sigma),
		})
	}
	out.DataQuality = 1 - float64(len(defaulted))/trackedInputs
	return out
}
