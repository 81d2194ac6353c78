package performance

import (
	"math"
	"time"

	"github.com/okian/matchloop/internal/domain/model"
)

// Dimension names.
const (
	PartnershipSuccessRate = "partnership_success_rate"
	ClientSatisfaction     = "client_satisfaction"
	RevenueGeneration      = "revenue_generation"
	ResponseQuality        = "response_quality"
	EngagementConsistency  = "engagement_consistency"
	MilestoneAchievement   = "milestone_achievement"
	MarketReputation       = "market_reputation"
)

// Benchmark holds the thresholds of one dimension. Ceiling is the value
// that earns a full 100.
type Benchmark struct {
	Name      string
	Weight    float64
	Excellent float64
	Good      float64
	Average   float64
	Ceiling   float64
}

// Benchmarks are the scored dimensions in report order.
var Benchmarks = []Benchmark{
	{PartnershipSuccessRate, 0.25, 0.8, 0.6, 0.4, 1},
	{ClientSatisfaction, 0.20, 4.5, 4.0, 3.5, 5},
	{RevenueGeneration, 0.15, 15000, 8000, 4000, 30000},
	{ResponseQuality, 0.15, 0.85, 0.70, 0.55, 1},
	{EngagementConsistency, 0.10, 0.8, 0.6, 0.4, 1},
	{MilestoneAchievement, 0.10, 0.75, 0.55, 0.35, 1},
	{MarketReputation, 0.05, 4.7, 4.3, 3.8, 5},
}

// Map converts a raw dimension value to a 0..100 score.
func (b Benchmark) Map(v float64) float64 {
	var s float64
	switch {
	case v >= b.Excellent:
		s = 100
		if b.Ceiling > b.Excellent {
			s = 90 + 10*(v-b.Excellent)/(b.Ceiling-b.Excellent)
		}
	case v >= b.Good:
		s = 75 + 15*(v-b.Good)/(b.Excellent-b.Good)
	case v >= b.Average:
		s = 50 + 25*(v-b.Average)/(b.Good-b.Average)
	default:
		s = 50 * v / b.Average
	}
	return math.Max(0, math.Min(100, s))
}

// TierFor buckets an overall score.
func TierFor(score float64) model.Tier {
	switch {
	case score >= 90:
		return model.TierElite
	case score >= 80:
		return model.TierExcellent
	case score >= 70:
		return model.TierGood
	case score >= 60:
		return model.TierDeveloping
	default:
		return model.TierNew
	}
}

// matchHistory is one match with its engagement records.
type matchHistory struct {
	outcome      model.MatchOutcome
	interactions []model.Interaction
	milestones   []model.Milestone
}

// Observation is the raw value of a dimension and how many records fed it.
type Observation struct {
	Value   float64
	Samples int
}

// weeklyActive reports whether a match never went more than a week without
// an interaction.
func weeklyActive(in []model.Interaction) bool {
	if len(in) < 2 {
		return false
	}
	for i := 1; i < len(in); i++ {
		if in[i].OccurredAt.Sub(in[i-1].OccurredAt) > 7*24*time.Hour {
			return false
		}
	}
	return true
}

// observe computes the raw value of every dimension that has data.
func observe(history []matchHistory, provider *model.ProviderProfile) map[string]Observation {
	out := make(map[string]Observation, len(Benchmarks))

	var determined, formed, rated, withInteractions, active, funnel int
	var satisfaction, revenue, quality, progress float64
	var qualitySamples int
	for _, h := range history {
		o := h.outcome
		if o.Determined() {
			determined++
			if o.Succeeded() {
				formed++
				revenue += o.RevenueGenerated
			}
		}
		if o.ClientSatisfaction != nil {
			rated++
			satisfaction += *o.ClientSatisfaction
		}
		if len(h.interactions) > 0 {
			withInteractions++
			for _, i := range h.interactions {
				quality += i.QualityScore
				qualitySamples++
			}
			if weeklyActive(h.interactions) {
				active++
			}
		}
		if len(h.milestones) > 0 {
			funnel++
			top := 0
			for _, m := range h.milestones {
				top = max(top, m.Type.Stage())
			}
			progress += float64(top) / float64(len(model.MilestoneStages))
		}
	}

	if determined > 0 {
		out[PartnershipSuccessRate] = Observation{float64(formed) / float64(determined), determined}
	}
	if rated > 0 {
		out[ClientSatisfaction] = Observation{satisfaction / float64(rated), rated}
	}
	if formed > 0 {
		out[RevenueGeneration] = Observation{revenue / float64(formed), formed}
	}
	if qualitySamples > 0 {
		out[ResponseQuality] = Observation{quality / float64(qualitySamples), qualitySamples}
	}
	if withInteractions > 0 {
		out[EngagementConsistency] = Observation{float64(active) / float64(withInteractions), withInteractions}
	}
	if funnel > 0 {
		out[MilestoneAchievement] = Observation{progress / float64(funnel), funnel}
	}
	if provider != nil && provider.Rating != nil {
		samples := 1
		if provider.CompletedEngagements != nil {
			samples = max(1, *provider.CompletedEngagements)
		}
		out[MarketReputation] = Observation{*provider.Rating, samples}
	}
	return out
}

// Evaluate scores the observed dimensions. Dimensions without data are left
// out and the remaining weights renormalised.
func Evaluate(obs map[string]Observation) (map[string]model.DimensionScore, float64) {
	dims := make(map[string]model.DimensionScore, len(obs))
	var weighted, weights float64
	for _, b := range Benchmarks {
		o, ok := obs[b.Name]
		if !ok {
			continue
		}
		s := b.Map(o.Value)
		dims[b.Name] = model.DimensionScore{Value: o.Value, Score: s, Weight: b.Weight, Samples: o.Samples}
		weighted += s * b.Weight
		weights += b.Weight
	}
	if weights == 0 {
		return dims, 0
	}
	return dims, weighted / weights
}
