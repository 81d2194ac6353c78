package optimizer

import (
	"math"

	"github.com/okian/matchloop/internal/domain/forecast"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/internal/domain/patterns"
)

// Opportunity types.
const (
	ResponseTime          = "response_time"
	RiskMitigation        = "risk_mitigation"
	EngagementMomentum    = "engagement_momentum"
	RevenueGrowth         = "revenue_growth"
	ServiceExpansion      = "service_expansion"
	InteractionQuality    = "interaction_quality"
	Conversion            = "conversion"
	MilestoneAcceleration = "milestone_acceleration"
)

// Urgency levels.
const (
	Immediate = "immediate"
	ShortTerm = "short_term"
	LongTerm  = "long_term"
)

// Rule thresholds and targets.
const (
	maxResponseHours  = 4.0
	dropoutTarget     = 0.2
	dropoutThreshold  = 0.3
	engagementTarget  = 0.7
	revenueTarget     = 5000.0
	serviceLineTarget = 3.0
	qualityThreshold  = 0.6
	qualityTarget     = 0.75
	conversionTarget  = 0.6
)

// Opportunity is one improvement the match could make.
type Opportunity struct {
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	Current     float64 `json:"current"`
	Target      float64 `json:"target"`
	Impact      float64 `json:"impact"`
	Feasibility float64 `json:"feasibility"`
	Potential   float64 `json:"potential"`
	Priority    float64 `json:"priority"`
	Urgency     string  `json:"urgency"`
}

// Strategy is the intervention prescribed for an opportunity type.
type Strategy struct {
	Name      string   `json:"name"`
	Actions   []string `json:"actions"`
	Automated bool     `json:"automated"`
}

// Strategies maps opportunity types to interventions.
var Strategies = map[string]Strategy{
	ResponseTime: {
		Name:      "response_sla_reminder",
		Actions:   []string{"remind provider of unanswered client messages", "share response templates"},
		Automated: true,
	},
	RiskMitigation: {
		Name:      "retention_outreach",
		Actions:   []string{"send check-in to both parties", "flag match for account manager review"},
		Automated: true,
	},
	EngagementMomentum: {
		Name:      "re_engagement_nudge",
		Actions:   []string{"suggest next meeting slot", "surface open questions from last interaction"},
		Automated: true,
	},
	RevenueGrowth: {
		Name:    "value_expansion_review",
		Actions: []string{"review client needs for additional services", "propose retainer pricing"},
	},
	ServiceExpansion: {
		Name:    "service_bundle_proposal",
		Actions: []string{"recommend complementary services", "prepare bundled quote"},
	},
	InteractionQuality: {
		Name:    "communication_coaching",
		Actions: []string{"share communication guidelines", "suggest structured meeting agenda"},
	},
	Conversion: {
		Name:      "proposal_follow_up",
		Actions:   []string{"prompt provider to send or revise proposal", "offer discovery call scheduling"},
		Automated: true,
	},
	MilestoneAcceleration: {
		Name:      "milestone_checkpoint",
		Actions:   []string{"send next-step checklist", "set target date for next milestone"},
		Automated: true,
	},
}

type ruleInput struct {
	report   patterns.Report
	forecast forecast.Forecast
	services int
}

type rule struct {
	kind        string
	category    string
	impact      float64
	feasibility float64
	// eval returns current and target values when the rule fires.
	eval func(in ruleInput) (current, target float64, fires bool)
}

var rules = []rule{
	{ResponseTime, "communication", 0.7, 0.8, func(in ruleInput) (float64, float64, bool) {
		h := in.report.Signals.AvgResponseHours
		return h, maxResponseHours, h > maxResponseHours
	}},
	{RiskMitigation, "retention", 0.9, 0.7, func(in ruleInput) (float64, float64, bool) {
		r := in.report.Signals.DropoutRisk
		return r, dropoutTarget, r > dropoutThreshold
	}},
	{EngagementMomentum, "engagement", 0.75, 0.6, func(in ruleInput) (float64, float64, bool) {
		return in.report.Signals.EngagementScore, engagementTarget, in.report.Momentum.PatternType == patterns.Declining
	}},
	{RevenueGrowth, "revenue", 0.6, 0.5, func(in ruleInput) (float64, float64, bool) {
		e := in.forecast.ExpectedAnnual
		return e, revenueTarget, e < revenueTarget
	}},
	{ServiceExpansion, "revenue", 0.5, 0.6, func(in ruleInput) (float64, float64, bool) {
		n := float64(in.services)
		return n, serviceLineTarget, n < serviceLineTarget
	}},
	{InteractionQuality, "communication", 0.65, 0.55, func(in ruleInput) (float64, float64, bool) {
		q, ok := in.report.Quality.Metrics["mean"]
		if !ok {
			return 0, qualityTarget, false
		}
		return q, qualityTarget, q < qualityThreshold || in.report.Quality.PatternType == patterns.DecliningQuality
	}},
	{Conversion, "conversion", 0.8, 0.6, func(in ruleInput) (float64, float64, bool) {
		p := in.report.Signals.PartnershipProbability
		return p, conversionTarget, p < conversionTarget
	}},
	{MilestoneAcceleration, "progression", 0.6, 0.65, func(in ruleInput) (float64, float64, bool) {
		stages := float64(len(model.MilestoneStages))
		current := in.report.Progression.Metrics["max_stage"] / stages
		target := float64(model.MilestoneContractSigned.Stage()) / stages
		return current, target, in.report.Progression.PatternType == patterns.SlowProgression
	}},
}

// Potential is the relative gap between current and target, capped at 1.
func Potential(current, target float64) float64 {
	if target == 0 {
		if current == 0 {
			return 0
		}
		return 1
	}
	return math.Min(1, math.Abs(current-target)/math.Abs(target))
}

// Priority weighs impact over feasibility, scaled by potential.
func Priority(impact, feasibility, potential float64) float64 {
	return (impact*0.6 + feasibility*0.4) * (0.5 + 0.5*potential)
}

// UrgencyFor buckets a gap.
func UrgencyFor(potential float64) string {
	switch {
	case potential >= 0.5:
		return Immediate
	case potential >= 0.2:
		return ShortTerm
	default:
		return LongTerm
	}
}

// detect applies every rule and returns the opportunities that fire.
func detect(in ruleInput) []Opportunity {
	var out []Opportunity
	for _, r := range rules {
		current, target, fires := r.eval(in)
		if !fires {
			continue
		}
		p := Potential(current, target)
		out = append(out, Opportunity{
			Type:        r.kind,
			Category:    r.category,
			Current:     current,
			Target:      target,
			Impact:      r.impact,
			Feasibility: r.feasibility,
			Potential:   p,
			Priority:    Priority(r.impact, r.feasibility, p),
			Urgency:     UrgencyFor(p),
		})
	}
	return out
}
