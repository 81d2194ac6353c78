package recommend

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/internal/domain/scoring"
)

const (
	minAdjustment = 0.9
	maxAdjustment = 1.1
	taxSeasonLift = 1.05
)

var tierAdjustment = map[model.Tier]float64{
	model.TierElite:      1.08,
	model.TierExcellent:  1.05,
	model.TierDeveloping: 0.97,
}

// Adjustments are the contextual multipliers on top of the base score.
type Adjustments struct {
	MarketTrend      float64 `json:"market_trend"`
	Seasonal         float64 `json:"seasonal"`
	PerformanceTrend float64 `json:"performance_trend"`
}

// Combined is the product of the three multipliers.
func (a Adjustments) Combined() float64 {
	return a.MarketTrend * a.Seasonal * a.PerformanceTrend
}

// TaxCapable reports whether p offers any tax service.
func TaxCapable(p model.ProviderProfile) bool {
	for _, s := range p.Services {
		if strings.Contains(strings.ToLower(s), "tax") {
			return true
		}
	}
	return false
}

// InTaxSeason reports whether t falls in February through April.
func InTaxSeason(t time.Time) bool {
	m := t.Month()
	return m >= time.February && m <= time.April
}

// TierAdjustment maps a performance tier to its multiplier.
func TierAdjustment(t model.Tier) float64 {
	if v, ok := tierAdjustment[t]; ok {
		return v
	}
	return 1
}

func bound(v float64) float64 {
	if math.IsNaN(v) || v == 0 {
		return 1
	}
	return min(maxAdjustment, max(minAdjustment, v))
}

func adjustments(demand float64, provider model.ProviderProfile, tier model.Tier, asOf time.Time) Adjustments {
	a := Adjustments{
		MarketTrend:      bound(demand),
		Seasonal:         1,
		PerformanceTrend: bound(TierAdjustment(tier)),
	}
	if TaxCapable(provider) && InTaxSeason(asOf) {
		a.Seasonal = bound(taxSeasonLift)
	}
	return a
}

// explain lists the top weighted factors followed by each applied adjustment.
func explain(res scoring.Result, a Adjustments, industry string, tier model.Tier) []string {
	out := make([]string, 0, 6)
	for _, f := range res.Top(3) {
		out = append(out, fmt.Sprintf("%s scored %.2f at weight %.2f", f.Factor, f.Value, f.Weight))
	}
	switch {
	case a.MarketTrend > 1:
		out = append(out, fmt.Sprintf("strong market demand in %s (x%.2f)", industry, a.MarketTrend))
	case a.MarketTrend < 1:
		out = append(out, fmt.Sprintf("soft market demand in %s (x%.2f)", industry, a.MarketTrend))
	}
	if a.Seasonal != 1 {
		out = append(out, fmt.Sprintf("tax season availability (x%.2f)", a.Seasonal))
	}
	if a.PerformanceTrend != 1 {
		out = append(out, fmt.Sprintf("%s performance tier (x%.2f)", tier, a.PerformanceTrend))
	}
	return out
}
