package forecast

import (
	"math"
	"strings"
	"time"

	"github.com/okian/matchloop/internal/domain/model"
)

// Billing kinds.
const (
	KindProject = "project"
	KindOngoing = "ongoing"
)

// RateBand is the annual fee range for a service line.
type RateBand struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Kind string  `json:"kind"`
}

// Mid is the band midpoint.
func (b RateBand) Mid() float64 { return (b.Min + b.Max) / 2 }

// RateBands are the annual fee ranges per service.
var RateBands = map[string]RateBand{
	"bookkeeping":          {Min: 3000, Max: 12000, Kind: KindOngoing},
	"payroll":              {Min: 2000, Max: 8000, Kind: KindOngoing},
	"cfo_services":         {Min: 20000, Max: 80000, Kind: KindOngoing},
	"tax_preparation":      {Min: 1500, Max: 6000, Kind: KindProject},
	"financial_statements": {Min: 2500, Max: 10000, Kind: KindProject},
	"advisory":             {Min: 5000, Max: 25000, Kind: KindProject},
	"audit":                {Min: 8000, Max: 40000, Kind: KindProject},
}

// DefaultServices are assumed when a client lists none we can price.
var DefaultServices = []string{"bookkeeping", "tax_preparation"}

var complexityMultiplier = map[model.Complexity]float64{
	model.ComplexitySimple:   0.85,
	model.ComplexityModerate: 1.0,
	model.ComplexityComplex:  1.35,
}

var sizeMultiplier = map[model.BusinessSize]float64{
	model.SizeMicro:  0.6,
	model.SizeSmall:  1.0,
	model.SizeMedium: 1.6,
	model.SizeLarge:  2.5,
}

var regionMultiplier = map[string]float64{
	"ON": 1.10,
	"BC": 1.08,
	"AB": 1.05,
	"QC": 1.00,
}

const (
	otherRegion   = 0.95
	unknownRegion = 1.0

	DefaultTrend = 1.03
	minTrend     = 0.9
	maxTrend     = 1.2
	minSeasonal  = 0.8
	maxSeasonal  = 1.3
)

// RegionMultiplier returns the provincial price level.
func RegionMultiplier(province string) float64 {
	p := strings.ToUpper(strings.TrimSpace(province))
	if p == "" {
		return unknownRegion
	}
	if m, ok := regionMultiplier[p]; ok {
		return m
	}
	return otherRegion
}

// Seasonal returns the demand multiplier for month.
func Seasonal(month time.Month) float64 {
	var m float64
	switch month {
	case time.January:
		m = 1.10
	case time.February, time.March, time.April:
		m = 1.25
	case time.May:
		m = 1.05
	case time.December:
		m = 0.90
	default:
		m = 1.0
	}
	return math.Max(minSeasonal, math.Min(maxSeasonal, m))
}

// Trend bounds a market trend multiplier, substituting the default for
// non-positive or non-finite input.
func Trend(t float64) float64 {
	if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		t = DefaultTrend
	}
	return math.Max(minTrend, math.Min(maxTrend, t))
}

// Scenario is one revenue outcome with its likelihood.
type Scenario struct {
	Name        string  `json:"name"`
	Multiplier  float64 `json:"multiplier"`
	Probability float64 `json:"probability"`
	Revenue     float64 `json:"revenue"`
}

// DefaultScenarios are the standard outcome spread.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Name: "conservative", Multiplier: 0.7, Probability: 0.25},
		{Name: "expected", Multiplier: 1.0, Probability: 0.50},
		{Name: "optimistic", Multiplier: 1.3, Probability: 0.20},
		{Name: "best_case", Multiplier: 1.6, Probability: 0.05},
	}
}

// Band is a confidence interval around expected annual revenue.
type Band struct {
	Level float64 `json:"level"`
	Z     float64 `json:"z"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ConfidenceLevels maps interval level to its z score.
var ConfidenceLevels = []struct {
	Level float64
	Z     float64
}{
	{0.95, 1.96},
	{0.80, 1.282},
	{0.50, 0.674},
}
