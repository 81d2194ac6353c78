package learning

import (
	"math"
	"time"

	"github.com/okian/matchloop/internal/domain/model"
)

// Tunables are the knobs of the weight adjustment heuristic.
type Tunables struct {
	LearningRate         float64
	Stability            float64
	MaxChange            float64
	Conservatism         float64
	SuccessRateThreshold float64
	// MinSample is the determined-outcome count below which an unforced
	// cycle reports insufficient_data.
	MinSample int
	// MinFactorSample is the number of observed values a factor needs before
	// its correlation may move its weight.
	MinFactorSample int
	Window          time.Duration
	RecentWindow    time.Duration
	// MinAppliedDelta is the smallest weight change worth persisting.
	MinAppliedDelta float64
}

// DefaultTunables returns the production settings.
func DefaultTunables() Tunables {
	return Tunables{
		LearningRate:         0.1,
		Stability:            0.85,
		MaxChange:            0.3,
		Conservatism:         0.9,
		SuccessRateThreshold: 0.7,
		MinSample:            15,
		MinFactorSample:      10,
		Window:               180 * 24 * time.Hour,
		RecentWindow:         30 * 24 * time.Hour,
		MinAppliedDelta:      0.01,
	}
}

// Correlation strength bands.
const (
	weakCorrelation     = 0.3
	strongCorrelation   = 0.6
	negativeCorrelation = -0.3
)

// Bounds is an inclusive weight range. Zero means unbounded on that side.
type Bounds struct {
	Min float64
	Max float64
}

func (b Bounds) apply(v float64) float64 {
	if b.Min > 0 && v < b.Min {
		v = b.Min
	}
	if b.Max > 0 && v > b.Max {
		v = b.Max
	}
	return v
}

// DomainBounds encodes business knowledge about factors that must never be
// discounted below (or inflated above) a level, whatever the data says.
var DomainBounds = map[string]Bounds{
	"geographic_proximity": {Min: 0.8},
	"experience":           {Max: 1.3},
	"availability":         {Min: 0.7},
	"industry_fit":         {Min: 0.9},
}

// Delta returns the raw weight change for a factor with correlation r over
// n observed values.
func Delta(r float64, n int, t Tunables) float64 {
	if math.IsNaN(r) || math.IsInf(r, 0) || n < t.MinFactorSample || math.Abs(r) < weakCorrelation {
		return 0
	}
	full := t.LearningRate * r * t.Stability
	switch {
	case r > strongCorrelation, r < negativeCorrelation:
		return full
	default:
		return full / 2
	}
}

// Clamp applies the global and baseline-relative safety bounds.
func Clamp(w model.FactorWeight, proposed float64, maxChange float64) float64 {
	lo, hi := w.Bounds(maxChange)
	return math.Max(lo, math.Min(hi, proposed))
}

// Propose walks one factor through delta, conservatism, safety bounds and
// the domain table, and returns the weight to persist (rounded to 4 dp).
// The result always satisfies w.WithinBounds(t.MaxChange).
func Propose(w model.FactorWeight, r float64, n int, recentSuccessRate float64, t Tunables, domain map[string]Bounds) float64 {
	d := Delta(r, n, t)
	if recentSuccessRate < t.SuccessRateThreshold {
		d *= t.Conservatism
	}
	v := Clamp(w, w.CurrentWeight+d, t.MaxChange)
	if b, ok := domain[w.Factor]; ok {
		v = Clamp(w, b.apply(v), t.MaxChange)
	}
	lo, hi := w.Bounds(t.MaxChange)
	return round4Within(v, lo, hi)
}

func round4Within(v, lo, hi float64) float64 {
	const scale = 1e4
	r := math.Round(v * scale)
	if r/scale > hi {
		r = math.Floor(hi * scale)
	}
	if r/scale < lo {
		r = math.Ceil(lo * scale)
	}
	return r / scale
}
