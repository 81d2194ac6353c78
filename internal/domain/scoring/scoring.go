// Package scoring computes weighted multi-factor compatibility scores for
// provider/client pairs.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/pkg/metrics"
)

const maxScoreValue = 100

// FactorResult is one factor's contribution to a score.
type FactorResult struct {
	Factor    string  `json:"factor"`
	Value     float64 `json:"value"`
	Weight    float64 `json:"weight"`
	Weighted  float64 `json:"weighted"`
	Defaulted bool    `json:"defaulted"`
}

// Result contains the computed score for a provider/client pair.
type Result struct {
	ClientID   string         `json:"client_id"`
	ProviderID string         `json:"provider_id"`
	TotalScore float64        `json:"total_score"`
	Breakdown  []FactorResult `json:"breakdown"`
	Confidence float64        `json:"confidence"`
}

// Values returns the factor values keyed by name, suitable for an outcome snapshot.
func (r Result) Values() map[string]float64 {
	out := make(map[string]float64, len(r.Breakdown))
	for _, f := range r.Breakdown {
		out[f.Factor] = f.Value
	}
	return out
}

// Top returns the n factors with the largest weighted contribution.
func (r Result) Top(n int) []FactorResult {
	sorted := append([]FactorResult(nil), r.Breakdown...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Weighted > sorted[j].Weighted })
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Pair names the two sides to score. An inline profile is scored as given;
// a nil one is looked up by its id.
type Pair struct {
	ClientID   string                 `json:"client_id,omitempty"`
	ProviderID string                 `json:"provider_id,omitempty"`
	Client     *model.ClientProfile   `json:"client,omitempty"`
	Provider   *model.ProviderProfile `json:"provider,omitempty"`
}

// Scorer computes a score from two profiles and a weight snapshot.
type Scorer interface {
	Score(ctx context.Context, client model.ClientProfile, provider model.ProviderProfile, weights model.WeightSet) (Result, error)
}

// FactorScorer implements Scorer. It holds no mutable state.
type FactorScorer struct{}

// NewFactorScorer creates a scorer.
func NewFactorScorer() *FactorScorer {
	return &FactorScorer{}
}

// Score computes the weighted score. Missing profile fields fall back to
// neutral defaults; only missing identifiers are rejected.
func (s *FactorScorer) Score(ctx context.Context, client model.ClientProfile, provider model.ProviderProfile, weights model.WeightSet) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context cancelled: %w", err)
	}
	if strings.TrimSpace(client.ID) == "" {
		return Result{}, fault.Validation("score", "client id is required")
	}
	if strings.TrimSpace(provider.ID) == "" {
		return Result{}, fault.Validation("score", "provider id is required")
	}

	start := time.Now()
	res := Compute(client, provider, weights)
	metrics.RecordScore(time.Since(start))
	return res, nil
}

// Compute is the pure scoring function behind Score.
func Compute(client model.ClientProfile, provider model.ProviderProfile, weights model.WeightSet) Result {
	breakdown := make([]FactorResult, 0, len(Factors))
	var weightedSum, weightSum float64
	present := 0

	for _, name := range Factors {
		v, defaulted := factorFuncs[name](client, provider)
		v = clamp01(v)
		w := EffectiveWeight(weights, name)
		if !defaulted {
			present++
		}
		breakdown = append(breakdown, FactorResult{
			Factor:    name,
			Value:     v,
			Weight:    w,
			Weighted:  v * w,
			Defaulted: defaulted,
		})
		weightedSum += v * w
		weightSum += w
	}

	total := 0.0
	if weightSum > 0 {
		total = maxScoreValue * weightedSum / weightSum
	}
	return Result{
		ClientID:   client.ID,
		ProviderID: provider.ID,
		TotalScore: math.Max(0, math.Min(maxScoreValue, total)),
		Breakdown:  breakdown,
		Confidence: 0.4 + 0.6*float64(present)/float64(len(Factors)),
	}
}

// FactorValue computes a single factor's value.
func FactorValue(factor string, client model.ClientProfile, provider model.ProviderProfile) (float64, error) {
	fn, ok := factorFuncs[factor]
	if !ok {
		return 0, fault.Validation("factor_value", "unknown factor %q", factor)
	}
	v, _ := fn(client, provider)
	return clamp01(v), nil
}

// EffectiveWeight returns the weight used for factor: the learned weight when
// present, else the baseline, never below model.MinWeight.
func EffectiveWeight(weights model.WeightSet, factor string) float64 {
	w := BaselineWeight(factor)
	if fw, ok := weights[factor]; ok {
		w = fw.CurrentWeight
	}
	if math.IsNaN(w) || math.IsInf(w, 0) || w <= model.MinWeight {
		return model.MinWeight
	}
	return w
}

// DefaultWeights returns the seed weight rows, current = baseline.
func DefaultWeights(now time.Time) []model.FactorWeight {
	out := make([]model.FactorWeight, 0, len(Factors))
	for _, name := range Factors {
		b := BaselineWeight(name)
		out = append(out, model.FactorWeight{
			Factor:         name,
			CurrentWeight:  b,
			BaselineWeight: b,
			UpdatedAt:      now,
		})
	}
	return out
}
