package model

import "time"

// Tier buckets a provider's overall performance score.
type Tier string

const (
	TierElite      Tier = "elite"
	TierExcellent  Tier = "excellent"
	TierGood       Tier = "good"
	TierDeveloping Tier = "developing"
	TierNew        Tier = "new"
)

// DimensionScore is one scored dimension of provider performance.
type DimensionScore struct {
	Value  float64 `json:"value"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	// Samples is how many observations fed Value.
	Samples int `json:"samples"`
}

// PerformanceSnapshot is a provider's latest scored performance.
type PerformanceSnapshot struct {
	ProviderID   string                    `json:"provider_id"`
	Status       string                    `json:"status"`
	Dimensions   map[string]DimensionScore `json:"dimensions,omitempty"`
	OverallScore float64                   `json:"overall_score"`
	Tier         Tier                      `json:"tier"`
	Rank         int                       `json:"rank"`
	Percentile   float64                   `json:"percentile"`
	PeerCount    int                       `json:"peer_count"`
	OutcomeCount int                       `json:"outcome_count"`
	ComputedAt   time.Time                 `json:"computed_at"`
}
