package model

import "time"

// EventType names a domain event published on the bus.
type EventType string

const (
	EventOutcomeRecorded      EventType = "outcome_recorded"
	EventPerformanceScored    EventType = "performance_scored"
	EventMatchOptimized       EventType = "match_optimized"
	EventInterventionExecuted EventType = "intervention_executed"
	EventWeightsUpdated       EventType = "weights_updated"
)

// Event is a fire-and-forget notification for downstream consumers.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	MatchID    string         `json:"match_id,omitempty"`
	ProviderID string         `json:"provider_id,omitempty"`
	ClientID   string         `json:"client_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
